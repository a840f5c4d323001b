package engine

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/hearthgrid/hearth/internal/tree"
)

// depGraph tracks formula -> input edges over interned path ids.
// Interning keeps the adjacency sets cheap to copy into roaring bitmaps
// and avoids holding live node pointers, so node removal cannot leave
// the graph pointing at freed structure. Ids are handed out for paths
// that do not exist yet: a formula may legally reference an input that
// is created later.
type depGraph struct {
	ids   map[string]uint32
	paths []string

	// forward: formula id -> its static input ids
	forward map[uint32][]uint32
	// inverse: path id -> bitmap of formula ids reading it
	inverse map[uint32]*roaring.Bitmap
}

func newDepGraph() *depGraph {
	return &depGraph{
		ids:     make(map[string]uint32),
		forward: make(map[uint32][]uint32),
		inverse: make(map[uint32]*roaring.Bitmap),
	}
}

// intern returns the stable id for a path, allocating on first use.
func (g *depGraph) intern(p tree.Path) uint32 {
	key := p.String()
	if id, ok := g.ids[key]; ok {
		return id
	}
	id := uint32(len(g.paths))
	g.ids[key] = id
	g.paths = append(g.paths, key)
	return id
}

func (g *depGraph) pathOf(id uint32) string { return g.paths[id] }

// lookup returns the id without allocating.
func (g *depGraph) lookup(p tree.Path) (uint32, bool) {
	id, ok := g.ids[p.String()]
	return id, ok
}

// wouldCycle reports whether installing formula with the given inputs
// would close a loop: true when any input can already reach formula
// through existing formula edges, or references it directly.
func (g *depGraph) wouldCycle(formula uint32, inputs []uint32) bool {
	seen := roaring.New()
	stack := make([]uint32, 0, len(inputs))
	for _, in := range inputs {
		if in == formula {
			return true
		}
		stack = append(stack, in)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)
		for _, dep := range g.forward[id] {
			if dep == formula {
				return true
			}
			stack = append(stack, dep)
		}
	}
	return false
}

// install records the formula's edges. The caller has already passed
// wouldCycle.
func (g *depGraph) install(formula uint32, inputs []uint32) {
	g.forward[formula] = inputs
	for _, in := range inputs {
		bm, ok := g.inverse[in]
		if !ok {
			bm = roaring.New()
			g.inverse[in] = bm
		}
		bm.Add(formula)
	}
}

// remove drops a formula's outgoing edges (when the formula node itself
// is removed). Inverse entries pointing at the removed path stay: other
// formulas may still reference the now-absent path and must recompute
// to the error sentinel.
func (g *depGraph) remove(formula uint32) {
	for _, in := range g.forward[formula] {
		if bm, ok := g.inverse[in]; ok {
			bm.Remove(formula)
			if bm.IsEmpty() {
				delete(g.inverse, in)
			}
		}
	}
	delete(g.forward, formula)
}

// closure returns every formula transitively reachable from the seed
// paths through inverse edges: the set that must recompute after the
// seeds change.
func (g *depGraph) closure(seeds []uint32) *roaring.Bitmap {
	affected := roaring.New()
	stack := append([]uint32(nil), seeds...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		bm, ok := g.inverse[id]
		if !ok {
			continue
		}
		it := bm.Iterator()
		for it.HasNext() {
			f := it.Next()
			if affected.Contains(f) {
				continue
			}
			affected.Add(f)
			stack = append(stack, f)
		}
	}
	return affected
}

// topoOrder sorts the affected formulas dependencies-first. Ties are
// broken by path ordering so a recompute pass is reproducible.
func (g *depGraph) topoOrder(affected *roaring.Bitmap) []uint32 {
	// In-degree restricted to the affected subgraph.
	indeg := make(map[uint32]int)
	it := affected.Iterator()
	for it.HasNext() {
		f := it.Next()
		n := 0
		for _, in := range g.forward[f] {
			if affected.Contains(in) {
				n++
			}
		}
		indeg[f] = n
	}

	ready := make([]uint32, 0, len(indeg))
	for f, n := range indeg {
		if n == 0 {
			ready = append(ready, f)
		}
	}

	out := make([]uint32, 0, len(indeg))
	for len(out) < len(indeg) {
		if len(ready) == 0 {
			// Install-time acyclicity makes this unreachable; bail so a
			// corrupted graph aborts one recompute instead of spinning.
			break
		}
		// Deterministic tie-break: smallest path first.
		best := 0
		for i := 1; i < len(ready); i++ {
			if g.pathOf(ready[i]) < g.pathOf(ready[best]) {
				best = i
			}
		}
		f := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		out = append(out, f)

		if bm, ok := g.inverse[f]; ok {
			dit := bm.Iterator()
			for dit.HasNext() {
				dep := dit.Next()
				if !affected.Contains(dep) {
					continue
				}
				indeg[dep]--
				if indeg[dep] == 0 {
					ready = append(ready, dep)
				}
			}
		}
	}
	return out
}
