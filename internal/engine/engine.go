package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"

	"github.com/hearthgrid/hearth/internal/formula"
	"github.com/hearthgrid/hearth/internal/tree"
)

// ErrCyclicDependency rejects a formula whose static inputs would close
// a loop in the dependency graph.
var ErrCyclicDependency = errors.New("cyclic formula dependency")

// Change is one (path, new value) pair of a committed query group.
type Change struct {
	Path  string
	Value string
}

// Changeset is every path touched by one query group, cascade effects
// included, in path order.
type Changeset []Change

// Engine owns the single TreeState and serializes every mutating query
// group: one group is applied and recomputed atomically before the next
// begins, which is what makes the store linearizable. Read-only
// requests share an RLock and always observe a fully committed tree.
type Engine struct {
	mu       sync.RWMutex
	tree     *tree.Tree
	deps     *depGraph
	programs map[uint32]*formula.Program
	metrics  *Metrics
	notify   func(Changeset)
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithNotify sets the changeset broadcast hook. It is invoked once per
// non-empty committed query group, in commit order, and must not block:
// subscription delivery downstream is fire-and-forget.
func WithNotify(fn func(Changeset)) Option {
	return func(e *Engine) { e.notify = fn }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		tree:     tree.New(),
		deps:     newDepGraph(),
		programs: make(map[uint32]*formula.Program),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetNotify installs the broadcast hook after construction. The server
// wires the subscription registry here once sessions exist.
func (e *Engine) SetNotify(fn func(Changeset)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notify = fn
}

// ---------------------------------------------------------------------------
// Structural operations
// ---------------------------------------------------------------------------

// CreateDirectory adds an empty node.
func (e *Engine) CreateDirectory(parentPath, name string) error {
	e.metrics.countRequest("create_directory")
	parent, err := tree.ParsePath(parentPath)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.CreateDirectory(parent, name)
}

// CreateFile adds a literal attribute with an initial value. Formulas
// already referencing the new path recompute as part of this group.
func (e *Engine) CreateFile(parentPath, name, initial string) (Changeset, error) {
	e.metrics.countRequest("create_file")
	parent, err := tree.ParsePath(parentPath)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	slot := &tree.Slot{Kind: tree.SlotLiteral, Value: tree.StringValue(initial)}
	if err := e.tree.CreateAttr(parent, name, slot); err != nil {
		return nil, err
	}
	path, _ := parent.Child(name)
	id := e.deps.intern(path)
	cs := e.commit([]uint32{id}, []Change{{Path: path.String(), Value: initial}})
	return cs, nil
}

// CreateFormula compiles source, rejects cycles, installs the formula,
// and computes its initial value. Nothing mutates when any step fails.
func (e *Engine) CreateFormula(parentPath, name, source string) (Changeset, error) {
	e.metrics.countRequest("create_formula")
	parent, err := tree.ParsePath(parentPath)
	if err != nil {
		return nil, err
	}
	prog, err := formula.Compile(source, parent)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	path, err := parent.Child(name)
	if err != nil {
		return nil, err
	}
	fid := e.deps.intern(path)
	inputs := make([]uint32, 0, len(prog.Dependencies()))
	for _, dep := range prog.Dependencies() {
		inputs = append(inputs, e.deps.intern(dep))
	}
	if e.deps.wouldCycle(fid, inputs) {
		return nil, fmt.Errorf("%w: %s", ErrCyclicDependency, path)
	}

	slot := &tree.Slot{Kind: tree.SlotFormula, Source: source}
	if err := e.tree.CreateAttr(parent, name, slot); err != nil {
		return nil, err
	}
	e.deps.install(fid, inputs)
	e.programs[fid] = prog

	slot.Value = e.evalFormula(prog)
	cs := e.commit([]uint32{fid}, []Change{{Path: path.String(), Value: slot.Value.String()}})
	return cs, nil
}

// RemoveNode removes a child directory (which must be empty) or an
// attribute. Formulas that referenced the removed path recompute in the
// same group and see it as absent.
func (e *Engine) RemoveNode(parentPath, name string) (Changeset, error) {
	e.metrics.countRequest("remove_node")
	parent, err := tree.ParsePath(parentPath)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	removed, err := e.tree.RemoveNode(parent, name)
	if err != nil {
		return nil, err
	}
	if id, ok := e.deps.lookup(removed); ok {
		if _, isFormula := e.programs[id]; isFormula {
			e.deps.remove(id)
			delete(e.programs, id)
		}
		return e.commit([]uint32{id}, nil), nil
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func (e *Engine) ListDirectory(path string) ([]string, error) {
	e.metrics.countRequest("list_directory")
	p, err := tree.ParsePath(path)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree.ListDirectory(p)
}

func (e *Engine) GetFile(path string) (string, error) {
	e.metrics.countRequest("get_file")
	p, err := tree.ParsePath(path)
	if err != nil {
		return "", err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, err := e.tree.GetValue(p)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func (e *Engine) GetMatchingFiles(glob string) ([]Change, error) {
	e.metrics.countRequest("get_matching_files")
	g, err := tree.ParseGlob(glob)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	matches := e.tree.FindMatching(g)
	out := make([]Change, 0, len(matches))
	for _, m := range matches {
		out = append(out, Change{Path: m.Path.String(), Value: m.Slot.Value.String()})
	}
	return out, nil
}

// Query runs an attribute-selector expression (JSONPath over the node
// projection) and returns whole matched nodes.
func (e *Engine) Query(selector string) ([]tree.QueryResult, error) {
	e.metrics.countRequest("query")
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree.QueryNodes(selector)
}

// ---------------------------------------------------------------------------
// Literal writes
// ---------------------------------------------------------------------------

// SetFile writes one literal. Writing the currently stored value
// commits an empty changeset and triggers no recompute or broadcast.
func (e *Engine) SetFile(path, value string) (Changeset, error) {
	e.metrics.countRequest("set_file")
	p, err := tree.ParsePath(path)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	changed, err := e.tree.SetLiteral(p, tree.StringValue(value))
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	id := e.deps.intern(p)
	return e.commit([]uint32{id}, []Change{{Path: p.String(), Value: value}}), nil
}

// SetMatchingFiles writes one value to every leaf matched by glob as a
// single query group: the whole group is validated before any leaf
// mutates, and the affected closure recomputes exactly once.
func (e *Engine) SetMatchingFiles(glob, value string) (Changeset, error) {
	e.metrics.countRequest("set_matching_files")
	g, err := tree.ParseGlob(glob)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	matches := e.tree.FindMatching(g)
	for _, m := range matches {
		if m.Slot.Kind == tree.SlotFormula {
			return nil, fmt.Errorf("%w: %s", tree.ErrReadOnly, m.Path)
		}
	}

	val := tree.StringValue(value)
	var seeds []uint32
	var changes []Change
	for _, m := range matches {
		changed, err := e.tree.SetLiteral(m.Path, val)
		if err != nil {
			return nil, err
		}
		if changed {
			seeds = append(seeds, e.deps.intern(m.Path))
			changes = append(changes, Change{Path: m.Path.String(), Value: value})
		}
	}
	if len(seeds) == 0 {
		return nil, nil
	}
	return e.commit(seeds, changes), nil
}

// ---------------------------------------------------------------------------
// Recompute
// ---------------------------------------------------------------------------

// commit finishes a query group: recompute the affected closure of the
// seed paths in topological order, fold formula changes into the
// changeset, and hand the result to the broadcast hook. Called with the
// write lock held.
func (e *Engine) commit(seeds []uint32, changes []Change) Changeset {
	affected := e.deps.closure(seeds)
	if !affected.IsEmpty() {
		e.metrics.countPass()
		order := e.deps.topoOrder(affected)
		if len(order) != int(affected.GetCardinality()) {
			// A corrupted graph aborts this recompute but never the
			// literal writes already applied.
			glog.Errorf("dependency graph inconsistency: ordered %d of %d affected formulas",
				len(order), affected.GetCardinality())
		}
		for _, fid := range order {
			prog, ok := e.programs[fid]
			if !ok {
				continue
			}
			path, err := tree.ParsePath(e.deps.pathOf(fid))
			if err != nil {
				continue
			}
			slot, err := e.tree.Slot(path)
			if err != nil {
				// The formula's node went away mid-group (removal seed);
				// nothing to update.
				continue
			}
			newVal := e.evalFormula(prog)
			e.metrics.countEval(newVal.IsError())
			if slot.Value.Equal(newVal) {
				continue
			}
			slot.Value = newVal
			changes = append(changes, Change{Path: path.String(), Value: newVal.String()})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	e.metrics.observeChangeset(len(changes))
	if len(changes) > 0 {
		glog.V(2).Infof("committed query group: %d paths touched", len(changes))
		if e.notify != nil {
			e.notify(Changeset(changes))
		}
	}
	return changes
}

func (e *Engine) evalFormula(prog *formula.Program) tree.Value {
	ctx := &formula.Context{
		Get: func(p tree.Path) (tree.Value, bool) {
			v, err := e.tree.GetValue(p)
			if err != nil {
				return tree.Value{}, false
			}
			return v, true
		},
	}
	return prog.Eval(ctx)
}
