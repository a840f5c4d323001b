package tree

import (
	"fmt"
	"sort"
)

// SlotKind distinguishes stored values from derived ones.
type SlotKind uint8

const (
	// SlotLiteral holds a client-written value.
	SlotLiteral SlotKind = iota
	// SlotFormula holds a compiled expression's cached result. Only the
	// reactive engine may update it; direct writes fail ErrReadOnly.
	SlotFormula
)

// Slot is one attribute on a node: either a literal value or a
// formula's source text plus its cached result. The compiled program is
// kept by the engine, keyed by interned path id, so this package stays
// free of the formula language.
type Slot struct {
	Kind   SlotKind
	Value  Value
	Source string
}

// Node is an interior element of the tree: a set of attribute slots and
// a set of child nodes. Attribute and child names share one namespace
// among siblings.
type Node struct {
	Attrs    map[string]*Slot
	Children map[string]*Node
}

func newNode() *Node {
	return &Node{
		Attrs:    make(map[string]*Slot),
		Children: make(map[string]*Node),
	}
}

// Tree owns the whole namespace. It is a plain data structure with no
// locking; the reactive engine serializes access.
type Tree struct {
	root *Node
}

func New() *Tree {
	return &Tree{root: newNode()}
}

// resolveNode walks every segment as a child node.
func (t *Tree) resolveNode(p Path) (*Node, error) {
	cur := t.root
	for _, seg := range p.Segments() {
		next, ok := cur.Children[seg]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		cur = next
	}
	return cur, nil
}

// Node returns the directory node at p.
func (t *Tree) Node(p Path) (*Node, error) {
	return t.resolveNode(p)
}

// Slot resolves p as parent-node + attribute name.
func (t *Tree) Slot(p Path) (*Slot, error) {
	if p.IsRoot() {
		return nil, fmt.Errorf("%w: root has no value", ErrNotFile)
	}
	parent, err := t.resolveNode(p.Parent())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	slot, ok := parent.Attrs[p.Base()]
	if !ok {
		if _, isDir := parent.Children[p.Base()]; isDir {
			return nil, fmt.Errorf("%w: %s", ErrNotFile, p)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return slot, nil
}

// HasPath reports whether p names an existing node or attribute.
func (t *Tree) HasPath(p Path) bool {
	if _, err := t.resolveNode(p); err == nil {
		return true
	}
	_, err := t.Slot(p)
	return err == nil
}

func (n *Node) checkNameFree(name string) error {
	if _, ok := n.Attrs[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	if _, ok := n.Children[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	return nil
}

// CreateDirectory adds an empty child node under parent.
func (t *Tree) CreateDirectory(parent Path, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	node, err := t.resolveNode(parent)
	if err != nil {
		return err
	}
	if err := node.checkNameFree(name); err != nil {
		return err
	}
	node.Children[name] = newNode()
	return nil
}

// CreateAttr installs a slot under parent. Used for both literal files
// and formulas; the caller builds the slot.
func (t *Tree) CreateAttr(parent Path, name string, slot *Slot) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	node, err := t.resolveNode(parent)
	if err != nil {
		return err
	}
	if err := node.checkNameFree(name); err != nil {
		return err
	}
	node.Attrs[name] = slot
	return nil
}

// RemoveNode removes the named child (which must be an empty directory)
// or attribute from parent. Removed paths are returned so the engine
// can drop dependency edges.
func (t *Tree) RemoveNode(parent Path, name string) (Path, error) {
	node, err := t.resolveNode(parent)
	if err != nil {
		return Path{}, err
	}
	removed, err := parent.Child(name)
	if err != nil {
		return Path{}, err
	}
	if child, ok := node.Children[name]; ok {
		if len(child.Children) != 0 || len(child.Attrs) != 0 {
			return Path{}, fmt.Errorf("%w: %s", ErrNotEmpty, removed)
		}
		delete(node.Children, name)
		return removed, nil
	}
	if _, ok := node.Attrs[name]; ok {
		delete(node.Attrs, name)
		return removed, nil
	}
	return Path{}, fmt.Errorf("%w: %s", ErrNotFound, removed)
}

// ListDirectory returns all child and attribute names at p,
// lexicographically sorted.
func (t *Tree) ListDirectory(p Path) ([]string, error) {
	node, err := t.resolveNode(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(node.Children)+len(node.Attrs))
	for name := range node.Children {
		names = append(names, name)
	}
	for name := range node.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GetValue reads the current value at p.
func (t *Tree) GetValue(p Path) (Value, error) {
	slot, err := t.Slot(p)
	if err != nil {
		return Value{}, err
	}
	return slot.Value, nil
}

// SetLiteral overwrites the literal at p and reports whether the stored
// value actually changed. Formula slots reject direct writes.
func (t *Tree) SetLiteral(p Path, v Value) (changed bool, err error) {
	slot, err := t.Slot(p)
	if err != nil {
		return false, err
	}
	if slot.Kind == SlotFormula {
		return false, fmt.Errorf("%w: %s", ErrReadOnly, p)
	}
	if slot.Value.Equal(v) {
		return false, nil
	}
	slot.Value = v
	return true, nil
}

// PathSlot pairs an attribute path with its slot.
type PathSlot struct {
	Path Path
	Slot *Slot
}

// FindMatching returns every attribute whose path matches glob, in
// lexicographic path order.
func (t *Tree) FindMatching(glob Glob) []PathSlot {
	var out []PathSlot
	t.walkAttrs(Root, t.root, func(p Path, s *Slot) {
		if glob.Matches(p) {
			out = append(out, PathSlot{Path: p, Slot: s})
		}
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path.String() < out[j].Path.String()
	})
	return out
}

func (t *Tree) walkAttrs(p Path, n *Node, fn func(Path, *Slot)) {
	for name, slot := range n.Attrs {
		child, err := p.Child(name)
		if err != nil {
			continue
		}
		fn(child, slot)
	}
	for name, node := range n.Children {
		child, err := p.Child(name)
		if err != nil {
			continue
		}
		t.walkAttrs(child, node, fn)
	}
}

// WalkAll visits every node and attribute, parents before children.
// Used by the snapshot store.
func (t *Tree) WalkAll(dir func(Path), attr func(Path, *Slot)) {
	t.walkAll(Root, t.root, dir, attr)
}

func (t *Tree) walkAll(p Path, n *Node, dir func(Path), attr func(Path, *Slot)) {
	// Deterministic order keeps snapshots byte-stable.
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	attrNames := make([]string, 0, len(n.Attrs))
	for name := range n.Attrs {
		attrNames = append(attrNames, name)
	}
	sort.Strings(attrNames)

	for _, name := range attrNames {
		child, _ := p.Child(name)
		attr(child, n.Attrs[name])
	}
	for _, name := range names {
		child, _ := p.Child(name)
		dir(child)
		t.walkAll(child, n.Children[name], dir, attr)
	}
}
