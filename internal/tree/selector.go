package tree

import (
	"fmt"
	"sort"

	"github.com/ohler55/ojg/jp"
)

// Query-style reads use a JSONPath selector over a generic projection
// of the tree, independent of the subscription glob syntax. Each node
// projects to a map holding its attributes as string values plus two
// reserved keys:
//
//	_name  the node's own segment name
//	_path  the node's absolute path
//
// Child nodes nest under their names, so a selector such as
//
//	$..[?(@._name == 'motion' && @.state == 'on')]
//
// selects every node named "motion" whose state attribute is "on".

// QueryResult is one node matched by a selector.
type QueryResult struct {
	Path  string
	Attrs map[string]string
}

// QueryNodes evaluates a JSONPath selector against the tree and returns
// the matched nodes in path order.
func (t *Tree) QueryNodes(selector string) ([]QueryResult, error) {
	expr, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrBadSelector, selector, err)
	}
	projected := t.project(Root, t.root)
	var out []QueryResult
	for _, raw := range expr.Get(projected) {
		m, ok := raw.(map[string]any)
		if !ok {
			// Selector landed on a bare attribute; ignore, queries
			// return whole nodes.
			continue
		}
		path, ok := m["_path"].(string)
		if !ok {
			continue
		}
		attrs := make(map[string]string)
		for k, v := range m {
			if s, ok := v.(string); ok && k != "_path" && k != "_name" {
				attrs[k] = s
			}
		}
		out = append(out, QueryResult{Path: path, Attrs: attrs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (t *Tree) project(p Path, n *Node) map[string]any {
	m := make(map[string]any, len(n.Attrs)+len(n.Children)+2)
	m["_name"] = p.Base()
	m["_path"] = p.String()
	for name, slot := range n.Attrs {
		m[name] = slot.Value.String()
	}
	for name, child := range n.Children {
		cp, err := p.Child(name)
		if err != nil {
			continue
		}
		m[name] = t.project(cp, child)
	}
	return m
}
