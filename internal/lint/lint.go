// Package lint statically checks a house layout before it is applied:
// node names must be valid path segments and every formula must
// compile at the path it will live at.
package lint

import (
	"fmt"

	"github.com/hearthgrid/hearth/internal/formula"
	"github.com/hearthgrid/hearth/internal/layout"
	"github.com/hearthgrid/hearth/internal/tree"
)

type Diagnostic struct {
	Path    string
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Path, d.Message)
}

// Layout checks every room in l and returns one diagnostic per
// problem. An empty result means the layout is safe to apply.
func Layout(l *layout.Layout) []Diagnostic {
	var diags []Diagnostic
	seen := map[string]bool{}
	for _, room := range l.Rooms {
		diags = append(diags, lintRoom("/", room, seen)...)
	}
	return diags
}

func lintRoom(parent string, room layout.Room, seen map[string]bool) []Diagnostic {
	var diags []Diagnostic

	self, ok := checkName(parent, room.Name, seen, &diags)
	if !ok {
		return diags
	}

	for _, f := range room.Files {
		checkName(self, f.Name, seen, &diags)
	}
	for _, f := range room.Formulas {
		attr, ok := checkName(self, f.Name, seen, &diags)
		if !ok {
			continue
		}
		selfPath, err := tree.ParsePath(self)
		if err != nil {
			continue
		}
		if _, err := formula.Compile(f.Source, selfPath); err != nil {
			diags = append(diags, Diagnostic{Path: attr, Message: err.Error()})
		}
	}
	for _, sub := range room.Rooms {
		diags = append(diags, lintRoom(self, sub, seen)...)
	}
	return diags
}

// checkName validates one child name and flags duplicates within the
// shared directory namespace.
func checkName(parent, name string, seen map[string]bool, diags *[]Diagnostic) (string, bool) {
	full := childPath(parent, name)
	if _, err := tree.ParsePath(full); err != nil {
		*diags = append(*diags, Diagnostic{Path: full, Message: err.Error()})
		return full, false
	}
	if seen[full] {
		*diags = append(*diags, Diagnostic{Path: full, Message: "duplicate name in directory"})
		return full, false
	}
	seen[full] = true
	return full, true
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
