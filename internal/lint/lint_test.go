package lint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthgrid/hearth/internal/layout"
)

func TestCleanLayout(t *testing.T) {
	l := &layout.Layout{Rooms: []layout.Room{{
		Name:  "bedroom",
		Files: []layout.File{{Name: "switch", Value: "off"}},
		Formulas: []layout.Formula{
			{Name: "lit", Source: `./switch == "on"`},
		},
		Rooms: []layout.Room{{
			Name:     "closet",
			Files:    []layout.File{{Name: "raw"}},
			Formulas: []layout.Formula{{Name: "state", Source: `./raw :: "dark"`}},
		}},
	}}}
	assert.Empty(t, Layout(l))
}

func TestBadFormula(t *testing.T) {
	l := &layout.Layout{Rooms: []layout.Room{{
		Name:     "bedroom",
		Formulas: []layout.Formula{{Name: "lit", Source: `./switch ==`}},
	}}}
	diags := Layout(l)
	require.Len(t, diags, 1)
	assert.Equal(t, "/bedroom/lit", diags[0].Path)
}

func TestBadName(t *testing.T) {
	l := &layout.Layout{Rooms: []layout.Room{{
		Name:  "bedroom",
		Files: []layout.File{{Name: "with space"}},
	}}}
	diags := Layout(l)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Path, "with space")
}

func TestDuplicateName(t *testing.T) {
	l := &layout.Layout{Rooms: []layout.Room{{
		Name: "bedroom",
		Files: []layout.File{
			{Name: "switch"},
			{Name: "switch"},
		},
	}}}
	diags := Layout(l)
	require.Len(t, diags, 1)
	assert.Equal(t, "duplicate name in directory", diags[0].Message)
}
