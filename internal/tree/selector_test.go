package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryNodesByNameAndAttr(t *testing.T) {
	tr := buildHouse(t)
	require.NoError(t, tr.CreateDirectory(MustPath("/room/kitchen"), "motion"))
	require.NoError(t, tr.CreateAttr(MustPath("/room/kitchen/motion"), "state",
		&Slot{Kind: SlotLiteral, Value: StringValue("on")}))
	require.NoError(t, tr.CreateDirectory(MustPath("/room/bedroom"), "motion"))
	require.NoError(t, tr.CreateAttr(MustPath("/room/bedroom/motion"), "state",
		&Slot{Kind: SlotLiteral, Value: StringValue("off")}))

	got, err := tr.QueryNodes(`$..[?(@._name == 'motion' && @.state == 'on')]`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/room/kitchen/motion", got[0].Path)
	assert.Equal(t, map[string]string{"state": "on"}, got[0].Attrs)
}

func TestQueryNodesBadSelector(t *testing.T) {
	tr := buildHouse(t)
	_, err := tr.QueryNodes("$[?(")
	assert.Error(t, err)
}

func TestQueryNodesSkipsBareAttributes(t *testing.T) {
	tr := buildHouse(t)
	// Selects the attribute string itself, not a node map.
	got, err := tr.QueryNodes(`$.room.bedroom.switch`)
	require.NoError(t, err)
	assert.Empty(t, got)
}
