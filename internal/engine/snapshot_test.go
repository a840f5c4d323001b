package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	store, err := OpenSnapshotStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSnapshotRowsOrder(t *testing.T) {
	e := newHouse(t)
	_, err := e.CreateFormula("/room/bedroom", "color",
		`if ./switch == "on" then "#ffd7aa" else "#000000"`)
	require.NoError(t, err)

	rows := e.SnapshotRows()

	// Parents come before children so a replay through the normal
	// create path always finds the parent directory.
	byPath := map[string]int{}
	for i, row := range rows {
		byPath[row.Path] = i
	}
	assert.Less(t, byPath["/room"], byPath["/room/bedroom"])
	assert.Less(t, byPath["/room/bedroom"], byPath["/room/bedroom/switch"])

	kinds := map[string]string{}
	for _, row := range rows {
		kinds[row.Path] = row.Kind
	}
	assert.Equal(t, "dir", kinds["/room"])
	assert.Equal(t, "file", kinds["/room/bedroom/switch"])
	assert.Equal(t, "formula", kinds["/room/bedroom/color"])
}

func TestSnapshotRoundTrip(t *testing.T) {
	e := newHouse(t)
	_, err := e.CreateFormula("/room/bedroom", "color",
		`if ./switch == "on" then "#ffd7aa" else "#000000"`)
	require.NoError(t, err)

	store := openTestStore(t)
	require.NoError(t, store.Save(e.SnapshotRows()))

	rows, err := store.Load()
	require.NoError(t, err)

	restored := New()
	require.NoError(t, restored.Restore(rows))

	value, err := restored.GetFile("/room/bedroom/switch")
	require.NoError(t, err)
	assert.Equal(t, "on", value)

	// The formula re-installed and recomputed from its source.
	color, err := restored.GetFile("/room/bedroom/color")
	require.NoError(t, err)
	assert.Equal(t, "#ffd7aa", color)
}

func TestRestoreKeepsCascadeLive(t *testing.T) {
	e := newHouse(t)
	_, err := e.CreateFormula("/room/bedroom", "lit", `./switch == "on"`)
	require.NoError(t, err)

	store := openTestStore(t)
	require.NoError(t, store.Save(e.SnapshotRows()))
	rows, err := store.Load()
	require.NoError(t, err)

	restored := New()
	require.NoError(t, restored.Restore(rows))

	// Dependency edges survive the replay: a write after restore
	// still cascades into the formula.
	cs, err := restored.SetFile("/room/bedroom/switch", "off")
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"/room/bedroom/lit", "/room/bedroom/switch"},
		changedPaths(cs))

	lit, err := restored.GetFile("/room/bedroom/lit")
	require.NoError(t, err)
	assert.Equal(t, "false", lit)
}

func TestSaveReplacesPreviousImage(t *testing.T) {
	store := openTestStore(t)

	e := newHouse(t)
	require.NoError(t, store.Save(e.SnapshotRows()))

	_, err := e.CreateFile("/room/bedroom", "brightness", "80")
	require.NoError(t, err)
	require.NoError(t, store.Save(e.SnapshotRows()))

	rows, err := store.Load()
	require.NoError(t, err)

	// One image, not an accumulation of both saves.
	seen := map[string]int{}
	for _, row := range rows {
		seen[row.Path]++
	}
	assert.Equal(t, 1, seen["/room/bedroom/switch"])
	assert.Equal(t, 1, seen["/room/bedroom/brightness"])
}

func TestRunPeriodicFinalSaveBeforeReturn(t *testing.T) {
	store := openTestStore(t)
	e := newHouse(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.RunPeriodic(ctx, e, time.Hour)
	}()

	// A change made after the last tick must still reach disk via the
	// shutdown save that runs before RunPeriodic returns.
	_, err := e.CreateFile("/room/bedroom", "brightness", "80")
	require.NoError(t, err)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunPeriodic did not return after cancel")
	}

	rows, err := store.Load()
	require.NoError(t, err)
	paths := map[string]bool{}
	for _, row := range rows {
		paths[row.Path] = true
	}
	assert.True(t, paths["/room/bedroom/brightness"])
}

func TestRestoreRejectsMalformedRows(t *testing.T) {
	err := New().Restore([]SnapshotRow{{Path: "not-absolute", Kind: "file"}})
	require.Error(t, err)

	err = New().Restore([]SnapshotRow{{Path: "/room", Kind: "symlink"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestRestoreSkipsBrokenFormula(t *testing.T) {
	restored := New()
	err := restored.Restore([]SnapshotRow{
		{Path: "/room", Kind: "dir"},
		{Path: "/room/switch", Kind: "file", Value: "on"},
		{Path: "/room/broken", Kind: "formula", Source: "./switch =="},
	})
	require.NoError(t, err)

	// The bad formula is dropped; everything else restores.
	value, err := restored.GetFile("/room/switch")
	require.NoError(t, err)
	assert.Equal(t, "on", value)
	_, err = restored.GetFile("/room/broken")
	require.Error(t, err)
}
