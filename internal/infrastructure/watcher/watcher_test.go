package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerLatestOpWins(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "b.md", Op: OpChanged})
	d.Add(Event{Path: "a.txt", Op: OpChanged})
	d.Add(Event{Path: "b.md", Op: OpRemoved})

	select {
	case batch := <-d.Output():
		assert.Equal(t, []Event{
			{Path: "a.txt", Op: OpChanged},
			{Path: "b.md", Op: OpRemoved},
		}, batch)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted")
	}
}

func TestDebouncerStopDropsPending(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Add(Event{Path: "a.txt", Op: OpChanged})
	d.Stop()
	d.Add(Event{Path: "b.txt", Op: OpChanged})

	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected batch %v", batch)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "changed", OpChanged.String())
	assert.Equal(t, "removed", OpRemoved.String())
	assert.Equal(t, "unknown", Op(0).String())
}

func TestWatcherReportsSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := New(30 * time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []Event, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(_ context.Context, batch []Event) { got <- batch })
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.bin"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.md"), []byte("x"), 0o644))
	note := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(note, []byte("# note"), 0o644))

	select {
	case batch := <-got:
		require.Len(t, batch, 1)
		assert.Equal(t, note, batch[0].Path)
		assert.Equal(t, OpChanged, batch[0].Op)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch emitted")
	}

	cancel()
	<-done
}

func TestHidden(t *testing.T) {
	assert.True(t, hidden(".git"))
	assert.False(t, hidden("."))
	assert.False(t, hidden("docs"))
}
