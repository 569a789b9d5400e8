package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/adminrag/internal/vectorstore"
)

type countingRebuilder struct {
	calls atomic.Int32
}

func (c *countingRebuilder) Rebuild(context.Context) (IngestStats, error) {
	c.calls.Add(1)
	return IngestStats{KnowledgeSources: 1}, nil
}

func TestWatcher_DebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	ing := &countingRebuilder{}
	w := NewWatcher(dir, ing, 100*time.Millisecond, nil)

	done := make(chan IngestStats, 4)
	w.OnIngest = func(s IngestStats, err error) {
		assert.NoError(t, err)
		done <- s
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "rule.txt"), []byte{byte('a' + i)}, 0o600))
	}

	select {
	case s := <-done:
		assert.Equal(t, 1, s.KnowledgeSources)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not rebuild")
	}

	cancel()
	require.NoError(t, <-errCh)
	assert.GreaterOrEqual(t, ing.calls.Load(), int32(1))
}

func TestWatcher_MissingDir(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing"), &countingRebuilder{}, 0, nil)
	assert.Error(t, w.Run(context.Background()))
}

func TestWatcher_DeletedSourceLeavesIndex(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "old-rule.txt")
	writeFile(t, stale, "boleto rules that were withdrawn last month")
	writeFile(t, filepath.Join(dir, "cpf.txt"), "payer cpf is printed in the pagador block")

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: t.TempDir(), Collection: "kb"}, vectorstore.NewTestEmbedder(), nil)
	require.NoError(t, err)
	svc, err := NewService(store, defaultOptions(dir), nil)
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background())
	require.NoError(t, err)

	w := NewWatcher(dir, svc, 100*time.Millisecond, nil)
	done := make(chan IngestStats, 4)
	w.OnIngest = func(s IngestStats, err error) {
		assert.NoError(t, err)
		done <- s
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.Remove(stale))

	select {
	case s := <-done:
		assert.Equal(t, IngestStats{KnowledgeSources: 1, KnowledgeChunks: 1}, s)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not rebuild")
	}
	cancel()
	require.NoError(t, <-errCh)

	hits, err := svc.Retrieve(context.Background(), "withdrawn boleto rules", 4)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, filepath.Join(dir, "cpf.txt"), hits[0].Source)
}
