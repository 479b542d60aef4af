package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncedCallback(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base_active.csv")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(base, []byte("a\n"), 0o644))

	var mu sync.Mutex
	var calls [][]string
	w, err := New([]string{base}, 50*time.Millisecond, func(_ context.Context, paths []string) {
		mu.Lock()
		calls = append(calls, paths)
		mu.Unlock()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(base, []byte("a\nb\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	require.Len(t, calls, 1, "a burst of writes triggers a single callback")
	abs, _ := filepath.Abs(base)
	assert.Equal(t, []string{abs}, calls[0])
	mu.Unlock()

	cancel()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNewFailsOnMissingDirectory(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "absent", "base.csv")}, 0, func(context.Context, []string) {})
	assert.Error(t, err)
}
