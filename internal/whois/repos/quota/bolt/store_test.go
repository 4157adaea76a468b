package bolt

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) interface {
	CheckAndIncrement(ctx context.Context, clientKey, day string) (int64, error)
	Close() error
} {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCheckAndIncrement_Sequential(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		n, err := s.CheckAndIncrement(ctx, "192.0.2.10", "2025-08-01")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
}

func TestCheckAndIncrement_KeysAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.CheckAndIncrement(ctx, "192.0.2.10", "2025-08-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// different client, same day
	n, err = s.CheckAndIncrement(ctx, "192.0.2.20", "2025-08-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// same client, next day
	n, err = s.CheckAndIncrement(ctx, "192.0.2.10", "2025-08-02")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// original (day, client) pair keeps its own count
	n, err = s.CheckAndIncrement(ctx, "192.0.2.10", "2025-08-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCheckAndIncrement_ConcurrentSameKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := s.CheckAndIncrement(ctx, "192.0.2.10", "2025-08-01"); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent increment failed: %v", err)
	}

	// No lost updates: the next increment lands on exactly workers*perWorker.
	n, err := s.CheckAndIncrement(ctx, "192.0.2.10", "2025-08-01")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker+1), n)
}

func TestCheckAndIncrement_CancelledContext(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CheckAndIncrement(ctx, "192.0.2.10", "2025-08-01")
	assert.Error(t, err)

	// The cancelled attempt must not have half-applied an increment.
	n, err := s.CheckAndIncrement(context.Background(), "192.0.2.10", "2025-08-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCheckAndIncrement_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota.db")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	_, err = s.CheckAndIncrement(ctx, "192.0.2.10", "2025-08-01")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	n, err := s.CheckAndIncrement(ctx, "192.0.2.10", "2025-08-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
