package memory

import (
	"context"
	"sync"

	"github.com/opennic/whoisd/internal/whois/repos/quota"
)

// memoryStore implements quota.Store with a mutex-guarded map. Counts do not
// survive a restart, so it is only suitable for tests and dev runs.
type memoryStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

// New returns an empty in-memory quota store.
func New() quota.Store {
	return &memoryStore{counts: make(map[string]int64)}
}

func (s *memoryStore) CheckAndIncrement(ctx context.Context, clientKey, day string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := day + "/" + clientKey
	s.counts[key]++
	return s.counts[key], nil
}

func (s *memoryStore) Close() error { return nil }
