package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opennic/whoisd/internal/whois/repos/quota"
)

// redisStore implements quota.Store on a Redis counter per (day, clientKey).
// INCR is atomic server-side, which satisfies the linearizable
// read-modify-write the quota contract requires. Keys carry a TTL so stale
// days age out without an external retention job.
type redisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type Option func(*redisStore)

// WithPrefix overrides the key namespace (default "whois:quota").
func WithPrefix(prefix string) Option {
	return func(s *redisStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

// WithTTL overrides how long a day's counters are retained.
func WithTTL(d time.Duration) Option {
	return func(s *redisStore) { s.ttl = d }
}

// New wraps an existing Redis client as a quota store.
func New(rdb *redis.Client, opts ...Option) quota.Store {
	s := &redisStore{
		rdb:    rdb,
		prefix: "whois:quota",
		ttl:    48 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *redisStore) CheckAndIncrement(ctx context.Context, clientKey, day string) (int64, error) {
	key := s.prefix + ":" + day + ":" + clientKey

	pipe := s.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *redisStore) Close() error { return s.rdb.Close() }
