package transport

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// AcceptGuard applies a per-client token bucket in front of the handler, so
// a single client hammering the port cannot monopolize connection slots or
// burn directory sessions. This is connection-rate shaping only; the daily
// quota is enforced separately by the quota store.
//
// Limiter state lives in an LRU-bounded table: an address not seen recently
// simply gets a fresh bucket, which errs on the side of admitting.
type AcceptGuard struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	rps      rate.Limit
	burst    int
}

// NewAcceptGuard creates a guard allowing rps connections per second with
// the given burst, tracking at most size distinct client addresses.
func NewAcceptGuard(rps float64, burst, size int) (*AcceptGuard, error) {
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	return &AcceptGuard{
		limiters: cache,
		rps:      rate.Limit(rps),
		burst:    burst,
	}, nil
}

// Allow reports whether a connection from clientIP may proceed.
func (g *AcceptGuard) Allow(clientIP string) bool {
	g.mu.Lock()
	lim, ok := g.limiters.Get(clientIP)
	if !ok {
		lim = rate.NewLimiter(g.rps, g.burst)
		g.limiters.Add(clientIP, lim)
	}
	g.mu.Unlock()

	return lim.Allow()
}
