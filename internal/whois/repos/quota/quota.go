// Package quota defines the persistent per-client daily query counter
// consulted once per connection before any directory work happens.
package quota

import (
	"context"
	"time"
)

// Store is the contract the query handler requires from a quota backend.
//
// CheckAndIncrement atomically bumps the counter for (day, clientKey) and
// returns the post-increment count; the first query of a day returns 1.
// The read-modify-write must be linearizable per key so concurrent queries
// from the same client never lose an increment. A backend failure is
// returned to the caller, never swallowed: an unreachable store must not
// silently grant unlimited queries.
type Store interface {
	CheckAndIncrement(ctx context.Context, clientKey, day string) (int64, error)
	Close() error
}

// DayKey formats t as the calendar day that partitions counters.
// Day boundaries are fixed to UTC.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
