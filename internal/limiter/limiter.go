// Package limiter defines interfaces and implementations for sync trigger rate limiting
// and outbound vendor throttling.
package limiter

import (
	"context"
	"time"
)

// Limiter controls how often a keyed action may run.
type Limiter interface {
	// Allow records an attempt and reports whether it is allowed, with an optional retry-after.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	// Reset forgets all state for key.
	Reset(ctx context.Context, key string) error
}

// Throttle paces outbound calls; Wait blocks until a call for key may proceed.
type Throttle interface {
	Wait(ctx context.Context, key string) error
}

// SyncKey builds the limiter key for sync triggers of one source by one user.
func SyncKey(userID, sourceID string) string {
	return "sync:" + userID + ":" + sourceID
}
