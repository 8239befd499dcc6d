package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Memory is an in-process token bucket per key. It serves both as a Limiter and as a Throttle.
type Memory struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

var (
	_ Limiter  = (*Memory)(nil)
	_ Throttle = (*Memory)(nil)
)

// NewMemory returns a limiter allowing rps events per second with the given burst.
// A non-positive rps disables limiting.
func NewMemory(rps float64, burst int) *Memory {
	lim := rate.Limit(rps)
	if rps <= 0 {
		lim = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Memory{limit: lim, burst: burst, buckets: make(map[string]*rate.Limiter)}
}

func (m *Memory) bucket(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[key]
	if !ok {
		b = rate.NewLimiter(m.limit, m.burst)
		m.buckets[key] = b
	}
	return b
}

// Allow takes a token without waiting.
func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	r := m.bucket(key).Reserve()
	if !r.OK() {
		return false, 0, nil
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return false, d, nil
	}
	return true, 0, nil
}

// Wait blocks until a token for key is available or ctx is done.
func (m *Memory) Wait(ctx context.Context, key string) error {
	return m.bucket(key).Wait(ctx)
}

// Reset drops the bucket of key.
func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.buckets, key)
	m.mu.Unlock()
	return nil
}

// ResetAll drops every bucket.
func (m *Memory) ResetAll() {
	m.mu.Lock()
	m.buckets = make(map[string]*rate.Limiter)
	m.mu.Unlock()
}
