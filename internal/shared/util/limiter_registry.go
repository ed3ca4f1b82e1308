package util

import (
	"sync"
	"time"
)

// LimiterRegistry manages a collection of limiters, one per remote host, so
// the registry API and the archive CDN are throttled independently.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     float64
	burst    int
	ttl      time.Duration
	lastGC   time.Time
}

type limiterEntry struct {
	limiter  *Limiter
	lastUsed time.Time
}

// NewLimiterRegistry creates a new registry.
// rate: tokens per second.
// burst: burst size.
// ttl: how long to keep a limiter in memory after its last use.
func NewLimiterRegistry(r float64, b int, ttl time.Duration) *LimiterRegistry {
	return &LimiterRegistry{
		limiters: make(map[string]*limiterEntry),
		rate:     r,
		burst:    b,
		ttl:      ttl,
		lastGC:   time.Now(),
	}
}

// Get returns the limiter for the given key (e.g., a host name).
func (r *LimiterRegistry) Get(key string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if r.ttl > 0 && now.Sub(r.lastGC) > r.ttl/2 {
		r.cleanupLocked(now)
	}

	entry, ok := r.limiters[key]
	if !ok {
		entry = &limiterEntry{
			limiter: NewLimiter(r.rate, r.burst),
		}
		r.limiters[key] = entry
	}
	entry.lastUsed = now
	return entry.limiter
}

func (r *LimiterRegistry) cleanupLocked(now time.Time) {
	r.lastGC = now
	for key, entry := range r.limiters {
		if now.Sub(entry.lastUsed) > r.ttl {
			delete(r.limiters, key)
		}
	}
}
