package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter: fixed window en memoria, mismo algoritmo que RedisLimiter.
// Para single-node y tests; los contadores viejos se purgan lazy.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	mu   sync.Mutex
	hits map[string]*windowCounter
}

type windowCounter struct {
	start time.Time
	count int64
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:    int64(max),
		Window: window,
		hits:   make(map[string]*windowCounter),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	wc, ok := l.hits[key]
	if !ok || wc.start.Before(winStart) {
		wc = &windowCounter{start: winStart}
		l.hits[key] = wc
	}
	wc.count++

	// purge oportunista para no crecer sin límite
	if len(l.hits) > 4096 {
		for k, v := range l.hits {
			if v.start.Before(winStart) {
				delete(l.hits, k)
			}
		}
	}

	remaining := l.Max - wc.count
	if remaining < 0 {
		remaining = 0
	}
	res := Result{Allowed: wc.count <= l.Max, Remaining: remaining}
	if !res.Allowed {
		res.RetryAfter = winStart.Add(l.Window).Sub(now)
	}
	return res, nil
}
