package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter: fixed window en memoria, para despliegues de una sola
// instancia con cache memory. Mismo algoritmo que el RedisLimiter.
type MemoryLimiter struct {
	mu     sync.Mutex
	hits   map[string]int64
	start  time.Time
	max    int64
	window time.Duration
}

// NewMemoryLimiter creates the limiter.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		hits:   make(map[string]int64),
		start:  time.Now().UTC().Truncate(window),
		max:    int64(max),
		window: window,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Rotación de ventana: descartamos todos los contadores de la anterior.
	winStart := now.Truncate(l.window)
	if !winStart.Equal(l.start) {
		l.hits = make(map[string]int64)
		l.start = winStart
	}

	l.hits[key]++
	hits := l.hits[key]

	remaining := l.max - hits
	if remaining < 0 {
		remaining = 0
	}
	ttl := l.window - now.Sub(winStart)

	res := Result{
		Allowed:     hits <= l.max,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}
