package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter: fixed window in-process, para desarrollo o despliegues de
// una sola réplica (mismo algoritmo que RedisLimiter, por key y ventana).
type MemoryLimiter struct {
	mu     sync.Mutex
	hits   map[string]*window
	max    int64
	window time.Duration
}

type window struct {
	start time.Time
	count int64
}

func NewMemoryLimiter(max int, win time.Duration) *MemoryLimiter {
	return &MemoryLimiter{hits: make(map[string]*window), max: int64(max), window: win}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	start := now.Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.hits[key]
	if w == nil || !w.start.Equal(start) {
		w = &window{start: start}
		l.hits[key] = w
	}
	w.count++

	res := Result{
		Allowed:   w.count <= l.max,
		Remaining: max64(l.max-w.count, 0),
	}
	if !res.Allowed {
		res.RetryAfter = start.Add(l.window).Sub(now)
	}

	// poda oportunista de ventanas viejas
	if len(l.hits) > 4096 {
		for k, old := range l.hits {
			if !old.start.Equal(start) {
				delete(l.hits, k)
			}
		}
	}
	return res, nil
}
