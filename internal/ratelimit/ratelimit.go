// Package ratelimit implements a per-key fixed-window request limiter backed
// by an expiring in-memory cache.
package ratelimit

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Defaults for chat requests.
const (
	DefaultLimit  = 20
	DefaultWindow = 60 * time.Second
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

type window struct {
	count     int
	expiresAt time.Time
}

// Limiter allows at most limit calls per key within each window. A window
// opens on the first call for a key. Safe for concurrent use.
type Limiter struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	cache   *ttlcache.Cache[string, *window]
	nowFunc func() time.Time
}

// New creates a Limiter. Non-positive values fall back to the defaults.
// Call Stop to release the cleanup goroutine.
func New(limit int, win time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if win <= 0 {
		win = DefaultWindow
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, *window](win),
		ttlcache.WithDisableTouchOnHit[string, *window](),
	)
	go cache.Start()

	return &Limiter{
		limit:   limit,
		window:  win,
		cache:   cache,
		nowFunc: time.Now,
	}
}

// Allow records a call for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()

	if item := l.cache.Get(key); item != nil {
		w := item.Value()
		if now.Before(w.expiresAt) {
			if w.count >= l.limit {
				return Decision{Allowed: false, Remaining: 0, Reset: w.expiresAt}
			}

			w.count++

			return Decision{Allowed: true, Remaining: l.limit - w.count, Reset: w.expiresAt}
		}
	}

	w := &window{count: 1, expiresAt: now.Add(l.window)}
	l.cache.Set(key, w, l.window)

	return Decision{Allowed: true, Remaining: l.limit - 1, Reset: w.expiresAt}
}

// Stop halts background expiry.
func (l *Limiter) Stop() {
	l.cache.Stop()
}
