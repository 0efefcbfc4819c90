package providers

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window request counter. The window rolls over
// lazily when a call observes the boundary has passed; there is no timer
// goroutine. Safe for concurrent use by callers hitting the same provider.
type RateLimiter struct {
	mu          sync.Mutex
	provider    string
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int
	now         func() time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window.
// limit <= 0 disables limiting.
func NewRateLimiter(provider string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		provider: provider,
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow consumes one request from the current window. It returns a
// *RateLimitError once the window's quota is exhausted.
func (r *RateLimiter) Allow() error {
	if r == nil || r.limit <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.windowStart.IsZero() || now.Sub(r.windowStart) >= r.window {
		r.windowStart = now
		r.count = 0
	}

	if r.count >= r.limit {
		return &RateLimitError{
			Provider: r.provider,
			Limit:    r.limit,
			Window:   r.window,
			ResetAt:  r.windowStart.Add(r.window),
		}
	}

	r.count++
	return nil
}

// Remaining returns how many requests are left in the current window.
func (r *RateLimiter) Remaining() int {
	if r == nil || r.limit <= 0 {
		return -1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.windowStart.IsZero() || now.Sub(r.windowStart) >= r.window {
		return r.limit
	}
	return r.limit - r.count
}
