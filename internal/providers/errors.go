package providers

import (
	"errors"
	"fmt"
	"time"
)

// Failure marks an upstream call that could not produce a result: transport
// errors, auth rejections, malformed responses. It is recovered by the
// aggregator, never propagated to callers.
type Failure struct {
	Provider   string
	Capability Capability
	Err        error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", f.Provider, f.Capability, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// RateLimitError reports an exhausted fixed-window quota. It is a Failure
// subtype for classification purposes.
type RateLimitError struct {
	Provider string
	Limit    int
	Window   time.Duration
	ResetAt  time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider %s: rate limit %d/%s exhausted, resets at %s",
		e.Provider, e.Limit, e.Window, e.ResetAt.Format(time.RFC3339))
}

// TimeoutError reports a provider call abandoned at its deadline.
type TimeoutError struct {
	Provider   string
	Capability Capability
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %s: %s timed out after %s", e.Provider, e.Capability, e.Timeout)
}

// IsRateLimit reports whether err is, or wraps, a RateLimitError.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
