package clients

import (
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicy_NormalizesConfigToBoundRetries(t *testing.T) {
	cfg := HTTPExecutorConfig{
		MaxRetries: -3,
		BaseDelay:  0,
		MaxDelay:   0,
	}
	policy := NewHTTPRetryPolicy(cfg)

	var attempts int32
	_, err := failsafe.With(policy).Get(func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("network partition")
	})
	if err == nil {
		t.Fatal("expected request to fail")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected bounded single attempt with negative retries, got %d", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicy_RetriesUpToConfiguredLimit(t *testing.T) {
	cfg := HTTPExecutorConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		ShouldRetry: func(_ *http.Response, err error) bool {
			return err != nil
		},
	}
	policy := NewHTTPRetryPolicy(cfg)

	var attempts int32
	_, err := failsafe.With(policy).Get(func() (*http.Response, error) {
		count := atomic.AddInt32(&attempts, 1)
		if count < 3 {
			return nil, errors.New("dns lag")
		}
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected exactly 3 attempts (1 + 2 retries), got %d", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestDefaultShouldRetry(t *testing.T) {
	if !DefaultShouldRetry(nil, errors.New("conn refused")) {
		t.Fatal("expected network error to be retryable")
	}
	if !DefaultShouldRetry(&http.Response{StatusCode: http.StatusServiceUnavailable}, nil) {
		t.Fatal("expected 503 to be retryable")
	}
	if !DefaultShouldRetry(&http.Response{StatusCode: http.StatusTooManyRequests}, nil) {
		t.Fatal("expected 429 to be retryable")
	}
	if DefaultShouldRetry(&http.Response{StatusCode: http.StatusNotFound}, nil) {
		t.Fatal("expected 404 to be non-retryable")
	}
}

//nolint:bodyclose // test responses have no body
func TestHTTPExecutorBreakerOpensAfterFailures(t *testing.T) {
	executor := NewHTTPExecutor(HTTPExecutorConfig{
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		CircuitBreaker: &CircuitBreakerConfig{
			Name:         "upstream",
			MinRequests:  2,
			FailureRatio: 0.5,
			Timeout:      time.Minute,
		},
	})

	var attempts int32
	// 1 failure of the last 2 trips the breaker.
	_, _ = executor.Get(func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return &http.Response{StatusCode: http.StatusBadGateway}, nil
	})

	_, err := executor.Get(func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected the rejected call to skip the request, got %d attempts", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestHTTPExecutorBreakerIgnoresClientErrors(t *testing.T) {
	executor := NewHTTPExecutor(HTTPExecutorConfig{
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		CircuitBreaker: &CircuitBreakerConfig{
			Name:         "upstream",
			MinRequests:  2,
			FailureRatio: 0.5,
			Timeout:      time.Minute,
		},
	})

	var attempts int32
	for i := 0; i < 4; i++ {
		_, err := executor.Get(func() (*http.Response, error) {
			atomic.AddInt32(&attempts, 1)
			return &http.Response{StatusCode: http.StatusNotFound}, nil
		})
		if err != nil {
			t.Fatalf("404s must not trip the breaker: %v", err)
		}
	}
	if got := atomic.LoadInt32(&attempts); got != 4 {
		t.Fatalf("expected every call to reach the upstream, got %d attempts", got)
	}
}
