package recovery

import (
	"math"
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// MaxRetries bounds automatic retries per step. It counts retries, not total
// attempts: a step is retried while attempt <= MaxRetries, so a persistently
// failing step is tried MaxRetries+1 times before the run halts.
const MaxRetries = 3

// DefaultBackoffBase is the delay before the first retry.
const DefaultBackoffBase = time.Second

// RetryStrategy decides whether and when a failed step attempt is retried.
type RetryStrategy interface {
	// Delay returns the sleep before the retry following the given
	// 1-based failed attempt.
	Delay(attempt int) time.Duration

	// ShouldRetry reports whether the given failed attempt warrants
	// another try.
	ShouldRetry(kind domain.ErrorKind, attempt int) bool
}

// ExponentialBackoff doubles the delay on every attempt: Base, 2*Base,
// 4*Base, ...
type ExponentialBackoff struct {
	Base       time.Duration
	MaxRetries int
}

// DefaultBackoff returns the production policy: 1s, 2s, 4s with 3 retries.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:       DefaultBackoffBase,
		MaxRetries: MaxRetries,
	}
}

// Delay computes Base * 2^(attempt-1). Attempts below 1 are treated as 1.
func (s *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(s.Base) * math.Pow(2, float64(attempt-1)))
}

// ShouldRetry is true for retryable kinds while attempt <= MaxRetries.
func (s *ExponentialBackoff) ShouldRetry(kind domain.ErrorKind, attempt int) bool {
	if !IsRetryable(kind) {
		return false
	}
	return attempt <= s.MaxRetries
}
