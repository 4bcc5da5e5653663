package recovery

import (
	"testing"
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
)

func TestBackoff_Delay(t *testing.T) {
	strategy := DefaultBackoff()

	// Exact values: base * 2^(attempt-1) with base 1s.
	if d := strategy.Delay(1); d != 1*time.Second {
		t.Errorf("attempt 1: expected 1s, got %v", d)
	}
	if d := strategy.Delay(2); d != 2*time.Second {
		t.Errorf("attempt 2: expected 2s, got %v", d)
	}
	if d := strategy.Delay(3); d != 4*time.Second {
		t.Errorf("attempt 3: expected 4s, got %v", d)
	}

	// Attempts below 1 clamp to the base delay.
	if d := strategy.Delay(0); d != 1*time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", d)
	}
}

func TestBackoff_ShouldRetry(t *testing.T) {
	strategy := DefaultBackoff()

	// Retryable kinds retry while attempt <= MaxRetries: up to 3 retries,
	// 4 total attempts.
	for attempt := 1; attempt <= 3; attempt++ {
		if !strategy.ShouldRetry(domain.ErrorKindNetwork, attempt) {
			t.Errorf("should retry network error at attempt %d", attempt)
		}
	}
	if strategy.ShouldRetry(domain.ErrorKindNetwork, 4) {
		t.Error("should NOT retry attempt 4 (max retries reached)")
	}

	// Non-retryable kinds never retry, even on the first attempt.
	if strategy.ShouldRetry(domain.ErrorKindValidation, 1) {
		t.Error("validation errors must not be retried")
	}
	if strategy.ShouldRetry(domain.ErrorKindParsing, 1) {
		t.Error("parsing errors must not be retried")
	}
}
