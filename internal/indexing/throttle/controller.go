package throttle

import (
	"sync"
	"time"
)

// AdaptiveController computes fetch concurrency and pacing delays based on
// page backlog, observed API latency, and recent rate limiting.
type AdaptiveController struct {
	baseConcurrency int
	config          AdaptiveConfig

	mu            sync.Mutex
	avgLatency    time.Duration
	lastRateLimit time.Time

	// Current state (for metrics)
	currentConcurrency int
}

// NewAdaptiveController creates a new adaptive controller.
func NewAdaptiveController(baseConcurrency int, config AdaptiveConfig) *AdaptiveController {
	if baseConcurrency < 1 {
		baseConcurrency = 1
	}
	return &AdaptiveController{
		baseConcurrency:    baseConcurrency,
		config:             config,
		currentConcurrency: baseConcurrency,
	}
}

// RecordLatency folds one observed request latency into the moving average.
func (c *AdaptiveController) RecordLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.avgLatency == 0 {
		c.avgLatency = d
		return
	}
	// Exponential moving average, biased toward history
	c.avgLatency = (c.avgLatency*4 + d) / 5
}

// RecordRateLimit notes an upstream 429. Fetches pause for the cooldown.
func (c *AdaptiveController) RecordRateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRateLimit = time.Now()
}

// ComputeConcurrency calculates the fetch fan-out for a page backlog.
//
// Algorithm:
//   - high latency (>threshold): min concurrency (API is struggling)
//   - backlog <= 1: one fetch at a time
//   - backlog < small threshold: half the base fan-out
//   - backlog < large threshold: base fan-out
//   - backlog >= large threshold: max fan-out (fastest catchup)
func (c *AdaptiveController) ComputeConcurrency(backlog int) int {
	if !c.config.Enabled {
		return c.baseConcurrency
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// If the API is slow, fan out conservatively
	if c.avgLatency > c.config.HighLatencyThreshold {
		c.currentConcurrency = c.config.MinConcurrency
		return c.currentConcurrency
	}

	var concurrency int

	switch {
	case backlog <= 1:
		concurrency = 1

	case backlog < c.config.BacklogSmallThreshold:
		concurrency = c.baseConcurrency / 2

	case backlog < c.config.BacklogLargeThreshold:
		concurrency = c.baseConcurrency

	default:
		concurrency = c.config.MaxConcurrency
	}

	// Enforce bounds
	if concurrency < c.config.MinConcurrency {
		concurrency = c.config.MinConcurrency
	}
	if concurrency > c.config.MaxConcurrency {
		concurrency = c.config.MaxConcurrency
	}

	c.currentConcurrency = concurrency
	return concurrency
}

// ComputeDelay returns how long the next fetch should wait. Zero unless a
// rate limit was hit inside the cooldown window.
func (c *AdaptiveController) ComputeDelay() time.Duration {
	if !c.config.Enabled {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastRateLimit.IsZero() {
		return 0
	}
	elapsed := time.Since(c.lastRateLimit)
	if elapsed >= c.config.RateLimitCooldown {
		return 0
	}
	return c.config.RateLimitCooldown - elapsed
}

// GetCurrentConcurrency returns the last computed fan-out (for metrics).
func (c *AdaptiveController) GetCurrentConcurrency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentConcurrency
}
