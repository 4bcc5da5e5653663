package throttle

import "time"

// AdaptiveConfig holds configuration for adaptive fetch throttling.
type AdaptiveConfig struct {
	// Enabled controls whether adaptive throttling is active
	Enabled bool

	// Concurrency bounds for parallel page fetches
	MinConcurrency int // Slowest fan-out (default: 1)
	MaxConcurrency int // Fastest fan-out (default: 10)

	// Backlog thresholds for concurrency adjustment
	BacklogSmallThreshold int // Below this = minimal fan-out (default: 5)
	BacklogLargeThreshold int // Above this = max fan-out (default: 20)

	// Latency thresholds for concurrency adjustment
	LowLatencyThreshold  time.Duration // Below this = can increase fan-out (default: 500ms)
	HighLatencyThreshold time.Duration // Above this = decrease fan-out (default: 2s)

	// RateLimitCooldown is how long fetches pause after an upstream 429
	RateLimitCooldown time.Duration // (default: 5s)
}

// DefaultConfig returns sensible defaults for adaptive throttling.
func DefaultConfig() AdaptiveConfig {
	return AdaptiveConfig{
		Enabled:               true,
		MinConcurrency:        1,
		MaxConcurrency:        10,
		BacklogSmallThreshold: 5,
		BacklogLargeThreshold: 20,
		LowLatencyThreshold:   500 * time.Millisecond,
		HighLatencyThreshold:  2 * time.Second,
		RateLimitCooldown:     5 * time.Second,
	}
}
