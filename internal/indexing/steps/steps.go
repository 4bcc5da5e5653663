package steps

import (
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// Metadata describes one pipeline step for sequencing and progress display.
type Metadata struct {
	Label       string
	Description string
	Weight      float64       // relative share of overall progress
	Estimated   time.Duration // UI pacing hint only, not a deadline
}

// order is the fixed execution sequence of the pipeline.
var order = []domain.Step{
	domain.StepInitializing,
	domain.StepFetchingRecords,
	domain.StepFilteringByTimeframe,
	domain.StepAggregatingVolume,
	domain.StepIdentifyingCategories,
	domain.StepCountingContractCalls,
	domain.StepFinalizing,
}

var metadata = map[domain.Step]Metadata{
	domain.StepInitializing: {
		Label:       "Initializing",
		Description: "Validating the account and preparing the session",
		Weight:      5,
		Estimated:   500 * time.Millisecond,
	},
	domain.StepFetchingRecords: {
		Label:       "Fetching records",
		Description: "Downloading the account's transfer history page by page",
		Weight:      40,
		Estimated:   15 * time.Second,
	},
	domain.StepFilteringByTimeframe: {
		Label:       "Filtering by timeframe",
		Description: "Keeping only transfers inside the requested window",
		Weight:      10,
		Estimated:   time.Second,
	},
	domain.StepAggregatingVolume: {
		Label:       "Aggregating volume",
		Description: "Summing transfer volume and flow direction",
		Weight:      20,
		Estimated:   2 * time.Second,
	},
	domain.StepIdentifyingCategories: {
		Label:       "Identifying categories",
		Description: "Grouping transfers by kind and asset",
		Weight:      10,
		Estimated:   time.Second,
	},
	domain.StepCountingContractCalls: {
		Label:       "Counting contract calls",
		Description: "Counting specialized contract interactions",
		Weight:      5,
		Estimated:   time.Second,
	},
	domain.StepFinalizing: {
		Label:       "Finalizing",
		Description: "Assembling the aggregated statistics",
		Weight:      10,
		Estimated:   500 * time.Millisecond,
	},
}

// All returns the steps in execution order.
func All() []domain.Step {
	out := make([]domain.Step, len(order))
	copy(out, order)
	return out
}

// Count is the number of registered steps.
func Count() int {
	return len(order)
}

// Index returns a step's position in the execution order, or -1 when unknown.
func Index(step domain.Step) int {
	for i, s := range order {
		if s == step {
			return i
		}
	}
	return -1
}

// Before returns the steps that precede the given step in execution order.
func Before(step domain.Step) []domain.Step {
	idx := Index(step)
	if idx <= 0 {
		return nil
	}
	out := make([]domain.Step, idx)
	copy(out, order[:idx])
	return out
}

// Meta returns the metadata for a step. Unknown steps get a zero Metadata.
func Meta(step domain.Step) Metadata {
	return metadata[step]
}

// OverallProgress aggregates per-step progress into a 0-100 figure using
// normalized weights. completed steps count as 100 percent, current counts
// with its own percent, everything after counts as 0.
func OverallProgress(completed []domain.Step, current domain.Step, currentPercent float64) float64 {
	var totalWeight float64
	for _, s := range order {
		totalWeight += metadata[s].Weight
	}
	if totalWeight == 0 {
		return 0
	}

	done := make(map[domain.Step]bool, len(completed))
	for _, s := range completed {
		done[s] = true
	}

	if currentPercent < 0 {
		currentPercent = 0
	}
	if currentPercent > 100 {
		currentPercent = 100
	}

	var acc float64
	for _, s := range order {
		w := metadata[s].Weight
		switch {
		case done[s]:
			acc += w
		case s == current:
			acc += w * currentPercent / 100
		}
	}
	return acc / totalWeight * 100
}
