package steps

import (
	"math"
	"testing"

	"github.com/tuanvle/txscope/internal/core/domain"
)

func TestAll_Order(t *testing.T) {
	want := []domain.Step{
		domain.StepInitializing,
		domain.StepFetchingRecords,
		domain.StepFilteringByTimeframe,
		domain.StepAggregatingVolume,
		domain.StepIdentifyingCategories,
		domain.StepCountingContractCalls,
		domain.StepFinalizing,
	}

	got := All()
	if len(got) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	a := All()
	a[0] = domain.StepFinalizing

	if All()[0] != domain.StepInitializing {
		t.Error("mutating the returned slice must not affect the registry")
	}
}

func TestIndex(t *testing.T) {
	if idx := Index(domain.StepInitializing); idx != 0 {
		t.Errorf("expected index 0, got %d", idx)
	}
	if idx := Index(domain.StepFinalizing); idx != 6 {
		t.Errorf("expected index 6, got %d", idx)
	}
	if idx := Index(domain.Step("bogus")); idx != -1 {
		t.Errorf("expected -1 for unknown step, got %d", idx)
	}
}

func TestBefore(t *testing.T) {
	before := Before(domain.StepFilteringByTimeframe)
	if len(before) != 2 {
		t.Fatalf("expected 2 steps before filtering, got %d", len(before))
	}
	if before[0] != domain.StepInitializing || before[1] != domain.StepFetchingRecords {
		t.Errorf("unexpected predecessors: %v", before)
	}

	if got := Before(domain.StepInitializing); got != nil {
		t.Errorf("first step has no predecessors, got %v", got)
	}
}

func TestMeta(t *testing.T) {
	for _, s := range All() {
		m := Meta(s)
		if m.Label == "" {
			t.Errorf("step %s missing label", s)
		}
		if m.Weight <= 0 {
			t.Errorf("step %s must have positive weight, got %f", s, m.Weight)
		}
	}
}

func TestOverallProgress(t *testing.T) {
	// Nothing done.
	if p := OverallProgress(nil, "", 0); p != 0 {
		t.Errorf("expected 0, got %f", p)
	}

	// Everything done.
	p := OverallProgress(All(), "", 0)
	if math.Abs(p-100) > 1e-9 {
		t.Errorf("expected 100, got %f", p)
	}

	// Current step contributes proportionally.
	half := OverallProgress(
		[]domain.Step{domain.StepInitializing},
		domain.StepFetchingRecords, 50,
	)
	full := OverallProgress(
		[]domain.Step{domain.StepInitializing, domain.StepFetchingRecords},
		"", 0,
	)
	if half <= 0 || half >= full {
		t.Errorf("expected 0 < %f < %f", half, full)
	}

	// Percent is clamped.
	if a, b := OverallProgress(nil, domain.StepFetchingRecords, 150), OverallProgress(nil, domain.StepFetchingRecords, 100); a != b {
		t.Errorf("percent above 100 must clamp: %f != %f", a, b)
	}
}
