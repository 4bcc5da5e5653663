package redis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// =============================================================================
// Snapshot staleness
// =============================================================================

func TestSnapshotExpiry(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		age     time.Duration
		expired bool
	}{
		{"fresh", time.Minute, false},
		{"just inside the window", SnapshotMaxAge - time.Second, false},
		{"exactly at the bound", SnapshotMaxAge, false},
		{"just past the bound", SnapshotMaxAge + time.Second, true},
		{"hours old", 3 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snapshot{SavedAt: now.Add(-tt.age)}
			if got := s.expired(now); got != tt.expired {
				t.Errorf("expired(age=%s) = %v, want %v", tt.age, got, tt.expired)
			}
		})
	}
}

func TestSnapshotCarriesRecoveryState(t *testing.T) {
	state := &domain.RecoveryState{
		SessionID:  "sess-1",
		Run:        domain.RunStateHalted,
		FailedStep: domain.StepFetchingRecords,
		StepStates: map[domain.Step]*domain.StepRecoveryState{},
	}

	data, err := json.Marshal(snapshot{State: state, SavedAt: time.Now()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.State.SessionID != "sess-1" || got.State.FailedStep != domain.StepFetchingRecords {
		t.Errorf("state not preserved: %+v", got.State)
	}
	if got.expired(time.Now()) {
		t.Error("a snapshot saved now must not be expired")
	}
}
