package recovery

import (
	"time"

	"github.com/google/uuid"
	"github.com/tuanvle/txscope/internal/core/domain"
	"github.com/tuanvle/txscope/internal/indexing/steps"
)

// NewRecoveryState builds a fresh state with every registered step at idle.
func NewRecoveryState(q domain.Query) *domain.RecoveryState {
	stepStates := make(map[domain.Step]*domain.StepRecoveryState, steps.Count())
	for _, s := range steps.All() {
		stepStates[s] = &domain.StepRecoveryState{Step: s, Status: domain.StepStatusIdle}
	}

	return &domain.RecoveryState{
		SessionID:  uuid.New().String(),
		Run:        domain.RunStateIdle,
		Query:      q,
		StepStates: stepStates,
		StartedAt:  time.Now(),
	}
}

// runTransitions is the allowed run-state machine. Restart is handled by
// replacing the state wholesale, so it does not appear here.
var runTransitions = map[domain.RunState][]domain.RunState{
	domain.RunStateIdle:      {domain.RunStateRunning},
	domain.RunStateRunning:   {domain.RunStateCompleted, domain.RunStateHalted, domain.RunStateCancelled},
	domain.RunStateHalted:    {domain.RunStateRunning},
	domain.RunStateCompleted: {domain.RunStateRunning},
	domain.RunStateCancelled: {domain.RunStateRunning},
}

// canTransition checks whether the run state machine allows from -> to.
func canTransition(from, to domain.RunState) bool {
	for _, t := range runTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// markCompleted appends the step to CompletedSteps exactly once and stamps
// its completion time. Steps complete in registry order; the append-only
// list preserves that order across resume and retry paths.
func markCompleted(state *domain.RecoveryState, step domain.Step) {
	for _, s := range state.CompletedSteps {
		if s == step {
			return
		}
	}

	now := time.Now()
	st := state.StepStates[step]
	st.Status = domain.StepStatusCompleted
	st.Error = nil
	st.CompletedAt = &now
	state.CompletedSteps = append(state.CompletedSteps, step)
}

// isCompleted reports whether the step already completed in this session.
func isCompleted(state *domain.RecoveryState, step domain.Step) bool {
	for _, s := range state.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}
