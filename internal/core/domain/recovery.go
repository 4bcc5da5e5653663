package domain

import "time"

// RecoveryAction is an in-flight recovery operation.
type RecoveryAction string

const (
	RecoveryActionRetry   RecoveryAction = "retry"
	RecoveryActionResume  RecoveryAction = "resume"
	RecoveryActionRestart RecoveryAction = "restart"
)

// StepRecoveryState tracks one step's progress within a session.
type StepRecoveryState struct {
	Step        Step       `json:"step"`
	Status      StepStatus `json:"status"`
	Error       *StepError `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RecoveryState is the authoritative snapshot of one indexing session.
// It is owned and mutated exclusively by the recovery controller; everyone
// else works with copies produced by Clone.
type RecoveryState struct {
	SessionID      string                      `json:"session_id"`
	Run            RunState                    `json:"run"`
	Query          Query                       `json:"query"`
	StepStates     map[Step]*StepRecoveryState `json:"step_states"`
	CompletedSteps []Step                      `json:"completed_steps"`
	FailedStep     Step                        `json:"failed_step,omitempty"` // empty when not halted
	IsPartial      bool                        `json:"is_partial"`
	TotalRetries   int                         `json:"total_retries"`
	PendingAction  RecoveryAction              `json:"pending_action,omitempty"`
	StartedAt      time.Time                   `json:"started_at"`
}

// Clone returns a deep copy safe to hand to subscribers and HTTP handlers.
func (s *RecoveryState) Clone() RecoveryState {
	out := *s

	out.StepStates = make(map[Step]*StepRecoveryState, len(s.StepStates))
	for step, st := range s.StepStates {
		cp := *st
		if st.Error != nil {
			errCp := *st.Error
			cp.Error = &errCp
		}
		if st.CompletedAt != nil {
			t := *st.CompletedAt
			cp.CompletedAt = &t
		}
		out.StepStates[step] = &cp
	}

	out.CompletedSteps = make([]Step, len(s.CompletedSteps))
	copy(out.CompletedSteps, s.CompletedSteps)

	return out
}

// Halted reports whether the session is blocked awaiting a recovery decision.
func (s *RecoveryState) Halted() bool {
	return s.FailedStep != ""
}

// CanResume reports whether there is salvageable progress to resume from.
func (s *RecoveryState) CanResume() bool {
	return s.FailedStep != "" && len(s.CompletedSteps) > 0
}
