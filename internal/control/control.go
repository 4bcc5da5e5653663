package control

import (
	"context"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// SessionController drives indexing sessions and their recovery actions.
// The recovery controller satisfies this; the HTTP layer depends on the
// interface so handlers can be tested against a fake.
type SessionController interface {
	// Start begins a brand-new session, superseding any in-flight run.
	// Returns the result on full completion, nil when halted or cancelled.
	Start(ctx context.Context, q domain.Query) *domain.AccountStats

	// Snapshot returns an immutable copy of the current recovery state.
	Snapshot() domain.RecoveryState

	// CanResume reports whether a halted session has salvageable progress.
	CanResume() bool

	// RetryFailedStep re-runs the failed step of a halted session.
	RetryFailedStep(ctx context.Context) (*domain.AccountStats, error)

	// Resume continues a halted session, skipping completed steps.
	Resume(ctx context.Context) (*domain.AccountStats, error)

	// Restart discards progress and reruns the query under a new session.
	Restart(ctx context.Context) (*domain.AccountStats, error)

	// AcceptPartialResults returns whatever usable data the completed
	// steps produced, nil when nothing is salvageable.
	AcceptPartialResults() *domain.AccountStats
}

// StatsReader serves previously computed stats for read queries.
type StatsReader interface {
	Get(ctx context.Context, q domain.Query) (*domain.AccountStats, error)
}
