package recovery

import (
	"log/slog"
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// runLogger is the controller's side-effect-only logging collaborator.
// Calls never block the run loop and never return errors.
type runLogger struct {
	log *slog.Logger
}

func (l runLogger) stepFailed(e *domain.StepError) {
	l.log.Warn("Step failed",
		"step", e.Step,
		"kind", e.Kind,
		"attempt", e.Attempt,
		"retryable", e.Retryable,
		"error", e.Message,
	)
}

func (l runLogger) retryScheduled(step domain.Step, attempt int, delay time.Duration) {
	l.log.Info("Retry scheduled",
		"step", step,
		"attempt", attempt,
		"delay", delay,
	)
}

func (l runLogger) stepCompleted(step domain.Step) {
	l.log.Debug("Step completed", "step", step)
}

func (l runLogger) sessionComplete(sessionID string, isPartial bool, totalRetries int) {
	l.log.Info("Indexing session complete",
		"session", sessionID,
		"partial", isPartial,
		"retries", totalRetries,
	)
}

func (l runLogger) resuming(from domain.Step, skipped []domain.Step) {
	l.log.Info("Resuming halted session",
		"from", from,
		"skipping", skipped,
	)
}
