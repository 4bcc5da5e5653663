package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
	"github.com/tuanvle/txscope/internal/indexing/emitter"
	"github.com/tuanvle/txscope/internal/indexing/metrics"
	"github.com/tuanvle/txscope/internal/indexing/steps"
)

// DefaultStepTimeout bounds how long the controller waits for a single step
// attempt to report completion or failure.
const DefaultStepTimeout = 30 * time.Second

// eventBuffer sizes the per-launch event channel. Completion and error
// events are rare (one per step attempt), so a small buffer suffices.
const eventBuffer = 64

var (
	// ErrNotStarted is returned by recovery actions before any session exists.
	ErrNotStarted = errors.New("no indexing session exists")

	// ErrNoFailedStep is returned when retry/resume is requested but the
	// session is not halted.
	ErrNoFailedStep = errors.New("no failed step to recover from")

	// ErrNothingCompleted is returned when resume is requested but no step
	// completed before the failure.
	ErrNothingCompleted = errors.New("no completed steps to resume from")
)

// Worker runs the whole pipeline for one session, emitting progress events
// to the bus as a side effect. It has no partial-step resumption: every
// launch recomputes from the first step; the controller skips steps it has
// already seen complete.
type Worker interface {
	Run(ctx context.Context, sessionID string, q domain.Query)
}

// Option customizes a Controller.
type Option func(*Controller)

// WithStrategy overrides the retry policy.
func WithStrategy(s RetryStrategy) Option {
	return func(c *Controller) { c.strategy = s }
}

// WithStepTimeout overrides the per-attempt step timeout.
func WithStepTimeout(d time.Duration) Option {
	return func(c *Controller) { c.stepTimeout = d }
}

// Controller sequences the pipeline steps, applies the retry policy, and
// owns the RecoveryState. One Controller drives one logical run at a time;
// Start and Restart unconditionally supersede any in-flight run.
type Controller struct {
	bus      *emitter.Bus
	worker   Worker
	strategy RetryStrategy
	logger   runLogger

	stepTimeout time.Duration

	mu        sync.Mutex
	state     *domain.RecoveryState
	artifacts *domain.PartialArtifacts
	result    *domain.AccountStats

	// per-launch plumbing, replaced on every worker (re)launch
	events       chan emitter.Event
	unsub        func()
	cancelWorker context.CancelFunc
	cancelRun    context.CancelFunc
}

// NewController wires a controller to its collaborators.
func NewController(bus *emitter.Bus, worker Worker, log *slog.Logger, opts ...Option) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		bus:         bus,
		worker:      worker,
		strategy:    DefaultBackoff(),
		logger:      runLogger{log: log},
		stepTimeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe attaches a progress listener to the underlying bus.
func (c *Controller) Subscribe(fn emitter.Listener) (unsubscribe func()) {
	return c.bus.Subscribe(fn)
}

// Snapshot returns an immutable copy of the current recovery state.
func (c *Controller) Snapshot() domain.RecoveryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return domain.RecoveryState{Run: domain.RunStateIdle}
	}
	return c.state.Clone()
}

// CanResume reports whether a halted session has salvageable progress.
func (c *Controller) CanResume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != nil && c.state.CanResume()
}

// Start begins a brand-new session for the query, superseding any in-flight
// run. It returns the aggregated result on full completion, or nil when the
// run halted or was cancelled; callers inspect Snapshot for the reason.
func (c *Controller) Start(ctx context.Context, q domain.Query) *domain.AccountStats {
	c.mu.Lock()
	c.supersedeLocked()
	state := NewRecoveryState(q)
	c.state = state
	c.artifacts = &domain.PartialArtifacts{}
	c.result = nil
	c.mu.Unlock()

	metrics.SessionsStarted.WithLabelValues("start").Inc()
	return c.run(ctx, state)
}

// RetryFailedStep clears the failed step and re-runs it in place. On
// success the run continues sequentially through the remaining steps.
func (c *Controller) RetryFailedStep(ctx context.Context) (*domain.AccountStats, error) {
	c.mu.Lock()
	state := c.state
	if state == nil {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	if !state.Halted() {
		c.mu.Unlock()
		return nil, ErrNoFailedStep
	}
	c.prepareRecoveryLocked(state, domain.RecoveryActionRetry)
	c.mu.Unlock()

	metrics.SessionsStarted.WithLabelValues("retry").Inc()
	return c.run(ctx, state), nil
}

// Resume continues a halted session from its failed step, preserving the
// already-completed steps. It requires salvageable prior progress.
func (c *Controller) Resume(ctx context.Context) (*domain.AccountStats, error) {
	c.mu.Lock()
	state := c.state
	if state == nil {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	if !state.Halted() {
		c.mu.Unlock()
		return nil, ErrNoFailedStep
	}
	if !state.CanResume() {
		c.mu.Unlock()
		return nil, ErrNothingCompleted
	}
	from := state.FailedStep
	skipped := make([]domain.Step, len(state.CompletedSteps))
	copy(skipped, state.CompletedSteps)
	c.prepareRecoveryLocked(state, domain.RecoveryActionResume)
	c.mu.Unlock()

	c.logger.resuming(from, skipped)
	metrics.SessionsStarted.WithLabelValues("resume").Inc()
	return c.run(ctx, state), nil
}

// Restart discards all progress and begins a fresh session with a new
// session id for the same query.
func (c *Controller) Restart(ctx context.Context) (*domain.AccountStats, error) {
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	q := c.state.Query
	c.supersedeLocked()
	state := NewRecoveryState(q)
	state.PendingAction = domain.RecoveryActionRestart
	c.state = state
	c.artifacts = &domain.PartialArtifacts{}
	c.result = nil
	c.mu.Unlock()

	metrics.SessionsStarted.WithLabelValues("restart").Inc()
	return c.run(ctx, state), nil
}

// AcceptPartialResults surrenders recovery and returns whatever usable data
// the completed steps produced: the full result when finalizing ran, or a
// degraded AccountStats assembled from per-step artifacts. It never mutates
// state. Returns nil when the session is not partial or nothing usable
// exists.
func (c *Controller) AcceptPartialResults() *domain.AccountStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == nil || !c.state.IsPartial {
		return nil
	}
	if c.artifacts.Stats != nil {
		return c.artifacts.Stats
	}
	return c.degradedStatsLocked()
}

// degradedStatsLocked assembles a partial AccountStats from step artifacts.
func (c *Controller) degradedStatsLocked() *domain.AccountStats {
	a := c.artifacts
	if a.Volume == nil && a.Categories == nil && a.Filtered == nil {
		return nil
	}

	q := c.state.Query
	start, end := q.Window(c.state.StartedAt)
	stats := &domain.AccountStats{
		Account:     q.Account,
		Network:     q.Network,
		Period:      q.Period,
		WindowStart: start,
		WindowEnd:   end,
		Complete:    false,
		GeneratedAt: time.Now(),
	}
	if a.Filtered != nil {
		stats.TransferCount = len(a.Filtered)
	}
	if a.Volume != nil {
		stats.TotalVolume = a.Volume.Total
		stats.IncomingCount = a.Volume.Incoming
		stats.OutgoingCount = a.Volume.Outgoing
	}
	if a.Categories != nil {
		stats.Categories = make(map[string]int, len(a.Categories))
		for k, v := range a.Categories {
			stats.Categories[k] = v
		}
	}
	if a.ContractCalls != nil {
		stats.ContractCalls = *a.ContractCalls
	}
	return stats
}

// prepareRecoveryLocked resets the failed step so the run loop re-enters it.
func (c *Controller) prepareRecoveryLocked(state *domain.RecoveryState, action domain.RecoveryAction) {
	step := state.FailedStep
	state.FailedStep = ""
	state.IsPartial = false
	state.PendingAction = action
	st := state.StepStates[step]
	st.Status = domain.StepStatusIdle
	st.Error = nil
}

// supersedeLocked tears down any in-flight run before a new session starts.
func (c *Controller) supersedeLocked() {
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
	}
	c.teardownLaunchLocked()
}

// run drives the registry steps in order for the given state instance.
// A superseded run keeps mutating its own discarded state and is harmless.
func (c *Controller) run(ctx context.Context, state *domain.RecoveryState) *domain.AccountStats {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.state == state {
		c.cancelRun = cancel
	}
	if canTransition(state.Run, domain.RunStateRunning) {
		state.Run = domain.RunStateRunning
	}
	c.mu.Unlock()

	c.launch(runCtx, state)

	for _, step := range steps.All() {
		if !c.runSingleStep(runCtx, state, step) {
			return nil
		}
	}

	c.mu.Lock()
	state.Run = domain.RunStateCompleted
	state.PendingAction = ""
	result := c.result
	sessionID := state.SessionID
	isPartial := state.IsPartial
	totalRetries := state.TotalRetries
	c.teardownLaunchIfCurrentLocked(state)
	c.mu.Unlock()

	c.logger.sessionComplete(sessionID, isPartial, totalRetries)
	metrics.SessionsCompleted.WithLabelValues("completed").Inc()
	return result
}

// launch subscribes a fresh event channel and starts a new worker for the
// session, replacing any previous launch. The worker restarts its own
// fetch/compute from the top; the controller's skip check keeps completed
// steps from re-executing.
func (c *Controller) launch(ctx context.Context, state *domain.RecoveryState) {
	c.mu.Lock()
	c.teardownLaunchLocked()

	events := make(chan emitter.Event, eventBuffer)
	sessionID := state.SessionID

	unsub := c.bus.Subscribe(func(ev emitter.Event) {
		if ev.SessionID != sessionID {
			return
		}
		switch ev.Type {
		case emitter.EventIndexingComplete:
			c.storeResult(state, ev.Result)
		case emitter.EventStepComplete, emitter.EventStepError:
			select {
			case events <- ev:
			default:
				// Buffer full means nobody is draining; the step
				// timeout will surface the stall.
			}
		}
	})

	workerCtx, cancelWorker := context.WithCancel(ctx)
	c.events = events
	c.unsub = unsub
	c.cancelWorker = cancelWorker
	c.mu.Unlock()

	go c.worker.Run(workerCtx, sessionID, state.Query)
}

// storeResult caches the final aggregated result for the active session.
func (c *Controller) storeResult(state *domain.RecoveryState, result *domain.AccountStats) {
	if result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == state {
		c.result = result
		c.artifacts.Stats = result
	}
}

// teardownLaunchLocked stops the current worker and detaches its listener.
func (c *Controller) teardownLaunchLocked() {
	if c.cancelWorker != nil {
		c.cancelWorker()
		c.cancelWorker = nil
	}
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	c.events = nil
}

func (c *Controller) teardownLaunchIfCurrentLocked(state *domain.RecoveryState) {
	if c.state == state {
		c.teardownLaunchLocked()
	}
}

// runSingleStep executes one step with the bounded retry policy. It returns
// false when the run must stop (halted or cancelled).
func (c *Controller) runSingleStep(ctx context.Context, state *domain.RecoveryState, step domain.Step) bool {
	c.mu.Lock()
	if isCompleted(state, step) {
		// Idempotency: a step already in CompletedSteps is never
		// re-executed and never duplicated.
		state.StepStates[step].Status = domain.StepStatusSkipped
		c.mu.Unlock()
		return true
	}
	st := state.StepStates[step]
	st.Status = domain.StepStatusRunning
	st.Error = nil
	c.mu.Unlock()

	started := time.Now()

	for attempt := 1; ; attempt++ {
		ev, err := c.awaitStep(ctx, step)
		if err != nil {
			if ctx.Err() != nil {
				c.markCancelled(state, step)
				return false
			}
			// Synthesized timeout failure, classified like any other.
			ev = emitter.Event{
				Type:    emitter.EventStepError,
				Step:    step,
				Message: err.Error(),
			}
		}

		if ev.Type == emitter.EventStepComplete {
			c.mu.Lock()
			c.recordArtifactLocked(state, step, ev.Artifact)
			markCompleted(state, step)
			c.mu.Unlock()

			c.logger.stepCompleted(step)
			metrics.StepsCompleted.WithLabelValues(string(step)).Inc()
			metrics.StepDuration.WithLabelValues(string(step)).Observe(time.Since(started).Seconds())
			return true
		}

		kind := ev.Kind
		if kind == "" {
			kind = Classify(errors.New(ev.Message))
		}
		stepErr := &domain.StepError{
			Step:      step,
			Kind:      kind,
			Message:   ev.Message,
			Retryable: IsRetryable(kind),
			Timestamp: time.Now(),
			Attempt:   attempt,
		}

		c.logger.stepFailed(stepErr)
		metrics.StepsFailed.WithLabelValues(string(step), string(kind)).Inc()

		c.mu.Lock()
		state.StepStates[step].Error = stepErr
		c.mu.Unlock()

		if !c.strategy.ShouldRetry(kind, attempt) {
			c.halt(state, step)
			return false
		}

		c.mu.Lock()
		state.TotalRetries++
		c.mu.Unlock()

		delay := c.strategy.Delay(attempt)
		c.logger.retryScheduled(step, attempt, delay)
		metrics.RetriesScheduled.WithLabelValues(string(step)).Inc()

		// Status stays running through the backoff so subscribers do
		// not see the step flicker between failed and running.
		select {
		case <-ctx.Done():
			c.markCancelled(state, step)
			return false
		case <-time.After(delay):
		}

		c.launch(ctx, state)
	}
}

// awaitStep blocks until the current launch reports completion or failure
// for this exact step, ignoring events for other steps. A nil error means
// the returned event is either step_complete or step_error for the step.
func (c *Controller) awaitStep(ctx context.Context, step domain.Step) (emitter.Event, error) {
	c.mu.Lock()
	events := c.events
	c.mu.Unlock()

	if events == nil {
		return emitter.Event{}, fmt.Errorf("no worker launched for step %s", step)
	}

	timer := time.NewTimer(c.stepTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return emitter.Event{}, ctx.Err()
		case <-timer.C:
			return emitter.Event{}, fmt.Errorf("timeout waiting for step %s after %s", step, c.stepTimeout)
		case ev := <-events:
			if ev.Step != step {
				// A relaunched worker replays earlier steps; their
				// events are not ours to consume here.
				continue
			}
			return ev, nil
		}
	}
}

// halt records the terminal failure and exposes the recovery actions.
func (c *Controller) halt(state *domain.RecoveryState, step domain.Step) {
	c.mu.Lock()
	st := state.StepStates[step]
	st.Status = domain.StepStatusFailed
	state.FailedStep = step
	state.IsPartial = len(state.CompletedSteps) > 0
	if canTransition(state.Run, domain.RunStateHalted) {
		state.Run = domain.RunStateHalted
	}
	state.PendingAction = ""
	c.teardownLaunchIfCurrentLocked(state)
	c.mu.Unlock()

	metrics.SessionsCompleted.WithLabelValues("halted").Inc()
}

// markCancelled converts a context cancellation into a terminal cancelled
// run state, distinct from a failure: no failed step, no recovery pending.
func (c *Controller) markCancelled(state *domain.RecoveryState, step domain.Step) {
	c.mu.Lock()
	state.StepStates[step].Status = domain.StepStatusIdle
	if canTransition(state.Run, domain.RunStateCancelled) {
		state.Run = domain.RunStateCancelled
	}
	state.PendingAction = ""
	sessionID := state.SessionID
	c.teardownLaunchIfCurrentLocked(state)
	c.mu.Unlock()

	c.bus.Publish(emitter.Event{
		Type:      emitter.EventIndexingCancelled,
		SessionID: sessionID,
	})
	metrics.SessionsCompleted.WithLabelValues("cancelled").Inc()
}

// recordArtifactLocked stores a step's partial output so a later failure
// can still surface usable data.
func (c *Controller) recordArtifactLocked(state *domain.RecoveryState, step domain.Step, artifact any) {
	if c.state != state || artifact == nil {
		return
	}

	switch step {
	case domain.StepFetchingRecords:
		if records, ok := artifact.([]domain.TransferRecord); ok {
			c.artifacts.Records = records
		}
	case domain.StepFilteringByTimeframe:
		if filtered, ok := artifact.([]domain.TransferRecord); ok {
			c.artifacts.Filtered = filtered
		}
	case domain.StepAggregatingVolume:
		if vol, ok := artifact.(*domain.VolumeSummary); ok {
			c.artifacts.Volume = vol
		}
	case domain.StepIdentifyingCategories:
		if cats, ok := artifact.(map[string]int); ok {
			c.artifacts.Categories = cats
		}
	case domain.StepCountingContractCalls:
		if n, ok := artifact.(int); ok {
			c.artifacts.ContractCalls = &n
		}
	case domain.StepFinalizing:
		if stats, ok := artifact.(*domain.AccountStats); ok {
			c.artifacts.Stats = stats
			c.result = stats
		}
	}
}
