package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tuanvle/txscope/internal/core/domain"
	"github.com/tuanvle/txscope/internal/indexing/emitter"
	"github.com/tuanvle/txscope/internal/indexing/filter"
	"github.com/tuanvle/txscope/internal/indexing/recovery"
	"github.com/tuanvle/txscope/internal/indexing/throttle"
	"github.com/tuanvle/txscope/internal/infra/api"
	"github.com/tuanvle/txscope/internal/infra/storage"
)

// HistoryAPI is the paginated upstream the worker pulls records from.
type HistoryAPI interface {
	AccountExists(ctx context.Context, account string, network domain.Network) error
	FetchPage(ctx context.Context, account string, network domain.Network, page, limit int) (*api.Page, error)
}

// Config holds worker tuning knobs.
type Config struct {
	PageLimit        int
	FetchConcurrency int
	MaxPages         int
}

// DefaultConfig returns sensible worker defaults.
func DefaultConfig() Config {
	return Config{
		PageLimit:        100,
		FetchConcurrency: 5,
		MaxPages:         200,
	}
}

// Worker executes the pipeline steps for one session and reports progress
// on the bus. It has no retry logic of its own: a step error ends the run
// and the recovery controller decides what happens next. Every launch
// recomputes from the first step.
type Worker struct {
	api       HistoryAPI
	bus       *emitter.Bus
	transfers storage.TransferRepository   // optional
	stats     storage.StatsRepository      // optional
	throttle  *throttle.AdaptiveController // optional
	log       *slog.Logger
	cfg       Config
}

// NewWorker wires a pipeline worker. Repositories may be nil when
// persistence is not configured.
func NewWorker(
	historyAPI HistoryAPI,
	bus *emitter.Bus,
	transfers storage.TransferRepository,
	stats storage.StatsRepository,
	log *slog.Logger,
	cfg Config,
) *Worker {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 5
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 200
	}
	return &Worker{
		api:       historyAPI,
		bus:       bus,
		transfers: transfers,
		stats:     stats,
		log:       log,
		cfg:       cfg,
	}
}

// SetThrottle attaches an adaptive fetch throttle.
func (w *Worker) SetThrottle(tc *throttle.AdaptiveController) {
	w.throttle = tc
}

// Run executes the full step sequence for the session.
func (w *Worker) Run(ctx context.Context, sessionID string, q domain.Query) {
	windowStart, windowEnd := q.Window(time.Now())

	ok := w.step(ctx, sessionID, domain.StepInitializing, func(ctx context.Context) (any, error) {
		if err := q.Validate(); err != nil {
			return nil, err
		}
		return nil, w.api.AccountExists(ctx, q.Account, q.Network)
	})
	if !ok {
		return
	}

	var records []domain.TransferRecord
	ok = w.step(ctx, sessionID, domain.StepFetchingRecords, func(ctx context.Context) (any, error) {
		var err error
		records, err = w.fetchAll(ctx, sessionID, q)
		if err != nil {
			return nil, err
		}
		return records, nil
	})
	if !ok {
		return
	}

	var filtered []domain.TransferRecord
	ok = w.step(ctx, sessionID, domain.StepFilteringByTimeframe, func(ctx context.Context) (any, error) {
		filtered = filter.Apply(records, filter.Window(windowStart, windowEnd))
		return filtered, nil
	})
	if !ok {
		return
	}

	var volume *domain.VolumeSummary
	ok = w.step(ctx, sessionID, domain.StepAggregatingVolume, func(ctx context.Context) (any, error) {
		volume = w.aggregateVolume(q.Account, filtered)
		return volume, nil
	})
	if !ok {
		return
	}

	var categories map[string]int
	ok = w.step(ctx, sessionID, domain.StepIdentifyingCategories, func(ctx context.Context) (any, error) {
		categories = identifyCategories(filtered)
		return categories, nil
	})
	if !ok {
		return
	}

	var contractCalls int
	ok = w.step(ctx, sessionID, domain.StepCountingContractCalls, func(ctx context.Context) (any, error) {
		contractCalls = countContractCalls(filtered)
		return contractCalls, nil
	})
	if !ok {
		return
	}

	var result *domain.AccountStats
	ok = w.step(ctx, sessionID, domain.StepFinalizing, func(ctx context.Context) (any, error) {
		result = &domain.AccountStats{
			ID:            uuid.New().String(),
			Account:       q.Account,
			Network:       q.Network,
			Period:        q.Period,
			WindowStart:   windowStart,
			WindowEnd:     windowEnd,
			TransferCount: len(filtered),
			IncomingCount: volume.Incoming,
			OutgoingCount: volume.Outgoing,
			TotalVolume:   volume.Total,
			Categories:    categories,
			ContractCalls: contractCalls,
			Complete:      true,
			GeneratedAt:   time.Now(),
		}
		w.persist(ctx, q, filtered, result)
		return result, nil
	})
	if !ok {
		return
	}

	w.bus.Publish(emitter.Event{
		Type:      emitter.EventIndexingComplete,
		SessionID: sessionID,
		Result:    result,
	})
}

// step announces, runs and reports one pipeline step. It returns false when
// the run must stop.
func (w *Worker) step(ctx context.Context, sessionID string, s domain.Step, fn func(context.Context) (any, error)) bool {
	if ctx.Err() != nil {
		return false
	}

	w.bus.Publish(emitter.Event{
		Type:      emitter.EventStepChange,
		SessionID: sessionID,
		Step:      s,
	})

	artifact, err := fn(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled: the controller owns the cancellation protocol.
			return false
		}
		kind := recovery.Classify(err)
		w.log.Warn("Pipeline step failed", "step", s, "kind", kind, "error", err)
		w.bus.Publish(emitter.Event{
			Type:        emitter.EventStepError,
			SessionID:   sessionID,
			Step:        s,
			Message:     err.Error(),
			Kind:        kind,
			Recoverable: recovery.IsRetryable(kind),
		})
		return false
	}

	w.bus.Publish(emitter.Event{
		Type:      emitter.EventStepComplete,
		SessionID: sessionID,
		Step:      s,
		Artifact:  artifact,
	})
	return true
}

// fetchAll pulls every history page. The first page is fetched alone to
// learn the page count; the rest are fetched with bounded concurrency.
func (w *Worker) fetchAll(ctx context.Context, sessionID string, q domain.Query) ([]domain.TransferRecord, error) {
	first, err := w.api.FetchPage(ctx, q.Account, q.Network, 1, w.cfg.PageLimit)
	if err != nil {
		return nil, err
	}

	total := first.TotalPages
	if total < 1 {
		total = 1
	}
	if total > w.cfg.MaxPages {
		w.log.Warn("Capping history pages", "total", first.TotalPages, "cap", w.cfg.MaxPages)
		total = w.cfg.MaxPages
	}

	pages := make([][]domain.TransferRecord, total+1)
	pages[1] = first.Records

	var mu sync.Mutex
	fetched := 1
	w.progress(sessionID, domain.StepFetchingRecords, float64(fetched)/float64(total)*100)

	limit := w.cfg.FetchConcurrency
	if w.throttle != nil {
		limit = w.throttle.ComputeConcurrency(total - 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for p := 2; p <= total; p++ {
		g.Go(func() error {
			page, err := w.fetchPaced(gctx, q, p)
			if err != nil {
				return err
			}
			pages[p] = page.Records

			mu.Lock()
			fetched++
			pct := float64(fetched) / float64(total) * 100
			mu.Unlock()
			w.progress(sessionID, domain.StepFetchingRecords, pct)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []domain.TransferRecord
	for p := 1; p <= total; p++ {
		records = append(records, pages[p]...)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	return records, nil
}

// fetchPaced fetches one page, honoring the throttle's cooldown and feeding
// its latency/rate-limit observations.
func (w *Worker) fetchPaced(ctx context.Context, q domain.Query, page int) (*api.Page, error) {
	if w.throttle != nil {
		if d := w.throttle.ComputeDelay(); d > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
	}

	started := time.Now()
	p, err := w.api.FetchPage(ctx, q.Account, q.Network, page, w.cfg.PageLimit)
	if w.throttle != nil {
		w.throttle.RecordLatency(time.Since(started))
		if err != nil && strings.Contains(err.Error(), "429") {
			w.throttle.RecordRateLimit()
		}
	}
	return p, err
}

func (w *Worker) progress(sessionID string, s domain.Step, pct float64) {
	w.bus.Publish(emitter.Event{
		Type:      emitter.EventStepProgress,
		SessionID: sessionID,
		Step:      s,
		Percent:   pct,
	})
}

// aggregateVolume sums transfer value and flow direction relative to the
// account. Unparsable values count as zero rather than failing the step.
func (w *Worker) aggregateVolume(account string, records []domain.TransferRecord) *domain.VolumeSummary {
	sum := &domain.VolumeSummary{}
	for _, r := range records {
		v, err := strconv.ParseFloat(r.Value, 64)
		if err != nil {
			w.log.Warn("Skipping unparsable transfer value", "tx", r.TxHash, "value", r.Value)
			v = 0
		}
		sum.Total += v

		if strings.EqualFold(r.To, account) {
			sum.Incoming++
		}
		if strings.EqualFold(r.From, account) {
			sum.Outgoing++
		}
	}
	return sum
}

// identifyCategories groups transfers by kind.
func identifyCategories(records []domain.TransferRecord) map[string]int {
	categories := make(map[string]int)
	for _, r := range records {
		kind := string(r.Kind)
		if kind == "" {
			kind = string(domain.TransferKindNative)
		}
		categories[kind]++
	}
	return categories
}

// countContractCalls counts the specialized contract interactions.
func countContractCalls(records []domain.TransferRecord) int {
	return len(filter.Apply(records, filter.ByKinds(domain.TransferKindContract)))
}

// persist stores the filtered records and final stats when repositories are
// configured. Persistence is best effort: a storage failure never fails the
// pipeline, the result is still returned to the caller.
func (w *Worker) persist(ctx context.Context, q domain.Query, records []domain.TransferRecord, stats *domain.AccountStats) {
	if w.transfers != nil && len(records) > 0 {
		if err := w.transfers.SaveBatch(ctx, q.Account, q.Network, records); err != nil {
			w.log.Warn("Failed to persist transfers", "account", q.Account, "error", err)
		}
	}
	if w.stats != nil {
		if err := w.stats.Save(ctx, stats); err != nil {
			w.log.Warn("Failed to persist stats", "account", q.Account, "error", err)
		}
	}
}
