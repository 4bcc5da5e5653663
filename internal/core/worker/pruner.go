package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/tuanvle/txscope/internal/infra/storage"
)

// Pruner deletes old computed stats based on retention policy.
type Pruner struct {
	retention time.Duration
	statsRepo storage.StatsRepository
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, statsRepo storage.StatsRepository, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		statsRepo: statsRepo,
		log:       log,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check interval: 10% of retention period, clamped to [1m, 1h]
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention).Unix()

	n, err := p.statsRepo.DeleteStale(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune stale stats", "error", err)
		return
	}
	if n > 0 {
		p.log.Info("Pruned stale stats", "count", n)
	}
}
