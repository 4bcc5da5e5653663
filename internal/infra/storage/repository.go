package storage

import (
	"context"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// TransferRepository handles transfer record storage operations
type TransferRepository interface {
	// SaveBatch upserts a batch of transfer records for an account
	SaveBatch(ctx context.Context, account string, network domain.Network, records []domain.TransferRecord) error

	// GetByAccount retrieves stored transfers for an account inside a window
	GetByAccount(ctx context.Context, q domain.Query) ([]domain.TransferRecord, error)

	// Count returns the number of stored transfers for an account
	Count(ctx context.Context, account string, network domain.Network) (int, error)

	// DeleteByAccount removes all stored transfers for an account
	DeleteByAccount(ctx context.Context, account string, network domain.Network) error
}

// StatsRepository handles aggregated statistics storage operations
type StatsRepository interface {
	// Save upserts the stats for one account/network/period
	Save(ctx context.Context, stats *domain.AccountStats) error

	// Get retrieves the latest stats for a query, nil when absent
	Get(ctx context.Context, q domain.Query) (*domain.AccountStats, error)

	// DeleteStale removes stats generated before the cutoff
	DeleteStale(ctx context.Context, cutoff int64) (int, error)
}
