package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// StatsRepo implements storage.StatsRepository using PostgreSQL.
type StatsRepo struct {
	db *DB
}

// NewStatsRepo creates a new PostgreSQL stats repository.
func NewStatsRepo(db *DB) *StatsRepo {
	return &StatsRepo{db: db}
}

type statsRow struct {
	ID            string    `db:"id"`
	Account       string    `db:"account"`
	Network       string    `db:"network"`
	Period        string    `db:"period"`
	WindowStart   time.Time `db:"window_start"`
	WindowEnd     time.Time `db:"window_end"`
	TransferCount int       `db:"transfer_count"`
	IncomingCount int       `db:"incoming_count"`
	OutgoingCount int       `db:"outgoing_count"`
	TotalVolume   float64   `db:"total_volume"`
	Categories    []byte    `db:"categories"` // JSONB
	ContractCalls int       `db:"contract_calls"`
	Complete      bool      `db:"complete"`
	GeneratedAt   time.Time `db:"generated_at"`
}

func (s *statsRow) toDomain() (*domain.AccountStats, error) {
	stats := &domain.AccountStats{
		ID:            s.ID,
		Account:       s.Account,
		Network:       domain.Network(s.Network),
		Period:        domain.Period(s.Period),
		WindowStart:   s.WindowStart,
		WindowEnd:     s.WindowEnd,
		TransferCount: s.TransferCount,
		IncomingCount: s.IncomingCount,
		OutgoingCount: s.OutgoingCount,
		TotalVolume:   s.TotalVolume,
		ContractCalls: s.ContractCalls,
		Complete:      s.Complete,
		GeneratedAt:   s.GeneratedAt,
	}
	if len(s.Categories) > 0 {
		if err := json.Unmarshal(s.Categories, &stats.Categories); err != nil {
			return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
		}
	}
	return stats, nil
}

// Save upserts the stats for one account/network/period.
func (r *StatsRepo) Save(ctx context.Context, stats *domain.AccountStats) error {
	categories, err := json.Marshal(stats.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}

	query := `
		INSERT INTO account_stats (
			id, account, network, period, window_start, window_end,
			transfer_count, incoming_count, outgoing_count, total_volume,
			categories, contract_calls, complete, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (account, network, period) DO UPDATE SET
			id = EXCLUDED.id,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			transfer_count = EXCLUDED.transfer_count,
			incoming_count = EXCLUDED.incoming_count,
			outgoing_count = EXCLUDED.outgoing_count,
			total_volume = EXCLUDED.total_volume,
			categories = EXCLUDED.categories,
			contract_calls = EXCLUDED.contract_calls,
			complete = EXCLUDED.complete,
			generated_at = EXCLUDED.generated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		stats.ID, stats.Account, string(stats.Network), string(stats.Period),
		stats.WindowStart, stats.WindowEnd,
		stats.TransferCount, stats.IncomingCount, stats.OutgoingCount, stats.TotalVolume,
		categories, stats.ContractCalls, stats.Complete, stats.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// Get retrieves the latest stats for a query, nil when absent.
func (r *StatsRepo) Get(ctx context.Context, q domain.Query) (*domain.AccountStats, error) {
	query := `
		SELECT id, account, network, period, window_start, window_end,
		       transfer_count, incoming_count, outgoing_count, total_volume,
		       categories, contract_calls, complete, generated_at
		FROM account_stats
		WHERE account = $1 AND network = $2 AND period = $3
	`

	var row statsRow
	err := r.db.GetContext(ctx, &row, query, q.Account, string(q.Network), string(q.Period))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return row.toDomain()
}

// DeleteStale removes stats generated before the cutoff (unix seconds).
func (r *StatsRepo) DeleteStale(ctx context.Context, cutoff int64) (int, error) {
	query := `DELETE FROM account_stats WHERE generated_at < to_timestamp($1)`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale stats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
