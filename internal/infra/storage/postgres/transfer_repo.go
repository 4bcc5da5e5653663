package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// TransferRepo implements storage.TransferRepository using PostgreSQL.
type TransferRepo struct {
	db *DB
}

// NewTransferRepo creates a new PostgreSQL transfer repository.
func NewTransferRepo(db *DB) *TransferRepo {
	return &TransferRepo{db: db}
}

type transferRow struct {
	Account     string    `db:"account"`
	Network     string    `db:"network"`
	TxHash      string    `db:"tx_hash"`
	BlockNumber uint64    `db:"block_number"`
	From        string    `db:"from_address"`
	To          *string   `db:"to_address"` // Nullable
	Value       string    `db:"value"`
	Asset       string    `db:"asset"`
	Kind        string    `db:"kind"`
	Timestamp   int64     `db:"ts"`
	CreatedAt   time.Time `db:"created_at"`
}

func (t *transferRow) toDomain() domain.TransferRecord {
	r := domain.TransferRecord{
		TxHash:      t.TxHash,
		BlockNumber: t.BlockNumber,
		From:        t.From,
		Value:       t.Value,
		Asset:       t.Asset,
		Kind:        domain.TransferKind(t.Kind),
		Timestamp:   uint64(t.Timestamp),
	}
	if t.To != nil {
		r.To = *t.To
	}
	return r
}

// SaveBatch upserts the transfers fetched for an account.
func (r *TransferRepo) SaveBatch(ctx context.Context, account string, network domain.Network, records []domain.TransferRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO transfers (
			account, network, tx_hash, block_number, from_address, to_address, value, asset, kind, ts, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (account, network, tx_hash) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			value = EXCLUDED.value,
			kind = EXCLUDED.kind
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			account, string(network), rec.TxHash, rec.BlockNumber,
			rec.From, rec.To, rec.Value, rec.Asset,
			string(rec.Kind), int64(rec.Timestamp),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByAccount retrieves stored transfers inside the query window, oldest
// first.
func (r *TransferRepo) GetByAccount(ctx context.Context, q domain.Query) ([]domain.TransferRecord, error) {
	start, end := q.Window(time.Now())

	query := `
		SELECT account, network, tx_hash, block_number, from_address, to_address, value, asset, kind, ts, created_at
		FROM transfers
		WHERE account = $1 AND network = $2 AND ts BETWEEN $3 AND $4
		ORDER BY ts ASC
	`

	var rows []transferRow
	err := r.db.SelectContext(ctx, &rows, query, q.Account, string(q.Network), start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to get transfers: %w", err)
	}

	records := make([]domain.TransferRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toDomain())
	}
	return records, nil
}

// Count returns how many transfers are stored for an account.
func (r *TransferRepo) Count(ctx context.Context, account string, network domain.Network) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM transfers WHERE account = $1 AND network = $2`
	if err := r.db.GetContext(ctx, &count, query, account, string(network)); err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}
	return count, nil
}

// DeleteByAccount removes all stored transfers for an account.
func (r *TransferRepo) DeleteByAccount(ctx context.Context, account string, network domain.Network) error {
	query := `DELETE FROM transfers WHERE account = $1 AND network = $2`
	_, err := r.db.ExecContext(ctx, query, account, string(network))
	return err
}
