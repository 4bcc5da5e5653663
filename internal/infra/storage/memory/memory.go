package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// MemoryStorage backs the repositories for local runs and tests.
type MemoryStorage struct {
	transfers map[string][]domain.TransferRecord
	stats     map[string]*domain.AccountStats
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		transfers: make(map[string][]domain.TransferRecord),
		stats:     make(map[string]*domain.AccountStats),
	}
}

func accountKey(account string, network domain.Network) string {
	return account + ":" + string(network)
}

// -----------------------------------------------------------------------------
// Transfer Repository
// -----------------------------------------------------------------------------

type TransferRepo struct {
	store *MemoryStorage
}

func NewTransferRepo(store *MemoryStorage) *TransferRepo {
	return &TransferRepo{store: store}
}

func (r *TransferRepo) SaveBatch(ctx context.Context, account string, network domain.Network, records []domain.TransferRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := accountKey(account, network)

	existing := r.store.transfers[key]
	byHash := make(map[string]int, len(existing))
	for i, rec := range existing {
		byHash[rec.TxHash] = i
	}
	for _, rec := range records {
		if i, ok := byHash[rec.TxHash]; ok {
			existing[i] = rec
			continue
		}
		existing = append(existing, rec)
		byHash[rec.TxHash] = len(existing) - 1
	}
	r.store.transfers[key] = existing
	return nil
}

func (r *TransferRepo) GetByAccount(ctx context.Context, q domain.Query) ([]domain.TransferRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	start, end := q.Window(time.Now())

	var out []domain.TransferRecord
	for _, rec := range r.store.transfers[accountKey(q.Account, q.Network)] {
		ts := time.Unix(int64(rec.Timestamp), 0)
		if ts.Before(start) || ts.After(end) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *TransferRepo) Count(ctx context.Context, account string, network domain.Network) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.transfers[accountKey(account, network)]), nil
}

func (r *TransferRepo) DeleteByAccount(ctx context.Context, account string, network domain.Network) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.transfers, accountKey(account, network))
	return nil
}

// -----------------------------------------------------------------------------
// Stats Repository
// -----------------------------------------------------------------------------

type StatsRepo struct {
	store *MemoryStorage
}

func NewStatsRepo(store *MemoryStorage) *StatsRepo {
	return &StatsRepo{store: store}
}

func (r *StatsRepo) Save(ctx context.Context, stats *domain.AccountStats) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	q := domain.Query{Account: stats.Account, Network: stats.Network, Period: stats.Period}
	copied := *stats
	r.store.stats[q.CacheKey()] = &copied
	return nil
}

func (r *StatsRepo) Get(ctx context.Context, q domain.Query) (*domain.AccountStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.stats[q.CacheKey()]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *StatsRepo) DeleteStale(ctx context.Context, cutoff int64) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n := 0
	for k, s := range r.store.stats {
		if s.GeneratedAt.Unix() < cutoff {
			delete(r.store.stats, k)
			n++
		}
	}
	return n, nil
}
