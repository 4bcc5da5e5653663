package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tuanvle/txscope/internal/core/domain"
	"github.com/tuanvle/txscope/internal/indexing/metrics"
)

// SnapshotMaxAge bounds how old a persisted session snapshot may be before
// it is discarded on load. A stale snapshot refers to a run whose upstream
// data has likely moved on, so resuming from it would mislead.
const SnapshotMaxAge = 5 * time.Minute

// DefaultStatsTTL is how long computed stats stay cached.
const DefaultStatsTTL = 10 * time.Minute

// Cache stores computed account stats and recovery snapshots in Redis.
type Cache struct {
	rdb *redis.Client
}

// NewCache creates a cache on top of an established client.
func NewCache(client *Client) *Cache {
	return &Cache{rdb: client.rdb}
}

// Key helpers
func statsKey(q domain.Query) string {
	return fmt.Sprintf("stats:%s", q.CacheKey())
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

const recentSessionsKey = "sessions:recent"

// GetStats returns cached stats for a query, nil on miss.
func (c *Cache) GetStats(ctx context.Context, q domain.Query) (*domain.AccountStats, error) {
	data, err := c.rdb.Get(ctx, statsKey(q)).Bytes()
	if err == redis.Nil {
		metrics.CacheHits.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	var stats domain.AccountStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached stats: %w", err)
	}
	metrics.CacheHits.WithLabelValues("hit").Inc()
	return &stats, nil
}

// SetStats caches computed stats under the query key.
func (c *Cache) SetStats(ctx context.Context, q domain.Query, stats *domain.AccountStats, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := c.rdb.Set(ctx, statsKey(q), data, ttl).Err(); err != nil {
		return fmt.Errorf("set stats: %w", err)
	}
	return nil
}

// InvalidateStats drops the cached stats for a query.
func (c *Cache) InvalidateStats(ctx context.Context, q domain.Query) error {
	return c.rdb.Del(ctx, statsKey(q)).Err()
}

// snapshot wraps recovery state with the save time used for staleness checks.
type snapshot struct {
	State   *domain.RecoveryState `json:"state"`
	SavedAt time.Time             `json:"saved_at"`
}

// expired reports whether the snapshot is older than SnapshotMaxAge at now.
func (s snapshot) expired(now time.Time) bool {
	return now.Sub(s.SavedAt) > SnapshotMaxAge
}

// SaveSnapshot persists the recovery state of a halted session and records
// it in the recent-session index.
func (c *Cache) SaveSnapshot(ctx context.Context, state *domain.RecoveryState) error {
	data, err := json.Marshal(snapshot{State: state, SavedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := c.rdb.Set(ctx, snapshotKey(state.SessionID), data, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}

	// Index by save time so the newest session is easy to find.
	if err := c.rdb.ZAdd(ctx, recentSessionsKey, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: state.SessionID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

// LoadSnapshot returns the persisted recovery state for a session, nil when
// missing or older than SnapshotMaxAge. Stale snapshots are deleted.
func (c *Cache) LoadSnapshot(ctx context.Context, sessionID string) (*domain.RecoveryState, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	if snap.expired(time.Now()) {
		c.rdb.Del(ctx, snapshotKey(sessionID))
		c.rdb.ZRem(ctx, recentSessionsKey, sessionID)
		return nil, nil
	}
	return snap.State, nil
}

// LatestSessionID returns the most recently snapshotted session, empty when
// none exist.
func (c *Cache) LatestSessionID(ctx context.Context) (string, error) {
	ids, err := c.rdb.ZRevRange(ctx, recentSessionsKey, 0, 0).Result()
	if err != nil {
		return "", fmt.Errorf("zrevrange failed: %w", err)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// DropSnapshot removes a session snapshot after it completes or is restarted.
func (c *Cache) DropSnapshot(ctx context.Context, sessionID string) error {
	if err := c.rdb.Del(ctx, snapshotKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("del snapshot: %w", err)
	}
	return c.rdb.ZRem(ctx, recentSessionsKey, sessionID).Err()
}
