package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// AccountRepo implements the biz-layer AccountRepo interface. It serves the
// reference balance for percentage-based risk thresholds, with a short-TTL
// Redis cache in front of MySQL.
type AccountRepo struct {
	db     *gorm.DB
	cache  CacheClient
	logger *log.Helper
}

// NewAccountRepo creates a new account history repository.
func NewAccountRepo(db *gorm.DB, cache CacheClient, logger log.Logger) *AccountRepo {
	return &AccountRepo{
		db:     db,
		cache:  cache,
		logger: log.NewHelper(logger),
	}
}

// LatestTotalValue returns the most recent account snapshot value.
// Returns gorm.ErrRecordNotFound when no snapshot exists; the caller decides
// the fallback balance.
func (r *AccountRepo) LatestTotalValue(ctx context.Context) (float64, error) {
	key := BuildCacheKey(CacheKeyBalance, "latest")

	// Cache fast path; any cache failure falls through to MySQL
	if r.cache != nil {
		var cached float64
		if err := r.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, ErrCacheNotFound) {
			r.logger.Warnw("balance cache read failed (falling back to MySQL)", "error", err)
		}
	}

	var snap AccountSnapshot
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		First(&snap).Error
	if err != nil {
		return 0, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, snap.TotalValue, TTLBalance); err != nil {
			r.logger.Warnw("balance cache write failed", "error", err)
		}
	}

	return snap.TotalValue, nil
}

// InsertSnapshot records a new account-value observation and refreshes the
// balance cache.
func (r *AccountRepo) InsertSnapshot(ctx context.Context, totalValue float64, ts time.Time) error {
	snap := &AccountSnapshot{
		TotalValue: totalValue,
		Timestamp:  ts,
	}
	if err := r.db.WithContext(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("failed to insert account snapshot: %w", err)
	}

	if r.cache != nil {
		key := BuildCacheKey(CacheKeyBalance, "latest")
		if err := r.cache.Set(ctx, key, totalValue, TTLBalance); err != nil {
			r.logger.Warnw("balance cache refresh failed", "error", err)
		}
	}

	return nil
}
