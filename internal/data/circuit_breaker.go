package data

import (
	"context"
	"fmt"
	"time"

	pkgerrors "TradeSentry/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CircuitBreakerRepo implements the biz-layer CircuitBreakerRepo interface
// (defined in biz layer, following the DDD split).
type CircuitBreakerRepo struct {
	db     *gorm.DB
	rdb    *redis.Client
	logger *log.Helper
}

// NewCircuitBreakerRepo creates a new circuit breaker repository.
func NewCircuitBreakerRepo(db *gorm.DB, rdb *redis.Client, logger log.Logger) *CircuitBreakerRepo {
	return &CircuitBreakerRepo{
		db:     db,
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// GetLatestActive returns the most recent record with status=active, or
// gorm.ErrRecordNotFound if the breaker is not engaged.
func (r *CircuitBreakerRepo) GetLatestActive(ctx context.Context) (*CircuitBreakerRecord, error) {
	var rec CircuitBreakerRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", BreakerActive).
		Order("triggered_at DESC").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// TripBreaker demotes every prior active row to expired and inserts the new
// active record, inside a single transaction. This is what keeps the
// at-most-one-active invariant even if two evaluations race.
func (r *CircuitBreakerRepo) TripBreaker(ctx context.Context, rec *CircuitBreakerRecord) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&CircuitBreakerRecord{}).
			Where("status = ?", BreakerActive).
			Updates(map[string]interface{}{
				"status":     BreakerExpired,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return fmt.Errorf("failed to demote active breakers: %w", err)
		}

		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to insert breaker record: %w", err)
		}
		return nil
	})
	if err != nil {
		dbErr := pkgerrors.ClassifyDBError(err)
		if dbErr.Type == pkgerrors.ErrorTypeUnknownColumn {
			// An old deployment is missing a migration; surface loudly.
			r.logger.Errorw("breaker table schema drift detected",
				"error", dbErr.Error())
		}
		return dbErr
	}

	// Redis marker mirrors the halted state until resume_at; the HTTP status
	// endpoint uses it as a cheap fast path. Redis being down is non-fatal.
	if r.rdb != nil {
		ttl := time.Until(rec.ResumeAt)
		if ttl > 0 {
			key := BuildCacheKey(CacheKeyBreaker, "active")
			if err := r.rdb.Set(ctx, key, rec.Reason, ttl).Err(); err != nil {
				r.logger.Warnw("failed to set breaker marker in Redis (degraded mode)",
					"error", err)
			}
		}
	}

	r.logger.Warnw("circuit breaker tripped",
		"type", "breaker",
		"trigger_type", rec.TriggerType,
		"severity", rec.SeverityLevel,
		"resume_at", rec.ResumeAt.Format(time.RFC3339),
		"reason", rec.Reason)

	return nil
}

// ExpireRecord marks a single record as expired (time-based auto-resume).
func (r *CircuitBreakerRepo) ExpireRecord(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&CircuitBreakerRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     BreakerExpired,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to expire breaker record %d: %w", id, result.Error)
	}

	r.clearActiveMarker(ctx)
	return nil
}

// ResetAll sets every active row to manually_reset and stamps the cooldown
// window from the reset instant. Returns the number of rows touched; zero
// rows is not an error (reset is idempotent).
func (r *CircuitBreakerRepo) ResetAll(ctx context.Context, cooldownUntil time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&CircuitBreakerRecord{}).
		Where("status = ?", BreakerActive).
		Updates(map[string]interface{}{
			"status":         BreakerManuallyReset,
			"resume_at":      time.Now(),
			"cooldown_until": cooldownUntil,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset breaker: %w", result.Error)
	}

	r.clearActiveMarker(ctx)

	r.logger.Infow("circuit breaker manually reset",
		"type", "breaker",
		"rows_affected", result.RowsAffected)

	return result.RowsAffected, nil
}

// GetLatestCooldown returns the most recent resumed record (expired or
// manually_reset) carrying a non-null cooldown_until, or ErrRecordNotFound.
func (r *CircuitBreakerRepo) GetLatestCooldown(ctx context.Context) (*CircuitBreakerRecord, error) {
	var rec CircuitBreakerRecord
	err := r.db.WithContext(ctx).
		Where("status IN ? AND cooldown_until IS NOT NULL", []BreakerStatus{BreakerExpired, BreakerManuallyReset}).
		Order("triggered_at DESC").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountTriggersSince returns how many breakers were triggered at or after
// the given instant, plus the maximum severity level among them.
func (r *CircuitBreakerRepo) CountTriggersSince(ctx context.Context, since time.Time) (int, int, error) {
	type row struct {
		Cnt    int64
		MaxSev *int
	}
	var out row
	err := r.db.WithContext(ctx).
		Model(&CircuitBreakerRecord{}).
		Select("COUNT(*) AS cnt, MAX(severity_level) AS max_sev").
		Where("triggered_at >= ?", since).
		Scan(&out).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count triggers: %w", err)
	}

	maxSev := 0
	if out.MaxSev != nil {
		maxSev = *out.MaxSev
	}
	// Rows created before the severity migration read back as 0; treat as 1.
	if out.Cnt > 0 && maxSev < 1 {
		maxSev = 1
	}
	return int(out.Cnt), maxSev, nil
}

// HasManualResetSince reports whether any manually_reset record was updated
// at or after the given instant (the manual-reset grace period).
func (r *CircuitBreakerRepo) HasManualResetSince(ctx context.Context, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CircuitBreakerRecord{}).
		Where("status = ? AND updated_at >= ?", BreakerManuallyReset, since).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to query manual resets: %w", err)
	}
	return count > 0, nil
}

// HasExpiredResumedSince reports whether any expired record has resume_at at
// or after the given instant (post-auto-resume grace period).
func (r *CircuitBreakerRepo) HasExpiredResumedSince(ctx context.Context, since time.Time) (bool, error) {
	now := time.Now()
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CircuitBreakerRecord{}).
		Where("status = ? AND resume_at >= ? AND resume_at <= ?", BreakerExpired, since, now).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to query recent auto-resumes: %w", err)
	}
	return count > 0, nil
}

// IsHaltedFast checks the Redis marker without touching MySQL. Used by the
// HTTP status endpoint as a cheap poll path; a miss means "consult the
// authoritative check", not "not halted".
func (r *CircuitBreakerRepo) IsHaltedFast(ctx context.Context) (bool, string) {
	if r.rdb == nil {
		return false, ""
	}
	key := BuildCacheKey(CacheKeyBreaker, "active")
	reason, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warnw("failed to read breaker marker (degraded mode)", "error", err)
		}
		return false, ""
	}
	return true, reason
}

// clearActiveMarker drops the Redis halted marker. Failures are logged, not
// returned; MySQL remains authoritative.
func (r *CircuitBreakerRepo) clearActiveMarker(ctx context.Context) {
	if r.rdb == nil {
		return
	}
	key := BuildCacheKey(CacheKeyBreaker, "active")
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		r.logger.Warnw("failed to clear breaker marker in Redis (degraded mode)",
			"error", err)
	}
}
