package data

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
)

// signalCacheTTL bounds how stale a cached price series may be. Correlation
// runs once per decision cycle, so a short window is plenty.
const signalCacheTTL = 30 * time.Second

// signalCacheSize bounds the number of symbols held in memory.
const signalCacheSize = 64

type cachedSeries struct {
	prices    []float64
	fetchedAt time.Time
}

// SignalRepo implements the biz-layer SignalRepo interface. Price series for
// the correlation detector are served from an in-process LRU in front of the
// trading_signals table.
type SignalRepo struct {
	db     *gorm.DB
	cache  *lru.Cache[string, *cachedSeries]
	logger *log.Helper
}

// NewSignalRepo creates a new trading signal repository.
func NewSignalRepo(db *gorm.DB, logger log.Logger) (*SignalRepo, error) {
	cache, err := lru.New[string, *cachedSeries](signalCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create signal cache: %w", err)
	}
	return &SignalRepo{
		db:     db,
		cache:  cache,
		logger: log.NewHelper(logger),
	}, nil
}

// Insert records a new trading signal observation and invalidates the cached
// series for that symbol.
func (r *SignalRepo) Insert(ctx context.Context, signal *TradingSignal) error {
	if err := r.db.WithContext(ctx).Create(signal).Error; err != nil {
		return fmt.Errorf("failed to insert trading signal: %w", err)
	}
	r.cache.Remove(signal.Symbol)
	return nil
}

// RecentPrices returns up to limit price observations for a symbol, newest
// first. Callers that need chronological order must reverse the slice.
func (r *SignalRepo) RecentPrices(ctx context.Context, symbol string, limit int) ([]float64, error) {
	if entry, ok := r.cache.Get(symbol); ok {
		if time.Since(entry.fetchedAt) < signalCacheTTL && len(entry.prices) >= limit {
			return entry.prices[:limit], nil
		}
	}

	var prices []float64
	err := r.db.WithContext(ctx).
		Model(&TradingSignal{}).
		Where("symbol = ?", symbol).
		Order("timestamp DESC").
		Limit(limit).
		Pluck("price", &prices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices for %s: %w", symbol, err)
	}

	r.cache.Add(symbol, &cachedSeries{
		prices:    prices,
		fetchedAt: time.Now(),
	})

	return prices, nil
}
