package data

import (
	"context"
	"fmt"
	"time"

	pkgerrors "TradeSentry/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// TradeRepo implements the biz-layer TradeRepo interface. The risk core only
// reads this table; rows are written by the trading loop on execution.
type TradeRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewTradeRepo creates a new trade repository.
func NewTradeRepo(db *gorm.DB, logger log.Logger) *TradeRepo {
	return &TradeRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// Insert records an executed trade.
// Returns classified database errors for better error handling in upper layers.
func (r *TradeRepo) Insert(ctx context.Context, trade *Trade) error {
	if err := r.db.WithContext(ctx).Create(trade).Error; err != nil {
		dbErr := pkgerrors.ClassifyDBError(err)

		switch dbErr.Type {
		case pkgerrors.ErrorTypeDuplicateKey:
			r.logger.Warnw("duplicate trade order id",
				"order_id", trade.OrderID,
				"symbol", trade.Symbol,
				"error", dbErr.Error())
		case pkgerrors.ErrorTypeConnectionError:
			r.logger.Errorw("database connection error",
				"error", dbErr.Error())
		default:
			r.logger.Errorw("failed to insert trade",
				"symbol", trade.Symbol,
				"error", dbErr.Error())
		}

		return dbErr
	}
	return nil
}

// SumClosedPnLSince sums the pnl of close-type trades at or after the given
// instant. Trades with NULL pnl are excluded from the aggregate.
func (r *TradeRepo) SumClosedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	var out struct {
		Total *float64
	}
	err := r.db.WithContext(ctx).
		Model(&Trade{}).
		Select("SUM(pnl) AS total").
		Where("type = ? AND pnl IS NOT NULL AND timestamp >= ?", TradeClose, since).
		Scan(&out).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum closed pnl: %w", err)
	}
	if out.Total == nil {
		return 0, nil
	}
	return *out.Total, nil
}

// RecentCloseTrades returns the most recent close-type trades with non-null
// pnl, newest first, up to limit rows.
func (r *TradeRepo) RecentCloseTrades(ctx context.Context, limit int) ([]*Trade, error) {
	var trades []*Trade
	err := r.db.WithContext(ctx).
		Where("type = ? AND pnl IS NOT NULL", TradeClose).
		Order("timestamp DESC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent close trades: %w", err)
	}
	return trades, nil
}

// CountOpenTradesSince counts open-type trades for a symbol at or after the
// given instant. Feeds the frequency anomaly detector.
func (r *TradeRepo) CountOpenTradesSince(ctx context.Context, symbol string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Trade{}).
		Where("symbol = ? AND type = ? AND timestamp >= ?", symbol, TradeOpen, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count open trades for %s: %w", symbol, err)
	}
	return count, nil
}
