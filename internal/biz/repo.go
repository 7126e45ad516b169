package biz

import (
	"context"
	"time"

	"TradeSentry/internal/data"
)

// CircuitBreakerRepo defines the circuit breaker persistence interface.
// Following the Kratos v2 DDD architecture, interfaces are defined in biz
// layer; implementation is in data layer (data.CircuitBreakerRepo).
type CircuitBreakerRepo interface {
	GetLatestActive(ctx context.Context) (*data.CircuitBreakerRecord, error)
	TripBreaker(ctx context.Context, rec *data.CircuitBreakerRecord) error
	ExpireRecord(ctx context.Context, id int64) error
	ResetAll(ctx context.Context, cooldownUntil time.Time) (int64, error)
	GetLatestCooldown(ctx context.Context) (*data.CircuitBreakerRecord, error)
	CountTriggersSince(ctx context.Context, since time.Time) (count int, maxSeverity int, err error)
	HasManualResetSince(ctx context.Context, since time.Time) (bool, error)
	HasExpiredResumedSince(ctx context.Context, since time.Time) (bool, error)
	// IsHaltedFast consults the Redis halted marker only. A miss means
	// "ask MySQL", not "not halted".
	IsHaltedFast(ctx context.Context) (bool, string)
}

// TradeRepo defines read access to the trade history plus the insert used by
// the trading loop.
type TradeRepo interface {
	Insert(ctx context.Context, trade *data.Trade) error
	SumClosedPnLSince(ctx context.Context, since time.Time) (float64, error)
	RecentCloseTrades(ctx context.Context, limit int) ([]*data.Trade, error)
	CountOpenTradesSince(ctx context.Context, symbol string, since time.Time) (int64, error)
}

// AccountRepo serves the reference balance for percentage-based thresholds.
type AccountRepo interface {
	LatestTotalValue(ctx context.Context) (float64, error)
	InsertSnapshot(ctx context.Context, totalValue float64, ts time.Time) error
}

// SignalRepo serves recent price series for the correlation detector.
type SignalRepo interface {
	Insert(ctx context.Context, signal *data.TradingSignal) error
	RecentPrices(ctx context.Context, symbol string, limit int) ([]float64, error)
}

// SessionRepo persists trading loop state across restarts.
type SessionRepo interface {
	Load(ctx context.Context) (*data.SessionState, error)
	IncrementIteration(ctx context.Context) (int64, error)
}

// RiskAuditLogger records risk events for post-hoc review. Implementations
// must be non-blocking.
type RiskAuditLogger interface {
	LogBreakerTriggered(ctx context.Context, triggerType, reason string, severity int, details interface{})
	LogBreakerReset(ctx context.Context, rowsAffected int64)
	LogGateVerdict(ctx context.Context, symbol string, approved bool, warnings, blockers []string)
}
