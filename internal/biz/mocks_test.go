package biz

import (
	"context"
	"time"

	"TradeSentry/internal/data"
	"TradeSentry/internal/model"

	"github.com/stretchr/testify/mock"
)

// MockCircuitBreakerRepo is a mock implementation of CircuitBreakerRepo for testing.
type MockCircuitBreakerRepo struct {
	mock.Mock
}

func (m *MockCircuitBreakerRepo) GetLatestActive(ctx context.Context) (*data.CircuitBreakerRecord, error) {
	args := m.Called(ctx)
	if rec := args.Get(0); rec != nil {
		return rec.(*data.CircuitBreakerRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCircuitBreakerRepo) TripBreaker(ctx context.Context, rec *data.CircuitBreakerRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockCircuitBreakerRepo) ExpireRecord(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCircuitBreakerRepo) ResetAll(ctx context.Context, cooldownUntil time.Time) (int64, error) {
	args := m.Called(ctx, cooldownUntil)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCircuitBreakerRepo) GetLatestCooldown(ctx context.Context) (*data.CircuitBreakerRecord, error) {
	args := m.Called(ctx)
	if rec := args.Get(0); rec != nil {
		return rec.(*data.CircuitBreakerRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCircuitBreakerRepo) CountTriggersSince(ctx context.Context, since time.Time) (int, int, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockCircuitBreakerRepo) HasManualResetSince(ctx context.Context, since time.Time) (bool, error) {
	args := m.Called(ctx, since)
	return args.Bool(0), args.Error(1)
}

func (m *MockCircuitBreakerRepo) HasExpiredResumedSince(ctx context.Context, since time.Time) (bool, error) {
	args := m.Called(ctx, since)
	return args.Bool(0), args.Error(1)
}

func (m *MockCircuitBreakerRepo) IsHaltedFast(ctx context.Context) (bool, string) {
	args := m.Called(ctx)
	return args.Bool(0), args.String(1)
}

// MockTradeRepo is a mock implementation of TradeRepo for testing.
type MockTradeRepo struct {
	mock.Mock
}

func (m *MockTradeRepo) Insert(ctx context.Context, trade *data.Trade) error {
	args := m.Called(ctx, trade)
	return args.Error(0)
}

func (m *MockTradeRepo) SumClosedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockTradeRepo) RecentCloseTrades(ctx context.Context, limit int) ([]*data.Trade, error) {
	args := m.Called(ctx, limit)
	if trades := args.Get(0); trades != nil {
		return trades.([]*data.Trade), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTradeRepo) CountOpenTradesSince(ctx context.Context, symbol string, since time.Time) (int64, error) {
	args := m.Called(ctx, symbol, since)
	return args.Get(0).(int64), args.Error(1)
}

// MockAccountRepo is a mock implementation of AccountRepo for testing.
type MockAccountRepo struct {
	mock.Mock
}

func (m *MockAccountRepo) LatestTotalValue(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockAccountRepo) InsertSnapshot(ctx context.Context, totalValue float64, ts time.Time) error {
	args := m.Called(ctx, totalValue, ts)
	return args.Error(0)
}

// MockSignalRepo is a mock implementation of SignalRepo for testing.
type MockSignalRepo struct {
	mock.Mock
}

func (m *MockSignalRepo) Insert(ctx context.Context, signal *data.TradingSignal) error {
	args := m.Called(ctx, signal)
	return args.Error(0)
}

func (m *MockSignalRepo) RecentPrices(ctx context.Context, symbol string, limit int) ([]float64, error) {
	args := m.Called(ctx, symbol, limit)
	if prices := args.Get(0); prices != nil {
		return prices.([]float64), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockSessionRepo is a mock implementation of SessionRepo for testing.
type MockSessionRepo struct {
	mock.Mock
}

func (m *MockSessionRepo) Load(ctx context.Context) (*data.SessionState, error) {
	args := m.Called(ctx)
	if state := args.Get(0); state != nil {
		return state.(*data.SessionState), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionRepo) IncrementIteration(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockRiskAuditLogger is a mock implementation of RiskAuditLogger for testing.
type MockRiskAuditLogger struct {
	mock.Mock
}

func (m *MockRiskAuditLogger) LogBreakerTriggered(ctx context.Context, triggerType, reason string, severity int, details interface{}) {
	m.Called(ctx, triggerType, reason, severity, details)
}

func (m *MockRiskAuditLogger) LogBreakerReset(ctx context.Context, rowsAffected int64) {
	m.Called(ctx, rowsAffected)
}

func (m *MockRiskAuditLogger) LogGateVerdict(ctx context.Context, symbol string, approved bool, warnings, blockers []string) {
	m.Called(ctx, symbol, approved, warnings, blockers)
}

// noopAuditLogger avoids mock setup noise for tests that do not assert on
// audit calls.
type noopAuditLogger struct{}

func (noopAuditLogger) LogBreakerTriggered(context.Context, string, string, int, interface{}) {}
func (noopAuditLogger) LogBreakerReset(context.Context, int64)                                {}
func (noopAuditLogger) LogGateVerdict(context.Context, string, bool, []string, []string)      {}

// MockWebhookService is a mock implementation of WebhookService for testing.
type MockWebhookService struct {
	mock.Mock
}

func (m *MockWebhookService) NotifyBreakerTriggered(ctx context.Context, event *model.BreakerTriggeredEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockWebhookService) NotifyBreakerResumed(ctx context.Context, event *model.BreakerResumedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockExchangeService is a mock implementation of ExchangeService for testing.
type MockExchangeService struct {
	mock.Mock
}

func (m *MockExchangeService) AccountTotalValue(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockExchangeService) OpenPositions(ctx context.Context) ([]model.OpenPosition, error) {
	args := m.Called(ctx)
	if positions := args.Get(0); positions != nil {
		return positions.([]model.OpenPosition), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockExchangeService) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockExchangeService) OpenMarketPosition(ctx context.Context, symbol, side string, notionalUSD, leverage float64) (*ExchangeOrder, error) {
	args := m.Called(ctx, symbol, side, notionalUSD, leverage)
	if order := args.Get(0); order != nil {
		return order.(*ExchangeOrder), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockExchangeService) CloseMarketPosition(ctx context.Context, pos *model.OpenPosition) (*ExchangeOrder, error) {
	args := m.Called(ctx, pos)
	if order := args.Get(0); order != nil {
		return order.(*ExchangeOrder), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockDecisionAgent is a mock implementation of DecisionAgent for testing.
type MockDecisionAgent struct {
	mock.Mock
}

func (m *MockDecisionAgent) Decide(ctx context.Context, snapshot *MarketSnapshot) (*AgentDecision, error) {
	args := m.Called(ctx, snapshot)
	if decision := args.Get(0); decision != nil {
		return decision.(*AgentDecision), args.Error(1)
	}
	return nil, args.Error(1)
}
