package biz

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"TradeSentry/internal/data"
	"TradeSentry/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

// Helper function to create a test CircuitBreakerUseCase with a frozen clock
func newTestBreaker(repo *MockCircuitBreakerRepo, trades *MockTradeRepo, accounts *MockAccountRepo, webhook WebhookService, now time.Time) *CircuitBreakerUseCase {
	logger := log.NewStdLogger(os.Stdout)
	uc := NewCircuitBreakerUseCase(repo, trades, accounts, noopAuditLogger{}, webhook, nil, logger)
	uc.now = func() time.Time { return now }
	return uc
}

// expectQuietHistory wires the mocks for a state with no active breaker, no
// cooldown and no recent triggers.
func expectQuietHistory(repo *MockCircuitBreakerRepo, ctx context.Context) {
	repo.On("GetLatestActive", ctx).Return(nil, gorm.ErrRecordNotFound)
	repo.On("GetLatestCooldown", ctx).Return(nil, gorm.ErrRecordNotFound)
	repo.On("CountTriggersSince", ctx, mock.Anything).Return(0, 0, nil)
	repo.On("HasManualResetSince", ctx, mock.Anything).Return(false, nil)
	repo.On("HasExpiredResumedSince", ctx, mock.Anything).Return(false, nil)
}

func pnlPtr(v float64) *float64 { return &v }

// losingCloses builds n newest-first losing close trades, the oldest at
// the given age.
func losingCloses(n int, now time.Time, oldestAge time.Duration) []*data.Trade {
	trades := make([]*data.Trade, n)
	for i := 0; i < n; i++ {
		age := time.Duration(i+1) * oldestAge / time.Duration(n)
		trades[i] = &data.Trade{
			ID:        int64(i + 1),
			Symbol:    "BTCUSDT",
			Type:      data.TradeClose,
			PnL:       pnlPtr(-10),
			Timestamp: now.Add(-age),
		}
	}
	return trades
}

// Test Check - Healthy account with no history does not halt
func TestCheck_NoTriggers(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, nil, now)

	ctx := context.Background()
	expectQuietHistory(mockRepo, ctx)
	mockAccounts.On("LatestTotalValue", ctx).Return(10000.0, nil)
	mockTrades.On("SumClosedPnLSince", ctx, mock.Anything).Return(-100.0, nil)
	mockTrades.On("RecentCloseTrades", ctx, consecutiveLossCount).
		Return(losingCloses(2, now, time.Hour), nil)
	mockTrades.On("RecentCloseTrades", ctx, 1).
		Return([]*data.Trade{{ID: 9, Type: data.TradeClose, PnL: pnlPtr(50)}}, nil)

	status := uc.Check(ctx)
	assert.False(t, status.ShouldHalt)
	assert.False(t, status.IsInCooldown)
	assert.Equal(t, 1, status.SeverityLevel)
	mockRepo.AssertExpectations(t)
}

// Test Check - Active breaker before resume time halts without mutation
func TestCheck_ActiveBreakerHalts(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, nil, now)

	ctx := context.Background()
	resumeAt := now.Add(3 * time.Hour)
	mockRepo.On("GetLatestActive", ctx).Return(&data.CircuitBreakerRecord{
		ID:            7,
		Reason:        "daily loss -16.00% breached threshold -15.00%",
		TriggerType:   string(model.TriggerDailyLoss),
		ResumeAt:      resumeAt,
		SeverityLevel: 2,
	}, nil)

	status := uc.Check(ctx)
	assert.True(t, status.ShouldHalt)
	assert.Equal(t, model.TriggerDailyLoss, status.TriggerType)
	assert.Equal(t, 2, status.SeverityLevel)
	assert.Equal(t, resumeAt, *status.ResumeTime)
	mockRepo.AssertNotCalled(t, "ExpireRecord", mock.Anything, mock.Anything)
}

// Test Check - Elapsed breaker is expired and grace allows trading
func TestCheck_AutoResume(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	mockWebhook := new(MockWebhookService)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, mockWebhook, now)

	ctx := context.Background()
	resumeAt := now.Add(-2 * time.Minute)
	cooldownUntil := resumeAt.Add(cooldownDuration)
	mockRepo.On("GetLatestActive", ctx).Return(&data.CircuitBreakerRecord{
		ID:            7,
		ResumeAt:      resumeAt,
		SeverityLevel: 2,
		CooldownUntil: &cooldownUntil,
	}, nil)
	mockRepo.On("ExpireRecord", ctx, int64(7)).Return(nil)
	mockWebhook.On("NotifyBreakerResumed", ctx, mock.Anything).Return(nil)
	mockRepo.On("GetLatestCooldown", ctx).Return(&data.CircuitBreakerRecord{
		ID:            7,
		SeverityLevel: 2,
		CooldownUntil: &cooldownUntil,
	}, nil)
	mockRepo.On("CountTriggersSince", ctx, mock.Anything).Return(1, 2, nil)
	mockRepo.On("HasManualResetSince", ctx, mock.Anything).Return(false, nil)
	mockRepo.On("HasExpiredResumedSince", ctx, mock.Anything).Return(true, nil)

	status := uc.Check(ctx)
	assert.False(t, status.ShouldHalt)
	assert.True(t, status.IsInCooldown)
	assert.Equal(t, cooldownUntil, *status.CooldownUntil)
	mockRepo.AssertCalled(t, "ExpireRecord", ctx, int64(7))
	mockWebhook.AssertExpectations(t)
}

// Test Check - Unreadable resume time keeps the halt with a fixed fallback
func TestCheck_CorruptResumeTime(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, nil, now)

	ctx := context.Background()
	mockRepo.On("GetLatestActive", ctx).Return(&data.CircuitBreakerRecord{
		ID:          3,
		TriggerType: string(model.TriggerHourlyLoss),
	}, nil)

	status := uc.Check(ctx)
	assert.True(t, status.ShouldHalt)
	assert.Equal(t, now.Add(corruptResumeFallback), *status.ResumeTime)
	mockRepo.AssertNotCalled(t, "ExpireRecord", mock.Anything, mock.Anything)
}

// Test Check - Daily loss past threshold trips a 12h halt
func TestCheck_DailyLossTrips(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	mockWebhook := new(MockWebhookService)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, mockWebhook, now)

	ctx := context.Background()
	expectQuietHistory(mockRepo, ctx)
	mockAccounts.On("LatestTotalValue", ctx).Return(10000.0, nil)
	// -1600 / 10000 = -16%, past the -15% daily threshold
	mockTrades.On("SumClosedPnLSince", ctx, mock.Anything).Return(-1600.0, nil)
	mockRepo.On("TripBreaker", ctx, mock.MatchedBy(func(rec *data.CircuitBreakerRecord) bool {
		return rec.TriggerType == string(model.TriggerDailyLoss) &&
			rec.SeverityLevel == 1 &&
			rec.Status == data.BreakerActive &&
			rec.ResumeAt.Equal(now.Add(12*time.Hour)) &&
			rec.CooldownUntil != nil &&
			rec.CooldownUntil.Equal(now.Add(12*time.Hour).Add(cooldownDuration))
	})).Return(nil)
	mockWebhook.On("NotifyBreakerTriggered", ctx, mock.Anything).Return(nil)

	status := uc.Check(ctx)
	assert.True(t, status.ShouldHalt)
	assert.Equal(t, model.TriggerDailyLoss, status.TriggerType)
	assert.Equal(t, 1, status.SeverityLevel)
	assert.Equal(t, now.Add(12*time.Hour), *status.ResumeTime)
	mockRepo.AssertExpectations(t)
	mockWebhook.AssertExpectations(t)
}

// Test Check - Repeated triggers escalate severity and double the halt
func TestCheck_SeverityEscalation(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, nil, now)

	ctx := context.Background()
	mockRepo.On("GetLatestActive", ctx).Return(nil, gorm.ErrRecordNotFound)
	mockRepo.On("GetLatestCooldown", ctx).Return(nil, gorm.ErrRecordNotFound)
	// 3 triggers in the last 24h with max severity 2 escalates to 3
	mockRepo.On("CountTriggersSince", ctx, mock.Anything).Return(3, 2, nil)
	mockRepo.On("HasManualResetSince", ctx, mock.Anything).Return(false, nil)
	mockRepo.On("HasExpiredResumedSince", ctx, mock.Anything).Return(false, nil)
	mockAccounts.On("LatestTotalValue", ctx).Return(10000.0, nil)
	mockTrades.On("SumClosedPnLSince", ctx, mock.Anything).Return(-1600.0, nil)
	mockRepo.On("TripBreaker", ctx, mock.MatchedBy(func(rec *data.CircuitBreakerRecord) bool {
		// base 12h doubled twice at severity 3
		return rec.SeverityLevel == 3 && rec.ResumeAt.Equal(now.Add(48*time.Hour))
	})).Return(nil)

	status := uc.Check(ctx)
	assert.True(t, status.ShouldHalt)
	assert.Equal(t, 3, status.SeverityLevel)
	assert.Equal(t, now.Add(48*time.Hour), *status.ResumeTime)
}

// Test Check - Cooldown halves the loss thresholds
func TestCheck_CooldownTightensThresholds(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, nil, now)

	ctx := context.Background()
	cooldownUntil := now.Add(2 * time.Hour)
	mockRepo.On("GetLatestActive", ctx).Return(nil, gorm.ErrRecordNotFound)
	mockRepo.On("GetLatestCooldown", ctx).Return(&data.CircuitBreakerRecord{
		ID:            4,
		SeverityLevel: 2,
		CooldownUntil: &cooldownUntil,
	}, nil)
	mockRepo.On("CountTriggersSince", ctx, mock.Anything).Return(0, 0, nil)
	mockRepo.On("HasManualResetSince", ctx, mock.Anything).Return(false, nil)
	mockRepo.On("HasExpiredResumedSince", ctx, mock.Anything).Return(false, nil)
	mockAccounts.On("LatestTotalValue", ctx).Return(10000.0, nil)
	// -8% would not trip the -15% daily threshold, but in cooldown the
	// effective threshold is -7.5%
	mockTrades.On("SumClosedPnLSince", ctx, mock.Anything).Return(-800.0, nil)
	mockRepo.On("TripBreaker", ctx, mock.MatchedBy(func(rec *data.CircuitBreakerRecord) bool {
		// severity carried over from the cooldown record
		return rec.TriggerType == string(model.TriggerDailyLoss) && rec.SeverityLevel == 2
	})).Return(nil)

	status := uc.Check(ctx)
	assert.True(t, status.ShouldHalt)
	assert.True(t, status.IsInCooldown)
	assert.Equal(t, 2, status.SeverityLevel)
}

// Test Check - Five consecutive losses within four hours trip the breaker
func TestCheck_ConsecutiveLossTrips(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, nil, now)

	ctx := context.Background()
	expectQuietHistory(mockRepo, ctx)
	mockAccounts.On("LatestTotalValue", ctx).Return(10000.0, nil)
	mockTrades.On("SumClosedPnLSince", ctx, mock.Anything).Return(-100.0, nil)
	mockTrades.On("RecentCloseTrades", ctx, consecutiveLossCount).
		Return(losingCloses(5, now, 3*time.Hour), nil)
	mockRepo.On("TripBreaker", ctx, mock.MatchedBy(func(rec *data.CircuitBreakerRecord) bool {
		return rec.TriggerType == string(model.TriggerConsecutiveLoss) &&
			rec.ResumeAt.Equal(now.Add(2*time.Hour))
	})).Return(nil)

	status := uc.Check(ctx)
	assert.True(t, status.ShouldHalt)
	assert.Equal(t, model.TriggerConsecutiveLoss, status.TriggerType)
}

// Test Check - Cooldown reduces the consecutive-loss count from 5 to 3
func TestCheck_ConsecutiveLossCooldownCount(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, nil, now)

	ctx := context.Background()
	cooldownUntil := now.Add(2 * time.Hour)
	mockRepo.On("GetLatestActive", ctx).Return(nil, gorm.ErrRecordNotFound)
	mockRepo.On("GetLatestCooldown", ctx).Return(&data.CircuitBreakerRecord{
		ID:            4,
		SeverityLevel: 2,
		CooldownUntil: &cooldownUntil,
	}, nil)
	mockRepo.On("CountTriggersSince", ctx, mock.Anything).Return(0, 0, nil)
	mockRepo.On("HasManualResetSince", ctx, mock.Anything).Return(false, nil)
	mockRepo.On("HasExpiredResumedSince", ctx, mock.Anything).Return(false, nil)
	mockAccounts.On("LatestTotalValue", ctx).Return(10000.0, nil)
	// -1% keeps the halved loss windows quiet
	mockTrades.On("SumClosedPnLSince", ctx, mock.Anything).Return(-100.0, nil)
	// only the tightened count is fetched, and 3 losses within 2h trip
	mockTrades.On("RecentCloseTrades", ctx, consecutiveLossCountCooldown).
		Return(losingCloses(3, now, 2*time.Hour), nil)
	mockRepo.On("TripBreaker", ctx, mock.MatchedBy(func(rec *data.CircuitBreakerRecord) bool {
		return rec.TriggerType == string(model.TriggerConsecutiveLoss) &&
			rec.SeverityLevel == 2
	})).Return(nil)

	status := uc.Check(ctx)
	assert.True(t, status.ShouldHalt)
	assert.True(t, status.IsInCooldown)
	assert.Equal(t, model.TriggerConsecutiveLoss, status.TriggerType)
	mockTrades.AssertNotCalled(t, "RecentCloseTrades", ctx, consecutiveLossCount)
	mockRepo.AssertExpectations(t)
}

// Test Check - A losing streak older than the window does not trip
func TestCheck_ConsecutiveLossStreakTooOld(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, nil, now)

	ctx := context.Background()
	expectQuietHistory(mockRepo, ctx)
	mockAccounts.On("LatestTotalValue", ctx).Return(10000.0, nil)
	mockTrades.On("SumClosedPnLSince", ctx, mock.Anything).Return(-100.0, nil)
	// oldest loss 6h ago, outside the 4h span
	mockTrades.On("RecentCloseTrades", ctx, consecutiveLossCount).
		Return(losingCloses(5, now, 6*time.Hour), nil)
	mockTrades.On("RecentCloseTrades", ctx, 1).
		Return(losingCloses(1, now, time.Minute), nil)

	status := uc.Check(ctx)
	assert.False(t, status.ShouldHalt)
	mockRepo.AssertNotCalled(t, "TripBreaker", mock.Anything, mock.Anything)
}

// Test Check - A single close losing 3% of the balance trips a 1h halt
func TestCheck_SingleLargeLoss(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, nil, now)

	ctx := context.Background()
	expectQuietHistory(mockRepo, ctx)
	mockAccounts.On("LatestTotalValue", ctx).Return(10000.0, nil)
	mockTrades.On("SumClosedPnLSince", ctx, mock.Anything).Return(-100.0, nil)
	mockTrades.On("RecentCloseTrades", ctx, consecutiveLossCount).
		Return(losingCloses(2, now, time.Hour), nil)
	// -400 / 10000 = -4% on a single trade
	mockTrades.On("RecentCloseTrades", ctx, 1).
		Return([]*data.Trade{{ID: 42, Symbol: "ETHUSDT", Type: data.TradeClose, PnL: pnlPtr(-400), Timestamp: now}}, nil)
	mockRepo.On("TripBreaker", ctx, mock.MatchedBy(func(rec *data.CircuitBreakerRecord) bool {
		return rec.TriggerType == string(model.TriggerSingleLargeLoss) &&
			rec.ResumeAt.Equal(now.Add(time.Hour))
	})).Return(nil)

	status := uc.Check(ctx)
	assert.True(t, status.ShouldHalt)
	assert.Equal(t, model.TriggerSingleLargeLoss, status.TriggerType)
}

// Test Check - A recent manual reset suppresses loss checks
func TestCheck_ManualResetGrace(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, nil, now)

	ctx := context.Background()
	mockRepo.On("GetLatestActive", ctx).Return(nil, gorm.ErrRecordNotFound)
	mockRepo.On("GetLatestCooldown", ctx).Return(nil, gorm.ErrRecordNotFound)
	mockRepo.On("CountTriggersSince", ctx, mock.Anything).Return(1, 1, nil)
	mockRepo.On("HasManualResetSince", ctx, mock.Anything).Return(true, nil)

	status := uc.Check(ctx)
	assert.False(t, status.ShouldHalt)
	mockTrades.AssertNotCalled(t, "SumClosedPnLSince", mock.Anything, mock.Anything)
}

// Test Check - Store failure fails open (graceful degradation)
func TestCheck_FailOpen(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, nil, now)

	ctx := context.Background()
	mockRepo.On("GetLatestActive", ctx).Return(nil, errors.New("mysql gone"))

	status := uc.Check(ctx)
	assert.False(t, status.ShouldHalt)
}

// Test Status - Redis marker hit answers without touching MySQL
func TestStatus_FastPathHit(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	uc := newTestBreaker(mockRepo, new(MockTradeRepo), new(MockAccountRepo), nil, now)

	ctx := context.Background()
	mockRepo.On("IsHaltedFast", ctx).Return(true, "daily loss breach")

	status := uc.Status(ctx)
	assert.True(t, status.ShouldHalt)
	assert.Equal(t, "daily loss breach", status.Reason)
	mockRepo.AssertNotCalled(t, "GetLatestActive", mock.Anything)
}

// Test Status - Marker miss falls back to the full evaluation
func TestStatus_FastPathMiss(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockTrades := new(MockTradeRepo)
	mockAccounts := new(MockAccountRepo)
	uc := newTestBreaker(mockRepo, mockTrades, mockAccounts, nil, now)

	ctx := context.Background()
	mockRepo.On("IsHaltedFast", ctx).Return(false, "")
	expectQuietHistory(mockRepo, ctx)
	mockAccounts.On("LatestTotalValue", ctx).Return(10000.0, nil)
	mockTrades.On("SumClosedPnLSince", ctx, mock.Anything).Return(0.0, nil)
	mockTrades.On("RecentCloseTrades", ctx, mock.Anything).Return(nil, nil)

	status := uc.Status(ctx)
	assert.False(t, status.ShouldHalt)
	mockRepo.AssertCalled(t, "GetLatestActive", ctx)
}

// Test Reset - No active breaker still succeeds (idempotent)
func TestReset_Idempotent(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockWebhook := new(MockWebhookService)
	uc := newTestBreaker(mockRepo, new(MockTradeRepo), new(MockAccountRepo), mockWebhook, now)

	ctx := context.Background()
	mockRepo.On("ResetAll", ctx, now.Add(cooldownDuration)).Return(int64(0), nil)

	ok, err := uc.Reset(ctx)
	assert.NoError(t, err)
	assert.True(t, ok)
	mockWebhook.AssertNotCalled(t, "NotifyBreakerResumed", mock.Anything, mock.Anything)
}

// Test Reset - Active breakers are cleared and the webhook fires
func TestReset_ClearsActive(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockWebhook := new(MockWebhookService)
	uc := newTestBreaker(mockRepo, new(MockTradeRepo), new(MockAccountRepo), mockWebhook, now)

	ctx := context.Background()
	mockRepo.On("ResetAll", ctx, now.Add(cooldownDuration)).Return(int64(1), nil)
	mockWebhook.On("NotifyBreakerResumed", ctx, mock.MatchedBy(func(e *model.BreakerResumedEvent) bool {
		return e.Manual
	})).Return(nil)

	ok, err := uc.Reset(ctx)
	assert.NoError(t, err)
	assert.True(t, ok)
	mockWebhook.AssertExpectations(t)
}

// Test Reset - A failing webhook does not fail the reset
func TestReset_WebhookFailureNonFatal(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	mockWebhook := new(MockWebhookService)
	uc := newTestBreaker(mockRepo, new(MockTradeRepo), new(MockAccountRepo), mockWebhook, now)

	ctx := context.Background()
	mockRepo.On("ResetAll", ctx, now.Add(cooldownDuration)).Return(int64(2), nil)
	mockWebhook.On("NotifyBreakerResumed", ctx, mock.Anything).
		Return(errors.New("webhook endpoint down"))

	ok, err := uc.Reset(ctx)
	assert.NoError(t, err)
	assert.True(t, ok)
	mockWebhook.AssertExpectations(t)
}

// Test Reset - Store failure is the only failure mode
func TestReset_StoreError(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	mockRepo := new(MockCircuitBreakerRepo)
	uc := newTestBreaker(mockRepo, new(MockTradeRepo), new(MockAccountRepo), nil, now)

	ctx := context.Background()
	mockRepo.On("ResetAll", ctx, mock.Anything).Return(int64(0), errors.New("mysql gone"))

	ok, err := uc.Reset(ctx)
	assert.Error(t, err)
	assert.False(t, ok)
}

// Test nextSeverity - Escalation rules over the 24h window
func TestNextSeverity(t *testing.T) {
	tests := []struct {
		name        string
		count       int
		maxSeverity int
		want        int
	}{
		{"quiet day resets to 1", 0, 3, 1},
		{"single trigger keeps max", 1, 2, 2},
		{"two triggers capped at 3", 2, 4, 3},
		{"three triggers escalate", 3, 2, 3},
		{"escalation capped at 4", 3, 4, 4},
		{"pre-migration zero severity treated as 1", 1, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextSeverity(tt.count, tt.maxSeverity))
		})
	}
}
