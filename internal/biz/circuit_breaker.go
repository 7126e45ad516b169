package biz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TradeSentry/internal/conf"
	"TradeSentry/internal/data"
	"TradeSentry/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// Default loss thresholds, percent of balance. Negative means loss.
// conf.Risk overrides apply when non-zero.
const (
	defaultDailyLossPct       = -15.0
	defaultHourlyLossPct      = -5.0
	defaultFourHourLossPct    = -8.0
	defaultSingleLargeLossPct = -3.0
)

// Base halt durations per trigger type. Actual duration doubles per
// severity level: base << (severity - 1).
const (
	dailyLossBaseHalt       = 12 * time.Hour
	hourlyLossBaseHalt      = 2 * time.Hour
	fourHourLossBaseHalt    = 4 * time.Hour
	consecutiveLossBaseHalt = 2 * time.Hour
	singleLargeLossBaseHalt = 1 * time.Hour
)

const (
	// maxSeverityLevel caps escalation.
	maxSeverityLevel = 4
	// severityLookback is the window counted for escalation.
	severityLookback = 24 * time.Hour

	// cooldownDuration extends past resume with tightened thresholds.
	cooldownDuration = 6 * time.Hour
	// cooldownThresholdMultiplier tightens loss thresholds during cooldown.
	cooldownThresholdMultiplier = 0.5

	// manualResetGrace suppresses loss checks after a manual reset so the
	// breaker does not refire on the same realized losses.
	manualResetGrace = 4 * time.Hour
	// autoResumeGrace briefly suppresses loss checks after auto-resume.
	autoResumeGrace = 10 * time.Minute

	// corruptResumeFallback is how long a breaker with an unreadable
	// resume time stays halted from now.
	corruptResumeFallback = 2 * time.Hour

	// consecutiveLossCount trips on this many losing closes in a row.
	consecutiveLossCount = 5
	// consecutiveLossCountCooldown is the tightened count during cooldown.
	consecutiveLossCountCooldown = 3
	// consecutiveLossSpan bounds how old the streak may be.
	consecutiveLossSpan = 4 * time.Hour
)

// CircuitBreakerUseCase implements the account-level loss circuit breaker.
//
// Evaluation is stateless per call: every Check() re-derives the verdict
// from the persisted breaker log and trade history, so restarts lose
// nothing. Store failures fail OPEN (trading allowed) with error-level
// logging; halting on infrastructure flakiness would turn every MySQL
// hiccup into a trading outage.
type CircuitBreakerUseCase struct {
	repo     CircuitBreakerRepo
	trades   TradeRepo
	accounts AccountRepo
	audit    RiskAuditLogger
	webhook  WebhookService
	logger   *log.Helper

	loc *time.Location

	dailyLossPct       float64
	hourlyLossPct      float64
	fourHourLossPct    float64
	singleLargeLossPct float64

	// now is injectable for tests.
	now func() time.Time
}

// NewCircuitBreakerUseCase creates the breaker engine with thresholds and
// timezone from configuration. Zero-valued thresholds fall back to defaults.
func NewCircuitBreakerUseCase(
	repo CircuitBreakerRepo,
	trades TradeRepo,
	accounts AccountRepo,
	audit RiskAuditLogger,
	webhook WebhookService,
	c *conf.Bootstrap,
	logger log.Logger,
) *CircuitBreakerUseCase {
	uc := &CircuitBreakerUseCase{
		repo:               repo,
		trades:             trades,
		accounts:           accounts,
		audit:              audit,
		webhook:            webhook,
		logger:             log.NewHelper(logger),
		loc:                time.UTC,
		dailyLossPct:       defaultDailyLossPct,
		hourlyLossPct:      defaultHourlyLossPct,
		fourHourLossPct:    defaultFourHourLossPct,
		singleLargeLossPct: defaultSingleLargeLossPct,
		now:                time.Now,
	}

	if c != nil && c.Trading != nil && c.Trading.Location != "" {
		if loc, err := time.LoadLocation(c.Trading.Location); err == nil {
			uc.loc = loc
		}
	}
	if c != nil && c.Risk != nil {
		if c.Risk.DailyLossPct < 0 {
			uc.dailyLossPct = c.Risk.DailyLossPct
		}
		if c.Risk.HourlyLossPct < 0 {
			uc.hourlyLossPct = c.Risk.HourlyLossPct
		}
		if c.Risk.FourHourLossPct < 0 {
			uc.fourHourLossPct = c.Risk.FourHourLossPct
		}
		if c.Risk.SingleLargeLossPct < 0 {
			uc.singleLargeLossPct = c.Risk.SingleLargeLossPct
		}
	}
	return uc
}

// Check evaluates the breaker. It never returns an error: evaluation
// failures degrade to "trading allowed" with error-level logging.
func (uc *CircuitBreakerUseCase) Check(ctx context.Context) *model.CircuitBreakerStatus {
	status, err := uc.evaluate(ctx)
	if err != nil {
		// 熔断器评估失败时放行交易，由上层的仓位异常检测兜底
		uc.logger.Errorw("circuit breaker evaluation failed, failing open",
			"type", "breaker",
			"error", err)
		return &model.CircuitBreakerStatus{ShouldHalt: false}
	}
	return status
}

func (uc *CircuitBreakerUseCase) evaluate(ctx context.Context) (*model.CircuitBreakerStatus, error) {
	now := uc.now()

	// 1. Is a breaker currently active?
	active, err := uc.repo.GetLatestActive(ctx)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load active breaker: %w", err)
	}
	if active != nil {
		if active.ResumeAt.IsZero() {
			// Resume time is unreadable. Stay halted on a fixed fallback
			// rather than resuming on corrupt data.
			fallback := now.Add(corruptResumeFallback)
			uc.logger.Errorw("active breaker has no readable resume time, extending halt",
				"type", "breaker",
				"record_id", active.ID,
				"fallback_resume", fallback)
			return &model.CircuitBreakerStatus{
				ShouldHalt:    true,
				Reason:        active.Reason,
				TriggerType:   model.TriggerType(active.TriggerType),
				ResumeTime:    &fallback,
				SeverityLevel: active.SeverityLevel,
			}, nil
		}

		if now.Before(active.ResumeAt) {
			resume := active.ResumeAt
			return &model.CircuitBreakerStatus{
				ShouldHalt:    true,
				Reason:        active.Reason,
				TriggerType:   model.TriggerType(active.TriggerType),
				ResumeTime:    &resume,
				SeverityLevel: active.SeverityLevel,
			}, nil
		}

		// Halt window elapsed. Expire the record and fall through to the
		// normal loss checks (cooldown now applies).
		if err := uc.repo.ExpireRecord(ctx, active.ID); err != nil {
			return nil, fmt.Errorf("expire breaker %d: %w", active.ID, err)
		}
		cooldownUntil := active.ResumeAt.Add(cooldownDuration)
		uc.logger.Infow("circuit breaker auto-resumed",
			"type", "breaker",
			"record_id", active.ID,
			"cooldown_until", cooldownUntil)
		uc.notifyResumed(ctx, &model.BreakerResumedEvent{
			Manual:        false,
			ResumedAt:     now,
			CooldownUntil: cooldownUntil,
		})
	}

	// 2. Cooldown state from the most recent finished breaker.
	inCooldown := false
	var cooldownUntil *time.Time
	cooldownSeverity := 0
	thresholdMultiplier := 1.0

	last, err := uc.repo.GetLatestCooldown(ctx)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load cooldown state: %w", err)
	}
	if last != nil && last.CooldownUntil != nil && now.Before(*last.CooldownUntil) {
		inCooldown = true
		cooldownUntil = last.CooldownUntil
		cooldownSeverity = last.SeverityLevel
		thresholdMultiplier = cooldownThresholdMultiplier
	}

	// 3. Severity for the NEXT trigger, escalated on recent history.
	count, maxSeverity, err := uc.repo.CountTriggersSince(ctx, now.Add(-severityLookback))
	if err != nil {
		return nil, fmt.Errorf("count recent triggers: %w", err)
	}
	severity := nextSeverity(count, maxSeverity)
	if cooldownSeverity > severity {
		severity = cooldownSeverity
	}

	// 4. Grace periods suppress loss checks so a fresh reset or resume is
	// not immediately re-tripped by the same realized losses.
	if manual, err := uc.repo.HasManualResetSince(ctx, now.Add(-manualResetGrace)); err != nil {
		return nil, fmt.Errorf("check manual reset grace: %w", err)
	} else if manual {
		return &model.CircuitBreakerStatus{
			ShouldHalt:    false,
			IsInCooldown:  inCooldown,
			CooldownUntil: cooldownUntil,
			SeverityLevel: severity,
		}, nil
	}
	if resumed, err := uc.repo.HasExpiredResumedSince(ctx, now.Add(-autoResumeGrace)); err != nil {
		return nil, fmt.Errorf("check auto-resume grace: %w", err)
	} else if resumed {
		return &model.CircuitBreakerStatus{
			ShouldHalt:    false,
			IsInCooldown:  inCooldown,
			CooldownUntil: cooldownUntil,
			SeverityLevel: severity,
		}, nil
	}

	// 5. Loss-based triggers against the current balance.
	balance, err := uc.accounts.LatestTotalValue(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		balance = defaultBalance
	} else if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	if balance <= 0 {
		// Percentages are meaningless against a non-positive balance.
		uc.logger.Warnw("non-positive balance, skipping loss checks",
			"type", "breaker",
			"balance", balance)
		return &model.CircuitBreakerStatus{
			ShouldHalt:    false,
			IsInCooldown:  inCooldown,
			CooldownUntil: cooldownUntil,
			SeverityLevel: severity,
		}, nil
	}

	if trig, err := uc.checkLossWindows(ctx, now, balance, thresholdMultiplier); err != nil {
		return nil, err
	} else if trig != nil {
		return uc.trip(ctx, now, trig, severity, inCooldown)
	}

	if trig, err := uc.checkConsecutiveLosses(ctx, now, inCooldown); err != nil {
		return nil, err
	} else if trig != nil {
		return uc.trip(ctx, now, trig, severity, inCooldown)
	}

	if trig, err := uc.checkSingleLargeLoss(ctx, balance, thresholdMultiplier); err != nil {
		return nil, err
	} else if trig != nil {
		return uc.trip(ctx, now, trig, severity, inCooldown)
	}

	return &model.CircuitBreakerStatus{
		ShouldHalt:    false,
		IsInCooldown:  inCooldown,
		CooldownUntil: cooldownUntil,
		SeverityLevel: severity,
	}, nil
}

// nextSeverity derives the severity for a new trigger from the 24h window.
// Repeated triggers escalate; a quiet day collapses back to level 1.
func nextSeverity(count, maxSeverity int) int {
	if maxSeverity < 1 {
		maxSeverity = 1
	}
	switch {
	case count >= 3:
		if maxSeverity+1 > maxSeverityLevel {
			return maxSeverityLevel
		}
		return maxSeverity + 1
	case count >= 2:
		if maxSeverity > 3 {
			return 3
		}
		return maxSeverity
	case count >= 1:
		return maxSeverity
	default:
		return 1
	}
}

// pendingTrigger carries a detected loss condition to trip().
type pendingTrigger struct {
	triggerType  model.TriggerType
	reason       string
	baseDuration time.Duration
	details      map[string]interface{}
}

// lossWindow describes one rolling-window loss check.
type lossWindow struct {
	triggerType  model.TriggerType
	since        time.Time
	thresholdPct float64
	baseDuration time.Duration
	label        string
}

func (uc *CircuitBreakerUseCase) checkLossWindows(ctx context.Context, now time.Time, balance, multiplier float64) (*pendingTrigger, error) {
	local := now.In(uc.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, uc.loc)

	windows := []lossWindow{
		{model.TriggerDailyLoss, midnight, uc.dailyLossPct, dailyLossBaseHalt, "daily"},
		{model.TriggerHourlyLoss, now.Add(-time.Hour), uc.hourlyLossPct, hourlyLossBaseHalt, "hourly"},
		{model.TriggerFourHourLoss, now.Add(-4 * time.Hour), uc.fourHourLossPct, fourHourLossBaseHalt, "4-hour"},
	}

	for _, w := range windows {
		pnl, err := uc.trades.SumClosedPnLSince(ctx, w.since)
		if err != nil {
			return nil, fmt.Errorf("sum %s pnl: %w", w.label, err)
		}
		pnlPct := pnl / balance * 100
		threshold := w.thresholdPct * multiplier
		if pnlPct <= threshold {
			return &pendingTrigger{
				triggerType:  w.triggerType,
				baseDuration: w.baseDuration,
				reason: fmt.Sprintf("%s loss %.2f%% breached threshold %.2f%%",
					w.label, pnlPct, threshold),
				details: map[string]interface{}{
					"pnl":           pnl,
					"pnl_pct":       pnlPct,
					"threshold_pct": threshold,
					"balance":       balance,
					"window_start":  w.since,
				},
			}, nil
		}
	}
	return nil, nil
}

func (uc *CircuitBreakerUseCase) checkConsecutiveLosses(ctx context.Context, now time.Time, inCooldown bool) (*pendingTrigger, error) {
	required := consecutiveLossCount
	if inCooldown {
		required = consecutiveLossCountCooldown
	}

	trades, err := uc.trades.RecentCloseTrades(ctx, required)
	if err != nil {
		return nil, fmt.Errorf("load recent closes: %w", err)
	}
	if len(trades) < required {
		return nil, nil
	}

	for _, t := range trades {
		if t.PnL == nil || *t.PnL >= 0 {
			return nil, nil
		}
	}

	// trades are newest-first; the streak must fit the span.
	oldest := trades[len(trades)-1]
	if now.Sub(oldest.Timestamp) > consecutiveLossSpan {
		return nil, nil
	}

	return &pendingTrigger{
		triggerType:  model.TriggerConsecutiveLoss,
		baseDuration: consecutiveLossBaseHalt,
		reason:       fmt.Sprintf("%d consecutive losing trades within %s", required, consecutiveLossSpan),
		details: map[string]interface{}{
			"required_count": required,
			"oldest_loss_at": oldest.Timestamp,
			"in_cooldown":    inCooldown,
		},
	}, nil
}

func (uc *CircuitBreakerUseCase) checkSingleLargeLoss(ctx context.Context, balance, multiplier float64) (*pendingTrigger, error) {
	trades, err := uc.trades.RecentCloseTrades(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("load last close: %w", err)
	}
	if len(trades) == 0 || trades[0].PnL == nil {
		return nil, nil
	}

	lossPct := *trades[0].PnL / balance * 100
	threshold := uc.singleLargeLossPct * multiplier
	if lossPct <= threshold {
		return &pendingTrigger{
			triggerType:  model.TriggerSingleLargeLoss,
			baseDuration: singleLargeLossBaseHalt,
			reason: fmt.Sprintf("single trade lost %.2f%% of balance (threshold %.2f%%)",
				lossPct, threshold),
			details: map[string]interface{}{
				"trade_id":      trades[0].ID,
				"symbol":        trades[0].Symbol,
				"pnl":           *trades[0].PnL,
				"pnl_pct":       lossPct,
				"threshold_pct": threshold,
			},
		}, nil
	}
	return nil, nil
}

// trip persists a new breaker record and returns the halted status.
// Halt duration doubles per severity level above 1.
func (uc *CircuitBreakerUseCase) trip(ctx context.Context, now time.Time, trig *pendingTrigger, severity int, inCooldown bool) (*model.CircuitBreakerStatus, error) {
	if severity < 1 {
		severity = 1
	}
	duration := trig.baseDuration << (severity - 1)
	resumeAt := now.Add(duration)
	cooldownUntil := resumeAt.Add(cooldownDuration)

	var detailsJSON *string
	if raw, err := json.Marshal(trig.details); err == nil {
		s := string(raw)
		detailsJSON = &s
	}

	rec := &data.CircuitBreakerRecord{
		Reason:         trig.reason,
		TriggeredAt:    now,
		ResumeAt:       resumeAt,
		Status:         data.BreakerActive,
		SeverityLevel:  severity,
		CooldownUntil:  &cooldownUntil,
		TriggerType:    string(trig.triggerType),
		TriggerDetails: detailsJSON,
	}
	if err := uc.repo.TripBreaker(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist breaker trigger: %w", err)
	}

	uc.audit.LogBreakerTriggered(ctx, string(trig.triggerType), trig.reason, severity, trig.details)
	uc.notifyTriggered(ctx, &model.BreakerTriggeredEvent{
		Reason:        trig.reason,
		TriggerType:   trig.triggerType,
		SeverityLevel: severity,
		TriggeredAt:   now,
		ResumeAt:      resumeAt,
	})

	uc.logger.Warnw("circuit breaker triggered",
		"type", "breaker",
		"trigger_type", trig.triggerType,
		"severity", severity,
		"halt_duration", duration,
		"resume_at", resumeAt,
		"in_cooldown", inCooldown,
		"reason", trig.reason)

	return &model.CircuitBreakerStatus{
		ShouldHalt:    true,
		Reason:        trig.reason,
		TriggerType:   trig.triggerType,
		ResumeTime:    &resumeAt,
		SeverityLevel: severity,
		IsInCooldown:  inCooldown,
	}, nil
}

// Status serves polling endpoints. It answers from the Redis halted marker
// when one is present and falls back to the full evaluation on a miss, so
// frequent dashboard polls do not hammer MySQL.
func (uc *CircuitBreakerUseCase) Status(ctx context.Context) *model.CircuitBreakerStatus {
	if halted, reason := uc.repo.IsHaltedFast(ctx); halted {
		return &model.CircuitBreakerStatus{
			ShouldHalt: true,
			Reason:     reason,
		}
	}
	return uc.Check(ctx)
}

// Reset clears any active breaker. It is idempotent: resetting with no
// active breaker succeeds and reports zero rows. Only store failures
// return false.
func (uc *CircuitBreakerUseCase) Reset(ctx context.Context) (bool, error) {
	now := uc.now()
	cooldownUntil := now.Add(cooldownDuration)

	rows, err := uc.repo.ResetAll(ctx, cooldownUntil)
	if err != nil {
		uc.logger.Errorw("manual breaker reset failed",
			"type", "breaker",
			"error", err)
		return false, err
	}

	uc.audit.LogBreakerReset(ctx, rows)
	if rows > 0 {
		uc.notifyResumed(ctx, &model.BreakerResumedEvent{
			Manual:        true,
			ResumedAt:     now,
			CooldownUntil: cooldownUntil,
		})
	}

	uc.logger.Infow("circuit breaker manually reset",
		"type", "breaker",
		"records_cleared", rows,
		"cooldown_until", cooldownUntil)
	return true, nil
}

func (uc *CircuitBreakerUseCase) notifyTriggered(ctx context.Context, event *model.BreakerTriggeredEvent) {
	if uc.webhook == nil {
		return
	}
	if err := uc.webhook.NotifyBreakerTriggered(ctx, event); err != nil {
		uc.logger.Warnw("breaker triggered webhook failed", "type", "webhook", "error", err)
	}
}

func (uc *CircuitBreakerUseCase) notifyResumed(ctx context.Context, event *model.BreakerResumedEvent) {
	if uc.webhook == nil {
		return
	}
	if err := uc.webhook.NotifyBreakerResumed(ctx, event); err != nil {
		uc.logger.Warnw("breaker resumed webhook failed", "type", "webhook", "error", err)
	}
}
