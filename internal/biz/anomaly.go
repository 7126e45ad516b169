package biz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"TradeSentry/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// Detection thresholds. Percent values are of account balance.
const (
	// maxPositionPercent is the single-position notional cap.
	maxPositionPercent = 50.0
	// maxEffectiveExposure caps positionPercent * leverage.
	maxEffectiveExposure = 200.0
	// highLeverageFloor combined with comboPositionPercent flags the
	// high-leverage + large-position combination.
	highLeverageFloor    = 15.0
	comboPositionPercent = 30.0

	// frequencyWindow and frequencyLimit bound symbol open-trades per hour.
	frequencyWindow = time.Hour
	frequencyLimit  = 3

	// correlationThreshold flags same-direction exposure on highly
	// correlated symbols.
	correlationThreshold = 0.8

	// correlation data requirements
	correlationFetchLimit  = 100
	correlationMinRawObs   = 30
	correlationMinReturns  = 20

	// defaultBalance is assumed when no account history exists yet.
	defaultBalance = 1000.0
)

// AnomalyUseCase implements the three position-level anomaly detectors.
// All checks are read-only and fail open: any store failure degrades to
// "not anomalous" with a logged warning, never an error to the caller.
type AnomalyUseCase struct {
	trades   TradeRepo
	accounts AccountRepo
	signals  SignalRepo
	logger   *log.Helper
}

// NewAnomalyUseCase creates a new anomaly detection use case.
func NewAnomalyUseCase(trades TradeRepo, accounts AccountRepo, signals SignalRepo, logger log.Logger) *AnomalyUseCase {
	return &AnomalyUseCase{
		trades:   trades,
		accounts: accounts,
		signals:  signals,
		logger:   log.NewHelper(logger),
	}
}

// notAnomalous is the shared all-clear result.
func notAnomalous() *model.AnomalyCheck {
	return &model.AnomalyCheck{IsAnomalous: false}
}

// referenceBalance returns the latest account value, defaulting when no
// history exists. Store failures also fall back to the default so the
// detectors stay available.
func (uc *AnomalyUseCase) referenceBalance(ctx context.Context) float64 {
	balance, err := uc.accounts.LatestTotalValue(ctx)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			uc.logger.Warnw("failed to load account balance, using default",
				"type", "anomaly",
				"default", defaultBalance,
				"error", err)
		}
		return defaultBalance
	}
	if balance <= 0 {
		return defaultBalance
	}
	return balance
}

// DetectAnomalousPosition checks a proposed position against the balance.
// Rules are evaluated in order, first match wins:
//  1. notional above 50% of balance
//  2. effective exposure (position percent × leverage) above 200%
//  3. leverage ≥15 combined with position above 30% of balance
func (uc *AnomalyUseCase) DetectAnomalousPosition(ctx context.Context, symbol string, notionalUSD, leverage float64) *model.AnomalyCheck {
	balance := uc.referenceBalance(ctx)

	positionPercent := notionalUSD / balance * 100
	effectiveExposure := positionPercent * leverage

	switch {
	case positionPercent > maxPositionPercent:
		uc.logger.Warnw("position size anomaly detected",
			"type", "anomaly",
			"symbol", symbol,
			"position_percent", positionPercent)
		return &model.AnomalyCheck{
			IsAnomalous: true,
			Severity:    model.SeverityHigh,
			Reason: fmt.Sprintf("single position too large: %.1f%% of balance (max %.0f%%)",
				positionPercent, maxPositionPercent),
		}

	case effectiveExposure > maxEffectiveExposure:
		uc.logger.Warnw("effective exposure anomaly detected",
			"type", "anomaly",
			"symbol", symbol,
			"effective_exposure", effectiveExposure)
		return &model.AnomalyCheck{
			IsAnomalous: true,
			Severity:    model.SeverityHigh,
			Reason: fmt.Sprintf("effective exposure too large: %.1f%% (max %.0f%%)",
				effectiveExposure, maxEffectiveExposure),
		}

	case leverage >= highLeverageFloor && positionPercent > comboPositionPercent:
		return &model.AnomalyCheck{
			IsAnomalous: true,
			Severity:    model.SeverityMedium,
			Reason: fmt.Sprintf("high leverage (%.0fx) combined with large position (%.1f%% of balance)",
				leverage, positionPercent),
		}
	}

	return notAnomalous()
}

// DetectFrequentTrading flags a symbol that was opened three or more times
// within the trailing hour.
func (uc *AnomalyUseCase) DetectFrequentTrading(ctx context.Context, symbol string) *model.AnomalyCheck {
	since := time.Now().Add(-frequencyWindow)
	count, err := uc.trades.CountOpenTradesSince(ctx, symbol, since)
	if err != nil {
		// fail open: frequency check degrades to not anomalous
		uc.logger.Warnw("frequency check failed (treated as not anomalous)",
			"type", "anomaly",
			"symbol", symbol,
			"error", err)
		return notAnomalous()
	}

	if count >= frequencyLimit {
		return &model.AnomalyCheck{
			IsAnomalous: true,
			Severity:    model.SeverityMedium,
			Reason: fmt.Sprintf("trading too frequently: %d opens for %s in the last hour (max %d)",
				count, symbol, frequencyLimit-1),
		}
	}

	return notAnomalous()
}

// DetectCorrelationRisk flags a proposed position whose symbol is highly
// correlated with an existing same-direction position.
func (uc *AnomalyUseCase) DetectCorrelationRisk(ctx context.Context, symbol, side string, openPositions []model.OpenPosition) *model.AnomalyCheck {
	if len(openPositions) == 0 {
		return notAnomalous()
	}

	for _, pos := range openPositions {
		if pos.Symbol == symbol {
			continue
		}

		corr := uc.symbolCorrelation(ctx, symbol, pos.Symbol)
		if math.Abs(corr) > correlationThreshold && pos.Side == side {
			return &model.AnomalyCheck{
				IsAnomalous: true,
				Severity:    model.SeverityMedium,
				Reason: fmt.Sprintf("%s is highly correlated with open %s position (r=%.2f), same-direction exposure too risky",
					symbol, pos.Symbol, corr),
			}
		}
	}

	return notAnomalous()
}

// symbolCorrelation computes the Pearson correlation of period-over-period
// returns between two symbols. Insufficient data and store failures both
// yield 0 (uncorrelated), never an error.
func (uc *AnomalyUseCase) symbolCorrelation(ctx context.Context, symbol1, symbol2 string) float64 {
	prices1, err := uc.signals.RecentPrices(ctx, symbol1, correlationFetchLimit)
	if err != nil {
		uc.logger.Warnw("price history fetch failed (correlation treated as 0)",
			"symbol", symbol1, "error", err)
		return 0
	}
	prices2, err := uc.signals.RecentPrices(ctx, symbol2, correlationFetchLimit)
	if err != nil {
		uc.logger.Warnw("price history fetch failed (correlation treated as 0)",
			"symbol", symbol2, "error", err)
		return 0
	}

	if len(prices1) < correlationMinRawObs || len(prices2) < correlationMinRawObs {
		// insufficient data is not an error
		return 0
	}

	// The fetch returns newest-first; returns must be computed over a
	// chronological series.
	returns1 := sequentialReturns(reversed(prices1))
	returns2 := sequentialReturns(reversed(prices2))

	n := len(returns1)
	if len(returns2) < n {
		n = len(returns2)
	}
	if n < correlationMinReturns {
		return 0
	}

	return pearson(returns1[:n], returns2[:n])
}

// reversed returns a copy of the slice in opposite order.
func reversed(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[len(values)-1-i] = v
	}
	return out
}

// sequentialReturns computes simple period-over-period returns.
// Zero prices are skipped to avoid division by zero.
func sequentialReturns(prices []float64) []float64 {
	returns := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	return returns
}

// pearson computes the Pearson correlation coefficient over two aligned
// series. A zero denominator (flat series) is defined as 0 here, not NaN.
func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}

	var meanX, meanY float64
	for i := range x {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= n
	meanY /= n

	var sumXY, sumXX, sumYY float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sumXY += dx * dy
		sumXX += dx * dx
		sumYY += dy * dy
	}

	denom := math.Sqrt(sumXX) * math.Sqrt(sumYY)
	if denom == 0 {
		return 0
	}
	return sumXY / denom
}
