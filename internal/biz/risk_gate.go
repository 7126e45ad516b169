package biz

import (
	"context"
	"fmt"

	"TradeSentry/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// RiskGateUseCase combines the circuit breaker and the anomaly detectors
// into a single pre-trade verdict.
//
// Breaker state is reported as a warning only: the trading loop already
// halts on it before proposing positions, so the gate stays useful for
// inspecting a hypothetical trade while halted. Only high-severity
// position anomalies block; everything else is advisory.
type RiskGateUseCase struct {
	breaker *CircuitBreakerUseCase
	anomaly *AnomalyUseCase
	audit   RiskAuditLogger
	logger  *log.Helper
}

// NewRiskGateUseCase creates the pre-trade risk gate.
func NewRiskGateUseCase(breaker *CircuitBreakerUseCase, anomaly *AnomalyUseCase, audit RiskAuditLogger, logger log.Logger) *RiskGateUseCase {
	return &RiskGateUseCase{
		breaker: breaker,
		anomaly: anomaly,
		audit:   audit,
		logger:  log.NewHelper(logger),
	}
}

// ComprehensiveRiskCheck runs every risk layer against a proposed position.
func (uc *RiskGateUseCase) ComprehensiveRiskCheck(ctx context.Context, params *model.RiskCheckParams) *model.RiskAssessment {
	warnings := make([]string, 0, 4)
	blockers := make([]string, 0, 2)

	if status := uc.breaker.Check(ctx); status.ShouldHalt {
		warnings = append(warnings, fmt.Sprintf("circuit breaker active: %s", status.Reason))
	} else if status.IsInCooldown {
		warnings = append(warnings, "circuit breaker cooldown active, thresholds tightened")
	}

	if check := uc.anomaly.DetectAnomalousPosition(ctx, params.Symbol, params.NotionalUSD, params.Leverage); check.IsAnomalous {
		if check.Severity == model.SeverityHigh {
			blockers = append(blockers, check.Reason)
		} else {
			warnings = append(warnings, check.Reason)
		}
	}

	if check := uc.anomaly.DetectFrequentTrading(ctx, params.Symbol); check.IsAnomalous {
		warnings = append(warnings, check.Reason)
	}

	if check := uc.anomaly.DetectCorrelationRisk(ctx, params.Symbol, params.Side, params.OpenPositions); check.IsAnomalous {
		warnings = append(warnings, check.Reason)
	}

	assessment := &model.RiskAssessment{
		Approved: len(blockers) == 0,
		Warnings: warnings,
		Blockers: blockers,
	}

	uc.audit.LogGateVerdict(ctx, params.Symbol, assessment.Approved, warnings, blockers)
	if !assessment.Approved {
		uc.logger.Warnw("risk gate rejected position",
			"type", "risk",
			"symbol", params.Symbol,
			"blockers", blockers)
	}
	return assessment
}
