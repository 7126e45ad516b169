package model

import "time"

// AnomalySeverity grades how serious a detected anomaly is.
type AnomalySeverity string

const (
	SeverityLow    AnomalySeverity = "low"
	SeverityMedium AnomalySeverity = "medium"
	SeverityHigh   AnomalySeverity = "high"
)

// TriggerType identifies which loss condition tripped the circuit breaker.
type TriggerType string

const (
	TriggerDailyLoss       TriggerType = "daily_loss"
	TriggerHourlyLoss      TriggerType = "hourly_loss"
	TriggerFourHourLoss    TriggerType = "four_hour_loss"
	TriggerConsecutiveLoss TriggerType = "consecutive_loss"
	TriggerSingleLargeLoss TriggerType = "single_large_loss"
)

// CircuitBreakerStatus is the result of a circuit breaker evaluation.
// ShouldHalt=true means the trading loop must skip the decision cycle.
type CircuitBreakerStatus struct {
	ShouldHalt    bool        `json:"should_halt"`
	Reason        string      `json:"reason,omitempty"`
	TriggerType   TriggerType `json:"trigger_type,omitempty"`
	ResumeTime    *time.Time  `json:"resume_time,omitempty"`
	SeverityLevel int         `json:"severity_level,omitempty"`
	IsInCooldown  bool        `json:"is_in_cooldown,omitempty"`
	CooldownUntil *time.Time  `json:"cooldown_until,omitempty"`
}

// AnomalyCheck is the result of a single anomaly detector.
type AnomalyCheck struct {
	IsAnomalous bool            `json:"is_anomalous"`
	Reason      string          `json:"reason,omitempty"`
	Severity    AnomalySeverity `json:"severity,omitempty"`
}

// OpenPosition describes a currently held position, as reported by the
// exchange account endpoint.
type OpenPosition struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"` // "long" or "short"
	EntryPrice    float64 `json:"entry_price"`
	Quantity      float64 `json:"quantity"`
	Leverage      float64 `json:"leverage"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	MarginUsed    float64 `json:"margin_used"`
}

// RiskCheckParams carries the proposed position for a comprehensive check.
type RiskCheckParams struct {
	Symbol        string         `json:"symbol"`
	Side          string         `json:"side"`
	NotionalUSD   float64        `json:"notional_usd"`
	Leverage      float64        `json:"leverage"`
	OpenPositions []OpenPosition `json:"open_positions,omitempty"`
}

// RiskAssessment is the combined verdict of the risk gate.
// Approved is false iff at least one blocker was raised.
type RiskAssessment struct {
	Approved bool     `json:"approved"`
	Warnings []string `json:"warnings"`
	Blockers []string `json:"blockers"`
}

// BreakerTriggeredEvent is published to the webhook when a new breaker fires.
type BreakerTriggeredEvent struct {
	Reason        string      `json:"reason"`
	TriggerType   TriggerType `json:"trigger_type"`
	SeverityLevel int         `json:"severity_level"`
	TriggeredAt   time.Time   `json:"triggered_at"`
	ResumeAt      time.Time   `json:"resume_at"`
}

// BreakerResumedEvent is published when an active breaker expires or is
// manually reset.
type BreakerResumedEvent struct {
	Manual        bool      `json:"manual"`
	ResumedAt     time.Time `json:"resumed_at"`
	CooldownUntil time.Time `json:"cooldown_until"`
}
