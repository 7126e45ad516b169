// Package biz contains the business logic of TradeSentry: the circuit
// breaker engine, the anomaly detectors, the risk gate, and the trading
// loop. Repository interfaces are defined here and implemented in the data
// layer.
package biz

import (
	"TradeSentry/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewCircuitBreakerUseCase,
	NewAnomalyUseCase,
	NewRiskGateUseCase,
	NewTradingLoopUseCase,

	wire.Bind(new(CircuitBreakerRepo), new(*data.CircuitBreakerRepo)),
	wire.Bind(new(TradeRepo), new(*data.TradeRepo)),
	wire.Bind(new(AccountRepo), new(*data.AccountRepo)),
	wire.Bind(new(SignalRepo), new(*data.SignalRepo)),
	wire.Bind(new(SessionRepo), new(*data.SessionRepo)),
	wire.Bind(new(RiskAuditLogger), new(*data.RiskAuditLogger)),
	wire.Bind(new(WebhookService), new(*data.WebhookNotifier)),
)
