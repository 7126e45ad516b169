package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TradeSentry/internal/conf"
	"TradeSentry/internal/data"
	"TradeSentry/internal/model"
	pkglog "TradeSentry/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// Agent decision actions.
const (
	ActionOpen  = "open"
	ActionClose = "close"
	ActionHold  = "hold"
)

// ExchangeOrder is the normalized fill result returned by the exchange layer.
type ExchangeOrder struct {
	OrderID  string
	Symbol   string
	Side     string
	Price    float64
	Quantity float64
	Fee      float64
}

// ExchangeService abstracts the futures exchange. Implementation lives in
// internal/exchange.
type ExchangeService interface {
	AccountTotalValue(ctx context.Context) (float64, error)
	OpenPositions(ctx context.Context) ([]model.OpenPosition, error)
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	OpenMarketPosition(ctx context.Context, symbol, side string, notionalUSD, leverage float64) (*ExchangeOrder, error)
	CloseMarketPosition(ctx context.Context, pos *model.OpenPosition) (*ExchangeOrder, error)
}

// MarketSnapshot is the context handed to the decision agent.
type MarketSnapshot struct {
	Iteration     int64                `json:"iteration"`
	Balance       float64              `json:"balance"`
	OpenPositions []model.OpenPosition `json:"open_positions"`
	Prices        map[string]float64   `json:"prices"`
	InCooldown    bool                 `json:"in_cooldown"`
}

// AgentDecision is the structured output of the decision agent.
type AgentDecision struct {
	Action      string  `json:"action"` // open | close | hold
	Symbol      string  `json:"symbol,omitempty"`
	Side        string  `json:"side,omitempty"` // long | short
	NotionalUSD float64 `json:"notional_usd,omitempty"`
	Leverage    float64 `json:"leverage,omitempty"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

// DecisionAgent produces one trading decision per cycle. Implementation
// lives in internal/agent.
type DecisionAgent interface {
	Decide(ctx context.Context, snapshot *MarketSnapshot) (*AgentDecision, error)
}

// TradingLoopUseCase runs one decision cycle end to end: risk gate in
// front, exchange and agent behind it. The cron server drives RunCycle.
type TradingLoopUseCase struct {
	breaker  *CircuitBreakerUseCase
	gate     *RiskGateUseCase
	exchange ExchangeService
	agent    DecisionAgent
	trades   TradeRepo
	accounts AccountRepo
	signals  SignalRepo
	sessions SessionRepo
	logger   *log.Helper

	symbols     []string
	maxLeverage float64
}

// NewTradingLoopUseCase wires the trading loop from configuration.
func NewTradingLoopUseCase(
	breaker *CircuitBreakerUseCase,
	gate *RiskGateUseCase,
	exchange ExchangeService,
	agent DecisionAgent,
	trades TradeRepo,
	accounts AccountRepo,
	signals SignalRepo,
	sessions SessionRepo,
	c *conf.Bootstrap,
	logger log.Logger,
) *TradingLoopUseCase {
	uc := &TradingLoopUseCase{
		breaker:     breaker,
		gate:        gate,
		exchange:    exchange,
		agent:       agent,
		trades:      trades,
		accounts:    accounts,
		signals:     signals,
		sessions:    sessions,
		logger:      log.NewHelper(logger),
		maxLeverage: 20,
	}
	if c != nil && c.Trading != nil {
		uc.symbols = c.Trading.Symbols
		if c.Trading.MaxLeverage > 0 {
			uc.maxLeverage = c.Trading.MaxLeverage
		}
	}
	return uc
}

// Resume loads the persisted session state at startup so the iteration
// counter continues across restarts. Returns the resumed iteration count.
func (uc *TradingLoopUseCase) Resume(ctx context.Context) (int64, error) {
	state, err := uc.sessions.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load session state: %w", err)
	}
	uc.logger.Infow("trading session resumed",
		"type", "startup",
		"iteration", state.IterationCount,
		"started_at", state.StartedAt.Format(time.RFC3339))
	return state.IterationCount, nil
}

// RunCycle executes one full decision cycle. Errors from individual steps
// degrade that step; only setup failures abort the cycle.
func (uc *TradingLoopUseCase) RunCycle(ctx context.Context) error {
	iteration, err := uc.sessions.IncrementIteration(ctx)
	if err != nil {
		// 会话计数失败不阻塞周期，iteration 记 0
		uc.logger.Warnw("failed to advance session iteration",
			"type", "cycle",
			"error", err)
	}
	cycleID := pkglog.GenerateCycleID()
	ctx = pkglog.WithCycleContext(ctx, cycleID, iteration)
	start := time.Now()

	uc.logger.Infow("decision cycle started",
		"type", "cycle",
		"cycle_id", cycleID,
		"iteration", iteration)

	// Circuit breaker gates the whole cycle.
	status := uc.breaker.Check(ctx)
	if status.ShouldHalt {
		uc.logger.Warnw("cycle skipped, circuit breaker active",
			"type", "breaker",
			"cycle_id", cycleID,
			"reason", status.Reason,
			"resume_time", status.ResumeTime)
		return nil
	}

	// Account snapshot. The stored history is what the breaker and the
	// anomaly detectors measure percentages against.
	balance, err := uc.exchange.AccountTotalValue(ctx)
	if err != nil {
		return fmt.Errorf("fetch account value: %w", err)
	}
	if err := uc.accounts.InsertSnapshot(ctx, balance, time.Now()); err != nil {
		uc.logger.Warnw("failed to persist account snapshot",
			"type", "cycle",
			"error", err)
	}

	positions, err := uc.exchange.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch open positions: %w", err)
	}

	// Hard stop-loss on open positions runs before any new decision.
	positions = uc.enforceStopLoss(ctx, positions)

	prices := uc.recordSignals(ctx)

	snapshot := &MarketSnapshot{
		Iteration:     iteration,
		Balance:       balance,
		OpenPositions: positions,
		Prices:        prices,
		InCooldown:    status.IsInCooldown,
	}

	decision, err := uc.agent.Decide(ctx, snapshot)
	if err != nil {
		// Agent failure means hold, never a blind trade.
		uc.logger.Errorw("agent decision failed, holding",
			"type", "agent",
			"cycle_id", cycleID,
			"error", err)
		decision = &AgentDecision{Action: ActionHold, Reasoning: "agent unavailable"}
	}

	uc.logger.Infow("agent decision",
		"type", "agent",
		"cycle_id", cycleID,
		"action", decision.Action,
		"symbol", decision.Symbol,
		"reasoning", decision.Reasoning)

	switch decision.Action {
	case ActionOpen:
		uc.executeOpen(ctx, decision, positions)
	case ActionClose:
		uc.executeClose(ctx, decision, positions)
	case ActionHold:
		// nothing to do
	default:
		uc.logger.Warnw("agent returned unknown action, holding",
			"type", "agent",
			"action", decision.Action)
	}

	uc.logger.Infow("decision cycle finished",
		"type", "cycle",
		"cycle_id", cycleID,
		"elapsed", time.Since(start))
	return nil
}

// enforceStopLoss force-closes any position whose drawdown on margin
// breached the leverage-scaled stop. Returns the surviving positions.
func (uc *TradingLoopUseCase) enforceStopLoss(ctx context.Context, positions []model.OpenPosition) []model.OpenPosition {
	survivors := positions[:0]
	for i := range positions {
		pos := positions[i]
		if pos.MarginUsed <= 0 {
			survivors = append(survivors, pos)
			continue
		}
		drawdownPct := pos.UnrealizedPnL / pos.MarginUsed * 100
		stop := DynamicStopLoss(pos.Leverage)
		if drawdownPct > stop {
			survivors = append(survivors, pos)
			continue
		}

		uc.logger.Warnw("stop loss hit, force closing position",
			"type", "stop_loss",
			"symbol", pos.Symbol,
			"drawdown_pct", drawdownPct,
			"stop_pct", stop,
			"leverage", pos.Leverage)

		order, err := uc.exchange.CloseMarketPosition(ctx, &pos)
		if err != nil {
			uc.logger.Errorw("emergency close failed",
				"type", "stop_loss",
				"symbol", pos.Symbol,
				"error", err)
			survivors = append(survivors, pos)
			continue
		}
		uc.recordClose(ctx, order, pos.UnrealizedPnL, pos.Leverage)
	}
	return survivors
}

// recordSignals snapshots mark prices for the configured universe. Used
// both by the agent prompt and by the correlation detector later.
func (uc *TradingLoopUseCase) recordSignals(ctx context.Context) map[string]float64 {
	prices := make(map[string]float64, len(uc.symbols))
	for _, symbol := range uc.symbols {
		price, err := uc.exchange.MarkPrice(ctx, symbol)
		if err != nil {
			uc.logger.Warnw("mark price fetch failed",
				"type", "exchange",
				"symbol", symbol,
				"error", err)
			continue
		}
		prices[symbol] = price
		if err := uc.signals.Insert(ctx, &data.TradingSignal{
			Symbol:    symbol,
			Price:     price,
			Timestamp: time.Now(),
		}); err != nil {
			uc.logger.Warnw("signal insert failed",
				"type", "cycle",
				"symbol", symbol,
				"error", err)
		}
	}
	return prices
}

func (uc *TradingLoopUseCase) executeOpen(ctx context.Context, decision *AgentDecision, positions []model.OpenPosition) {
	if decision.Symbol == "" || decision.NotionalUSD <= 0 {
		uc.logger.Warnw("open decision missing symbol or size, holding",
			"type", "agent")
		return
	}
	side := strings.ToLower(decision.Side)
	if side != "long" && side != "short" {
		uc.logger.Warnw("open decision has invalid side, holding",
			"type", "agent",
			"side", decision.Side)
		return
	}

	leverage := decision.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	if leverage > uc.maxLeverage {
		uc.logger.Warnw("clamping agent leverage",
			"type", "risk",
			"requested", leverage,
			"max", uc.maxLeverage)
		leverage = uc.maxLeverage
	}

	assessment := uc.gate.ComprehensiveRiskCheck(ctx, &model.RiskCheckParams{
		Symbol:        decision.Symbol,
		Side:          side,
		NotionalUSD:   decision.NotionalUSD,
		Leverage:      leverage,
		OpenPositions: positions,
	})
	for _, w := range assessment.Warnings {
		uc.logger.Warnw("risk warning on proposed position",
			"type", "risk",
			"symbol", decision.Symbol,
			"warning", w)
	}
	if !assessment.Approved {
		uc.logger.Warnw("open rejected by risk gate",
			"type", "risk",
			"symbol", decision.Symbol,
			"blockers", assessment.Blockers)
		return
	}

	order, err := uc.exchange.OpenMarketPosition(ctx, decision.Symbol, side, decision.NotionalUSD, leverage)
	if err != nil {
		uc.logger.Errorw("open order failed",
			"type", "exchange",
			"symbol", decision.Symbol,
			"error", err)
		return
	}

	if err := uc.trades.Insert(ctx, &data.Trade{
		OrderID:   order.OrderID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Type:      data.TradeOpen,
		Price:     order.Price,
		Quantity:  order.Quantity,
		Leverage:  leverage,
		Fee:       order.Fee,
		Timestamp: time.Now(),
	}); err != nil {
		uc.logger.Errorw("failed to record open trade",
			"type", "trade",
			"order_id", order.OrderID,
			"error", err)
	}

	uc.logger.Infow("position opened",
		"type", "trade",
		"symbol", order.Symbol,
		"side", order.Side,
		"notional_usd", decision.NotionalUSD,
		"leverage", leverage)
}

func (uc *TradingLoopUseCase) executeClose(ctx context.Context, decision *AgentDecision, positions []model.OpenPosition) {
	for i := range positions {
		pos := positions[i]
		if pos.Symbol != decision.Symbol {
			continue
		}
		order, err := uc.exchange.CloseMarketPosition(ctx, &pos)
		if err != nil {
			uc.logger.Errorw("close order failed",
				"type", "exchange",
				"symbol", pos.Symbol,
				"error", err)
			return
		}
		uc.recordClose(ctx, order, pos.UnrealizedPnL, pos.Leverage)
		uc.logger.Infow("position closed",
			"type", "trade",
			"symbol", pos.Symbol,
			"pnl", pos.UnrealizedPnL)
		return
	}
	uc.logger.Warnw("close decision for symbol with no open position",
		"type", "agent",
		"symbol", decision.Symbol)
}

// recordClose persists a close fill. PnL on the record is what the loss
// windows of the circuit breaker sum over.
func (uc *TradingLoopUseCase) recordClose(ctx context.Context, order *ExchangeOrder, pnl, leverage float64) {
	if err := uc.trades.Insert(ctx, &data.Trade{
		OrderID:   order.OrderID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Type:      data.TradeClose,
		Price:     order.Price,
		Quantity:  order.Quantity,
		Leverage:  leverage,
		PnL:       &pnl,
		Fee:       order.Fee,
		Timestamp: time.Now(),
	}); err != nil {
		uc.logger.Errorw("failed to record close trade",
			"type", "trade",
			"order_id", order.OrderID,
			"error", err)
	}
}
