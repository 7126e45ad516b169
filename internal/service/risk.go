// Package service exposes the risk engine over HTTP. Handlers are thin:
// decode, delegate to biz, encode.
package service

import (
	"context"
	"strconv"

	"TradeSentry/internal/biz"
	"TradeSentry/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// RiskService implements the risk HTTP API.
type RiskService struct {
	breaker *biz.CircuitBreakerUseCase
	gate    *biz.RiskGateUseCase
	logger  *log.Helper
}

// NewRiskService creates a new RiskService instance.
func NewRiskService(breaker *biz.CircuitBreakerUseCase, gate *biz.RiskGateUseCase, logger log.Logger) *RiskService {
	return &RiskService{
		breaker: breaker,
		gate:    gate,
		logger:  log.NewHelper(logger),
	}
}

// Status returns the current circuit breaker verdict. Served from the
// Redis fast path when the halted marker is set.
func (s *RiskService) Status(ctx context.Context) *model.CircuitBreakerStatus {
	return s.breaker.Status(ctx)
}

type resetReply struct {
	Success bool `json:"success"`
}

// Reset clears any active circuit breaker.
func (s *RiskService) Reset(ctx context.Context) (*resetReply, error) {
	s.logger.Infow("manual breaker reset requested", "type", "breaker")
	ok, err := s.breaker.Reset(ctx)
	if err != nil {
		return nil, errors.InternalServer("RESET_FAILED", err.Error())
	}
	return &resetReply{Success: ok}, nil
}

// Check runs the comprehensive risk gate against a proposed position.
func (s *RiskService) Check(ctx context.Context, params *model.RiskCheckParams) (*model.RiskAssessment, error) {
	if params.Symbol == "" {
		return nil, errors.BadRequest("INVALID_PARAMS", "symbol is required")
	}
	if params.NotionalUSD <= 0 {
		return nil, errors.BadRequest("INVALID_PARAMS", "notional_usd must be positive")
	}
	return s.gate.ComprehensiveRiskCheck(ctx, params), nil
}

type stopLossReply struct {
	Leverage    float64 `json:"leverage"`
	StopLossPct float64 `json:"stop_loss_pct"`
}

// StopLoss returns the leverage-scaled stop loss threshold.
func (s *RiskService) StopLoss(leverage float64) *stopLossReply {
	return &stopLossReply{
		Leverage:    leverage,
		StopLossPct: biz.DynamicStopLoss(leverage),
	}
}

// RegisterHTTP mounts the risk API on the kratos HTTP server.
func (s *RiskService) RegisterHTTP(srv *khttp.Server) {
	r := srv.Route("/api/v1")

	r.GET("/risk/status", func(ctx khttp.Context) error {
		return ctx.Result(200, s.Status(ctx))
	})

	r.POST("/risk/reset", func(ctx khttp.Context) error {
		reply, err := s.Reset(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/risk/check", func(ctx khttp.Context) error {
		var params model.RiskCheckParams
		if err := ctx.Bind(&params); err != nil {
			return errors.BadRequest("INVALID_BODY", err.Error())
		}
		assessment, err := s.Check(ctx, &params)
		if err != nil {
			return err
		}
		return ctx.Result(200, assessment)
	})

	r.GET("/risk/stop-loss", func(ctx khttp.Context) error {
		leverage, err := strconv.ParseFloat(ctx.Query().Get("leverage"), 64)
		if err != nil || leverage <= 0 {
			return errors.BadRequest("INVALID_PARAMS", "leverage must be a positive number")
		}
		return ctx.Result(200, s.StopLoss(leverage))
	})

	srv.Route("/").GET("/healthz", func(ctx khttp.Context) error {
		return ctx.Result(200, map[string]string{"status": "ok"})
	})
}
