package main

import (
	"context"
	"time"

	"TradeSentry/internal/biz"
	"TradeSentry/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// defaultCycleSpec runs a decision cycle every 3 minutes.
// Cron 表达式：0 */3 * * * * （秒 分 时 日 月 周）
const defaultCycleSpec = "0 */3 * * * *"

// cycleTimeout bounds one decision cycle. A cycle that exceeds this is
// cancelled rather than allowed to overlap the next one indefinitely.
const cycleTimeout = 2 * time.Minute

// TradingCron 驱动交易决策周期的定时任务
// 实现 kratos transport.Server 接口，随应用生命周期启停
type TradingCron struct {
	cron   *cron.Cron
	loop   *biz.TradingLoopUseCase
	helper *log.Helper
	spec   string

	// running prevents overlapping cycles when one runs long.
	running chan struct{}
}

// NewTradingCron creates the cycle scheduler from configuration.
func NewTradingCron(loop *biz.TradingLoopUseCase, c *conf.Bootstrap, logger log.Logger) *TradingCron {
	spec := defaultCycleSpec
	if c != nil && c.Trading != nil && c.Trading.CycleSpec != "" {
		spec = c.Trading.CycleSpec
	}
	return &TradingCron{
		cron:    cron.New(cron.WithSeconds()),
		loop:    loop,
		helper:  log.NewHelper(logger),
		spec:    spec,
		running: make(chan struct{}, 1),
	}
}

// Start registers the cycle job and starts the scheduler.
func (t *TradingCron) Start(ctx context.Context) error {
	if _, err := t.loop.Resume(ctx); err != nil {
		// 会话状态不可读时从 0 开始，不阻塞启动
		t.helper.Warnw(
			"msg", "failed to resume session state, starting fresh",
			"type", "startup",
			"error", err,
		)
	}

	_, err := t.cron.AddFunc(t.spec, t.runOnce)
	if err != nil {
		return err
	}

	t.cron.Start()
	t.helper.Infow(
		"msg", "trading cycle scheduler started",
		"type", "scheduler",
		"spec", t.spec,
	)
	return nil
}

// Stop halts the scheduler and waits for an in-flight cycle to finish.
func (t *TradingCron) Stop(ctx context.Context) error {
	stopped := t.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	t.helper.Infow("msg", "trading cycle scheduler stopped", "type", "scheduler")
	return nil
}

func (t *TradingCron) runOnce() {
	select {
	case t.running <- struct{}{}:
	default:
		// 上一个周期未结束，跳过本次触发
		t.helper.Warnw(
			"msg", "previous cycle still running, skipping this trigger",
			"type", "slow_cycle",
		)
		return
	}
	defer func() { <-t.running }()

	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	if err := t.loop.RunCycle(ctx); err != nil {
		t.helper.Errorw(
			"msg", "decision cycle failed",
			"type", "cycle",
			"error", err,
		)
	}
}
