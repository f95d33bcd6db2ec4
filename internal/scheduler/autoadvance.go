package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"laundry-engine/internal/metrics"
	"laundry-engine/internal/repository"
)

// AdvanceEngine is the slice of the engine the poller drives.
type AdvanceEngine interface {
	OrdersWithExpiredTimers(ctx context.Context) ([]*repository.Order, error)
	Advance(ctx context.Context, id string) (*repository.Order, error)
}

// AutoAdvancePoller is the driving caller the engine deliberately does not
// embed: every minute it asks for expired timers and advances the orders
// that opted into auto-advance. Orders without the flag just sit expired
// until an admin acts.
type AutoAdvancePoller struct {
	engine AdvanceEngine
	logger *zap.Logger
	cron   *cron.Cron
}

func NewAutoAdvancePoller(eng AdvanceEngine, logger *zap.Logger) *AutoAdvancePoller {
	return &AutoAdvancePoller{
		engine: eng,
		logger: logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
	}
}

func (p *AutoAdvancePoller) Start() error {
	if _, err := p.cron.AddFunc("* * * * *", p.tick); err != nil {
		return err
	}
	p.cron.Start()
	p.logger.Info("auto-advance poller started")
	return nil
}

func (p *AutoAdvancePoller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.logger.Info("auto-advance poller stopped")
}

func (p *AutoAdvancePoller) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
	defer cancel()

	orders, err := p.engine.OrdersWithExpiredTimers(ctx)
	if err != nil {
		p.logger.Error("failed to list expired timers", zap.Error(err))
		return
	}

	for _, order := range orders {
		if !order.AutoAdvance {
			continue
		}
		advanced, err := p.engine.Advance(ctx, order.ID)
		if err != nil {
			p.logger.Error("auto-advance failed",
				zap.String("order_id", order.ID), zap.Error(err))
			continue
		}
		metrics.AutoAdvancesTotal.Inc()
		p.logger.Info("auto-advanced order",
			zap.String("order_id", order.ID),
			zap.String("from", string(order.Status)),
			zap.String("to", string(advanced.Status)))
	}
}
