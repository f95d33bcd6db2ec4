package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"laundry-engine/internal/db"
	"laundry-engine/internal/metrics"
	"laundry-engine/internal/repository"
	"laundry-engine/internal/storage"
)

// Engine binds the state machine, the timers and the capacity ledger to the
// store, and reconciles the ledger with order lifecycle events.
//
// The correctness contract: admission is checked inside the same transaction
// that persists the order (a capacity failure blocks creation entirely),
// while ledger releases and all other side effects run after commit and are
// best-effort (the order record is authoritative, the counters are a derived
// cache that may lag).
type Engine struct {
	db      db.DB
	orders  storage.OrderRepository
	ledger  *CapacityLedger
	machine *StateMachine
	timers  *TimerCoordinator
	hooks   []Hook
	logger  *zap.Logger
	clock   func() time.Time
}

func New(database db.DB, orders storage.OrderRepository, ledger *CapacityLedger, machine *StateMachine, timers *TimerCoordinator, logger *zap.Logger) *Engine {
	return &Engine{
		db:      database,
		orders:  orders,
		ledger:  ledger,
		machine: machine,
		timers:  timers,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// RegisterHook appends a post-commit hook. Hooks run in registration order.
func (e *Engine) RegisterHook(h Hook) {
	e.hooks = append(e.hooks, h)
}

// WithClock overrides the engine clock, for tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

type CreateOrderInput struct {
	Kind          repository.Kind
	CustomerName  string
	CustomerEmail string
	PickupDate    time.Time
	PickupTime    string
	AutoAdvance   bool
}

// CreateOrder admits the pickup date and persists the order as one atomic
// unit. When the date is full no order row comes into existence.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (*repository.Order, error) {
	cfg, err := e.machine.Config(in.Kind)
	if err != nil {
		return nil, err
	}

	date := repository.Midnight(in.PickupDate)

	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	admitted, err := e.ledger.TryAdmitTx(ctx, tx, date)
	if err != nil {
		return nil, fmt.Errorf("admission check failed: %w", err)
	}
	if !admitted {
		metrics.BookingsRefusedTotal.Inc()
		return nil, ErrCapacityExceeded
	}

	now := e.clock()
	order := &repository.Order{
		ID:            uuid.New().String(),
		Kind:          in.Kind,
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		PickupDate:    date,
		PickupTime:    in.PickupTime,
		Status:        cfg.First(),
		AutoAdvance:   in.AutoAdvance,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.orders.CreateTx(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.BookingsAdmittedTotal.Inc()
	e.fireHooks(ctx, e.event(EventCreated, order, ""))
	return order, nil
}

func (e *Engine) Get(ctx context.Context, id string) (*repository.Order, error) {
	order, err := e.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

// Transition moves the order to an explicit target status. Timer fields are
// re-derived in the same transaction so status and timers never diverge.
func (e *Engine) Transition(ctx context.Context, id string, target repository.Status, reason string) (*repository.Order, error) {
	return e.mutateStatus(ctx, id, EventTransition, func(order *repository.Order) error {
		if err := e.machine.TransitionTo(order, target, reason); err != nil {
			return err
		}
		return e.timers.Sync(order)
	})
}

// Advance moves the order one stage forward, starting or clearing timers as
// the new stage requires. Advancing a terminal order is a no-op success.
func (e *Engine) Advance(ctx context.Context, id string) (*repository.Order, error) {
	return e.mutateStatus(ctx, id, EventAdvanced, func(order *repository.Order) error {
		_, err := e.timers.AdvanceWithTimer(order)
		return err
	})
}

// Reject refuses a pending order with a mandatory reason.
func (e *Engine) Reject(ctx context.Context, id, reason string) (*repository.Order, error) {
	return e.mutateStatus(ctx, id, EventTransition, func(order *repository.Order) error {
		if err := e.machine.Reject(order, reason); err != nil {
			return err
		}
		return e.timers.Sync(order)
	})
}

// Cancel withdraws a pending order.
func (e *Engine) Cancel(ctx context.Context, id string) (*repository.Order, error) {
	return e.mutateStatus(ctx, id, EventTransition, func(order *repository.Order) error {
		if err := e.machine.Cancel(order); err != nil {
			return err
		}
		return e.timers.Sync(order)
	})
}

// mutateStatus runs one serialized status mutation: lock the row, apply the
// change, sync timers, commit, then reconcile the ledger and fire hooks.
func (e *Engine) mutateStatus(ctx context.Context, id, eventKind string, mutate func(*repository.Order) error) (*repository.Order, error) {
	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	order, err := e.lockOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	prev := order.Status
	if err := mutate(order); err != nil {
		return nil, err
	}
	if order.Status == prev {
		// Terminal no-op advance: nothing to persist or announce.
		return order, nil
	}

	order.UpdatedAt = e.clock()
	if err := e.orders.UpdateTx(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("failed to persist transition: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.TransitionsTotal.WithLabelValues(string(order.Status)).Inc()
	e.reconcileExit(ctx, order, prev)
	e.fireHooks(ctx, e.event(eventKind, order, prev))
	return order, nil
}

// reconcileExit releases the capacity slot after a committed exit from the
// active set. Failure here never unwinds the committed status change; the
// counter lags until the next release retry or reconciliation pass.
func (e *Engine) reconcileExit(ctx context.Context, order *repository.Order, prev repository.Status) {
	if !prev.IsActive() || order.Status.IsActive() {
		return
	}
	if err := e.ledger.Release(ctx, order.PickupDate); err != nil {
		e.logger.Warn("capacity release failed after committed transition",
			zap.String("order_id", order.ID),
			zap.String("pickup_date", repository.DateKey(order.PickupDate)),
			zap.Error(err))
	}
}

// Reschedule moves an active order to a new pickup date. The slot move and
// the order update share one transaction: a full target date fails the
// reschedule and leaves the source slot occupied.
func (e *Engine) Reschedule(ctx context.Context, id string, newDate time.Time, newTime string) (*repository.Order, error) {
	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	order, err := e.lockOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.IsActive() || order.IsDeleted {
		return nil, fmt.Errorf("%w: only active orders may be rescheduled", ErrInvalidState)
	}

	oldDate := order.PickupDate
	date := repository.Midnight(newDate)
	if !oldDate.Equal(date) {
		admitted, err := e.ledger.MoveTx(ctx, tx, oldDate, date)
		if err != nil {
			return nil, err
		}
		if !admitted {
			metrics.BookingsRefusedTotal.Inc()
			return nil, ErrCapacityExceeded
		}
	}

	order.PickupDate = date
	if newTime != "" {
		order.PickupTime = newTime
	}
	order.UpdatedAt = e.clock()
	if err := e.orders.UpdateTx(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("failed to persist reschedule: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	ev := e.event(EventRescheduled, order, order.Status)
	ev.PreviousPickupDate = repository.DateKey(oldDate)
	e.fireHooks(ctx, ev)
	return order, nil
}

// StartTimer arms the timer for a timed stage on an existing order.
func (e *Engine) StartTimer(ctx context.Context, id string, stage repository.Status) (*repository.Order, error) {
	return e.mutateTimer(ctx, id, EventTimerStarted, func(order *repository.Order) error {
		return e.timers.Start(order, stage)
	})
}

// StopTimer clears the timer fields.
func (e *Engine) StopTimer(ctx context.Context, id string) (*repository.Order, error) {
	return e.mutateTimer(ctx, id, EventTimerStopped, func(order *repository.Order) error {
		e.timers.Stop(order)
		return nil
	})
}

// ToggleAutoAdvance flips the per-order auto-advance flag. The flag is
// independent of any running timer.
func (e *Engine) ToggleAutoAdvance(ctx context.Context, id string, enabled bool) (*repository.Order, error) {
	return e.mutateTimer(ctx, id, EventAutoAdvanceToggled, func(order *repository.Order) error {
		order.AutoAdvance = enabled
		return nil
	})
}

func (e *Engine) mutateTimer(ctx context.Context, id, eventKind string, mutate func(*repository.Order) error) (*repository.Order, error) {
	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	order, err := e.lockOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(order); err != nil {
		return nil, err
	}
	order.UpdatedAt = e.clock()
	if err := e.orders.UpdateTx(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	e.fireHooks(ctx, e.event(eventKind, order, order.Status))
	return order, nil
}

// TimerStatus computes the timer snapshot at read time.
func (e *Engine) TimerStatus(ctx context.Context, id string) (TimerSnapshot, error) {
	order, err := e.Get(ctx, id)
	if err != nil {
		return TimerSnapshot{}, err
	}
	return e.timers.Snapshot(order), nil
}

// OrdersWithExpiredTimers lists orders whose timers have run out. The engine
// carries no scheduler; a driving caller polls this and advances what it
// finds appropriate.
func (e *Engine) OrdersWithExpiredTimers(ctx context.Context) ([]*repository.Order, error) {
	return e.orders.ExpiredTimerOrders(ctx, e.clock())
}

// Capacity returns occupied slots per date, absent dates as 0.
func (e *Engine) Capacity(ctx context.Context, dates []time.Time) (map[string]int, error) {
	normalized := make([]time.Time, len(dates))
	for i, d := range dates {
		normalized[i] = repository.Midnight(d)
	}
	return e.ledger.Counts(ctx, normalized)
}

// ReconcileCapacity recomputes a date's counter from the authoritative
// order set. Run when a lagging counter needs to catch up.
func (e *Engine) ReconcileCapacity(ctx context.Context, date time.Time) error {
	date = repository.Midnight(date)
	count, err := e.orders.ActiveCountByDate(ctx, date)
	if err != nil {
		return err
	}

	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := e.ledger.counters.SetCountTx(ctx, tx, date, count, e.ledger.defaultQuota); err != nil {
		return fmt.Errorf("failed to reconcile counter: %w", err)
	}
	return tx.Commit(ctx)
}

func (e *Engine) lockOrder(ctx context.Context, tx db.Tx, id string) (*repository.Order, error) {
	order, err := e.orders.GetByIDTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}
