package engine

import (
	"fmt"
	"time"

	"laundry-engine/internal/repository"
)

// TimerSnapshot is computed from stored fields and the caller's clock at
// read time. There is no background scheduler; expiry is discovered lazily
// whenever somebody looks.
type TimerSnapshot struct {
	Active    bool               `json:"active"`
	Expired   bool               `json:"expired"`
	Remaining time.Duration      `json:"remaining"`
	Stage     *repository.Status `json:"stage,omitempty"`
	TimerEnd  *time.Time         `json:"timer_end,omitempty"`
}

// TimerCoordinator computes timer start/end/expiry for the timed stages and
// keeps timer fields in lockstep with status changes.
type TimerCoordinator struct {
	machine *StateMachine
	clock   func() time.Time
}

func NewTimerCoordinator(machine *StateMachine, clock func() time.Time) *TimerCoordinator {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &TimerCoordinator{machine: machine, clock: clock}
}

// Start sets the timer fields for the given stage on the record. The order
// itself must sit in a timed stage: a timer on a pending or terminal order
// would surface it to the expired-timer sweep and let auto-advance move it
// without any admin action.
func (t *TimerCoordinator) Start(order *repository.Order, stage repository.Status) error {
	cfg, err := t.machine.Config(order.Kind)
	if err != nil {
		return err
	}
	if _, ok := cfg.Duration(order.Status); !ok {
		return fmt.Errorf("%w: timers only run while the order is in a timed stage, got %s", ErrInvalidState, order.Status)
	}
	duration, ok := cfg.Duration(stage)
	if !ok {
		return ErrInvalidState
	}

	now := t.clock()
	end := now.Add(duration)
	order.TimerStart = &now
	order.TimerEnd = &end
	stageCopy := stage
	order.TimerStage = &stageCopy
	return nil
}

// Stop clears all three timer fields.
func (t *TimerCoordinator) Stop(order *repository.Order) {
	order.TimerStart = nil
	order.TimerEnd = nil
	order.TimerStage = nil
}

// Snapshot derives the timer state from the stored fields and the clock.
func (t *TimerCoordinator) Snapshot(order *repository.Order) TimerSnapshot {
	if order.TimerStart == nil || order.TimerEnd == nil {
		return TimerSnapshot{}
	}

	remaining := order.TimerEnd.Sub(t.clock())
	if remaining < 0 {
		remaining = 0
	}
	return TimerSnapshot{
		Active:    remaining > 0,
		Expired:   remaining == 0,
		Remaining: remaining,
		Stage:     order.TimerStage,
		TimerEnd:  order.TimerEnd,
	}
}

// AdvanceWithTimer advances the order one stage and keeps the timer fields
// consistent with the result: a timed stage gets a fresh timer, anything
// else clears it. This is the only place status and timers change together,
// so a partial update (one set without the other) cannot happen.
func (t *TimerCoordinator) AdvanceWithTimer(order *repository.Order) (repository.Status, error) {
	next, err := t.machine.Advance(order)
	if err != nil {
		return order.Status, err
	}
	if err := t.Sync(order); err != nil {
		return next, err
	}
	return next, nil
}

// Sync re-derives timer fields after any status change.
func (t *TimerCoordinator) Sync(order *repository.Order) error {
	cfg, err := t.machine.Config(order.Kind)
	if err != nil {
		return err
	}
	if _, timed := cfg.Duration(order.Status); timed {
		return t.Start(order, order.Status)
	}
	t.Stop(order)
	return nil
}
