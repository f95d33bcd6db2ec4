package engine

import (
	"fmt"

	"laundry-engine/internal/repository"
)

// StateMachine owns status transitions for a single order record. It only
// ever mutates the record it is handed; persistence and side effects are the
// caller's problem.
type StateMachine struct {
	configs map[repository.Kind]*StageConfig
}

func NewStateMachine(configs map[repository.Kind]*StageConfig) *StateMachine {
	return &StateMachine{configs: configs}
}

func (m *StateMachine) Config(kind repository.Kind) (*StageConfig, error) {
	cfg, ok := m.configs[kind]
	if !ok {
		return nil, fmt.Errorf("no stage config for kind %q", kind)
	}
	return cfg, nil
}

// Advance moves the order one stage forward. Advancing a terminal order is
// a valid no-op that returns the current status, not an error.
func (m *StateMachine) Advance(order *repository.Order) (repository.Status, error) {
	cfg, err := m.Config(order.Kind)
	if err != nil {
		return order.Status, err
	}

	if order.Status == repository.StatusRejected || order.Status == repository.StatusCancelled {
		return order.Status, nil
	}

	next, ok := cfg.Next(order.Status)
	if !ok {
		return order.Status, nil
	}
	order.Status = next
	return next, nil
}

// TransitionTo validates that target is reachable from the current status
// under the order's graph: any forward jump in the sequence, or a side-exit
// from the initial stage. The reason is required before any mutation when
// the target is rejected.
func (m *StateMachine) TransitionTo(order *repository.Order, target repository.Status, reason string) error {
	cfg, err := m.Config(order.Kind)
	if err != nil {
		return err
	}

	switch target {
	case repository.StatusRejected:
		if reason == "" {
			return ErrReasonRequired
		}
		if !cfg.CanSideExit(order.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
		}
		order.Status = repository.StatusRejected
		order.RejectReason = &reason
		return nil
	case repository.StatusCancelled:
		if !cfg.CanSideExit(order.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
		}
		order.Status = repository.StatusCancelled
		return nil
	}

	if !cfg.Forward(order.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
	}
	order.Status = target
	return nil
}

// Reject is only legal while the order still waits in its initial stage.
func (m *StateMachine) Reject(order *repository.Order, reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	cfg, err := m.Config(order.Kind)
	if err != nil {
		return err
	}
	if !cfg.CanSideExit(order.Status) {
		return fmt.Errorf("%w: only pending items may be rejected, got %s", ErrInvalidState, order.Status)
	}
	order.Status = repository.StatusRejected
	order.RejectReason = &reason
	return nil
}

// Cancel is only legal while the order still waits in its initial stage.
func (m *StateMachine) Cancel(order *repository.Order) error {
	cfg, err := m.Config(order.Kind)
	if err != nil {
		return err
	}
	if !cfg.CanSideExit(order.Status) {
		return fmt.Errorf("%w: only pending items may be cancelled, got %s", ErrInvalidState, order.Status)
	}
	order.Status = repository.StatusCancelled
	return nil
}
