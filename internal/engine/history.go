package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"laundry-engine/internal/metrics"
	"laundry-engine/internal/repository"
)

// Archive marks a completed order as historical. The status itself stays
// untouched; history flags are orthogonal to the stage graph.
func (e *Engine) Archive(ctx context.Context, id string) (*repository.Order, error) {
	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	order, err := e.lockOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != repository.StatusCompleted || order.MovedToHistoryAt != nil {
		return nil, ErrNotEligible
	}

	now := e.clock()
	order.MovedToHistoryAt = &now
	order.UpdatedAt = now
	if err := e.orders.UpdateTx(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	e.fireHooks(ctx, e.event(EventArchived, order, order.Status))
	return order, nil
}

// Restore pulls an archived or soft-deleted order back out of history,
// clearing all history flags. An order that was soft-deleted while still
// active gave its capacity slot back, so restoring it must re-admit the
// pickup date; a full date blocks the restore.
func (e *Engine) Restore(ctx context.Context, id string, kind repository.Kind) (*repository.Order, error) {
	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	order, err := e.lockOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if order.Kind != kind {
		return nil, ErrNotFound
	}
	if !order.InHistory() {
		return nil, ErrNotInHistory
	}

	reoccupies := order.IsDeleted && order.Status.IsActive()
	order.MovedToHistoryAt = nil
	order.IsDeleted = false
	order.DeletedAt = nil
	order.UpdatedAt = e.clock()

	if reoccupies {
		admitted, err := e.ledger.TryAdmitTx(ctx, tx, order.PickupDate)
		if err != nil {
			return nil, fmt.Errorf("re-admission failed: %w", err)
		}
		if !admitted {
			return nil, ErrCapacityExceeded
		}
	}

	if err := e.orders.UpdateTx(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	e.fireHooks(ctx, e.event(EventRestored, order, order.Status))
	return order, nil
}

// Purge permanently removes an order that already sits in history.
func (e *Engine) Purge(ctx context.Context, id string, kind repository.Kind) error {
	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	order, err := e.lockOrder(ctx, tx, id)
	if err != nil {
		return err
	}
	if order.Kind != kind {
		return ErrNotFound
	}
	if !order.InHistory() {
		return ErrNotInHistory
	}

	if err := e.orders.DeleteTx(ctx, tx, order.ID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	e.fireHooks(ctx, e.event(EventPurged, order, order.Status))
	return nil
}

// SoftDelete flags the order deleted. Deleting an active order is itself an
// exit from the active set, so the capacity slot is released (best-effort,
// after commit, like any other exit).
func (e *Engine) SoftDelete(ctx context.Context, id string) (*repository.Order, error) {
	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	order, err := e.lockOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if order.IsDeleted {
		return nil, ErrAlreadyDeleted
	}

	wasActive := order.Status.IsActive()
	now := e.clock()
	order.IsDeleted = true
	order.DeletedAt = &now
	order.UpdatedAt = now
	if err := e.orders.UpdateTx(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if wasActive {
		if err := e.ledger.Release(ctx, order.PickupDate); err != nil {
			e.logger.Warn("capacity release failed after soft delete",
				zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	metrics.TransitionsTotal.WithLabelValues("soft_deleted").Inc()
	e.fireHooks(ctx, e.event(EventSoftDeleted, order, order.Status))
	return order, nil
}
