package engine

import (
	"context"
	"fmt"
	"time"

	"laundry-engine/internal/db"
	"laundry-engine/internal/storage"
)

// CapacityLedger owns the per-date admission counters. The counters are a
// derived cache of the active-order set, not a source of truth, so release
// saturates at zero and may be retried safely; admission is the one
// operation that must be exact.
type CapacityLedger struct {
	db           db.DB
	counters     storage.CounterRepository
	defaultQuota int
}

func NewCapacityLedger(database db.DB, counters storage.CounterRepository, defaultQuota int) *CapacityLedger {
	return &CapacityLedger{db: database, counters: counters, defaultQuota: defaultQuota}
}

// TryAdmitTx takes one slot for the date inside the caller's transaction.
func (l *CapacityLedger) TryAdmitTx(ctx context.Context, tx db.Tx, date time.Time) (bool, error) {
	return l.counters.TryAdmitTx(ctx, tx, date, l.defaultQuota)
}

// TryAdmit takes one slot for the date in its own transaction.
func (l *CapacityLedger) TryAdmit(ctx context.Context, date time.Time) (bool, error) {
	tx, err := l.db.BeginTx(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	admitted, err := l.counters.TryAdmitTx(ctx, tx, date, l.defaultQuota)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return admitted, nil
}

// Release gives one slot back. Releasing an empty or absent counter is a
// no-op because compensations may run more than once for one logical event.
func (l *CapacityLedger) Release(ctx context.Context, date time.Time) error {
	tx, err := l.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := l.counters.ReleaseTx(ctx, tx, date); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MoveTx shifts one slot from one date to another inside the caller's
// transaction. The target is admitted before the source is released, so a
// full target leaves the source slot untouched.
func (l *CapacityLedger) MoveTx(ctx context.Context, tx db.Tx, fromDate, toDate time.Time) (bool, error) {
	admitted, err := l.counters.TryAdmitTx(ctx, tx, toDate, l.defaultQuota)
	if err != nil {
		return false, fmt.Errorf("failed to admit target date: %w", err)
	}
	if !admitted {
		return false, nil
	}
	if err := l.counters.ReleaseTx(ctx, tx, fromDate); err != nil {
		return false, fmt.Errorf("failed to release source date: %w", err)
	}
	return true, nil
}

// Counts returns the occupied slots per requested date, absent dates as 0.
func (l *CapacityLedger) Counts(ctx context.Context, dates []time.Time) (map[string]int, error) {
	return l.counters.Counts(ctx, dates)
}
