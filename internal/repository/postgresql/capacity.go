package postgresql

import (
	"context"
	"fmt"
	"time"

	"laundry-engine/internal/db"
	"laundry-engine/internal/repository"
	"laundry-engine/internal/storage"
)

type CounterRepo struct {
	db db.DB
}

func NewCounterRepo(db db.DB) storage.CounterRepository {
	return &CounterRepo{db: db}
}

// TryAdmitTx relies on a single conditional upsert so the check-and-increment
// cannot race with a concurrent admission for the same date: the row either
// gains a slot or stays untouched, never both halves of a lost update.
func (r *CounterRepo) TryAdmitTx(ctx context.Context, tx db.Tx, date time.Time, defaultQuota int) (bool, error) {
	tag, err := tx.Exec(ctx, `
        INSERT INTO capacity_counters (pickup_date, count, quota)
        VALUES ($1, 1, $2)
        ON CONFLICT (pickup_date) DO UPDATE
        SET count = capacity_counters.count + 1
        WHERE capacity_counters.count < capacity_counters.quota
    `, date, defaultQuota)
	if err != nil {
		return false, fmt.Errorf("failed to admit booking for %s: %w", repository.DateKey(date), err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *CounterRepo) ReleaseTx(ctx context.Context, tx db.Tx, date time.Time) error {
	_, err := tx.Exec(ctx, `
        UPDATE capacity_counters
        SET count = count - 1
        WHERE pickup_date = $1 AND count > 0
    `, date)
	if err != nil {
		return fmt.Errorf("failed to release slot for %s: %w", repository.DateKey(date), err)
	}

	// Counter rows prune themselves once empty.
	_, err = tx.Exec(ctx, `
        DELETE FROM capacity_counters
        WHERE pickup_date = $1 AND count <= 0
    `, date)
	if err != nil {
		return fmt.Errorf("failed to prune counter for %s: %w", repository.DateKey(date), err)
	}
	return nil
}

func (r *CounterRepo) Counts(ctx context.Context, dates []time.Time) (map[string]int, error) {
	counts := make(map[string]int, len(dates))
	for _, d := range dates {
		counts[repository.DateKey(d)] = 0
	}

	var rows []*repository.CapacityCounter
	err := r.db.Select(ctx, &rows, `
        SELECT pickup_date, count, quota FROM capacity_counters
        WHERE pickup_date = ANY($1)
    `, dates)
	if err != nil {
		return nil, fmt.Errorf("failed to read capacity counters: %w", err)
	}

	for _, row := range rows {
		counts[repository.DateKey(row.PickupDate)] = row.Count
	}
	return counts, nil
}

func (r *CounterRepo) SetCountTx(ctx context.Context, tx db.Tx, date time.Time, count, defaultQuota int) error {
	if count <= 0 {
		_, err := tx.Exec(ctx, "DELETE FROM capacity_counters WHERE pickup_date = $1", date)
		return err
	}
	_, err := tx.Exec(ctx, `
        INSERT INTO capacity_counters (pickup_date, count, quota)
        VALUES ($1, $2, $3)
        ON CONFLICT (pickup_date) DO UPDATE SET count = $2
    `, date, count, defaultQuota)
	return err
}
