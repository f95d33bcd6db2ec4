package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"laundry-engine/internal/db"
	"laundry-engine/internal/repository"
)

type OrderRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, order *repository.Order) error
	GetByID(ctx context.Context, id string) (*repository.Order, error)
	// GetByIDTx takes a row lock so concurrent transitions on the same
	// order serialize at the store.
	GetByIDTx(ctx context.Context, tx db.Tx, id string) (*repository.Order, error)
	Update(ctx context.Context, order *repository.Order) error
	UpdateTx(ctx context.Context, tx db.Tx, order *repository.Order) error
	DeleteTx(ctx context.Context, tx db.Tx, id string) error
	ExpiredTimerOrders(ctx context.Context, now time.Time) ([]*repository.Order, error)
	ActiveCountByDate(ctx context.Context, date time.Time) (int, error)
}

type CounterRepository interface {
	// TryAdmitTx is a single conditional upsert: it increments the counter
	// for the date only while count < quota, creating the row (count=1,
	// quota=defaultQuota) when absent. Returns whether a slot was taken.
	TryAdmitTx(ctx context.Context, tx db.Tx, date time.Time, defaultQuota int) (bool, error)
	// ReleaseTx decrements the counter, floored at zero, and prunes the
	// row once it reaches zero. Releasing an absent date is a no-op.
	ReleaseTx(ctx context.Context, tx db.Tx, date time.Time) error
	Counts(ctx context.Context, dates []time.Time) (map[string]int, error)
	SetCountTx(ctx context.Context, tx db.Tx, date time.Time, count, defaultQuota int) error
}

type OutboxTaskRepository interface {
	Create(ctx context.Context, task *repository.OutboxTask) error
	GetProcessableTasksTx(ctx context.Context, tx db.Tx, limit, maxAttempts int) ([]*repository.OutboxTask, error)
	UpdateTaskStatusTx(ctx context.Context, tx db.Tx, id uuid.UUID, status repository.TaskStatus, attempts int, lastError *string, completedAt *time.Time) error
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status repository.TaskStatus, attempts int, lastError *string, completedAt *time.Time) error
}

type UserRepository interface {
	EnsureUser(ctx context.Context, username, password string) error
	ValidateUser(ctx context.Context, username, password string) (bool, error)
}
