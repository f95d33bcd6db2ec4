package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"laundry-engine/internal/db"
	"laundry-engine/internal/repository"
	"laundry-engine/internal/storage"
)

type OrderRepo struct {
	db db.DB
}

func NewOrderRepo(db db.DB) storage.OrderRepository {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) CreateTx(ctx context.Context, tx db.Tx, order *repository.Order) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO orders (
            id, kind, customer_name, customer_email, pickup_date, pickup_time,
            status, reject_reason, timer_start, timer_end, timer_stage,
            auto_advance, moved_to_history_at, is_deleted, deleted_at,
            created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
    `, order.ID, order.Kind, order.CustomerName, order.CustomerEmail, order.PickupDate, order.PickupTime,
		order.Status, order.RejectReason, order.TimerStart, order.TimerEnd, order.TimerStage,
		order.AutoAdvance, order.MovedToHistoryAt, order.IsDeleted, order.DeletedAt,
		order.CreatedAt, order.UpdatedAt)
	return err
}

func (r *OrderRepo) GetByID(ctx context.Context, id string) (*repository.Order, error) {
	var order repository.Order
	err := r.db.Get(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepo) GetByIDTx(ctx context.Context, tx db.Tx, id string) (*repository.Order, error) {
	var order repository.Order
	err := tx.Get(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &order, nil
}

const updateOrderQuery = `
        UPDATE orders
        SET
            customer_name = $1,
            customer_email = $2,
            pickup_date = $3,
            pickup_time = $4,
            status = $5,
            reject_reason = $6,
            timer_start = $7,
            timer_end = $8,
            timer_stage = $9,
            auto_advance = $10,
            moved_to_history_at = $11,
            is_deleted = $12,
            deleted_at = $13,
            updated_at = $14
        WHERE id = $15
    `

func (r *OrderRepo) Update(ctx context.Context, order *repository.Order) error {
	_, err := r.db.Exec(ctx, updateOrderQuery,
		order.CustomerName, order.CustomerEmail, order.PickupDate, order.PickupTime,
		order.Status, order.RejectReason, order.TimerStart, order.TimerEnd, order.TimerStage,
		order.AutoAdvance, order.MovedToHistoryAt, order.IsDeleted, order.DeletedAt,
		order.UpdatedAt, order.ID)
	return err
}

func (r *OrderRepo) UpdateTx(ctx context.Context, tx db.Tx, order *repository.Order) error {
	_, err := tx.Exec(ctx, updateOrderQuery,
		order.CustomerName, order.CustomerEmail, order.PickupDate, order.PickupTime,
		order.Status, order.RejectReason, order.TimerStart, order.TimerEnd, order.TimerStage,
		order.AutoAdvance, order.MovedToHistoryAt, order.IsDeleted, order.DeletedAt,
		order.UpdatedAt, order.ID)
	return err
}

func (r *OrderRepo) DeleteTx(ctx context.Context, tx db.Tx, id string) error {
	tag, err := tx.Exec(ctx, "DELETE FROM orders WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func (r *OrderRepo) ExpiredTimerOrders(ctx context.Context, now time.Time) ([]*repository.Order, error) {
	var orders []*repository.Order
	err := r.db.Select(ctx, &orders, `
        SELECT * FROM orders
        WHERE timer_start IS NOT NULL
          AND timer_end <= $1
          AND is_deleted = FALSE
        ORDER BY timer_end ASC
    `, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired timer orders: %w", err)
	}
	return orders, nil
}

func (r *OrderRepo) ActiveCountByDate(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := r.db.ExecQueryRow(ctx, `
        SELECT COUNT(*) FROM orders
        WHERE pickup_date = $1
          AND status NOT IN ('completed', 'rejected', 'cancelled')
          AND is_deleted = FALSE
    `, date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active orders for date: %w", err)
	}
	return count, nil
}
