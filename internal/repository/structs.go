package repository

import (
	"errors"
	"time"
)

var ErrObjectNotFound = errors.New("not found")

type Status string

const (
	StatusPending        Status = "pending"
	StatusPendingBooking Status = "pending_booking"
	StatusApproved       Status = "approved"
	StatusWashing        Status = "washing"
	StatusDrying         Status = "drying"
	StatusFolding        Status = "folding"
	StatusReady          Status = "ready"
	StatusCompleted      Status = "completed"
	StatusRejected       Status = "rejected"
	StatusCancelled      Status = "cancelled"
)

// IsActive reports whether an order in this status still occupies a
// capacity slot for its pickup date.
func (s Status) IsActive() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return false
	}
	return true
}

type Kind string

const (
	KindOrder   Kind = "order"
	KindBooking Kind = "booking"
)

type Order struct {
	ID               string     `db:"id"`
	Kind             Kind       `db:"kind"`
	CustomerName     string     `db:"customer_name"`
	CustomerEmail    string     `db:"customer_email"`
	PickupDate       time.Time  `db:"pickup_date"`
	PickupTime       string     `db:"pickup_time"`
	Status           Status     `db:"status"`
	RejectReason     *string    `db:"reject_reason"`
	TimerStart       *time.Time `db:"timer_start"`
	TimerEnd         *time.Time `db:"timer_end"`
	TimerStage       *Status    `db:"timer_stage"`
	AutoAdvance      bool       `db:"auto_advance"`
	MovedToHistoryAt *time.Time `db:"moved_to_history_at"`
	IsDeleted        bool       `db:"is_deleted"`
	DeletedAt        *time.Time `db:"deleted_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// InHistory reports whether the order has been archived or soft-deleted.
func (o *Order) InHistory() bool {
	return o.MovedToHistoryAt != nil || o.IsDeleted
}

type CapacityCounter struct {
	PickupDate time.Time `db:"pickup_date"`
	Count      int       `db:"count"`
	Quota      int       `db:"quota"`
}

// DateKey is the canonical map key for a pickup date.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Midnight truncates a timestamp to its UTC date.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
