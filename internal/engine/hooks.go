package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"laundry-engine/internal/metrics"
	"laundry-engine/internal/repository"
)

const (
	EventCreated            = "created"
	EventTransition         = "transition"
	EventAdvanced           = "advanced"
	EventRescheduled        = "rescheduled"
	EventTimerStarted       = "timer_started"
	EventTimerStopped       = "timer_stopped"
	EventAutoAdvanceToggled = "auto_advance_toggled"
	EventArchived           = "archived"
	EventRestored           = "restored"
	EventSoftDeleted        = "soft_deleted"
	EventPurged             = "purged"
)

// Event is emitted after each successfully committed mutation.
type Event struct {
	Kind               string            `json:"kind"`
	OrderID            string            `json:"order_id"`
	OrderKind          repository.Kind   `json:"order_kind"`
	PreviousStatus     repository.Status `json:"previous_status,omitempty"`
	NewStatus          repository.Status `json:"new_status"`
	PickupDate         string            `json:"pickup_date"`
	PreviousPickupDate string            `json:"previous_pickup_date,omitempty"`
	CustomerName       string            `json:"customer_name,omitempty"`
	CustomerEmail      string            `json:"customer_email,omitempty"`
	RejectReason       string            `json:"reject_reason,omitempty"`
	Timestamp          time.Time         `json:"timestamp"`
}

// Hook runs after the primary mutation has committed. Hooks are strictly
// downstream: an error is logged and counted, never surfaced to the caller,
// and never rolls back the committed change.
type Hook interface {
	Name() string
	AfterCommit(ctx context.Context, ev Event) error
}

func (e *Engine) fireHooks(ctx context.Context, ev Event) {
	for _, h := range e.hooks {
		if err := h.AfterCommit(ctx, ev); err != nil {
			metrics.HookErrorsTotal.WithLabelValues(h.Name()).Inc()
			e.logger.Warn("post-commit hook failed",
				zap.String("hook", h.Name()),
				zap.String("event", ev.Kind),
				zap.String("order_id", ev.OrderID),
				zap.Error(err))
		}
	}
}

func (e *Engine) event(kind string, order *repository.Order, prev repository.Status) Event {
	ev := Event{
		Kind:           kind,
		OrderID:        order.ID,
		OrderKind:      order.Kind,
		PreviousStatus: prev,
		NewStatus:      order.Status,
		PickupDate:     repository.DateKey(order.PickupDate),
		CustomerName:   order.CustomerName,
		CustomerEmail:  order.CustomerEmail,
		Timestamp:      e.clock(),
	}
	if order.RejectReason != nil {
		ev.RejectReason = *order.RejectReason
	}
	return ev
}
