package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"laundry-engine/internal/engine"
	"laundry-engine/internal/repository"
	"laundry-engine/internal/storage"
)

// NotificationHook enqueues each lifecycle event into the outbox. Delivery
// to the broker happens out of band via the Publisher, so a dead broker
// never slows down or fails an order mutation.
type NotificationHook struct {
	outbox storage.OutboxTaskRepository
	topic  string
}

func NewNotificationHook(outbox storage.OutboxTaskRepository, topic string) *NotificationHook {
	return &NotificationHook{outbox: outbox, topic: topic}
}

func (h *NotificationHook) Name() string {
	return "notification"
}

func (h *NotificationHook) AfterCommit(ctx context.Context, ev engine.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal lifecycle event: %w", err)
	}
	return h.outbox.Create(ctx, &repository.OutboxTask{
		Payload: payload,
		Topic:   h.topic,
	})
}
