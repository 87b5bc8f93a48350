package events

import (
	"context"
	"time"
)

// Event types published by the storefront.
const (
	OrderPlaced          = "order.placed"
	OrderStatusChanged   = "order.status_changed"
	PaymentRecorded      = "payment.recorded"
	PaymentStatusChanged = "payment.status_changed"
)

// Event is a JSON-serialisable domain notification.
type Event struct {
	Type       string                 `json:"type"`
	OrderID    int64                  `json:"orderId"`
	UserID     int64                  `json:"userId,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

// New stamps an event with the current time.
func New(eventType string, orderID, userID int64, attrs map[string]interface{}) Event {
	return Event{
		Type:       eventType,
		OrderID:    orderID,
		UserID:     userID,
		Attributes: attrs,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events outside the process. Callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
