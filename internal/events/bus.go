package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
)

// Topics published by the order pipeline.
const (
	TopicOrderCreated        = "order.created"
	TopicOrderConfirmed      = "order.confirmed"
	TopicOrderCancelled      = "order.cancelled"
	TopicOrderAmountAdjusted = "order.amount_adjusted"
	TopicDispatchAssigned    = "dispatch.assigned"
	TopicDispatchDelivered   = "dispatch.delivered"
)

// Event is the recorded form handed to notifiers.
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Recorder persists domain events.
type Recorder interface {
	InsertDomainEvent(ctx context.Context, topic string, aggregateID pgtype.UUID, payload []byte) (db.DomainEvent, error)
}

// Notifier receives events after they are durably recorded. Implementations
// must tolerate duplicate delivery.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Bus records domain events and fans them out to notifiers. Persistence is
// the source of truth; notifier failures are logged, never propagated.
type Bus struct {
	Q         Recorder
	Log       zerolog.Logger
	Notifiers []Notifier
}

// Publish stores the event and notifies subscribers.
func (b *Bus) Publish(ctx context.Context, topic string, aggregateID pgtype.UUID, payload any) error {
	if b == nil || b.Q == nil {
		return errors.New("event bus not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	row, err := b.Q.InsertDomainEvent(ctx, topic, aggregateID, body)
	if err != nil {
		return err
	}
	ev := Event{
		ID:          db.UUIDString(row.ID),
		Topic:       row.Topic,
		AggregateID: db.UUIDString(row.AggregateID),
		Payload:     row.Payload,
	}
	if row.OccurredAt.Valid {
		ev.OccurredAt = row.OccurredAt.Time
	}
	for _, n := range b.Notifiers {
		n.Notify(ctx, ev)
	}
	return nil
}

// LogNotifier writes each event to the structured log. It doubles as the
// default notifier in environments without downstream consumers.
type LogNotifier struct {
	Log zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, ev Event) {
	n.Log.Info().
		Str("event_id", ev.ID).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID).
		Msg("domain event")
}
