package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
)

type fakeRecorder struct {
	rows []db.DomainEvent
}

func (f *fakeRecorder) InsertDomainEvent(ctx context.Context, topic string, aggregateID pgtype.UUID, payload []byte) (db.DomainEvent, error) {
	row := db.DomainEvent{
		ID:          db.NewUUID(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
	}
	f.rows = append(f.rows, row)
	return row, nil
}

type captureNotifier struct {
	events []Event
}

func (c *captureNotifier) Notify(ctx context.Context, ev Event) {
	c.events = append(c.events, ev)
}

func TestPublishRecordsAndFansOut(t *testing.T) {
	recorder := &fakeRecorder{}
	capture := &captureNotifier{}
	bus := &Bus{Q: recorder, Notifiers: []Notifier{capture}}

	orderID := db.NewUUID()
	payload := map[string]any{"total": 9500.0}
	if err := bus.Publish(context.Background(), TopicOrderCreated, orderID, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(recorder.rows) != 1 {
		t.Fatalf("recorded = %d, want 1", len(recorder.rows))
	}
	if recorder.rows[0].Topic != TopicOrderCreated {
		t.Fatalf("topic = %s", recorder.rows[0].Topic)
	}

	if len(capture.events) != 1 {
		t.Fatalf("notified = %d, want 1", len(capture.events))
	}
	ev := capture.events[0]
	if ev.AggregateID != db.UUIDString(orderID) {
		t.Fatalf("aggregate = %s", ev.AggregateID)
	}
	var decoded map[string]any
	if err := json.Unmarshal(ev.Payload, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded["total"] != 9500.0 {
		t.Fatalf("payload = %v", decoded)
	}
}

func TestPublishRejectsUnmarshalablePayload(t *testing.T) {
	bus := &Bus{Q: &fakeRecorder{}}
	if err := bus.Publish(context.Background(), TopicOrderCreated, db.NewUUID(), make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}
