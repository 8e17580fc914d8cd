package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// InsertDomainEvent appends an event to the outbox table.
func (s *Store) InsertDomainEvent(ctx context.Context, topic string, aggregateID pgtype.UUID, payload []byte) (DomainEvent, error) {
	const q = `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, topic, aggregate_id, payload, occurred_at`
	var ev DomainEvent
	err := s.Pool.QueryRow(ctx, q, topic, aggregateID, payload).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	return ev, err
}
