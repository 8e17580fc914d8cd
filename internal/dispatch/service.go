package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/events"
	"github.com/obi-nwosu/backend-chopnow/internal/order"
)

// ErrNotFound indicates the dispatch could not be located.
var ErrNotFound = errors.New("dispatch not found")

// ErrInvalidTransition is returned for dispatch steps the machine forbids.
var ErrInvalidTransition = errors.New("invalid dispatch transition")

// Querier captures the database methods used by the dispatch service.
type Querier interface {
	CreateDispatch(ctx context.Context, orderID pgtype.UUID, trackingRef pgtype.Text) (db.Dispatch, error)
	GetDispatchByOrder(ctx context.Context, orderID pgtype.UUID) (db.Dispatch, error)
	GetDispatchByTrackingRef(ctx context.Context, ref string) (db.Dispatch, error)
	AssignRider(ctx context.Context, id pgtype.UUID, name, phone string) (db.Dispatch, error)
	UpdateDispatchStatus(ctx context.Context, id pgtype.UUID, status string) (db.Dispatch, error)
}

// Service manages the delivery leg of confirmed orders. Courier progress
// drives the order lifecycle: going out for delivery and delivering both
// move the order itself.
type Service struct {
	Q      Querier
	Orders *order.Service
	Events *events.Bus
	Log    zerolog.Logger
}

// Open creates the delivery leg for a confirmed order with a fresh tracking
// reference. Opening twice is a no-op so replayed confirmations stay safe.
func (s *Service) Open(ctx context.Context, orderID pgtype.UUID) (db.Dispatch, error) {
	if s == nil || s.Q == nil {
		return db.Dispatch{}, errors.New("dispatch service not configured")
	}
	existing, err := s.Q.GetDispatchByOrder(ctx, orderID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return db.Dispatch{}, err
	}
	ref := pgtype.Text{String: "chp_" + uuid.NewString(), Valid: true}
	return s.Q.CreateDispatch(ctx, orderID, ref)
}

// Assign records the rider taking the order. Allowed only while the
// dispatch is still pending.
func (s *Service) Assign(ctx context.Context, orderID, riderName, riderPhone string) (db.Dispatch, error) {
	if s == nil || s.Q == nil {
		return db.Dispatch{}, errors.New("dispatch service not configured")
	}
	if riderName == "" || riderPhone == "" {
		return db.Dispatch{}, errors.New("rider name and phone are required")
	}
	d, err := s.byOrder(ctx, orderID)
	if err != nil {
		return db.Dispatch{}, err
	}
	if !CanTransition(d.Status, StatusAssigned) {
		return db.Dispatch{}, fmt.Errorf("%s -> %s: %w", d.Status, StatusAssigned, ErrInvalidTransition)
	}
	assigned, err := s.Q.AssignRider(ctx, d.ID, riderName, riderPhone)
	if err != nil {
		return db.Dispatch{}, err
	}
	s.publish(ctx, events.TopicDispatchAssigned, assigned)
	return assigned, nil
}

// Progress moves the dispatch to the given status and mirrors delivery
// milestones onto the order itself.
func (s *Service) Progress(ctx context.Context, d db.Dispatch, target string) (db.Dispatch, error) {
	if s == nil || s.Q == nil {
		return db.Dispatch{}, errors.New("dispatch service not configured")
	}
	if !CanTransition(d.Status, target) {
		return db.Dispatch{}, fmt.Errorf("%s -> %s: %w", d.Status, target, ErrInvalidTransition)
	}
	updated, err := s.Q.UpdateDispatchStatus(ctx, d.ID, target)
	if err != nil {
		return db.Dispatch{}, err
	}

	switch target {
	case StatusOutForDelivery:
		s.moveOrder(ctx, updated, order.StatusOutForDelivery)
	case StatusDelivered:
		s.moveOrder(ctx, updated, order.StatusDelivered)
		s.publish(ctx, events.TopicDispatchDelivered, updated)
	}
	return updated, nil
}

// Track returns the dispatch for one of the customer's own orders.
func (s *Service) Track(ctx context.Context, userID, orderID string) (db.Dispatch, error) {
	if s == nil || s.Q == nil || s.Orders == nil {
		return db.Dispatch{}, errors.New("dispatch service not configured")
	}
	// Ownership check rides on the order lookup.
	if _, _, err := s.Orders.Get(ctx, userID, orderID); err != nil {
		return db.Dispatch{}, err
	}
	return s.byOrder(ctx, orderID)
}

// ByTrackingRef locates a dispatch from a courier webhook reference.
func (s *Service) ByTrackingRef(ctx context.Context, ref string) (db.Dispatch, error) {
	d, err := s.Q.GetDispatchByTrackingRef(ctx, ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Dispatch{}, ErrNotFound
		}
		return db.Dispatch{}, err
	}
	return d, nil
}

func (s *Service) byOrder(ctx context.Context, orderID string) (db.Dispatch, error) {
	oid, err := db.ToUUID(orderID)
	if err != nil {
		return db.Dispatch{}, fmt.Errorf("parse order id: %w", err)
	}
	d, err := s.Q.GetDispatchByOrder(ctx, oid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Dispatch{}, ErrNotFound
		}
		return db.Dispatch{}, err
	}
	return d, nil
}

func (s *Service) moveOrder(ctx context.Context, d db.Dispatch, target string) {
	if s.Orders == nil {
		return
	}
	if err := s.Orders.UpdateStatus(ctx, db.UUIDString(d.OrderID), target); err != nil {
		// The kitchen may have moved the order already; log and carry on.
		s.Log.Warn().Err(err).
			Str("order_id", db.UUIDString(d.OrderID)).
			Str("target", target).
			Msg("mirror dispatch status onto order")
	}
}

func (s *Service) publish(ctx context.Context, topic string, d db.Dispatch) {
	if s.Events == nil {
		return
	}
	payload := map[string]any{
		"dispatchId":  db.UUIDString(d.ID),
		"orderId":     db.UUIDString(d.OrderID),
		"status":      d.Status,
		"trackingRef": d.TrackingRef.String,
	}
	if d.RiderName.Valid {
		payload["riderName"] = d.RiderName.String
	}
	if err := s.Events.Publish(ctx, topic, d.OrderID, payload); err != nil {
		s.Log.Warn().Err(err).Str("topic", topic).Msg("publish dispatch event")
	}
}

// OrderConfirmedNotifier opens a dispatch whenever an order is confirmed.
// It hangs off the event bus so checkout and the admin console never call
// dispatch directly.
type OrderConfirmedNotifier struct {
	Svc *Service
	Log zerolog.Logger
}

// Notify implements events.Notifier.
func (n OrderConfirmedNotifier) Notify(ctx context.Context, ev events.Event) {
	if ev.Topic != events.TopicOrderConfirmed || n.Svc == nil {
		return
	}
	oid, err := db.ToUUID(ev.AggregateID)
	if err != nil {
		n.Log.Error().Err(err).Str("aggregate_id", ev.AggregateID).Msg("open dispatch: bad order id")
		return
	}
	if _, err := n.Svc.Open(ctx, oid); err != nil {
		n.Log.Error().Err(err).Str("order_id", ev.AggregateID).Msg("open dispatch")
	}
}
