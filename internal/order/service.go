package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/events"
)

// ErrNotFound indicates the order does not exist or belongs to someone else.
var ErrNotFound = errors.New("order not found")

// ErrInvalidTransition is returned for lifecycle steps the machine forbids.
var ErrInvalidTransition = errors.New("invalid status transition")

// Querier captures the database methods used by the order service.
type Querier interface {
	GetOrderByID(ctx context.Context, id pgtype.UUID) (db.Order, error)
	ListOrdersByUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]db.Order, error)
	CountOrdersByUser(ctx context.Context, userID pgtype.UUID) (int64, error)
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]db.OrderItem, error)
	UpdateOrderStatusFrom(ctx context.Context, id pgtype.UUID, from, to string) error
}

// Service tracks orders after checkout: customer views and the guarded
// status lifecycle.
type Service struct {
	Q      Querier
	Events *events.Bus
	Log    zerolog.Logger
}

// List returns a page of the customer's orders plus the total count.
func (s *Service) List(ctx context.Context, userID string, page, perPage int) ([]db.Order, int64, error) {
	if s == nil || s.Q == nil {
		return nil, 0, errors.New("order service not configured")
	}
	uid, err := db.ToUUID(userID)
	if err != nil {
		return nil, 0, fmt.Errorf("parse user id: %w", err)
	}
	total, err := s.Q.CountOrdersByUser(ctx, uid)
	if err != nil {
		return nil, 0, err
	}
	offset := int32((page - 1) * perPage)
	orders, err := s.Q.ListOrdersByUser(ctx, uid, int32(perPage), offset)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Get loads one of the customer's orders with its lines. Orders owned by
// other customers are indistinguishable from missing ones.
func (s *Service) Get(ctx context.Context, userID, orderID string) (db.Order, []db.OrderItem, error) {
	if s == nil || s.Q == nil {
		return db.Order{}, nil, errors.New("order service not configured")
	}
	ord, err := s.load(ctx, orderID)
	if err != nil {
		return db.Order{}, nil, err
	}
	if db.UUIDString(ord.UserID) != userID {
		return db.Order{}, nil, ErrNotFound
	}
	items, err := s.Q.ListOrderItems(ctx, ord.ID)
	if err != nil {
		return db.Order{}, nil, err
	}
	return ord, items, nil
}

// Cancel lets the customer abandon an order that the kitchen has not yet
// confirmed. Anything later requires support intervention.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) error {
	if s == nil || s.Q == nil {
		return errors.New("order service not configured")
	}
	ord, err := s.load(ctx, orderID)
	if err != nil {
		return err
	}
	if db.UUIDString(ord.UserID) != userID {
		return ErrNotFound
	}
	if ord.Status != StatusPending {
		return fmt.Errorf("only pending orders can be cancelled: %w", ErrInvalidTransition)
	}
	return s.transition(ctx, ord, StatusCancelled)
}

// UpdateStatus moves an order along the lifecycle on behalf of the admin
// console or the dispatch pipeline.
func (s *Service) UpdateStatus(ctx context.Context, orderID, target string) error {
	if s == nil || s.Q == nil {
		return errors.New("order service not configured")
	}
	if !ValidStatus(target) {
		return fmt.Errorf("unknown status %q: %w", target, ErrInvalidTransition)
	}
	ord, err := s.load(ctx, orderID)
	if err != nil {
		return err
	}
	if !CanTransition(ord.Status, target) {
		return fmt.Errorf("%s -> %s: %w", ord.Status, target, ErrInvalidTransition)
	}
	return s.transition(ctx, ord, target)
}

func (s *Service) load(ctx context.Context, orderID string) (db.Order, error) {
	oid, err := db.ToUUID(orderID)
	if err != nil {
		return db.Order{}, fmt.Errorf("parse order id: %w", err)
	}
	ord, err := s.Q.GetOrderByID(ctx, oid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Order{}, ErrNotFound
		}
		return db.Order{}, err
	}
	return ord, nil
}

func (s *Service) transition(ctx context.Context, ord db.Order, target string) error {
	if err := s.Q.UpdateOrderStatusFrom(ctx, ord.ID, ord.Status, target); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Someone moved the order first.
			return fmt.Errorf("%s -> %s: %w", ord.Status, target, ErrInvalidTransition)
		}
		return err
	}
	s.publish(ctx, ord, target)
	return nil
}

func (s *Service) publish(ctx context.Context, ord db.Order, target string) {
	if s.Events == nil {
		return
	}
	var topic string
	switch target {
	case StatusConfirmed:
		topic = events.TopicOrderConfirmed
	case StatusCancelled:
		topic = events.TopicOrderCancelled
	default:
		return
	}
	payload := map[string]any{
		"orderId": db.UUIDString(ord.ID),
		"userId":  db.UUIDString(ord.UserID),
		"status":  target,
	}
	if err := s.Events.Publish(ctx, topic, ord.ID, payload); err != nil {
		s.Log.Warn().Err(err).Str("order_id", db.UUIDString(ord.ID)).Str("topic", topic).Msg("publish order event")
	}
}
