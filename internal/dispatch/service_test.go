package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/events"
	"github.com/obi-nwosu/backend-chopnow/internal/order"
)

// memStore backs both the dispatch and order services in tests.
type memStore struct {
	dispatches map[string]db.Dispatch
	orders     map[string]db.Order
}

func newMemStore() *memStore {
	return &memStore{dispatches: map[string]db.Dispatch{}, orders: map[string]db.Order{}}
}

func (s *memStore) CreateDispatch(_ context.Context, orderID pgtype.UUID, trackingRef pgtype.Text) (db.Dispatch, error) {
	d := db.Dispatch{ID: db.NewUUID(), OrderID: orderID, Status: StatusPending, TrackingRef: trackingRef}
	s.dispatches[db.UUIDString(d.ID)] = d
	return d, nil
}

func (s *memStore) GetDispatchByOrder(_ context.Context, orderID pgtype.UUID) (db.Dispatch, error) {
	for _, d := range s.dispatches {
		if db.UUIDEqual(d.OrderID, orderID) {
			return d, nil
		}
	}
	return db.Dispatch{}, pgx.ErrNoRows
}

func (s *memStore) GetDispatchByTrackingRef(_ context.Context, ref string) (db.Dispatch, error) {
	for _, d := range s.dispatches {
		if d.TrackingRef.Valid && d.TrackingRef.String == ref {
			return d, nil
		}
	}
	return db.Dispatch{}, pgx.ErrNoRows
}

func (s *memStore) AssignRider(_ context.Context, id pgtype.UUID, name, phone string) (db.Dispatch, error) {
	d, ok := s.dispatches[db.UUIDString(id)]
	if !ok {
		return db.Dispatch{}, pgx.ErrNoRows
	}
	d.RiderName = pgtype.Text{String: name, Valid: true}
	d.RiderPhone = pgtype.Text{String: phone, Valid: true}
	d.Status = StatusAssigned
	s.dispatches[db.UUIDString(id)] = d
	return d, nil
}

func (s *memStore) UpdateDispatchStatus(_ context.Context, id pgtype.UUID, status string) (db.Dispatch, error) {
	d, ok := s.dispatches[db.UUIDString(id)]
	if !ok {
		return db.Dispatch{}, pgx.ErrNoRows
	}
	d.Status = status
	s.dispatches[db.UUIDString(id)] = d
	return d, nil
}

func (s *memStore) GetOrderByID(_ context.Context, id pgtype.UUID) (db.Order, error) {
	ord, ok := s.orders[db.UUIDString(id)]
	if !ok {
		return db.Order{}, pgx.ErrNoRows
	}
	return ord, nil
}

func (s *memStore) ListOrdersByUser(context.Context, pgtype.UUID, int32, int32) ([]db.Order, error) {
	return nil, nil
}

func (s *memStore) CountOrdersByUser(context.Context, pgtype.UUID) (int64, error) {
	return 0, nil
}

func (s *memStore) ListOrderItems(context.Context, pgtype.UUID) ([]db.OrderItem, error) {
	return nil, nil
}

func (s *memStore) UpdateOrderStatusFrom(_ context.Context, id pgtype.UUID, from, to string) error {
	ord, ok := s.orders[db.UUIDString(id)]
	if !ok || ord.Status != from {
		return pgx.ErrNoRows
	}
	ord.Status = to
	s.orders[db.UUIDString(id)] = ord
	return nil
}

func (s *memStore) InsertDomainEvent(_ context.Context, topic string, aggregateID pgtype.UUID, payload []byte) (db.DomainEvent, error) {
	return db.DomainEvent{ID: db.NewUUID(), Topic: topic, AggregateID: aggregateID, Payload: payload}, nil
}

func newTestService(store *memStore) *Service {
	bus := &events.Bus{Q: store, Log: zerolog.Nop()}
	return &Service{
		Q:      store,
		Orders: &order.Service{Q: store, Events: bus, Log: zerolog.Nop()},
		Events: bus,
		Log:    zerolog.Nop(),
	}
}

func seedOrder(store *memStore, status string) db.Order {
	ord := db.Order{ID: db.NewUUID(), UserID: db.NewUUID(), Status: status}
	store.orders[db.UUIDString(ord.ID)] = ord
	return ord
}

func TestOpenIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ord := seedOrder(store, order.StatusConfirmed)

	first, err := svc.Open(context.Background(), ord.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if first.Status != StatusPending || !first.TrackingRef.Valid {
		t.Fatalf("dispatch = %+v, want pending with tracking ref", first)
	}
	second, err := svc.Open(context.Background(), ord.ID)
	if err != nil {
		t.Fatalf("Open again: %v", err)
	}
	if !db.UUIDEqual(first.ID, second.ID) {
		t.Fatal("reopening must return the existing dispatch")
	}
	if len(store.dispatches) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(store.dispatches))
	}
}

func TestAssignRider(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ord := seedOrder(store, order.StatusConfirmed)
	if _, err := svc.Open(context.Background(), ord.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}

	d, err := svc.Assign(context.Background(), db.UUIDString(ord.ID), "Emeka O.", "+2348098765432")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if d.Status != StatusAssigned || d.RiderName.String != "Emeka O." {
		t.Fatalf("dispatch = %+v, want assigned to Emeka O.", d)
	}

	// A second rider cannot take an already assigned dispatch.
	if _, err := svc.Assign(context.Background(), db.UUIDString(ord.ID), "Tunde A.", "+2348011112222"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestProgressMirrorsOrderStatus(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ord := seedOrder(store, order.StatusReady)
	d, err := svc.Open(context.Background(), ord.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d, err = svc.Q.AssignRider(context.Background(), d.ID, "Emeka O.", "+2348098765432"); err != nil {
		t.Fatalf("AssignRider: %v", err)
	}

	if d, err = svc.Progress(context.Background(), d, StatusPickedUp); err != nil {
		t.Fatalf("Progress picked up: %v", err)
	}
	if d, err = svc.Progress(context.Background(), d, StatusOutForDelivery); err != nil {
		t.Fatalf("Progress out for delivery: %v", err)
	}
	if got := store.orders[db.UUIDString(ord.ID)].Status; got != order.StatusOutForDelivery {
		t.Fatalf("order status = %q, want OUT_FOR_DELIVERY", got)
	}
	if d, err = svc.Progress(context.Background(), d, StatusDelivered); err != nil {
		t.Fatalf("Progress delivered: %v", err)
	}
	if got := store.orders[db.UUIDString(ord.ID)].Status; got != order.StatusDelivered {
		t.Fatalf("order status = %q, want DELIVERED", got)
	}

	if _, err := svc.Progress(context.Background(), d, StatusFailed); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("delivered dispatches are terminal, got %v", err)
	}
}

func TestProgressRejectsSkips(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ord := seedOrder(store, order.StatusConfirmed)
	d, err := svc.Open(context.Background(), ord.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := svc.Progress(context.Background(), d, StatusDelivered); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestTrackOwnership(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ord := seedOrder(store, order.StatusConfirmed)
	if _, err := svc.Open(context.Background(), ord.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}

	d, err := svc.Track(context.Background(), db.UUIDString(ord.UserID), db.UUIDString(ord.ID))
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if !db.UUIDEqual(d.OrderID, ord.ID) {
		t.Fatalf("dispatch order = %s, want %s", db.UUIDString(d.OrderID), db.UUIDString(ord.ID))
	}

	if _, err := svc.Track(context.Background(), db.UUIDString(db.NewUUID()), db.UUIDString(ord.ID)); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("stranger track should be not found, got %v", err)
	}
}

func TestOrderConfirmedNotifierOpensDispatch(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ord := seedOrder(store, order.StatusPending)

	bus := &events.Bus{
		Q:         store,
		Log:       zerolog.Nop(),
		Notifiers: []events.Notifier{OrderConfirmedNotifier{Svc: svc, Log: zerolog.Nop()}},
	}
	svc.Orders.Events = bus

	if err := svc.Orders.UpdateStatus(context.Background(), db.UUIDString(ord.ID), order.StatusConfirmed); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := store.GetDispatchByOrder(context.Background(), ord.ID); err != nil {
		t.Fatalf("confirming an order should open its dispatch: %v", err)
	}

	// Cancellation events leave dispatch alone.
	other := seedOrder(store, order.StatusPending)
	if err := svc.Orders.Cancel(context.Background(), db.UUIDString(other.UserID), db.UUIDString(other.ID)); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := store.GetDispatchByOrder(context.Background(), other.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatal("cancelled orders must not open dispatches")
	}
}
