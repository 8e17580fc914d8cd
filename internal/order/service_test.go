package order

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/events"
)

type fakeStore struct {
	orders map[string]db.Order
	items  map[string][]db.OrderItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[string]db.Order{}, items: map[string][]db.OrderItem{}}
}

func (s *fakeStore) add(ord db.Order, items ...db.OrderItem) {
	s.orders[db.UUIDString(ord.ID)] = ord
	s.items[db.UUIDString(ord.ID)] = items
}

func (s *fakeStore) GetOrderByID(_ context.Context, id pgtype.UUID) (db.Order, error) {
	ord, ok := s.orders[db.UUIDString(id)]
	if !ok {
		return db.Order{}, pgx.ErrNoRows
	}
	return ord, nil
}

func (s *fakeStore) ListOrdersByUser(_ context.Context, userID pgtype.UUID, limit, offset int32) ([]db.Order, error) {
	var out []db.Order
	for _, ord := range s.orders {
		if db.UUIDEqual(ord.UserID, userID) {
			out = append(out, ord)
		}
	}
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) CountOrdersByUser(_ context.Context, userID pgtype.UUID) (int64, error) {
	var n int64
	for _, ord := range s.orders {
		if db.UUIDEqual(ord.UserID, userID) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ListOrderItems(_ context.Context, orderID pgtype.UUID) ([]db.OrderItem, error) {
	return s.items[db.UUIDString(orderID)], nil
}

func (s *fakeStore) UpdateOrderStatusFrom(_ context.Context, id pgtype.UUID, from, to string) error {
	ord, ok := s.orders[db.UUIDString(id)]
	if !ok || ord.Status != from {
		return pgx.ErrNoRows
	}
	ord.Status = to
	s.orders[db.UUIDString(id)] = ord
	return nil
}

type eventSink struct {
	topics []string
}

func (s *eventSink) InsertDomainEvent(_ context.Context, topic string, aggregateID pgtype.UUID, payload []byte) (db.DomainEvent, error) {
	s.topics = append(s.topics, topic)
	return db.DomainEvent{ID: db.NewUUID(), Topic: topic, AggregateID: aggregateID, Payload: payload}, nil
}

func newTestService(store *fakeStore, sink *eventSink) *Service {
	return &Service{
		Q:      store,
		Events: &events.Bus{Q: sink, Log: zerolog.Nop()},
		Log:    zerolog.Nop(),
	}
}

func TestCancelPendingOrder(t *testing.T) {
	store := newFakeStore()
	sink := &eventSink{}
	userID := db.NewUUID()
	ord := db.Order{ID: db.NewUUID(), UserID: userID, Status: StatusPending}
	store.add(ord)

	svc := newTestService(store, sink)
	if err := svc.Cancel(context.Background(), db.UUIDString(userID), db.UUIDString(ord.ID)); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := store.orders[db.UUIDString(ord.ID)].Status; got != StatusCancelled {
		t.Fatalf("status = %q, want CANCELLED", got)
	}
	if len(sink.topics) != 1 || sink.topics[0] != events.TopicOrderCancelled {
		t.Fatalf("events = %v, want [order.cancelled]", sink.topics)
	}
}

func TestCancelConfirmedOrderRejected(t *testing.T) {
	store := newFakeStore()
	userID := db.NewUUID()
	ord := db.Order{ID: db.NewUUID(), UserID: userID, Status: StatusConfirmed}
	store.add(ord)

	svc := newTestService(store, &eventSink{})
	err := svc.Cancel(context.Background(), db.UUIDString(userID), db.UUIDString(ord.ID))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelStrangerOrder(t *testing.T) {
	store := newFakeStore()
	ord := db.Order{ID: db.NewUUID(), UserID: db.NewUUID(), Status: StatusPending}
	store.add(ord)

	svc := newTestService(store, &eventSink{})
	err := svc.Cancel(context.Background(), db.UUIDString(db.NewUUID()), db.UUIDString(ord.ID))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	store := newFakeStore()
	sink := &eventSink{}
	ord := db.Order{ID: db.NewUUID(), UserID: db.NewUUID(), Status: StatusPending}
	store.add(ord)
	svc := newTestService(store, sink)
	id := db.UUIDString(ord.ID)

	for _, target := range []string{StatusConfirmed, StatusPreparing, StatusReady, StatusOutForDelivery, StatusDelivered} {
		if err := svc.UpdateStatus(context.Background(), id, target); err != nil {
			t.Fatalf("UpdateStatus(%s): %v", target, err)
		}
	}
	if got := store.orders[id].Status; got != StatusDelivered {
		t.Fatalf("status = %q, want DELIVERED", got)
	}
	if len(sink.topics) != 1 || sink.topics[0] != events.TopicOrderConfirmed {
		t.Fatalf("events = %v, want only order.confirmed", sink.topics)
	}

	err := svc.UpdateStatus(context.Background(), id, StatusCancelled)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("delivered orders must not cancel, got %v", err)
	}
}

func TestUpdateStatusSkipRejected(t *testing.T) {
	store := newFakeStore()
	ord := db.Order{ID: db.NewUUID(), UserID: db.NewUUID(), Status: StatusPending}
	store.add(ord)
	svc := newTestService(store, &eventSink{})

	err := svc.UpdateStatus(context.Background(), db.UUIDString(ord.ID), StatusReady)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateStatusRace(t *testing.T) {
	store := newFakeStore()
	ord := db.Order{ID: db.NewUUID(), UserID: db.NewUUID(), Status: StatusPending}
	store.add(ord)
	svc := newTestService(store, &eventSink{})

	// Another writer confirms the order between load and update.
	moved := store.orders[db.UUIDString(ord.ID)]
	moved.Status = StatusConfirmed
	raced := &racingStore{fakeStore: store, moved: moved}
	svc.Q = raced

	err := svc.UpdateStatus(context.Background(), db.UUIDString(ord.ID), StatusConfirmed)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition on lost race", err)
	}
}

type racingStore struct {
	*fakeStore
	moved db.Order
}

func (s *racingStore) UpdateOrderStatusFrom(ctx context.Context, id pgtype.UUID, from, to string) error {
	s.orders[db.UUIDString(s.moved.ID)] = s.moved
	return s.fakeStore.UpdateOrderStatusFrom(ctx, id, from, to)
}

func TestListAndGet(t *testing.T) {
	store := newFakeStore()
	userID := db.NewUUID()
	ord := db.Order{ID: db.NewUUID(), UserID: userID, Status: StatusPending, Total: 550_000}
	line := db.OrderItem{ID: db.NewUUID(), OrderID: ord.ID, Name: "Suya Platter", UnitPrice: 550_000, Qty: 1, VATRate: 7.5, Subtotal: 550_000}
	store.add(ord, line)
	store.add(db.Order{ID: db.NewUUID(), UserID: db.NewUUID(), Status: StatusPending})
	svc := newTestService(store, &eventSink{})

	orders, total, err := svc.List(context.Background(), db.UUIDString(userID), 1, 20)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(orders) != 1 {
		t.Fatalf("total = %d, orders = %d, want 1 each", total, len(orders))
	}

	got, items, err := svc.Get(context.Background(), db.UUIDString(userID), db.UUIDString(ord.ID))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Total != 550_000 || len(items) != 1 || items[0].Name != "Suya Platter" {
		t.Fatalf("unexpected order %+v items %+v", got, items)
	}

	if _, _, err := svc.Get(context.Background(), db.UUIDString(db.NewUUID()), db.UUIDString(ord.ID)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger read should be not found, got %v", err)
	}
}
