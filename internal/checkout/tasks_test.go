package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/lock"
	"github.com/obi-nwosu/backend-chopnow/internal/promo"
)

type reconcileStore struct {
	order db.Order
	items []db.OrderItem

	marked     bool
	overridden *db.OverrideOrderTotalsParams
}

func (s *reconcileStore) GetOrderByID(_ context.Context, id pgtype.UUID) (db.Order, error) {
	if !db.UUIDEqual(id, s.order.ID) {
		return db.Order{}, pgx.ErrNoRows
	}
	return s.order, nil
}

func (s *reconcileStore) ListOrderItems(_ context.Context, _ pgtype.UUID) ([]db.OrderItem, error) {
	return s.items, nil
}

func (s *reconcileStore) OverrideOrderTotals(_ context.Context, arg db.OverrideOrderTotalsParams) error {
	s.overridden = &arg
	return nil
}

func (s *reconcileStore) MarkOrderAuthoritative(_ context.Context, _ pgtype.UUID) error {
	s.marked = true
	return nil
}

func newReconcileStore() *reconcileStore {
	orderID := db.NewUUID()
	return &reconcileStore{
		order: db.Order{
			ID:          orderID,
			Status:      "PENDING",
			Subtotal:    500_000,
			DeliveryFee: 50_000,
			Total:       550_000,
		},
		items: []db.OrderItem{{
			ID:         db.NewUUID(),
			OrderID:    orderID,
			MenuItemID: db.NewUUID(),
			Name:       "Jollof Rice with Chicken",
			UnitPrice:  250_000,
			Qty:        2,
			VATRate:    7.5,
			Subtotal:   500_000,
		}},
	}
}

func reconcileTask(t *testing.T, orderID pgtype.UUID) *asynq.Task {
	t.Helper()
	task, err := NewReconcileTask(db.UUIDString(orderID))
	if err != nil {
		t.Fatalf("NewReconcileTask: %v", err)
	}
	return task
}

func newReconciler(store *reconcileStore, remote Calculator) *Reconciler {
	return &Reconciler{
		Q:      store,
		Promos: &promo.Service{Q: &promoStore{}, Now: fixedNow},
		Remote: remote,
		Log:    zerolog.Nop(),
	}
}

func TestHandleReconcileMatch(t *testing.T) {
	store := newReconcileStore()
	r := newReconciler(store, &echoCalculator{})

	if err := r.HandleReconcile(context.Background(), reconcileTask(t, store.order.ID)); err != nil {
		t.Fatalf("HandleReconcile: %v", err)
	}
	if !store.marked {
		t.Fatal("matching totals should mark the order authoritative")
	}
	if store.overridden != nil {
		t.Fatalf("totals should not be overridden, got %+v", store.overridden)
	}
}

func TestHandleReconcileOverride(t *testing.T) {
	store := newReconcileStore()
	calc := &stubCalculator{}
	calc.result.TotalAmount = 5512
	calc.result.Breakdown.SubtotalMinor = 500_000
	calc.result.Breakdown.DeliveryFeeMinor = 50_000
	calc.result.Breakdown.TotalVATMinor = 34_884
	calc.result.Breakdown.TotalMinor = 551_200
	r := newReconciler(store, calc)

	if err := r.HandleReconcile(context.Background(), reconcileTask(t, store.order.ID)); err != nil {
		t.Fatalf("HandleReconcile: %v", err)
	}
	if store.marked {
		t.Fatal("drifting totals must not simply be marked authoritative")
	}
	if store.overridden == nil {
		t.Fatal("expected totals override")
	}
	if store.overridden.Total != 551_200 {
		t.Fatalf("override total = %d, want 551200", store.overridden.Total)
	}
	if store.overridden.PrecisionAdjustments != 1 {
		t.Fatalf("precision adjustments = %d, want 1", store.overridden.PrecisionAdjustments)
	}
}

func TestHandleReconcileStillUnavailable(t *testing.T) {
	store := newReconcileStore()
	r := newReconciler(store, &stubCalculator{err: ErrRemoteUnavailable})

	err := r.HandleReconcile(context.Background(), reconcileTask(t, store.order.ID))
	if !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("err = %v, want ErrRemoteUnavailable so asynq retries", err)
	}
	if store.marked || store.overridden != nil {
		t.Fatal("nothing should be written while the service is down")
	}
}

func TestHandleReconcileAlreadyAuthoritative(t *testing.T) {
	store := newReconcileStore()
	store.order.Authoritative = true
	calc := &stubCalculator{}
	r := newReconciler(store, calc)

	if err := r.HandleReconcile(context.Background(), reconcileTask(t, store.order.ID)); err != nil {
		t.Fatalf("HandleReconcile: %v", err)
	}
	if calc.calls != 0 {
		t.Fatalf("remote calls = %d, want 0", calc.calls)
	}
}

func TestHandleReconcileMissingOrder(t *testing.T) {
	store := newReconcileStore()
	r := newReconciler(store, &stubCalculator{})

	err := r.HandleReconcile(context.Background(), reconcileTask(t, db.NewUUID()))
	if err == nil {
		t.Fatal("expected error for unknown order")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}

func TestHandleReconcileSkipsWhenLocked(t *testing.T) {
	store := newReconcileStore()
	calc := &stubCalculator{}
	calc.result.Breakdown.TotalMinor = 551_200
	r := newReconciler(store, calc)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r.Lock = &lock.Mutex{R: rdb, TTL: time.Minute}

	key := "reconcile:" + db.UUIDString(store.order.ID)
	if err := rdb.SetNX(context.Background(), key, "other-worker", time.Minute).Err(); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	err := r.HandleReconcile(context.Background(), reconcileTask(t, store.order.ID))
	if !errors.Is(err, lock.ErrHeld) {
		t.Fatalf("err = %v, want lock.ErrHeld", err)
	}
	if store.marked || store.overridden != nil {
		t.Fatal("locked reconcile must not touch the order")
	}
}
