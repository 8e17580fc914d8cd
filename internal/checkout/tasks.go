package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/events"
	"github.com/obi-nwosu/backend-chopnow/internal/lock"
	"github.com/obi-nwosu/backend-chopnow/internal/obs"
	"github.com/obi-nwosu/backend-chopnow/internal/pricing"
	"github.com/obi-nwosu/backend-chopnow/internal/promo"
)

// TypeOrderReconcile re-prices a provisional order against the calculation
// service once it is reachable again.
const TypeOrderReconcile = "order:reconcile"

// ReconcilePayload identifies the order to reconcile.
type ReconcilePayload struct {
	OrderID string `json:"order_id"`
}

// NewReconcileTask builds the asynq task for one order.
func NewReconcileTask(orderID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReconcilePayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderReconcile, payload), nil
}

// TaskClient enqueues checkout background work onto asynq.
type TaskClient struct {
	Client   *asynq.Client
	Queue    string
	MaxRetry int
}

// EnqueueReconcile implements Enqueuer.
func (c *TaskClient) EnqueueReconcile(ctx context.Context, orderID string) error {
	if c == nil || c.Client == nil {
		return errors.New("task client not configured")
	}
	task, err := NewReconcileTask(orderID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(TypeOrderReconcile + ":" + orderID)}
	if c.Queue != "" {
		opts = append(opts, asynq.Queue(c.Queue))
	}
	if c.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(c.MaxRetry))
	}
	_, err = c.Client.EnqueueContext(ctx, task, opts...)
	return err
}

// ReconcileQuerier captures the database methods the reconciler needs.
type ReconcileQuerier interface {
	GetOrderByID(ctx context.Context, id pgtype.UUID) (db.Order, error)
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]db.OrderItem, error)
	OverrideOrderTotals(ctx context.Context, arg db.OverrideOrderTotalsParams) error
	MarkOrderAuthoritative(ctx context.Context, id pgtype.UUID) error
}

// Reconciler replays a provisional order through the calculation service.
// The input is rebuilt from the frozen order lines, so menu price edits made
// after checkout cannot leak into the replayed calculation.
type Reconciler struct {
	Q      ReconcileQuerier
	Promos *promo.Service
	Remote Calculator
	Events *events.Bus
	Lock   *lock.Mutex
	Log    zerolog.Logger
}

// HandleReconcile processes one order:reconcile task. Transport failures are
// returned so asynq retries with backoff; anything already authoritative is
// a no-op.
func (r *Reconciler) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	if r == nil || r.Q == nil || r.Remote == nil {
		return errors.New("reconciler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w: %v", asynq.SkipRetry, err)
	}
	orderID, err := db.ToUUID(payload.OrderID)
	if err != nil {
		return fmt.Errorf("parse order id: %w: %v", asynq.SkipRetry, err)
	}

	if r.Lock != nil {
		err := r.Lock.Guard(ctx, "reconcile:"+payload.OrderID, func(ctx context.Context) error {
			return r.reconcile(ctx, orderID)
		})
		if errors.Is(err, lock.ErrHeld) {
			// Another worker has it; asynq will retry this task later.
			return err
		}
		return err
	}
	return r.reconcile(ctx, orderID)
}

func (r *Reconciler) reconcile(ctx context.Context, orderID pgtype.UUID) error {
	order, err := r.Q.GetOrderByID(ctx, orderID)
	if err != nil {
		if db.IsNoRows(err) {
			return fmt.Errorf("order not found: %w", asynq.SkipRetry)
		}
		return err
	}
	if order.Authoritative {
		return nil
	}

	input, err := r.buildInput(ctx, order)
	if err != nil {
		return err
	}
	server, err := r.Remote.Calculate(ctx, input)
	if err != nil {
		// Still unreachable: let asynq retry later.
		return err
	}

	drift := server.Breakdown.TotalMinor - order.Total
	if drift < 0 {
		drift = -drift
	}
	if obs.ReconciliationDrift != nil {
		obs.ReconciliationDrift.Observe(float64(drift))
	}

	if drift <= pricing.MatchToleranceMinor {
		if obs.ReconciliationTotal != nil {
			obs.ReconciliationTotal.WithLabelValues("matched").Inc()
		}
		return r.Q.MarkOrderAuthoritative(ctx, orderID)
	}

	if err := r.Q.OverrideOrderTotals(ctx, db.OverrideOrderTotalsParams{
		ID:                   orderID,
		Subtotal:             server.Breakdown.SubtotalMinor,
		SubtotalCost:         server.Breakdown.SubtotalCostMinor,
		TotalVAT:             server.Breakdown.TotalVATMinor,
		DeliveryFee:          server.Breakdown.DeliveryFeeMinor,
		Discount:             server.Breakdown.DiscountMinor,
		DeliveryDiscount:     server.Breakdown.DeliveryDiscountMinor,
		Total:                server.Breakdown.TotalMinor,
		PrecisionAdjustments: order.PrecisionAdjustments + 1,
	}); err != nil {
		return err
	}
	if obs.ReconciliationTotal != nil {
		obs.ReconciliationTotal.WithLabelValues("overridden").Inc()
	}
	r.Log.Info().
		Str("order_id", db.UUIDString(orderID)).
		Int64("previous_total", order.Total).
		Int64("adjusted_total", server.Breakdown.TotalMinor).
		Msg("order totals adjusted after reconciliation")

	if r.Events != nil {
		_ = r.Events.Publish(ctx, events.TopicOrderAmountAdjusted, orderID, map[string]any{
			"orderId":       db.UUIDString(orderID),
			"previousTotal": pricing.ToMajorUnits(order.Total),
			"adjustedTotal": pricing.ToMajorUnits(server.Breakdown.TotalMinor),
		})
	}
	return nil
}

func (r *Reconciler) buildInput(ctx context.Context, order db.Order) (pricing.Input, error) {
	lines, err := r.Q.ListOrderItems(ctx, order.ID)
	if err != nil {
		return pricing.Input{}, err
	}
	input := pricing.Input{
		DeliveryFee: pricing.ToMajorUnits(order.DeliveryFee),
		Source:      pricing.SourceServer,
	}
	var subtotalMinor int64
	for _, line := range lines {
		rate := line.VATRate
		input.Items = append(input.Items, pricing.Item{
			ID:        db.UUIDString(line.ID),
			ProductID: db.UUIDString(line.MenuItemID),
			Name:      line.Name,
			UnitPrice: pricing.ToMajorUnits(line.UnitPrice),
			Quantity:  int(line.Qty),
			VATRate:   &rate,
		})
		subtotalMinor += line.Subtotal
	}
	if order.PromoCode.Valid {
		input.PromoCode = order.PromoCode.String
	}
	if r.Promos != nil {
		candidates, err := r.Promos.Candidates(ctx, subtotalMinor)
		if err != nil {
			return pricing.Input{}, err
		}
		input.Promotions = candidates
	}
	return input, nil
}
