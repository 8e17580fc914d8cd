package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/obi-nwosu/backend-chopnow/internal/cart"
	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/events"
	"github.com/obi-nwosu/backend-chopnow/internal/obs"
	"github.com/obi-nwosu/backend-chopnow/internal/pricing"
	"github.com/obi-nwosu/backend-chopnow/internal/promo"
)

// ErrEmptyCart is returned when checkout is attempted on a cart with no lines.
var ErrEmptyCart = errors.New("cart is empty")

// ErrCalculationFailed is returned when the order totals could not be
// computed, either locally or by the calculation service rejecting the input.
var ErrCalculationFailed = errors.New("order calculation failed")

// Querier captures the database methods used by the checkout service.
type Querier interface {
	CreateOrderWithItems(ctx context.Context, arg db.CreateOrderParams, items []db.CreateOrderItemParams) (db.Order, error)
	TouchCart(ctx context.Context, id pgtype.UUID, expiresAt pgtype.Timestamptz) error
}

// Enqueuer schedules background reconciliation for orders placed while the
// calculation service was unreachable.
type Enqueuer interface {
	EnqueueReconcile(ctx context.Context, orderID string) error
}

// Addr is the delivery address frozen onto the order.
type Addr struct {
	ReceiverName string `json:"receiverName"`
	Phone        string `json:"phone"`
	Area         string `json:"area"`
	City         string `json:"city"`
	AddressLine  string `json:"addressLine"`
	Landmark     string `json:"landmark,omitempty"`
}

// Input is the checkout request.
type Input struct {
	CartID  string  `json:"cartId"`
	Address Addr    `json:"address"`
	Notes   *string `json:"notes"`
}

// Output is the checkout response: the order identity plus the priced
// totals the customer was charged.
type Output struct {
	OrderID       string         `json:"orderId"`
	Status        string         `json:"status"`
	Authoritative bool           `json:"authoritative"`
	Pricing       pricing.Result `json:"pricing"`
}

// Service turns a cart into an order. Pricing runs twice: once locally for
// speed, once against the calculation service for authority. Server figures
// win on any mismatch; when the service is unreachable the local result
// stands provisionally and a background reconciliation is scheduled.
type Service struct {
	Q        Querier
	Carts    *cart.Service
	Promos   *promo.Service
	Remote   Calculator
	Events   *events.Bus
	Tasks    Enqueuer
	Currency string
	Log      zerolog.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create places an order for the signed-in user.
func (s *Service) Create(ctx context.Context, userID string, in Input) (Output, error) {
	if s == nil || s.Q == nil || s.Carts == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	if userID == "" {
		return Output{}, errors.New("user is required for checkout")
	}
	if in.CartID == "" {
		return Output{}, fmt.Errorf("cartId is required: %w", cart.ErrInvalidInput)
	}

	cartRow, items, err := s.Carts.LoadCart(ctx, in.CartID, userID, "")
	if err != nil {
		return Output{}, err
	}
	if len(items) == 0 {
		return Output{}, ErrEmptyCart
	}

	input, err := s.Carts.BuildPricingInput(ctx, cartRow, items, pricing.SourceClient)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrCalculationFailed, err)
	}
	local, err := pricing.Calculate(input)
	if err != nil {
		observeCalculation(pricing.SourceClient, "error")
		return Output{}, fmt.Errorf("%w: %v", ErrCalculationFailed, err)
	}
	observeCalculation(pricing.SourceClient, "ok")

	final, authoritative, overridden, err := s.reconcile(ctx, input, local)
	if err != nil {
		return Output{}, err
	}

	uid, err := db.ToUUID(userID)
	if err != nil {
		return Output{}, fmt.Errorf("invalid user id: %w", err)
	}
	params := orderParams(uid, cartRow, final, authoritative, s.Currency, in)
	lines := make([]db.CreateOrderItemParams, 0, len(items))
	for _, it := range items {
		lines = append(lines, db.CreateOrderItemParams{
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			UnitPrice:  it.UnitPrice,
			Qty:        it.Qty,
			VATRate:    it.VATRate,
			Subtotal:   it.Subtotal,
		})
	}
	order, err := s.Q.CreateOrderWithItems(ctx, params, lines)
	if err != nil {
		return Output{}, err
	}

	// The cart is spent: expire it so the next visit starts fresh.
	expired := pgtype.Timestamptz{Time: s.now().Add(-time.Minute), Valid: true}
	_ = s.Q.TouchCart(ctx, cartRow.ID, expired)

	if final.AppliedPromotion != nil {
		if obs.PromotionApplications != nil {
			obs.PromotionApplications.WithLabelValues(string(final.AppliedPromotion.Kind)).Inc()
		}
		if s.Promos != nil && final.AppliedPromotion.ID != "" {
			if err := s.Promos.RecordUsage(ctx, final.AppliedPromotion.ID); err != nil {
				s.Log.Warn().Err(err).Str("promotion_id", final.AppliedPromotion.ID).Msg("record promotion usage")
			}
		}
	}

	if s.Events != nil {
		payload := map[string]any{
			"orderId":       db.UUIDString(order.ID),
			"userId":        userID,
			"total":         final.TotalAmount,
			"currency":      order.Currency,
			"authoritative": authoritative,
		}
		if err := s.Events.Publish(ctx, events.TopicOrderCreated, order.ID, payload); err != nil {
			s.Log.Warn().Err(err).Str("order_id", db.UUIDString(order.ID)).Msg("publish order.created")
		}
		if overridden {
			if err := s.Events.Publish(ctx, events.TopicOrderAmountAdjusted, order.ID, map[string]any{
				"orderId":       db.UUIDString(order.ID),
				"previousTotal": local.TotalAmount,
				"adjustedTotal": final.TotalAmount,
			}); err != nil {
				s.Log.Warn().Err(err).Str("order_id", db.UUIDString(order.ID)).Msg("publish order.amount_adjusted")
			}
		}
	}

	if !authoritative && s.Tasks != nil {
		if err := s.Tasks.EnqueueReconcile(ctx, db.UUIDString(order.ID)); err != nil {
			s.Log.Error().Err(err).Str("order_id", db.UUIDString(order.ID)).Msg("enqueue reconcile")
		}
	}

	return Output{
		OrderID:       db.UUIDString(order.ID),
		Status:        order.Status,
		Authoritative: authoritative,
		Pricing:       final,
	}, nil
}

// reconcile runs the server-side calculation and applies the authority
// policy: server wins on mismatch, local stands provisionally when the
// service is down, and anything else fails checkout.
func (s *Service) reconcile(ctx context.Context, input pricing.Input, local pricing.Result) (final pricing.Result, authoritative, overridden bool, err error) {
	if s.Remote == nil {
		return local, false, false, nil
	}
	server, err := s.Remote.Calculate(ctx, input)
	if err != nil {
		if errors.Is(err, ErrRemoteUnavailable) {
			s.Log.Warn().Err(err).Msg("calculation service unavailable, using client totals provisionally")
			observeCalculation(pricing.SourceServer, "unavailable")
			observeReconciliation("remote_unavailable", 0)
			return local, false, false, nil
		}
		observeCalculation(pricing.SourceServer, "rejected")
		return pricing.Result{}, false, false, fmt.Errorf("%w: %v", ErrCalculationFailed, err)
	}
	observeCalculation(pricing.SourceServer, "ok")

	cmp := pricing.Compare(local, server)
	drift := math.Abs(float64(pricing.ToMinorUnits(local.TotalAmount) - pricing.ToMinorUnits(server.TotalAmount)))
	if cmp.Matches {
		observeReconciliation("matched", drift)
		return server, true, false, nil
	}
	s.Log.Info().
		Float64("client_total", local.TotalAmount).
		Float64("server_total", server.TotalAmount).
		Msg("totals drift, server result wins")
	observeReconciliation("overridden", drift)
	return pricing.ResolveAuthoritative(server, local, "totals drift"), true, true, nil
}

func observeCalculation(source pricing.Source, result string) {
	if obs.CalculationsTotal != nil {
		obs.CalculationsTotal.WithLabelValues(string(source), result).Inc()
	}
}

func observeReconciliation(outcome string, drift float64) {
	if obs.ReconciliationTotal != nil {
		obs.ReconciliationTotal.WithLabelValues(outcome).Inc()
	}
	if obs.ReconciliationDrift != nil && outcome != "remote_unavailable" {
		obs.ReconciliationDrift.Observe(drift)
	}
}

func orderParams(userID pgtype.UUID, cartRow db.Cart, result pricing.Result, authoritative bool, currency string, in Input) db.CreateOrderParams {
	if currency == "" {
		currency = "NGN"
	}
	params := db.CreateOrderParams{
		UserID:               userID,
		CartID:               cartRow.ID,
		Status:               "PENDING",
		Currency:             currency,
		Subtotal:             result.Breakdown.SubtotalMinor,
		SubtotalCost:         result.Breakdown.SubtotalCostMinor,
		TotalVAT:             result.Breakdown.TotalVATMinor,
		DeliveryFee:          result.Breakdown.DeliveryFeeMinor,
		Discount:             result.Breakdown.DiscountMinor,
		DeliveryDiscount:     result.Breakdown.DeliveryDiscountMinor,
		Total:                result.Breakdown.TotalMinor,
		Authoritative:        authoritative,
		PrecisionAdjustments: int32(result.PrecisionAdjustments),
		Address:              toJSON(in.Address),
		Notes:                db.NullableText(in.Notes),
	}
	if result.AppliedPromotion != nil {
		if result.AppliedPromotion.Code != "" {
			params.PromoCode = pgtype.Text{String: result.AppliedPromotion.Code, Valid: true}
		}
		params.PromoName = pgtype.Text{String: result.AppliedPromotion.Name, Valid: true}
	}
	return params
}

func toJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
