package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/pricing"
)

// BuildPricingInput assembles a calculation input from a stored cart: its
// lines, the delivery fee for the chosen zone, and the promotion candidates
// eligible for the cart subtotal. Checkout reuses this so quotes and orders
// are priced from identical inputs.
func (s *Service) BuildPricingInput(ctx context.Context, cart db.Cart, items []db.CartItem, source pricing.Source) (pricing.Input, error) {
	if s == nil || s.Q == nil {
		return pricing.Input{}, errors.New("cart service not configured")
	}

	input := pricing.Input{Source: source}
	var subtotalMinor int64
	for _, line := range items {
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

	if cart.DeliveryZoneID.Valid {
		zone, err := s.Q.GetDeliveryZone(ctx, cart.DeliveryZoneID)
		if err != nil {
			return pricing.Input{}, fmt.Errorf("load delivery zone: %w", err)
		}
		input.DeliveryFee = pricing.ToMajorUnits(zone.Fee)
	}

	if cart.PromoCode.Valid {
		input.PromoCode = cart.PromoCode.String
	}
	if s.Promos != nil {
		candidates, err := s.Promos.Candidates(ctx, subtotalMinor)
		if err != nil {
			return pricing.Input{}, fmt.Errorf("load promotions: %w", err)
		}
		input.Promotions = candidates
	}
	return input, nil
}

// Quote prices the cart client-side without persisting anything. The result
// is optimistic: checkout repeats the calculation against the remote
// calculation service and the server figure wins on any mismatch.
func (s *Service) Quote(ctx context.Context, cart db.Cart, items []db.CartItem) (pricing.Result, error) {
	input, err := s.BuildPricingInput(ctx, cart, items, pricing.SourceClient)
	if err != nil {
		return pricing.Result{}, err
	}
	return pricing.Calculate(input)
}
