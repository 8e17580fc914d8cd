package pricing

import (
	"fmt"
	"math"
)

// Source tags where a calculation was performed. It is carried for
// observability only and has no effect on the arithmetic.
type Source string

// Calculation sources.
const (
	SourceClient Source = "client"
	SourceServer Source = "server"
)

// Kind enumerates the supported promotion discount strategies.
type Kind string

// Promotion kinds.
const (
	KindPercentage   Kind = "percentage"
	KindFixedAmount  Kind = "fixed_amount"
	KindFreeDelivery Kind = "free_delivery"
)

// Item is one cart line entering a calculation. UnitPrice is the VAT-inclusive
// price in major units. The engine never mutates items.
type Item struct {
	ID        string   `json:"id"`
	ProductID string   `json:"productId"`
	Name      string   `json:"name"`
	UnitPrice float64  `json:"unitPrice"`
	Quantity  int      `json:"quantity"`
	VATRate   *float64 `json:"vatRate,omitempty"`
}

func (it Item) vatRate() float64 {
	if it.VATRate != nil {
		return *it.VATRate
	}
	return StandardVATRate
}

// Promotion is a candidate discount rule. Value carries percentage points for
// KindPercentage and a major-unit amount for KindFixedAmount; it is ignored
// for KindFreeDelivery. FreeDelivery may be combined with any kind to waive
// the delivery fee on top of the primary discount.
type Promotion struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Code         string  `json:"code,omitempty"`
	Kind         Kind    `json:"kind"`
	Value        float64 `json:"value"`
	FreeDelivery bool    `json:"freeDelivery"`
}

// Input carries everything one calculation needs. Candidates must already be
// pre-filtered for eligibility (validity window, minimum spend, usage limits);
// the engine applies whatever it is handed.
type Input struct {
	Items       []Item      `json:"items"`
	DeliveryFee float64     `json:"deliveryFee"`
	Promotions  []Promotion `json:"promotions,omitempty"`
	PromoCode   string      `json:"promoCode,omitempty"`
	Source      Source      `json:"source"`
}

// Breakdown retains the raw minor-unit intermediates for auditing.
type Breakdown struct {
	SubtotalMinor         Money `json:"subtotalMinor"`
	SubtotalCostMinor     Money `json:"subtotalCostMinor"`
	TotalVATMinor         Money `json:"totalVatMinor"`
	DeliveryFeeMinor      Money `json:"deliveryFeeMinor"`
	DiscountMinor         Money `json:"discountMinor"`
	DeliveryDiscountMinor Money `json:"deliveryDiscountMinor"`
	TotalMinor            Money `json:"totalMinor"`
}

// Result is the output of one calculation. The headline fields are major-unit
// values derived from the same minor-unit ledger, so
// TotalAmount == Subtotal + DeliveryFee - DiscountAmount - DeliveryDiscount
// holds exactly.
type Result struct {
	Subtotal             float64    `json:"subtotal"`
	SubtotalCost         float64    `json:"subtotalCost"`
	TotalVAT             float64    `json:"totalVat"`
	DeliveryFee          float64    `json:"deliveryFee"`
	DiscountAmount       float64    `json:"discountAmount"`
	DeliveryDiscount     float64    `json:"deliveryDiscount"`
	TotalAmount          float64    `json:"totalAmount"`
	AppliedPromotion     *Promotion `json:"appliedPromotion,omitempty"`
	Source               Source     `json:"source"`
	PrecisionAdjustments int        `json:"precisionAdjustments"`
	Breakdown            Breakdown  `json:"breakdown"`
}

// ValidationError reports malformed calculation input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pricing: invalid %s: %s", e.Field, e.Reason)
}

func validate(in Input) error {
	for i, it := range in.Items {
		if it.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be positive"}
		}
		if it.UnitPrice < 0 || math.IsNaN(it.UnitPrice) || math.IsInf(it.UnitPrice, 0) {
			return &ValidationError{Field: fmt.Sprintf("items[%d].unitPrice", i), Reason: "must be a non-negative amount"}
		}
		if rate := it.vatRate(); rate < 0 || rate >= 100 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].vatRate", i), Reason: "must be in [0, 100)"}
		}
	}
	if in.DeliveryFee < 0 || math.IsNaN(in.DeliveryFee) || math.IsInf(in.DeliveryFee, 0) {
		return &ValidationError{Field: "deliveryFee", Reason: "must be a non-negative amount"}
	}
	return nil
}

// Calculate produces a deterministic Result for the given input. It is pure:
// no I/O, no shared state, identical input always yields an identical output.
func Calculate(in Input) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}

	var subtotal, subtotalCost, totalVAT Money
	for _, it := range in.Items {
		unitMinor := ToMinorUnits(it.UnitPrice)
		qty := Money(it.Quantity)
		subtotal += unitMinor * qty

		// Cost and VAT split per unit then scaled, so the per-line receipt
		// breakdown stays stable; any rounding remainder is absorbed here.
		unitCost, unitVAT := vatSplitMinor(unitMinor, it.vatRate())
		subtotalCost += unitCost * qty
		totalVAT += unitVAT * qty
	}

	deliveryFee := ToMinorUnits(in.DeliveryFee)
	applied, discount, deliveryDiscount := selectPromotion(in, subtotal, deliveryFee)

	total := subtotal + deliveryFee - discount - deliveryDiscount
	return Result{
		Subtotal:         ToMajorUnits(subtotal),
		SubtotalCost:     ToMajorUnits(subtotalCost),
		TotalVAT:         ToMajorUnits(totalVAT),
		DeliveryFee:      ToMajorUnits(deliveryFee),
		DiscountAmount:   ToMajorUnits(discount),
		DeliveryDiscount: ToMajorUnits(deliveryDiscount),
		TotalAmount:      ToMajorUnits(total),
		AppliedPromotion: applied,
		Source:           in.Source,
		Breakdown: Breakdown{
			SubtotalMinor:         subtotal,
			SubtotalCostMinor:     subtotalCost,
			TotalVATMinor:         totalVAT,
			DeliveryFeeMinor:      deliveryFee,
			DiscountMinor:         discount,
			DeliveryDiscountMinor: deliveryDiscount,
			TotalMinor:            total,
		},
	}, nil
}

// selectPromotion picks at most one candidate. With a code, only the exact
// case-sensitive match qualifies; there is no fallback to automatic selection.
// Without a code, the candidate with the strictly greatest combined value
// wins and ties keep the first seen.
func selectPromotion(in Input, subtotal, deliveryFee Money) (*Promotion, Money, Money) {
	if in.PromoCode != "" {
		for _, p := range in.Promotions {
			if p.Code == in.PromoCode {
				applied := p
				discount, deliveryDiscount := promotionValue(p, subtotal, deliveryFee)
				return &applied, discount, deliveryDiscount
			}
		}
		return nil, 0, 0
	}

	var (
		applied          *Promotion
		discount         Money
		deliveryDiscount Money
		best             Money = -1
	)
	for _, p := range in.Promotions {
		d, dd := promotionValue(p, subtotal, deliveryFee)
		if d+dd > best {
			candidate := p
			applied, discount, deliveryDiscount = &candidate, d, dd
			best = d + dd
		}
	}
	if best <= 0 {
		return nil, 0, 0
	}
	return applied, discount, deliveryDiscount
}

func promotionValue(p Promotion, subtotal, deliveryFee Money) (discount, deliveryDiscount Money) {
	switch p.Kind {
	case KindPercentage:
		discount = Money(math.Round(float64(subtotal) * p.Value / 100))
	case KindFixedAmount:
		discount = ToMinorUnits(p.Value)
		if discount > subtotal {
			discount = subtotal
		}
	case KindFreeDelivery:
		deliveryDiscount = deliveryFee
	}
	if discount < 0 {
		discount = 0
	}
	if p.FreeDelivery {
		deliveryDiscount = deliveryFee
	}
	return discount, deliveryDiscount
}
