package pricing

import "math"

// MatchToleranceMinor is the maximum total difference, in minor units, at which
// two results are still considered to agree.
const MatchToleranceMinor Money = 1

// Comparison captures the per-field differences between two results. It is
// ephemeral and never persisted.
type Comparison struct {
	Matches      bool    `json:"matches"`
	TotalDiff    float64 `json:"totalDiff"`
	SubtotalDiff float64 `json:"subtotalDiff"`
	DeliveryDiff float64 `json:"deliveryDiff"`
	DiscountDiff float64 `json:"discountDiff"`
}

// Compare reports whether two results agree on the charged total within one
// minor unit, along with absolute per-field differences. It is symmetric and
// side-effect free.
func Compare(a, b Result) Comparison {
	totalDiff := math.Abs(a.TotalAmount - b.TotalAmount)
	return Comparison{
		Matches:      ToMinorUnits(totalDiff) <= MatchToleranceMinor,
		TotalDiff:    totalDiff,
		SubtotalDiff: math.Abs(a.Subtotal - b.Subtotal),
		DeliveryDiff: math.Abs(a.DeliveryFee - b.DeliveryFee),
		DiscountDiff: math.Abs(a.DiscountAmount - b.DiscountAmount),
	}
}

// ResolveAuthoritative settles a disagreement between a server-computed and a
// client-computed result. The server result always wins: the client value only
// exists for optimistic display and must never be the amount actually charged.
// The returned copy has its precision-adjustment counter incremented so
// overrides stay visible in the audit trail. The reason is carried back to the
// caller's logging, not interpreted here.
func ResolveAuthoritative(server, client Result, reason string) Result {
	resolved := server
	resolved.PrecisionAdjustments = server.PrecisionAdjustments + 1
	return resolved
}
