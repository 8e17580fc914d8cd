package dispatch

import "strings"

// Dispatch statuses. FAILED covers couriers returning an undeliverable order.
const (
	StatusPending        = "PENDING"
	StatusAssigned       = "ASSIGNED"
	StatusPickedUp       = "PICKED_UP"
	StatusOutForDelivery = "OUT_FOR_DELIVERY"
	StatusDelivered      = "DELIVERED"
	StatusFailed         = "FAILED"
)

var transitions = map[string][]string{
	StatusPending:        {StatusAssigned, StatusFailed},
	StatusAssigned:       {StatusPickedUp, StatusFailed},
	StatusPickedUp:       {StatusOutForDelivery, StatusFailed},
	StatusOutForDelivery: {StatusDelivered, StatusFailed},
}

// CanTransition reports whether from -> to is an allowed dispatch step.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MapCourierStatus converts courier status labels into internal dispatch
// statuses. Unrecognised labels map to PENDING, which callers treat as
// an error since no courier reports a dispatch back to pending.
func MapCourierStatus(external string) string {
	switch strings.ToLower(strings.TrimSpace(external)) {
	case "assigned", "rider_assigned":
		return StatusAssigned
	case "picked", "pickup", "picked_up", "picked-up":
		return StatusPickedUp
	case "out_for_delivery", "out-for-delivery", "en_route", "riding":
		return StatusOutForDelivery
	case "delivered", "completed":
		return StatusDelivered
	case "failed", "returned", "undeliverable":
		return StatusFailed
	}
	return StatusPending
}
