package order

// Order lifecycle statuses. COMPLETED ends pickup orders at the counter;
// delivery orders go out for delivery and end at DELIVERED.
const (
	StatusPending        = "PENDING"
	StatusConfirmed      = "CONFIRMED"
	StatusPreparing      = "PREPARING"
	StatusReady          = "READY"
	StatusOutForDelivery = "OUT_FOR_DELIVERY"
	StatusDelivered      = "DELIVERED"
	StatusCompleted      = "COMPLETED"
	StatusCancelled      = "CANCELLED"
)

var transitions = map[string][]string{
	StatusPending:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReady, StatusCancelled},
	StatusReady:          {StatusOutForDelivery, StatusCompleted},
	StatusOutForDelivery: {StatusDelivered},
}

// ValidStatus reports whether the value is a known lifecycle status.
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusOutForDelivery, StatusDelivered, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an allowed lifecycle step.
// Terminal statuses (DELIVERED, COMPLETED, CANCELLED) allow no exits.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the lifecycle.
func Terminal(status string) bool {
	return len(transitions[status]) == 0 && ValidStatus(status)
}
