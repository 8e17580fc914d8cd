package db

import "github.com/jackc/pgx/v5/pgtype"

// Category groups menu items for storefront browsing.
type Category struct {
	ID   pgtype.UUID
	Name string
	Slug string
}

// MenuItem is one orderable product. Price is the VAT-inclusive unit price in
// minor units; VATRate is a percentage (e.g. 7.5).
type MenuItem struct {
	ID          pgtype.UUID
	CategoryID  pgtype.UUID
	Name        string
	Slug        string
	Description pgtype.Text
	Price       int64
	VATRate     float64
	Available   bool
	CreatedAt   pgtype.Timestamptz
}

// DeliveryZone carries the flat delivery fee for an area in minor units.
type DeliveryZone struct {
	ID   pgtype.UUID
	Name string
	Fee  int64
}

// Cart is a guest or customer cart.
type Cart struct {
	ID             pgtype.UUID
	UserID         pgtype.UUID
	AnonID         pgtype.Text
	PromoCode      pgtype.Text
	DeliveryZoneID pgtype.UUID
	ExpiresAt      pgtype.Timestamptz
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

// CartItem is one cart line. UnitPrice is captured in minor units at add time
// so later menu price changes do not silently reprice carts.
type CartItem struct {
	ID         pgtype.UUID
	CartID     pgtype.UUID
	MenuItemID pgtype.UUID
	Name       string
	UnitPrice  int64
	Qty        int32
	VATRate    float64
	Subtotal   int64
}

// Promotion is a stored, admin-managed discount rule. Value carries percentage
// points for percentage promotions and minor units for fixed amounts.
type Promotion struct {
	ID           pgtype.UUID
	Name         string
	Code         pgtype.Text
	Kind         string
	Value        float64
	FreeDelivery bool
	MinSpend     int64
	ValidFrom    pgtype.Timestamptz
	ValidTo      pgtype.Timestamptz
	UsageLimit   pgtype.Int4
	UsedCount    int32
	Active       bool
	CreatedAt    pgtype.Timestamptz
}

// Order is a placed order with its full monetary ledger in minor units.
type Order struct {
	ID                   pgtype.UUID
	UserID               pgtype.UUID
	CartID               pgtype.UUID
	Status               string
	Currency             string
	Subtotal             int64
	SubtotalCost         int64
	TotalVAT             int64
	DeliveryFee          int64
	Discount             int64
	DeliveryDiscount     int64
	Total                int64
	PromoCode            pgtype.Text
	PromoName            pgtype.Text
	Authoritative        bool
	PrecisionAdjustments int32
	Address              []byte
	Notes                pgtype.Text
	CreatedAt            pgtype.Timestamptz
	UpdatedAt            pgtype.Timestamptz
}

// OrderItem is one frozen order line.
type OrderItem struct {
	ID         pgtype.UUID
	OrderID    pgtype.UUID
	MenuItemID pgtype.UUID
	Name       string
	UnitPrice  int64
	Qty        int32
	VATRate    float64
	Subtotal   int64
}

// Dispatch tracks the delivery leg of an order.
type Dispatch struct {
	ID          pgtype.UUID
	OrderID     pgtype.UUID
	RiderName   pgtype.Text
	RiderPhone  pgtype.Text
	Status      string
	TrackingRef pgtype.Text
	AssignedAt  pgtype.Timestamptz
	DeliveredAt pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

// DomainEvent is one row of the outbox table.
type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  pgtype.Timestamptz
}

// SalesDay is one day of the sales report.
type SalesDay struct {
	Day    pgtype.Timestamptz
	Orders int64
	Total  int64
}

// TopItem is one row of the top-selling items report.
type TopItem struct {
	MenuItemID pgtype.UUID
	Name       string
	QtySold    int64
	Revenue    int64
}

// ReconciliationStats summarises how often the server override path fired.
type ReconciliationStats struct {
	Orders           int64
	Overridden       int64
	NonAuthoritative int64
}
