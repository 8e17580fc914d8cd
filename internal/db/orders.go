package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, user_id, cart_id, status, currency, subtotal, subtotal_cost, total_vat,
	delivery_fee, discount, delivery_discount, total, promo_code, promo_name,
	authoritative, precision_adjustments, address, notes, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.CartID, &o.Status, &o.Currency, &o.Subtotal, &o.SubtotalCost,
		&o.TotalVAT, &o.DeliveryFee, &o.Discount, &o.DeliveryDiscount, &o.Total, &o.PromoCode,
		&o.PromoName, &o.Authoritative, &o.PrecisionAdjustments, &o.Address, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateOrderParams carries the full minor-unit ledger of a new order.
type CreateOrderParams struct {
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
}

// CreateOrder inserts an order row inside the provided transaction.
func (s *Store) CreateOrder(ctx context.Context, tx pgx.Tx, arg CreateOrderParams) (Order, error) {
	const q = `
		INSERT INTO orders (user_id, cart_id, status, currency, subtotal, subtotal_cost, total_vat,
			delivery_fee, discount, delivery_discount, total, promo_code, promo_name,
			authoritative, precision_adjustments, address, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING ` + orderColumns
	return scanOrder(tx.QueryRow(ctx, q, arg.UserID, arg.CartID, arg.Status, arg.Currency,
		arg.Subtotal, arg.SubtotalCost, arg.TotalVAT, arg.DeliveryFee, arg.Discount,
		arg.DeliveryDiscount, arg.Total, arg.PromoCode, arg.PromoName, arg.Authoritative,
		arg.PrecisionAdjustments, arg.Address, arg.Notes))
}

// CreateOrderItemParams captures one frozen order line.
type CreateOrderItemParams struct {
	OrderID    pgtype.UUID
	MenuItemID pgtype.UUID
	Name       string
	UnitPrice  int64
	Qty        int32
	VATRate    float64
	Subtotal   int64
}

// CreateOrderItem inserts an order line inside the provided transaction.
func (s *Store) CreateOrderItem(ctx context.Context, tx pgx.Tx, arg CreateOrderItemParams) error {
	const q = `
		INSERT INTO order_items (order_id, menu_item_id, name, unit_price, qty, vat_rate, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := tx.Exec(ctx, q, arg.OrderID, arg.MenuItemID, arg.Name, arg.UnitPrice, arg.Qty, arg.VATRate, arg.Subtotal)
	return err
}

// CreateOrderWithItems inserts an order and its lines in one transaction.
func (s *Store) CreateOrderWithItems(ctx context.Context, arg CreateOrderParams, items []CreateOrderItemParams) (Order, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order, err := s.CreateOrder(ctx, tx, arg)
	if err != nil {
		return Order{}, err
	}
	for _, item := range items {
		item.OrderID = order.ID
		if err := s.CreateOrderItem(ctx, tx, item); err != nil {
			return Order{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return order, nil
}

// GetOrderByID fetches a single order.
func (s *Store) GetOrderByID(ctx context.Context, id pgtype.UUID) (Order, error) {
	return scanOrder(s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// ListOrdersByUser returns a page of the customer's orders, newest first.
func (s *Store) ListOrdersByUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.Pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountOrdersByUser returns the customer's total order count for pagination.
func (s *Store) CountOrdersByUser(ctx context.Context, userID pgtype.UUID) (int64, error) {
	var n int64
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

// ListOrderItems returns the lines of an order.
func (s *Store) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	const q = `SELECT id, order_id, menu_item_id, name, unit_price, qty, vat_rate, subtotal FROM order_items WHERE order_id = $1 ORDER BY id`
	rows, err := s.Pool.Query(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.UnitPrice, &it.Qty, &it.VATRate, &it.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateOrderStatus transitions an order to a new status.
func (s *Store) UpdateOrderStatus(ctx context.Context, id pgtype.UUID, status string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

// OverrideOrderTotalsParams replaces an order ledger after server reconciliation.
type OverrideOrderTotalsParams struct {
	ID                   pgtype.UUID
	Subtotal             int64
	SubtotalCost         int64
	TotalVAT             int64
	DeliveryFee          int64
	Discount             int64
	DeliveryDiscount     int64
	Total                int64
	PrecisionAdjustments int32
}

// UpdateOrderStatusFrom transitions an order only when it is still in the
// expected state, so concurrent updates lose cleanly with pgx.ErrNoRows.
func (s *Store) UpdateOrderStatusFrom(ctx context.Context, id pgtype.UUID, from, to string) error {
	const q = `UPDATE orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2 RETURNING id`
	var updated pgtype.UUID
	return s.Pool.QueryRow(ctx, q, id, from, to).Scan(&updated)
}

// OverrideOrderTotals stores the authoritative ledger and marks the order authoritative.
func (s *Store) OverrideOrderTotals(ctx context.Context, arg OverrideOrderTotalsParams) error {
	const q = `
		UPDATE orders
		SET subtotal = $2, subtotal_cost = $3, total_vat = $4, delivery_fee = $5,
		    discount = $6, delivery_discount = $7, total = $8,
		    precision_adjustments = $9, authoritative = TRUE, updated_at = now()
		WHERE id = $1`
	_, err := s.Pool.Exec(ctx, q, arg.ID, arg.Subtotal, arg.SubtotalCost, arg.TotalVAT,
		arg.DeliveryFee, arg.Discount, arg.DeliveryDiscount, arg.Total, arg.PrecisionAdjustments)
	return err
}

// MarkOrderAuthoritative flags an order as verified without changing its totals.
func (s *Store) MarkOrderAuthoritative(ctx context.Context, id pgtype.UUID) error {
	_, err := s.Pool.Exec(ctx, `UPDATE orders SET authoritative = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}
