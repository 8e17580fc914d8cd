package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const cartColumns = `id, user_id, anon_id, promo_code, delivery_zone_id, expires_at, created_at, updated_at`

func scanCart(row interface{ Scan(...any) error }) (Cart, error) {
	var c Cart
	err := row.Scan(&c.ID, &c.UserID, &c.AnonID, &c.PromoCode, &c.DeliveryZoneID, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateCartParams creates a cart for either a customer or a guest.
type CreateCartParams struct {
	UserID    pgtype.UUID
	AnonID    pgtype.Text
	ExpiresAt pgtype.Timestamptz
}

// CreateCart inserts a fresh cart.
func (s *Store) CreateCart(ctx context.Context, arg CreateCartParams) (Cart, error) {
	const q = `
		INSERT INTO carts (user_id, anon_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING ` + cartColumns
	return scanCart(s.Pool.QueryRow(ctx, q, arg.UserID, arg.AnonID, arg.ExpiresAt))
}

// GetCartByID fetches a cart by id.
func (s *Store) GetCartByID(ctx context.Context, id pgtype.UUID) (Cart, error) {
	return scanCart(s.Pool.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id))
}

// GetActiveCartByUser returns the newest unexpired cart owned by the user.
func (s *Store) GetActiveCartByUser(ctx context.Context, userID pgtype.UUID) (Cart, error) {
	const q = `
		SELECT ` + cartColumns + ` FROM carts
		WHERE user_id = $1 AND expires_at > now()
		ORDER BY created_at DESC LIMIT 1`
	return scanCart(s.Pool.QueryRow(ctx, q, userID))
}

// GetActiveCartByAnon returns the newest unexpired guest cart.
func (s *Store) GetActiveCartByAnon(ctx context.Context, anonID pgtype.Text) (Cart, error) {
	const q = `
		SELECT ` + cartColumns + ` FROM carts
		WHERE anon_id = $1 AND expires_at > now()
		ORDER BY created_at DESC LIMIT 1`
	return scanCart(s.Pool.QueryRow(ctx, q, anonID))
}

// TouchCart extends a cart's expiry.
func (s *Store) TouchCart(ctx context.Context, id pgtype.UUID, expiresAt pgtype.Timestamptz) error {
	_, err := s.Pool.Exec(ctx, `UPDATE carts SET expires_at = $2, updated_at = now() WHERE id = $1`, id, expiresAt)
	return err
}

// UpdateCartPromoCode sets or clears the applied promotion code.
func (s *Store) UpdateCartPromoCode(ctx context.Context, id pgtype.UUID, code pgtype.Text) error {
	_, err := s.Pool.Exec(ctx, `UPDATE carts SET promo_code = $2, updated_at = now() WHERE id = $1`, id, code)
	return err
}

// SetCartDeliveryZone records the zone the cart will be delivered to.
func (s *Store) SetCartDeliveryZone(ctx context.Context, id, zoneID pgtype.UUID) error {
	_, err := s.Pool.Exec(ctx, `UPDATE carts SET delivery_zone_id = $2, updated_at = now() WHERE id = $1`, id, zoneID)
	return err
}

// TransferCartToUser reassigns a guest cart after login.
func (s *Store) TransferCartToUser(ctx context.Context, id, userID pgtype.UUID) error {
	_, err := s.Pool.Exec(ctx, `UPDATE carts SET user_id = $2, anon_id = NULL, updated_at = now() WHERE id = $1`, id, userID)
	return err
}

const cartItemColumns = `id, cart_id, menu_item_id, name, unit_price, qty, vat_rate, subtotal`

func scanCartItem(row interface{ Scan(...any) error }) (CartItem, error) {
	var it CartItem
	err := row.Scan(&it.ID, &it.CartID, &it.MenuItemID, &it.Name, &it.UnitPrice, &it.Qty, &it.VATRate, &it.Subtotal)
	return it, err
}

// ListCartItems returns all lines of a cart in insertion order.
func (s *Store) ListCartItems(ctx context.Context, cartID pgtype.UUID) ([]CartItem, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = $1 ORDER BY id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CartItem
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// FindCartItemByMenuItem locates an existing line for the same menu item.
func (s *Store) FindCartItemByMenuItem(ctx context.Context, cartID, menuItemID pgtype.UUID) (CartItem, error) {
	const q = `SELECT ` + cartItemColumns + ` FROM cart_items WHERE cart_id = $1 AND menu_item_id = $2`
	return scanCartItem(s.Pool.QueryRow(ctx, q, cartID, menuItemID))
}

// CreateCartItemParams captures a new cart line.
type CreateCartItemParams struct {
	CartID     pgtype.UUID
	MenuItemID pgtype.UUID
	Name       string
	UnitPrice  int64
	Qty        int32
	VATRate    float64
	Subtotal   int64
}

// CreateCartItem inserts a cart line.
func (s *Store) CreateCartItem(ctx context.Context, arg CreateCartItemParams) (CartItem, error) {
	const q = `
		INSERT INTO cart_items (cart_id, menu_item_id, name, unit_price, qty, vat_rate, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + cartItemColumns
	return scanCartItem(s.Pool.QueryRow(ctx, q, arg.CartID, arg.MenuItemID, arg.Name, arg.UnitPrice, arg.Qty, arg.VATRate, arg.Subtotal))
}

// UpdateCartItemQty sets the quantity and recomputed subtotal of a line.
func (s *Store) UpdateCartItemQty(ctx context.Context, id pgtype.UUID, qty int32, subtotal int64) error {
	_, err := s.Pool.Exec(ctx, `UPDATE cart_items SET qty = $2, subtotal = $3 WHERE id = $1`, id, qty, subtotal)
	return err
}

// DeleteCartItem removes a line from a cart.
func (s *Store) DeleteCartItem(ctx context.Context, id, cartID pgtype.UUID) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, id, cartID)
	return err
}

// GetCartItemByID fetches one cart line.
func (s *Store) GetCartItemByID(ctx context.Context, id pgtype.UUID) (CartItem, error) {
	return scanCartItem(s.Pool.QueryRow(ctx, `SELECT `+cartItemColumns+` FROM cart_items WHERE id = $1`, id))
}
