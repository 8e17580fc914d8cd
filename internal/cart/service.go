package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/promo"
)

// ErrNotFound indicates the requested cart or line could not be located.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// Querier captures the database methods used by the cart service.
type Querier interface {
	CreateCart(ctx context.Context, arg db.CreateCartParams) (db.Cart, error)
	GetCartByID(ctx context.Context, id pgtype.UUID) (db.Cart, error)
	GetActiveCartByUser(ctx context.Context, userID pgtype.UUID) (db.Cart, error)
	GetActiveCartByAnon(ctx context.Context, anonID pgtype.Text) (db.Cart, error)
	TouchCart(ctx context.Context, id pgtype.UUID, expiresAt pgtype.Timestamptz) error
	UpdateCartPromoCode(ctx context.Context, id pgtype.UUID, code pgtype.Text) error
	SetCartDeliveryZone(ctx context.Context, id, zoneID pgtype.UUID) error
	TransferCartToUser(ctx context.Context, id, userID pgtype.UUID) error
	ListCartItems(ctx context.Context, cartID pgtype.UUID) ([]db.CartItem, error)
	FindCartItemByMenuItem(ctx context.Context, cartID, menuItemID pgtype.UUID) (db.CartItem, error)
	CreateCartItem(ctx context.Context, arg db.CreateCartItemParams) (db.CartItem, error)
	UpdateCartItemQty(ctx context.Context, id pgtype.UUID, qty int32, subtotal int64) error
	DeleteCartItem(ctx context.Context, id, cartID pgtype.UUID) error
	GetCartItemByID(ctx context.Context, id pgtype.UUID) (db.CartItem, error)
	GetMenuItemByID(ctx context.Context, id pgtype.UUID) (db.MenuItem, error)
	GetDeliveryZone(ctx context.Context, id pgtype.UUID) (db.DeliveryZone, error)
}

// Service encapsulates cart domain operations.
type Service struct {
	Q      Querier
	Promos *promo.Service
	TTL    time.Duration
	Now    func() time.Time
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// EnsureCart loads or creates a cart for the provided identity. Exactly one
// of userID and guestID must be non-empty; signed-in shoppers own carts by
// user id, anonymous ones by the guest header.
func (s *Service) EnsureCart(ctx context.Context, userID, guestID string) (db.Cart, error) {
	if s == nil || s.Q == nil {
		return db.Cart{}, errors.New("cart service not configured")
	}
	expires := pgtype.Timestamptz{Time: s.now().Add(s.ttl()), Valid: true}

	if userID != "" {
		uid, err := db.ToUUID(userID)
		if err != nil {
			return db.Cart{}, fmt.Errorf("parse user id: %w", err)
		}
		cart, err := s.Q.GetActiveCartByUser(ctx, uid)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return s.Q.CreateCart(ctx, db.CreateCartParams{UserID: uid, ExpiresAt: expires})
			}
			return db.Cart{}, err
		}
		_ = s.Q.TouchCart(ctx, cart.ID, expires)
		return cart, nil
	}

	if guestID != "" {
		anon := pgtype.Text{String: guestID, Valid: true}
		cart, err := s.Q.GetActiveCartByAnon(ctx, anon)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return s.Q.CreateCart(ctx, db.CreateCartParams{AnonID: anon, ExpiresAt: expires})
			}
			return db.Cart{}, err
		}
		_ = s.Q.TouchCart(ctx, cart.ID, expires)
		return cart, nil
	}

	return db.Cart{}, ErrInvalidInput
}

// AddItem inserts or increments a cart line. The menu item's current price
// and VAT rate are captured on the line so later menu edits do not reprice
// carts already in flight.
func (s *Service) AddItem(ctx context.Context, cartID, menuItemID string, qty int) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	cID, err := db.ToUUID(cartID)
	if err != nil {
		return fmt.Errorf("parse cart id: %w", err)
	}
	mID, err := db.ToUUID(menuItemID)
	if err != nil {
		return fmt.Errorf("parse menu item id: %w", err)
	}

	expires := pgtype.Timestamptz{Time: s.now().Add(s.ttl()), Valid: true}
	line, err := s.Q.FindCartItemByMenuItem(ctx, cID, mID)
	if err == nil {
		newQty := line.Qty + int32(qty)
		if err := s.Q.UpdateCartItemQty(ctx, line.ID, newQty, int64(newQty)*line.UnitPrice); err != nil {
			return err
		}
		_ = s.Q.TouchCart(ctx, cID, expires)
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	item, err := s.Q.GetMenuItemByID(ctx, mID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("menu item not found: %w", ErrInvalidInput)
		}
		return err
	}
	if !item.Available {
		return fmt.Errorf("menu item unavailable: %w", ErrInvalidInput)
	}
	if _, err := s.Q.CreateCartItem(ctx, db.CreateCartItemParams{
		CartID:     cID,
		MenuItemID: mID,
		Name:       item.Name,
		UnitPrice:  item.Price,
		Qty:        int32(qty),
		VATRate:    item.VATRate,
		Subtotal:   int64(qty) * item.Price,
	}); err != nil {
		return err
	}
	_ = s.Q.TouchCart(ctx, cID, expires)
	return nil
}

// UpdateQty updates the quantity for a cart line. The line must belong to
// cartID; lines in other carts are reported as not found.
func (s *Service) UpdateQty(ctx context.Context, cartID, itemID string, qty int) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	cID, err := db.ToUUID(cartID)
	if err != nil {
		return fmt.Errorf("parse cart id: %w", err)
	}
	id, err := db.ToUUID(itemID)
	if err != nil {
		return fmt.Errorf("parse item id: %w", err)
	}
	line, err := s.Q.GetCartItemByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if !db.UUIDEqual(line.CartID, cID) {
		return ErrNotFound
	}
	if err := s.Q.UpdateCartItemQty(ctx, line.ID, int32(qty), int64(qty)*line.UnitPrice); err != nil {
		return err
	}
	expires := pgtype.Timestamptz{Time: s.now().Add(s.ttl()), Valid: true}
	_ = s.Q.TouchCart(ctx, line.CartID, expires)
	return nil
}

// RemoveItem deletes a cart line.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	cID, err := db.ToUUID(cartID)
	if err != nil {
		return fmt.Errorf("parse cart id: %w", err)
	}
	iID, err := db.ToUUID(itemID)
	if err != nil {
		return fmt.Errorf("parse item id: %w", err)
	}
	if err := s.Q.DeleteCartItem(ctx, iID, cID); err != nil {
		return err
	}
	expires := pgtype.Timestamptz{Time: s.now().Add(s.ttl()), Valid: true}
	_ = s.Q.TouchCart(ctx, cID, expires)
	return nil
}

// ApplyPromoCode validates the code against the current cart contents and
// pins it to the cart. Eligibility is re-checked at quote and checkout time;
// this only rejects codes that could never apply.
func (s *Service) ApplyPromoCode(ctx context.Context, cartID, code string) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	if code == "" {
		return fmt.Errorf("promo code required: %w", ErrInvalidInput)
	}
	cID, err := db.ToUUID(cartID)
	if err != nil {
		return fmt.Errorf("parse cart id: %w", err)
	}
	if s.Promos != nil {
		items, err := s.Q.ListCartItems(ctx, cID)
		if err != nil {
			return err
		}
		var subtotalMinor int64
		for _, it := range items {
			subtotalMinor += it.Subtotal
		}
		if _, err := s.Promos.Preview(ctx, code, subtotalMinor); err != nil {
			return err
		}
	}
	return s.Q.UpdateCartPromoCode(ctx, cID, pgtype.Text{String: code, Valid: true})
}

// RemovePromoCode detaches any applied code from the cart.
func (s *Service) RemovePromoCode(ctx context.Context, cartID string) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	cID, err := db.ToUUID(cartID)
	if err != nil {
		return fmt.Errorf("parse cart id: %w", err)
	}
	return s.Q.UpdateCartPromoCode(ctx, cID, pgtype.Text{})
}

// SetDeliveryZone records the zone the cart will be delivered to.
func (s *Service) SetDeliveryZone(ctx context.Context, cartID, zoneID string) error {
	if s == nil || s.Q == nil {
		return errors.New("cart service not configured")
	}
	cID, err := db.ToUUID(cartID)
	if err != nil {
		return fmt.Errorf("parse cart id: %w", err)
	}
	zID, err := db.ToUUID(zoneID)
	if err != nil {
		return fmt.Errorf("parse zone id: %w", err)
	}
	if _, err := s.Q.GetDeliveryZone(ctx, zID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("delivery zone not found: %w", ErrInvalidInput)
		}
		return err
	}
	return s.Q.SetCartDeliveryZone(ctx, cID, zID)
}

// Merge folds a guest cart into the signed-in user's cart after login. When
// the user has no active cart the guest cart is simply reassigned; otherwise
// guest lines are merged in and the guest cart is expired.
func (s *Service) Merge(ctx context.Context, guestID, userID string) (db.Cart, error) {
	if s == nil || s.Q == nil {
		return db.Cart{}, errors.New("cart service not configured")
	}
	if guestID == "" || userID == "" {
		return db.Cart{}, ErrInvalidInput
	}
	uid, err := db.ToUUID(userID)
	if err != nil {
		return db.Cart{}, fmt.Errorf("parse user id: %w", err)
	}
	guestCart, err := s.Q.GetActiveCartByAnon(ctx, pgtype.Text{String: guestID, Valid: true})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.EnsureCart(ctx, userID, "")
		}
		return db.Cart{}, err
	}

	userCart, err := s.Q.GetActiveCartByUser(ctx, uid)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return db.Cart{}, err
		}
		if err := s.Q.TransferCartToUser(ctx, guestCart.ID, uid); err != nil {
			return db.Cart{}, err
		}
		return s.Q.GetCartByID(ctx, guestCart.ID)
	}

	guestLines, err := s.Q.ListCartItems(ctx, guestCart.ID)
	if err != nil {
		return db.Cart{}, err
	}
	for _, line := range guestLines {
		existing, err := s.Q.FindCartItemByMenuItem(ctx, userCart.ID, line.MenuItemID)
		if err == nil {
			newQty := existing.Qty + line.Qty
			if err := s.Q.UpdateCartItemQty(ctx, existing.ID, newQty, int64(newQty)*existing.UnitPrice); err != nil {
				return db.Cart{}, err
			}
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return db.Cart{}, err
		}
		if _, err := s.Q.CreateCartItem(ctx, db.CreateCartItemParams{
			CartID:     userCart.ID,
			MenuItemID: line.MenuItemID,
			Name:       line.Name,
			UnitPrice:  line.UnitPrice,
			Qty:        line.Qty,
			VATRate:    line.VATRate,
			Subtotal:   line.Subtotal,
		}); err != nil {
			return db.Cart{}, err
		}
	}
	// Expire the guest cart so it stops resolving for the guest header.
	expired := pgtype.Timestamptz{Time: s.now().Add(-time.Minute), Valid: true}
	_ = s.Q.TouchCart(ctx, guestCart.ID, expired)
	return userCart, nil
}

// LoadCart fetches a cart with its lines, verifying ownership against the
// caller's identity.
func (s *Service) LoadCart(ctx context.Context, cartID, userID, guestID string) (db.Cart, []db.CartItem, error) {
	if s == nil || s.Q == nil {
		return db.Cart{}, nil, errors.New("cart service not configured")
	}
	cID, err := db.ToUUID(cartID)
	if err != nil {
		return db.Cart{}, nil, fmt.Errorf("parse cart id: %w", err)
	}
	cart, err := s.Q.GetCartByID(ctx, cID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Cart{}, nil, ErrNotFound
		}
		return db.Cart{}, nil, err
	}
	if !ownsCart(cart, userID, guestID) {
		return db.Cart{}, nil, ErrNotFound
	}
	items, err := s.Q.ListCartItems(ctx, cart.ID)
	if err != nil {
		return db.Cart{}, nil, err
	}
	return cart, items, nil
}

func ownsCart(cart db.Cart, userID, guestID string) bool {
	if cart.UserID.Valid {
		return userID != "" && db.UUIDString(cart.UserID) == userID
	}
	if cart.AnonID.Valid {
		return guestID != "" && cart.AnonID.String == guestID
	}
	return false
}
