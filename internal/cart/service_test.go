package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/pricing"
	"github.com/obi-nwosu/backend-chopnow/internal/promo"
)

// memStore is an in-memory Querier for exercising cart flows.
type memStore struct {
	carts     map[string]*db.Cart
	items     map[string]*db.CartItem
	menuItems map[string]db.MenuItem
	zones     map[string]db.DeliveryZone
}

func newMemStore() *memStore {
	return &memStore{
		carts:     map[string]*db.Cart{},
		items:     map[string]*db.CartItem{},
		menuItems: map[string]db.MenuItem{},
		zones:     map[string]db.DeliveryZone{},
	}
}

func newID(t *testing.T) pgtype.UUID {
	t.Helper()
	id, err := db.ToUUID(uuid.NewString())
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	return id
}

func (m *memStore) CreateCart(ctx context.Context, arg db.CreateCartParams) (db.Cart, error) {
	id, _ := db.ToUUID(uuid.NewString())
	cart := db.Cart{ID: id, UserID: arg.UserID, AnonID: arg.AnonID, ExpiresAt: arg.ExpiresAt}
	m.carts[db.UUIDString(id)] = &cart
	return cart, nil
}

func (m *memStore) GetCartByID(ctx context.Context, id pgtype.UUID) (db.Cart, error) {
	if c, ok := m.carts[db.UUIDString(id)]; ok {
		return *c, nil
	}
	return db.Cart{}, pgx.ErrNoRows
}

func (m *memStore) GetActiveCartByUser(ctx context.Context, userID pgtype.UUID) (db.Cart, error) {
	for _, c := range m.carts {
		if c.UserID.Valid && db.UUIDEqual(c.UserID, userID) && c.ExpiresAt.Time.After(time.Now()) {
			return *c, nil
		}
	}
	return db.Cart{}, pgx.ErrNoRows
}

func (m *memStore) GetActiveCartByAnon(ctx context.Context, anonID pgtype.Text) (db.Cart, error) {
	for _, c := range m.carts {
		if c.AnonID.Valid && c.AnonID.String == anonID.String && c.ExpiresAt.Time.After(time.Now()) {
			return *c, nil
		}
	}
	return db.Cart{}, pgx.ErrNoRows
}

func (m *memStore) TouchCart(ctx context.Context, id pgtype.UUID, expiresAt pgtype.Timestamptz) error {
	if c, ok := m.carts[db.UUIDString(id)]; ok {
		c.ExpiresAt = expiresAt
	}
	return nil
}

func (m *memStore) UpdateCartPromoCode(ctx context.Context, id pgtype.UUID, code pgtype.Text) error {
	if c, ok := m.carts[db.UUIDString(id)]; ok {
		c.PromoCode = code
	}
	return nil
}

func (m *memStore) SetCartDeliveryZone(ctx context.Context, id, zoneID pgtype.UUID) error {
	if c, ok := m.carts[db.UUIDString(id)]; ok {
		c.DeliveryZoneID = zoneID
	}
	return nil
}

func (m *memStore) TransferCartToUser(ctx context.Context, id, userID pgtype.UUID) error {
	if c, ok := m.carts[db.UUIDString(id)]; ok {
		c.UserID = userID
		c.AnonID = pgtype.Text{}
	}
	return nil
}

func (m *memStore) ListCartItems(ctx context.Context, cartID pgtype.UUID) ([]db.CartItem, error) {
	var out []db.CartItem
	for _, it := range m.items {
		if db.UUIDEqual(it.CartID, cartID) {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *memStore) FindCartItemByMenuItem(ctx context.Context, cartID, menuItemID pgtype.UUID) (db.CartItem, error) {
	for _, it := range m.items {
		if db.UUIDEqual(it.CartID, cartID) && db.UUIDEqual(it.MenuItemID, menuItemID) {
			return *it, nil
		}
	}
	return db.CartItem{}, pgx.ErrNoRows
}

func (m *memStore) CreateCartItem(ctx context.Context, arg db.CreateCartItemParams) (db.CartItem, error) {
	id, _ := db.ToUUID(uuid.NewString())
	item := db.CartItem{
		ID: id, CartID: arg.CartID, MenuItemID: arg.MenuItemID, Name: arg.Name,
		UnitPrice: arg.UnitPrice, Qty: arg.Qty, VATRate: arg.VATRate, Subtotal: arg.Subtotal,
	}
	m.items[db.UUIDString(id)] = &item
	return item, nil
}

func (m *memStore) UpdateCartItemQty(ctx context.Context, id pgtype.UUID, qty int32, subtotal int64) error {
	if it, ok := m.items[db.UUIDString(id)]; ok {
		it.Qty, it.Subtotal = qty, subtotal
	}
	return nil
}

func (m *memStore) DeleteCartItem(ctx context.Context, id, cartID pgtype.UUID) error {
	delete(m.items, db.UUIDString(id))
	return nil
}

func (m *memStore) GetCartItemByID(ctx context.Context, id pgtype.UUID) (db.CartItem, error) {
	if it, ok := m.items[db.UUIDString(id)]; ok {
		return *it, nil
	}
	return db.CartItem{}, pgx.ErrNoRows
}

func (m *memStore) GetMenuItemByID(ctx context.Context, id pgtype.UUID) (db.MenuItem, error) {
	if it, ok := m.menuItems[db.UUIDString(id)]; ok {
		return it, nil
	}
	return db.MenuItem{}, pgx.ErrNoRows
}

func (m *memStore) GetDeliveryZone(ctx context.Context, id pgtype.UUID) (db.DeliveryZone, error) {
	if z, ok := m.zones[db.UUIDString(id)]; ok {
		return z, nil
	}
	return db.DeliveryZone{}, pgx.ErrNoRows
}

type fakePromoQuerier struct {
	promos []db.Promotion
}

func (f *fakePromoQuerier) ListActivePromotions(ctx context.Context) ([]db.Promotion, error) {
	return f.promos, nil
}

func (f *fakePromoQuerier) GetPromotionByCode(ctx context.Context, code string) (db.Promotion, error) {
	for _, p := range f.promos {
		if p.Code.Valid && p.Code.String == code {
			return p, nil
		}
	}
	return db.Promotion{}, pgx.ErrNoRows
}

func (f *fakePromoQuerier) IncrementPromotionUsage(ctx context.Context, id pgtype.UUID) error {
	return nil
}

func newTestService(store *memStore, promos []db.Promotion) *Service {
	return &Service{
		Q:      store,
		Promos: &promo.Service{Q: &fakePromoQuerier{promos: promos}},
		TTL:    time.Hour,
	}
}

func seedMenuItem(t *testing.T, store *memStore, priceMinor int64) db.MenuItem {
	t.Helper()
	item := db.MenuItem{
		ID:        newID(t),
		Name:      "Jollof Rice",
		Slug:      "jollof-rice",
		Price:     priceMinor,
		VATRate:   7.5,
		Available: true,
	}
	store.menuItems[db.UUIDString(item.ID)] = item
	return item
}

func TestEnsureCartCreatesAndReusesGuestCart(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	first, err := svc.EnsureCart(ctx, "", "guest-1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := svc.EnsureCart(ctx, "", "guest-1")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if !db.UUIDEqual(first.ID, second.ID) {
		t.Fatal("same guest must reuse the same cart")
	}

	if _, err := svc.EnsureCart(ctx, "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("no identity: err = %v, want ErrInvalidInput", err)
	}
}

func TestAddItemCapturesPriceAndIncrements(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	cart, _ := svc.EnsureCart(ctx, "", "guest-1")
	item := seedMenuItem(t, store, 250_000)

	if err := svc.AddItem(ctx, db.UUIDString(cart.ID), db.UUIDString(item.ID), 2); err != nil {
		t.Fatalf("add item: %v", err)
	}
	lines, _ := store.ListCartItems(ctx, cart.ID)
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if lines[0].UnitPrice != 250_000 || lines[0].VATRate != 7.5 || lines[0].Subtotal != 500_000 {
		t.Fatalf("line = %+v", lines[0])
	}

	if err := svc.AddItem(ctx, db.UUIDString(cart.ID), db.UUIDString(item.ID), 1); err != nil {
		t.Fatalf("add again: %v", err)
	}
	lines, _ = store.ListCartItems(ctx, cart.ID)
	if len(lines) != 1 || lines[0].Qty != 3 || lines[0].Subtotal != 750_000 {
		t.Fatalf("after increment: %+v", lines)
	}
}

func TestAddItemRejectsUnavailable(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	cart, _ := svc.EnsureCart(ctx, "", "guest-1")
	item := seedMenuItem(t, store, 100_000)
	item.Available = false
	store.menuItems[db.UUIDString(item.ID)] = item

	err := svc.AddItem(ctx, db.UUIDString(cart.ID), db.UUIDString(item.ID), 1)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestUpdateQtyRecomputesSubtotal(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	cart, _ := svc.EnsureCart(ctx, "", "guest-1")
	item := seedMenuItem(t, store, 100_000)
	_ = svc.AddItem(ctx, db.UUIDString(cart.ID), db.UUIDString(item.ID), 1)
	lines, _ := store.ListCartItems(ctx, cart.ID)

	if err := svc.UpdateQty(ctx, db.UUIDString(cart.ID), db.UUIDString(lines[0].ID), 5); err != nil {
		t.Fatalf("update qty: %v", err)
	}
	lines, _ = store.ListCartItems(ctx, cart.ID)
	if lines[0].Qty != 5 || lines[0].Subtotal != 500_000 {
		t.Fatalf("line = %+v", lines[0])
	}

	if err := svc.UpdateQty(ctx, db.UUIDString(cart.ID), uuid.NewString(), 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing line: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateQtyRejectsForeignCartLine(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	victim, _ := svc.EnsureCart(ctx, "", "guest-victim")
	item := seedMenuItem(t, store, 100_000)
	_ = svc.AddItem(ctx, db.UUIDString(victim.ID), db.UUIDString(item.ID), 2)
	lines, _ := store.ListCartItems(ctx, victim.ID)

	attacker, _ := svc.EnsureCart(ctx, "", "guest-attacker")
	err := svc.UpdateQty(ctx, db.UUIDString(attacker.ID), db.UUIDString(lines[0].ID), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign line: err = %v, want ErrNotFound", err)
	}
	lines, _ = store.ListCartItems(ctx, victim.ID)
	if lines[0].Qty != 2 {
		t.Fatalf("victim line mutated: %+v", lines[0])
	}
}

func TestApplyPromoCodeValidatesEligibility(t *testing.T) {
	store := newMemStore()
	promoID := newID(t)
	svc := newTestService(store, []db.Promotion{{
		ID:     promoID,
		Name:   "Launch Special",
		Code:   pgtype.Text{String: "CHOP10", Valid: true},
		Kind:   "percentage",
		Value:  10,
		Active: true,
	}})
	ctx := context.Background()

	cart, _ := svc.EnsureCart(ctx, "", "guest-1")
	item := seedMenuItem(t, store, 100_000)
	_ = svc.AddItem(ctx, db.UUIDString(cart.ID), db.UUIDString(item.ID), 1)

	if err := svc.ApplyPromoCode(ctx, db.UUIDString(cart.ID), "CHOP10"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	stored, _ := store.GetCartByID(ctx, cart.ID)
	if !stored.PromoCode.Valid || stored.PromoCode.String != "CHOP10" {
		t.Fatalf("promo code not pinned: %+v", stored.PromoCode)
	}

	if err := svc.ApplyPromoCode(ctx, db.UUIDString(cart.ID), "NOPE"); !errors.Is(err, promo.ErrNotEligible) {
		t.Fatalf("unknown code: err = %v, want ErrNotEligible", err)
	}

	if err := svc.RemovePromoCode(ctx, db.UUIDString(cart.ID)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	stored, _ = store.GetCartByID(ctx, cart.ID)
	if stored.PromoCode.Valid {
		t.Fatal("promo code should be cleared")
	}
}

func TestMergeFoldsGuestLinesIntoUserCart(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()
	userID := uuid.NewString()

	item := seedMenuItem(t, store, 100_000)

	guestCart, _ := svc.EnsureCart(ctx, "", "guest-1")
	_ = svc.AddItem(ctx, db.UUIDString(guestCart.ID), db.UUIDString(item.ID), 2)

	userCart, _ := svc.EnsureCart(ctx, userID, "")
	_ = svc.AddItem(ctx, db.UUIDString(userCart.ID), db.UUIDString(item.ID), 1)

	merged, err := svc.Merge(ctx, "guest-1", userID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !db.UUIDEqual(merged.ID, userCart.ID) {
		t.Fatal("merge must keep the user cart")
	}
	lines, _ := store.ListCartItems(ctx, userCart.ID)
	if len(lines) != 1 || lines[0].Qty != 3 {
		t.Fatalf("merged lines = %+v", lines)
	}
	if _, err := store.GetActiveCartByAnon(ctx, pgtype.Text{String: "guest-1", Valid: true}); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatal("guest cart must be expired after merge")
	}
}

func TestMergeTransfersWhenUserHasNoCart(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()
	userID := uuid.NewString()

	item := seedMenuItem(t, store, 100_000)
	guestCart, _ := svc.EnsureCart(ctx, "", "guest-1")
	_ = svc.AddItem(ctx, db.UUIDString(guestCart.ID), db.UUIDString(item.ID), 2)

	merged, err := svc.Merge(ctx, "guest-1", userID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !db.UUIDEqual(merged.ID, guestCart.ID) {
		t.Fatal("guest cart should be reassigned, not copied")
	}
	if !merged.UserID.Valid || db.UUIDString(merged.UserID) != userID {
		t.Fatalf("merged cart owner = %+v", merged.UserID)
	}
}

func TestQuoteAppliesZoneFeeAndPromotion(t *testing.T) {
	store := newMemStore()
	promoID := newID(t)
	svc := newTestService(store, []db.Promotion{{
		ID:     promoID,
		Name:   "Ten Percent",
		Kind:   "percentage",
		Value:  10,
		Active: true,
	}})
	ctx := context.Background()

	zone := db.DeliveryZone{ID: newID(t), Name: "Yaba", Fee: 50_000}
	store.zones[db.UUIDString(zone.ID)] = zone

	cart, _ := svc.EnsureCart(ctx, "", "guest-1")
	item := seedMenuItem(t, store, 1_000_000) // ₦10,000
	_ = svc.AddItem(ctx, db.UUIDString(cart.ID), db.UUIDString(item.ID), 1)
	_ = svc.SetDeliveryZone(ctx, db.UUIDString(cart.ID), db.UUIDString(zone.ID))

	fresh, _ := store.GetCartByID(ctx, cart.ID)
	items, _ := store.ListCartItems(ctx, fresh.ID)
	result, err := svc.Quote(ctx, fresh, items)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if result.Source != pricing.SourceClient {
		t.Fatalf("source = %s, want client", result.Source)
	}
	if result.Subtotal != 10_000 || result.DeliveryFee != 500 {
		t.Fatalf("subtotal=%v fee=%v", result.Subtotal, result.DeliveryFee)
	}
	if result.AppliedPromotion == nil || result.DiscountAmount != 1_000 {
		t.Fatalf("promotion not applied: %+v", result)
	}
	if result.TotalAmount != 9_500 {
		t.Fatalf("total = %v, want 9500", result.TotalAmount)
	}
}

func TestSetDeliveryZoneRejectsUnknownZone(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	cart, _ := svc.EnsureCart(ctx, "", "guest-1")
	err := svc.SetDeliveryZone(ctx, db.UUIDString(cart.ID), uuid.NewString())
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestLoadCartEnforcesOwnership(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	cart, _ := svc.EnsureCart(ctx, "", "guest-1")

	if _, _, err := svc.LoadCart(ctx, db.UUIDString(cart.ID), "", "guest-1"); err != nil {
		t.Fatalf("owner load: %v", err)
	}
	if _, _, err := svc.LoadCart(ctx, db.UUIDString(cart.ID), "", "guest-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger load: err = %v, want ErrNotFound", err)
	}
}
