package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/obi-nwosu/backend-chopnow/internal/common"
	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/pricing"
	"github.com/obi-nwosu/backend-chopnow/internal/promo"
)

// Handler exposes cart endpoints for both guests and signed-in shoppers.
type Handler struct {
	Svc *Service
}

type cartView struct {
	ID             string     `json:"id"`
	PromoCode      string     `json:"promo_code,omitempty"`
	DeliveryZoneID string     `json:"delivery_zone_id,omitempty"`
	Items          []lineView `json:"items"`
	Subtotal       float64    `json:"subtotal"`
}

type lineView struct {
	ID         string  `json:"id"`
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	UnitPrice  float64 `json:"unit_price"`
	Qty        int32   `json:"qty"`
	Subtotal   float64 `json:"subtotal"`
}

type addItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Qty        int    `json:"qty"`
}

type updateQtyRequest struct {
	Qty int `json:"qty"`
}

type promoRequest struct {
	Code string `json:"code"`
}

type zoneRequest struct {
	ZoneID string `json:"zone_id"`
}

// Get handles GET /v1/cart, creating a cart on first touch.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.ensure(w, r)
	if !ok {
		return
	}
	h.respondCart(w, r, cart)
}

// AddItem handles POST /v1/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.ensure(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Svc.AddItem(r.Context(), db.UUIDString(cart.ID), req.MenuItemID, req.Qty); err != nil {
		h.writeError(w, err)
		return
	}
	h.respondCart(w, r, cart)
}

// UpdateItem handles PATCH /v1/cart/items/{itemID}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.ensure(w, r)
	if !ok {
		return
	}
	var req updateQtyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Svc.UpdateQty(r.Context(), db.UUIDString(cart.ID), chi.URLParam(r, "itemID"), req.Qty); err != nil {
		h.writeError(w, err)
		return
	}
	h.respondCart(w, r, cart)
}

// RemoveItem handles DELETE /v1/cart/items/{itemID}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.ensure(w, r)
	if !ok {
		return
	}
	if err := h.Svc.RemoveItem(r.Context(), db.UUIDString(cart.ID), chi.URLParam(r, "itemID")); err != nil {
		h.writeError(w, err)
		return
	}
	h.respondCart(w, r, cart)
}

// ApplyPromo handles POST /v1/cart/promo.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.ensure(w, r)
	if !ok {
		return
	}
	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Svc.ApplyPromoCode(r.Context(), db.UUIDString(cart.ID), req.Code); err != nil {
		h.writeError(w, err)
		return
	}
	h.respondCart(w, r, cart)
}

// RemovePromo handles DELETE /v1/cart/promo.
func (h *Handler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.ensure(w, r)
	if !ok {
		return
	}
	if err := h.Svc.RemovePromoCode(r.Context(), db.UUIDString(cart.ID)); err != nil {
		h.writeError(w, err)
		return
	}
	h.respondCart(w, r, cart)
}

// SetZone handles PUT /v1/cart/delivery-zone.
func (h *Handler) SetZone(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.ensure(w, r)
	if !ok {
		return
	}
	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Svc.SetDeliveryZone(r.Context(), db.UUIDString(cart.ID), req.ZoneID); err != nil {
		h.writeError(w, err)
		return
	}
	h.respondCart(w, r, cart)
}

// Merge handles POST /v1/cart/merge for freshly signed-in users.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "sign in required", nil)
		return
	}
	var req struct {
		GuestID string `json:"guest_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	cart, err := h.Svc.Merge(r.Context(), req.GuestID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondCart(w, r, cart)
}

// Quote handles GET /v1/cart/quote: an optimistic client-side price preview.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.ensure(w, r)
	if !ok {
		return
	}
	items, err := h.Svc.Q.ListCartItems(r.Context(), cart.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.Svc.Quote(r.Context(), cart, items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

func (h *Handler) ensure(w http.ResponseWriter, r *http.Request) (db.Cart, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return db.Cart{}, false
	}
	userID, _ := common.UserID(r.Context())
	guestID, _ := common.GuestID(r.Context())
	cart, err := h.Svc.EnsureCart(r.Context(), userID, guestID)
	if err != nil {
		h.writeError(w, err)
		return db.Cart{}, false
	}
	if !cart.UserID.Valid && cart.AnonID.Valid {
		// Echo the guest id so first-time clients can persist it.
		w.Header().Set("X-Guest-ID", cart.AnonID.String)
	}
	return cart, true
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, cart db.Cart) {
	// Re-read so responses reflect the mutation that just happened.
	fresh, err := h.Svc.Q.GetCartByID(r.Context(), cart.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items, err := h.Svc.Q.ListCartItems(r.Context(), fresh.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toCartView(fresh, items)})
}

func toCartView(cart db.Cart, items []db.CartItem) cartView {
	view := cartView{
		ID:    db.UUIDString(cart.ID),
		Items: make([]lineView, 0, len(items)),
	}
	if cart.PromoCode.Valid {
		view.PromoCode = cart.PromoCode.String
	}
	if cart.DeliveryZoneID.Valid {
		view.DeliveryZoneID = db.UUIDString(cart.DeliveryZoneID)
	}
	var subtotalMinor int64
	for _, line := range items {
		subtotalMinor += line.Subtotal
		view.Items = append(view.Items, lineView{
			ID:         db.UUIDString(line.ID),
			MenuItemID: db.UUIDString(line.MenuItemID),
			Name:       line.Name,
			UnitPrice:  pricing.ToMajorUnits(line.UnitPrice),
			Qty:        line.Qty,
			Subtotal:   pricing.ToMajorUnits(line.Subtotal),
		})
	}
	view.Subtotal = pricing.ToMajorUnits(subtotalMinor)
	return view
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, promo.ErrNotEligible):
		common.JSONError(w, http.StatusUnprocessableEntity, "NOT_ELIGIBLE", "promotion not eligible", nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			status := appErr.HTTPStatus
			if status == 0 {
				status = http.StatusInternalServerError
			}
			common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		var validationErr *pricing.ValidationError
		if errors.As(err, &validationErr) {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", validationErr.Error(), nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
