package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/obi-nwosu/backend-chopnow/internal/common"
	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/pricing"
)

// Handler exposes the customer's own orders over HTTP.
type Handler struct {
	Svc *Service
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	orders, total, err := h.Svc.List(r.Context(), userID, page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(orders))
	for _, ord := range orders {
		views = append(views, orderSummary(ord))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": views,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	ord, items, err := h.Svc.Get(r.Context(), userID, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, err)
		return
	}
	lines := make([]map[string]any, 0, len(items))
	for _, it := range items {
		lines = append(lines, map[string]any{
			"id":         db.UUIDString(it.ID),
			"menuItemId": db.UUIDString(it.MenuItemID),
			"name":       it.Name,
			"unitPrice":  pricing.ToMajorUnits(it.UnitPrice),
			"qty":        it.Qty,
			"vatRate":    it.VATRate,
			"subtotal":   pricing.ToMajorUnits(it.Subtotal),
		})
	}
	view := orderSummary(ord)
	view["items"] = lines
	view["address"] = jsonValue(ord.Address)
	view["notes"] = nullableText(ord.Notes)
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	if err := h.Svc.Cancel(r.Context(), userID, chi.URLParam(r, "orderId")); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": StatusCancelled}})
}

func orderSummary(ord db.Order) map[string]any {
	view := map[string]any{
		"id":            db.UUIDString(ord.ID),
		"status":        ord.Status,
		"currency":      ord.Currency,
		"subtotal":      pricing.ToMajorUnits(ord.Subtotal),
		"totalVat":      pricing.ToMajorUnits(ord.TotalVAT),
		"deliveryFee":   pricing.ToMajorUnits(ord.DeliveryFee),
		"discount":      pricing.ToMajorUnits(ord.Discount),
		"total":         pricing.ToMajorUnits(ord.Total),
		"authoritative": ord.Authoritative,
		"createdAt":     ord.CreatedAt.Time,
	}
	if ord.PromoCode.Valid {
		view["promoCode"] = ord.PromoCode.String
	}
	return view
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order operation failed", nil)
	}
}

func nullableText(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func jsonValue(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	clone := make([]byte, len(b))
	copy(clone, b)
	return json.RawMessage(clone)
}
