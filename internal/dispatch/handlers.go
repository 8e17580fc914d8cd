package dispatch

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/obi-nwosu/backend-chopnow/internal/common"
	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/order"
)

// Handler exposes dispatch tracking and the admin rider workflow.
type Handler struct {
	Svc *Service
}

// Track returns the delivery leg of one of the caller's own orders.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	d, err := h.Svc.Track(r.Context(), userID, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": dispatchView(d)})
}

type assignRequest struct {
	RiderName  string `json:"riderName"`
	RiderPhone string `json:"riderPhone"`
}

// Assign records the rider for an order's dispatch (admin console).
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if req.RiderName == "" || req.RiderPhone == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "riderName and riderPhone are required", nil)
		return
	}
	d, err := h.Svc.Assign(r.Context(), chi.URLParam(r, "orderId"), req.RiderName, req.RiderPhone)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": dispatchView(d)})
}

type patchStatusRequest struct {
	Status string `json:"status"`
}

// PatchStatus moves a dispatch manually (admin console). Couriers normally
// drive this through the webhook instead.
func (h *Handler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	var req patchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	d, err := h.Svc.byOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.Svc.Progress(r.Context(), d, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": dispatchView(updated)})
}

func dispatchView(d db.Dispatch) map[string]any {
	view := map[string]any{
		"id":          db.UUIDString(d.ID),
		"orderId":     db.UUIDString(d.OrderID),
		"status":      d.Status,
		"trackingRef": d.TrackingRef.String,
	}
	if d.RiderName.Valid {
		view["riderName"] = d.RiderName.String
		view["riderPhone"] = d.RiderPhone.String
	}
	if d.AssignedAt.Valid {
		view["assignedAt"] = d.AssignedAt.Time
	}
	if d.DeliveredAt.Valid {
		view["deliveredAt"] = d.DeliveredAt.Time
	}
	return view
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, order.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "dispatch not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "dispatch operation failed", nil)
	}
}
