package order

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/obi-nwosu/backend-chopnow/internal/common"
)

// AdminHandler provides the admin console's order management endpoints.
type AdminHandler struct {
	Svc *Service
}

type patchStatusRequest struct {
	Status string `json:"status"`
}

// PatchStatus moves an order along the lifecycle with state-machine
// validation. Kitchens confirm, prepare and ready orders here; delivery
// statuses normally arrive through the courier webhook instead.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	var req patchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if req.Status == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "status is required", nil)
		return
	}
	if !ValidStatus(req.Status) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status", nil)
		return
	}
	if err := h.Svc.UpdateStatus(r.Context(), chi.URLParam(r, "orderId"), req.Status); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
