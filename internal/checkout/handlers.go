package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/obi-nwosu/backend-chopnow/internal/cart"
	"github.com/obi-nwosu/backend-chopnow/internal/common"
	"github.com/obi-nwosu/backend-chopnow/internal/pricing"
	"github.com/obi-nwosu/backend-chopnow/internal/promo"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc *Service
}

// NewHandler constructs the checkout handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// Create places an order from the caller's cart. Requires an authenticated
// customer; guests must sign in (and merge their cart) first.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "sign in to place an order", nil)
		return
	}

	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if details := validateInput(in); len(details) > 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid checkout request", details)
		return
	}

	out, err := h.Svc.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, out)
}

func validateInput(in Input) map[string]string {
	details := map[string]string{}
	if strings.TrimSpace(in.CartID) == "" {
		details["cartId"] = "required"
	}
	if strings.TrimSpace(in.Address.ReceiverName) == "" {
		details["address.receiverName"] = "required"
	}
	if strings.TrimSpace(in.Address.Phone) == "" {
		details["address.phone"] = "required"
	}
	if strings.TrimSpace(in.Address.City) == "" {
		details["address.city"] = "required"
	}
	if strings.TrimSpace(in.Address.AddressLine) == "" {
		details["address.addressLine"] = "required"
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func writeError(w http.ResponseWriter, err error) {
	var vErr *pricing.ValidationError
	var appErr *common.AppError
	switch {
	case errors.Is(err, cart.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
	case errors.Is(err, cart.ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid checkout request", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cart has no items", nil)
	case errors.Is(err, promo.ErrNotEligible):
		common.JSONError(w, http.StatusUnprocessableEntity, "NOT_ELIGIBLE", "promotion is not eligible for this cart", nil)
	case errors.As(err, &vErr):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", vErr.Error(), nil)
	case errors.As(err, &appErr):
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
	case errors.Is(err, ErrCalculationFailed):
		common.JSONError(w, http.StatusBadGateway, "CALCULATION_FAILED", "order could not be priced", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not place order", nil)
	}
}
