package promo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/obi-nwosu/backend-chopnow/internal/common"
	"github.com/obi-nwosu/backend-chopnow/internal/db"
	"github.com/obi-nwosu/backend-chopnow/internal/pricing"
)

// AdminQuerier captures the write-side methods used by admin endpoints.
type AdminQuerier interface {
	CreatePromotion(ctx context.Context, arg db.CreatePromotionParams) (db.Promotion, error)
	UpdatePromotion(ctx context.Context, code string, arg db.CreatePromotionParams) (db.Promotion, error)
}

// Handler exposes administrative promotion management endpoints.
type Handler struct {
	Q        AdminQuerier
	Svc      *Service
	Validate *validator.Validate
}

type promotionPayload struct {
	Name         string     `json:"name" validate:"required,min=2"`
	Code         string     `json:"code" validate:"omitempty,min=3,max=32"`
	Kind         string     `json:"kind" validate:"required,oneof=percentage fixed_amount free_delivery"`
	Value        float64    `json:"value" validate:"gte=0"`
	FreeDelivery bool       `json:"freeDelivery"`
	MinSpend     int64      `json:"minSpend" validate:"gte=0"`
	ValidFrom    *time.Time `json:"validFrom"`
	ValidTo      *time.Time `json:"validTo"`
	UsageLimit   *int32     `json:"usageLimit" validate:"omitempty,gt=0"`
	Active       *bool      `json:"active"`
}

type previewRequest struct {
	Code     string  `json:"code" validate:"required"`
	Subtotal float64 `json:"subtotal" validate:"gte=0"`
}

// Create inserts a new promotion rule.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	created, err := h.Q.CreatePromotion(r.Context(), buildParams(payload))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "promotion code already exists", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create promotion", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toView(created)})
}

// Update replaces a promotion rule identified by code.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	updated, err := h.Q.UpdatePromotion(r.Context(), code, buildParams(payload))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promotion not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update promotion", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toView(updated)})
}

// Preview evaluates a code against a subtotal without persisting anything.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promo service not configured", nil)
		return
	}
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
	}
	candidate, err := h.Svc.Preview(r.Context(), req.Code, pricing.ToMinorUnits(req.Subtotal))
	if err != nil {
		if errors.Is(err, ErrNotEligible) {
			common.JSONError(w, http.StatusUnprocessableEntity, "NOT_ELIGIBLE", "promotion not eligible", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to evaluate promotion", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": candidate})
}

func (h *Handler) decodePayload(w http.ResponseWriter, r *http.Request) (promotionPayload, bool) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion queries not configured", nil)
		return promotionPayload{}, false
	}
	var payload promotionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return promotionPayload{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return promotionPayload{}, false
		}
	}
	if payload.Kind == string(pricing.KindPercentage) && payload.Value >= 100 {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "percentage must be below 100", nil)
		return promotionPayload{}, false
	}
	if payload.ValidFrom != nil && payload.ValidTo != nil && payload.ValidTo.Before(*payload.ValidFrom) {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "validTo must be after validFrom", nil)
		return promotionPayload{}, false
	}
	return payload, true
}

func buildParams(payload promotionPayload) db.CreatePromotionParams {
	params := db.CreatePromotionParams{
		Name:         strings.TrimSpace(payload.Name),
		Kind:         payload.Kind,
		Value:        payload.Value,
		FreeDelivery: payload.FreeDelivery,
		MinSpend:     payload.MinSpend,
		Active:       true,
	}
	// Fixed amounts arrive in major units and are stored in minor units,
	// matching every other money column.
	if payload.Kind == string(pricing.KindFixedAmount) {
		params.Value = float64(pricing.ToMinorUnits(payload.Value))
	}
	if code := strings.TrimSpace(payload.Code); code != "" {
		params.Code = pgtype.Text{String: code, Valid: true}
	}
	if payload.ValidFrom != nil {
		params.ValidFrom = pgtype.Timestamptz{Time: *payload.ValidFrom, Valid: true}
	}
	if payload.ValidTo != nil {
		params.ValidTo = pgtype.Timestamptz{Time: *payload.ValidTo, Valid: true}
	}
	if payload.UsageLimit != nil {
		params.UsageLimit = pgtype.Int4{Int32: *payload.UsageLimit, Valid: true}
	}
	if payload.Active != nil {
		params.Active = *payload.Active
	}
	return params
}

type promotionView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Code         string     `json:"code,omitempty"`
	Kind         string     `json:"kind"`
	Value        float64    `json:"value"`
	FreeDelivery bool       `json:"free_delivery"`
	MinSpend     float64    `json:"min_spend"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidTo      *time.Time `json:"valid_to,omitempty"`
	UsageLimit   *int32     `json:"usage_limit,omitempty"`
	UsedCount    int32      `json:"used_count"`
	Active       bool       `json:"active"`
}

func toView(p db.Promotion) promotionView {
	view := promotionView{
		ID:           db.UUIDString(p.ID),
		Name:         p.Name,
		Kind:         p.Kind,
		Value:        p.Value,
		FreeDelivery: p.FreeDelivery,
		MinSpend:     pricing.ToMajorUnits(p.MinSpend),
		UsedCount:    p.UsedCount,
		Active:       p.Active,
	}
	if p.Kind == string(pricing.KindFixedAmount) {
		view.Value = pricing.ToMajorUnits(int64(p.Value))
	}
	if p.Code.Valid {
		view.Code = p.Code.String
	}
	if p.ValidFrom.Valid {
		t := p.ValidFrom.Time
		view.ValidFrom = &t
	}
	if p.ValidTo.Valid {
		t := p.ValidTo.Time
		view.ValidTo = &t
	}
	if p.UsageLimit.Valid {
		limit := p.UsageLimit.Int32
		view.UsageLimit = &limit
	}
	return view
}
