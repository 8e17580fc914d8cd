package dispatch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/obi-nwosu/backend-chopnow/internal/common"
	"github.com/obi-nwosu/backend-chopnow/internal/obs"
)

// SignatureHeader carries the courier's hex-encoded HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Courier-Signature"

type replayStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Webhook ingests courier callbacks. Every payload is signature-checked and
// replay-protected before it can touch dispatch state.
type Webhook struct {
	Svc       *Service
	Secret    string
	Replay    replayStore
	ReplayTTL time.Duration
}

type webhookPayload struct {
	TrackingRef string `json:"trackingRef"`
	Status      string `json:"status"`
}

// Handle processes one courier callback.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Svc.Q == nil || h.Replay == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "dispatch webhook not configured", nil)
		return
	}
	courier := normaliseLabel(chi.URLParam(r, "courier"))
	result := "error"
	defer func() {
		if obs.DispatchWebhookTotal != nil {
			obs.DispatchWebhookTotal.WithLabelValues(courier, result).Inc()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read payload", nil)
		return
	}
	if !h.validSignature(body, r.Header.Get(SignatureHeader)) {
		result = "rejected"
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	sum := sha256.Sum256(body)
	key := fmt.Sprintf("dwh:%s:%s", courier, hex.EncodeToString(sum[:]))
	ok, err := h.Replay.SetNX(r.Context(), key, "1", h.replayTTL()).Result()
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "replay protection failed", nil)
		return
	}
	if !ok {
		result = "replay"
		common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook payload", nil)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.TrackingRef == "" || payload.Status == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "trackingRef and status are required", nil)
		return
	}
	target := MapCourierStatus(payload.Status)
	if target == StatusPending {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unrecognised courier status", nil)
		return
	}

	d, err := h.Svc.ByTrackingRef(r.Context(), payload.TrackingRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "dispatch not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "dispatch lookup failed", nil)
		return
	}
	if _, err := h.Svc.Progress(r.Context(), d, target); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update dispatch", nil)
		return
	}
	result = "success"
	w.WriteHeader(http.StatusNoContent)
}

func (h Webhook) validSignature(body []byte, provided string) bool {
	if h.Secret == "" || provided == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(provided)))
}

func (h Webhook) replayTTL() time.Duration {
	if h.ReplayTTL > 0 {
		return h.ReplayTTL
	}
	return 24 * time.Hour
}

func normaliseLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
