package reporting

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TypeReportRefresh warms the cached admin reports in the background.
const TypeReportRefresh = "report:refresh"

// RefreshPayload selects the report window in days.
type RefreshPayload struct {
	Days int `json:"days"`
}

// NewRefreshTask builds the asynq task for a report refresh.
func NewRefreshTask(days int) (*asynq.Task, error) {
	payload, err := json.Marshal(RefreshPayload{Days: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReportRefresh, payload), nil
}

// Refresher handles report:refresh tasks.
type Refresher struct {
	Svc *Service
	Log zerolog.Logger
}

// HandleRefresh recomputes the cached reports. A malformed payload falls
// back to the default window rather than failing the task.
func (r *Refresher) HandleRefresh(ctx context.Context, t *asynq.Task) error {
	var payload RefreshPayload
	_ = json.Unmarshal(t.Payload(), &payload)
	if err := r.Svc.Refresh(ctx, payload.Days); err != nil {
		r.Log.Error().Err(err).Int("days", payload.Days).Msg("refresh reports")
		return err
	}
	return nil
}
