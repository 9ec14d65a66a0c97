package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/ledger/internal/encumbrance"
)

// EncumbranceSnapshotJob wraps the snapshot service for asynq.
type EncumbranceSnapshotJob struct {
	service *encumbrance.Service
	logger  *slog.Logger
}

// NewEncumbranceSnapshotJob constructs the job.
func NewEncumbranceSnapshotJob(service *encumbrance.Service, logger *slog.Logger) *EncumbranceSnapshotJob {
	return &EncumbranceSnapshotJob{service: service, logger: logger}
}

// Handle processes TaskEncumbranceSnapshot tasks.
func (j *EncumbranceSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload EncumbranceSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	snapshot, err := j.service.CreateSnapshot(ctx, encumbrance.CreateSnapshotInput{
		OrganizationID: payload.OrganizationID,
		StartDatetime:  payload.StartDatetime,
		CreatedBy:      payload.CreatedBy,
	})
	if err != nil {
		if j.logger != nil {
			j.logger.Error("encumbrance snapshot failed",
				slog.String("organization", payload.OrganizationID),
				slog.Any("error", err))
		}
		return err
	}
	if snapshot == nil {
		return nil
	}
	if j.logger != nil {
		j.logger.Info("encumbrance snapshot job done",
			slog.String("organization", payload.OrganizationID),
			slog.String("snapshot_id", snapshot.ID.String()))
	}
	return nil
}
