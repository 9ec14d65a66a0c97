package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskEncumbranceSnapshot creates a point-in-time encumbrance snapshot.
	TaskEncumbranceSnapshot = "encumbrance:snapshot"
	// TaskFactRefresh rebuilds the reporting fact table.
	TaskFactRefresh = "facts:refresh"
	// TaskGLIntegrity scans posted transactions for broken trial balances.
	TaskGLIntegrity = "ledger:integrity"
	// TaskScheduledPost releases transactions whose scheduled posting date
	// has arrived.
	TaskScheduledPost = "ledger:post_scheduled"
)

// EncumbranceSnapshotPayload describes one snapshot run.
type EncumbranceSnapshotPayload struct {
	OrganizationID string     `json:"organization_id"`
	StartDatetime  *time.Time `json:"start_datetime,omitempty"`
	CreatedBy      string     `json:"created_by,omitempty"`
}

// NewEncumbranceSnapshotTask constructs an Asynq task.
func NewEncumbranceSnapshotTask(payload EncumbranceSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEncumbranceSnapshot, data), nil
}

// NewFactRefreshTask constructs an Asynq task.
func NewFactRefreshTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskFactRefresh, nil), nil
}

// NewGLIntegrityTask constructs an Asynq task.
func NewGLIntegrityTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskGLIntegrity, nil), nil
}

// NewScheduledPostTask constructs an Asynq task.
func NewScheduledPostTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskScheduledPost, nil), nil
}
