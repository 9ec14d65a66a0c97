package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/ledger/internal/ledger"
)

// DuePostingSource lists unposted transactions whose scheduled posting date
// has arrived.
type DuePostingSource interface {
	FindDuePostings(ctx context.Context, asOf time.Time) ([]int64, error)
}

// ScheduledPostJob releases transactions held back by a scheduled posting
// date. Transactions already posted by a concurrent run are skipped.
type ScheduledPostJob struct {
	service *ledger.Service
	due     DuePostingSource
	logger  *slog.Logger
	now     func() time.Time
}

// NewScheduledPostJob constructs the job.
func NewScheduledPostJob(service *ledger.Service, due DuePostingSource, logger *slog.Logger) *ScheduledPostJob {
	return &ScheduledPostJob{service: service, due: due, logger: logger, now: time.Now}
}

// Handle processes TaskScheduledPost tasks.
func (j *ScheduledPostJob) Handle(ctx context.Context, t *asynq.Task) error {
	ids, err := j.due.FindDuePostings(ctx, j.now())
	if err != nil {
		return err
	}
	posted, failed := 0, 0
	for _, id := range ids {
		if _, err := j.service.Post(ctx, id, ledger.PostOptions{}); err != nil {
			if errors.Is(err, ledger.ErrAlreadyPosted) {
				continue
			}
			failed++
			if j.logger != nil {
				j.logger.Error("scheduled posting failed",
					slog.Int64("acctg_trans_id", id),
					slog.Any("error", err))
			}
			continue
		}
		posted++
	}
	if j.logger != nil {
		j.logger.Info("scheduled postings released",
			slog.Int("due", len(ids)),
			slog.Int("posted", posted),
			slog.Int("failed", failed))
	}
	return nil
}
