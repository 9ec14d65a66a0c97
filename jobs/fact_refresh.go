package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/ledger/internal/facts"
)

// FactRefreshJob wraps the fact builder for asynq.
type FactRefreshJob struct {
	builder *facts.Builder
	logger  *slog.Logger
}

// NewFactRefreshJob constructs the job.
func NewFactRefreshJob(builder *facts.Builder, logger *slog.Logger) *FactRefreshJob {
	return &FactRefreshJob{builder: builder, logger: logger}
}

// Handle processes TaskFactRefresh tasks.
func (j *FactRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	stats, err := j.builder.Rebuild(ctx)
	if err != nil {
		if j.logger != nil {
			j.logger.Error("fact refresh failed", slog.Any("error", err))
		}
		return err
	}
	if j.logger != nil {
		j.logger.Info("fact refresh done",
			slog.Int("transaction_facts", stats.TransactionFacts),
			slog.Int("encumbrance_facts", stats.EncumbranceFacts))
	}
	return nil
}
