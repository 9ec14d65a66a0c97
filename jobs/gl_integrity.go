package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GLIntegrityJob scans posted transactions whose entries no longer balance.
// A non-empty result means something bypassed the posting engine.
type GLIntegrityJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewGLIntegrityJob constructs the job.
func NewGLIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger) *GLIntegrityJob {
	return &GLIntegrityJob{pool: pool, logger: logger}
}

// Handle processes TaskGLIntegrity tasks.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	rows, err := j.pool.Query(ctx, `SELECT e.acctg_trans_id,
SUM(CASE WHEN e.debit_credit_flag='D' THEN e.amount ELSE 0 END) AS debits,
SUM(CASE WHEN e.debit_credit_flag='C' THEN e.amount ELSE 0 END) AS credits
FROM acctg_trans_entries e
JOIN acctg_trans tr ON tr.id = e.acctg_trans_id
WHERE tr.is_posted='Y'
GROUP BY e.acctg_trans_id
HAVING SUM(CASE WHEN e.debit_credit_flag='D' THEN e.amount ELSE 0 END)
    <> SUM(CASE WHEN e.debit_credit_flag='C' THEN e.amount ELSE 0 END)`)
	if err != nil {
		return err
	}
	defer rows.Close()
	unbalanced := 0
	for rows.Next() {
		var (
			id              int64
			debits, credits string
		)
		if err := rows.Scan(&id, &debits, &credits); err != nil {
			return err
		}
		unbalanced++
		if j.logger != nil {
			j.logger.Error("posted transaction out of balance",
				slog.Int64("acctg_trans_id", id),
				slog.String("debits", debits),
				slog.String("credits", credits))
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("GL integrity check executed",
			slog.String("job", "gl_integrity"),
			slog.Int("unbalanced", unbalanced))
	}
	return nil
}
