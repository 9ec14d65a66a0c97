package facts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/ledger/internal/ledger"
	"github.com/meridian-erp/ledger/internal/platform/db"
)

// Repository persists reporting facts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("facts repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) DeleteAllFacts(ctx context.Context) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM ledger_facts`)
	return err
}

func (r *txRepository) PostedEntries(ctx context.Context) ([]PostedEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT e.acctg_trans_id, e.seq_id, e.gl_account_id, e.organization_id, t.fiscal_type, t.transaction_date, e.debit_credit_flag, e.amount, a.normal_balance,
COALESCE(e.tag1,''), COALESCE(e.tag2,''), COALESCE(e.tag3,''), COALESCE(e.tag4,''), COALESCE(e.tag5,''), COALESCE(e.tag6,''), COALESCE(e.tag7,''), COALESCE(e.tag8,''), COALESCE(e.tag9,''), COALESCE(e.tag10,'')
FROM acctg_trans_entries e
JOIN acctg_trans t ON t.id = e.acctg_trans_id
JOIN gl_accounts a ON a.id = e.gl_account_id
WHERE t.is_posted = 'Y' AND t.fiscal_type IN ($1, $2)
ORDER BY e.acctg_trans_id, e.seq_id`, ledger.FiscalTypeActual, ledger.FiscalTypeBudget)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []PostedEntry
	for rows.Next() {
		var e PostedEntry
		if err := rows.Scan(&e.TransactionID, &e.EntrySeqID, &e.AccountID, &e.OrganizationID,
			&e.FiscalType, &e.TransactionDate, &e.Flag, &e.Amount, &e.NormalBalance,
			&e.Tags[0], &e.Tags[1], &e.Tags[2], &e.Tags[3], &e.Tags[4],
			&e.Tags[5], &e.Tags[6], &e.Tags[7], &e.Tags[8], &e.Tags[9]); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CurrentSnapshotDetails selects the details of each organization's most
// recent encumbrance snapshot.
func (r *txRepository) CurrentSnapshotDetails(ctx context.Context) ([]SnapshotDetail, error) {
	rows, err := r.tx.Query(ctx, `SELECT d.snapshot_id, d.seq_id, d.organization_id, d.gl_account_id, s.snapshot_datetime, d.encumbered_amount,
COALESCE(d.tag1,''), COALESCE(d.tag2,''), COALESCE(d.tag3,''), COALESCE(d.tag4,''), COALESCE(d.tag5,''), COALESCE(d.tag6,''), COALESCE(d.tag7,''), COALESCE(d.tag8,''), COALESCE(d.tag9,''), COALESCE(d.tag10,'')
FROM encumbrance_details d
JOIN (
	SELECT DISTINCT ON (organization_id) id, organization_id, snapshot_datetime
	FROM encumbrance_snapshots
	ORDER BY organization_id, snapshot_datetime DESC
) s ON s.id = d.snapshot_id
ORDER BY d.snapshot_id, d.seq_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var details []SnapshotDetail
	for rows.Next() {
		var d SnapshotDetail
		if err := rows.Scan(&d.SnapshotID, &d.DetailSeqID, &d.OrganizationID, &d.AccountID,
			&d.SnapshotDatetime, &d.EncumberedAmount,
			&d.Tags[0], &d.Tags[1], &d.Tags[2], &d.Tags[3], &d.Tags[4],
			&d.Tags[5], &d.Tags[6], &d.Tags[7], &d.Tags[8], &d.Tags[9]); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func (r *txRepository) InsertFacts(ctx context.Context, facts []Fact) error {
	for _, f := range facts {
		if _, err := r.tx.Exec(ctx, `INSERT INTO ledger_facts (acctg_trans_id, entry_seq_id, snapshot_id, detail_seq_id, organization_id, gl_account_id, fiscal_type, fact_date, amount, encumbered_amount, tag1, tag2, tag3, tag4, tag5, tag6, tag7, tag8, tag9, tag10)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
			f.TransactionID, f.EntrySeqID, f.SnapshotID, f.DetailSeqID,
			f.OrganizationID, f.AccountID, f.FiscalType, f.FactDate, f.Amount, f.EncumberedAmount,
			nullStr(f.Tags[0]), nullStr(f.Tags[1]), nullStr(f.Tags[2]), nullStr(f.Tags[3]), nullStr(f.Tags[4]),
			nullStr(f.Tags[5]), nullStr(f.Tags[6]), nullStr(f.Tags[7]), nullStr(f.Tags[8]), nullStr(f.Tags[9])); err != nil {
			return err
		}
	}
	return nil
}

func nullStr(val string) any {
	if val == "" {
		return nil
	}
	return val
}
