package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/ledger/internal/platform/db"
)

// Repository persists ledger entities.
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
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO acctg_trans (trans_type, fiscal_type, transaction_date, scheduled_posting_date, is_posted, description, party_id, source_module, source_id)
VALUES ($1,$2,$3,$4,'N',$5,$6,$7,$8) RETURNING id`,
		txn.Type, txn.FiscalType, txn.TransactionDate, txn.ScheduledPostingDate,
		nullStr(txn.Description), nullStr(txn.PartyID), nullStr(txn.SourceModule), nullUUID(txn.SourceID)).
		Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "uq_acctg_trans_source" {
			return 0, ErrSourceAlreadyLinked
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) InsertEntries(ctx context.Context, transactionID int64, entries []Entry) error {
	for _, e := range entries {
		if _, err := r.tx.Exec(ctx, `INSERT INTO acctg_trans_entries (acctg_trans_id, seq_id, entry_type, gl_account_id, organization_id, debit_credit_flag, amount, currency_uom_id, orig_amount, orig_currency_uom_id, reconcile_status, description, party_id, tag1, tag2, tag3, tag4, tag5, tag6, tag7, tag8, tag9, tag10)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
			transactionID, e.SeqID, e.EntryType, e.AccountID, e.OrganizationID, e.Flag,
			e.Amount, nullStr(e.CurrencyUomID), e.OrigAmount, nullStr(e.OrigCurrencyUomID),
			e.Reconciliation, nullStr(e.Description), nullStr(e.PartyID),
			nullStr(e.Tags[0]), nullStr(e.Tags[1]), nullStr(e.Tags[2]), nullStr(e.Tags[3]), nullStr(e.Tags[4]),
			nullStr(e.Tags[5]), nullStr(e.Tags[6]), nullStr(e.Tags[7]), nullStr(e.Tags[8]), nullStr(e.Tags[9])); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error) {
	var (
		txn      Transaction
		isPosted string
	)
	err := r.tx.QueryRow(ctx, `SELECT id, trans_type, fiscal_type, transaction_date, scheduled_posting_date, is_posted, posted_date, posted_amount, COALESCE(description,''), COALESCE(party_id,''), COALESCE(source_module,''), COALESCE(source_id,'00000000-0000-0000-0000-000000000000'::uuid), created_at, updated_at
FROM acctg_trans WHERE id=$1 FOR UPDATE`, id).
		Scan(&txn.ID, &txn.Type, &txn.FiscalType, &txn.TransactionDate, &txn.ScheduledPostingDate,
			&isPosted, &txn.PostedDate, &txn.PostedAmount, &txn.Description, &txn.PartyID,
			&txn.SourceModule, &txn.SourceID, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	txn.IsPosted = isPosted == "Y"
	return txn, nil
}

func (r *txRepository) GetTransactionEntries(ctx context.Context, id int64) ([]Entry, error) {
	rows, err := r.tx.Query(ctx, `SELECT acctg_trans_id, seq_id, entry_type, gl_account_id, organization_id, debit_credit_flag, amount, COALESCE(currency_uom_id,''), orig_amount, COALESCE(orig_currency_uom_id,''), reconcile_status, COALESCE(description,''), COALESCE(party_id,''),
COALESCE(tag1,''), COALESCE(tag2,''), COALESCE(tag3,''), COALESCE(tag4,''), COALESCE(tag5,''), COALESCE(tag6,''), COALESCE(tag7,''), COALESCE(tag8,''), COALESCE(tag9,''), COALESCE(tag10,''), created_at, updated_at
FROM acctg_trans_entries WHERE acctg_trans_id=$1 ORDER BY seq_id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TransactionID, &e.SeqID, &e.EntryType, &e.AccountID, &e.OrganizationID,
			&e.Flag, &e.Amount, &e.CurrencyUomID, &e.OrigAmount, &e.OrigCurrencyUomID,
			&e.Reconciliation, &e.Description, &e.PartyID,
			&e.Tags[0], &e.Tags[1], &e.Tags[2], &e.Tags[3], &e.Tags[4],
			&e.Tags[5], &e.Tags[6], &e.Tags[7], &e.Tags[8], &e.Tags[9],
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) GetAccount(ctx context.Context, accountID string) (Account, error) {
	var a Account
	err := r.tx.QueryRow(ctx, `SELECT id, name, class, normal_balance, created_at, updated_at
FROM gl_accounts WHERE id=$1`, accountID).
		Scan(&a.ID, &a.Name, &a.Class, &a.NormalBalance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) FindOpenPeriods(ctx context.Context, organizationID string, date time.Time) ([]Period, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, organization_id, code, start_date, end_date, is_closed, closed_at, created_at, updated_at
FROM custom_time_periods WHERE organization_id=$1 AND is_closed=FALSE AND $2 BETWEEN start_date AND end_date ORDER BY start_date`, organizationID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Code, &p.StartDate, &p.EndDate, &p.IsClosed, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// AddToBalance lazily creates the balance row and accumulates the delta.
// The conflict rule is accumulate, never overwrite.
func (r *txRepository) AddToBalance(ctx context.Context, accountID, organizationID string, delta decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO gl_account_organizations (gl_account_id, organization_id, posted_balance)
VALUES ($1,$2,$3)
ON CONFLICT (gl_account_id, organization_id)
DO UPDATE SET posted_balance = gl_account_organizations.posted_balance + EXCLUDED.posted_balance, updated_at = NOW()`,
		accountID, organizationID, delta)
	return err
}

// AddToHistory lazily creates the period history row and accumulates raw
// debit and credit totals. Rows are never decremented.
func (r *txRepository) AddToHistory(ctx context.Context, accountID, organizationID string, periodID int64, debits, credits decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO gl_account_histories (gl_account_id, organization_id, time_period_id, posted_debits, posted_credits)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (gl_account_id, organization_id, time_period_id)
DO UPDATE SET posted_debits = gl_account_histories.posted_debits + EXCLUDED.posted_debits,
              posted_credits = gl_account_histories.posted_credits + EXCLUDED.posted_credits,
              updated_at = NOW()`,
		accountID, organizationID, periodID, debits, credits)
	return err
}

func (r *txRepository) MarkPosted(ctx context.Context, id int64, postedDate time.Time, postedAmount decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE acctg_trans SET is_posted='Y', posted_date=$2, posted_amount=$3, updated_at=NOW() WHERE id=$1`,
		id, postedDate, postedAmount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// FindDuePostings lists unposted transactions whose scheduled posting date
// has arrived.
func (r *Repository) FindDuePostings(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM acctg_trans
WHERE is_posted='N' AND scheduled_posting_date IS NOT NULL AND scheduled_posting_date <= $1
ORDER BY scheduled_posting_date, id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullStr(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullUUID(val uuid.UUID) any {
	if val == uuid.Nil {
		return nil
	}
	return val
}
