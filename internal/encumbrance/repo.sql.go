package encumbrance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/ledger/internal/ledger"
	"github.com/meridian-erp/ledger/internal/platform/db"
)

// Repository persists encumbrance snapshots.
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
		return errors.New("encumbrance repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) InsertSnapshot(ctx context.Context, snapshot Snapshot) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO encumbrance_snapshots (id, organization_id, snapshot_datetime, created_by, comments, description)
VALUES ($1,$2,$3,$4,$5,$6)`,
		snapshot.ID, snapshot.OrganizationID, snapshot.SnapshotDatetime,
		nullStr(snapshot.CreatedBy), nullStr(snapshot.Comments), nullStr(snapshot.Description))
	return err
}

func (r *txRepository) InsertDetails(ctx context.Context, details []Detail) error {
	for _, d := range details {
		if _, err := r.tx.Exec(ctx, `INSERT INTO encumbrance_details (snapshot_id, seq_id, detail_type, organization_id, party_id, order_id, order_item_seq_id, acctg_trans_id, entry_seq_id, product_id, ordered_quantity, invoiced_quantity, cancelled_quantity, encumbered_quantity, unit_amount, encumbered_amount, gl_account_id, tag1, tag2, tag3, tag4, tag5, tag6, tag7, tag8, tag9, tag10)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)`,
			d.SnapshotID, d.SeqID, d.Type, d.OrganizationID, nullStr(d.PartyID),
			nullStr(d.OrderID), nullStr(d.OrderItemSeqID), nullInt64(d.TransactionID), nullInt32(d.EntrySeqID),
			nullStr(d.ProductID), d.OrderedQuantity, d.InvoicedQuantity, d.CancelledQuantity,
			d.EncumberedQuantity, d.UnitAmount, d.EncumberedAmount, d.AccountID,
			nullStr(d.Tags[0]), nullStr(d.Tags[1]), nullStr(d.Tags[2]), nullStr(d.Tags[3]), nullStr(d.Tags[4]),
			nullStr(d.Tags[5]), nullStr(d.Tags[6]), nullStr(d.Tags[7]), nullStr(d.Tags[8]), nullStr(d.Tags[9])); err != nil {
			return err
		}
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot taken at or before asOf,
// or nil when none exists.
func (r *Repository) LatestSnapshot(ctx context.Context, organizationID string, asOf time.Time) (*Snapshot, error) {
	var s Snapshot
	err := r.pool.QueryRow(ctx, `SELECT id, organization_id, snapshot_datetime, COALESCE(created_by,''), COALESCE(comments,''), COALESCE(description,''), created_at
FROM encumbrance_snapshots WHERE organization_id=$1 AND snapshot_datetime <= $2
ORDER BY snapshot_datetime DESC LIMIT 1`, organizationID, asOf).
		Scan(&s.ID, &s.OrganizationID, &s.SnapshotDatetime, &s.CreatedBy, &s.Comments, &s.Description, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// SnapshotDetails loads all details of a snapshot in sequence order.
func (r *Repository) SnapshotDetails(ctx context.Context, snapshotID uuid.UUID) ([]Detail, error) {
	rows, err := r.pool.Query(ctx, `SELECT snapshot_id, seq_id, detail_type, organization_id, COALESCE(party_id,''), COALESCE(order_id,''), COALESCE(order_item_seq_id,''), COALESCE(acctg_trans_id,0), COALESCE(entry_seq_id,0), COALESCE(product_id,''), ordered_quantity, invoiced_quantity, cancelled_quantity, encumbered_quantity, unit_amount, encumbered_amount, gl_account_id,
COALESCE(tag1,''), COALESCE(tag2,''), COALESCE(tag3,''), COALESCE(tag4,''), COALESCE(tag5,''), COALESCE(tag6,''), COALESCE(tag7,''), COALESCE(tag8,''), COALESCE(tag9,''), COALESCE(tag10,''), created_at
FROM encumbrance_details WHERE snapshot_id=$1 ORDER BY seq_id ASC`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var details []Detail
	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.SnapshotID, &d.SeqID, &d.Type, &d.OrganizationID, &d.PartyID,
			&d.OrderID, &d.OrderItemSeqID, &d.TransactionID, &d.EntrySeqID, &d.ProductID,
			&d.OrderedQuantity, &d.InvoicedQuantity, &d.CancelledQuantity, &d.EncumberedQuantity,
			&d.UnitAmount, &d.EncumberedAmount, &d.AccountID,
			&d.Tags[0], &d.Tags[1], &d.Tags[2], &d.Tags[3], &d.Tags[4],
			&d.Tags[5], &d.Tags[6], &d.Tags[7], &d.Tags[8], &d.Tags[9],
			&d.CreatedAt); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// LedgerRepository reads posted encumbrance-fiscal expense entries from the
// ledger tables.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository constructs LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// PostedEncumbranceEntries lists expense-account entries of posted
// encumbrance-fiscal transactions dated within [from, to].
func (r *LedgerRepository) PostedEncumbranceEntries(ctx context.Context, organizationID string, from, to time.Time) ([]ManualEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.acctg_trans_id, e.seq_id, e.gl_account_id, COALESCE(e.party_id,''), e.amount,
COALESCE(e.tag1,''), COALESCE(e.tag2,''), COALESCE(e.tag3,''), COALESCE(e.tag4,''), COALESCE(e.tag5,''), COALESCE(e.tag6,''), COALESCE(e.tag7,''), COALESCE(e.tag8,''), COALESCE(e.tag9,''), COALESCE(e.tag10,'')
FROM acctg_trans_entries e
JOIN acctg_trans t ON t.id = e.acctg_trans_id
JOIN gl_accounts a ON a.id = e.gl_account_id
WHERE e.organization_id = $1
  AND t.is_posted = 'Y'
  AND t.fiscal_type = $2
  AND t.transaction_date BETWEEN $3 AND $4
  AND a.class = $5
ORDER BY e.acctg_trans_id, e.seq_id`, organizationID, ledger.FiscalTypeEncumbrance, from, to, ledger.AccountClassExpense)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []ManualEntry
	for rows.Next() {
		var e ManualEntry
		if err := rows.Scan(&e.TransactionID, &e.EntrySeqID, &e.AccountID, &e.PartyID, &e.Amount,
			&e.Tags[0], &e.Tags[1], &e.Tags[2], &e.Tags[3], &e.Tags[4],
			&e.Tags[5], &e.Tags[6], &e.Tags[7], &e.Tags[8], &e.Tags[9]); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MappingRepository resolves GL expense accounts from purchase configuration.
type MappingRepository struct {
	pool *pgxpool.Pool
}

// NewMappingRepository constructs MappingRepository.
func NewMappingRepository(pool *pgxpool.Pool) *MappingRepository {
	return &MappingRepository{pool: pool}
}

// ResolveExpenseAccount resolves by priority: product mapping, invoice item
// type mapping for the organization, invoice item type default account.
func (r *MappingRepository) ResolveExpenseAccount(ctx context.Context, productID, invoiceItemTypeID, organizationID string) (string, error) {
	var accountID string
	if productID != "" {
		err := r.pool.QueryRow(ctx, `SELECT gl_account_id FROM product_gl_accounts
WHERE product_id=$1 AND organization_id=$2`, productID, organizationID).Scan(&accountID)
		if err == nil {
			return accountID, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
	}
	if invoiceItemTypeID != "" {
		err := r.pool.QueryRow(ctx, `SELECT gl_account_id FROM invoice_item_type_gl_accounts
WHERE invoice_item_type_id=$1 AND organization_id=$2`, invoiceItemTypeID, organizationID).Scan(&accountID)
		if err == nil {
			return accountID, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
		err = r.pool.QueryRow(ctx, `SELECT default_gl_account_id FROM invoice_item_types
WHERE id=$1 AND default_gl_account_id IS NOT NULL`, invoiceItemTypeID).Scan(&accountID)
		if err == nil {
			return accountID, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
	}
	return "", ErrAccountUnresolved
}

func nullStr(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullInt32(val int32) any {
	if val == 0 {
		return nil
	}
	return val
}
