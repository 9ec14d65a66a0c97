package encumbrance

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/ledger/internal/ledger"
)

type memRepo struct {
	snapshots map[uuid.UUID]Snapshot
	details   map[uuid.UUID][]Detail
}

func newMemRepo() *memRepo {
	return &memRepo{
		snapshots: make(map[uuid.UUID]Snapshot),
		details:   make(map[uuid.UUID][]Detail),
	}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, (*memTx)(r))
}

func (r *memRepo) LatestSnapshot(ctx context.Context, organizationID string, asOf time.Time) (*Snapshot, error) {
	var candidates []Snapshot
	for _, s := range r.snapshots {
		if s.OrganizationID != organizationID || s.SnapshotDatetime.After(asOf) {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].SnapshotDatetime.After(candidates[j].SnapshotDatetime)
	})
	latest := candidates[0]
	return &latest, nil
}

func (r *memRepo) SnapshotDetails(ctx context.Context, snapshotID uuid.UUID) ([]Detail, error) {
	return r.details[snapshotID], nil
}

type memTx memRepo

func (tx *memTx) InsertSnapshot(ctx context.Context, snapshot Snapshot) error {
	tx.snapshots[snapshot.ID] = snapshot
	return nil
}

func (tx *memTx) InsertDetails(ctx context.Context, details []Detail) error {
	for _, d := range details {
		tx.details[d.SnapshotID] = append(tx.details[d.SnapshotID], d)
	}
	return nil
}

type stubOrders struct {
	orders []OpenOrder
}

func (s stubOrders) OpenPurchaseOrders(ctx context.Context, organizationID string, asOf time.Time) ([]OpenOrder, error) {
	return s.orders, nil
}

type stubResolver struct {
	byProduct map[string]string
	fallback  string
}

func (s stubResolver) ResolveExpenseAccount(ctx context.Context, productID, invoiceItemTypeID, organizationID string) (string, error) {
	if accountID, ok := s.byProduct[productID]; ok {
		return accountID, nil
	}
	if s.fallback != "" {
		return s.fallback, nil
	}
	return "", ErrAccountUnresolved
}

type stubLedger struct {
	entries []ManualEntry
}

func (s stubLedger) PostedEncumbranceEntries(ctx context.Context, organizationID string, from, to time.Time) ([]ManualEntry, error) {
	return s.entries, nil
}

var snapshotMoment = time.Date(2025, time.June, 30, 18, 0, 0, 0, time.UTC)

func newTestService(repo *memRepo, orders OrderSource, accounts AccountResolver, ledgerSrc LedgerSource) *Service {
	if orders == nil {
		orders = stubOrders{}
	}
	if accounts == nil {
		accounts = stubResolver{fallback: "600000"}
	}
	if ledgerSrc == nil {
		ledgerSrc = stubLedger{}
	}
	service := NewService(repo, orders, accounts, ledgerSrc, nil, nil)
	service.WithNow(func() time.Time { return snapshotMoment })
	return service
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateSnapshotComputesEncumberedQuantity(t *testing.T) {
	repo := newMemRepo()
	orders := stubOrders{orders: []OpenOrder{{
		OrderID: "PO-1001",
		PartyID: "SUPPLIER1",
		Items: []OpenOrderItem{{
			OrderID:           "PO-1001",
			OrderItemSeqID:    "00001",
			ProductID:         "WIDGET",
			OrderedQuantity:   dec("10"),
			InvoicedQuantity:  dec("2"),
			CancelledQuantity: dec("3"),
			UnitAmount:        dec("5.00"),
		}},
	}}}

	service := newTestService(repo, orders, stubResolver{byProduct: map[string]string{"WIDGET": "610000"}}, nil)
	snapshot, err := service.CreateSnapshot(context.Background(), CreateSnapshotInput{OrganizationID: "ORG1", CreatedBy: "batch"})
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "ORG1", snapshot.OrganizationID)
	assert.Equal(t, snapshotMoment, snapshot.SnapshotDatetime)

	details := repo.details[snapshot.ID]
	require.Len(t, details, 1)
	d := details[0]
	assert.Equal(t, DetailTypePurchasing, d.Type)
	assert.Equal(t, int32(1), d.SeqID)
	assert.Equal(t, "ORG1", d.OrganizationID)
	assert.Equal(t, "610000", d.AccountID)
	// Encumbered quantity is ordered minus the larger of cancelled and invoiced.
	assert.True(t, d.EncumberedQuantity.Equal(dec("7")))
	assert.True(t, d.EncumberedAmount.Equal(dec("35.00")))
}

func TestCreateSnapshotSkipsSettledItems(t *testing.T) {
	repo := newMemRepo()
	orders := stubOrders{orders: []OpenOrder{{
		OrderID: "PO-1002",
		Items: []OpenOrderItem{
			{OrderID: "PO-1002", OrderItemSeqID: "00001", ProductID: "A", OrderedQuantity: dec("4"), InvoicedQuantity: dec("4"), UnitAmount: dec("9.00")},
			{OrderID: "PO-1002", OrderItemSeqID: "00002", ProductID: "B", OrderedQuantity: dec("4"), CancelledQuantity: dec("5"), UnitAmount: dec("9.00")},
		},
	}}}

	service := newTestService(repo, orders, nil, nil)
	snapshot, err := service.CreateSnapshot(context.Background(), CreateSnapshotInput{OrganizationID: "ORG1"})
	require.NoError(t, err)
	assert.Nil(t, snapshot)
	assert.Empty(t, repo.snapshots)
}

func TestCreateSnapshotIncludesOrderAdjustments(t *testing.T) {
	repo := newMemRepo()
	orders := stubOrders{orders: []OpenOrder{{
		OrderID:                   "PO-1003",
		PartyID:                   "SUPPLIER2",
		AdjustmentTotal:           dec("12.50"),
		AdjustmentInvoiceItemType: "PINV_SHIP",
		Items: []OpenOrderItem{{
			OrderID:         "PO-1003",
			OrderItemSeqID:  "00001",
			ProductID:       "WIDGET",
			OrderedQuantity: dec("1"),
			UnitAmount:      dec("100.00"),
		}},
	}}}

	service := newTestService(repo, orders, nil, nil)
	snapshot, err := service.CreateSnapshot(context.Background(), CreateSnapshotInput{OrganizationID: "ORG1"})
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	details := repo.details[snapshot.ID]
	require.Len(t, details, 2)
	assert.True(t, details[0].EncumberedAmount.Equal(dec("100.00")))
	adjustment := details[1]
	assert.Equal(t, DetailTypePurchasing, adjustment.Type)
	assert.Equal(t, "PO-1003", adjustment.OrderID)
	assert.Empty(t, adjustment.ProductID)
	assert.True(t, adjustment.EncumberedAmount.Equal(dec("12.50")))
	assert.Equal(t, int32(2), adjustment.SeqID)
}

func TestCreateSnapshotIncludesManualEntries(t *testing.T) {
	repo := newMemRepo()
	var tags ledger.Tags
	tags.Set(1, "DEPT_A")
	manual := stubLedger{entries: []ManualEntry{{
		TransactionID: 77,
		EntrySeqID:    1,
		AccountID:     "620000",
		PartyID:       "GRANTEE",
		Amount:        dec("250.00"),
		Tags:          tags,
	}}}

	service := newTestService(repo, nil, nil, manual)
	snapshot, err := service.CreateSnapshot(context.Background(), CreateSnapshotInput{OrganizationID: "ORG1"})
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	details := repo.details[snapshot.ID]
	require.Len(t, details, 1)
	d := details[0]
	assert.Equal(t, DetailTypeManual, d.Type)
	assert.Equal(t, int64(77), d.TransactionID)
	assert.Equal(t, int32(1), d.EntrySeqID)
	assert.Equal(t, "620000", d.AccountID)
	assert.True(t, d.EncumberedAmount.Equal(dec("250.00")))
	assert.Equal(t, "DEPT_A", d.Tags.Get(1))
}

func TestCreateSnapshotRequiresOrganization(t *testing.T) {
	service := newTestService(newMemRepo(), nil, nil, nil)
	_, err := service.CreateSnapshot(context.Background(), CreateSnapshotInput{})
	assert.ErrorIs(t, err, ErrOrganizationRequired)
}

func TestCreateSnapshotUnresolvedAccount(t *testing.T) {
	repo := newMemRepo()
	orders := stubOrders{orders: []OpenOrder{{
		OrderID: "PO-1004",
		Items: []OpenOrderItem{{
			OrderID:         "PO-1004",
			OrderItemSeqID:  "00001",
			ProductID:       "MYSTERY",
			OrderedQuantity: dec("1"),
			UnitAmount:      dec("10.00"),
		}},
	}}}

	service := newTestService(repo, orders, stubResolver{}, nil)
	_, err := service.CreateSnapshot(context.Background(), CreateSnapshotInput{OrganizationID: "ORG1"})
	assert.ErrorIs(t, err, ErrAccountUnresolved)
	assert.Empty(t, repo.snapshots)
}

func seedSnapshot(repo *memRepo, organizationID string, at time.Time, details ...Detail) uuid.UUID {
	id := uuid.New()
	repo.snapshots[id] = Snapshot{ID: id, OrganizationID: organizationID, SnapshotDatetime: at}
	for i := range details {
		details[i].SnapshotID = id
		details[i].SeqID = int32(i + 1)
		if details[i].OrganizationID == "" {
			details[i].OrganizationID = organizationID
		}
	}
	repo.details[id] = details
	return id
}

func TestGetEncumbranceDetailsSelectsLatestBeforeAsOf(t *testing.T) {
	repo := newMemRepo()
	older := snapshotMoment.Add(-48 * time.Hour)
	newer := snapshotMoment.Add(-1 * time.Hour)
	seedSnapshot(repo, "ORG1", older, Detail{Type: DetailTypePurchasing, EncumberedAmount: dec("10.00")})
	seedSnapshot(repo, "ORG1", newer, Detail{Type: DetailTypePurchasing, EncumberedAmount: dec("99.00")})

	service := newTestService(repo, nil, nil, nil)

	details, err := service.GetEncumbranceDetails(context.Background(), "ORG1", nil, snapshotMoment)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.True(t, details[0].EncumberedAmount.Equal(dec("99.00")))

	// asOf between the two snapshots resolves to the older one.
	details, err = service.GetEncumbranceDetails(context.Background(), "ORG1", nil, snapshotMoment.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.True(t, details[0].EncumberedAmount.Equal(dec("10.00")))
}

func TestGetEncumbranceDetailsNoSnapshot(t *testing.T) {
	service := newTestService(newMemRepo(), nil, nil, nil)
	details, err := service.GetEncumbranceDetails(context.Background(), "ORG1", nil, snapshotMoment)
	require.NoError(t, err)
	assert.Empty(t, details)
}

func TestGetEncumbranceDetailsTagFilter(t *testing.T) {
	repo := newMemRepo()
	var deptA, deptB ledger.Tags
	deptA.Set(1, "DEPT_A")
	deptB.Set(1, "DEPT_B")
	seedSnapshot(repo, "ORG1", snapshotMoment,
		Detail{Type: DetailTypePurchasing, EncumberedAmount: dec("10.00"), Tags: deptA},
		Detail{Type: DetailTypePurchasing, EncumberedAmount: dec("20.00"), Tags: deptB},
		Detail{Type: DetailTypeManual, EncumberedAmount: dec("30.00")},
	)

	service := newTestService(repo, nil, nil, nil)

	details, err := service.GetEncumbranceDetails(context.Background(), "ORG1", ledger.TagFilter{1: "DEPT_A"}, snapshotMoment)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.True(t, details[0].EncumberedAmount.Equal(dec("10.00")))

	// NULL_TAG selects details without a value in that dimension.
	details, err = service.GetEncumbranceDetails(context.Background(), "ORG1", ledger.TagFilter{1: ledger.TagNull}, snapshotMoment)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.True(t, details[0].EncumberedAmount.Equal(dec("30.00")))
}

func TestGetTotalEncumberedValue(t *testing.T) {
	repo := newMemRepo()
	var deptA ledger.Tags
	deptA.Set(1, "DEPT_A")
	seedSnapshot(repo, "ORG1", snapshotMoment,
		Detail{Type: DetailTypePurchasing, EncumberedAmount: dec("35.00"), Tags: deptA},
		Detail{Type: DetailTypeManual, EncumberedAmount: dec("250.00")},
	)

	service := newTestService(repo, nil, nil, nil)

	total, err := service.GetTotalEncumberedValue(context.Background(), "ORG1", nil, snapshotMoment)
	require.NoError(t, err)
	require.NotNil(t, total)
	assert.True(t, total.Equal(dec("285.00")))

	total, err = service.GetTotalEncumberedValue(context.Background(), "ORG1", ledger.TagFilter{1: "DEPT_A"}, snapshotMoment)
	require.NoError(t, err)
	require.NotNil(t, total)
	assert.True(t, total.Equal(dec("35.00")))
}

func TestGetTotalEncumberedValueNoSnapshot(t *testing.T) {
	service := newTestService(newMemRepo(), nil, nil, nil)
	total, err := service.GetTotalEncumberedValue(context.Background(), "ORG2", nil, snapshotMoment)
	require.NoError(t, err)
	assert.Nil(t, total)
}
