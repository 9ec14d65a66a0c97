package facts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/ledger/internal/ledger"
)

type memRepo struct {
	entries []PostedEntry
	details []SnapshotDetail
	facts   []Fact
	deletes int
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, (*memTx)(r))
}

type memTx memRepo

func (tx *memTx) DeleteAllFacts(ctx context.Context) error {
	tx.facts = nil
	tx.deletes++
	return nil
}

func (tx *memTx) PostedEntries(ctx context.Context) ([]PostedEntry, error) {
	return tx.entries, nil
}

func (tx *memTx) CurrentSnapshotDetails(ctx context.Context) ([]SnapshotDetail, error) {
	return tx.details, nil
}

func (tx *memTx) InsertFacts(ctx context.Context, facts []Fact) error {
	tx.facts = append(tx.facts, facts...)
	return nil
}

var factDate = time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func postedEntry(seq int32, accountID string, flag, normal ledger.DebitCreditFlag, amount string) PostedEntry {
	return PostedEntry{
		TransactionID:   1,
		EntrySeqID:      seq,
		AccountID:       accountID,
		OrganizationID:  "ORG1",
		FiscalType:      ledger.FiscalTypeActual,
		TransactionDate: factDate,
		Flag:            flag,
		Amount:          dec(amount),
		NormalBalance:   normal,
	}
}

func TestRebuildSignsAmountsByNormalSide(t *testing.T) {
	repo := &memRepo{entries: []PostedEntry{
		postedEntry(1, "140000", ledger.FlagDebit, ledger.FlagDebit, "100.00"),
		postedEntry(2, "140000", ledger.FlagCredit, ledger.FlagDebit, "40.00"),
		postedEntry(3, "210000", ledger.FlagCredit, ledger.FlagCredit, "100.00"),
		postedEntry(4, "210000", ledger.FlagDebit, ledger.FlagCredit, "40.00"),
	}}

	builder := NewBuilder(repo, nil)
	stats, err := builder.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TransactionFacts)
	assert.Equal(t, 0, stats.EncumbranceFacts)

	require.Len(t, repo.facts, 4)
	assert.True(t, repo.facts[0].Amount.Equal(dec("100.00")))
	assert.True(t, repo.facts[1].Amount.Equal(dec("-40.00")))
	assert.True(t, repo.facts[2].Amount.Equal(dec("100.00")))
	assert.True(t, repo.facts[3].Amount.Equal(dec("-40.00")))
	for _, f := range repo.facts {
		require.NotNil(t, f.TransactionID)
		assert.Equal(t, int64(1), *f.TransactionID)
		assert.True(t, f.EncumberedAmount.IsZero())
	}
}

func TestRebuildIncludesEncumbranceRows(t *testing.T) {
	snapshotID := uuid.New()
	var tags ledger.Tags
	tags.Set(1, "DEPT_A")
	repo := &memRepo{details: []SnapshotDetail{{
		SnapshotID:       snapshotID,
		DetailSeqID:      1,
		OrganizationID:   "ORG1",
		AccountID:        "610000",
		SnapshotDatetime: factDate,
		EncumberedAmount: dec("35.00"),
		Tags:             tags,
	}}}

	builder := NewBuilder(repo, nil)
	stats, err := builder.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TransactionFacts)
	assert.Equal(t, 1, stats.EncumbranceFacts)

	require.Len(t, repo.facts, 1)
	f := repo.facts[0]
	require.NotNil(t, f.SnapshotID)
	assert.Equal(t, snapshotID, *f.SnapshotID)
	assert.Nil(t, f.TransactionID)
	assert.Equal(t, ledger.FiscalTypeEncumbrance, f.FiscalType)
	assert.True(t, f.Amount.IsZero())
	assert.True(t, f.EncumberedAmount.Equal(dec("35.00")))
	assert.Equal(t, "DEPT_A", f.Tags.Get(1))
}

func TestRebuildStartsClean(t *testing.T) {
	repo := &memRepo{
		facts:   []Fact{{OrganizationID: "STALE"}},
		entries: []PostedEntry{postedEntry(1, "140000", ledger.FlagDebit, ledger.FlagDebit, "10.00")},
	}

	builder := NewBuilder(repo, nil)
	_, err := builder.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, repo.deletes)
	require.Len(t, repo.facts, 1)
	assert.Equal(t, "ORG1", repo.facts[0].OrganizationID)
}
