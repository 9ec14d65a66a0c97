package facts

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/ledger/internal/ledger"
)

// RepositoryPort abstracts transactional fact persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations of one rebuild transaction.
type TxRepository interface {
	DeleteAllFacts(ctx context.Context) error
	PostedEntries(ctx context.Context) ([]PostedEntry, error)
	CurrentSnapshotDetails(ctx context.Context) ([]SnapshotDetail, error)
	InsertFacts(ctx context.Context, facts []Fact) error
}

// Builder rebuilds the reporting fact table from scratch. The whole refresh
// runs inside one transaction, so an aborted run leaves the previous facts
// in place and a re-run starts clean.
type Builder struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder constructs the fact builder.
func NewBuilder(repo RepositoryPort, logger *slog.Logger) *Builder {
	return &Builder{repo: repo, logger: logger, now: time.Now}
}

// Rebuild deletes all facts and regenerates them from posted ACTUAL/BUDGET
// entries and each organization's latest encumbrance snapshot.
func (b *Builder) Rebuild(ctx context.Context) (RebuildStats, error) {
	started := b.now()
	var stats RebuildStats
	err := b.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteAllFacts(ctx); err != nil {
			return err
		}
		entries, err := tx.PostedEntries(ctx)
		if err != nil {
			return err
		}
		facts := make([]Fact, 0, len(entries))
		for _, e := range entries {
			e := e
			facts = append(facts, Fact{
				TransactionID:  &e.TransactionID,
				EntrySeqID:     &e.EntrySeqID,
				OrganizationID: e.OrganizationID,
				AccountID:      e.AccountID,
				FiscalType:     e.FiscalType,
				FactDate:       e.TransactionDate,
				Amount:         signedNet(e),
				Tags:           e.Tags,
			})
		}
		stats.TransactionFacts = len(facts)
		details, err := tx.CurrentSnapshotDetails(ctx)
		if err != nil {
			return err
		}
		for _, d := range details {
			d := d
			facts = append(facts, Fact{
				SnapshotID:       &d.SnapshotID,
				DetailSeqID:      &d.DetailSeqID,
				OrganizationID:   d.OrganizationID,
				AccountID:        d.AccountID,
				FiscalType:       ledger.FiscalTypeEncumbrance,
				FactDate:         d.SnapshotDatetime,
				EncumberedAmount: d.EncumberedAmount,
				Tags:             d.Tags,
			})
		}
		stats.EncumbranceFacts = len(facts) - stats.TransactionFacts
		return tx.InsertFacts(ctx, facts)
	})
	if err != nil {
		return RebuildStats{}, err
	}
	if b.logger != nil {
		b.logger.Info("fact table rebuilt",
			slog.Int("transaction_facts", stats.TransactionFacts),
			slog.Int("encumbrance_facts", stats.EncumbranceFacts),
			slog.Duration("took", b.now().Sub(started)))
	}
	return stats, nil
}

// signedNet re-signs the entry amount so balances sum directly: debit-normal
// accounts count debits positive, credit-normal accounts count credits
// positive.
func signedNet(e PostedEntry) decimal.Decimal {
	if (e.NormalBalance == ledger.FlagDebit) == (e.Flag == ledger.FlagDebit) {
		return e.Amount
	}
	return e.Amount.Neg()
}
