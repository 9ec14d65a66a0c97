package facts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/ledger/internal/ledger"
)

// Fact is one denormalized reporting row. Posted ACTUAL/BUDGET entries fill
// the signed Amount columns; encumbrance snapshot details fill only the
// encumbered column.
type Fact struct {
	ID               int64
	TransactionID    *int64
	EntrySeqID       *int32
	SnapshotID       *uuid.UUID
	DetailSeqID      *int32
	OrganizationID   string
	AccountID        string
	FiscalType       ledger.FiscalType
	FactDate         time.Time
	Amount           decimal.Decimal
	EncumberedAmount decimal.Decimal
	Tags             ledger.Tags
}

// PostedEntry is a joined posted-transaction entry row with the account's
// normal balance side, as read for the rebuild.
type PostedEntry struct {
	TransactionID   int64
	EntrySeqID      int32
	AccountID       string
	OrganizationID  string
	FiscalType      ledger.FiscalType
	TransactionDate time.Time
	Flag            ledger.DebitCreditFlag
	Amount          decimal.Decimal
	NormalBalance   ledger.DebitCreditFlag
	Tags            ledger.Tags
}

// SnapshotDetail is a current-snapshot detail row, one per organization's
// latest snapshot.
type SnapshotDetail struct {
	SnapshotID       uuid.UUID
	DetailSeqID      int32
	OrganizationID   string
	AccountID        string
	SnapshotDatetime time.Time
	EncumberedAmount decimal.Decimal
	Tags             ledger.Tags
}

// RebuildStats summarises one full refresh.
type RebuildStats struct {
	TransactionFacts int
	EncumbranceFacts int
}
