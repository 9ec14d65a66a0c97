package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountClass enumerates chart-of-accounts categories.
type AccountClass string

const (
	AccountClassAsset     AccountClass = "ASSET"
	AccountClassLiability AccountClass = "LIABILITY"
	AccountClassEquity    AccountClass = "EQUITY"
	AccountClassRevenue   AccountClass = "REVENUE"
	AccountClassExpense   AccountClass = "EXPENSE"
)

// DebitCreditFlag marks which side of the ledger an entry lands on.
type DebitCreditFlag string

const (
	FlagDebit  DebitCreditFlag = "D"
	FlagCredit DebitCreditFlag = "C"
)

// FiscalType classifies a transaction; only ACTUAL mutates running balances.
type FiscalType string

const (
	FiscalTypeActual      FiscalType = "ACTUAL"
	FiscalTypeBudget      FiscalType = "BUDGET"
	FiscalTypeEncumbrance FiscalType = "ENCUMBRANCE"
)

// TransactionType identifies the business event behind a transaction.
type TransactionType string

const (
	TransactionTypeInternal          TransactionType = "INTERNAL"
	TransactionTypeInvoiceAdjustment TransactionType = "INVOICE_ADJUSTMENT"
	TransactionTypeInventoryVariance TransactionType = "INVENTORY_VARIANCE"
	TransactionTypeTransfer          TransactionType = "TRANSFER"
	TransactionTypeManualEncumbrance TransactionType = "MANUAL_ENCUMBRANCE"
)

// ReconciliationStatus tracks bank/period reconciliation of an entry.
type ReconciliationStatus string

const (
	ReconciliationNone ReconciliationStatus = "NOT_RECONCILED"
	ReconciliationDone ReconciliationStatus = "RECONCILED"
)

// EntryTypeNA marks entries with no applicable entry subtype.
const EntryTypeNA = "_NA_"

// Account models a chart of accounts node. Immutable reference data.
type Account struct {
	ID            string
	Name          string
	Class         AccountClass
	NormalBalance DebitCreditFlag
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Period represents a fiscal period window for an organization.
type Period struct {
	ID             int64
	OrganizationID string
	Code           string
	StartDate      time.Time
	EndDate        time.Time
	IsClosed       bool
	ClosedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is an accounting transaction header. It transitions from
// unposted to posted exactly once and is never mutated afterwards.
type Transaction struct {
	ID                   int64
	Type                 TransactionType
	FiscalType           FiscalType
	TransactionDate      time.Time
	ScheduledPostingDate *time.Time
	IsPosted             bool
	PostedDate           *time.Time
	PostedAmount         *decimal.Decimal
	Description          string
	PartyID              string
	SourceModule         string
	SourceID             uuid.UUID
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Entries              []Entry
}

// Entry is a single debit or credit line. Immutable once its parent
// transaction is posted.
type Entry struct {
	TransactionID     int64
	SeqID             int32
	EntryType         string
	AccountID         string
	OrganizationID    string
	Flag              DebitCreditFlag
	Amount            decimal.Decimal
	CurrencyUomID     string
	OrigAmount        decimal.Decimal
	OrigCurrencyUomID string
	Tags              Tags
	Reconciliation    ReconciliationStatus
	Description       string
	PartyID           string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AccountBalance is the running posted balance of an account for an
// organization, kept in the account's natural sign. Accumulate-only.
type AccountBalance struct {
	AccountID      string
	OrganizationID string
	PostedBalance  decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AccountHistory accumulates posted debits and credits per fiscal period.
// Rows are only ever increased; corrections arrive as new transactions.
type AccountHistory struct {
	AccountID      string
	OrganizationID string
	PeriodID       int64
	PostedDebits   decimal.Decimal
	PostedCredits  decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var (
	// ErrTransactionNotFound indicates a missing transaction.
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	// ErrAccountNotFound indicates a missing GL account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrAlreadyPosted indicates an attempt to re-post a posted transaction.
	ErrAlreadyPosted = errors.New("ledger: transaction already posted")
	// ErrScheduledNotDue indicates the scheduled posting date is in the future.
	ErrScheduledNotDue = errors.New("ledger: scheduled posting date not reached")
	// ErrNoOpenPeriod indicates no fiscal period is open for the transaction date.
	ErrNoOpenPeriod = errors.New("ledger: no open time period for transaction date")
	// ErrPeriodClosed indicates a resolved fiscal period is closed.
	ErrPeriodClosed = errors.New("ledger: time period is closed")
	// ErrTooFewEntries indicates less than two entries.
	ErrTooFewEntries = errors.New("ledger: transaction requires at least two entries")
	// ErrSourceAlreadyLinked indicates a duplicate source document reference.
	ErrSourceAlreadyLinked = errors.New("ledger: source document already linked to a transaction")
)

// TrialBalanceError reports that total debits and credits diverge.
type TrialBalanceError struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

func (e *TrialBalanceError) Error() string {
	return fmt.Sprintf("ledger: trial balance failed: debits %s != credits %s", e.Debits, e.Credits)
}

// TagBalanceError reports the first accounting dimension value whose
// restricted debit/credit totals do not balance.
type TagBalanceError struct {
	Dimension int
	Value     string
	Debits    decimal.Decimal
	Credits   decimal.Decimal
}

func (e *TagBalanceError) Error() string {
	return fmt.Sprintf("ledger: tag balance failed: dimension %d value %q: debits %s != credits %s",
		e.Dimension, e.Value, e.Debits, e.Credits)
}
