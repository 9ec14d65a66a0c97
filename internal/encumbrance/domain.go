package encumbrance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/ledger/internal/ledger"
)

// DetailType distinguishes where an encumbered amount came from.
type DetailType string

const (
	// DetailTypePurchasing covers open purchase order commitments.
	DetailTypePurchasing DetailType = "PURCHASING"
	// DetailTypeManual covers posted encumbrance-fiscal ledger entries.
	DetailTypeManual DetailType = "MANUAL"
)

// Snapshot is an immutable point-in-time header for a set of details.
type Snapshot struct {
	ID               uuid.UUID
	OrganizationID   string
	SnapshotDatetime time.Time
	CreatedBy        string
	Comments         string
	Description      string
	CreatedAt        time.Time
}

// Detail is one encumbered line within a snapshot. Immutable once created.
type Detail struct {
	SnapshotID         uuid.UUID
	SeqID              int32
	Type               DetailType
	OrganizationID     string
	PartyID            string
	OrderID            string
	OrderItemSeqID     string
	TransactionID      int64
	EntrySeqID         int32
	ProductID          string
	OrderedQuantity    decimal.Decimal
	InvoicedQuantity   decimal.Decimal
	CancelledQuantity  decimal.Decimal
	EncumberedQuantity decimal.Decimal
	UnitAmount         decimal.Decimal
	EncumberedAmount   decimal.Decimal
	AccountID          string
	Tags               ledger.Tags
	CreatedAt          time.Time
}

// OpenOrderItem is a still-open purchase order line supplied by the order
// subsystem.
type OpenOrderItem struct {
	OrderID           string
	OrderItemSeqID    string
	ProductID         string
	InvoiceItemTypeID string
	OrderedQuantity   decimal.Decimal
	CancelledQuantity decimal.Decimal
	InvoicedQuantity  decimal.Decimal
	UnitAmount        decimal.Decimal
	Tags              ledger.Tags
}

// OpenOrder is an open purchase order with its open items and any
// order-level (non-item) adjustment value.
type OpenOrder struct {
	OrderID                   string
	PartyID                   string
	AdjustmentTotal           decimal.Decimal
	AdjustmentInvoiceItemType string
	Items                     []OpenOrderItem
}

// ManualEntry is an expense-account entry of a posted encumbrance-fiscal
// transaction.
type ManualEntry struct {
	TransactionID int64
	EntrySeqID    int32
	AccountID     string
	PartyID       string
	Amount        decimal.Decimal
	Tags          ledger.Tags
}

// OrderSource lists open purchase orders; supplied by the order subsystem.
type OrderSource interface {
	OpenPurchaseOrders(ctx context.Context, organizationID string, asOf time.Time) ([]OpenOrder, error)
}

// AccountResolver maps a purchase line to a GL expense account by priority:
// product mapping, invoice-item-type mapping for the organization, then the
// invoice-item-type default.
type AccountResolver interface {
	ResolveExpenseAccount(ctx context.Context, productID, invoiceItemTypeID, organizationID string) (string, error)
}

// LedgerSource reads posted encumbrance-fiscal expense entries in a range.
type LedgerSource interface {
	PostedEncumbranceEntries(ctx context.Context, organizationID string, from, to time.Time) ([]ManualEntry, error)
}

var (
	// ErrOrganizationRequired indicates a missing organization id.
	ErrOrganizationRequired = errors.New("encumbrance: organization required")
	// ErrAccountUnresolved indicates no GL mapping matched a purchase line.
	ErrAccountUnresolved = errors.New("encumbrance: expense account unresolved")
)
