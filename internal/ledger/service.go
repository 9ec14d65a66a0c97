package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/ledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside one posting
// transaction boundary.
type TxRepository interface {
	InsertTransaction(ctx context.Context, txn Transaction) (int64, error)
	InsertEntries(ctx context.Context, transactionID int64, entries []Entry) error
	GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error)
	GetTransactionEntries(ctx context.Context, id int64) ([]Entry, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
	FindOpenPeriods(ctx context.Context, organizationID string, date time.Time) ([]Period, error)
	AddToBalance(ctx context.Context, accountID, organizationID string, delta decimal.Decimal) error
	AddToHistory(ctx context.Context, accountID, organizationID string, periodID int64, debits, credits decimal.Decimal) error
	MarkPosted(ctx context.Context, id int64, postedDate time.Time, postedAmount decimal.Decimal) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CurrencyConverter translates entry amounts into an organization's base
// currency. Supplied by the organization subsystem; a nil converter leaves
// amounts untouched.
type CurrencyConverter interface {
	BaseCurrency(ctx context.Context, organizationID string) (string, error)
	Convert(ctx context.Context, amount decimal.Decimal, fromUom, toUom string, asOf time.Time) (decimal.Decimal, error)
}

// Service builds and posts accounting transactions.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	spec      *Specification
	converter CurrencyConverter
	validate  *validator.Validate
	now       func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, spec *Specification, converter CurrencyConverter) *Service {
	if spec == nil {
		spec = DefaultSpecification()
	}
	return &Service{
		repo:      repo,
		audit:     audit,
		spec:      spec,
		converter: converter,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostOptions tunes a single posting attempt.
type PostOptions struct {
	// SkipTagBalanceCheck disables the per-dimension balance check. This is
	// an escape hatch reserved for legacy data migration; the trial balance
	// check always runs, and every skip is written to the audit log.
	SkipTagBalanceCheck bool
}

// CreateSimpleTransactionInput describes a balanced two-line transaction.
// Amount is taken as-is; the caller supplies a non-negative magnitude.
type CreateSimpleTransactionInput struct {
	Type                 TransactionType `validate:"required"`
	FiscalType           FiscalType
	OrganizationID       string `validate:"required"`
	DebitAccountID       string `validate:"required"`
	CreditAccountID      string `validate:"required"`
	Amount               decimal.Decimal
	CurrencyUomID        string
	PartyID              string
	TransactionDate      *time.Time
	ScheduledPostingDate *time.Time
	Description          string
	SourceModule         string
	SourceID             uuid.UUID
	Tags                 Tags
}

// EntryInput describes one line of a multi-line transaction.
type EntryInput struct {
	AccountID      string          `validate:"required"`
	OrganizationID string          `validate:"required"`
	Flag           DebitCreditFlag `validate:"required,oneof=D C"`
	Amount         decimal.Decimal
	CurrencyUomID  string
	Tags           Tags
	Description    string
	PartyID        string
}

// TransactionInput groups fields required to create a multi-line transaction.
type TransactionInput struct {
	Type                 TransactionType `validate:"required"`
	FiscalType           FiscalType
	TransactionDate      *time.Time
	ScheduledPostingDate *time.Time
	Description          string
	PartyID              string
	SourceModule         string
	SourceID             uuid.UUID
	Entries              []EntryInput `validate:"min=2,dive"`
}

// CreateSimpleTransaction persists a header with exactly one debit and one
// credit entry of equal amount, then posts it when the transaction type is
// configured to auto-post.
func (s *Service) CreateSimpleTransaction(ctx context.Context, in CreateSimpleTransactionInput) (Transaction, error) {
	if err := s.validate.Struct(in); err != nil {
		return Transaction{}, err
	}
	input := TransactionInput{
		Type:                 in.Type,
		FiscalType:           in.FiscalType,
		TransactionDate:      in.TransactionDate,
		ScheduledPostingDate: in.ScheduledPostingDate,
		Description:          in.Description,
		PartyID:              in.PartyID,
		SourceModule:         in.SourceModule,
		SourceID:             in.SourceID,
		Entries: []EntryInput{
			{
				AccountID:      in.DebitAccountID,
				OrganizationID: in.OrganizationID,
				Flag:           FlagDebit,
				Amount:         in.Amount,
				CurrencyUomID:  in.CurrencyUomID,
				Tags:           in.Tags,
				PartyID:        in.PartyID,
			},
			{
				AccountID:      in.CreditAccountID,
				OrganizationID: in.OrganizationID,
				Flag:           FlagCredit,
				Amount:         in.Amount,
				CurrencyUomID:  in.CurrencyUomID,
				Tags:           in.Tags,
				PartyID:        in.PartyID,
			},
		},
	}
	return s.createTransaction(ctx, input, false)
}

// CreateTransaction persists a caller-supplied multi-line transaction.
// Sequence ids are assigned densely starting at 1 regardless of input order.
func (s *Service) CreateTransaction(ctx context.Context, in TransactionInput) (Transaction, error) {
	return s.createTransaction(ctx, in, true)
}

func (s *Service) createTransaction(ctx context.Context, in TransactionInput, checkAmounts bool) (Transaction, error) {
	if err := s.validate.Struct(in); err != nil {
		return Transaction{}, err
	}
	if checkAmounts {
		for idx, line := range in.Entries {
			if line.Amount.IsNegative() {
				return Transaction{}, fmt.Errorf("ledger: entry %d negative amount", idx)
			}
		}
	}
	now := s.now()
	fiscal := in.FiscalType
	if fiscal == "" {
		fiscal = s.spec.DefaultFiscalType()
	}
	date := now
	if in.TransactionDate != nil {
		date = *in.TransactionDate
	}
	txn := Transaction{
		Type:                 in.Type,
		FiscalType:           fiscal,
		TransactionDate:      date,
		ScheduledPostingDate: in.ScheduledPostingDate,
		Description:          in.Description,
		PartyID:              in.PartyID,
		SourceModule:         in.SourceModule,
		SourceID:             in.SourceID,
	}
	entries := make([]Entry, 0, len(in.Entries))
	for idx, line := range in.Entries {
		entry := Entry{
			SeqID:          int32(idx + 1),
			EntryType:      EntryTypeNA,
			AccountID:      line.AccountID,
			OrganizationID: line.OrganizationID,
			Flag:           line.Flag,
			Amount:         line.Amount,
			CurrencyUomID:  line.CurrencyUomID,
			Tags:           line.Tags,
			Reconciliation: ReconciliationNone,
			Description:    line.Description,
			PartyID:        line.PartyID,
		}
		converted, err := s.convertEntry(ctx, entry, date)
		if err != nil {
			return Transaction{}, err
		}
		entries = append(entries, converted)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertTransaction(ctx, txn)
		if err != nil {
			return err
		}
		if err := tx.InsertEntries(ctx, id, entries); err != nil {
			return err
		}
		txn.ID = id
		for i := range entries {
			entries[i].TransactionID = id
		}
		if s.spec.AutoPosts(in.Type) {
			posted, err := s.postInTx(ctx, tx, id, PostOptions{})
			if err != nil {
				return err
			}
			txn.IsPosted = posted.IsPosted
			txn.PostedDate = posted.PostedDate
			txn.PostedAmount = posted.PostedAmount
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	txn.Entries = entries
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.PartyID,
			Action:   "transaction.create",
			Entity:   "acctg_trans",
			EntityID: fmt.Sprintf("%d", txn.ID),
			Meta: map[string]any{
				"type":        string(in.Type),
				"fiscal_type": string(fiscal),
				"auto_posted": txn.IsPosted,
			},
			At: s.now(),
		})
	}
	return txn, nil
}

func (s *Service) convertEntry(ctx context.Context, entry Entry, asOf time.Time) (Entry, error) {
	entry.OrigAmount = entry.Amount
	entry.OrigCurrencyUomID = entry.CurrencyUomID
	if s.converter == nil || entry.CurrencyUomID == "" {
		return entry, nil
	}
	base, err := s.converter.BaseCurrency(ctx, entry.OrganizationID)
	if err != nil {
		return Entry{}, err
	}
	if base == "" || base == entry.CurrencyUomID {
		return entry, nil
	}
	converted, err := s.converter.Convert(ctx, entry.Amount, entry.CurrencyUomID, base, asOf)
	if err != nil {
		return Entry{}, err
	}
	entry.Amount = converted
	entry.CurrencyUomID = base
	return entry, nil
}

// Post validates the transaction and transitions it to posted, updating
// account balances and period history for ACTUAL transactions. The whole
// sequence runs inside one repository transaction and either fully commits
// or fully rolls back.
func (s *Service) Post(ctx context.Context, transactionID int64, opts PostOptions) (Transaction, error) {
	var posted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		posted, err = s.postInTx(ctx, tx, transactionID, opts)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    posted.PartyID,
			Action:   "transaction.post",
			Entity:   "acctg_trans",
			EntityID: fmt.Sprintf("%d", posted.ID),
			Meta: map[string]any{
				"fiscal_type":      string(posted.FiscalType),
				"posted_amount":    posted.PostedAmount.String(),
				"skip_tag_balance": opts.SkipTagBalanceCheck,
			},
			At: s.now(),
		})
	}
	return posted, nil
}

func (s *Service) postInTx(ctx context.Context, tx TxRepository, id int64, opts PostOptions) (Transaction, error) {
	txn, err := tx.GetTransactionForUpdate(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if s.spec.IsPosted(txn) {
		return Transaction{}, ErrAlreadyPosted
	}
	now := s.now()
	if txn.ScheduledPostingDate != nil && txn.ScheduledPostingDate.After(now) {
		return Transaction{}, ErrScheduledNotDue
	}
	entries, err := tx.GetTransactionEntries(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if len(entries) < 2 {
		return Transaction{}, ErrTooFewEntries
	}
	debits, credits := s.totals(entries)
	if !debits.Equal(credits) {
		return Transaction{}, &TrialBalanceError{Debits: debits, Credits: credits}
	}
	if !opts.SkipTagBalanceCheck {
		if err := s.checkTagBalance(entries); err != nil {
			return Transaction{}, err
		}
	}
	if txn.FiscalType == FiscalTypeActual {
		if err := s.applyToLedger(ctx, tx, txn, entries); err != nil {
			return Transaction{}, err
		}
	}
	postedDate := now
	if txn.PostedDate != nil {
		postedDate = *txn.PostedDate
	}
	if err := tx.MarkPosted(ctx, id, postedDate, debits); err != nil {
		return Transaction{}, err
	}
	txn.IsPosted = true
	txn.PostedDate = &postedDate
	txn.PostedAmount = &debits
	txn.Entries = entries
	return txn, nil
}

func (s *Service) totals(entries []Entry) (debits, credits decimal.Decimal) {
	for _, e := range entries {
		if s.spec.IsDebit(e) {
			debits = debits.Add(e.Amount)
		} else {
			credits = credits.Add(e.Amount)
		}
	}
	return debits, credits
}

// checkTagBalance verifies that debits and credits balance within every
// non-empty value of every dimension. Dimensions are checked 1..TagDimensions
// in order and the first unbalanced value wins.
func (s *Service) checkTagBalance(entries []Entry) error {
	type sums struct {
		debits  decimal.Decimal
		credits decimal.Decimal
	}
	for dim := 1; dim <= TagDimensions; dim++ {
		totals := make(map[string]*sums)
		for _, e := range entries {
			value := e.Tags.Get(dim)
			if value == "" {
				continue
			}
			t := totals[value]
			if t == nil {
				t = &sums{}
				totals[value] = t
			}
			if s.spec.IsDebit(e) {
				t.debits = t.debits.Add(e.Amount)
			} else {
				t.credits = t.credits.Add(e.Amount)
			}
		}
		values := make([]string, 0, len(totals))
		for value := range totals {
			values = append(values, value)
		}
		sort.Strings(values)
		for _, value := range values {
			t := totals[value]
			if !t.debits.Equal(t.credits) {
				return &TagBalanceError{Dimension: dim, Value: value, Debits: t.debits, Credits: t.credits}
			}
		}
	}
	return nil
}

type accountGroup struct {
	accountID      string
	organizationID string
	debits         decimal.Decimal
	credits        decimal.Decimal
}

func (s *Service) applyToLedger(ctx context.Context, tx TxRepository, txn Transaction, entries []Entry) error {
	groups := make(map[string]*accountGroup)
	for _, e := range entries {
		key := e.AccountID + "\x00" + e.OrganizationID
		g := groups[key]
		if g == nil {
			g = &accountGroup{accountID: e.AccountID, organizationID: e.OrganizationID}
			groups[key] = g
		}
		if s.spec.IsDebit(e) {
			g.debits = g.debits.Add(e.Amount)
		} else {
			g.credits = g.credits.Add(e.Amount)
		}
	}
	// Sorted account order gives a deterministic lock order across
	// concurrently posting transactions.
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		g := groups[key]
		account, err := tx.GetAccount(ctx, g.accountID)
		if err != nil {
			return err
		}
		periods, err := tx.FindOpenPeriods(ctx, g.organizationID, txn.TransactionDate)
		if err != nil {
			return err
		}
		if len(periods) == 0 {
			return ErrNoOpenPeriod
		}
		for _, p := range periods {
			if s.spec.IsClosed(p) {
				return ErrPeriodClosed
			}
		}
		delta := g.debits.Sub(g.credits)
		if account.NormalBalance == FlagCredit {
			delta = g.credits.Sub(g.debits)
		}
		if err := tx.AddToBalance(ctx, g.accountID, g.organizationID, delta); err != nil {
			return err
		}
		for _, p := range periods {
			if err := tx.AddToHistory(ctx, g.accountID, g.organizationID, p.ID, g.debits, g.credits); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetTransaction loads a transaction and its entries.
func (s *Service) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		loaded, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		entries, err := tx.GetTransactionEntries(ctx, id)
		if err != nil {
			return err
		}
		loaded.Entries = entries
		txn = loaded
		return nil
	})
	return txn, err
}
