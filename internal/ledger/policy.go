package ledger

// Specification bundles the posting policy: side predicates, lifecycle
// predicates, the default fiscal type, and which transaction types post
// immediately after creation.
type Specification struct {
	autoPost map[TransactionType]bool
}

// DefaultSpecification returns the stock policy. Invoice adjustments and
// inventory variances post as soon as they are created; manual transactions
// wait for an explicit posting call.
func DefaultSpecification() *Specification {
	return NewSpecification(
		TransactionTypeInvoiceAdjustment,
		TransactionTypeInventoryVariance,
	)
}

// NewSpecification builds a policy with the given auto-posting types.
func NewSpecification(autoPostTypes ...TransactionType) *Specification {
	auto := make(map[TransactionType]bool, len(autoPostTypes))
	for _, t := range autoPostTypes {
		auto[t] = true
	}
	return &Specification{autoPost: auto}
}

// IsDebit reports whether the entry lands on the debit side.
func (s *Specification) IsDebit(e Entry) bool {
	return e.Flag == FlagDebit
}

// IsCredit reports whether the entry lands on the credit side.
func (s *Specification) IsCredit(e Entry) bool {
	return e.Flag == FlagCredit
}

// IsPosted reports whether the transaction has completed its posting
// transition.
func (s *Specification) IsPosted(t Transaction) bool {
	return t.IsPosted
}

// IsClosed reports whether the fiscal period no longer accepts postings.
func (s *Specification) IsClosed(p Period) bool {
	return p.IsClosed
}

// DefaultFiscalType is assigned when a builder input omits the fiscal type.
func (s *Specification) DefaultFiscalType() FiscalType {
	return FiscalTypeActual
}

// AutoPosts reports whether transactions of the given type are posted
// immediately after creation.
func (s *Specification) AutoPosts(t TransactionType) bool {
	return s.autoPost[t]
}
