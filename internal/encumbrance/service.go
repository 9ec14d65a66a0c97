package encumbrance

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/ledger/internal/ledger"
)

// RepositoryPort abstracts snapshot persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	LatestSnapshot(ctx context.Context, organizationID string, asOf time.Time) (*Snapshot, error)
	SnapshotDetails(ctx context.Context, snapshotID uuid.UUID) ([]Detail, error)
}

// TxRepository exposes the batch write of one snapshot.
type TxRepository interface {
	InsertSnapshot(ctx context.Context, snapshot Snapshot) error
	InsertDetails(ctx context.Context, details []Detail) error
}

// Service computes and stores point-in-time encumbrance snapshots.
type Service struct {
	repo     RepositoryPort
	orders   OrderSource
	accounts AccountResolver
	ledger   LedgerSource
	cache    *Cache
	logger   *slog.Logger
	now      func() time.Time
	flight   singleflight.Group
}

// NewService constructs the snapshot service. Cache may be nil.
func NewService(repo RepositoryPort, orders OrderSource, accounts AccountResolver, ledgerSrc LedgerSource, cache *Cache, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		orders:   orders,
		accounts: accounts,
		ledger:   ledgerSrc,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateSnapshotInput groups snapshot parameters.
type CreateSnapshotInput struct {
	OrganizationID   string
	StartDatetime    *time.Time
	SnapshotDatetime *time.Time
	CreatedBy        string
	Comments         string
	Description      string
}

// CreateSnapshot walks open purchase commitments and posted manual
// encumbrance entries and stores them as one immutable snapshot. When no
// detail is produced, no snapshot is created and (nil, nil) is returned.
func (s *Service) CreateSnapshot(ctx context.Context, in CreateSnapshotInput) (*Snapshot, error) {
	if in.OrganizationID == "" {
		return nil, ErrOrganizationRequired
	}
	moment := s.now()
	if in.SnapshotDatetime != nil {
		moment = *in.SnapshotDatetime
	}
	var start time.Time
	if in.StartDatetime != nil {
		start = *in.StartDatetime
	}

	details, err := s.purchasingDetails(ctx, in.OrganizationID, moment)
	if err != nil {
		return nil, err
	}
	manual, err := s.manualDetails(ctx, in.OrganizationID, start, moment)
	if err != nil {
		return nil, err
	}
	details = append(details, manual...)
	if len(details) == 0 {
		if s.logger != nil {
			s.logger.Info("no encumbrances found, skipping snapshot",
				slog.String("organization", in.OrganizationID))
		}
		return nil, nil
	}

	snapshot := Snapshot{
		ID:               uuid.New(),
		OrganizationID:   in.OrganizationID,
		SnapshotDatetime: moment,
		CreatedBy:        in.CreatedBy,
		Comments:         in.Comments,
		Description:      in.Description,
	}
	for i := range details {
		details[i].SnapshotID = snapshot.ID
		details[i].SeqID = int32(i + 1)
		details[i].OrganizationID = in.OrganizationID
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertSnapshot(ctx, snapshot); err != nil {
			return err
		}
		return tx.InsertDetails(ctx, details)
	})
	if err != nil {
		return nil, err
	}
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("bump encumbrance cache", slog.Any("error", err))
	}
	if s.logger != nil {
		s.logger.Info("encumbrance snapshot created",
			slog.String("snapshot_id", snapshot.ID.String()),
			slog.String("organization", in.OrganizationID),
			slog.Int("details", len(details)))
	}
	return &snapshot, nil
}

func (s *Service) purchasingDetails(ctx context.Context, organizationID string, asOf time.Time) ([]Detail, error) {
	orders, err := s.orders.OpenPurchaseOrders(ctx, organizationID, asOf)
	if err != nil {
		return nil, err
	}
	var details []Detail
	for _, order := range orders {
		for _, item := range order.Items {
			settled := decimal.Max(item.CancelledQuantity, item.InvoicedQuantity)
			qty := item.OrderedQuantity.Sub(settled)
			if !qty.IsPositive() {
				continue
			}
			accountID, err := s.accounts.ResolveExpenseAccount(ctx, item.ProductID, item.InvoiceItemTypeID, organizationID)
			if err != nil {
				return nil, err
			}
			details = append(details, Detail{
				Type:               DetailTypePurchasing,
				PartyID:            order.PartyID,
				OrderID:            item.OrderID,
				OrderItemSeqID:     item.OrderItemSeqID,
				ProductID:          item.ProductID,
				OrderedQuantity:    item.OrderedQuantity,
				InvoicedQuantity:   item.InvoicedQuantity,
				CancelledQuantity:  item.CancelledQuantity,
				EncumberedQuantity: qty,
				UnitAmount:         item.UnitAmount,
				EncumberedAmount:   qty.Mul(item.UnitAmount),
				AccountID:          accountID,
				Tags:               item.Tags,
			})
		}
		if !order.AdjustmentTotal.IsZero() {
			accountID, err := s.accounts.ResolveExpenseAccount(ctx, "", order.AdjustmentInvoiceItemType, organizationID)
			if err != nil {
				return nil, err
			}
			details = append(details, Detail{
				Type:             DetailTypePurchasing,
				PartyID:          order.PartyID,
				OrderID:          order.OrderID,
				EncumberedAmount: order.AdjustmentTotal,
				AccountID:        accountID,
			})
		}
	}
	return details, nil
}

func (s *Service) manualDetails(ctx context.Context, organizationID string, from, to time.Time) ([]Detail, error) {
	entries, err := s.ledger.PostedEncumbranceEntries(ctx, organizationID, from, to)
	if err != nil {
		return nil, err
	}
	details := make([]Detail, 0, len(entries))
	for _, e := range entries {
		details = append(details, Detail{
			Type:             DetailTypeManual,
			PartyID:          e.PartyID,
			TransactionID:    e.TransactionID,
			EntrySeqID:       e.EntrySeqID,
			EncumberedAmount: e.Amount,
			AccountID:        e.AccountID,
			Tags:             e.Tags,
		})
	}
	return details, nil
}

// GetEncumbranceDetails returns the filtered details of the most recent
// snapshot taken at or before asOf. No snapshot yields an empty result,
// not an error.
func (s *Service) GetEncumbranceDetails(ctx context.Context, organizationID string, filter ledger.TagFilter, asOf time.Time) ([]Detail, error) {
	if organizationID == "" {
		return nil, ErrOrganizationRequired
	}
	snapshot, err := s.repo.LatestSnapshot(ctx, organizationID, asOf)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, nil
	}
	return s.filteredDetails(ctx, snapshot.ID, organizationID, filter)
}

func (s *Service) filteredDetails(ctx context.Context, snapshotID uuid.UUID, organizationID string, filter ledger.TagFilter) ([]Detail, error) {
	details, err := s.repo.SnapshotDetails(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	filtered := make([]Detail, 0, len(details))
	for _, d := range details {
		if d.OrganizationID != organizationID {
			continue
		}
		if !filter.Matches(d.Tags) {
			continue
		}
		filtered = append(filtered, d)
	}
	return filtered, nil
}

type totalPayload struct {
	Found bool            `json:"found"`
	Total decimal.Decimal `json:"total"`
}

// GetTotalEncumberedValue sums the filtered encumbered amounts of the most
// recent snapshot at or before asOf. A nil result means no snapshot exists.
func (s *Service) GetTotalEncumberedValue(ctx context.Context, organizationID string, filter ledger.TagFilter, asOf time.Time) (*decimal.Decimal, error) {
	if organizationID == "" {
		return nil, ErrOrganizationRequired
	}
	key, err := s.cache.BuildKey(ctx, "encumbrance", "total", organizationID, filter.Key(), asOf.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	result, err, _ := s.flight.Do(key, func() (interface{}, error) {
		var payload totalPayload
		err := s.cache.FetchJSON(ctx, key, &payload, func(ctx context.Context) (interface{}, error) {
			return s.computeTotal(ctx, organizationID, filter, asOf)
		})
		return payload, err
	})
	if err != nil {
		return nil, err
	}
	payload := result.(totalPayload)
	if !payload.Found {
		return nil, nil
	}
	total := payload.Total
	return &total, nil
}

func (s *Service) computeTotal(ctx context.Context, organizationID string, filter ledger.TagFilter, asOf time.Time) (totalPayload, error) {
	snapshot, err := s.repo.LatestSnapshot(ctx, organizationID, asOf)
	if err != nil {
		return totalPayload{}, err
	}
	if snapshot == nil {
		return totalPayload{}, nil
	}
	details, err := s.filteredDetails(ctx, snapshot.ID, organizationID, filter)
	if err != nil {
		return totalPayload{}, err
	}
	total := decimal.Zero
	for _, d := range details {
		total = total.Add(d.EncumberedAmount)
	}
	return totalPayload{Found: true, Total: total}, nil
}
