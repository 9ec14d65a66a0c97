package encumbrance

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository reads open purchase commitments from the order tables.
// It implements OrderSource for deployments where the order subsystem
// shares the database; other deployments inject their own adapter.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository constructs OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// OpenPurchaseOrders lists open purchase orders with their still-open items
// and order-level adjustment totals, ordered by order id.
func (r *OrderRepository) OpenPurchaseOrders(ctx context.Context, organizationID string, asOf time.Time) ([]OpenOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT o.id, COALESCE(o.supplier_party_id,''), COALESCE(o.adjustment_total,0), COALESCE(o.adjustment_invoice_item_type,''),
i.seq_id, COALESCE(i.product_id,''), COALESCE(i.invoice_item_type_id,''), i.ordered_quantity, i.cancelled_quantity, i.invoiced_quantity, i.unit_amount,
COALESCE(i.tag1,''), COALESCE(i.tag2,''), COALESCE(i.tag3,''), COALESCE(i.tag4,''), COALESCE(i.tag5,''), COALESCE(i.tag6,''), COALESCE(i.tag7,''), COALESCE(i.tag8,''), COALESCE(i.tag9,''), COALESCE(i.tag10,'')
FROM purchase_orders o
JOIN purchase_order_items i ON i.order_id = o.id AND i.status = 'OPEN'
WHERE o.organization_id = $1 AND o.status = 'OPEN' AND o.ordered_at <= $2
ORDER BY o.id, i.seq_id`, organizationID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var (
		orders  []OpenOrder
		current *OpenOrder
	)
	for rows.Next() {
		var (
			orderID string
			order   OpenOrder
			item    OpenOrderItem
		)
		if err := rows.Scan(&orderID, &order.PartyID, &order.AdjustmentTotal, &order.AdjustmentInvoiceItemType,
			&item.OrderItemSeqID, &item.ProductID, &item.InvoiceItemTypeID,
			&item.OrderedQuantity, &item.CancelledQuantity, &item.InvoicedQuantity, &item.UnitAmount,
			&item.Tags[0], &item.Tags[1], &item.Tags[2], &item.Tags[3], &item.Tags[4],
			&item.Tags[5], &item.Tags[6], &item.Tags[7], &item.Tags[8], &item.Tags[9]); err != nil {
			return nil, err
		}
		item.OrderID = orderID
		if current == nil || current.OrderID != orderID {
			order.OrderID = orderID
			orders = append(orders, order)
			current = &orders[len(orders)-1]
		}
		current.Items = append(current.Items, item)
	}
	return orders, rows.Err()
}
