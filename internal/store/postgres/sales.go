package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/store"
)

// businessDayColumn renders the DATE column as a YYYY-MM-DD key.
const businessDayColumn = "to_char(business_day, 'YYYY-MM-DD') AS business_day"

var saleColumns = []string{
	"id", "total", businessDayColumn, "status", "sold_by", "table_number", "created_at",
	"validated_by", "validated_at", "rejected_by", "rejected_at",
	"cancelled_by", "cancelled_at", "cancel_reason",
}

type saleItemRow struct {
	SaleID string `db:"sale_id"`
	domain.SaleItem
}

func (r *reader) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	q := r.forUpdate(r.sb.Select(saleColumns...).From("sales").Where(squirrel.Eq{"id": id}))
	if err := r.get(ctx, &sale, q, "sale", id); err != nil {
		return nil, err
	}
	sales := []domain.Sale{sale}
	if err := r.loadItems(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (r *reader) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	q := r.sb.Select(saleColumns...).From("sales").OrderBy("created_at", "id")
	if len(filter.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": strs(filter.Statuses)})
	}
	if filter.BusinessDay != "" {
		q = q.Where(squirrel.Eq{"business_day": filter.BusinessDay.String()})
	}
	if filter.SoldBy != "" {
		q = q.Where(squirrel.Eq{"sold_by": filter.SoldBy})
	}
	if !filter.CreatedFrom.IsZero() {
		q = q.Where(squirrel.GtOrEq{"created_at": filter.CreatedFrom})
	}
	if !filter.CreatedTo.IsZero() {
		q = q.Where(squirrel.Lt{"created_at": filter.CreatedTo})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sales := make([]domain.Sale, 0, 32)
	if err := r.selectAll(ctx, &sales, q); err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

// loadItems fills Items for every sale with a single query.
func (r *reader) loadItems(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i, s := range sales {
		ids = append(ids, s.ID)
		index[s.ID] = i
	}

	var rows []saleItemRow
	q := r.sb.Select("sale_id", "product_id", "quantity", "unit_price").
		From("sale_items").
		Where(squirrel.Eq{"sale_id": ids}).
		OrderBy("sale_id", "line_no")
	if err := r.selectAll(ctx, &rows, q); err != nil {
		return err
	}
	for _, row := range rows {
		i := index[row.SaleID]
		sales[i].Items = append(sales[i].Items, row.SaleItem)
	}
	return nil
}

func (t *tx) CreateSale(ctx context.Context, sale domain.Sale) error {
	if sale.ID == "" || len(sale.Items) == 0 {
		return apperror.NewInvalidInput("sale id and items required")
	}
	q := t.sb.Insert("sales").Columns(
		"id", "total", "business_day", "status", "sold_by", "table_number", "created_at",
		"validated_by", "validated_at", "rejected_by", "rejected_at",
		"cancelled_by", "cancelled_at", "cancel_reason",
	).Values(
		sale.ID, sale.Total, sale.BusinessDay.String(), string(sale.Status), sale.SoldBy, sale.TableNumber, sale.CreatedAt,
		sale.ValidatedBy, sale.ValidatedAt, sale.RejectedBy, sale.RejectedAt,
		sale.CancelledBy, sale.CancelledAt, sale.CancelReason,
	)
	if err := t.insert(ctx, q, "sale", sale.ID); err != nil {
		return err
	}

	items := t.sb.Insert("sale_items").Columns("sale_id", "line_no", "product_id", "quantity", "unit_price")
	for i, item := range sale.Items {
		items = items.Values(sale.ID, i+1, item.ProductID, item.Quantity, item.UnitPrice)
	}
	return t.insert(ctx, items, "sale", sale.ID)
}

// UpdateSale writes the lifecycle columns. Items and totals are immutable.
func (t *tx) UpdateSale(ctx context.Context, sale domain.Sale, from domain.SaleStatus) error {
	q := t.sb.Update("sales").
		Set("status", string(sale.Status)).
		Set("validated_by", sale.ValidatedBy).
		Set("validated_at", sale.ValidatedAt).
		Set("rejected_by", sale.RejectedBy).
		Set("rejected_at", sale.RejectedAt).
		Set("cancelled_by", sale.CancelledBy).
		Set("cancelled_at", sale.CancelledAt).
		Set("cancel_reason", sale.CancelReason).
		Where(squirrel.Eq{"id": sale.ID, "status": string(from)})
	return t.execOne(ctx, q, "sale", sale.ID, "sales")
}
