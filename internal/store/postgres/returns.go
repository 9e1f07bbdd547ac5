package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/store"
)

var returnColumns = []string{
	"id", "sale_id", "product_id", "unit_price", "quantity_sold", "quantity_returned",
	"reason", "refund_amount", "is_refunded", "auto_restock", "manual_restock_required",
	"restocked", "status", businessDayColumn, "original_seller", "notes", "requested_by",
	"returned_at", "approved_by", "approved_at", "rejected_by", "rejected_at", "restocked_at",
}

func (r *reader) GetReturn(ctx context.Context, id string) (*domain.Return, error) {
	var ret domain.Return
	q := r.forUpdate(r.sb.Select(returnColumns...).From("returns").Where(squirrel.Eq{"id": id}))
	if err := r.get(ctx, &ret, q, "return", id); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *reader) ListReturns(ctx context.Context, filter store.ReturnFilter) ([]domain.Return, error) {
	q := r.sb.Select(returnColumns...).From("returns").OrderBy("returned_at", "id")
	if filter.SaleID != "" {
		q = q.Where(squirrel.Eq{"sale_id": filter.SaleID})
	}
	if filter.ProductID != "" {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductID})
	}
	if len(filter.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": strs(filter.Statuses)})
	}
	if filter.BusinessDay != "" {
		q = q.Where(squirrel.Eq{"business_day": filter.BusinessDay.String()})
	}
	if !filter.ReturnedFrom.IsZero() {
		q = q.Where(squirrel.GtOrEq{"returned_at": filter.ReturnedFrom})
	}
	if !filter.ReturnedTo.IsZero() {
		q = q.Where(squirrel.Lt{"returned_at": filter.ReturnedTo})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	out := make([]domain.Return, 0, 16)
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *tx) CreateReturn(ctx context.Context, ret domain.Return) error {
	if ret.ID == "" {
		return apperror.NewInvalidInput("return id required")
	}
	q := t.sb.Insert("returns").Columns(
		"id", "sale_id", "product_id", "unit_price", "quantity_sold", "quantity_returned",
		"reason", "refund_amount", "is_refunded", "auto_restock", "manual_restock_required",
		"restocked", "status", "business_day", "original_seller", "notes", "requested_by",
		"returned_at", "approved_by", "approved_at", "rejected_by", "rejected_at", "restocked_at",
	).Values(
		ret.ID, ret.SaleID, ret.ProductID, ret.UnitPrice, ret.QuantitySold, ret.QuantityReturned,
		string(ret.Reason), ret.RefundAmount, ret.IsRefunded, ret.AutoRestock, ret.ManualRestockRequired,
		ret.Restocked, string(ret.Status), ret.BusinessDay.String(), ret.OriginalSeller, ret.Notes, ret.RequestedBy,
		ret.ReturnedAt, ret.ApprovedBy, ret.ApprovedAt, ret.RejectedBy, ret.RejectedAt, ret.RestockedAt,
	)
	return t.insert(ctx, q, "return", ret.ID)
}

func (t *tx) UpdateReturn(ctx context.Context, ret domain.Return, from domain.ReturnStatus) error {
	q := t.sb.Update("returns").
		Set("status", string(ret.Status)).
		Set("refund_amount", ret.RefundAmount).
		Set("is_refunded", ret.IsRefunded).
		Set("manual_restock_required", ret.ManualRestockRequired).
		Set("restocked", ret.Restocked).
		Set("approved_by", ret.ApprovedBy).
		Set("approved_at", ret.ApprovedAt).
		Set("rejected_by", ret.RejectedBy).
		Set("rejected_at", ret.RejectedAt).
		Set("restocked_at", ret.RestockedAt).
		Where(squirrel.Eq{"id": ret.ID, "status": string(from)})
	return t.execOne(ctx, q, "return", ret.ID, "returns")
}
