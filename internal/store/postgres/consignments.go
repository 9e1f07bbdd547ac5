package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/store"
)

var consignmentColumns = []string{
	"id", "sale_id", "product_id", "quantity", "total_amount", "customer_name",
	"customer_phone", "notes", "status", businessDayColumn, "original_seller",
	"created_by", "created_at", "expires_at", "claimed_by", "claimed_at",
	"forfeited_by", "forfeited_at",
}

func (r *reader) GetConsignment(ctx context.Context, id string) (*domain.Consignment, error) {
	var c domain.Consignment
	q := r.forUpdate(r.sb.Select(consignmentColumns...).From("consignments").Where(squirrel.Eq{"id": id}))
	if err := r.get(ctx, &c, q, "consignment", id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *reader) ListConsignments(ctx context.Context, filter store.ConsignmentFilter) ([]domain.Consignment, error) {
	q := r.sb.Select(consignmentColumns...).From("consignments").OrderBy("created_at", "id")
	if filter.SaleID != "" {
		q = q.Where(squirrel.Eq{"sale_id": filter.SaleID})
	}
	if filter.ProductID != "" {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductID})
	}
	if len(filter.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": strs(filter.Statuses)})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	out := make([]domain.Consignment, 0, 16)
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *tx) CreateConsignment(ctx context.Context, c domain.Consignment) error {
	if c.ID == "" {
		return apperror.NewInvalidInput("consignment id required")
	}
	q := t.sb.Insert("consignments").Columns(
		"id", "sale_id", "product_id", "quantity", "total_amount", "customer_name",
		"customer_phone", "notes", "status", "business_day", "original_seller",
		"created_by", "created_at", "expires_at", "claimed_by", "claimed_at",
		"forfeited_by", "forfeited_at",
	).Values(
		c.ID, c.SaleID, c.ProductID, c.Quantity, c.TotalAmount, c.CustomerName,
		c.CustomerPhone, c.Notes, string(c.Status), c.BusinessDay.String(), c.OriginalSeller,
		c.CreatedBy, c.CreatedAt, c.ExpiresAt, c.ClaimedBy, c.ClaimedAt,
		c.ForfeitedBy, c.ForfeitedAt,
	)
	return t.insert(ctx, q, "consignment", c.ID)
}

func (t *tx) UpdateConsignment(ctx context.Context, c domain.Consignment, from domain.ConsignmentStatus) error {
	q := t.sb.Update("consignments").
		Set("status", string(c.Status)).
		Set("claimed_by", c.ClaimedBy).
		Set("claimed_at", c.ClaimedAt).
		Set("forfeited_by", c.ForfeitedBy).
		Set("forfeited_at", c.ForfeitedAt).
		Where(squirrel.Eq{"id": c.ID, "status": string(from)})
	return t.execOne(ctx, q, "consignment", c.ID, "consignments")
}
