package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
)

var productColumns = []string{
	"id", "name", "category_id", "price", "cost_price", "physical_stock",
	"alert_threshold", "version", "created_at", "updated_at",
}

var movementColumns = []string{
	"id", "product_id", "kind", "delta", "stock_before", "stock_after",
	"reference", "actor_id", "at",
}

func (r *reader) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	q := r.forUpdate(r.sb.Select(productColumns...).From("products").Where(squirrel.Eq{"id": id}))
	if err := r.get(ctx, &p, q, "product", id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *reader) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	q := r.sb.Select(productColumns...).From("products").OrderBy("category_id", "name", "id")
	if err := r.selectAll(ctx, &products, q); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *reader) ConsignedQuantity(ctx context.Context, productID string) (int, error) {
	query, args, err := r.sb.Select("COALESCE(SUM(quantity), 0)").
		From("consignments").
		Where(squirrel.Eq{"product_id": productID, "status": string(domain.ConsignmentStatusActive)}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var qty int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&qty); err != nil {
		return 0, err
	}
	return qty, nil
}

func (r *reader) ListMovements(ctx context.Context, productID string, limit int) ([]domain.Movement, error) {
	q := r.sb.Select(movementColumns...).From("stock_movements").OrderBy("at DESC", "id DESC")
	if productID != "" {
		q = q.Where(squirrel.Eq{"product_id": productID})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	movements := make([]domain.Movement, 0, 32)
	if err := r.selectAll(ctx, &movements, q); err != nil {
		return nil, err
	}
	return movements, nil
}

func (t *tx) CreateProduct(ctx context.Context, p domain.Product) error {
	if p.ID == "" {
		return apperror.NewInvalidInput("product id required")
	}
	if p.Version == 0 {
		p.Version = 1
	}
	q := t.sb.Insert("products").Columns(productColumns...).Values(
		p.ID, p.Name, p.CategoryID, p.Price, p.CostPrice, p.PhysicalStock,
		p.AlertThreshold, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	return t.insert(ctx, q, "product", p.ID)
}

func (t *tx) UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	q := t.sb.Update("products").
		Set("name", p.Name).
		Set("category_id", p.CategoryID).
		Set("price", p.Price).
		Set("cost_price", p.CostPrice).
		Set("physical_stock", p.PhysicalStock).
		Set("alert_threshold", p.AlertThreshold).
		Set("version", p.Version+1).
		Set("updated_at", p.UpdatedAt).
		Where(squirrel.Eq{"id": p.ID, "version": p.Version})
	if err := t.execOne(ctx, q, "product", p.ID, "products"); err != nil {
		return nil, err
	}
	p.Version++
	return &p, nil
}

func (t *tx) AppendMovements(ctx context.Context, movements []domain.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	q := t.sb.Insert("stock_movements").Columns(movementColumns...)
	for _, m := range movements {
		q = q.Values(m.ID, m.ProductID, string(m.Kind), m.Delta, m.Before, m.After, m.Reference, m.ActorID, m.At)
	}
	return t.insert(ctx, q, "movement", movements[0].ID)
}
