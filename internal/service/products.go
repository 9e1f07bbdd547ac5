package service

import (
	"context"
	"strings"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/audit"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/ledger"
	"github.com/Zimkada/BarTender-sub004/internal/revenue"
	"github.com/Zimkada/BarTender-sub004/internal/store"
	"github.com/Zimkada/BarTender-sub004/internal/xid"
)

// ProductStock is a catalogue entry with its dual stock view.
type ProductStock struct {
	domain.Product
	Stock      domain.StockInfo `json:"stock"`
	LowStock   bool             `json:"low_stock"`
	Suspicious bool             `json:"suspicious"`
}

type SupplyResult struct {
	Product  domain.Product  `json:"product"`
	Movement domain.Movement `json:"movement"`
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	return traced(ctx, s, "product.create", func(ctx context.Context) (domain.Product, error) {
		actor, err := requireRole(ctx, "create products", managerRoles...)
		if err != nil {
			return domain.Product{}, err
		}
		req.Name = strings.TrimSpace(req.Name)
		req.CategoryID = strings.TrimSpace(req.CategoryID)
		if err := s.check(req); err != nil {
			return domain.Product{}, err
		}

		now := s.days.Now().UTC()
		product := domain.Product{
			ID:             xid.New("prd"),
			Name:           req.Name,
			CategoryID:     req.CategoryID,
			Price:          req.Price,
			CostPrice:      req.CostPrice,
			AlertThreshold: req.AlertThreshold,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		var initial []domain.Movement
		err = s.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.CreateProduct(ctx, product); err != nil {
				return err
			}
			if req.InitialStock == 0 {
				return nil
			}
			ref := ledger.Ref{Reference: product.ID, ActorID: actor.ID}
			m, err := ledger.New(tx, s.days.Now).ApplySupply(ctx, product.ID, req.InitialStock, ref)
			if err != nil {
				return err
			}
			initial = append(initial, m)
			saved, err := tx.GetProduct(ctx, product.ID)
			if err != nil {
				return err
			}
			product = *saved
			return nil
		})
		if err != nil {
			return domain.Product{}, err
		}

		s.committed(ctx, actor, audit.ActionProductCreated, "product", product.ID, audit.StockMoves(initial...), map[string]any{
			"name":          product.Name,
			"price":         product.Price,
			"initial_stock": req.InitialStock,
		})
		return product, nil
	})
}

// ListProducts returns the catalogue with vendable stock and alert flags.
func (s *Service) ListProducts(ctx context.Context) ([]ProductStock, error) {
	var (
		products  []domain.Product
		consigned map[string]int
	)
	err := s.repo.ReadSnapshot(ctx, func(ctx context.Context, r store.Reader) (err error) {
		if products, err = r.ListProducts(ctx); err != nil {
			return err
		}
		consigned, err = consignedByProduct(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]ProductStock, 0, len(products))
	for _, p := range products {
		out = append(out, s.productStock(p, consigned[p.ID]))
	}
	return out, nil
}

func (s *Service) productStock(p domain.Product, consigned int) ProductStock {
	info := ledger.NewInfo(p, consigned)
	threshold := p.AlertThreshold
	if threshold == 0 {
		threshold = s.lowStock
	}
	return ProductStock{
		Product:    p,
		Stock:      info,
		LowStock:   ledger.IsLowStock(info, threshold),
		Suspicious: ledger.IsSuspicious(info),
	}
}

// consignedByProduct sums active consignments per product in one read.
func consignedByProduct(ctx context.Context, r store.Reader) (map[string]int, error) {
	active, err := r.ListConsignments(ctx, store.ConsignmentFilter{
		Statuses: []domain.ConsignmentStatus{domain.ConsignmentStatusActive},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(active))
	for _, c := range active {
		out[c.ProductID] += c.Quantity
	}
	return out, nil
}

func (s *Service) LowStock(ctx context.Context) ([]ProductStock, error) {
	return s.filterProducts(ctx, func(p ProductStock) bool { return p.LowStock })
}

// Suspicious lists products whose stock no valid sequence of operations
// could have produced.
func (s *Service) Suspicious(ctx context.Context) ([]ProductStock, error) {
	return s.filterProducts(ctx, func(p ProductStock) bool { return p.Suspicious })
}

func (s *Service) filterProducts(ctx context.Context, keep func(ProductStock) bool) ([]ProductStock, error) {
	all, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProductStock, 0, len(all))
	for _, p := range all {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// StockInfo reads physical and consigned stock from one snapshot.
func (s *Service) StockInfo(ctx context.Context, productID string) (domain.StockInfo, error) {
	var info domain.StockInfo
	err := s.repo.ReadSnapshot(ctx, func(ctx context.Context, r store.Reader) (err error) {
		info, err = ledger.Info(ctx, r, productID)
		return err
	})
	return info, err
}

func (s *Service) Movements(ctx context.Context, productID string, limit int) ([]domain.Movement, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListMovements(ctx, productID, limit)
}

// Supply receives a delivery. A lot price with its lot size also updates
// the product cost price to the rounded unit cost.
func (s *Service) Supply(ctx context.Context, req domain.SupplyRequest) (SupplyResult, error) {
	return traced(ctx, s, "stock.supply", func(ctx context.Context) (SupplyResult, error) {
		actor, err := requireRole(ctx, "supply stock", managerRoles...)
		if err != nil {
			return SupplyResult{}, err
		}
		req.ProductID = strings.TrimSpace(req.ProductID)
		req.Supplier = strings.TrimSpace(req.Supplier)
		if err := s.check(req); err != nil {
			return SupplyResult{}, err
		}
		if req.LotPrice > 0 && req.LotSize == 0 {
			return SupplyResult{}, apperror.NewInvalidInput("lot_size is required with lot_price")
		}

		supplyID := xid.New("sup")
		var out SupplyResult
		err = s.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			movement, err := ledger.New(tx, s.days.Now).ApplySupply(ctx, req.ProductID, req.Quantity, ledger.Ref{Reference: supplyID, ActorID: actor.ID})
			if err != nil {
				return err
			}
			product, err := tx.GetProduct(ctx, req.ProductID)
			if err != nil {
				return err
			}
			if req.LotSize > 0 {
				cost := revenue.UnitCost(req.LotPrice, req.LotSize)
				product.CostPrice = &cost
				product.UpdatedAt = s.days.Now().UTC()
				if product, err = tx.UpdateProduct(ctx, *product); err != nil {
					return err
				}
			}
			out = SupplyResult{Product: *product, Movement: movement}
			return nil
		})
		if err != nil {
			return SupplyResult{}, err
		}

		s.committed(ctx, actor, audit.ActionStockSupplied, "product", req.ProductID, audit.StockMoves(out.Movement), map[string]any{
			"supply_id": supplyID,
			"quantity":  req.Quantity,
			"supplier":  req.Supplier,
			"lot_price": req.LotPrice,
			"lot_size":  req.LotSize,
		})
		return out, nil
	})
}

// StockCount applies a physical count. Every counted product gets a count
// movement, zero-delta ones included, so the count itself is on record.
func (s *Service) StockCount(ctx context.Context, req domain.StockCountRequest) (domain.StockCountResponse, error) {
	return traced(ctx, s, "stock.count", func(ctx context.Context) (domain.StockCountResponse, error) {
		actor, err := requireRole(ctx, "count stock", managerRoles...)
		if err != nil {
			return domain.StockCountResponse{}, err
		}
		seen := make(map[string]struct{}, len(req.Items))
		for i := range req.Items {
			id := strings.TrimSpace(req.Items[i].ProductID)
			if _, dup := seen[id]; dup {
				return domain.StockCountResponse{}, apperror.Newf(apperror.ErrInvalidInput, "product %s counted twice", id)
			}
			seen[id] = struct{}{}
			req.Items[i].ProductID = id
		}
		req.Notes = strings.TrimSpace(req.Notes)
		if err := s.check(req); err != nil {
			return domain.StockCountResponse{}, err
		}

		countID := xid.New("cnt")
		adjustments := make([]domain.StockCountAdjustment, 0, len(req.Items))
		counted := make([]domain.Movement, 0, len(req.Items))
		err = s.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			l := ledger.New(tx, s.days.Now)
			for _, item := range req.Items {
				m, err := l.ApplyCount(ctx, item.ProductID, item.CountedQty, ledger.Ref{Reference: countID, ActorID: actor.ID})
				if err != nil {
					return err
				}
				counted = append(counted, m)
				adjustments = append(adjustments, domain.StockCountAdjustment{
					ProductID:  item.ProductID,
					SystemQty:  m.Before,
					CountedQty: m.After,
					DeltaQty:   m.Delta,
				})
			}
			return nil
		})
		if err != nil {
			return domain.StockCountResponse{}, err
		}

		s.committed(ctx, actor, audit.ActionStockCounted, "stock_count", countID, audit.StockMoves(counted...), map[string]any{
			"items": len(req.Items),
			"notes": req.Notes,
		})
		return domain.StockCountResponse{
			CountID:     countID,
			Notes:       req.Notes,
			Adjustments: adjustments,
			CreatedAt:   s.days.Now().UTC(),
		}, nil
	})
}
