package service

import (
	"context"
	"strings"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/audit"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/sales"
	"github.com/Zimkada/BarTender-sub004/internal/store"
)

// CreateSale records a sale for the acting server. In simplified mode the
// response already carries the stock movements.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (sales.Result, error) {
	return traced(ctx, s, "sale.create", func(ctx context.Context) (sales.Result, error) {
		actor, err := requireRole(ctx, "create sales", staffRoles...)
		if err != nil {
			return sales.Result{}, err
		}
		for i := range req.Items {
			req.Items[i].ProductID = strings.TrimSpace(req.Items[i].ProductID)
		}
		if err := s.check(req); err != nil {
			return sales.Result{}, err
		}
		res, err := s.register.Create(ctx, actor, req)
		if err != nil {
			return sales.Result{}, err
		}

		meta := map[string]any{"total": res.Sale.Total, "items": len(res.Sale.Items), "business_day": res.Sale.BusinessDay}
		s.committed(ctx, actor, audit.ActionSaleCreated, "sale", res.Sale.ID, audit.Transition("", res.Sale.Status), meta)
		if res.Sale.Status == domain.SaleStatusValidated {
			change := audit.Transition("", domain.SaleStatusValidated, res.Movements...)
			s.committed(ctx, actor, audit.ActionSaleValidated, "sale", res.Sale.ID, change, meta)
		}
		return res, nil
	})
}

func (s *Service) ValidateSale(ctx context.Context, saleID string) (sales.Result, error) {
	return traced(ctx, s, "sale.validate", func(ctx context.Context) (sales.Result, error) {
		actor, err := requireRole(ctx, "validate sales", managerRoles...)
		if err != nil {
			return sales.Result{}, err
		}
		res, err := s.register.Validate(ctx, actor, saleID)
		if err != nil {
			return sales.Result{}, err
		}
		change := audit.Transition(domain.SaleStatusPending, res.Sale.Status, res.Movements...)
		s.committed(ctx, actor, audit.ActionSaleValidated, "sale", saleID, change, map[string]any{
			"total":        res.Sale.Total,
			"business_day": res.Sale.BusinessDay,
		})
		return res, nil
	})
}

func (s *Service) RejectSale(ctx context.Context, saleID string) (domain.Sale, error) {
	return traced(ctx, s, "sale.reject", func(ctx context.Context) (domain.Sale, error) {
		actor, err := requireRole(ctx, "reject sales", managerRoles...)
		if err != nil {
			return domain.Sale{}, err
		}
		sale, err := s.register.Reject(ctx, actor, saleID)
		if err != nil {
			return domain.Sale{}, err
		}
		s.committed(ctx, actor, audit.ActionSaleRejected, "sale", saleID, audit.Transition(domain.SaleStatusPending, sale.Status), nil)
		return sale, nil
	})
}

// CancelSale reverses a validated sale. Manager PIN confirmation happens
// at the HTTP edge before this is called.
func (s *Service) CancelSale(ctx context.Context, saleID string, reason string) (sales.Result, error) {
	return traced(ctx, s, "sale.cancel", func(ctx context.Context) (sales.Result, error) {
		actor, err := requireRole(ctx, "cancel sales", managerRoles...)
		if err != nil {
			return sales.Result{}, err
		}
		res, err := s.register.Cancel(ctx, actor, saleID, reason)
		if err != nil {
			return sales.Result{}, err
		}
		change := audit.Transition(domain.SaleStatusValidated, res.Sale.Status, res.Movements...)
		s.committed(ctx, actor, audit.ActionSaleCancelled, "sale", saleID, change, map[string]any{
			"reason":       res.Sale.CancelReason,
			"total":        res.Sale.Total,
			"business_day": res.Sale.BusinessDay,
		})
		return res, nil
	})
}

// GetSale returns a sale. Servers only see their own.
func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, err := requireRole(ctx, "view sales", staffRoles...)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if !isManager(actor) && sale.SoldBy != actor.ID {
		return domain.Sale{}, apperror.NewNotFound("sale", saleID)
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	actor, err := requireRole(ctx, "view sales", staffRoles...)
	if err != nil {
		return nil, err
	}
	if !isManager(actor) {
		filter.SoldBy = actor.ID
	}
	return s.repo.ListSales(ctx, filter)
}

// Returnable is how many units of productID on the sale can still be
// returned or consigned.
func (s *Service) Returnable(ctx context.Context, saleID, productID string) (int, error) {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return 0, err
	}
	if sale.QuantitySold(productID) == 0 {
		return 0, apperror.Newf(apperror.ErrInvalidInput, "product %s is not part of sale %s", productID, saleID)
	}
	return sales.Remaining(ctx, s.repo, sale, productID)
}
