// Package sales owns the sale lifecycle and is the only caller of
// ledger.ApplySale.
package sales

import (
	"context"
	"strings"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/businessday"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/ledger"
	"github.com/Zimkada/BarTender-sub004/internal/revenue"
	"github.com/Zimkada/BarTender-sub004/internal/store"
	"github.com/Zimkada/BarTender-sub004/internal/xid"
)

// Result is a committed sale together with the stock it moved.
type Result struct {
	Sale      domain.Sale       `json:"sale"`
	Movements []domain.Movement `json:"movements"`
}

type Register struct {
	repo store.Repository
	days *businessday.Resolver
	mode domain.OperatingMode
}

func NewRegister(repo store.Repository, days *businessday.Resolver, mode domain.OperatingMode) *Register {
	if mode == "" {
		mode = domain.ModeFull
	}
	return &Register{repo: repo, days: days, mode: mode}
}

// Create records a sale priced from the current catalogue. In simplified
// mode the sale is validated and stock applied in the same transaction.
func (r *Register) Create(ctx context.Context, actor domain.Actor, req domain.SaleCreateRequest) (Result, error) {
	items, err := normalizeItems(req.Items)
	if err != nil {
		return Result{}, err
	}

	var out Result
	err = r.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := r.days.Now().UTC()
		sale := domain.Sale{
			ID:          xid.New("sal"),
			Items:       make([]domain.SaleItem, 0, len(items)),
			BusinessDay: r.days.Of(now),
			Status:      domain.SaleStatusPending,
			SoldBy:      actor.ID,
			TableNumber: strings.TrimSpace(req.TableNumber),
			CreatedAt:   now,
		}
		for _, item := range items {
			product, err := tx.GetProduct(ctx, item.ProductID)
			if err != nil {
				return err
			}
			sale.Items = append(sale.Items, domain.SaleItem{
				ProductID: product.ID,
				Quantity:  item.Quantity,
				UnitPrice: product.Price,
			})
		}
		sale.Total = revenue.SaleTotal(sale.Items)

		if r.mode == domain.ModeSimplified {
			movements, err := applySale(ctx, tx, r.days, sale, actor)
			if err != nil {
				return err
			}
			sale.Status = domain.SaleStatusValidated
			sale.ValidatedBy = actor.ID
			sale.ValidatedAt = &now
			out.Movements = movements
		}
		if err := tx.CreateSale(ctx, sale); err != nil {
			return err
		}
		out.Sale = sale
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

// Validate moves a pending sale to validated and removes its units from
// stock. Either every line is applied or none is.
func (r *Register) Validate(ctx context.Context, actor domain.Actor, saleID string) (Result, error) {
	var out Result
	err := r.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := tx.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != domain.SaleStatusPending {
			return apperror.NewInvalidState("sale", sale.ID, string(sale.Status), "validate")
		}
		movements, err := applySale(ctx, tx, r.days, *sale, actor)
		if err != nil {
			return err
		}
		now := r.days.Now().UTC()
		sale.Status = domain.SaleStatusValidated
		sale.ValidatedBy = actor.ID
		sale.ValidatedAt = &now
		if err := tx.UpdateSale(ctx, *sale, domain.SaleStatusPending); err != nil {
			return err
		}
		out = Result{Sale: *sale, Movements: movements}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

// Reject closes a pending sale without touching stock.
func (r *Register) Reject(ctx context.Context, actor domain.Actor, saleID string) (domain.Sale, error) {
	var out domain.Sale
	err := r.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := tx.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != domain.SaleStatusPending {
			return apperror.NewInvalidState("sale", sale.ID, string(sale.Status), "reject")
		}
		now := r.days.Now().UTC()
		sale.Status = domain.SaleStatusRejected
		sale.RejectedBy = actor.ID
		sale.RejectedAt = &now
		if err := tx.UpdateSale(ctx, *sale, domain.SaleStatusPending); err != nil {
			return err
		}
		out = *sale
		return nil
	})
	return out, err
}

// Cancel reverses a validated sale and restores its stock. A sale that
// already has consignments or live returns cannot be cancelled.
func (r *Register) Cancel(ctx context.Context, actor domain.Actor, saleID string, reason string) (Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Result{}, apperror.NewInvalidInput("cancel reason required")
	}

	var out Result
	err := r.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := tx.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != domain.SaleStatusValidated {
			return apperror.NewInvalidState("sale", sale.ID, string(sale.Status), "cancel")
		}
		consignments, err := tx.ListConsignments(ctx, store.ConsignmentFilter{SaleID: sale.ID, Limit: 1})
		if err != nil {
			return err
		}
		if len(consignments) > 0 {
			return apperror.NewInvalidState("sale", sale.ID, string(sale.Status), "cancel").
				WithDetail("blocked_by", "consignment")
		}
		returns, err := tx.ListReturns(ctx, store.ReturnFilter{SaleID: sale.ID, Statuses: liveReturnStatuses})
		if err != nil {
			return err
		}
		if len(returns) > 0 {
			return apperror.NewInvalidState("sale", sale.ID, string(sale.Status), "cancel").
				WithDetail("blocked_by", "return")
		}

		l := ledger.New(tx, r.days.Now)
		ref := ledger.Ref{Reference: sale.ID, ActorID: actor.ID}
		movements := make([]domain.Movement, 0, len(sale.Items))
		for _, item := range sale.Items {
			m, err := l.ApplySaleCancellation(ctx, item.ProductID, item.Quantity, ref)
			if err != nil {
				return err
			}
			movements = append(movements, m)
		}

		now := r.days.Now().UTC()
		sale.Status = domain.SaleStatusCancelled
		sale.CancelledBy = actor.ID
		sale.CancelledAt = &now
		sale.CancelReason = reason
		if err := tx.UpdateSale(ctx, *sale, domain.SaleStatusValidated); err != nil {
			return err
		}
		out = Result{Sale: *sale, Movements: movements}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

var liveReturnStatuses = []domain.ReturnStatus{
	domain.ReturnStatusPending,
	domain.ReturnStatusApproved,
	domain.ReturnStatusRestocked,
}

// Remaining is how many units of productID on sale are still free to be
// returned or consigned: sold minus non-rejected returns minus consignments.
func Remaining(ctx context.Context, r store.Reader, sale domain.Sale, productID string) (int, error) {
	sold := sale.QuantitySold(productID)
	returns, err := r.ListReturns(ctx, store.ReturnFilter{SaleID: sale.ID, ProductID: productID, Statuses: liveReturnStatuses})
	if err != nil {
		return 0, err
	}
	consignments, err := r.ListConsignments(ctx, store.ConsignmentFilter{SaleID: sale.ID, ProductID: productID})
	if err != nil {
		return 0, err
	}
	remaining := sold
	for _, ret := range returns {
		remaining -= ret.QuantityReturned
	}
	for _, c := range consignments {
		remaining -= c.Quantity
	}
	return remaining, nil
}

func applySale(ctx context.Context, tx store.Tx, days *businessday.Resolver, sale domain.Sale, actor domain.Actor) ([]domain.Movement, error) {
	l := ledger.New(tx, days.Now)
	ref := ledger.Ref{Reference: sale.ID, ActorID: actor.ID}
	movements := make([]domain.Movement, 0, len(sale.Items))
	for _, item := range sale.Items {
		m, err := l.ApplySale(ctx, item.ProductID, item.Quantity, ref)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, nil
}

// normalizeItems merges repeated products and rejects empty or
// non-positive lines.
func normalizeItems(items []domain.SaleItemRequest) ([]domain.SaleItemRequest, error) {
	if len(items) == 0 {
		return nil, apperror.NewInvalidInput("sale requires at least one item")
	}
	index := make(map[string]int, len(items))
	out := make([]domain.SaleItemRequest, 0, len(items))
	for _, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" || item.Quantity < 1 {
			return nil, apperror.NewInvalidInput("each item needs a product and a positive quantity")
		}
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out, nil
}
