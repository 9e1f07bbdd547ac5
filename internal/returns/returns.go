// Package returns runs the return lifecycle:
//
//	pending -> approved [-> restocked]
//	pending -> rejected
//
// Stock and refunds only move on approval, and a return is restocked at
// most once.
package returns

import (
	"context"
	"strings"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/businessday"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/ledger"
	"github.com/Zimkada/BarTender-sub004/internal/sales"
	"github.com/Zimkada/BarTender-sub004/internal/store"
	"github.com/Zimkada/BarTender-sub004/internal/xid"
)

// Result is a committed return. Movement is nil when no stock moved.
type Result struct {
	Return   domain.Return    `json:"return"`
	Movement *domain.Movement `json:"movement,omitempty"`
}

type Processor struct {
	repo store.Repository
	days *businessday.Resolver
}

func NewProcessor(repo store.Repository, days *businessday.Resolver) *Processor {
	return &Processor{repo: repo, days: days}
}

// Create opens a pending return on a validated sale of the business day in
// progress, pre-filled from the reason policy.
func (p *Processor) Create(ctx context.Context, actor domain.Actor, req domain.ReturnCreateRequest) (domain.Return, error) {
	if req.Quantity < 1 {
		return domain.Return{}, apperror.NewInvalidInput("quantity must be positive")
	}
	policy, err := PolicyFor(req.Reason)
	if err != nil {
		return domain.Return{}, err
	}

	var out domain.Return
	err = p.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := tx.GetSale(ctx, req.SaleID)
		if err != nil {
			return err
		}
		if sale.Status != domain.SaleStatusValidated {
			return apperror.NewInvalidState("sale", sale.ID, string(sale.Status), "return")
		}
		if current := p.days.Current(); sale.BusinessDay != current {
			return apperror.NewOutsideBusinessDay(sale.BusinessDay.String(), current.String())
		}
		unitPrice, ok := sale.UnitPrice(req.ProductID)
		if !ok {
			return apperror.Newf(apperror.ErrInvalidInput, "product %s is not part of sale %s", req.ProductID, sale.ID)
		}
		remaining, err := sales.Remaining(ctx, tx, *sale, req.ProductID)
		if err != nil {
			return err
		}
		if req.Quantity > remaining {
			return apperror.NewQuantityExceedsRemaining(req.ProductID, req.Quantity, remaining)
		}

		ret := domain.Return{
			ID:                    xid.New("ret"),
			SaleID:                sale.ID,
			ProductID:             req.ProductID,
			UnitPrice:             unitPrice,
			QuantitySold:          sale.QuantitySold(req.ProductID),
			QuantityReturned:      req.Quantity,
			Reason:                req.Reason,
			AutoRestock:           policy.AutoRestock,
			ManualRestockRequired: !policy.AutoRestock && req.Reason != domain.ReasonOther,
			Status:                domain.ReturnStatusPending,
			BusinessDay:           sale.BusinessDay,
			OriginalSeller:        sale.SoldBy,
			Notes:                 strings.TrimSpace(req.Notes),
			RequestedBy:           actor.ID,
			ReturnedAt:            p.days.Now().UTC(),
		}
		if policy.AutoRefund {
			ret.RefundAmount = fullRefund(ret)
		}
		if err := tx.CreateReturn(ctx, ret); err != nil {
			return err
		}
		out = ret
		return nil
	})
	if err != nil {
		return domain.Return{}, err
	}
	return out, nil
}

// Approve applies the return's effects. For policy-driven reasons the
// decisions are fixed and any override must agree with them; for "other"
// the approver supplies both the refund amount and the restock choice.
func (p *Processor) Approve(ctx context.Context, actor domain.Actor, id string, req domain.ReturnApproveRequest) (Result, error) {
	var out Result
	err := p.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ret, err := tx.GetReturn(ctx, id)
		if err != nil {
			return err
		}
		if ret.Status != domain.ReturnStatusPending {
			return apperror.NewInvalidState("return", ret.ID, string(ret.Status), "approve")
		}
		policy, err := PolicyFor(ret.Reason)
		if err != nil {
			return err
		}

		full := fullRefund(*ret)
		restockNow := policy.AutoRestock
		if ret.Reason == domain.ReasonOther {
			if req.RefundAmount == nil || req.Restock == nil {
				return apperror.NewInvalidInput("refund amount and restock decision are required for reason other")
			}
			if *req.RefundAmount < 0 || *req.RefundAmount > full {
				return apperror.Newf(apperror.ErrInvalidInput, "refund amount must be within [0,%d]", full).
					WithDetail("refund_amount", *req.RefundAmount)
			}
			ret.RefundAmount = *req.RefundAmount
			ret.IsRefunded = ret.RefundAmount > 0
			ret.ManualRestockRequired = false
			restockNow = *req.Restock
		} else {
			if req.RefundAmount != nil && *req.RefundAmount != full {
				return apperror.Newf(apperror.ErrInvalidInput, "refund for reason %s is fixed at %d", ret.Reason, full)
			}
			if req.Restock != nil && *req.Restock != policy.AutoRestock {
				return apperror.Newf(apperror.ErrInvalidInput, "restock for reason %s is fixed by policy", ret.Reason)
			}
			ret.RefundAmount = full
			ret.IsRefunded = policy.AutoRefund
		}

		now := p.days.Now().UTC()
		if restockNow {
			mv, err := ledger.New(tx, p.days.Now).ApplyReturnRestock(ctx, ret.ProductID, ret.QuantityReturned, ledger.Ref{Reference: ret.ID, ActorID: actor.ID})
			if err != nil {
				return err
			}
			ret.Restocked = true
			ret.RestockedAt = &now
			out.Movement = &mv
		}
		ret.Status = domain.ReturnStatusApproved
		ret.ApprovedBy = actor.ID
		ret.ApprovedAt = &now
		if err := tx.UpdateReturn(ctx, *ret, domain.ReturnStatusPending); err != nil {
			return err
		}
		out.Return = *ret
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

// MarkRestocked puts the units of an approved return that awaited a manual
// decision back on the shelf.
func (p *Processor) MarkRestocked(ctx context.Context, actor domain.Actor, id string) (Result, error) {
	var out Result
	err := p.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ret, err := tx.GetReturn(ctx, id)
		if err != nil {
			return err
		}
		if ret.Restocked || ret.Status == domain.ReturnStatusRestocked {
			return apperror.NewAlreadyRestocked(ret.ID)
		}
		if ret.Status != domain.ReturnStatusApproved || !ret.ManualRestockRequired {
			return apperror.NewInvalidState("return", ret.ID, string(ret.Status), "restock")
		}

		mv, err := ledger.New(tx, p.days.Now).ApplyReturnRestock(ctx, ret.ProductID, ret.QuantityReturned, ledger.Ref{Reference: ret.ID, ActorID: actor.ID})
		if err != nil {
			return err
		}
		now := p.days.Now().UTC()
		ret.Status = domain.ReturnStatusRestocked
		ret.Restocked = true
		ret.RestockedAt = &now
		if err := tx.UpdateReturn(ctx, *ret, domain.ReturnStatusApproved); err != nil {
			return err
		}
		out = Result{Return: *ret, Movement: &mv}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

// Reject closes a pending return with no stock or revenue effect.
func (p *Processor) Reject(ctx context.Context, actor domain.Actor, id string) (domain.Return, error) {
	var out domain.Return
	err := p.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ret, err := tx.GetReturn(ctx, id)
		if err != nil {
			return err
		}
		if ret.Status != domain.ReturnStatusPending {
			return apperror.NewInvalidState("return", ret.ID, string(ret.Status), "reject")
		}
		now := p.days.Now().UTC()
		ret.Status = domain.ReturnStatusRejected
		ret.RejectedBy = actor.ID
		ret.RejectedAt = &now
		if err := tx.UpdateReturn(ctx, *ret, domain.ReturnStatusPending); err != nil {
			return err
		}
		out = *ret
		return nil
	})
	return out, err
}

func (p *Processor) Get(ctx context.Context, id string) (domain.Return, error) {
	ret, err := p.repo.GetReturn(ctx, id)
	if err != nil {
		return domain.Return{}, err
	}
	return *ret, nil
}

func (p *Processor) List(ctx context.Context, filter store.ReturnFilter) ([]domain.Return, error) {
	return p.repo.ListReturns(ctx, filter)
}

func fullRefund(ret domain.Return) int64 {
	return ret.UnitPrice * int64(ret.QuantityReturned)
}
