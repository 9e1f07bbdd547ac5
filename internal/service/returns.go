package service

import (
	"context"
	"strings"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/audit"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/returns"
	"github.com/Zimkada/BarTender-sub004/internal/store"
)

func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnCreateRequest) (domain.Return, error) {
	return traced(ctx, s, "return.create", func(ctx context.Context) (domain.Return, error) {
		actor, err := requireRole(ctx, "create returns", staffRoles...)
		if err != nil {
			return domain.Return{}, err
		}
		req.SaleID = strings.TrimSpace(req.SaleID)
		req.ProductID = strings.TrimSpace(req.ProductID)
		req.Notes = strings.TrimSpace(req.Notes)
		if err := s.check(req); err != nil {
			return domain.Return{}, err
		}
		ret, err := s.returns.Create(ctx, actor, req)
		if err != nil {
			return domain.Return{}, err
		}
		s.committed(ctx, actor, audit.ActionReturnCreated, "return", ret.ID, audit.Transition("", ret.Status), map[string]any{
			"sale_id":    ret.SaleID,
			"product_id": ret.ProductID,
			"quantity":   ret.QuantityReturned,
			"reason":     ret.Reason,
		})
		return ret, nil
	})
}

func (s *Service) ApproveReturn(ctx context.Context, id string, req domain.ReturnApproveRequest) (returns.Result, error) {
	return traced(ctx, s, "return.approve", func(ctx context.Context) (returns.Result, error) {
		actor, err := requireRole(ctx, "approve returns", managerRoles...)
		if err != nil {
			return returns.Result{}, err
		}
		res, err := s.returns.Approve(ctx, actor, id, req)
		if err != nil {
			return returns.Result{}, err
		}
		change := audit.Transition(domain.ReturnStatusPending, res.Return.Status, optional(res.Movement)...)
		s.committed(ctx, actor, audit.ActionReturnApproved, "return", id, change, map[string]any{
			"refund_amount":           res.Return.RefundAmount,
			"is_refunded":             res.Return.IsRefunded,
			"restocked":               res.Return.Restocked,
			"manual_restock_required": res.Return.ManualRestockRequired,
		})
		return res, nil
	})
}

func (s *Service) RejectReturn(ctx context.Context, id string) (domain.Return, error) {
	return traced(ctx, s, "return.reject", func(ctx context.Context) (domain.Return, error) {
		actor, err := requireRole(ctx, "reject returns", managerRoles...)
		if err != nil {
			return domain.Return{}, err
		}
		ret, err := s.returns.Reject(ctx, actor, id)
		if err != nil {
			return domain.Return{}, err
		}
		s.committed(ctx, actor, audit.ActionReturnRejected, "return", id, audit.Transition(domain.ReturnStatusPending, ret.Status), nil)
		return ret, nil
	})
}

func (s *Service) MarkReturnRestocked(ctx context.Context, id string) (returns.Result, error) {
	return traced(ctx, s, "return.restock", func(ctx context.Context) (returns.Result, error) {
		actor, err := requireRole(ctx, "restock returns", managerRoles...)
		if err != nil {
			return returns.Result{}, err
		}
		res, err := s.returns.MarkRestocked(ctx, actor, id)
		if err != nil {
			return returns.Result{}, err
		}
		change := audit.Transition(domain.ReturnStatusApproved, res.Return.Status, optional(res.Movement)...)
		s.committed(ctx, actor, audit.ActionReturnRestocked, "return", id, change, map[string]any{
			"product_id": res.Return.ProductID,
			"quantity":   res.Return.QuantityReturned,
		})
		return res, nil
	})
}

// GetReturn returns a return. Servers see returns they requested or that
// concern their own sales.
func (s *Service) GetReturn(ctx context.Context, id string) (domain.Return, error) {
	actor, err := requireRole(ctx, "view returns", staffRoles...)
	if err != nil {
		return domain.Return{}, err
	}
	ret, err := s.returns.Get(ctx, id)
	if err != nil {
		return domain.Return{}, err
	}
	if !visibleTo(actor, ret) {
		return domain.Return{}, apperror.NewNotFound("return", id)
	}
	return ret, nil
}

func (s *Service) ListReturns(ctx context.Context, filter store.ReturnFilter) ([]domain.Return, error) {
	actor, err := requireRole(ctx, "view returns", staffRoles...)
	if err != nil {
		return nil, err
	}
	list, err := s.returns.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if isManager(actor) {
		return list, nil
	}
	out := make([]domain.Return, 0, len(list))
	for _, ret := range list {
		if visibleTo(actor, ret) {
			out = append(out, ret)
		}
	}
	return out, nil
}

func visibleTo(actor domain.Actor, ret domain.Return) bool {
	return isManager(actor) || ret.OriginalSeller == actor.ID || ret.RequestedBy == actor.ID
}
