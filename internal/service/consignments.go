package service

import (
	"context"
	"math"
	"strings"

	"github.com/Zimkada/BarTender-sub004/internal/audit"
	"github.com/Zimkada/BarTender-sub004/internal/consignment"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/store"
)

// ConsignmentView adds the expiry outlook of active consignments.
type ConsignmentView struct {
	domain.Consignment
	Urgency   domain.Urgency `json:"urgency,omitempty"`
	HoursLeft float64        `json:"hours_left,omitempty"`
}

func (s *Service) viewConsignment(c domain.Consignment) ConsignmentView {
	v := ConsignmentView{Consignment: c}
	if c.Status == domain.ConsignmentStatusActive {
		now := s.days.Now()
		v.Urgency = consignment.Urgency(c, now)
		v.HoursLeft = math.Round(consignment.HoursLeft(c, now)*10) / 10
	}
	return v
}

func (s *Service) CreateConsignment(ctx context.Context, req domain.ConsignmentCreateRequest) (consignment.Result, error) {
	return traced(ctx, s, "consignment.create", func(ctx context.Context) (consignment.Result, error) {
		actor, err := requireRole(ctx, "create consignments", staffRoles...)
		if err != nil {
			return consignment.Result{}, err
		}
		req.SaleID = strings.TrimSpace(req.SaleID)
		req.ProductID = strings.TrimSpace(req.ProductID)
		req.CustomerName = strings.TrimSpace(req.CustomerName)
		if err := s.check(req); err != nil {
			return consignment.Result{}, err
		}
		res, err := s.consignments.Create(ctx, actor, req)
		if err != nil {
			return consignment.Result{}, err
		}
		c := res.Consignment
		change := audit.Transition("", c.Status, res.Movement)
		s.committed(ctx, actor, audit.ActionConsignmentCreated, "consignment", c.ID, change, map[string]any{
			"sale_id":    c.SaleID,
			"product_id": c.ProductID,
			"quantity":   c.Quantity,
			"expires_at": c.ExpiresAt,
		})
		return res, nil
	})
}

func (s *Service) ClaimConsignment(ctx context.Context, id string) (consignment.Result, error) {
	return traced(ctx, s, "consignment.claim", func(ctx context.Context) (consignment.Result, error) {
		actor, err := requireRole(ctx, "claim consignments", staffRoles...)
		if err != nil {
			return consignment.Result{}, err
		}
		res, err := s.consignments.Claim(ctx, actor, id)
		if err != nil {
			return consignment.Result{}, err
		}
		change := audit.Transition(domain.ConsignmentStatusActive, res.Consignment.Status, res.Movement)
		s.committed(ctx, actor, audit.ActionConsignmentClaimed, "consignment", id, change, map[string]any{
			"product_id": res.Consignment.ProductID,
			"quantity":   res.Consignment.Quantity,
		})
		return res, nil
	})
}

// ForfeitConsignment releases held units back to vendable stock. Forfeiting
// a consignment past its expiry is audited as an expiry.
func (s *Service) ForfeitConsignment(ctx context.Context, id string) (consignment.Result, error) {
	return traced(ctx, s, "consignment.forfeit", func(ctx context.Context) (consignment.Result, error) {
		actor, err := requireRole(ctx, "forfeit consignments", managerRoles...)
		if err != nil {
			return consignment.Result{}, err
		}
		res, err := s.consignments.Forfeit(ctx, actor, id)
		if err != nil {
			return consignment.Result{}, err
		}
		action := audit.ActionConsignmentForfeit
		if res.Consignment.ForfeitedAt != nil && res.Consignment.ForfeitedAt.After(res.Consignment.ExpiresAt) {
			action = audit.ActionConsignmentExpired
		}
		change := audit.Transition(domain.ConsignmentStatusActive, res.Consignment.Status, res.Movement)
		s.committed(ctx, actor, action, "consignment", id, change, map[string]any{
			"product_id": res.Consignment.ProductID,
			"quantity":   res.Consignment.Quantity,
		})
		return res, nil
	})
}

func (s *Service) GetConsignment(ctx context.Context, id string) (ConsignmentView, error) {
	if _, err := requireRole(ctx, "view consignments", staffRoles...); err != nil {
		return ConsignmentView{}, err
	}
	c, err := s.consignments.Get(ctx, id)
	if err != nil {
		return ConsignmentView{}, err
	}
	return s.viewConsignment(c), nil
}

func (s *Service) ListConsignments(ctx context.Context, filter store.ConsignmentFilter) ([]ConsignmentView, error) {
	if _, err := requireRole(ctx, "view consignments", staffRoles...); err != nil {
		return nil, err
	}
	list, err := s.consignments.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.views(list), nil
}

// ExpiredConsignments lists active consignments past expiry, awaiting a
// manager's forfeit.
func (s *Service) ExpiredConsignments(ctx context.Context) ([]ConsignmentView, error) {
	if _, err := requireRole(ctx, "view consignments", staffRoles...); err != nil {
		return nil, err
	}
	list, err := s.consignments.Expired(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(list), nil
}

func (s *Service) views(list []domain.Consignment) []ConsignmentView {
	out := make([]ConsignmentView, 0, len(list))
	for _, c := range list {
		out = append(out, s.viewConsignment(c))
	}
	return out
}
