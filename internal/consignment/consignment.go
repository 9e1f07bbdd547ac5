// Package consignment manages paid units a customer leaves at the bar to
// collect later. Expiration is advisory: a consignment only leaves the
// active state through an explicit claim or forfeit.
package consignment

import (
	"context"
	"strings"
	"time"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/businessday"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/ledger"
	"github.com/Zimkada/BarTender-sub004/internal/sales"
	"github.com/Zimkada/BarTender-sub004/internal/store"
	"github.com/Zimkada/BarTender-sub004/internal/xid"
)

const (
	DefaultExpirationDays = 7
	MinExpirationDays     = 1
	MaxExpirationDays     = 30

	// WarningWindow is how close to expiry a consignment is flagged.
	WarningWindow = 24 * time.Hour
)

// ValidateExpirationDays rejects values outside [1,30].
func ValidateExpirationDays(days int) error {
	if days < MinExpirationDays || days > MaxExpirationDays {
		return apperror.Newf(apperror.ErrConfiguration, "expiration days %d outside [%d,%d]", days, MinExpirationDays, MaxExpirationDays)
	}
	return nil
}

// Result is a committed consignment with the stock movement it caused.
type Result struct {
	Consignment domain.Consignment `json:"consignment"`
	Movement    domain.Movement    `json:"movement"`
}

type Manager struct {
	repo        store.Repository
	days        *businessday.Resolver
	defaultDays int
}

func NewManager(repo store.Repository, days *businessday.Resolver, defaultDays int) (*Manager, error) {
	if defaultDays == 0 {
		defaultDays = DefaultExpirationDays
	}
	if err := ValidateExpirationDays(defaultDays); err != nil {
		return nil, err
	}
	return &Manager{repo: repo, days: days, defaultDays: defaultDays}, nil
}

// Create puts qty units of a validated sale on hold for the customer.
// The units return to physical stock but stay out of vendable stock.
func (m *Manager) Create(ctx context.Context, actor domain.Actor, req domain.ConsignmentCreateRequest) (Result, error) {
	if req.Quantity < 1 {
		return Result{}, apperror.NewInvalidInput("quantity must be positive")
	}
	customer := strings.TrimSpace(req.CustomerName)
	if customer == "" {
		return Result{}, apperror.NewInvalidInput("customer name required")
	}
	expirationDays := m.defaultDays
	if req.ExpirationDays != nil {
		if err := ValidateExpirationDays(*req.ExpirationDays); err != nil {
			return Result{}, err
		}
		expirationDays = *req.ExpirationDays
	}

	var out Result
	err := m.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := tx.GetSale(ctx, req.SaleID)
		if err != nil {
			return err
		}
		if sale.Status != domain.SaleStatusValidated {
			return apperror.NewInvalidState("sale", sale.ID, string(sale.Status), "consign")
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

		now := m.days.Now().UTC()
		c := domain.Consignment{
			ID:             xid.New("csg"),
			SaleID:         sale.ID,
			ProductID:      req.ProductID,
			Quantity:       req.Quantity,
			TotalAmount:    unitPrice * int64(req.Quantity),
			CustomerName:   customer,
			CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
			Notes:          strings.TrimSpace(req.Notes),
			Status:         domain.ConsignmentStatusActive,
			BusinessDay:    m.days.Of(now),
			OriginalSeller: sale.SoldBy,
			CreatedBy:      actor.ID,
			CreatedAt:      now,
			ExpiresAt:      now.AddDate(0, 0, expirationDays),
		}
		if err := tx.CreateConsignment(ctx, c); err != nil {
			return err
		}
		mv, err := ledger.New(tx, m.days.Now).ApplyConsignmentCreated(ctx, c.ProductID, c.Quantity, ledger.Ref{Reference: c.ID, ActorID: actor.ID})
		if err != nil {
			return err
		}
		out = Result{Consignment: c, Movement: mv}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

// Claim hands the held units to the customer. No refund is involved.
func (m *Manager) Claim(ctx context.Context, actor domain.Actor, id string) (Result, error) {
	return m.close(ctx, actor, id, domain.ConsignmentStatusClaimed)
}

// Forfeit releases the held units into vendable stock. Physical stock is
// unchanged and the payment is kept.
func (m *Manager) Forfeit(ctx context.Context, actor domain.Actor, id string) (Result, error) {
	return m.close(ctx, actor, id, domain.ConsignmentStatusForfeited)
}

func (m *Manager) close(ctx context.Context, actor domain.Actor, id string, to domain.ConsignmentStatus) (Result, error) {
	var out Result
	err := m.repo.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.GetConsignment(ctx, id)
		if err != nil {
			return err
		}
		operation := "claim"
		if to == domain.ConsignmentStatusForfeited {
			operation = "forfeit"
		}
		if c.Status != domain.ConsignmentStatusActive {
			return apperror.NewInvalidState("consignment", c.ID, string(c.Status), operation)
		}

		l := ledger.New(tx, m.days.Now)
		ref := ledger.Ref{Reference: c.ID, ActorID: actor.ID}
		var mv domain.Movement
		if to == domain.ConsignmentStatusClaimed {
			mv, err = l.ApplyConsignmentClaimed(ctx, c.ProductID, c.Quantity, ref)
		} else {
			mv, err = l.ApplyConsignmentForfeited(ctx, c.ProductID, c.Quantity, ref)
		}
		if err != nil {
			return err
		}

		now := m.days.Now().UTC()
		c.Status = to
		if to == domain.ConsignmentStatusClaimed {
			c.ClaimedBy = actor.ID
			c.ClaimedAt = &now
		} else {
			c.ForfeitedBy = actor.ID
			c.ForfeitedAt = &now
		}
		if err := tx.UpdateConsignment(ctx, *c, domain.ConsignmentStatusActive); err != nil {
			return err
		}
		out = Result{Consignment: *c, Movement: mv}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

func (m *Manager) Get(ctx context.Context, id string) (domain.Consignment, error) {
	c, err := m.repo.GetConsignment(ctx, id)
	if err != nil {
		return domain.Consignment{}, err
	}
	return *c, nil
}

func (m *Manager) List(ctx context.Context, filter store.ConsignmentFilter) ([]domain.Consignment, error) {
	return m.repo.ListConsignments(ctx, filter)
}

// Expired lists active consignments past their expiry. Nothing is
// forfeited automatically.
func (m *Manager) Expired(ctx context.Context) ([]domain.Consignment, error) {
	active, err := m.repo.ListConsignments(ctx, store.ConsignmentFilter{Statuses: []domain.ConsignmentStatus{domain.ConsignmentStatusActive}})
	if err != nil {
		return nil, err
	}
	now := m.days.Now()
	out := make([]domain.Consignment, 0, len(active))
	for _, c := range active {
		if Urgency(c, now) == domain.UrgencyExpired {
			out = append(out, c)
		}
	}
	return out, nil
}

// HoursLeft is the signed number of hours before expiry.
func HoursLeft(c domain.Consignment, now time.Time) float64 {
	return c.ExpiresAt.Sub(now).Hours()
}

// Urgency classifies an active consignment by time left before expiry.
func Urgency(c domain.Consignment, now time.Time) domain.Urgency {
	left := c.ExpiresAt.Sub(now)
	switch {
	case left < 0:
		return domain.UrgencyExpired
	case left <= WarningWindow:
		return domain.UrgencyWarning
	default:
		return domain.UrgencyOK
	}
}
