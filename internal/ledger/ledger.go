// Package ledger is the single authority for physical stock mutations.
//
// Physical stock is what sits on the shelves. Vendable stock is what may be
// sold: physical minus the units held for customers under active
// consignments. Vendable is always derived, never stored.
package ledger

import (
	"context"
	"time"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/store"
	"github.com/Zimkada/BarTender-sub004/internal/xid"
)

// Ref attributes a movement to the entity and person that caused it.
type Ref struct {
	Reference string
	ActorID   string
}

// Ledger applies stock operations inside one store transaction.
type Ledger struct {
	tx  store.Tx
	now func() time.Time
}

func New(tx store.Tx, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{tx: tx, now: now}
}

// Vendable returns max(0, physical - consigned).
func Vendable(physical, consigned int) int {
	if v := physical - consigned; v > 0 {
		return v
	}
	return 0
}

// Info reads the dual stock view of a product.
func Info(ctx context.Context, r store.Reader, productID string) (domain.StockInfo, error) {
	p, err := r.GetProduct(ctx, productID)
	if err != nil {
		return domain.StockInfo{}, err
	}
	consigned, err := r.ConsignedQuantity(ctx, productID)
	if err != nil {
		return domain.StockInfo{}, err
	}
	return NewInfo(*p, consigned), nil
}

func NewInfo(p domain.Product, consigned int) domain.StockInfo {
	return domain.StockInfo{
		ProductID: p.ID,
		Physical:  p.PhysicalStock,
		Consigned: consigned,
		Vendable:  Vendable(p.PhysicalStock, consigned),
	}
}

// IsSuspicious flags a stock view that no sequence of valid operations
// should produce.
func IsSuspicious(info domain.StockInfo) bool {
	return info.Physical < 0 || info.Physical-info.Consigned < 0
}

// IsLowStock reports whether vendable stock reached the alert threshold.
func IsLowStock(info domain.StockInfo, alertThreshold int) bool {
	return info.Vendable <= alertThreshold
}

// ApplySale removes qty sold units. Fails with InsufficientStock when fewer
// than qty units are vendable.
func (l *Ledger) ApplySale(ctx context.Context, productID string, qty int, ref Ref) (domain.Movement, error) {
	return l.mutate(ctx, productID, domain.MovementSale, -qty, qty, ref, func(p domain.Product, consigned int) error {
		if available := Vendable(p.PhysicalStock, consigned); available < qty {
			return apperror.NewInsufficientStock(productID, qty, available)
		}
		return nil
	})
}

// ApplySaleCancellation puts back the units of a cancelled sale.
func (l *Ledger) ApplySaleCancellation(ctx context.Context, productID string, qty int, ref Ref) (domain.Movement, error) {
	return l.mutate(ctx, productID, domain.MovementSaleCancellation, qty, qty, ref, nil)
}

func (l *Ledger) ApplySupply(ctx context.Context, productID string, qty int, ref Ref) (domain.Movement, error) {
	return l.mutate(ctx, productID, domain.MovementSupply, qty, qty, ref, nil)
}

func (l *Ledger) ApplyReturnRestock(ctx context.Context, productID string, qty int, ref Ref) (domain.Movement, error) {
	return l.mutate(ctx, productID, domain.MovementReturnRestock, qty, qty, ref, nil)
}

// ApplyConsignmentCreated puts the paid units back on the shelf. They stay
// out of vendable stock while the consignment is active.
func (l *Ledger) ApplyConsignmentCreated(ctx context.Context, productID string, qty int, ref Ref) (domain.Movement, error) {
	return l.mutate(ctx, productID, domain.MovementConsignmentCreated, qty, qty, ref, nil)
}

// ApplyConsignmentClaimed hands the units to the customer.
func (l *Ledger) ApplyConsignmentClaimed(ctx context.Context, productID string, qty int, ref Ref) (domain.Movement, error) {
	return l.mutate(ctx, productID, domain.MovementConsignmentClaimed, -qty, qty, ref, func(p domain.Product, _ int) error {
		if p.PhysicalStock < qty {
			return apperror.NewInsufficientStock(productID, qty, p.PhysicalStock)
		}
		return nil
	})
}

// ApplyConsignmentForfeited leaves physical stock untouched. Vendable rises
// once the consignment leaves the active set; the movement is recorded with
// a zero delta for the trail.
func (l *Ledger) ApplyConsignmentForfeited(ctx context.Context, productID string, qty int, ref Ref) (domain.Movement, error) {
	return l.mutate(ctx, productID, domain.MovementConsignmentForfeited, 0, qty, ref, nil)
}

// ApplyCount sets physical stock to a counted value.
func (l *Ledger) ApplyCount(ctx context.Context, productID string, counted int, ref Ref) (domain.Movement, error) {
	if counted < 0 {
		return domain.Movement{}, apperror.NewInvalidInput("counted quantity must not be negative")
	}
	p, err := l.tx.GetProduct(ctx, productID)
	if err != nil {
		return domain.Movement{}, err
	}
	return l.write(ctx, *p, domain.MovementCount, counted-p.PhysicalStock, ref)
}

func (l *Ledger) mutate(ctx context.Context, productID string, kind domain.MovementKind, delta int, qty int, ref Ref, check func(p domain.Product, consigned int) error) (domain.Movement, error) {
	if qty <= 0 {
		return domain.Movement{}, apperror.NewInvalidInput("quantity must be positive")
	}
	p, err := l.tx.GetProduct(ctx, productID)
	if err != nil {
		return domain.Movement{}, err
	}
	if check != nil {
		consigned, err := l.tx.ConsignedQuantity(ctx, productID)
		if err != nil {
			return domain.Movement{}, err
		}
		if err := check(*p, consigned); err != nil {
			return domain.Movement{}, err
		}
	}
	return l.write(ctx, *p, kind, delta, ref)
}

func (l *Ledger) write(ctx context.Context, p domain.Product, kind domain.MovementKind, delta int, ref Ref) (domain.Movement, error) {
	now := l.now().UTC()
	before := p.PhysicalStock
	if delta != 0 {
		p.PhysicalStock += delta
		p.UpdatedAt = now
		if _, err := l.tx.UpdateProduct(ctx, p); err != nil {
			return domain.Movement{}, err
		}
	}
	m := domain.Movement{
		ID:        xid.New("mov"),
		ProductID: p.ID,
		Kind:      kind,
		Delta:     delta,
		Before:    before,
		After:     p.PhysicalStock,
		Reference: ref.Reference,
		ActorID:   ref.ActorID,
		At:        now,
	}
	if err := l.tx.AppendMovements(ctx, []domain.Movement{m}); err != nil {
		return domain.Movement{}, err
	}
	return m, nil
}
