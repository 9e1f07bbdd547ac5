package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/store"
	"github.com/Zimkada/BarTender-sub004/internal/store/memory"
)

const (
	opSale = iota
	opSupply
	opConsign
	opClaim
	opForfeit
	opRestock
)

// TestVendableInvariantHolds applies random operation sequences and checks
// that physical stock never drops below the consigned quantity and that
// vendable always equals physical minus consigned.
func TestVendableInvariantHolds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("vendable = physical - active consigned", prop.ForAll(
		func(ops []int, qtys []int) bool {
			s := memory.New()
			ctx := context.Background()
			if err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
				return tx.CreateProduct(ctx, domain.Product{ID: "beer", PhysicalStock: 12})
			}); err != nil {
				return false
			}

			consignments := 0
			for i := 0; i < len(ops) && i < len(qtys); i++ {
				op, qty := ops[i], qtys[i]
				_ = s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
					return step(ctx, tx, op, qty, &consignments)
				})

				view, err := Info(ctx, s, "beer")
				if err != nil {
					return false
				}
				if view.Physical < 0 || view.Physical < view.Consigned {
					return false
				}
				if view.Vendable != view.Physical-view.Consigned || IsSuspicious(view) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(opSale, opRestock)),
		gen.SliceOf(gen.IntRange(1, 8)),
	))

	properties.TestingRun(t)
}

func step(ctx context.Context, tx store.Tx, op int, qty int, consignments *int) error {
	l := New(tx, fixedNow)
	switch op {
	case opSale:
		_, err := l.ApplySale(ctx, "beer", qty, Ref{})
		return err
	case opSupply:
		_, err := l.ApplySupply(ctx, "beer", qty, Ref{})
		return err
	case opRestock:
		_, err := l.ApplyReturnRestock(ctx, "beer", qty, Ref{})
		return err
	case opConsign:
		*consignments++
		id := fmt.Sprintf("csg-%d", *consignments)
		if err := tx.CreateConsignment(ctx, domain.Consignment{ID: id, ProductID: "beer", Quantity: qty, Status: domain.ConsignmentStatusActive}); err != nil {
			return err
		}
		_, err := l.ApplyConsignmentCreated(ctx, "beer", qty, Ref{Reference: id})
		return err
	case opClaim, opForfeit:
		active, err := tx.ListConsignments(ctx, store.ConsignmentFilter{Statuses: []domain.ConsignmentStatus{domain.ConsignmentStatusActive}, Limit: 1})
		if err != nil || len(active) == 0 {
			return err
		}
		c := active[0]
		if op == opClaim {
			c.Status = domain.ConsignmentStatusClaimed
			_, err = l.ApplyConsignmentClaimed(ctx, c.ProductID, c.Quantity, Ref{Reference: c.ID})
		} else {
			c.Status = domain.ConsignmentStatusForfeited
			_, err = l.ApplyConsignmentForfeited(ctx, c.ProductID, c.Quantity, Ref{Reference: c.ID})
		}
		if err != nil {
			return err
		}
		return tx.UpdateConsignment(ctx, c, domain.ConsignmentStatusActive)
	}
	return nil
}
