package returns

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/businessday"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/sales"
	"github.com/Zimkada/BarTender-sub004/internal/store/memory"
)

var (
	server  = domain.Actor{ID: "srv-1", Role: domain.RoleServer}
	manager = domain.Actor{ID: "mgr-1", Role: domain.RoleManager}
)

type fixture struct {
	repo      *memory.Store
	register  *sales.Register
	processor *Processor
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: memory.NewSeeded(), now: time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)}
	days, err := businessday.NewResolver(6, time.UTC, func() time.Time { return f.now })
	require.NoError(t, err)
	f.register = sales.NewRegister(f.repo, days, domain.ModeSimplified)
	f.processor = NewProcessor(f.repo, days)
	return f
}

func (f *fixture) sell(t *testing.T, productID string, qty int) domain.Sale {
	t.Helper()
	res, err := f.register.Create(context.Background(), server, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: productID, Quantity: qty}},
	})
	require.NoError(t, err)
	return res.Sale
}

func (f *fixture) physical(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.repo.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.PhysicalStock
}

func ptr[T any](v T) *T { return &v }

func TestPolicyTable(t *testing.T) {
	want := map[domain.ReturnReason]Policy{
		domain.ReasonDefective:      {AutoRestock: false, AutoRefund: true},
		domain.ReasonWrongItem:      {AutoRestock: true, AutoRefund: true},
		domain.ReasonCustomerChange: {AutoRestock: true, AutoRefund: true},
		domain.ReasonExpired:        {AutoRestock: false, AutoRefund: true},
		domain.ReasonOther:          {AutoRestock: false, AutoRefund: false},
	}
	for _, reason := range Reasons() {
		got, err := PolicyFor(reason)
		require.NoError(t, err)
		require.Equal(t, want[reason], got, reason)
	}
	_, err := PolicyFor("broken_glass")
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestCreatePrefillsFromPolicy(t *testing.T) {
	f := newFixture(t)
	sale := f.sell(t, "prd-flag-65", 4)

	ret, err := f.processor.Create(context.Background(), server, domain.ReturnCreateRequest{
		SaleID: sale.ID, ProductID: "prd-flag-65", Quantity: 2, Reason: domain.ReasonDefective,
	})
	require.NoError(t, err)
	require.Equal(t, domain.ReturnStatusPending, ret.Status)
	require.Equal(t, int64(1400), ret.RefundAmount)
	require.False(t, ret.IsRefunded)
	require.False(t, ret.Refunds())
	require.False(t, ret.AutoRestock)
	require.True(t, ret.ManualRestockRequired)
	require.Equal(t, 4, ret.QuantitySold)
	require.Equal(t, sale.BusinessDay, ret.BusinessDay)
	require.Equal(t, "srv-1", ret.OriginalSeller)

	other, err := f.processor.Create(context.Background(), server, domain.ReturnCreateRequest{
		SaleID: sale.ID, ProductID: "prd-flag-65", Quantity: 1, Reason: domain.ReasonOther,
	})
	require.NoError(t, err)
	require.Zero(t, other.RefundAmount)
	require.False(t, other.IsRefunded)
	require.False(t, other.ManualRestockRequired)
}

func TestCreateGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sale := f.sell(t, "prd-flag-65", 2)

	_, err := f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-flag-65", Quantity: 3, Reason: domain.ReasonWrongItem})
	require.ErrorIs(t, err, apperror.ErrQuantityExceedsRemaining)

	_, err = f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-flag-65", Quantity: 1, Reason: "nope"})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: "missing", ProductID: "prd-flag-65", Quantity: 1, Reason: domain.ReasonWrongItem})
	require.ErrorIs(t, err, apperror.ErrNotFound)

	// Rejected returns free their quantity again.
	first, err := f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-flag-65", Quantity: 2, Reason: domain.ReasonWrongItem})
	require.NoError(t, err)
	_, err = f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-flag-65", Quantity: 1, Reason: domain.ReasonWrongItem})
	require.ErrorIs(t, err, apperror.ErrQuantityExceedsRemaining)
	_, err = f.processor.Reject(ctx, manager, first.ID)
	require.NoError(t, err)
	_, err = f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-flag-65", Quantity: 2, Reason: domain.ReasonWrongItem})
	require.NoError(t, err)
}

func TestCreateOutsideBusinessDay(t *testing.T) {
	f := newFixture(t)
	sale := f.sell(t, "prd-flag-65", 2)

	// 05:59 next morning is still the same business day.
	f.now = time.Date(2024, 5, 2, 5, 59, 0, 0, time.UTC)
	_, err := f.processor.Create(context.Background(), server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-flag-65", Quantity: 1, Reason: domain.ReasonWrongItem})
	require.NoError(t, err)

	f.now = time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	_, err = f.processor.Create(context.Background(), server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-flag-65", Quantity: 1, Reason: domain.ReasonWrongItem})
	require.ErrorIs(t, err, apperror.ErrOutsideBusinessDay)
}

func TestApproveAutoRestock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sale := f.sell(t, "prd-coca-33", 3) // 60 -> 57

	ret, err := f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-coca-33", Quantity: 2, Reason: domain.ReasonCustomerChange})
	require.NoError(t, err)
	require.Equal(t, 57, f.physical(t, "prd-coca-33"))

	res, err := f.processor.Approve(ctx, manager, ret.ID, domain.ReturnApproveRequest{})
	require.NoError(t, err)
	require.Equal(t, domain.ReturnStatusApproved, res.Return.Status)
	require.True(t, res.Return.Restocked)
	require.NotNil(t, res.Movement)
	require.Equal(t, 59, f.physical(t, "prd-coca-33"))

	_, err = f.processor.MarkRestocked(ctx, manager, ret.ID)
	require.ErrorIs(t, err, apperror.ErrAlreadyRestocked)
	_, err = f.processor.Approve(ctx, manager, ret.ID, domain.ReturnApproveRequest{})
	require.ErrorIs(t, err, apperror.ErrInvalidState)
	require.Equal(t, 59, f.physical(t, "prd-coca-33"))
}

func TestApproveManualRestockThenMarkRestockedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sale := f.sell(t, "prd-coca-33", 3) // 57

	ret, err := f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-coca-33", Quantity: 1, Reason: domain.ReasonExpired})
	require.NoError(t, err)

	_, err = f.processor.MarkRestocked(ctx, manager, ret.ID)
	require.ErrorIs(t, err, apperror.ErrInvalidState)

	require.False(t, ret.Refunds())

	approved, err := f.processor.Approve(ctx, manager, ret.ID, domain.ReturnApproveRequest{})
	require.NoError(t, err)
	require.Nil(t, approved.Movement)
	require.True(t, approved.Return.IsRefunded)
	require.True(t, approved.Return.Refunds())
	require.Equal(t, 57, f.physical(t, "prd-coca-33"))

	restocked, err := f.processor.MarkRestocked(ctx, manager, ret.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReturnStatusRestocked, restocked.Return.Status)
	require.Equal(t, 58, f.physical(t, "prd-coca-33"))

	_, err = f.processor.MarkRestocked(ctx, manager, ret.ID)
	require.ErrorIs(t, err, apperror.ErrAlreadyRestocked)
	require.Equal(t, 58, f.physical(t, "prd-coca-33"))
}

func TestApproveRejectsOverrideOfFixedRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sale := f.sell(t, "prd-flag-65", 2)
	ret, err := f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-flag-65", Quantity: 1, Reason: domain.ReasonWrongItem})
	require.NoError(t, err)

	_, err = f.processor.Approve(ctx, manager, ret.ID, domain.ReturnApproveRequest{RefundAmount: ptr(int64(100))})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
	_, err = f.processor.Approve(ctx, manager, ret.ID, domain.ReturnApproveRequest{Restock: ptr(false)})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)

	res, err := f.processor.Approve(ctx, manager, ret.ID, domain.ReturnApproveRequest{RefundAmount: ptr(int64(700)), Restock: ptr(true)})
	require.NoError(t, err)
	require.Equal(t, int64(700), res.Return.RefundAmount)
}

func TestApproveOtherRequiresDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sale := f.sell(t, "prd-flag-65", 2) // 94
	ret, err := f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-flag-65", Quantity: 2, Reason: domain.ReasonOther})
	require.NoError(t, err)

	_, err = f.processor.Approve(ctx, manager, ret.ID, domain.ReturnApproveRequest{RefundAmount: ptr(int64(500))})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
	_, err = f.processor.Approve(ctx, manager, ret.ID, domain.ReturnApproveRequest{RefundAmount: ptr(int64(1401)), Restock: ptr(true)})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
	_, err = f.processor.Approve(ctx, manager, ret.ID, domain.ReturnApproveRequest{RefundAmount: ptr(int64(-1)), Restock: ptr(true)})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)

	res, err := f.processor.Approve(ctx, manager, ret.ID, domain.ReturnApproveRequest{RefundAmount: ptr(int64(500)), Restock: ptr(true)})
	require.NoError(t, err)
	require.Equal(t, int64(500), res.Return.RefundAmount)
	require.True(t, res.Return.IsRefunded)
	require.True(t, res.Return.Restocked)
	require.Equal(t, 96, f.physical(t, "prd-flag-65"))

	// Zero refund without restock: approved but with no effect at all.
	ret2, err := f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: f.sell(t, "prd-flag-65", 1).ID, ProductID: "prd-flag-65", Quantity: 1, Reason: domain.ReasonOther})
	require.NoError(t, err)
	res, err = f.processor.Approve(ctx, manager, ret2.ID, domain.ReturnApproveRequest{RefundAmount: ptr(int64(0)), Restock: ptr(false)})
	require.NoError(t, err)
	require.False(t, res.Return.IsRefunded)
	require.False(t, res.Return.ManualRestockRequired)
	require.False(t, res.Return.Refunds())

	_, err = f.processor.MarkRestocked(ctx, manager, ret2.ID)
	require.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestRejectHasNoEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sale := f.sell(t, "prd-flag-65", 2)
	ret, err := f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-flag-65", Quantity: 2, Reason: domain.ReasonWrongItem})
	require.NoError(t, err)

	rejected, err := f.processor.Reject(ctx, manager, ret.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReturnStatusRejected, rejected.Status)
	require.False(t, rejected.Refunds())
	require.Equal(t, 94, f.physical(t, "prd-flag-65"))

	_, err = f.processor.Reject(ctx, manager, ret.ID)
	require.ErrorIs(t, err, apperror.ErrInvalidState)
	_, err = f.processor.Approve(ctx, manager, ret.ID, domain.ReturnApproveRequest{})
	require.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestConcurrentApprovalsApplyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sale := f.sell(t, "prd-coca-33", 4) // 56
	ret, err := f.processor.Create(ctx, server, domain.ReturnCreateRequest{SaleID: sale.ID, ProductID: "prd-coca-33", Quantity: 4, Reason: domain.ReasonWrongItem})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.processor.Approve(ctx, manager, ret.ID, domain.ReturnApproveRequest{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, apperror.ErrInvalidState)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 60, f.physical(t, "prd-coca-33"))
}
