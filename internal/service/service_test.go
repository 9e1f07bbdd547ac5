package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/audit"
	"github.com/Zimkada/BarTender-sub004/internal/cache"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/store"
	"github.com/Zimkada/BarTender-sub004/internal/store/memory"
)

var (
	server  = domain.Actor{ID: "srv-1", Role: domain.RoleServer}
	server2 = domain.Actor{ID: "srv-2", Role: domain.RoleServer}
	manager = domain.Actor{ID: "mgr-1", Role: domain.RoleManager}
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Write(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) actions() []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Action, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	svc  *Service
	repo *memory.Store
	sink *recordingSink
	now  time.Time
}

func newFixture(t *testing.T, mode domain.OperatingMode, stats cache.StatsCache) *fixture {
	t.Helper()
	f := &fixture{
		repo: memory.New(),
		sink: &recordingSink{},
		now:  time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC),
	}
	svc, err := New(f.repo, Options{
		Venue: domain.VenueSettings{
			CloseHour:                 6,
			ConsignmentExpirationDays: 7,
			Currency:                  "XOF",
			OperatingMode:             mode,
			Location:                  time.UTC,
		},
		Audit: f.sink,
		Stats: stats,
		Now:   func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func as(actor domain.Actor) context.Context {
	return WithActor(context.Background(), actor)
}

func (f *fixture) product(t *testing.T, price int64, stock int) domain.Product {
	t.Helper()
	cost := price * 6 / 10
	p, err := f.svc.CreateProduct(as(manager), domain.ProductCreateRequest{
		Name:           "Flag Special 65cl",
		CategoryID:     "beer",
		Price:          price,
		CostPrice:      &cost,
		InitialStock:   stock,
		AlertThreshold: 5,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) sell(t *testing.T, actor domain.Actor, productID string, qty int) domain.Sale {
	t.Helper()
	res, err := f.svc.CreateSale(as(actor), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: productID, Quantity: qty}},
	})
	require.NoError(t, err)
	return res.Sale
}

func (f *fixture) stock(t *testing.T, productID string) domain.StockInfo {
	t.Helper()
	info, err := f.svc.StockInfo(context.Background(), productID)
	require.NoError(t, err)
	return info
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	_, err := New(memory.New(), Options{Venue: domain.VenueSettings{CloseHour: 24}})
	require.ErrorIs(t, err, apperror.ErrConfiguration)

	_, err = New(memory.New(), Options{Venue: domain.VenueSettings{CloseHour: 6, ConsignmentExpirationDays: 31}})
	require.ErrorIs(t, err, apperror.ErrConfiguration)

	_, err = New(memory.New(), Options{Venue: domain.VenueSettings{OperatingMode: "drive-through"}})
	require.ErrorIs(t, err, apperror.ErrConfiguration)
}

func TestConsignThenClaimKeepsVendable(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)
	p := f.product(t, 1000, 50)

	sale := f.sell(t, server, p.ID, 10)
	require.Equal(t, domain.StockInfo{ProductID: p.ID, Physical: 40, Consigned: 0, Vendable: 40}, f.stock(t, p.ID))

	res, err := f.svc.CreateConsignment(as(server), domain.ConsignmentCreateRequest{
		SaleID: sale.ID, ProductID: p.ID, Quantity: 5, CustomerName: "Koffi",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StockInfo{ProductID: p.ID, Physical: 45, Consigned: 5, Vendable: 40}, f.stock(t, p.ID))

	_, err = f.svc.ClaimConsignment(as(server), res.Consignment.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StockInfo{ProductID: p.ID, Physical: 40, Consigned: 0, Vendable: 40}, f.stock(t, p.ID))
}

// interleavingRepo runs afterProduct once a snapshot has read a product,
// before the snapshot reads anything else.
type interleavingRepo struct {
	store.Repository
	afterProduct func()
}

func (r *interleavingRepo) ReadSnapshot(ctx context.Context, fn func(ctx context.Context, rd store.Reader) error) error {
	return r.Repository.ReadSnapshot(ctx, func(ctx context.Context, rd store.Reader) error {
		return fn(ctx, &interleavingReader{Reader: rd, afterProduct: r.afterProduct})
	})
}

type interleavingReader struct {
	store.Reader
	afterProduct func()
}

func (r *interleavingReader) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := r.Reader.GetProduct(ctx, id)
	if r.afterProduct != nil {
		r.afterProduct()
	}
	return p, err
}

func TestStockInfoIsOneSnapshotWhileConsignmentCommits(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)
	p := f.product(t, 1000, 50)
	sale := f.sell(t, server, p.ID, 10)

	repo := &interleavingRepo{Repository: f.repo}
	svc, err := New(repo, Options{
		Venue: domain.VenueSettings{CloseHour: 6, ConsignmentExpirationDays: 7, Currency: "XOF", OperatingMode: domain.ModeSimplified, Location: time.UTC},
		Now:   func() time.Time { return f.now },
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	repo.afterProduct = func() {
		repo.afterProduct = nil
		go func() {
			_, err := svc.CreateConsignment(as(server), domain.ConsignmentCreateRequest{
				SaleID: sale.ID, ProductID: p.ID, Quantity: 5, CustomerName: "Koffi",
			})
			done <- err
		}()
		select {
		case err := <-done:
			done <- err
		case <-time.After(50 * time.Millisecond):
		}
	}

	info, err := svc.StockInfo(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StockInfo{ProductID: p.ID, Physical: 40, Consigned: 0, Vendable: 40}, info)

	require.NoError(t, <-done)
	require.Equal(t, domain.StockInfo{ProductID: p.ID, Physical: 45, Consigned: 5, Vendable: 40}, f.stock(t, p.ID))
}

func TestConsignThenForfeitReleasesUnits(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)
	p := f.product(t, 1000, 50)
	sale := f.sell(t, server, p.ID, 10)

	res, err := f.svc.CreateConsignment(as(server), domain.ConsignmentCreateRequest{
		SaleID: sale.ID, ProductID: p.ID, Quantity: 5, CustomerName: "Koffi",
	})
	require.NoError(t, err)

	_, err = f.svc.ForfeitConsignment(as(server), res.Consignment.ID)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.ForfeitConsignment(as(manager), res.Consignment.ID)
	require.NoError(t, err)
	info := f.stock(t, p.ID)
	require.Equal(t, 45, info.Physical)
	require.Equal(t, 45, info.Vendable)
	require.Contains(t, f.sink.actions(), audit.ActionConsignmentForfeit)
}

func TestDefectiveReturnRefundsFullAmount(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)
	p := f.product(t, 1000, 50)
	sale := f.sell(t, server, p.ID, 1)

	ret, err := f.svc.CreateReturn(as(server), domain.ReturnCreateRequest{
		SaleID: sale.ID, ProductID: p.ID, Quantity: 1, Reason: domain.ReasonDefective,
	})
	require.NoError(t, err)

	override := int64(400)
	_, err = f.svc.ApproveReturn(as(manager), ret.ID, domain.ReturnApproveRequest{RefundAmount: &override})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)

	res, err := f.svc.ApproveReturn(as(manager), ret.ID, domain.ReturnApproveRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(1000), res.Return.RefundAmount)
	require.Nil(t, res.Movement)
	require.Equal(t, 49, f.stock(t, p.ID).Physical)

	report, err := f.svc.RevenueReport(as(manager), domain.Period{Kind: domain.PeriodToday}, "")
	require.NoError(t, err)
	require.Equal(t, int64(1000), report.Summary.Gross)
	require.Equal(t, int64(0), report.Summary.Net)
	require.Equal(t, "XOF", report.Currency)
}

func TestOversellLeavesStockUntouched(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)
	p := f.product(t, 700, 50)

	_, err := f.svc.CreateSale(as(server), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: p.ID, Quantity: 51}},
	})
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)
	require.Equal(t, 50, f.stock(t, p.ID).Physical)

	sales, err := f.svc.ListSales(as(manager), store.SaleFilter{})
	require.NoError(t, err)
	require.Empty(t, sales)
}

func TestFullModeValidationAppliesStock(t *testing.T) {
	f := newFixture(t, domain.ModeFull, nil)
	p := f.product(t, 700, 10)

	sale := f.sell(t, server, p.ID, 4)
	require.Equal(t, domain.SaleStatusPending, sale.Status)
	require.Equal(t, 10, f.stock(t, p.ID).Physical)

	_, err := f.svc.ValidateSale(as(server), sale.ID)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	res, err := f.svc.ValidateSale(as(manager), sale.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusValidated, res.Sale.Status)
	require.Len(t, res.Movements, 1)
	require.Equal(t, 6, f.stock(t, p.ID).Physical)

	_, err = f.svc.RejectSale(as(manager), sale.ID)
	require.ErrorIs(t, err, apperror.ErrInvalidState)

	cancelled, err := f.svc.CancelSale(as(manager), sale.ID, "wrong table")
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusCancelled, cancelled.Sale.Status)
	require.Equal(t, 10, f.stock(t, p.ID).Physical)
}

func TestRolesAreEnforced(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)

	_, err := f.svc.CreateProduct(as(server), domain.ProductCreateRequest{Name: "Castel", Price: 700})
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.CreateSale(context.Background(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: "prd-x", Quantity: 1}},
	})
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.DashboardSummary(as(server))
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)

	_, err := f.svc.CreateProduct(as(manager), domain.ProductCreateRequest{Name: "  ", Price: 700})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = f.svc.CreateReturn(as(server), domain.ReturnCreateRequest{
		SaleID: "sal-1", ProductID: "prd-1", Quantity: 1, Reason: "broken",
	})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = f.svc.StockCount(as(manager), domain.StockCountRequest{
		Items: []domain.StockCountItem{{ProductID: "prd-1", CountedQty: 2}, {ProductID: "prd-1", CountedQty: 3}},
	})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestServersOnlySeeTheirOwnSales(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)
	p := f.product(t, 700, 20)
	mine := f.sell(t, server, p.ID, 1)
	f.sell(t, server2, p.ID, 2)

	_, err := f.svc.GetSale(as(server2), mine.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)

	got, err := f.svc.GetSale(as(manager), mine.ID)
	require.NoError(t, err)
	require.Equal(t, mine.ID, got.ID)

	list, err := f.svc.ListSales(as(server), store.SaleFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	report, err := f.svc.RevenueReport(as(server2), domain.Period{Kind: domain.PeriodToday}, "srv-1")
	require.NoError(t, err)
	require.Equal(t, "srv-2", report.SoldBy)
	require.Equal(t, int64(1400), report.Summary.Gross)

	left, err := f.svc.Returnable(as(server), mine.ID, p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, left)
}

func TestSupplyUpdatesCostFromLot(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)
	p := f.product(t, 700, 0)

	_, err := f.svc.Supply(as(manager), domain.SupplyRequest{ProductID: p.ID, Quantity: 24, LotPrice: 11000})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)

	res, err := f.svc.Supply(as(manager), domain.SupplyRequest{
		ProductID: p.ID, Quantity: 24, LotPrice: 11000, LotSize: 24, Supplier: "Brasserie",
	})
	require.NoError(t, err)
	require.Equal(t, 24, res.Product.PhysicalStock)
	require.Equal(t, int64(458), *res.Product.CostPrice)
	require.Equal(t, domain.MovementSupply, res.Movement.Kind)

	movements, err := f.svc.Movements(context.Background(), p.ID, 0)
	require.NoError(t, err)
	require.Len(t, movements, 1)
}

func TestStockCountReportsAdjustments(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)
	a := f.product(t, 700, 30)
	b := f.product(t, 400, 12)

	resp, err := f.svc.StockCount(as(manager), domain.StockCountRequest{
		Items: []domain.StockCountItem{{ProductID: a.ID, CountedQty: 27}, {ProductID: b.ID, CountedQty: 12}},
		Notes: "weekly count",
	})
	require.NoError(t, err)
	require.Equal(t, []domain.StockCountAdjustment{
		{ProductID: a.ID, SystemQty: 30, CountedQty: 27, DeltaQty: -3},
		{ProductID: b.ID, SystemQty: 12, CountedQty: 12, DeltaQty: 0},
	}, resp.Adjustments)
	require.Equal(t, 27, f.stock(t, a.ID).Physical)
}

func TestExpiredConsignmentsAwaitForfeit(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)
	p := f.product(t, 1000, 10)
	sale := f.sell(t, server, p.ID, 3)
	res, err := f.svc.CreateConsignment(as(server), domain.ConsignmentCreateRequest{
		SaleID: sale.ID, ProductID: p.ID, Quantity: 2, CustomerName: "Ama",
	})
	require.NoError(t, err)

	expired, err := f.svc.ExpiredConsignments(as(manager))
	require.NoError(t, err)
	require.Empty(t, expired)

	f.now = f.now.Add(8 * 24 * time.Hour)
	expired, err = f.svc.ExpiredConsignments(as(manager))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, domain.UrgencyExpired, expired[0].Urgency)
	require.Less(t, expired[0].HoursLeft, 0.0)
	require.Equal(t, 2, f.stock(t, p.ID).Consigned)

	_, err = f.svc.ForfeitConsignment(as(manager), res.Consignment.ID)
	require.NoError(t, err)
	require.Contains(t, f.sink.actions(), audit.ActionConsignmentExpired)
}

func TestDashboardSummary(t *testing.T) {
	f := newFixture(t, domain.ModeFull, nil)
	p := f.product(t, 1000, 8)
	f.sell(t, server, p.ID, 2)
	validated := f.sell(t, server, p.ID, 3)
	_, err := f.svc.ValidateSale(as(manager), validated.ID)
	require.NoError(t, err)

	d, err := f.svc.DashboardSummary(as(manager))
	require.NoError(t, err)
	require.Equal(t, 1, d.PendingSales)
	require.Equal(t, int64(3000), d.Today.Gross)
	require.Equal(t, int64(5*600), d.StockValue)
	require.Len(t, d.LowStock, 1)
	require.Empty(t, d.Suspicious)
	require.Equal(t, "2024-05-01", d.BusinessDay.String())
}

func (r *recordingSink) last(action audit.Action) audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Action == action {
			return r.events[i]
		}
	}
	return audit.Event{}
}

func TestAuditTrailForSimplifiedSale(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)
	p := f.product(t, 700, 5)
	f.sell(t, server, p.ID, 1)

	require.Equal(t, []audit.Action{
		audit.ActionProductCreated,
		audit.ActionSaleCreated,
		audit.ActionSaleValidated,
	}, f.sink.actions())

	created := f.sink.last(audit.ActionProductCreated)
	require.Equal(t, []audit.StockChange{{ProductID: p.ID, Kind: domain.MovementSupply, Before: 0, After: 5}}, created.Stock)

	validated := f.sink.last(audit.ActionSaleValidated)
	require.Empty(t, validated.StatusFrom)
	require.Equal(t, "validated", validated.StatusTo)
	require.Equal(t, []audit.StockChange{{ProductID: p.ID, Kind: domain.MovementSale, Before: 5, After: 4}}, validated.Stock)
}

func TestAuditEventsCarryBeforeAndAfter(t *testing.T) {
	f := newFixture(t, domain.ModeSimplified, nil)
	p := f.product(t, 1000, 20)
	sale := f.sell(t, server, p.ID, 6)

	res, err := f.svc.CreateConsignment(as(server), domain.ConsignmentCreateRequest{
		SaleID: sale.ID, ProductID: p.ID, Quantity: 2, CustomerName: "Koffi",
	})
	require.NoError(t, err)
	consigned := f.sink.last(audit.ActionConsignmentCreated)
	require.Equal(t, "", consigned.StatusFrom)
	require.Equal(t, "active", consigned.StatusTo)
	require.Equal(t, []audit.StockChange{{ProductID: p.ID, Kind: domain.MovementConsignmentCreated, Before: 14, After: 16}}, consigned.Stock)

	_, err = f.svc.ClaimConsignment(as(server), res.Consignment.ID)
	require.NoError(t, err)
	claimed := f.sink.last(audit.ActionConsignmentClaimed)
	require.Equal(t, "active", claimed.StatusFrom)
	require.Equal(t, "claimed", claimed.StatusTo)
	require.Equal(t, 16, claimed.Stock[0].Before)
	require.Equal(t, 14, claimed.Stock[0].After)

	second := f.sell(t, server, p.ID, 3)
	_, err = f.svc.CancelSale(as(manager), second.ID, "wrong table")
	require.NoError(t, err)
	cancelled := f.sink.last(audit.ActionSaleCancelled)
	require.Equal(t, "validated", cancelled.StatusFrom)
	require.Equal(t, "cancelled", cancelled.StatusTo)
	require.Equal(t, []audit.StockChange{{ProductID: p.ID, Kind: domain.MovementSaleCancellation, Before: 11, After: 14}}, cancelled.Stock)

	_, err = f.svc.Supply(as(manager), domain.SupplyRequest{ProductID: p.ID, Quantity: 4})
	require.NoError(t, err)
	supplied := f.sink.last(audit.ActionStockSupplied)
	require.Empty(t, supplied.StatusTo)
	require.Equal(t, []audit.StockChange{{ProductID: p.ID, Kind: domain.MovementSupply, Before: 14, After: 18}}, supplied.Stock)
}

func TestRevenueReportIsCachedUntilNextWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })
	f := newFixture(t, domain.ModeSimplified, cache.NewRedisStatsCache(client, ""))

	p := f.product(t, 1000, 10)
	f.sell(t, server, p.ID, 1)

	first, err := f.svc.RevenueReport(as(manager), domain.Period{Kind: domain.PeriodToday}, "")
	require.NoError(t, err)
	require.Equal(t, int64(1000), first.Summary.Gross)
	require.Len(t, mr.Keys(), 1)

	f.sell(t, server, p.ID, 2)
	require.Empty(t, mr.Keys())

	second, err := f.svc.RevenueReport(as(manager), domain.Period{Kind: domain.PeriodToday}, "")
	require.NoError(t, err)
	require.Equal(t, int64(3000), second.Summary.Gross)

	cached, err := f.svc.RevenueReport(as(manager), domain.Period{Kind: domain.PeriodToday}, "")
	require.NoError(t, err)
	require.Equal(t, second.Summary.Gross, cached.Summary.Gross)
	require.True(t, second.Summary.Margin.Equal(cached.Summary.Margin))
}
