package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/store"
)

// Store keeps the whole ledger in process memory. Transactions are
// serialized behind one write lock; writes are staged and only folded into
// the maps once the callback succeeds.
type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	sales        map[string]domain.Sale
	consignments map[string]domain.Consignment
	returns      map[string]domain.Return
	movements    []domain.Movement
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		sales:        make(map[string]domain.Sale),
		consignments: make(map[string]domain.Consignment),
		returns:      make(map[string]domain.Return),
	}
}

// NewSeeded returns a store with a small bar catalogue for dev/demo mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	seed := []struct {
		id, name, category string
		price, cost        int64
		stock, alert       int
	}{
		{"prd-flag-65", "Flag Special 65cl", "beer", 700, 520, 96, 24},
		{"prd-castel-65", "Castel Beer 65cl", "beer", 700, 510, 72, 24},
		{"prd-beaufort-33", "Beaufort Lager 33cl", "beer", 500, 360, 48, 12},
		{"prd-coca-33", "Coca-Cola 33cl", "soft", 400, 250, 60, 12},
		{"prd-water-150", "Eau minerale 1.5L", "soft", 500, 300, 30, 6},
		{"prd-whisky-70", "Whisky 70cl", "spirits", 18000, 12500, 6, 2},
	}
	for _, p := range seed {
		cost := p.cost
		s.products[p.id] = domain.Product{
			ID:             p.id,
			Name:           p.name,
			CategoryID:     p.category,
			Price:          p.price,
			CostPrice:      &cost,
			PhysicalStock:  p.stock,
			AlertThreshold: p.alert,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	return s
}

func (s *Store) Close() error {
	return nil
}

// RunInTx runs fn under the store write lock. fn must not call RunInTx again.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := newTx(s)
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.commit()
	return nil
}

// ReadSnapshot runs fn under the store read lock. fn must not call RunInTx.
func (s *Store) ReadSnapshot(ctx context.Context, fn func(ctx context.Context, r store.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, newTx(s))
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTx(s).GetProduct(ctx, id)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTx(s).ListProducts(ctx)
}

func (s *Store) ConsignedQuantity(ctx context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTx(s).ConsignedQuantity(ctx, productID)
}

func (s *Store) ListMovements(ctx context.Context, productID string, limit int) ([]domain.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTx(s).ListMovements(ctx, productID, limit)
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTx(s).GetSale(ctx, id)
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTx(s).ListSales(ctx, filter)
}

func (s *Store) GetConsignment(ctx context.Context, id string) (*domain.Consignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTx(s).GetConsignment(ctx, id)
}

func (s *Store) ListConsignments(ctx context.Context, filter store.ConsignmentFilter) ([]domain.Consignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTx(s).ListConsignments(ctx, filter)
}

func (s *Store) GetReturn(ctx context.Context, id string) (*domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTx(s).GetReturn(ctx, id)
}

func (s *Store) ListReturns(ctx context.Context, filter store.ReturnFilter) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTx(s).ListReturns(ctx, filter)
}

// tx overlays staged writes on top of the committed maps. It is also used,
// with nothing staged, as the read view for non-transactional reads.
type tx struct {
	base         *Store
	products     map[string]domain.Product
	sales        map[string]domain.Sale
	consignments map[string]domain.Consignment
	returns      map[string]domain.Return
	movements    []domain.Movement
}

func newTx(base *Store) *tx {
	return &tx{
		base:         base,
		products:     make(map[string]domain.Product),
		sales:        make(map[string]domain.Sale),
		consignments: make(map[string]domain.Consignment),
		returns:      make(map[string]domain.Return),
	}
}

func (t *tx) commit() {
	for id, p := range t.products {
		t.base.products[id] = p
	}
	for id, sale := range t.sales {
		t.base.sales[id] = sale
	}
	for id, c := range t.consignments {
		t.base.consignments[id] = c
	}
	for id, r := range t.returns {
		t.base.returns[id] = r
	}
	t.base.movements = append(t.base.movements, t.movements...)
}

func (t *tx) product(id string) (domain.Product, bool) {
	if p, ok := t.products[id]; ok {
		return p, true
	}
	p, ok := t.base.products[id]
	return p, ok
}

func (t *tx) sale(id string) (domain.Sale, bool) {
	if sale, ok := t.sales[id]; ok {
		return sale, true
	}
	sale, ok := t.base.sales[id]
	return sale, ok
}

func (t *tx) consignment(id string) (domain.Consignment, bool) {
	if c, ok := t.consignments[id]; ok {
		return c, true
	}
	c, ok := t.base.consignments[id]
	return c, ok
}

func (t *tx) ret(id string) (domain.Return, bool) {
	if r, ok := t.returns[id]; ok {
		return r, true
	}
	r, ok := t.base.returns[id]
	return r, ok
}

func (t *tx) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := t.product(id)
	if !ok {
		return nil, apperror.NewNotFound("product", id)
	}
	return cloneProduct(p), nil
}

func (t *tx) ListProducts(_ context.Context) ([]domain.Product, error) {
	products := mergeValues(t.base.products, t.products)
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		out = append(out, *cloneProduct(p))
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		if c := strings.Compare(a.CategoryID, b.CategoryID); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (t *tx) ConsignedQuantity(_ context.Context, productID string) (int, error) {
	total := 0
	for _, c := range mergeValues(t.base.consignments, t.consignments) {
		if c.ProductID == productID && c.Status == domain.ConsignmentStatusActive {
			total += c.Quantity
		}
	}
	return total, nil
}

func (t *tx) ListMovements(_ context.Context, productID string, limit int) ([]domain.Movement, error) {
	all := append(slices.Clone(t.base.movements), t.movements...)
	out := make([]domain.Movement, 0, 16)
	for i := len(all) - 1; i >= 0; i-- {
		if productID != "" && all[i].ProductID != productID {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *tx) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	sale, ok := t.sale(id)
	if !ok {
		return nil, apperror.NewNotFound("sale", id)
	}
	return cloneSale(sale), nil
}

func (t *tx) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	out := make([]domain.Sale, 0, 32)
	for _, sale := range mergeValues(t.base.sales, t.sales) {
		if filter.Match(sale) {
			out = append(out, *cloneSale(sale))
		}
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		return compareCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return applyLimit(out, filter.Limit), nil
}

func (t *tx) GetConsignment(_ context.Context, id string) (*domain.Consignment, error) {
	c, ok := t.consignment(id)
	if !ok {
		return nil, apperror.NewNotFound("consignment", id)
	}
	return &c, nil
}

func (t *tx) ListConsignments(_ context.Context, filter store.ConsignmentFilter) ([]domain.Consignment, error) {
	out := make([]domain.Consignment, 0, 16)
	for _, c := range mergeValues(t.base.consignments, t.consignments) {
		if filter.Match(c) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.Consignment) int {
		return compareCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return applyLimit(out, filter.Limit), nil
}

func (t *tx) GetReturn(_ context.Context, id string) (*domain.Return, error) {
	r, ok := t.ret(id)
	if !ok {
		return nil, apperror.NewNotFound("return", id)
	}
	return &r, nil
}

func (t *tx) ListReturns(_ context.Context, filter store.ReturnFilter) ([]domain.Return, error) {
	out := make([]domain.Return, 0, 16)
	for _, r := range mergeValues(t.base.returns, t.returns) {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b domain.Return) int {
		return compareCreated(a.ReturnedAt, b.ReturnedAt, a.ID, b.ID)
	})
	return applyLimit(out, filter.Limit), nil
}

func (t *tx) CreateProduct(_ context.Context, product domain.Product) error {
	if product.ID == "" {
		return apperror.NewInvalidInput("product id required")
	}
	if _, exists := t.product(product.ID); exists {
		return apperror.Newf(apperror.ErrInvalidInput, "product %s already exists", product.ID)
	}
	if product.Version == 0 {
		product.Version = 1
	}
	t.products[product.ID] = *cloneProduct(product)
	return nil
}

func (t *tx) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	current, ok := t.product(product.ID)
	if !ok {
		return nil, apperror.NewNotFound("product", product.ID)
	}
	if current.Version != product.Version {
		return nil, apperror.NewConcurrentModification("product", product.ID)
	}
	product.Version++
	product.CreatedAt = current.CreatedAt
	t.products[product.ID] = *cloneProduct(product)
	return cloneProduct(product), nil
}

func (t *tx) AppendMovements(_ context.Context, movements []domain.Movement) error {
	t.movements = append(t.movements, movements...)
	return nil
}

func (t *tx) CreateSale(_ context.Context, sale domain.Sale) error {
	if sale.ID == "" || len(sale.Items) == 0 {
		return apperror.NewInvalidInput("sale id and items required")
	}
	if _, exists := t.sale(sale.ID); exists {
		return apperror.Newf(apperror.ErrInvalidInput, "sale %s already exists", sale.ID)
	}
	t.sales[sale.ID] = *cloneSale(sale)
	return nil
}

func (t *tx) UpdateSale(_ context.Context, sale domain.Sale, from domain.SaleStatus) error {
	current, ok := t.sale(sale.ID)
	if !ok {
		return apperror.NewNotFound("sale", sale.ID)
	}
	if current.Status != from {
		return apperror.NewConcurrentModification("sale", sale.ID)
	}
	t.sales[sale.ID] = *cloneSale(sale)
	return nil
}

func (t *tx) CreateConsignment(_ context.Context, c domain.Consignment) error {
	if c.ID == "" {
		return apperror.NewInvalidInput("consignment id required")
	}
	if _, exists := t.consignment(c.ID); exists {
		return apperror.Newf(apperror.ErrInvalidInput, "consignment %s already exists", c.ID)
	}
	t.consignments[c.ID] = c
	return nil
}

func (t *tx) UpdateConsignment(_ context.Context, c domain.Consignment, from domain.ConsignmentStatus) error {
	current, ok := t.consignment(c.ID)
	if !ok {
		return apperror.NewNotFound("consignment", c.ID)
	}
	if current.Status != from {
		return apperror.NewConcurrentModification("consignment", c.ID)
	}
	t.consignments[c.ID] = c
	return nil
}

func (t *tx) CreateReturn(_ context.Context, r domain.Return) error {
	if r.ID == "" {
		return apperror.NewInvalidInput("return id required")
	}
	if _, exists := t.ret(r.ID); exists {
		return apperror.Newf(apperror.ErrInvalidInput, "return %s already exists", r.ID)
	}
	t.returns[r.ID] = r
	return nil
}

func (t *tx) UpdateReturn(_ context.Context, r domain.Return, from domain.ReturnStatus) error {
	current, ok := t.ret(r.ID)
	if !ok {
		return apperror.NewNotFound("return", r.ID)
	}
	if current.Status != from {
		return apperror.NewConcurrentModification("return", r.ID)
	}
	t.returns[r.ID] = r
	return nil
}

// mergeValues yields committed values with staged ones taking precedence.
func mergeValues[V any](base map[string]V, staged map[string]V) map[string]V {
	if len(staged) == 0 {
		return base
	}
	merged := make(map[string]V, len(base)+len(staged))
	for id, v := range base {
		merged[id] = v
	}
	for id, v := range staged {
		merged[id] = v
	}
	return merged
}

func compareCreated(a, b time.Time, idA, idB string) int {
	if c := a.Compare(b); c != 0 {
		return c
	}
	return strings.Compare(idA, idB)
}

func applyLimit[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func cloneProduct(p domain.Product) *domain.Product {
	out := p
	if p.CostPrice != nil {
		cost := *p.CostPrice
		out.CostPrice = &cost
	}
	return &out
}

func cloneSale(sale domain.Sale) *domain.Sale {
	out := sale
	out.Items = slices.Clone(sale.Items)
	return &out
}
