package store

import (
	"context"
	"slices"
	"time"

	"github.com/Zimkada/BarTender-sub004/internal/businessday"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
)

// SaleFilter narrows ListSales. Zero values mean "no constraint".
type SaleFilter struct {
	Statuses    []domain.SaleStatus
	BusinessDay businessday.Key
	SoldBy      string
	// CreatedFrom is inclusive, CreatedTo exclusive.
	CreatedFrom time.Time
	CreatedTo   time.Time
	Limit       int
}

type ConsignmentFilter struct {
	SaleID    string
	ProductID string
	Statuses  []domain.ConsignmentStatus
	Limit     int
}

type ReturnFilter struct {
	SaleID      string
	ProductID   string
	Statuses    []domain.ReturnStatus
	BusinessDay businessday.Key
	// ReturnedFrom is inclusive, ReturnedTo exclusive.
	ReturnedFrom time.Time
	ReturnedTo   time.Time
	Limit        int
}

// Reader is the read side shared by the repository and its transactions.
// Inside a transaction the Get methods lock the row until commit.
type Reader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	// ConsignedQuantity sums active consignments for productID.
	ConsignedQuantity(ctx context.Context, productID string) (int, error)
	ListMovements(ctx context.Context, productID string, limit int) ([]domain.Movement, error)

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)

	GetConsignment(ctx context.Context, id string) (*domain.Consignment, error)
	ListConsignments(ctx context.Context, filter ConsignmentFilter) ([]domain.Consignment, error)

	GetReturn(ctx context.Context, id string) (*domain.Return, error)
	ListReturns(ctx context.Context, filter ReturnFilter) ([]domain.Return, error)
}

// Tx is a unit of work. Writes become visible to other readers only when
// the callback passed to RunInTx returns nil.
type Tx interface {
	Reader

	CreateProduct(ctx context.Context, product domain.Product) error
	// UpdateProduct succeeds only if the stored version equals product.Version,
	// and stores product.Version+1. A mismatch returns ErrConcurrentModification.
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AppendMovements(ctx context.Context, movements []domain.Movement) error

	CreateSale(ctx context.Context, sale domain.Sale) error
	// UpdateSale applies sale only while the stored status is still from.
	UpdateSale(ctx context.Context, sale domain.Sale, from domain.SaleStatus) error

	CreateConsignment(ctx context.Context, consignment domain.Consignment) error
	UpdateConsignment(ctx context.Context, consignment domain.Consignment, from domain.ConsignmentStatus) error

	CreateReturn(ctx context.Context, ret domain.Return) error
	UpdateReturn(ctx context.Context, ret domain.Return, from domain.ReturnStatus) error
}

type Repository interface {
	Reader
	// RunInTx runs fn atomically. Any error returned by fn rolls back every
	// write fn made.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// ReadSnapshot runs fn against a single consistent view. Reads made
	// through r never observe a transaction that commits while fn runs.
	ReadSnapshot(ctx context.Context, fn func(ctx context.Context, r Reader) error) error
	Close() error
}

// StatusIn reports whether statuses is empty or includes status.
func StatusIn[S ~string](statuses []S, status S) bool {
	return len(statuses) == 0 || slices.Contains(statuses, status)
}

// Match reports whether sale satisfies the filter. Limit is not applied.
func (f SaleFilter) Match(sale domain.Sale) bool {
	if !StatusIn(f.Statuses, sale.Status) {
		return false
	}
	if f.BusinessDay != "" && sale.BusinessDay != f.BusinessDay {
		return false
	}
	if f.SoldBy != "" && sale.SoldBy != f.SoldBy {
		return false
	}
	if !f.CreatedFrom.IsZero() && sale.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && !sale.CreatedAt.Before(f.CreatedTo) {
		return false
	}
	return true
}

func (f ConsignmentFilter) Match(c domain.Consignment) bool {
	if f.SaleID != "" && c.SaleID != f.SaleID {
		return false
	}
	if f.ProductID != "" && c.ProductID != f.ProductID {
		return false
	}
	return StatusIn(f.Statuses, c.Status)
}

func (f ReturnFilter) Match(r domain.Return) bool {
	if f.SaleID != "" && r.SaleID != f.SaleID {
		return false
	}
	if f.ProductID != "" && r.ProductID != f.ProductID {
		return false
	}
	if !StatusIn(f.Statuses, r.Status) {
		return false
	}
	if f.BusinessDay != "" && r.BusinessDay != f.BusinessDay {
		return false
	}
	if !f.ReturnedFrom.IsZero() && r.ReturnedAt.Before(f.ReturnedFrom) {
		return false
	}
	if !f.ReturnedTo.IsZero() && !r.ReturnedAt.Before(f.ReturnedTo) {
		return false
	}
	return true
}
