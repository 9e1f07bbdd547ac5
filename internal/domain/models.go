package domain

import (
	"time"

	"github.com/Zimkada/BarTender-sub004/internal/businessday"
)

// Roles recognised by the HTTP surface. The engine itself only records
// who acted; authorization happens at the edge.
const (
	RoleServer  = "server"
	RoleManager = "manager"
	RoleOwner   = "owner"
	RoleSystem  = "system"
)

type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type OperatingMode string

const (
	// ModeFull requires a manager to validate each sale before stock moves.
	ModeFull OperatingMode = "full"
	// ModeSimplified validates sales at creation.
	ModeSimplified OperatingMode = "simplified"
)

type VenueSettings struct {
	CloseHour                 int            `json:"close_hour"`
	ConsignmentExpirationDays int            `json:"consignment_expiration_days"`
	Currency                  string         `json:"currency"`
	OperatingMode             OperatingMode  `json:"operating_mode"`
	Location                  *time.Location `json:"-"`
}

type Product struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	CategoryID     string    `json:"category_id" db:"category_id"`
	Price          int64     `json:"price" db:"price"`
	CostPrice      *int64    `json:"cost_price,omitempty" db:"cost_price"`
	PhysicalStock  int       `json:"physical_stock" db:"physical_stock"`
	AlertThreshold int       `json:"alert_threshold" db:"alert_threshold"`
	Version        int64     `json:"version" db:"version"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

type ProductCreateRequest struct {
	Name           string `json:"name" validate:"required,max=120"`
	CategoryID     string `json:"category_id" validate:"max=64"`
	Price          int64  `json:"price" validate:"gte=0"`
	CostPrice      *int64 `json:"cost_price,omitempty" validate:"omitempty,gte=0"`
	InitialStock   int    `json:"initial_stock" validate:"gte=0"`
	AlertThreshold int    `json:"alert_threshold" validate:"gte=0"`
}

// StockInfo is the dual view of one product's stock.
type StockInfo struct {
	ProductID string `json:"product_id"`
	Physical  int    `json:"physical"`
	Consigned int    `json:"consigned"`
	Vendable  int    `json:"vendable"`
}

type MovementKind string

const (
	MovementSale                 MovementKind = "sale"
	MovementSaleCancellation     MovementKind = "sale_cancellation"
	MovementSupply               MovementKind = "supply"
	MovementReturnRestock        MovementKind = "return_restock"
	MovementConsignmentCreated   MovementKind = "consignment_created"
	MovementConsignmentClaimed   MovementKind = "consignment_claimed"
	MovementConsignmentForfeited MovementKind = "consignment_forfeited"
	MovementCount                MovementKind = "count"
)

// Movement records one change to a product's physical stock.
type Movement struct {
	ID        string       `json:"id" db:"id"`
	ProductID string       `json:"product_id" db:"product_id"`
	Kind      MovementKind `json:"kind" db:"kind"`
	Delta     int          `json:"delta" db:"delta"`
	Before    int          `json:"before" db:"stock_before"`
	After     int          `json:"after" db:"stock_after"`
	// Reference is the sale, return, consignment or count that caused it.
	Reference string    `json:"reference" db:"reference"`
	ActorID   string    `json:"actor_id" db:"actor_id"`
	At        time.Time `json:"at" db:"at"`
}

type SupplyRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	// LotPrice and LotSize optionally update the product cost price.
	LotPrice int64 `json:"lot_price,omitempty" validate:"gte=0"`
	LotSize  int   `json:"lot_size,omitempty" validate:"gte=0"`
	Supplier string `json:"supplier,omitempty" validate:"max=120"`
}

type StockCountItem struct {
	ProductID  string `json:"product_id" validate:"required"`
	CountedQty int    `json:"counted_qty" validate:"gte=0"`
}

type StockCountRequest struct {
	Items []StockCountItem `json:"items" validate:"required,min=1,dive"`
	Notes string           `json:"notes" validate:"max=500"`
}

type StockCountAdjustment struct {
	ProductID  string `json:"product_id"`
	SystemQty  int    `json:"system_qty"`
	CountedQty int    `json:"counted_qty"`
	DeltaQty   int    `json:"delta_qty"`
}

type StockCountResponse struct {
	CountID     string                 `json:"count_id"`
	Notes       string                 `json:"notes"`
	Adjustments []StockCountAdjustment `json:"adjustments"`
	CreatedAt   time.Time              `json:"created_at"`
}

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusValidated SaleStatus = "validated"
	SaleStatusRejected  SaleStatus = "rejected"
	SaleStatusCancelled SaleStatus = "cancelled"
)

type SaleItem struct {
	ProductID string `json:"product_id" db:"product_id"`
	Quantity  int    `json:"quantity" db:"quantity"`
	UnitPrice int64  `json:"unit_price" db:"unit_price"`
}

type Sale struct {
	ID           string          `json:"id" db:"id"`
	Items        []SaleItem      `json:"items" db:"-"`
	Total        int64           `json:"total" db:"total"`
	BusinessDay  businessday.Key `json:"business_day" db:"business_day"`
	Status       SaleStatus      `json:"status" db:"status"`
	SoldBy       string          `json:"sold_by" db:"sold_by"`
	TableNumber  string          `json:"table_number,omitempty" db:"table_number"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	ValidatedBy  string          `json:"validated_by,omitempty" db:"validated_by"`
	ValidatedAt  *time.Time      `json:"validated_at,omitempty" db:"validated_at"`
	RejectedBy   string          `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectedAt   *time.Time      `json:"rejected_at,omitempty" db:"rejected_at"`
	CancelledBy  string          `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason string          `json:"cancel_reason,omitempty" db:"cancel_reason"`
}

// QuantitySold sums every line of the sale for productID.
func (s Sale) QuantitySold(productID string) int {
	qty := 0
	for _, item := range s.Items {
		if item.ProductID == productID {
			qty += item.Quantity
		}
	}
	return qty
}

// UnitPrice returns the price snapshot of the first line for productID.
func (s Sale) UnitPrice(productID string) (int64, bool) {
	for _, item := range s.Items {
		if item.ProductID == productID {
			return item.UnitPrice, true
		}
	}
	return 0, false
}

type SaleItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type SaleCreateRequest struct {
	Items       []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
	TableNumber string            `json:"table_number,omitempty" validate:"max=16"`
}

type SaleCancelRequest struct {
	Reason     string `json:"reason" validate:"required,max=500"`
	ManagerPIN string `json:"manager_pin"`
}

type ConsignmentStatus string

const (
	ConsignmentStatusActive    ConsignmentStatus = "active"
	ConsignmentStatusClaimed   ConsignmentStatus = "claimed"
	ConsignmentStatusForfeited ConsignmentStatus = "forfeited"
)

type Consignment struct {
	ID             string            `json:"id" db:"id"`
	SaleID         string            `json:"sale_id" db:"sale_id"`
	ProductID      string            `json:"product_id" db:"product_id"`
	Quantity       int               `json:"quantity" db:"quantity"`
	TotalAmount    int64             `json:"total_amount" db:"total_amount"`
	CustomerName   string            `json:"customer_name" db:"customer_name"`
	CustomerPhone  string            `json:"customer_phone,omitempty" db:"customer_phone"`
	Notes          string            `json:"notes,omitempty" db:"notes"`
	Status         ConsignmentStatus `json:"status" db:"status"`
	BusinessDay    businessday.Key   `json:"business_day" db:"business_day"`
	OriginalSeller string            `json:"original_seller" db:"original_seller"`
	CreatedBy      string            `json:"created_by" db:"created_by"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time         `json:"expires_at" db:"expires_at"`
	ClaimedBy      string            `json:"claimed_by,omitempty" db:"claimed_by"`
	ClaimedAt      *time.Time        `json:"claimed_at,omitempty" db:"claimed_at"`
	ForfeitedBy    string            `json:"forfeited_by,omitempty" db:"forfeited_by"`
	ForfeitedAt    *time.Time        `json:"forfeited_at,omitempty" db:"forfeited_at"`
}

type ConsignmentCreateRequest struct {
	SaleID        string `json:"sale_id" validate:"required"`
	ProductID     string `json:"product_id" validate:"required"`
	Quantity      int    `json:"quantity" validate:"gt=0"`
	CustomerName  string `json:"customer_name" validate:"required,max=120"`
	CustomerPhone string `json:"customer_phone,omitempty" validate:"max=32"`
	Notes         string `json:"notes,omitempty" validate:"max=500"`
	// ExpirationDays overrides the venue default when set.
	ExpirationDays *int `json:"expiration_days,omitempty"`
}

type Urgency string

const (
	UrgencyOK      Urgency = "ok"
	UrgencyWarning Urgency = "warning"
	UrgencyExpired Urgency = "expired"
)

type ReturnStatus string

const (
	ReturnStatusPending   ReturnStatus = "pending"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
	ReturnStatusRestocked ReturnStatus = "restocked"
)

type ReturnReason string

const (
	ReasonDefective      ReturnReason = "defective"
	ReasonWrongItem      ReturnReason = "wrong_item"
	ReasonCustomerChange ReturnReason = "customer_change"
	ReasonExpired        ReturnReason = "expired"
	ReasonOther          ReturnReason = "other"
)

type Return struct {
	ID                    string          `json:"id" db:"id"`
	SaleID                string          `json:"sale_id" db:"sale_id"`
	ProductID             string          `json:"product_id" db:"product_id"`
	UnitPrice             int64           `json:"unit_price" db:"unit_price"`
	QuantitySold          int             `json:"quantity_sold" db:"quantity_sold"`
	QuantityReturned      int             `json:"quantity_returned" db:"quantity_returned"`
	Reason                ReturnReason    `json:"reason" db:"reason"`
	RefundAmount          int64           `json:"refund_amount" db:"refund_amount"`
	IsRefunded            bool            `json:"is_refunded" db:"is_refunded"`
	AutoRestock           bool            `json:"auto_restock" db:"auto_restock"`
	ManualRestockRequired bool            `json:"manual_restock_required" db:"manual_restock_required"`
	Restocked             bool            `json:"restocked" db:"restocked"`
	Status                ReturnStatus    `json:"status" db:"status"`
	BusinessDay           businessday.Key `json:"business_day" db:"business_day"`
	OriginalSeller        string          `json:"original_seller" db:"original_seller"`
	Notes                 string          `json:"notes,omitempty" db:"notes"`
	RequestedBy           string          `json:"requested_by" db:"requested_by"`
	ReturnedAt            time.Time       `json:"returned_at" db:"returned_at"`
	ApprovedBy            string          `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt            *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	RejectedBy            string          `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectedAt            *time.Time      `json:"rejected_at,omitempty" db:"rejected_at"`
	RestockedAt           *time.Time      `json:"restocked_at,omitempty" db:"restocked_at"`
}

// CountsAgainstSale reports whether the return consumes returnable quantity.
func (r Return) CountsAgainstSale() bool {
	return r.Status != ReturnStatusRejected
}

// Refunds reports whether the return reduces net revenue. IsRefunded is
// only set at approval, so pending returns never count.
func (r Return) Refunds() bool {
	return r.Status != ReturnStatusRejected && r.IsRefunded
}

type ReturnCreateRequest struct {
	SaleID    string       `json:"sale_id" validate:"required"`
	ProductID string       `json:"product_id" validate:"required"`
	Quantity  int          `json:"quantity" validate:"gt=0"`
	Reason    ReturnReason `json:"reason" validate:"required,oneof=defective wrong_item customer_change expired other"`
	Notes     string       `json:"notes,omitempty" validate:"max=500"`
}

// ReturnApproveRequest carries the approver's decisions. Both fields are
// mandatory for reason "other" and must match the policy otherwise.
type ReturnApproveRequest struct {
	RefundAmount *int64 `json:"refund_amount,omitempty"`
	Restock      *bool  `json:"restock,omitempty"`
}

type PeriodKind string

const (
	PeriodToday  PeriodKind = "today"
	PeriodWeek   PeriodKind = "week"
	PeriodMonth  PeriodKind = "month"
	PeriodCustom PeriodKind = "custom"
)

type Period struct {
	Kind PeriodKind      `json:"kind"`
	From businessday.Key `json:"from,omitempty"`
	To   businessday.Key `json:"to,omitempty"`
}
