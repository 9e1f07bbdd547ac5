// Package revenue aggregates sales and returns. Every function is pure.
//
// Only validated sales count toward revenue. A return reduces net revenue
// when it is refunded and approved or restocked; rejected and pending
// returns have no effect.
package revenue

import (
	"github.com/shopspring/decimal"

	"github.com/Zimkada/BarTender-sub004/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// SaleTotal is Σ unitPrice × quantity.
func SaleTotal(items []domain.SaleItem) int64 {
	total := int64(0)
	for _, item := range items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

// GrossRevenue sums the totals of validated sales.
func GrossRevenue(sales []domain.Sale) int64 {
	total := int64(0)
	for _, sale := range sales {
		if sale.Status == domain.SaleStatusValidated {
			total += sale.Total
		}
	}
	return total
}

// RefundedReturnsTotal sums refund amounts of returns that affect revenue.
func RefundedReturnsTotal(returns []domain.Return) int64 {
	total := int64(0)
	for _, ret := range returns {
		if ret.Refunds() {
			total += ret.RefundAmount
		}
	}
	return total
}

func NetRevenue(sales []domain.Sale, returns []domain.Return) int64 {
	return GrossRevenue(sales) - RefundedReturnsTotal(returns)
}

// SaleCost prices each line at the product cost; unknown costs count as 0.
func SaleCost(sale domain.Sale, costs map[string]int64) int64 {
	total := int64(0)
	for _, item := range sale.Items {
		total += costs[item.ProductID] * int64(item.Quantity)
	}
	return total
}

func SaleProfit(sale domain.Sale, costs map[string]int64) int64 {
	return sale.Total - SaleCost(sale, costs)
}

// ProfitMargin is profit / total × 100, or 0 for an empty sale.
func ProfitMargin(sale domain.Sale, costs map[string]int64) decimal.Decimal {
	if sale.Total == 0 {
		return decimal.Zero
	}
	profit := decimal.NewFromInt(SaleProfit(sale, costs))
	return profit.Div(decimal.NewFromInt(sale.Total)).Mul(hundred).Round(2)
}

// Markup is (price - cost) / cost × 100, or 0 when cost is 0.
func Markup(price, cost int64) decimal.Decimal {
	if cost == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(price - cost).Div(decimal.NewFromInt(cost)).Mul(hundred).Round(2)
}

// SellingPrice applies a markup percentage to cost, rounded to the unit.
func SellingPrice(cost int64, markupPercent decimal.Decimal) int64 {
	factor := decimal.NewFromInt(1).Add(markupPercent.Div(hundred))
	return decimal.NewFromInt(cost).Mul(factor).Round(0).IntPart()
}

// UnitCost divides a lot price by the units in the lot, rounded to the unit.
func UnitCost(lotPrice int64, lotSize int) int64 {
	if lotSize <= 0 {
		return 0
	}
	return decimal.NewFromInt(lotPrice).Div(decimal.NewFromInt(int64(lotSize))).Round(0).IntPart()
}

// StockValue values physical stock at cost; products without cost count as 0.
func StockValue(products []domain.Product) int64 {
	total := int64(0)
	for _, p := range products {
		if p.CostPrice != nil && p.PhysicalStock > 0 {
			total += *p.CostPrice * int64(p.PhysicalStock)
		}
	}
	return total
}

// TotalItemsSold counts units across validated sales.
func TotalItemsSold(sales []domain.Sale) int {
	total := 0
	for _, sale := range sales {
		if sale.Status != domain.SaleStatusValidated {
			continue
		}
		for _, item := range sale.Items {
			total += item.Quantity
		}
	}
	return total
}

// CostMap indexes known product cost prices.
func CostMap(products []domain.Product) map[string]int64 {
	costs := make(map[string]int64, len(products))
	for _, p := range products {
		if p.CostPrice != nil {
			costs[p.ID] = *p.CostPrice
		}
	}
	return costs
}

// Summary is the revenue picture of a set of sales and returns.
type Summary struct {
	Gross       int64           `json:"gross"`
	Refunds     int64           `json:"refunds"`
	Net         int64           `json:"net"`
	SaleCount   int             `json:"sale_count"`
	AverageSale int64           `json:"average_sale"`
	ItemsSold   int             `json:"items_sold"`
	Cost        int64           `json:"cost"`
	Profit      int64           `json:"profit"`
	Margin      decimal.Decimal `json:"margin"`
}

// Summarize aggregates validated sales and refunding returns. A non-empty
// soldBy restricts both to one server: sales by SoldBy, returns by the
// seller of the original sale.
func Summarize(sales []domain.Sale, returns []domain.Return, costs map[string]int64, soldBy string) Summary {
	var s Summary
	for _, sale := range sales {
		if sale.Status != domain.SaleStatusValidated {
			continue
		}
		if soldBy != "" && sale.SoldBy != soldBy {
			continue
		}
		s.Gross += sale.Total
		s.SaleCount++
		s.Cost += SaleCost(sale, costs)
		for _, item := range sale.Items {
			s.ItemsSold += item.Quantity
		}
	}
	for _, ret := range returns {
		if soldBy != "" && ret.OriginalSeller != soldBy {
			continue
		}
		if ret.Refunds() {
			s.Refunds += ret.RefundAmount
		}
	}
	s.Net = s.Gross - s.Refunds
	if s.SaleCount > 0 {
		s.AverageSale = decimal.NewFromInt(s.Gross).Div(decimal.NewFromInt(int64(s.SaleCount))).Round(0).IntPart()
	}
	s.Profit = s.Gross - s.Cost
	if s.Gross != 0 {
		s.Margin = decimal.NewFromInt(s.Profit).Div(decimal.NewFromInt(s.Gross)).Mul(hundred).Round(2)
	}
	return s
}
