package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Zimkada/BarTender-sub004/internal/businessday"
	"github.com/Zimkada/BarTender-sub004/internal/consignment"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/revenue"
	"github.com/Zimkada/BarTender-sub004/internal/store"
)

// closedPeriodTTL applies to periods that have fully elapsed. Writes still
// invalidate them.
const closedPeriodTTL = 10 * time.Minute

type RevenueReport struct {
	Window   revenue.Window  `json:"window"`
	SoldBy   string          `json:"sold_by,omitempty"`
	Currency string          `json:"currency"`
	Summary  revenue.Summary `json:"summary"`
}

type Dashboard struct {
	BusinessDay         businessday.Key `json:"business_day"`
	Currency            string          `json:"currency"`
	Today               revenue.Summary `json:"today"`
	PendingSales        int             `json:"pending_sales"`
	PendingReturns      int             `json:"pending_returns"`
	ActiveConsignments  int             `json:"active_consignments"`
	ExpiredConsignments int             `json:"expired_consignments"`
	LowStock            []ProductStock  `json:"low_stock"`
	Suspicious          []ProductStock  `json:"suspicious"`
	StockValue          int64           `json:"stock_value"`
}

// RevenueReport summarizes validated sales and refunding returns over a
// period. A server always gets their own figures.
func (s *Service) RevenueReport(ctx context.Context, period domain.Period, soldBy string) (RevenueReport, error) {
	return traced(ctx, s, "report.revenue", func(ctx context.Context) (RevenueReport, error) {
		actor, err := requireRole(ctx, "view revenue", staffRoles...)
		if err != nil {
			return RevenueReport{}, err
		}
		if !isManager(actor) {
			soldBy = actor.ID
		}
		window, err := revenue.Resolve(period, s.days)
		if err != nil {
			return RevenueReport{}, err
		}

		key := fmt.Sprintf("revenue:%s:%d:%d:%s", window.Kind, window.From.Unix(), window.To.Unix(), soldBy)
		var cached RevenueReport
		if ok, err := s.stats.Get(ctx, key, &cached); err != nil {
			s.log.Warnw("stats cache read failed", "key", key, "error", err)
		} else if ok {
			return cached, nil
		}

		summary, err := s.summarize(ctx, window, soldBy)
		if err != nil {
			return RevenueReport{}, err
		}
		report := RevenueReport{Window: window, SoldBy: soldBy, Currency: s.venue.Currency, Summary: summary}
		ttl := s.statsTTL
		if !window.To.After(s.days.Now()) {
			ttl = closedPeriodTTL
		}
		if err := s.stats.Set(ctx, key, report, ttl); err != nil {
			s.log.Warnw("stats cache write failed", "key", key, "error", err)
		}
		return report, nil
	})
}

func (s *Service) summarize(ctx context.Context, window revenue.Window, soldBy string) (revenue.Summary, error) {
	var (
		products []domain.Product
		sold     []domain.Sale
		returned []domain.Return
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = s.repo.ListProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		sold, err = s.repo.ListSales(gctx, window.SaleFilter(soldBy))
		return err
	})
	g.Go(func() (err error) {
		returned, err = s.repo.ListReturns(gctx, window.ReturnFilter())
		return err
	})
	if err := g.Wait(); err != nil {
		return revenue.Summary{}, err
	}
	return revenue.Summarize(sold, returned, revenue.CostMap(products), soldBy), nil
}

// DashboardSummary is the manager's view of the business day in progress.
func (s *Service) DashboardSummary(ctx context.Context) (Dashboard, error) {
	return traced(ctx, s, "report.dashboard", func(ctx context.Context) (Dashboard, error) {
		if _, err := requireRole(ctx, "view the dashboard", managerRoles...); err != nil {
			return Dashboard{}, err
		}
		window, err := revenue.Resolve(domain.Period{Kind: domain.PeriodToday}, s.days)
		if err != nil {
			return Dashboard{}, err
		}

		var (
			today    revenue.Summary
			pending  []domain.Sale
			returns  []domain.Return
			active   []domain.Consignment
			products []domain.Product
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			today, err = s.summarize(gctx, window, "")
			return err
		})
		g.Go(func() (err error) {
			pending, err = s.repo.ListSales(gctx, store.SaleFilter{Statuses: []domain.SaleStatus{domain.SaleStatusPending}})
			return err
		})
		g.Go(func() (err error) {
			returns, err = s.repo.ListReturns(gctx, store.ReturnFilter{Statuses: []domain.ReturnStatus{domain.ReturnStatusPending}})
			return err
		})
		g.Go(func() error {
			return s.repo.ReadSnapshot(gctx, func(ctx context.Context, r store.Reader) (err error) {
				if products, err = r.ListProducts(ctx); err != nil {
					return err
				}
				active, err = r.ListConsignments(ctx, store.ConsignmentFilter{Statuses: []domain.ConsignmentStatus{domain.ConsignmentStatusActive}})
				return err
			})
		})
		if err := g.Wait(); err != nil {
			return Dashboard{}, err
		}

		now := s.days.Now()
		consigned := make(map[string]int, len(active))
		expired := 0
		for _, c := range active {
			consigned[c.ProductID] += c.Quantity
			if consignment.Urgency(c, now) == domain.UrgencyExpired {
				expired++
			}
		}
		d := Dashboard{
			BusinessDay:         window.BusinessDay,
			Currency:            s.venue.Currency,
			Today:               today,
			PendingSales:        len(pending),
			PendingReturns:      len(returns),
			ActiveConsignments:  len(active),
			ExpiredConsignments: expired,
			LowStock:            []ProductStock{},
			Suspicious:          []ProductStock{},
			StockValue:          revenue.StockValue(products),
		}
		for _, p := range products {
			ps := s.productStock(p, consigned[p.ID])
			if ps.LowStock {
				d.LowStock = append(d.LowStock, ps)
			}
			if ps.Suspicious {
				d.Suspicious = append(d.Suspicious, ps)
			}
		}
		return d, nil
	})
}
