package revenue

import (
	"time"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/businessday"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/store"
)

// Window is a resolved reporting period. Today is keyed by business day;
// the other kinds are half-open calendar ranges in the venue zone.
type Window struct {
	Kind        domain.PeriodKind `json:"kind"`
	BusinessDay businessday.Key   `json:"business_day,omitempty"`
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
}

// Resolve turns a period into a window relative to the resolver's clock.
func Resolve(p domain.Period, days *businessday.Resolver) (Window, error) {
	now := days.Now()
	loc := days.Location()

	switch p.Kind {
	case domain.PeriodToday, "":
		key := days.Current()
		from, to, err := days.Bounds(key)
		if err != nil {
			return Window{}, err
		}
		return Window{Kind: domain.PeriodToday, BusinessDay: key, From: from, To: to}, nil
	case domain.PeriodWeek:
		from, to := businessday.WeekRange(now, loc)
		return Window{Kind: p.Kind, From: from, To: to}, nil
	case domain.PeriodMonth:
		from, to := businessday.MonthRange(now, loc)
		return Window{Kind: p.Kind, From: from, To: to}, nil
	case domain.PeriodCustom:
		start, err := businessday.ParseKey(p.From.String())
		if err != nil {
			return Window{}, apperror.NewInvalidInput("custom period needs a valid from date").WithCause(err)
		}
		end, err := businessday.ParseKey(p.To.String())
		if err != nil {
			return Window{}, apperror.NewInvalidInput("custom period needs a valid to date").WithCause(err)
		}
		if end.Before(start) {
			return Window{}, apperror.NewInvalidInput("custom period ends before it starts").
				WithDetail("from", start.String()).
				WithDetail("to", end.String())
		}
		from, to, err := businessday.DayRange(start, end, loc)
		if err != nil {
			return Window{}, err
		}
		return Window{Kind: p.Kind, From: from, To: to}, nil
	default:
		return Window{}, apperror.Newf(apperror.ErrInvalidInput, "unknown period %q", p.Kind)
	}
}

// SaleFilter selects validated sales inside the window.
func (w Window) SaleFilter(soldBy string) store.SaleFilter {
	f := store.SaleFilter{
		Statuses: []domain.SaleStatus{domain.SaleStatusValidated},
		SoldBy:   soldBy,
	}
	if w.BusinessDay != "" {
		f.BusinessDay = w.BusinessDay
		return f
	}
	f.CreatedFrom, f.CreatedTo = w.From, w.To
	return f
}

// ReturnFilter selects non-rejected returns inside the window. The seller
// restriction is applied by Summarize.
func (w Window) ReturnFilter() store.ReturnFilter {
	f := store.ReturnFilter{
		Statuses: []domain.ReturnStatus{domain.ReturnStatusPending, domain.ReturnStatusApproved, domain.ReturnStatusRestocked},
	}
	if w.BusinessDay != "" {
		f.BusinessDay = w.BusinessDay
		return f
	}
	f.ReturnedFrom, f.ReturnedTo = w.From, w.To
	return f
}
