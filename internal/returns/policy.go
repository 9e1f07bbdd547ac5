package returns

import (
	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
)

// Policy is what a return reason implies once approved.
type Policy struct {
	// AutoRestock puts the units back on the shelf at approval.
	AutoRestock bool
	// AutoRefund fixes the refund at unit price × quantity.
	AutoRefund bool
}

// PolicyFor maps a reason to its policy. Reason "other" has neither flag:
// the approver decides both refund and restock.
func PolicyFor(reason domain.ReturnReason) (Policy, error) {
	switch reason {
	case domain.ReasonDefective:
		return Policy{AutoRestock: false, AutoRefund: true}, nil
	case domain.ReasonWrongItem:
		return Policy{AutoRestock: true, AutoRefund: true}, nil
	case domain.ReasonCustomerChange:
		return Policy{AutoRestock: true, AutoRefund: true}, nil
	case domain.ReasonExpired:
		return Policy{AutoRestock: false, AutoRefund: true}, nil
	case domain.ReasonOther:
		return Policy{}, nil
	default:
		return Policy{}, apperror.Newf(apperror.ErrInvalidInput, "unknown return reason %q", reason)
	}
}

// Reasons lists every supported reason in display order.
func Reasons() []domain.ReturnReason {
	return []domain.ReturnReason{
		domain.ReasonDefective,
		domain.ReasonWrongItem,
		domain.ReasonCustomerChange,
		domain.ReasonExpired,
		domain.ReasonOther,
	}
}
