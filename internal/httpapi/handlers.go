package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/businessday"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/store"
)

type pinRequest struct {
	ManagerPIN string `json:"manager_pin"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	venue := a.service.Venue()
	writeJSON(w, http.StatusOK, map[string]any{
		"settings":     venue,
		"timezone":     venue.Location.String(),
		"business_day": a.service.Days().Current(),
	})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.LowStock(r.Context())
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleSuspicious(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.Suspicious(r.Context())
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleStockInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.service.StockInfo(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": info})
}

func (a *API) handleMovements(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	movements, err := a.service.Movements(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (a *API) handleSupply(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplyRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	res, err := a.service.Supply(r.Context(), req)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleStockCount(w http.ResponseWriter, r *http.Request) {
	var req domain.StockCountRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	resp, err := a.service.StockCount(r.Context(), req)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SaleFilter{
		Statuses: splitStatuses[domain.SaleStatus](q.Get("status")),
		SoldBy:   strings.TrimSpace(q.Get("sold_by")),
		Limit:    parsePositiveLimit(q.Get("limit"), 200, 1000),
	}
	if raw := strings.TrimSpace(q.Get("business_day")); raw != "" {
		key, err := businessday.ParseKey(raw)
		if err != nil {
			a.writeAppError(w, r, apperror.NewInvalidInput("business_day must be YYYY-MM-DD"))
			return
		}
		filter.BusinessDay = key
	}
	sales, err := a.service.ListSales(r.Context(), filter)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	res, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleReturnable(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(r.URL.Query().Get("product_id"))
	if productID == "" {
		a.writeAppError(w, r, apperror.NewInvalidInput("product_id required"))
		return
	}
	left, err := a.service.Returnable(r.Context(), r.PathValue("id"), productID)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": productID, "remaining": left})
}

func (a *API) handleValidateSale(w http.ResponseWriter, r *http.Request) {
	res, err := a.service.ValidateSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleRejectSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.RejectSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleCancelRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	if !a.checkManagerPIN(w, r, "cancel", req.ManagerPIN) {
		return
	}
	res, err := a.service.CancelSale(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleListConsignments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := a.service.ListConsignments(r.Context(), store.ConsignmentFilter{
		SaleID:    strings.TrimSpace(q.Get("sale_id")),
		ProductID: strings.TrimSpace(q.Get("product_id")),
		Statuses:  splitStatuses[domain.ConsignmentStatus](q.Get("status")),
		Limit:     parsePositiveLimit(q.Get("limit"), 200, 1000),
	})
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consignments": list})
}

func (a *API) handleCreateConsignment(w http.ResponseWriter, r *http.Request) {
	var req domain.ConsignmentCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	res, err := a.service.CreateConsignment(r.Context(), req)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleExpiredConsignments(w http.ResponseWriter, r *http.Request) {
	list, err := a.service.ExpiredConsignments(r.Context())
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consignments": list})
}

func (a *API) handleGetConsignment(w http.ResponseWriter, r *http.Request) {
	c, err := a.service.GetConsignment(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consignment": c})
}

func (a *API) handleClaimConsignment(w http.ResponseWriter, r *http.Request) {
	res, err := a.service.ClaimConsignment(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleForfeitConsignment(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	if !a.checkManagerPIN(w, r, "forfeit", req.ManagerPIN) {
		return
	}
	res, err := a.service.ForfeitConsignment(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleListReturns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := a.service.ListReturns(r.Context(), store.ReturnFilter{
		SaleID:    strings.TrimSpace(q.Get("sale_id")),
		ProductID: strings.TrimSpace(q.Get("product_id")),
		Statuses:  splitStatuses[domain.ReturnStatus](q.Get("status")),
		Limit:     parsePositiveLimit(q.Get("limit"), 200, 1000),
	})
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"returns": list})
}

func (a *API) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	ret, err := a.service.CreateReturn(r.Context(), req)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"return": ret})
}

func (a *API) handleGetReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := a.service.GetReturn(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"return": ret})
}

func (a *API) handleApproveReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnApproveRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	res, err := a.service.ApproveReturn(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleRejectReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := a.service.RejectReturn(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"return": ret})
}

func (a *API) handleRestockReturn(w http.ResponseWriter, r *http.Request) {
	res, err := a.service.MarkReturnRestocked(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleRevenueReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := domain.Period{
		Kind: domain.PeriodKind(strings.TrimSpace(q.Get("period"))),
		From: businessday.Key(strings.TrimSpace(q.Get("from"))),
		To:   businessday.Key(strings.TrimSpace(q.Get("to"))),
	}
	report, err := a.service.RevenueReport(r.Context(), period, strings.TrimSpace(q.Get("sold_by")))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.service.DashboardSummary(r.Context())
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// splitStatuses parses a comma-separated status list.
func splitStatuses[S ~string](raw string) []S {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]S, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, S(p))
		}
	}
	return out
}
