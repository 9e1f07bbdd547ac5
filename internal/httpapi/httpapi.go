package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/logger"
	"github.com/Zimkada/BarTender-sub004/internal/service"
)

const maxBodyBytes = 1 << 20

var (
	anyRole     = []string{domain.RoleServer, domain.RoleManager, domain.RoleOwner}
	managerRole = []string{domain.RoleManager, domain.RoleOwner}
)

type Options struct {
	AllowedOrigin     string
	RequestsPerMinute int
	// Production turns on HTTPS redirects and HSTS.
	Production bool
	Logger     *logger.Logger
}

type API struct {
	service    *service.Service
	auth       *AuthManager
	opts       Options
	log        *logger.Logger
	pinLimiter *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 240
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &API{
		service:    svc,
		auth:       auth,
		opts:       opts,
		log:        log.WithComponent("http"),
		pinLimiter: newAttemptLimiter(8, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

// Allow records an attempt for key and reports whether it is within budget.
func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[key][:0]
	for _, ts := range l.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /api/v1/settings", a.requireAuth(a.handleSettings, anyRole...))

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts, anyRole...))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct, managerRole...))
	mux.HandleFunc("GET /api/v1/products/low-stock", a.requireAuth(a.handleLowStock, anyRole...))
	mux.HandleFunc("GET /api/v1/products/suspicious", a.requireAuth(a.handleSuspicious, managerRole...))
	mux.HandleFunc("GET /api/v1/products/{id}/stock", a.requireAuth(a.handleStockInfo, anyRole...))
	mux.HandleFunc("GET /api/v1/products/{id}/movements", a.requireAuth(a.handleMovements, managerRole...))
	mux.HandleFunc("POST /api/v1/stock/supplies", a.requireAuth(a.handleSupply, managerRole...))
	mux.HandleFunc("POST /api/v1/stock/counts", a.requireAuth(a.handleStockCount, managerRole...))

	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales, anyRole...))
	mux.HandleFunc("POST /api/v1/sales", a.requireAuth(a.handleCreateSale, anyRole...))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleGetSale, anyRole...))
	mux.HandleFunc("GET /api/v1/sales/{id}/returnable", a.requireAuth(a.handleReturnable, anyRole...))
	mux.HandleFunc("POST /api/v1/sales/{id}/validate", a.requireAuth(a.handleValidateSale, managerRole...))
	mux.HandleFunc("POST /api/v1/sales/{id}/reject", a.requireAuth(a.handleRejectSale, managerRole...))
	mux.HandleFunc("POST /api/v1/sales/{id}/cancel", a.requireAuth(a.handleCancelSale, managerRole...))

	mux.HandleFunc("GET /api/v1/consignments", a.requireAuth(a.handleListConsignments, anyRole...))
	mux.HandleFunc("POST /api/v1/consignments", a.requireAuth(a.handleCreateConsignment, anyRole...))
	mux.HandleFunc("GET /api/v1/consignments/expired", a.requireAuth(a.handleExpiredConsignments, anyRole...))
	mux.HandleFunc("GET /api/v1/consignments/{id}", a.requireAuth(a.handleGetConsignment, anyRole...))
	mux.HandleFunc("POST /api/v1/consignments/{id}/claim", a.requireAuth(a.handleClaimConsignment, anyRole...))
	mux.HandleFunc("POST /api/v1/consignments/{id}/forfeit", a.requireAuth(a.handleForfeitConsignment, managerRole...))

	mux.HandleFunc("GET /api/v1/returns", a.requireAuth(a.handleListReturns, anyRole...))
	mux.HandleFunc("POST /api/v1/returns", a.requireAuth(a.handleCreateReturn, anyRole...))
	mux.HandleFunc("GET /api/v1/returns/{id}", a.requireAuth(a.handleGetReturn, anyRole...))
	mux.HandleFunc("POST /api/v1/returns/{id}/approve", a.requireAuth(a.handleApproveReturn, managerRole...))
	mux.HandleFunc("POST /api/v1/returns/{id}/reject", a.requireAuth(a.handleRejectReturn, managerRole...))
	mux.HandleFunc("POST /api/v1/returns/{id}/restock", a.requireAuth(a.handleRestockReturn, managerRole...))

	mux.HandleFunc("GET /api/v1/reports/revenue", a.requireAuth(a.handleRevenueReport, anyRole...))
	mux.HandleFunc("GET /api/v1/reports/dashboard", a.requireAuth(a.handleDashboard, managerRole...))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		ctx := service.WithActor(r.Context(), actor)
		ctx = logger.WithLogger(ctx, a.log.With("actor_id", actor.ID, "actor_role", actor.Role))
		next(w, r.WithContext(ctx))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// checkManagerPIN guards irreversible operations with the venue manager PIN.
func (a *API) checkManagerPIN(w http.ResponseWriter, r *http.Request, scope, pin string) bool {
	if !a.pinLimiter.Allow("pin:" + scope + ":" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return false
	}
	if !a.auth.ValidateManagerPIN(pin) {
		writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
		return false
	}
	return true
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:               true,
		ContentTypeNosniff:      true,
		ReferrerPolicy:          "strict-origin-when-cross-origin",
		CrossOriginOpenerPolicy: "same-origin",
		ContentSecurityPolicy:   "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:             a.opts.Production,
		SSLProxyHeaders:         map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:              stsSeconds(a.opts.Production),
		IsDevelopment:           !a.opts.Production,
	})
	limiter := httprate.Limit(a.opts.RequestsPerMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
		}),
	)

	core := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.opts.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.Debugw("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(startedAt))
	})

	return secureMiddleware.Handler(limiter(core))
}

func stsSeconds(production bool) int64 {
	if production {
		return 31536000
	}
	return 0
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return apperror.NewInvalidInput("malformed request body").WithCause(err)
	}
	return nil
}

// decodeOptionalJSON accepts an empty body as the zero value.
func decodeOptionalJSON(r *http.Request, dest any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(r, dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeError writes an edge error that never reached the engine.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeAppError maps an engine error to its status and code. 5xx responses
// carry a generic message.
func (a *API) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperror.HTTPStatus(err)
	body := map[string]any{"code": apperror.CodeOf(err)}
	if status >= 500 {
		logger.FromContext(r.Context()).Errorw("request failed", "path", r.URL.Path, "error", err)
		body["error"] = "internal server error"
		writeJSON(w, status, body)
		return
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		body["error"] = appErr.Message
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
	} else {
		body["error"] = err.Error()
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
