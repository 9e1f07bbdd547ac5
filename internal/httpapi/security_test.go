package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Zimkada/BarTender-sub004/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected configured CORS origin, got %q", got)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t, Options{AllowedOrigin: "https://bar.example"})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://bar.example" {
		t.Fatalf("unexpected origin header %q", got)
	}
}

func TestRequestRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t, Options{RequestsPerMinute: 2})
	handler := api.Handler()

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)

		if i < 2 && res.Code != http.StatusOK {
			t.Fatalf("request %d expected 200 before limit, got %d", i+1, res.Code)
		}
		if i == 2 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("request 3 expected 429, got %d", res.Code)
		}
	}
}

func TestRejectsInvalidTokens(t *testing.T) {
	api := newTestAPI(t, Options{})
	expired, _ := api.auth.sign(testManager, time.Now().Add(-time.Minute))
	unknownRole, _ := api.auth.sign(domain.Actor{ID: "sys-1", Role: domain.RoleSystem}, time.Now().Add(time.Hour))

	for name, token := range map[string]string{"expired": expired, "system role": unknownRole, "garbage": "abc.def.ghi"} {
		t.Run(name, func(t *testing.T) {
			c := &client{t: t, handler: api.Handler(), token: token}
			c.expect(http.MethodGet, "/api/v1/products", nil, http.StatusUnauthorized)
		})
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t, Options{})
	token, _ := api.auth.sign(testServer, time.Now().Add(time.Hour))
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"items":[{"product_id":"prd-flag-65","quantity":1}],"table_number":"%s"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestManagerPINRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t, Options{})
	handler := api.Handler()
	token, _ := api.auth.sign(testManager, time.Now().Add(time.Hour))

	body, _ := json.Marshal(domain.SaleCancelRequest{Reason: "test", ManagerPIN: "000000"})

	for i := 0; i < 9; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/sal-nonexistent/cancel", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.RemoteAddr = "127.0.0.1:5001"
		res := httptest.NewRecorder()

		handler.ServeHTTP(res, req)

		if i < 8 && res.Code != http.StatusForbidden {
			t.Fatalf("attempt %d expected 403 before pin limit, got %d", i+1, res.Code)
		}
		if i == 8 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 9 expected 429, got %d", res.Code)
		}
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}

func TestClientKeyStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	if got := clientKey(req); got != "2001:db8::1" {
		t.Fatalf("unexpected key %q", got)
	}
}
