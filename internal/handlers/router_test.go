package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestRouterHealthz(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
}

func TestRouterUnknownRouteReturnsEnvelope(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nothing-here", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var body struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Error != "route_not_found" {
		t.Fatalf("expected route_not_found, got %q", body.Error)
	}
	if body.Status != http.StatusNotFound {
		t.Fatalf("expected status field 404, got %d", body.Status)
	}
}

func TestRouterUnconfiguredGroupReturnsNotImplemented(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/loja-1/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected status 501, got %d", rr.Code)
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Error != "not_implemented" {
		t.Fatalf("expected not_implemented, got %q", body.Error)
	}
}

func TestRouterSessionHeaderMintedOnStoreRoutes(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/loja-1/promotions", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if got := rr.Header().Get(SessionHeader); got == "" {
		t.Fatal("expected a session header on store-scoped routes")
	}
}

func TestRouterCheckoutMiddlewaresApply(t *testing.T) {
	var sawMiddleware bool
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sawMiddleware = true
			next.ServeHTTP(w, r)
		})
	}

	router := NewRouter(
		WithCheckoutRoutes(func(r chi.Router) {
			r.Post("/checkout", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusCreated)
			})
		}),
		WithCheckoutMiddlewares(mw),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stores/loja-1/checkout", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if !sawMiddleware {
		t.Fatal("expected checkout middleware to run")
	}
}

func TestRouterRateLimitMiddleware(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	limited := RateLimitMiddleware(1, time.Minute, func() time.Time { return now })

	router := NewRouter(
		WithCartRoutes(func(r chi.Router) {
			r.Get("/cart", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		}),
		WithMiddlewares(limited),
	)

	first := httptest.NewRequest(http.MethodGet, "/api/v1/stores/loja-1/cart", nil)
	first.Header.Set(SessionHeader, "sess-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, first)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/api/v1/stores/loja-1/cart", nil)
	second.Header.Set(SessionHeader, "sess-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, second)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request limited, got %d", rr.Code)
	}
}
