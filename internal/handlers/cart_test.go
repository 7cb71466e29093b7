package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/vitrinehub/api/internal/domain"
	"github.com/vitrinehub/api/internal/services"
)

type fakeCartService struct {
	view       services.CartView
	result     services.CouponApplyResult
	err        error
	lastAdd    services.AddCartItemCommand
	lastCoupon services.ApplyCouponCommand
	cleared    bool
}

func (f *fakeCartService) GetCart(ctx context.Context, storeID, sessionID string) (services.CartView, error) {
	return f.view, f.err
}

func (f *fakeCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
	f.lastAdd = cmd
	return f.view, f.err
}

func (f *fakeCartService) UpdateItemQuantity(ctx context.Context, cmd services.UpdateCartItemQuantityCommand) (services.CartView, error) {
	return f.view, f.err
}

func (f *fakeCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.CartView, error) {
	return f.view, f.err
}

func (f *fakeCartService) ClearCart(ctx context.Context, storeID, sessionID string) error {
	f.cleared = true
	return f.err
}

func (f *fakeCartService) ApplyCoupon(ctx context.Context, cmd services.ApplyCouponCommand) (services.CouponApplyResult, services.CartView, error) {
	f.lastCoupon = cmd
	return f.result, f.view, f.err
}

func (f *fakeCartService) RemoveCoupon(ctx context.Context, storeID, sessionID string) (services.CartView, error) {
	return f.view, f.err
}

var _ services.CartService = (*fakeCartService)(nil)

func newCartTestRouter(carts services.CartService) http.Handler {
	h := NewCartHandlers(carts)
	return NewRouter(WithCartRoutes(h.Routes))
}

func sampleCartView() services.CartView {
	added := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return services.CartView{
		State: domain.SessionCartState{
			StoreID:   "loja-1",
			SessionID: "sess-1",
			Lines: []domain.CartLine{
				{ProductID: "prod-1", SKU: "SKU-1", Name: "Caneca", UnitPrice: 2500, Quantity: 2, AddedAt: added},
			},
			UpdatedAt: added,
		},
		Snapshot: domain.PricingSnapshot{
			Currency:   "BRL",
			Subtotal:   5000,
			FinalTotal: 5000,
		},
	}
}

func TestCartHandlersGetCart(t *testing.T) {
	carts := &fakeCartService{view: sampleCartView()}
	router := newCartTestRouter(carts)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/loja-1/cart", nil)
	req.Header.Set(SessionHeader, "sess-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get(SessionHeader); got != "sess-1" {
		t.Fatalf("expected session header echoed, got %q", got)
	}

	var body struct {
		Cart struct {
			StoreID string `json:"store_id"`
			Lines   []struct {
				ProductID string `json:"product_id"`
				LineTotal int64  `json:"line_total"`
			} `json:"lines"`
		} `json:"cart"`
		Pricing struct {
			Subtotal   int64 `json:"subtotal"`
			FinalTotal int64 `json:"final_total"`
		} `json:"pricing"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Cart.StoreID != "loja-1" {
		t.Fatalf("expected store loja-1, got %s", body.Cart.StoreID)
	}
	if len(body.Cart.Lines) != 1 || body.Cart.Lines[0].LineTotal != 5000 {
		t.Fatalf("unexpected lines payload: %+v", body.Cart.Lines)
	}
	if body.Pricing.FinalTotal != 5000 {
		t.Fatalf("expected final total 5000, got %d", body.Pricing.FinalTotal)
	}
}

func TestCartHandlersMintsSessionWhenHeaderMissing(t *testing.T) {
	carts := &fakeCartService{view: sampleCartView()}
	router := newCartTestRouter(carts)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/loja-1/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if minted := rr.Header().Get(SessionHeader); minted == "" {
		t.Fatal("expected a generated session header")
	}
}

func TestCartHandlersAddItem(t *testing.T) {
	carts := &fakeCartService{view: sampleCartView()}
	router := newCartTestRouter(carts)

	payload := map[string]any{
		"product_id": "prod-1",
		"sku":        "SKU-1",
		"name":       "Caneca",
		"unit_price": 2500,
		"quantity":   2,
	}
	data, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stores/loja-1/cart/items", bytes.NewReader(data))
	req.Header.Set(SessionHeader, "sess-1")
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if carts.lastAdd.StoreID != "loja-1" || carts.lastAdd.SessionID != "sess-1" {
		t.Fatalf("unexpected command scope: %+v", carts.lastAdd)
	}
	if carts.lastAdd.ProductID != "prod-1" || carts.lastAdd.UnitPrice != 2500 || carts.lastAdd.Quantity != 2 {
		t.Fatalf("unexpected add command: %+v", carts.lastAdd)
	}
}

func TestCartHandlersAddItemRejectsEmptyBody(t *testing.T) {
	carts := &fakeCartService{view: sampleCartView()}
	router := newCartTestRouter(carts)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stores/loja-1/cart/items", nil)
	req.Header.Set(SessionHeader, "sess-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersInvalidInputMapsToBadRequest(t *testing.T) {
	carts := &fakeCartService{err: services.ErrCartInvalidInput}
	router := newCartTestRouter(carts)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/loja-1/cart", nil)
	req.Header.Set(SessionHeader, "sess-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersStoreNotFound(t *testing.T) {
	carts := &fakeCartService{err: services.ErrStoreNotFound}
	router := newCartTestRouter(carts)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/missing/cart", nil)
	req.Header.Set(SessionHeader, "sess-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCartHandlersApplyCouponFailureReturns422(t *testing.T) {
	carts := &fakeCartService{
		view:   sampleCartView(),
		result: services.CouponApplyResult{Success: false, Message: "Cupom inválido ou expirado."},
	}
	router := newCartTestRouter(carts)

	data, _ := json.Marshal(map[string]string{"code": "NADA"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stores/loja-1/cart/coupon", bytes.NewReader(data))
	req.Header.Set(SessionHeader, "sess-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Success {
		t.Fatal("expected success false")
	}
	if body.Message != "Cupom inválido ou expirado." {
		t.Fatalf("unexpected message %q", body.Message)
	}
	if carts.lastCoupon.Code != "NADA" {
		t.Fatalf("expected code forwarded, got %q", carts.lastCoupon.Code)
	}
}

func TestCartHandlersApplyCouponSuccess(t *testing.T) {
	carts := &fakeCartService{
		view:   sampleCartView(),
		result: services.CouponApplyResult{Success: true, Message: "Cupom aplicado! Desconto de R$ 5.00.", Discount: 500},
	}
	router := newCartTestRouter(carts)

	data, _ := json.Marshal(map[string]string{"code": "bemvindo10"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stores/loja-1/cart/coupon", bytes.NewReader(data))
	req.Header.Set(SessionHeader, "sess-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body struct {
		Success  bool  `json:"success"`
		Discount int64 `json:"discount"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !body.Success || body.Discount != 500 {
		t.Fatalf("unexpected apply payload: %+v", body)
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	carts := &fakeCartService{view: sampleCartView()}
	router := newCartTestRouter(carts)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/stores/loja-1/cart", nil)
	req.Header.Set(SessionHeader, "sess-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !carts.cleared {
		t.Fatal("expected clear to reach the service")
	}
}

func TestCartHandlersGetPricing(t *testing.T) {
	carts := &fakeCartService{view: sampleCartView()}
	router := newCartTestRouter(carts)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/loja-1/pricing", nil)
	req.Header.Set(SessionHeader, "sess-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body struct {
		Pricing struct {
			Currency   string `json:"currency"`
			FinalTotal int64  `json:"final_total"`
		} `json:"pricing"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Pricing.Currency != "BRL" || body.Pricing.FinalTotal != 5000 {
		t.Fatalf("unexpected pricing payload: %+v", body.Pricing)
	}
}
