package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/vitrinehub/api/internal/domain"
)

type fakeSessionRepo struct {
	states   map[string]domain.SessionCartState
	getErr   error
	saveErr  error
	clearErr error
	saves    int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{states: make(map[string]domain.SessionCartState)}
}

func sessionKey(storeID, sessionID string) string {
	return storeID + "|" + sessionID
}

func (f *fakeSessionRepo) GetState(_ context.Context, storeID, sessionID string) (domain.SessionCartState, error) {
	if f.getErr != nil {
		return domain.SessionCartState{}, f.getErr
	}
	state, ok := f.states[sessionKey(storeID, sessionID)]
	if !ok {
		return domain.SessionCartState{}, &fakeRepoError{notFound: true}
	}
	return state, nil
}

func (f *fakeSessionRepo) SaveState(_ context.Context, state domain.SessionCartState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.states[sessionKey(state.StoreID, state.SessionID)] = state
	return nil
}

func (f *fakeSessionRepo) Clear(_ context.Context, storeID, sessionID string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	delete(f.states, sessionKey(storeID, sessionID))
	return nil
}

type fakeRepoError struct {
	notFound    bool
	unavailable bool
}

func (e *fakeRepoError) Error() string       { return fmt.Sprintf("repo error notFound=%v", e.notFound) }
func (e *fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e *fakeRepoError) IsConflict() bool    { return false }
func (e *fakeRepoError) IsUnavailable() bool { return e.unavailable }

type stubStoreService struct {
	store Store
	err   error
}

func (s *stubStoreService) GetStore(context.Context, string) (Store, error) {
	return s.store, s.err
}

type stubPromotionCatalog struct {
	promotions []Promotion
	err        error
}

func (s *stubPromotionCatalog) ListActivePromotions(context.Context, string) ([]Promotion, error) {
	return s.promotions, s.err
}

type stubSnapshotBuilder struct {
	calls int
}

func (s *stubSnapshotBuilder) Snapshot(_ context.Context, store Store, state SessionCartState, _ []Promotion) PricingSnapshot {
	s.calls++
	return PricingSnapshot{
		Currency:   store.Currency,
		Subtotal:   state.Subtotal(),
		FinalTotal: state.Subtotal(),
	}
}

type stubCouponApplier struct {
	result CouponApplyResult
	coupon *domain.AppliedCoupon
}

func (s *stubCouponApplier) Apply(context.Context, Store, SessionCartState, string) (CouponApplyResult, *domain.AppliedCoupon) {
	return s.result, s.coupon
}

type cartFixture struct {
	service  CartService
	sessions *fakeSessionRepo
	engine   *stubSnapshotBuilder
	coupons  *stubCouponApplier
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()
	sessions := newFakeSessionRepo()
	engine := &stubSnapshotBuilder{}
	coupons := &stubCouponApplier{}
	svc, err := NewCartService(CartServiceDeps{
		Sessions:   sessions,
		Stores:     &stubStoreService{store: Store{ID: "loja-1", Currency: "BRL", Locale: "pt-BR"}},
		Promotions: &stubPromotionCatalog{},
		Engine:     engine,
		Coupons:    coupons,
		Clock:      func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("failed to build cart service: %v", err)
	}
	return &cartFixture{service: svc, sessions: sessions, engine: engine, coupons: coupons}
}

func TestCartServiceGetCartStartsEmpty(t *testing.T) {
	fx := newCartFixture(t)

	view, err := fx.service.GetCart(context.Background(), "loja-1", "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !view.State.IsEmpty() {
		t.Fatalf("expected empty cart, got %+v", view.State)
	}
	if view.Snapshot.Subtotal != 0 {
		t.Fatalf("expected zero subtotal, got %d", view.Snapshot.Subtotal)
	}
}

func TestCartServiceAddItemMergesByIdentityKey(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	base := AddCartItemCommand{
		StoreID:   "loja-1",
		SessionID: "sess-1",
		ProductID: "prod-1",
		SKU:       "SKU-1",
		Name:      "Caneca",
		UnitPrice: 2500,
		Quantity:  1,
	}
	if _, err := fx.service.AddItem(ctx, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same identity key with a different price: quantities sum, the first
	// price snapshot wins.
	repeat := base
	repeat.UnitPrice = 9999
	repeat.Quantity = 2
	view, err := fx.service.AddItem(ctx, repeat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(view.State.Lines) != 1 {
		t.Fatalf("expected one merged line, got %d", len(view.State.Lines))
	}
	line := view.State.Lines[0]
	if line.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", line.Quantity)
	}
	if line.UnitPrice != 2500 {
		t.Fatalf("expected the original price snapshot, got %d", line.UnitPrice)
	}
}

func TestCartServiceAddItemVariantsStayDistinct(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	first := AddCartItemCommand{StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-1", VariantID: "var-p", UnitPrice: 2500, Quantity: 1}
	second := AddCartItemCommand{StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-1", VariantID: "var-g", UnitPrice: 2700, Quantity: 1}

	if _, err := fx.service.AddItem(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view, err := fx.service.AddItem(ctx, second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.State.Lines) != 2 {
		t.Fatalf("expected two variant lines, got %d", len(view.State.Lines))
	}
}

func TestCartServiceAddItemValidation(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	cases := []AddCartItemCommand{
		{StoreID: "loja-1", SessionID: "sess-1", Quantity: 1, UnitPrice: 100},
		{StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-1", Quantity: 0, UnitPrice: 100},
		{StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-1", Quantity: 1, UnitPrice: -1},
	}
	for i, cmd := range cases {
		if _, err := fx.service.AddItem(ctx, cmd); !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestCartServiceUpdateQuantityClampsToStockLimit(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	add := AddCartItemCommand{
		StoreID:    "loja-1",
		SessionID:  "sess-1",
		ProductID:  "prod-1",
		UnitPrice:  1000,
		Quantity:   1,
		StockLimit: intPtr(5),
	}
	if _, err := fx.service.AddItem(ctx, add); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	view, err := fx.service.UpdateItemQuantity(ctx, UpdateCartItemQuantityCommand{
		StoreID:   "loja-1",
		SessionID: "sess-1",
		ProductID: "prod-1",
		Quantity:  50,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.State.Lines[0].Quantity != 5 {
		t.Fatalf("expected quantity clamped to 5, got %d", view.State.Lines[0].Quantity)
	}
}

func TestCartServiceUpdateQuantityDefaultLimit(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	add := AddCartItemCommand{StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-1", UnitPrice: 1000, Quantity: 1}
	if _, err := fx.service.AddItem(ctx, add); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	view, err := fx.service.UpdateItemQuantity(ctx, UpdateCartItemQuantityCommand{
		StoreID:   "loja-1",
		SessionID: "sess-1",
		ProductID: "prod-1",
		Quantity:  500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.State.Lines[0].Quantity != domain.DefaultStockLimit {
		t.Fatalf("expected default clamp %d, got %d", domain.DefaultStockLimit, view.State.Lines[0].Quantity)
	}
}

func TestCartServiceUpdateQuantityNoOps(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	add := AddCartItemCommand{StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-1", UnitPrice: 1000, Quantity: 2}
	if _, err := fx.service.AddItem(ctx, add); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	savesAfterAdd := fx.sessions.saves

	// Below one: the line is untouched and nothing is persisted.
	view, err := fx.service.UpdateItemQuantity(ctx, UpdateCartItemQuantityCommand{
		StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-1", Quantity: 0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.State.Lines[0].Quantity != 2 {
		t.Fatalf("expected quantity unchanged, got %d", view.State.Lines[0].Quantity)
	}
	if fx.sessions.saves != savesAfterAdd {
		t.Fatal("expected no save for a below-one update")
	}

	// Unmatched product: same silent no-op.
	view, err = fx.service.UpdateItemQuantity(ctx, UpdateCartItemQuantityCommand{
		StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-x", Quantity: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.State.Lines) != 1 || view.State.Lines[0].Quantity != 2 {
		t.Fatalf("expected cart unchanged, got %+v", view.State.Lines)
	}
}

func TestCartServiceRemoveItemMatchesVariant(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	adds := []AddCartItemCommand{
		{StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-1", VariantID: "var-p", UnitPrice: 1000, Quantity: 1},
		{StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-1", VariantID: "var-g", UnitPrice: 1000, Quantity: 1},
	}
	for _, cmd := range adds {
		if _, err := fx.service.AddItem(ctx, cmd); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	view, err := fx.service.RemoveItem(ctx, RemoveCartItemCommand{
		StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-1", VariantID: "var-p",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.State.Lines) != 1 || view.State.Lines[0].VariantID != "var-g" {
		t.Fatalf("expected only var-g to remain, got %+v", view.State.Lines)
	}

	// Removing something absent is a silent no-op.
	view, err = fx.service.RemoveItem(ctx, RemoveCartItemCommand{
		StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.State.Lines) != 1 {
		t.Fatalf("expected cart unchanged, got %+v", view.State.Lines)
	}
}

func TestCartServiceClearCart(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	add := AddCartItemCommand{StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-1", UnitPrice: 1000, Quantity: 1}
	if _, err := fx.service.AddItem(ctx, add); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := fx.service.ClearCart(ctx, "loja-1", "sess-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	view, err := fx.service.GetCart(ctx, "loja-1", "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !view.State.IsEmpty() {
		t.Fatalf("expected empty cart after clear, got %+v", view.State)
	}
}

func TestCartServiceApplyCouponPersistsOnlyOnSuccess(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	add := AddCartItemCommand{StoreID: "loja-1", SessionID: "sess-1", ProductID: "prod-1", UnitPrice: 5000, Quantity: 1}
	if _, err := fx.service.AddItem(ctx, add); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fx.coupons.result = CouponApplyResult{Success: false, Message: "Cupom inválido ou expirado."}
	result, view, err := fx.service.ApplyCoupon(ctx, ApplyCouponCommand{StoreID: "loja-1", SessionID: "sess-1", Code: "NADA"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || view.State.Coupon != nil {
		t.Fatalf("expected rejection without persistence, got %+v", view.State.Coupon)
	}
	if stored := fx.sessions.states[sessionKey("loja-1", "sess-1")]; stored.Coupon != nil {
		t.Fatal("expected no coupon persisted on failure")
	}

	fx.coupons.result = CouponApplyResult{Success: true, Message: "Cupom aplicado! Desconto de R$ 5.00.", Discount: 500}
	fx.coupons.coupon = &domain.AppliedCoupon{Code: "BEMVINDO10", Promotion: couponPromotion()}
	result, view, err = fx.service.ApplyCoupon(ctx, ApplyCouponCommand{StoreID: "loja-1", SessionID: "sess-1", Code: "bemvindo10"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if view.State.Coupon == nil || view.State.Coupon.Code != "BEMVINDO10" {
		t.Fatalf("expected coupon on the view, got %+v", view.State.Coupon)
	}
	if stored := fx.sessions.states[sessionKey("loja-1", "sess-1")]; stored.Coupon == nil {
		t.Fatal("expected coupon persisted on success")
	}
}

func TestCartServiceRemoveCoupon(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	fx.sessions.states[sessionKey("loja-1", "sess-1")] = domain.SessionCartState{
		StoreID:   "loja-1",
		SessionID: "sess-1",
		Lines:     []domain.CartLine{testLine("prod-1", 5000, 1)},
		Coupon:    &domain.AppliedCoupon{Code: "BEMVINDO10", Promotion: couponPromotion()},
	}

	view, err := fx.service.RemoveCoupon(ctx, "loja-1", "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.State.Coupon != nil {
		t.Fatalf("expected coupon removed, got %+v", view.State.Coupon)
	}

	// Removing again is a no-op without a save.
	saves := fx.sessions.saves
	if _, err := fx.service.RemoveCoupon(ctx, "loja-1", "sess-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fx.sessions.saves != saves {
		t.Fatal("expected no save when no coupon is applied")
	}
}

func TestCartServiceStoreErrorsPassThrough(t *testing.T) {
	sessions := newFakeSessionRepo()
	svc, err := NewCartService(CartServiceDeps{
		Sessions:   sessions,
		Stores:     &stubStoreService{err: ErrStoreNotFound},
		Promotions: &stubPromotionCatalog{},
		Engine:     &stubSnapshotBuilder{},
		Coupons:    &stubCouponApplier{},
	})
	if err != nil {
		t.Fatalf("failed to build cart service: %v", err)
	}

	if _, err := svc.GetCart(context.Background(), "missing", "sess-1"); !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("expected store not found, got %v", err)
	}
}

func TestCartServiceRepoUnavailable(t *testing.T) {
	fx := newCartFixture(t)
	fx.sessions.getErr = &fakeRepoError{unavailable: true}

	if _, err := fx.service.GetCart(context.Background(), "loja-1", "sess-1"); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestCartServiceBlankScopeRejected(t *testing.T) {
	fx := newCartFixture(t)

	if _, err := fx.service.GetCart(context.Background(), " ", "sess-1"); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := fx.service.GetCart(context.Background(), "loja-1", " "); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
