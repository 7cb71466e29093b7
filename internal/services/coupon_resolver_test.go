package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vitrinehub/api/internal/domain"
)

type stubCouponSource struct {
	promotion domain.Promotion
	err       error
	lastCode  string
}

func (s *stubCouponSource) ResolveCoupon(ctx context.Context, code string) (Promotion, error) {
	s.lastCode = code
	return s.promotion, s.err
}

func resolverClock() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestResolver(t *testing.T, source couponSource) *CouponResolver {
	t.Helper()
	resolver, err := NewCouponResolver(CouponResolverDeps{
		Promotions: source,
		Clock:      resolverClock,
	})
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}
	return resolver
}

func couponPromotion() domain.Promotion {
	return domain.Promotion{
		ID:       "promo-coupon",
		StoreID:  "loja-1",
		Name:     "Cupom 10",
		IsActive: true,
		Scope:    domain.PromotionScope{Kind: domain.ScopeAll},
		Rule: domain.CouponDiscount{
			Code:    "BEMVINDO10",
			Kind:    domain.DiscountPercentage,
			Percent: 10,
		},
	}
}

func cartState(subtotal int64) SessionCartState {
	return SessionCartState{
		StoreID:   "loja-1",
		SessionID: "sess-1",
		Lines:     []domain.CartLine{testLine("prod-1", subtotal, 1)},
	}
}

func TestCouponResolverApplySuccess(t *testing.T) {
	source := &stubCouponSource{promotion: couponPromotion()}
	resolver := newTestResolver(t, source)
	store := Store{ID: "loja-1", Locale: "pt-BR"}

	result, coupon := resolver.Apply(context.Background(), store, cartState(5000), "  bemvindo10 ")

	if !result.Success {
		t.Fatalf("expected success, got message %q", result.Message)
	}
	if source.lastCode != "BEMVINDO10" {
		t.Fatalf("expected normalised lookup code, got %q", source.lastCode)
	}
	if result.Discount != 500 {
		t.Fatalf("expected discount 500, got %d", result.Discount)
	}
	if result.Message != "Cupom aplicado! Desconto de R$ 5.00." {
		t.Fatalf("unexpected message %q", result.Message)
	}
	if coupon == nil || coupon.Code != "BEMVINDO10" {
		t.Fatalf("expected applied coupon, got %+v", coupon)
	}
	if coupon.AppliedAt != resolverClock() {
		t.Fatalf("expected applied-at from clock, got %v", coupon.AppliedAt)
	}
}

func TestCouponResolverApplyBlankCode(t *testing.T) {
	resolver := newTestResolver(t, &stubCouponSource{})
	store := Store{ID: "loja-1", Locale: "pt-BR"}

	result, coupon := resolver.Apply(context.Background(), store, cartState(5000), "   ")

	if result.Success || coupon != nil {
		t.Fatal("expected failure for a blank code")
	}
	if result.Message != "Informe um código de cupom." {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestCouponResolverApplyUnknownCode(t *testing.T) {
	resolver := newTestResolver(t, &stubCouponSource{err: ErrPromotionNotFound})
	store := Store{ID: "loja-1", Locale: "pt-BR"}

	result, coupon := resolver.Apply(context.Background(), store, cartState(5000), "NADA")

	if result.Success || coupon != nil {
		t.Fatal("expected failure for an unknown code")
	}
	if result.Message != "Cupom inválido ou expirado." {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestCouponResolverApplyLookupFailure(t *testing.T) {
	resolver := newTestResolver(t, &stubCouponSource{err: errors.New("firestore down")})
	store := Store{ID: "loja-1", Locale: "pt-BR"}

	result, coupon := resolver.Apply(context.Background(), store, cartState(5000), "BEMVINDO10")

	if result.Success || coupon != nil {
		t.Fatal("expected failure when the lookup errors")
	}
	if result.Message != "Não foi possível validar o cupom. Tente novamente." {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestCouponResolverApplyStoreMismatch(t *testing.T) {
	promo := couponPromotion()
	promo.StoreID = "outra-loja"
	resolver := newTestResolver(t, &stubCouponSource{promotion: promo})
	store := Store{ID: "loja-1", Locale: "pt-BR"}

	result, coupon := resolver.Apply(context.Background(), store, cartState(5000), "BEMVINDO10")

	if result.Success || coupon != nil {
		t.Fatal("expected failure for a coupon owned by another store")
	}
	if result.Message != "Cupom inválido ou expirado." {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestCouponResolverApplyExpiredPromotion(t *testing.T) {
	promo := couponPromotion()
	ended := resolverClock().Add(-time.Hour)
	promo.EndsAt = &ended
	resolver := newTestResolver(t, &stubCouponSource{promotion: promo})
	store := Store{ID: "loja-1", Locale: "pt-BR"}

	result, coupon := resolver.Apply(context.Background(), store, cartState(5000), "BEMVINDO10")

	if result.Success || coupon != nil {
		t.Fatal("expected failure for an expired promotion")
	}
}

func TestCouponResolverApplyMinPurchase(t *testing.T) {
	promo := couponPromotion()
	rule := promo.Rule.(domain.CouponDiscount)
	rule.MinPurchaseValue = int64Ptr(5000)
	promo.Rule = rule
	resolver := newTestResolver(t, &stubCouponSource{promotion: promo})
	store := Store{ID: "loja-1", Locale: "pt-BR"}

	result, coupon := resolver.Apply(context.Background(), store, cartState(3000), "BEMVINDO10")

	if result.Success || coupon != nil {
		t.Fatal("expected failure below the minimum purchase")
	}
	if result.Message != "Compra mínima de R$ 50.00 para usar este cupom." {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestCouponResolverDiscountRecomputesLive(t *testing.T) {
	resolver := newTestResolver(t, &stubCouponSource{})

	state := cartState(5000)
	state.Coupon = &domain.AppliedCoupon{
		Code:      "BEMVINDO10",
		Promotion: couponPromotion(),
		AppliedAt: resolverClock(),
	}

	if got := resolver.Discount(state); got != 500 {
		t.Fatalf("expected discount 500, got %d", got)
	}

	// Growing the cart grows the discount; nothing is cached.
	state.Lines = append(state.Lines, testLine("prod-2", 5000, 1))
	if got := resolver.Discount(state); got != 1000 {
		t.Fatalf("expected discount 1000 after cart growth, got %d", got)
	}

	state.Coupon = nil
	if got := resolver.Discount(state); got != 0 {
		t.Fatalf("expected no discount without a coupon, got %d", got)
	}
}

func TestCouponResolverGrantsFreeShipping(t *testing.T) {
	resolver := newTestResolver(t, &stubCouponSource{})

	promo := couponPromotion()
	rule := promo.Rule.(domain.CouponDiscount)
	rule.GrantsFreeShipping = true
	rule.FreeShippingMinSubtotal = int64Ptr(10000)
	promo.Rule = rule

	state := cartState(5000)
	state.Coupon = &domain.AppliedCoupon{Code: "BEMVINDO10", Promotion: promo}

	if resolver.GrantsFreeShipping(state, 5000) {
		t.Fatal("expected no free shipping below the threshold")
	}
	if !resolver.GrantsFreeShipping(state, 10000) {
		t.Fatal("expected free shipping at the threshold")
	}

	rule.FreeShippingMinSubtotal = nil
	promo.Rule = rule
	state.Coupon = &domain.AppliedCoupon{Code: "BEMVINDO10", Promotion: promo}
	if !resolver.GrantsFreeShipping(state, 1) {
		t.Fatal("expected unconditional free shipping without a threshold")
	}
}
