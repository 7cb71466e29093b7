package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/vitrinehub/api/internal/domain"
)

// couponSource is the subset of the promotion catalog the resolver needs.
type couponSource interface {
	ResolveCoupon(ctx context.Context, code string) (Promotion, error)
}

// CouponResolverDeps wires the coupon lookup and clock for the resolver.
type CouponResolverDeps struct {
	Promotions couponSource
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

// CouponResolver validates a submitted code against the store's promotion
// set. Every rejection is a typed result with a storefront message; the
// resolver never returns an error to the pricing flow.
type CouponResolver struct {
	promotions couponSource
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewCouponResolver constructs a CouponResolver enforcing dependency validation.
func NewCouponResolver(deps CouponResolverDeps) (*CouponResolver, error) {
	if deps.Promotions == nil {
		return nil, errors.New("coupon resolver: promotion source is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CouponResolver{
		promotions: deps.Promotions,
		now:        func() time.Time { return now().UTC() },
		logger:     logger,
	}, nil
}

// Apply validates the code for the store session and, on success, returns
// the coupon to persist on the session state. The discount in the result is
// informational, computed at apply time; later reads always recompute.
func (r *CouponResolver) Apply(ctx context.Context, store Store, state SessionCartState, code string) (CouponApplyResult, *AppliedCoupon) {
	msgs := catalogForLocale(store.Locale)

	normalized := domain.NormalizeCouponCode(code)
	if normalized == "" {
		return CouponApplyResult{Success: false, Message: msgs.blankCoupon}, nil
	}

	promo, err := r.promotions.ResolveCoupon(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrPromotionNotFound) {
			return CouponApplyResult{Success: false, Message: msgs.invalidCoupon}, nil
		}
		r.logger(ctx, "coupon.lookup_failed", map[string]any{
			"storeId": store.ID,
			"code":    normalized,
			"error":   err.Error(),
		})
		return CouponApplyResult{Success: false, Message: msgs.couponUnavailable}, nil
	}

	rule, ok := promo.CouponRule()
	if !ok || !promo.AvailableAt(r.now()) {
		return CouponApplyResult{Success: false, Message: msgs.invalidCoupon}, nil
	}

	if !strings.EqualFold(strings.TrimSpace(promo.StoreID), strings.TrimSpace(store.ID)) {
		r.logger(ctx, "coupon.store_mismatch", map[string]any{
			"storeId":      store.ID,
			"promotionId":  promo.ID,
			"ownerStoreId": promo.StoreID,
		})
		return CouponApplyResult{Success: false, Message: msgs.invalidCoupon}, nil
	}

	subtotal := state.Subtotal()
	if rule.MinPurchaseValue != nil && *rule.MinPurchaseValue > 0 && subtotal < *rule.MinPurchaseValue {
		return CouponApplyResult{
			Success: false,
			Message: msgs.minPurchase(formatAmount(*rule.MinPurchaseValue)),
		}, nil
	}

	coupon := &domain.AppliedCoupon{
		Code:      normalized,
		Promotion: promo,
		AppliedAt: r.now(),
	}

	preview := state
	preview.Coupon = coupon
	discount := r.Discount(preview)

	return CouponApplyResult{
		Success:  true,
		Message:  msgs.couponApplied(formatAmount(discount)),
		Discount: discount,
	}, coupon
}

// Discount recomputes the applied coupon's discount against the current
// subtotal. It is never cached: cart edits after applying a coupon change
// the value live, and the result never exceeds the subtotal.
func (r *CouponResolver) Discount(state SessionCartState) int64 {
	if state.Coupon == nil {
		return 0
	}
	rule, ok := state.Coupon.Promotion.CouponRule()
	if !ok {
		return 0
	}
	return DiscountCalculator{}.CouponValue(rule, state.Subtotal())
}

// GrantsFreeShipping reports whether the applied coupon waives shipping at
// the given subtotal.
func (r *CouponResolver) GrantsFreeShipping(state SessionCartState, subtotal int64) bool {
	if state.Coupon == nil {
		return false
	}
	rule, ok := state.Coupon.Promotion.CouponRule()
	if !ok || !rule.GrantsFreeShipping {
		return false
	}
	if rule.FreeShippingMinSubtotal != nil && *rule.FreeShippingMinSubtotal > 0 {
		return subtotal >= *rule.FreeShippingMinSubtotal
	}
	return true
}
