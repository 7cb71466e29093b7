package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/vitrinehub/api/internal/domain"
)

// couponDiscounter is the slice of the coupon resolver the engine consumes.
type couponDiscounter interface {
	Discount(state SessionCartState) int64
	GrantsFreeShipping(state SessionCartState, subtotal int64) bool
}

// PricingEngineDeps wires the collaborators for snapshot computation.
type PricingEngineDeps struct {
	Coupons couponDiscounter
	Clock   func() time.Time
	Logger  func(context.Context, string, map[string]any)
	Meter   metric.Meter
}

// PricingEngine derives the full pricing breakdown for a session cart. A
// snapshot is recomputed from scratch on every call: the engine holds no
// cart state and caches nothing, so identical inputs always produce
// identical results.
type PricingEngine struct {
	coupons   couponDiscounter
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
	snapshots metric.Int64Counter
}

// NewPricingEngine constructs a PricingEngine enforcing dependency validation.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Coupons == nil {
		return nil, errors.New("pricing engine: coupon resolver is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter("vitrinehub/pricing")
	}
	snapshots, err := meter.Int64Counter("pricing.snapshot.runs",
		metric.WithDescription("Number of pricing snapshot computations."))
	if err != nil {
		snapshots = nil
	}

	return &PricingEngine{
		coupons:   deps.Coupons,
		now:       func() time.Time { return now().UTC() },
		logger:    logger,
		snapshots: snapshots,
	}, nil
}

// Snapshot runs a full pricing pass: eligibility filtering and discount
// calculation for every automatic promotion, live coupon recomputation, and
// the free-shipping decision. Promotions that do not apply are omitted from
// the output rather than reported as errors.
func (e *PricingEngine) Snapshot(ctx context.Context, store Store, state SessionCartState, promotions []Promotion) PricingSnapshot {
	now := e.now()
	calc := NewDiscountCalculator(store.Locale)
	subtotal := state.Subtotal()

	applied := make([]domain.AppliedPromotion, 0, len(promotions))
	freeShipping := false

	for _, promo := range promotions {
		if !promo.AvailableAt(now) || promo.IsCoupon() {
			continue
		}

		if rule, ok := promo.Rule.(domain.FreeShipping); ok {
			if state.IsEmpty() {
				continue
			}
			if rule.MinSubtotal == nil || *rule.MinSubtotal <= 0 || subtotal >= *rule.MinSubtotal {
				freeShipping = true
			}
			continue
		}

		eligible := EligibleLines(promo, state.Lines)
		if result, ok := calc.Automatic(promo, eligible); ok {
			applied = append(applied, result)
		}
	}

	var automaticDiscount int64
	for _, result := range applied {
		automaticDiscount += result.DiscountValue
	}

	couponDiscount := e.coupons.Discount(state)
	if e.coupons.GrantsFreeShipping(state, subtotal) {
		freeShipping = true
	}

	totalDiscount := automaticDiscount + couponDiscount
	finalTotal := subtotal - totalDiscount
	if finalTotal < 0 {
		finalTotal = 0
	}

	couponCode := ""
	if state.Coupon != nil {
		couponCode = state.Coupon.Code
	}

	if e.snapshots != nil {
		e.snapshots.Add(ctx, 1, metric.WithAttributes(attribute.String("store_id", store.ID)))
	}

	return PricingSnapshot{
		Currency:          strings.ToUpper(strings.TrimSpace(store.Currency)),
		Subtotal:          subtotal,
		AutomaticDiscount: automaticDiscount,
		CouponDiscount:    couponDiscount,
		TotalDiscount:     totalDiscount,
		FinalTotal:        finalTotal,
		FreeShipping:      freeShipping,
		AppliedPromotions: applied,
		CouponCode:        couponCode,
	}
}

// ProductPromotion returns the first available promotion in the store's
// list whose eligibility covers the product. The lookup powers the catalog
// badge and is independent of cart contents.
func (e *PricingEngine) ProductPromotion(promotions []Promotion, productID string) (Promotion, bool) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return Promotion{}, false
	}
	now := e.now()
	for _, promo := range promotions {
		if !promo.AvailableAt(now) {
			continue
		}
		if promo.Scope.CoversProduct(id) {
			return promo, true
		}
	}
	return Promotion{}, false
}
