package domain

import (
	"strings"
	"time"
)

// PromotionScopeKind enumerates the eligibility scopes a promotion can carry.
type PromotionScopeKind string

const (
	// ScopeAll applies the promotion to every cart line.
	ScopeAll PromotionScopeKind = "all"
	// ScopeProducts restricts the promotion to an explicit product id list.
	ScopeProducts PromotionScopeKind = "products"
	// ScopeCategories restricts the promotion to category ids. Cart lines do
	// not carry categories, so this scope currently falls back to the full
	// cart at filtering time.
	ScopeCategories PromotionScopeKind = "categories"
)

// PromotionScope describes which catalog subset a promotion governs.
type PromotionScope struct {
	Kind        PromotionScopeKind
	ProductIDs  []string
	CategoryIDs []string
}

// CoversProduct reports whether the scope includes the given product. Category
// scopes answer true because no category linkage exists on the product side
// of this lookup.
func (s PromotionScope) CoversProduct(productID string) bool {
	switch s.Kind {
	case ScopeProducts:
		for _, id := range s.ProductIDs {
			if id == productID {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// DiscountKind distinguishes percentage from fixed-amount coupon values.
type DiscountKind string

const (
	// DiscountPercentage interprets the coupon value as a percent of the
	// eligible amount.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixedValue interprets the coupon value as a fixed amount in
	// minor currency units.
	DiscountFixedValue DiscountKind = "fixed_value"
)

// ProgressiveTier is a minimum-quantity threshold paired with a percent off.
// The highest qualifying tier wins.
type ProgressiveTier struct {
	MinItems        int
	DiscountPercent float64
}

// PromotionRule is the closed set of promotion behaviours a store can
// configure. Each variant carries only the fields that exist for it, so a
// calculator can never read a field that does not apply.
type PromotionRule interface {
	isPromotionRule()
}

// FreeShipping waives the shipping charge once the subtotal reaches the
// optional threshold. It never produces a monetary discount.
type FreeShipping struct {
	MinSubtotal *int64
}

// CouponDiscount is a code-activated discount. It is never applied
// automatically; only an exact code match scoped to the owning store
// activates it.
type CouponDiscount struct {
	Code                    string
	Kind                    DiscountKind
	Percent                 float64
	Amount                  int64
	MaxDiscountValue        *int64
	MinPurchaseValue        *int64
	GrantsFreeShipping      bool
	FreeShippingMinSubtotal *int64
}

// BuyXPayY grants free units or tiered percent discounts based on the
// eligible quantity. Exactly one of the legacy pair or the tier list is
// populated.
type BuyXPayY struct {
	BuyQuantity      int
	PayQuantity      int
	ProgressiveTiers []ProgressiveTier
}

// PercentageDiscount is an automatic percent-off over the eligible value,
// optionally capped.
type PercentageDiscount struct {
	Percent          float64
	MaxDiscountValue *int64
}

// FixedValueDiscount is an automatic fixed amount applied per distinct
// eligible line.
type FixedValueDiscount struct {
	Amount int64
}

func (FreeShipping) isPromotionRule()       {}
func (CouponDiscount) isPromotionRule()     {}
func (BuyXPayY) isPromotionRule()           {}
func (PercentageDiscount) isPromotionRule() {}
func (FixedValueDiscount) isPromotionRule() {}

// Promotion is a store-configured discount rule. Promotions are read-only
// inputs to a pricing evaluation; the engine never mutates them.
type Promotion struct {
	ID          string
	StoreID     string
	Name        string
	Description string
	IsActive    bool
	Scope       PromotionScope
	StartsAt    *time.Time
	EndsAt      *time.Time
	MaxUses     *int
	UsesCount   int
	Rule        PromotionRule
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AvailableAt reports whether the promotion can be honoured at the given
// instant: active, inside its window, and not exhausted.
func (p Promotion) AvailableAt(now time.Time) bool {
	if !p.IsActive || p.Rule == nil {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	if p.MaxUses != nil && *p.MaxUses > 0 && p.UsesCount >= *p.MaxUses {
		return false
	}
	return true
}

// CouponRule returns the coupon variant when the promotion is code-activated.
func (p Promotion) CouponRule() (CouponDiscount, bool) {
	rule, ok := p.Rule.(CouponDiscount)
	return rule, ok
}

// CouponCode returns the normalised activation code, empty for automatic
// promotions.
func (p Promotion) CouponCode() string {
	rule, ok := p.CouponRule()
	if !ok {
		return ""
	}
	return NormalizeCouponCode(rule.Code)
}

// IsCoupon reports whether the promotion requires a code to activate.
func (p Promotion) IsCoupon() bool {
	_, ok := p.CouponRule()
	return ok
}

// NormalizeCouponCode uppercases and trims a submitted coupon code so lookups
// and comparisons are exact-match.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
