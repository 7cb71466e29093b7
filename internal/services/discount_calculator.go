package services

import (
	"math"
	"sort"

	domain "github.com/vitrinehub/api/internal/domain"
)

// DiscountCalculator turns an automatic promotion plus its eligible lines
// into a discount amount and a storefront description. It is a pure
// computation: it never consults repositories and never mutates its inputs.
type DiscountCalculator struct {
	msgs messageCatalog
}

// NewDiscountCalculator builds a calculator emitting descriptions for the
// given store locale.
func NewDiscountCalculator(locale string) DiscountCalculator {
	return DiscountCalculator{msgs: catalogForLocale(locale)}
}

// Automatic evaluates a non-coupon promotion against its eligible lines.
// The boolean is false when the promotion produces no discount: coupons,
// free-shipping rules, empty eligible sets, and unqualified thresholds are
// all silently omitted rather than surfaced as errors.
func (c DiscountCalculator) Automatic(promo domain.Promotion, eligible []domain.CartLine) (domain.AppliedPromotion, bool) {
	if len(eligible) == 0 {
		return domain.AppliedPromotion{}, false
	}

	var (
		discount    int64
		description string
	)

	switch rule := promo.Rule.(type) {
	case domain.BuyXPayY:
		discount, description = c.buyXPayY(rule, eligible)
	case domain.PercentageDiscount:
		discount = percentAmount(sumLineValue(eligible), rule.Percent)
		discount = capAmount(discount, rule.MaxDiscountValue)
		description = c.msgs.percentOff(formatPercent(rule.Percent))
	case domain.FixedValueDiscount:
		// A fixed amount per distinct eligible line, not per unit and not
		// once per cart. Observed storefront behaviour, kept as-is.
		if rule.Amount > 0 {
			discount = rule.Amount * int64(len(eligible))
		}
		description = c.msgs.fixedPerLine(formatAmount(rule.Amount))
	default:
		return domain.AppliedPromotion{}, false
	}

	if discount <= 0 {
		return domain.AppliedPromotion{}, false
	}

	return domain.AppliedPromotion{
		Promotion:        promo,
		DiscountValue:    discount,
		Description:      description,
		AffectedLineKeys: lineIdentityKeys(eligible),
	}, true
}

// CouponValue computes the discount an applied coupon yields against the
// current subtotal. The result is recomputed on every call and never exceeds
// the subtotal.
func (c DiscountCalculator) CouponValue(rule domain.CouponDiscount, subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}

	var discount int64
	switch rule.Kind {
	case domain.DiscountPercentage:
		discount = percentAmount(subtotal, rule.Percent)
	case domain.DiscountFixedValue:
		discount = rule.Amount
	default:
		return 0
	}

	discount = capAmount(discount, rule.MaxDiscountValue)
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

func (c DiscountCalculator) buyXPayY(rule domain.BuyXPayY, eligible []domain.CartLine) (int64, string) {
	totalQuantity := sumLineQuantity(eligible)
	eligibleValue := sumLineValue(eligible)
	if totalQuantity <= 0 || eligibleValue <= 0 {
		return 0, ""
	}

	if len(rule.ProgressiveTiers) > 0 {
		tiers := make([]domain.ProgressiveTier, len(rule.ProgressiveTiers))
		copy(tiers, rule.ProgressiveTiers)
		sort.SliceStable(tiers, func(i, j int) bool {
			return tiers[i].MinItems > tiers[j].MinItems
		})
		for _, tier := range tiers {
			if tier.MinItems > totalQuantity {
				continue
			}
			discount := percentAmount(eligibleValue, tier.DiscountPercent)
			return discount, c.msgs.progressiveTier(formatPercent(tier.DiscountPercent), tier.MinItems)
		}
		return 0, ""
	}

	if rule.BuyQuantity <= 0 || rule.PayQuantity < 0 || rule.PayQuantity >= rule.BuyQuantity {
		return 0, ""
	}
	if totalQuantity < rule.BuyQuantity {
		return 0, ""
	}

	timesApplied := totalQuantity / rule.BuyQuantity
	freeUnits := timesApplied * (rule.BuyQuantity - rule.PayQuantity)
	if freeUnits <= 0 {
		return 0, ""
	}

	// Average unit price method: the freed units are priced at
	// eligibleValue / totalQuantity.
	discount := eligibleValue * int64(freeUnits) / int64(totalQuantity)
	return discount, c.msgs.buyXPayY(rule.BuyQuantity, rule.PayQuantity)
}

func percentAmount(value int64, percent float64) int64 {
	if value <= 0 || percent <= 0 {
		return 0
	}
	discount := int64(math.Round(float64(value) * percent / 100))
	if discount < 0 {
		return 0
	}
	return discount
}

func capAmount(amount int64, cap *int64) int64 {
	if cap != nil && *cap > 0 && amount > *cap {
		return *cap
	}
	return amount
}
