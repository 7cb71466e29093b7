package domain

// AppliedPromotion is one automatically-qualifying promotion in a pricing
// evaluation, with the discount it produced and the lines it touched.
type AppliedPromotion struct {
	Promotion        Promotion
	DiscountValue    int64
	Description      string
	AffectedLineKeys []string
}

// PricingSnapshot is the derived result of a full pricing run. It is
// recomputed on demand and never stored; FinalTotal is clamped so it can
// never go negative.
type PricingSnapshot struct {
	Currency          string
	Subtotal          int64
	AutomaticDiscount int64
	CouponDiscount    int64
	TotalDiscount     int64
	FinalTotal        int64
	FreeShipping      bool
	AppliedPromotions []AppliedPromotion
	CouponCode        string
}

// CouponApplyResult is the typed outcome of attempting to activate a coupon.
// Failures are data, not errors: the pricing flow never raises for an
// invalid code.
type CouponApplyResult struct {
	Success  bool
	Message  string
	Discount int64
}
