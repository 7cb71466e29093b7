package services

import (
	"context"
	"time"

	domain "github.com/vitrinehub/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination        = domain.Pagination
	SortOrder         = domain.SortOrder
	Store             = domain.Store
	CartLine          = domain.CartLine
	SessionCartState  = domain.SessionCartState
	Promotion         = domain.Promotion
	PromotionScope    = domain.PromotionScope
	PromotionRule     = domain.PromotionRule
	AppliedCoupon     = domain.AppliedCoupon
	AppliedPromotion  = domain.AppliedPromotion
	PricingSnapshot   = domain.PricingSnapshot
	CouponApplyResult = domain.CouponApplyResult
)

// CartView bundles the persisted session state with the snapshot derived
// from it. Every cart mutation returns a fresh view so callers never observe
// a stale total.
type CartView struct {
	State    SessionCartState
	Snapshot PricingSnapshot
}

// CartService manages session cart state: line merging, quantity clamping,
// coupon activation, and the derived pricing snapshot.
type CartService interface {
	GetCart(ctx context.Context, storeID, sessionID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemQuantityCommand) (CartView, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error)
	ClearCart(ctx context.Context, storeID, sessionID string) error
	ApplyCoupon(ctx context.Context, cmd ApplyCouponCommand) (CouponApplyResult, CartView, error)
	RemoveCoupon(ctx context.Context, storeID, sessionID string) (CartView, error)
}

// PromotionService exposes the store promotion catalog to the pricing flow
// and the storefront.
type PromotionService interface {
	ListActivePromotions(ctx context.Context, storeID string) ([]Promotion, error)
	ListPromotions(ctx context.Context, filter PromotionListFilter) (domain.CursorPage[Promotion], error)
	ResolveCoupon(ctx context.Context, code string) (Promotion, error)
	GetProductPromotion(ctx context.Context, storeID, productID string) (Promotion, error)
	CreatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	UpdatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	DeletePromotion(ctx context.Context, storeID, promotionID string) error
	RecordRedemption(ctx context.Context, storeID, promotionID string) error
}

// StoreService resolves tenant records for request scoping.
type StoreService interface {
	GetStore(ctx context.Context, storeID string) (Store, error)
}

// CheckoutService turns a priced cart into a PSP checkout session.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSessionResult, error)
}

// SystemService aggregates dependency health for readiness reporting.
type SystemService interface {
	Health(ctx context.Context) (domain.SystemHealthReport, error)
}

// CouponRedemptionMessage is the payload published when a checkout completes
// with a coupon attached. Usage counting downstream is eventually consistent.
type CouponRedemptionMessage struct {
	StoreID           string `json:"storeId"`
	SessionID         string `json:"sessionId"`
	PromotionID       string `json:"promotionId"`
	Code              string `json:"code"`
	Discount          int64  `json:"discount"`
	CheckoutSessionID string `json:"checkoutSessionId"`
	OccurredAt        string `json:"occurredAt"`
	IdempotencyKey    string `json:"idempotencyKey,omitempty"`
}

// CouponRedemptionPublisher accepts coupon redemption notifications for
// downstream usage counting.
type CouponRedemptionPublisher interface {
	PublishCouponRedemption(ctx context.Context, message CouponRedemptionMessage) (string, error)
}

// AddCartItemCommand adds a line (or merges into an existing one) for a
// store session. UnitPrice is the caller-supplied snapshot in minor units.
type AddCartItemCommand struct {
	StoreID    string
	SessionID  string
	ProductID  string
	VariantID  string
	SKU        string
	Name       string
	ImageURL   string
	UnitPrice  int64
	Quantity   int
	StockLimit *int
}

// UpdateCartItemQuantityCommand sets an absolute quantity on a matched line.
type UpdateCartItemQuantityCommand struct {
	StoreID   string
	SessionID string
	ProductID string
	VariantID string
	Quantity  int
}

// RemoveCartItemCommand removes the line matching product plus optional
// variant.
type RemoveCartItemCommand struct {
	StoreID   string
	SessionID string
	ProductID string
	VariantID string
}

// ApplyCouponCommand submits a coupon code for the session cart.
type ApplyCouponCommand struct {
	StoreID   string
	SessionID string
	Code      string
}

// PromotionListFilter scopes promotion listings.
type PromotionListFilter struct {
	StoreID    string
	ActiveOnly bool
	Pagination Pagination
}

// UpsertPromotionCommand carries the admin-facing promotion payload.
type UpsertPromotionCommand struct {
	PromotionID string
	StoreID     string
	Name        string
	Description string
	IsActive    bool
	Scope       PromotionScope
	StartsAt    *time.Time
	EndsAt      *time.Time
	MaxUses     *int
	Rule        PromotionRule
}

// CreateCheckoutSessionCommand requests a PSP checkout session for the
// current cart. The amount charged is always recomputed server-side.
type CreateCheckoutSessionCommand struct {
	StoreID        string
	SessionID      string
	SuccessURL     string
	CancelURL      string
	CustomerEmail  string
	IdempotencyKey string
}

// CheckoutSessionResult is the PSP session handed back to the storefront.
type CheckoutSessionResult struct {
	SessionID   string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
	Snapshot    PricingSnapshot
}
