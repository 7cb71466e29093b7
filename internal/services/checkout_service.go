package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vitrinehub/api/internal/payments"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutCartNotReady indicates the cart is empty or has no payable total.
	ErrCheckoutCartNotReady = errors.New("checkout: cart not ready")
	// ErrCheckoutPaymentFailed indicates the PSP session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// checkoutSessionManager abstracts payments.Manager for easier testing.
type checkoutSessionManager interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// redemptionRecorder is the usage-count slice of the promotion service.
type redemptionRecorder interface {
	RecordRedemption(ctx context.Context, storeID, promotionID string) error
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts      CartService
	Stores     StoreService
	Promotions redemptionRecorder
	Payments   checkoutSessionManager
	Events     CouponRedemptionPublisher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts      CartService
	stores     StoreService
	promotions redemptionRecorder
	payments   checkoutSessionManager
	events     CouponRedemptionPublisher
	now        func() time.Time
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart service is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("checkout service: store service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:      deps.Carts,
		stores:     deps.Stores,
		promotions: deps.Promotions,
		payments:   deps.Payments,
		events:     deps.Events,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// CreateCheckoutSession recomputes the cart snapshot, creates a PSP session
// for the final total, records the coupon redemption, and clears the cart.
// The amount charged is always the server-side snapshot, never a
// client-sent total.
func (s *checkoutService) CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSessionResult, error) {
	successURL := strings.TrimSpace(cmd.SuccessURL)
	cancelURL := strings.TrimSpace(cmd.CancelURL)
	if successURL == "" || cancelURL == "" {
		return CheckoutSessionResult{}, ErrCheckoutInvalidInput
	}

	store, err := s.stores.GetStore(ctx, cmd.StoreID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) || errors.Is(err, ErrStoreInvalidInput) {
			return CheckoutSessionResult{}, ErrCheckoutInvalidInput
		}
		return CheckoutSessionResult{}, ErrCheckoutUnavailable
	}

	view, err := s.carts.GetCart(ctx, store.ID, cmd.SessionID)
	if err != nil {
		if errors.Is(err, ErrCartInvalidInput) {
			return CheckoutSessionResult{}, ErrCheckoutInvalidInput
		}
		return CheckoutSessionResult{}, ErrCheckoutUnavailable
	}

	snapshot := view.Snapshot
	if view.State.IsEmpty() || snapshot.FinalTotal <= 0 {
		return CheckoutSessionResult{}, ErrCheckoutCartNotReady
	}

	idempotencyKey := s.checkoutIdempotencyKey(cmd, view.State, snapshot)

	req := payments.CheckoutSessionRequest{
		Amount:         snapshot.FinalTotal,
		Currency:       snapshot.Currency,
		CustomerEmail:  strings.TrimSpace(cmd.CustomerEmail),
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
		Locale:         strings.TrimSpace(store.Locale),
		Metadata:       buildPaymentMetadata(store, view.State, snapshot, idempotencyKey),
		IdempotencyKey: idempotencyKey,
		Items:          buildCheckoutLineItems(store, view.State, snapshot),
		AllowPromotion: false,
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{Currency: snapshot.Currency}, req)
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return CheckoutSessionResult{}, ErrCheckoutInvalidInput
		}
		s.logger(ctx, "checkout.payment_session_failed", map[string]any{
			"storeId":   store.ID,
			"sessionId": view.State.SessionID,
			"error":     err.Error(),
		})
		return CheckoutSessionResult{}, ErrCheckoutPaymentFailed
	}

	s.recordCouponRedemption(ctx, store, view.State, snapshot, session.ID, idempotencyKey)

	if err := s.carts.ClearCart(ctx, store.ID, view.State.SessionID); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"storeId":   store.ID,
			"sessionId": view.State.SessionID,
			"error":     err.Error(),
		})
	}

	return CheckoutSessionResult{
		SessionID:   session.ID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt.UTC(),
		Snapshot:    snapshot,
	}, nil
}

// recordCouponRedemption publishes the redemption event and bumps the usage
// counter. Both are best effort: a failure is logged, never surfaced to the
// buyer who already has a payment session.
func (s *checkoutService) recordCouponRedemption(ctx context.Context, store Store, state SessionCartState, snapshot PricingSnapshot, checkoutSessionID, idempotencyKey string) {
	if state.Coupon == nil {
		return
	}

	if s.events != nil {
		message := CouponRedemptionMessage{
			StoreID:           store.ID,
			SessionID:         state.SessionID,
			PromotionID:       state.Coupon.Promotion.ID,
			Code:              state.Coupon.Code,
			Discount:          snapshot.CouponDiscount,
			CheckoutSessionID: checkoutSessionID,
			OccurredAt:        s.now().Format(time.RFC3339),
			IdempotencyKey:    idempotencyKey,
		}
		if _, err := s.events.PublishCouponRedemption(ctx, message); err != nil {
			s.logger(ctx, "checkout.redemption_publish_failed", map[string]any{
				"storeId":     store.ID,
				"promotionId": state.Coupon.Promotion.ID,
				"error":       err.Error(),
			})
		}
	}

	if s.promotions != nil {
		if err := s.promotions.RecordRedemption(ctx, store.ID, state.Coupon.Promotion.ID); err != nil {
			s.logger(ctx, "checkout.usage_increment_failed", map[string]any{
				"storeId":     store.ID,
				"promotionId": state.Coupon.Promotion.ID,
				"error":       err.Error(),
			})
		}
	}
}

func (s *checkoutService) checkoutIdempotencyKey(cmd CreateCheckoutSessionCommand, state SessionCartState, snapshot PricingSnapshot) string {
	if key := strings.TrimSpace(cmd.IdempotencyKey); key != "" {
		return key
	}
	base := fmt.Sprintf("%s|%s|%s|%d", state.StoreID, state.SessionID, state.UpdatedAt.UTC().Format(time.RFC3339Nano), snapshot.FinalTotal)
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// buildCheckoutLineItems returns per-line PSP items when they add up to the
// charged amount, otherwise a single order line carrying the discounted
// total so the PSP charge always matches the snapshot.
func buildCheckoutLineItems(store Store, state SessionCartState, snapshot PricingSnapshot) []payments.CheckoutLineItem {
	currency := snapshot.Currency
	items := make([]payments.CheckoutLineItem, 0, len(state.Lines))
	var itemTotal int64
	for _, line := range state.Lines {
		if line.Quantity <= 0 || line.UnitPrice <= 0 {
			continue
		}
		name := strings.TrimSpace(line.Name)
		if name == "" {
			name = firstNonEmpty(line.SKU, line.ProductID, "Item")
		}
		items = append(items, payments.CheckoutLineItem{
			Name:     name,
			SKU:      strings.TrimSpace(line.SKU),
			Quantity: int64(line.Quantity),
			Amount:   line.UnitPrice,
			Currency: currency,
		})
		itemTotal += line.LineTotal()
	}

	if len(items) > 0 && itemTotal == snapshot.FinalTotal {
		return items
	}
	return []payments.CheckoutLineItem{
		{
			Name:        fmt.Sprintf("Pedido %s", firstNonEmpty(store.Name, store.Slug, store.ID)),
			Description: orderDescription(state, snapshot),
			Quantity:    1,
			Amount:      snapshot.FinalTotal,
			Currency:    currency,
		},
	}
}

// orderDescription lists the applied promotions and coupon for the payment
// provider's audit trail.
func orderDescription(state SessionCartState, snapshot PricingSnapshot) string {
	parts := make([]string, 0, len(snapshot.AppliedPromotions)+1)
	for _, applied := range snapshot.AppliedPromotions {
		parts = append(parts, fmt.Sprintf("%s (-%s)", applied.Promotion.Name, formatAmount(applied.DiscountValue)))
	}
	if state.Coupon != nil && snapshot.CouponDiscount > 0 {
		parts = append(parts, fmt.Sprintf("Cupom %s (-%s)", state.Coupon.Code, formatAmount(snapshot.CouponDiscount)))
	}
	return strings.Join(parts, "; ")
}

func buildPaymentMetadata(store Store, state SessionCartState, snapshot PricingSnapshot, idempotencyKey string) map[string]string {
	meta := map[string]string{
		"store_id":           store.ID,
		"cart_session_id":    state.SessionID,
		"subtotal":           fmt.Sprintf("%d", snapshot.Subtotal),
		"automatic_discount": fmt.Sprintf("%d", snapshot.AutomaticDiscount),
		"coupon_discount":    fmt.Sprintf("%d", snapshot.CouponDiscount),
		"free_shipping":      fmt.Sprintf("%t", snapshot.FreeShipping),
		"idempotencyKey":     idempotencyKey,
	}
	if state.Coupon != nil {
		meta["coupon_code"] = state.Coupon.Code
	}
	if len(snapshot.AppliedPromotions) > 0 {
		ids := make([]string, 0, len(snapshot.AppliedPromotions))
		for _, applied := range snapshot.AppliedPromotions {
			ids = append(ids, applied.Promotion.ID)
		}
		meta["promotion_ids"] = strings.Join(ids, ",")
	}
	return meta
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
