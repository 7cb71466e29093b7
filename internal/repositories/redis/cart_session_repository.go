package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "github.com/vitrinehub/api/internal/domain"
	"github.com/vitrinehub/api/internal/repositories"
)

const (
	cartKeyPrefix     = "cart"
	defaultSessionTTL = 7 * 24 * time.Hour
)

// CartSessionRepository persists session cart state as JSON values in Redis.
// Each cart lives under cart:{storeID}:{sessionID} and expires with the
// session TTL; an expired key simply reads back as an empty cart.
type CartSessionRepository struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// CartSessionRepositoryConfig configures the Redis cart session repository.
type CartSessionRepositoryConfig struct {
	Client goredis.UniversalClient
	TTL    time.Duration
}

// NewCartSessionRepository constructs a Redis-backed cart session repository.
func NewCartSessionRepository(cfg CartSessionRepositoryConfig) (*CartSessionRepository, error) {
	if cfg.Client == nil {
		return nil, errors.New("cart session repository requires redis client")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &CartSessionRepository{
		client: cfg.Client,
		ttl:    ttl,
	}, nil
}

// GetState loads the session cart. Missing keys and unreadable payloads both
// surface as not-found so the session restarts with an empty cart.
func (r *CartSessionRepository) GetState(ctx context.Context, storeID, sessionID string) (domain.SessionCartState, error) {
	if r == nil || r.client == nil {
		return domain.SessionCartState{}, errors.New("cart session repository not initialised")
	}
	key, err := cartKey(storeID, sessionID)
	if err != nil {
		return domain.SessionCartState{}, err
	}

	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.SessionCartState{}, wrapError("cart_sessions.get", err)
	}

	var doc cartSessionDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return domain.SessionCartState{}, wrapError("cart_sessions.decode", goredis.Nil)
	}
	return doc.toDomain(storeID, sessionID), nil
}

// SaveState writes the cart state and refreshes the session TTL.
func (r *CartSessionRepository) SaveState(ctx context.Context, state domain.SessionCartState) error {
	if r == nil || r.client == nil {
		return errors.New("cart session repository not initialised")
	}
	key, err := cartKey(state.StoreID, state.SessionID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(newCartSessionDocument(state))
	if err != nil {
		return fmt.Errorf("cart session repository: encode state: %w", err)
	}
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return wrapError("cart_sessions.set", err)
	}
	return nil
}

// Clear removes the session cart entirely. Deleting an absent key is not an
// error.
func (r *CartSessionRepository) Clear(ctx context.Context, storeID, sessionID string) error {
	if r == nil || r.client == nil {
		return errors.New("cart session repository not initialised")
	}
	key, err := cartKey(storeID, sessionID)
	if err != nil {
		return err
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return wrapError("cart_sessions.del", err)
	}
	return nil
}

func cartKey(storeID, sessionID string) (string, error) {
	sid := strings.TrimSpace(storeID)
	sess := strings.TrimSpace(sessionID)
	if sid == "" || sess == "" {
		return "", errors.New("cart session repository: store id and session id are required")
	}
	return fmt.Sprintf("%s:%s:%s", cartKeyPrefix, sid, sess), nil
}

type cartSessionDocument struct {
	Lines     []cartLineDocument     `json:"lines"`
	Coupon    *appliedCouponDocument `json:"coupon,omitempty"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

type cartLineDocument struct {
	ProductID  string    `json:"productId"`
	VariantID  string    `json:"variantId,omitempty"`
	SKU        string    `json:"sku,omitempty"`
	Name       string    `json:"name,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	UnitPrice  int64     `json:"unitPrice"`
	Quantity   int       `json:"quantity"`
	StockLimit *int      `json:"stockLimit,omitempty"`
	AddedAt    time.Time `json:"addedAt"`
}

type appliedCouponDocument struct {
	Code      string            `json:"code"`
	Promotion promotionDocument `json:"promotion"`
	AppliedAt time.Time         `json:"appliedAt"`
}

type promotionDocument struct {
	ID          string        `json:"id"`
	StoreID     string        `json:"storeId"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	IsActive    bool          `json:"isActive"`
	ScopeKind   string        `json:"scopeKind"`
	ProductIDs  []string      `json:"productIds,omitempty"`
	CategoryIDs []string      `json:"categoryIds,omitempty"`
	StartsAt    *time.Time    `json:"startsAt,omitempty"`
	EndsAt      *time.Time    `json:"endsAt,omitempty"`
	MaxUses     *int          `json:"maxUses,omitempty"`
	UsesCount   int           `json:"usesCount"`
	Rule        *ruleDocument `json:"rule,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type ruleDocument struct {
	Type                    string         `json:"type"`
	Code                    string         `json:"code,omitempty"`
	DiscountKind            string         `json:"discountKind,omitempty"`
	Percent                 float64        `json:"percent,omitempty"`
	Amount                  int64          `json:"amount,omitempty"`
	MaxDiscountValue        *int64         `json:"maxDiscountValue,omitempty"`
	MinPurchaseValue        *int64         `json:"minPurchaseValue,omitempty"`
	MinSubtotal             *int64         `json:"minSubtotal,omitempty"`
	GrantsFreeShipping      bool           `json:"grantsFreeShipping,omitempty"`
	FreeShippingMinSubtotal *int64         `json:"freeShippingMinSubtotal,omitempty"`
	BuyQuantity             int            `json:"buyQuantity,omitempty"`
	PayQuantity             int            `json:"payQuantity,omitempty"`
	ProgressiveTiers        []tierDocument `json:"progressiveTiers,omitempty"`
}

type tierDocument struct {
	MinItems        int     `json:"minItems"`
	DiscountPercent float64 `json:"discountPercent"`
}

const (
	ruleTypeFreeShipping = "free_shipping"
	ruleTypeCoupon       = "coupon"
	ruleTypeBuyXPayY     = "buy_x_pay_y"
	ruleTypePercentage   = "percentage"
	ruleTypeFixedValue   = "fixed_value"
)

func newCartSessionDocument(state domain.SessionCartState) cartSessionDocument {
	doc := cartSessionDocument{
		Lines:     make([]cartLineDocument, 0, len(state.Lines)),
		UpdatedAt: state.UpdatedAt.UTC(),
	}
	for _, line := range state.Lines {
		doc.Lines = append(doc.Lines, cartLineDocument{
			ProductID:  line.ProductID,
			VariantID:  line.VariantID,
			SKU:        line.SKU,
			Name:       line.Name,
			ImageURL:   line.ImageURL,
			UnitPrice:  line.UnitPrice,
			Quantity:   line.Quantity,
			StockLimit: line.StockLimit,
			AddedAt:    line.AddedAt.UTC(),
		})
	}
	if state.Coupon != nil {
		doc.Coupon = &appliedCouponDocument{
			Code:      state.Coupon.Code,
			Promotion: newPromotionDocument(state.Coupon.Promotion),
			AppliedAt: state.Coupon.AppliedAt.UTC(),
		}
	}
	return doc
}

func (doc cartSessionDocument) toDomain(storeID, sessionID string) domain.SessionCartState {
	state := domain.SessionCartState{
		StoreID:   strings.TrimSpace(storeID),
		SessionID: strings.TrimSpace(sessionID),
		Lines:     make([]domain.CartLine, 0, len(doc.Lines)),
		UpdatedAt: doc.UpdatedAt,
	}
	for _, line := range doc.Lines {
		state.Lines = append(state.Lines, domain.CartLine{
			ProductID:  line.ProductID,
			VariantID:  line.VariantID,
			SKU:        line.SKU,
			Name:       line.Name,
			ImageURL:   line.ImageURL,
			UnitPrice:  line.UnitPrice,
			Quantity:   line.Quantity,
			StockLimit: line.StockLimit,
			AddedAt:    line.AddedAt,
		})
	}
	if doc.Coupon != nil {
		state.Coupon = &domain.AppliedCoupon{
			Code:      doc.Coupon.Code,
			Promotion: doc.Coupon.Promotion.toDomain(),
			AppliedAt: doc.Coupon.AppliedAt,
		}
	}
	return state
}

func newPromotionDocument(promotion domain.Promotion) promotionDocument {
	doc := promotionDocument{
		ID:          promotion.ID,
		StoreID:     promotion.StoreID,
		Name:        promotion.Name,
		Description: promotion.Description,
		IsActive:    promotion.IsActive,
		ScopeKind:   string(promotion.Scope.Kind),
		ProductIDs:  append([]string(nil), promotion.Scope.ProductIDs...),
		CategoryIDs: append([]string(nil), promotion.Scope.CategoryIDs...),
		StartsAt:    promotion.StartsAt,
		EndsAt:      promotion.EndsAt,
		MaxUses:     promotion.MaxUses,
		UsesCount:   promotion.UsesCount,
		Rule:        newRuleDocument(promotion.Rule),
		CreatedAt:   promotion.CreatedAt.UTC(),
		UpdatedAt:   promotion.UpdatedAt.UTC(),
	}
	return doc
}

func (doc promotionDocument) toDomain() domain.Promotion {
	return domain.Promotion{
		ID:          doc.ID,
		StoreID:     doc.StoreID,
		Name:        doc.Name,
		Description: doc.Description,
		IsActive:    doc.IsActive,
		Scope: domain.PromotionScope{
			Kind:        domain.PromotionScopeKind(doc.ScopeKind),
			ProductIDs:  append([]string(nil), doc.ProductIDs...),
			CategoryIDs: append([]string(nil), doc.CategoryIDs...),
		},
		StartsAt:  doc.StartsAt,
		EndsAt:    doc.EndsAt,
		MaxUses:   doc.MaxUses,
		UsesCount: doc.UsesCount,
		Rule:      doc.Rule.toDomain(),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func newRuleDocument(rule domain.PromotionRule) *ruleDocument {
	switch r := rule.(type) {
	case domain.FreeShipping:
		return &ruleDocument{
			Type:        ruleTypeFreeShipping,
			MinSubtotal: r.MinSubtotal,
		}
	case domain.CouponDiscount:
		return &ruleDocument{
			Type:                    ruleTypeCoupon,
			Code:                    r.Code,
			DiscountKind:            string(r.Kind),
			Percent:                 r.Percent,
			Amount:                  r.Amount,
			MaxDiscountValue:        r.MaxDiscountValue,
			MinPurchaseValue:        r.MinPurchaseValue,
			GrantsFreeShipping:      r.GrantsFreeShipping,
			FreeShippingMinSubtotal: r.FreeShippingMinSubtotal,
		}
	case domain.BuyXPayY:
		doc := &ruleDocument{
			Type:        ruleTypeBuyXPayY,
			BuyQuantity: r.BuyQuantity,
			PayQuantity: r.PayQuantity,
		}
		for _, tier := range r.ProgressiveTiers {
			doc.ProgressiveTiers = append(doc.ProgressiveTiers, tierDocument{
				MinItems:        tier.MinItems,
				DiscountPercent: tier.DiscountPercent,
			})
		}
		return doc
	case domain.PercentageDiscount:
		return &ruleDocument{
			Type:             ruleTypePercentage,
			Percent:          r.Percent,
			MaxDiscountValue: r.MaxDiscountValue,
		}
	case domain.FixedValueDiscount:
		return &ruleDocument{
			Type:   ruleTypeFixedValue,
			Amount: r.Amount,
		}
	default:
		return nil
	}
}

func (doc *ruleDocument) toDomain() domain.PromotionRule {
	if doc == nil {
		return nil
	}
	switch doc.Type {
	case ruleTypeFreeShipping:
		return domain.FreeShipping{MinSubtotal: doc.MinSubtotal}
	case ruleTypeCoupon:
		return domain.CouponDiscount{
			Code:                    doc.Code,
			Kind:                    domain.DiscountKind(doc.DiscountKind),
			Percent:                 doc.Percent,
			Amount:                  doc.Amount,
			MaxDiscountValue:        doc.MaxDiscountValue,
			MinPurchaseValue:        doc.MinPurchaseValue,
			GrantsFreeShipping:      doc.GrantsFreeShipping,
			FreeShippingMinSubtotal: doc.FreeShippingMinSubtotal,
		}
	case ruleTypeBuyXPayY:
		rule := domain.BuyXPayY{
			BuyQuantity: doc.BuyQuantity,
			PayQuantity: doc.PayQuantity,
		}
		for _, tier := range doc.ProgressiveTiers {
			rule.ProgressiveTiers = append(rule.ProgressiveTiers, domain.ProgressiveTier{
				MinItems:        tier.MinItems,
				DiscountPercent: tier.DiscountPercent,
			})
		}
		return rule
	case ruleTypePercentage:
		return domain.PercentageDiscount{
			Percent:          doc.Percent,
			MaxDiscountValue: doc.MaxDiscountValue,
		}
	case ruleTypeFixedValue:
		return domain.FixedValueDiscount{Amount: doc.Amount}
	default:
		return nil
	}
}

var _ repositories.CartSessionRepository = (*CartSessionRepository)(nil)
