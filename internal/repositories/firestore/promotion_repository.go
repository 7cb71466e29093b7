package firestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vitrinehub/api/internal/domain"
	pfirestore "github.com/vitrinehub/api/internal/platform/firestore"
	"github.com/vitrinehub/api/internal/repositories"
)

const promotionCollection = "promotions"

// PromotionRepository persists store promotions within Firestore. Promotions
// live in a single top-level collection keyed by promotion id with a storeId
// field, which keeps coupon code lookup a plain indexed query.
type PromotionRepository struct {
	base     *pfirestore.BaseRepository[promotionDocument]
	provider *pfirestore.Provider
}

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[promotionDocument](provider, promotionCollection, nil, nil)
	return &PromotionRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert writes a new promotion document.
func (r *PromotionRepository) Insert(ctx context.Context, promotion domain.Promotion) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	id := strings.TrimSpace(promotion.ID)
	if id == "" {
		return errors.New("promotion repository: promotion id is required")
	}
	_, err := r.base.Set(ctx, id, newPromotionDocument(promotion))
	return err
}

// Update replaces an existing promotion document after verifying ownership.
func (r *PromotionRepository) Update(ctx context.Context, promotion domain.Promotion) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	current, err := r.findOwned(ctx, promotion.StoreID, promotion.ID)
	if err != nil {
		return err
	}

	doc := newPromotionDocument(promotion)
	doc.CreatedAt = current.Data.CreatedAt
	doc.UsesCount = current.Data.UsesCount
	_, err = r.base.Set(ctx, strings.TrimSpace(promotion.ID), doc)
	return err
}

// Delete removes the promotion after verifying it belongs to the store.
func (r *PromotionRepository) Delete(ctx context.Context, storeID, promotionID string) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	if _, err := r.findOwned(ctx, storeID, promotionID); err != nil {
		return err
	}
	ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(promotionID))
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("promotions.delete", err)
	}
	return nil
}

// FindByID loads a promotion scoped to the store.
func (r *PromotionRepository) FindByID(ctx context.Context, storeID, promotionID string) (domain.Promotion, error) {
	doc, err := r.findOwned(ctx, storeID, promotionID)
	if err != nil {
		return domain.Promotion{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByCode resolves a coupon promotion by its normalised code across all
// stores. Callers verify store ownership before honouring the result.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	if r == nil || r.base == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	normalized := domain.NormalizeCouponCode(code)
	if normalized == "" {
		return domain.Promotion{}, notFoundError("promotions.find_by_code")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("couponCode", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Promotion{}, err
	}
	if len(docs) == 0 {
		return domain.Promotion{}, notFoundError("promotions.find_by_code")
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// ListActive returns every active promotion for the store. Window and usage
// gating happens at evaluation time, not here.
func (r *PromotionRepository) ListActive(ctx context.Context, storeID string) ([]domain.Promotion, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("promotion repository not initialised")
	}
	sid := strings.TrimSpace(storeID)
	if sid == "" {
		return nil, errors.New("promotion repository: store id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("storeId", "==", sid).Where("isActive", "==", true)
	})
	if err != nil {
		return nil, err
	}

	promotions := make([]domain.Promotion, 0, len(docs))
	for _, doc := range docs {
		promotions = append(promotions, doc.Data.toDomain(doc.ID))
	}
	return promotions, nil
}

// List returns a page of store promotions ordered by most recent update.
func (r *PromotionRepository) List(ctx context.Context, filter repositories.PromotionListFilter) (domain.CursorPage[domain.Promotion], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Promotion]{}, errors.New("promotion repository not initialised")
	}
	sid := strings.TrimSpace(filter.StoreID)
	if sid == "" {
		return domain.CursorPage[domain.Promotion]{}, errors.New("promotion repository: store id is required")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodePromotionListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Promotion]{}, fmt.Errorf("promotion repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("storeId", "==", sid)
		if filter.ActiveOnly {
			q = q.Where("isActive", "==", true)
		}
		q = q.OrderBy("updatedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Promotion]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.UpdatedAt
		if tokenTime.IsZero() {
			tokenTime = last.UpdateTime
		}
		nextToken = encodePromotionListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Promotion, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}

	return domain.CursorPage[domain.Promotion]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// IncrementUsage bumps the redemption counter. The counter is eventually
// consistent with checkout volume; availability checks read it as-is.
func (r *PromotionRepository) IncrementUsage(ctx context.Context, storeID, promotionID string, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	if _, err := r.findOwned(ctx, storeID, promotionID); err != nil {
		return err
	}
	_, err := r.base.Update(ctx, strings.TrimSpace(promotionID), []firestore.Update{
		{Path: "usesCount", Value: firestore.Increment(1)},
		{Path: "updatedAt", Value: now.UTC()},
	})
	return err
}

func (r *PromotionRepository) findOwned(ctx context.Context, storeID, promotionID string) (pfirestore.Document[promotionDocument], error) {
	sid := strings.TrimSpace(storeID)
	pid := strings.TrimSpace(promotionID)
	if sid == "" || pid == "" {
		return pfirestore.Document[promotionDocument]{}, errors.New("promotion repository: store id and promotion id are required")
	}
	doc, err := r.base.Get(ctx, pid)
	if err != nil {
		return pfirestore.Document[promotionDocument]{}, err
	}
	if doc.Data.StoreID != sid {
		return pfirestore.Document[promotionDocument]{}, notFoundError("promotions.get")
	}
	return doc, nil
}

func notFoundError(op string) error {
	return pfirestore.WrapError(op, status.Error(codes.NotFound, "document not found"))
}

func encodePromotionListToken(updatedAt time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", updatedAt.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodePromotionListToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

type promotionDocument struct {
	StoreID     string                `firestore:"storeId"`
	Name        string                `firestore:"name"`
	Description string                `firestore:"description,omitempty"`
	IsActive    bool                  `firestore:"isActive"`
	ScopeKind   string                `firestore:"scopeKind"`
	ProductIDs  []string              `firestore:"productIds,omitempty"`
	CategoryIDs []string              `firestore:"categoryIds,omitempty"`
	CouponCode  string                `firestore:"couponCode,omitempty"`
	StartsAt    *time.Time            `firestore:"startsAt,omitempty"`
	EndsAt      *time.Time            `firestore:"endsAt,omitempty"`
	MaxUses     *int                  `firestore:"maxUses,omitempty"`
	UsesCount   int                   `firestore:"usesCount"`
	Rule        promotionRuleDocument `firestore:"rule"`
	CreatedAt   time.Time             `firestore:"createdAt"`
	UpdatedAt   time.Time             `firestore:"updatedAt"`
}

type promotionRuleDocument struct {
	Type                    string  `firestore:"type"`
	Code                    string  `firestore:"code,omitempty"`
	DiscountKind            string  `firestore:"discountKind,omitempty"`
	Percent                 float64 `firestore:"percent,omitempty"`
	Amount                  int64   `firestore:"amount,omitempty"`
	MaxDiscountValue        *int64  `firestore:"maxDiscountValue,omitempty"`
	MinPurchaseValue        *int64  `firestore:"minPurchaseValue,omitempty"`
	MinSubtotal             *int64  `firestore:"minSubtotal,omitempty"`
	GrantsFreeShipping      bool    `firestore:"grantsFreeShipping,omitempty"`
	FreeShippingMinSubtotal *int64  `firestore:"freeShippingMinSubtotal,omitempty"`
	BuyQuantity             int     `firestore:"buyQuantity,omitempty"`
	PayQuantity             int     `firestore:"payQuantity,omitempty"`
	// Older documents stored tiers as a JSON string, newer ones as an array
	// of maps. Decoded defensively either way.
	ProgressiveTiers any `firestore:"progressiveTiers,omitempty"`
}

type progressiveTierPayload struct {
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

func newPromotionDocument(promotion domain.Promotion) promotionDocument {
	doc := promotionDocument{
		StoreID:     strings.TrimSpace(promotion.StoreID),
		Name:        promotion.Name,
		Description: promotion.Description,
		IsActive:    promotion.IsActive,
		ScopeKind:   string(promotion.Scope.Kind),
		ProductIDs:  append([]string(nil), promotion.Scope.ProductIDs...),
		CategoryIDs: append([]string(nil), promotion.Scope.CategoryIDs...),
		CouponCode:  promotion.CouponCode(),
		StartsAt:    promotion.StartsAt,
		EndsAt:      promotion.EndsAt,
		MaxUses:     promotion.MaxUses,
		UsesCount:   promotion.UsesCount,
		Rule:        newPromotionRuleDocument(promotion.Rule),
		CreatedAt:   promotion.CreatedAt.UTC(),
		UpdatedAt:   promotion.UpdatedAt.UTC(),
	}
	return doc
}

func newPromotionRuleDocument(rule domain.PromotionRule) promotionRuleDocument {
	switch r := rule.(type) {
	case domain.FreeShipping:
		return promotionRuleDocument{
			Type:        ruleTypeFreeShipping,
			MinSubtotal: r.MinSubtotal,
		}
	case domain.CouponDiscount:
		return promotionRuleDocument{
			Type:                    ruleTypeCoupon,
			Code:                    domain.NormalizeCouponCode(r.Code),
			DiscountKind:            string(r.Kind),
			Percent:                 r.Percent,
			Amount:                  r.Amount,
			MaxDiscountValue:        r.MaxDiscountValue,
			MinPurchaseValue:        r.MinPurchaseValue,
			GrantsFreeShipping:      r.GrantsFreeShipping,
			FreeShippingMinSubtotal: r.FreeShippingMinSubtotal,
		}
	case domain.BuyXPayY:
		tiers := make([]map[string]any, 0, len(r.ProgressiveTiers))
		for _, tier := range r.ProgressiveTiers {
			tiers = append(tiers, map[string]any{
				"minItems":        tier.MinItems,
				"discountPercent": tier.DiscountPercent,
			})
		}
		doc := promotionRuleDocument{
			Type:        ruleTypeBuyXPayY,
			BuyQuantity: r.BuyQuantity,
			PayQuantity: r.PayQuantity,
		}
		if len(tiers) > 0 {
			doc.ProgressiveTiers = tiers
		}
		return doc
	case domain.PercentageDiscount:
		return promotionRuleDocument{
			Type:             ruleTypePercentage,
			Percent:          r.Percent,
			MaxDiscountValue: r.MaxDiscountValue,
		}
	case domain.FixedValueDiscount:
		return promotionRuleDocument{
			Type:   ruleTypeFixedValue,
			Amount: r.Amount,
		}
	default:
		return promotionRuleDocument{}
	}
}

func (doc promotionDocument) toDomain(id string) domain.Promotion {
	return domain.Promotion{
		ID:          id,
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

func (doc promotionRuleDocument) toDomain() domain.PromotionRule {
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
		return domain.BuyXPayY{
			BuyQuantity:      doc.BuyQuantity,
			PayQuantity:      doc.PayQuantity,
			ProgressiveTiers: decodeProgressiveTiers(doc.ProgressiveTiers),
		}
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

// decodeProgressiveTiers tolerates both storage shapes for tier lists and
// answers an empty set for anything unreadable. A promotion with broken tiers
// simply stops discounting instead of breaking pricing.
func decodeProgressiveTiers(raw any) []domain.ProgressiveTier {
	switch value := raw.(type) {
	case nil:
		return nil
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return nil
		}
		var payload []progressiveTierPayload
		if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
			return nil
		}
		tiers := make([]domain.ProgressiveTier, 0, len(payload))
		for _, tier := range payload {
			if tier.MinItems <= 0 {
				continue
			}
			tiers = append(tiers, domain.ProgressiveTier{
				MinItems:        tier.MinItems,
				DiscountPercent: tier.DiscountPercent,
			})
		}
		return tiers
	case []any:
		tiers := make([]domain.ProgressiveTier, 0, len(value))
		for _, entry := range value {
			fields, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			minItems := intField(fields, "minItems")
			if minItems <= 0 {
				continue
			}
			tiers = append(tiers, domain.ProgressiveTier{
				MinItems:        minItems,
				DiscountPercent: floatField(fields, "discountPercent"),
			})
		}
		return tiers
	default:
		return nil
	}
}

func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatField(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)
