package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/vitrinehub/api/internal/domain"
	"github.com/vitrinehub/api/internal/platform/httpx"
	"github.com/vitrinehub/api/internal/platform/pagination"
	"github.com/vitrinehub/api/internal/services"
)

const maxPromotionBodySize = 32 * 1024

// Rule type discriminators accepted on the admin surface.
const (
	ruleTypeFreeShipping = "free_shipping"
	ruleTypeCoupon       = "coupon"
	ruleTypeBuyXPayY     = "buy_x_pay_y"
	ruleTypePercentage   = "percentage"
	ruleTypeFixedValue   = "fixed_value"
)

// PromotionHandlers exposes the promotion catalog endpoints for one store.
type PromotionHandlers struct {
	promotions services.PromotionService
	sanitizer  *bluemonday.Policy
}

// NewPromotionHandlers constructs handlers delegating to the promotion service.
func NewPromotionHandlers(promotions services.PromotionService) *PromotionHandlers {
	return &PromotionHandlers{
		promotions: promotions,
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

// Routes wires the promotion endpoints onto the store-scoped router.
func (h *PromotionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/promotions", h.listPromotions)
	r.Post("/promotions", h.createPromotion)
	r.Patch("/promotions/{promotionID}", h.updatePromotion)
	r.Delete("/promotions/{promotionID}", h.deletePromotion)
	r.Get("/products/{productID}/promotion", h.getProductPromotion)
}

func (h *PromotionHandlers) listPromotions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.storeScope(ctx, w, r)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: 20,
		MaxPageSize:     100,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	activeOnly := !strings.EqualFold(r.URL.Query().Get("active"), "false")

	page, err := h.promotions.ListPromotions(ctx, services.PromotionListFilter{
		StoreID:    storeID,
		ActiveOnly: activeOnly,
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	})
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}

	items := make([]promotionPayload, 0, len(page.Items))
	for _, promo := range page.Items {
		items = append(items, h.buildPromotionPayload(promo))
	}
	writeJSONResponse(w, http.StatusOK, promotionListResponse{
		Promotions:    items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *PromotionHandlers) createPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.storeScope(ctx, w, r)
	if !ok {
		return
	}

	cmd, ok := h.decodeUpsert(ctx, w, r, storeID, "")
	if !ok {
		return
	}

	promo, err := h.promotions.CreatePromotion(ctx, cmd)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, promotionResponse{Promotion: h.buildPromotionPayload(promo)})
}

func (h *PromotionHandlers) updatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.storeScope(ctx, w, r)
	if !ok {
		return
	}

	cmd, ok := h.decodeUpsert(ctx, w, r, storeID, chi.URLParam(r, "promotionID"))
	if !ok {
		return
	}

	promo, err := h.promotions.UpdatePromotion(ctx, cmd)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionResponse{Promotion: h.buildPromotionPayload(promo)})
}

func (h *PromotionHandlers) deletePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.storeScope(ctx, w, r)
	if !ok {
		return
	}

	if err := h.promotions.DeletePromotion(ctx, storeID, chi.URLParam(r, "promotionID")); err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PromotionHandlers) getProductPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.storeScope(ctx, w, r)
	if !ok {
		return
	}

	promo, err := h.promotions.GetProductPromotion(ctx, storeID, chi.URLParam(r, "productID"))
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionResponse{Promotion: h.buildPromotionPayload(promo)})
}

func (h *PromotionHandlers) storeScope(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotion_service_unavailable", "promotion service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	storeID := strings.TrimSpace(chi.URLParam(r, "storeID"))
	if storeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "store identifier is required", http.StatusBadRequest))
		return "", false
	}
	return storeID, true
}

func (h *PromotionHandlers) decodeUpsert(ctx context.Context, w http.ResponseWriter, r *http.Request, storeID, promotionID string) (services.UpsertPromotionCommand, bool) {
	var req upsertPromotionRequest
	if !decodeJSONBody(ctx, w, r, maxPromotionBodySize, &req) {
		return services.UpsertPromotionCommand{}, false
	}

	rule, err := ruleFromPayload(req.Rule)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return services.UpsertPromotionCommand{}, false
	}

	cmd := services.UpsertPromotionCommand{
		PromotionID: promotionID,
		StoreID:     storeID,
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
		Scope:       scopeFromPayload(req.AppliesTo),
		MaxUses:     req.MaxUses,
		Rule:        rule,
	}

	if ts := strings.TrimSpace(req.StartsAt); ts != "" {
		parsed, err := parseRFC3339(ts)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "starts_at must be an RFC3339 timestamp", http.StatusBadRequest))
			return services.UpsertPromotionCommand{}, false
		}
		cmd.StartsAt = &parsed
	}
	if ts := strings.TrimSpace(req.EndsAt); ts != "" {
		parsed, err := parseRFC3339(ts)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "ends_at must be an RFC3339 timestamp", http.StatusBadRequest))
			return services.UpsertPromotionCommand{}, false
		}
		cmd.EndsAt = &parsed
	}

	return cmd, true
}

func writePromotionError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPromotionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPromotionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_not_found", "promotion not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromotionConflict):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_conflict", "promotion was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrPromotionUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_service_unavailable", "promotion service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("promotion_error", "failed to process promotion request", http.StatusInternalServerError))
	}
}

type promotionListResponse struct {
	Promotions    []promotionPayload `json:"promotions"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type promotionResponse struct {
	Promotion promotionPayload `json:"promotion"`
}

type upsertPromotionRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	IsActive    bool                  `json:"is_active"`
	AppliesTo   promotionScopePayload `json:"applies_to"`
	StartsAt    string                `json:"starts_at"`
	EndsAt      string                `json:"ends_at"`
	MaxUses     *int                  `json:"max_uses"`
	Rule        promotionRulePayload  `json:"rule"`
}

type promotionPayload struct {
	ID          string                `json:"id"`
	StoreID     string                `json:"store_id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	IsActive    bool                  `json:"is_active"`
	AppliesTo   promotionScopePayload `json:"applies_to"`
	StartsAt    string                `json:"starts_at,omitempty"`
	EndsAt      string                `json:"ends_at,omitempty"`
	MaxUses     *int                  `json:"max_uses,omitempty"`
	UsesCount   int                   `json:"uses_count"`
	Rule        promotionRulePayload  `json:"rule"`
	CreatedAt   string                `json:"created_at,omitempty"`
	UpdatedAt   string                `json:"updated_at,omitempty"`
}

type promotionScopePayload struct {
	Kind        string   `json:"kind"`
	ProductIDs  []string `json:"product_ids,omitempty"`
	CategoryIDs []string `json:"category_ids,omitempty"`
}

type promotionRulePayload struct {
	Type                    string                   `json:"type"`
	MinSubtotal             *int64                   `json:"min_subtotal,omitempty"`
	Code                    string                   `json:"code,omitempty"`
	Kind                    string                   `json:"kind,omitempty"`
	Percent                 float64                  `json:"percent,omitempty"`
	Amount                  int64                    `json:"amount,omitempty"`
	MaxDiscountValue        *int64                   `json:"max_discount_value,omitempty"`
	MinPurchaseValue        *int64                   `json:"min_purchase_value,omitempty"`
	GrantsFreeShipping      bool                     `json:"grants_free_shipping,omitempty"`
	FreeShippingMinSubtotal *int64                   `json:"free_shipping_min_subtotal,omitempty"`
	BuyQuantity             int                      `json:"buy_quantity,omitempty"`
	PayQuantity             int                      `json:"pay_quantity,omitempty"`
	ProgressiveTiers        []progressiveTierPayload `json:"progressive_tiers,omitempty"`
}

type progressiveTierPayload struct {
	MinItems        int     `json:"min_items"`
	DiscountPercent float64 `json:"discount_percent"`
}

func scopeFromPayload(payload promotionScopePayload) services.PromotionScope {
	return services.PromotionScope{
		Kind:        domain.PromotionScopeKind(strings.TrimSpace(payload.Kind)),
		ProductIDs:  payload.ProductIDs,
		CategoryIDs: payload.CategoryIDs,
	}
}

func scopeToPayload(scope services.PromotionScope) promotionScopePayload {
	return promotionScopePayload{
		Kind:        string(scope.Kind),
		ProductIDs:  scope.ProductIDs,
		CategoryIDs: scope.CategoryIDs,
	}
}

func ruleFromPayload(payload promotionRulePayload) (services.PromotionRule, error) {
	switch strings.TrimSpace(payload.Type) {
	case ruleTypeFreeShipping:
		return domain.FreeShipping{MinSubtotal: payload.MinSubtotal}, nil
	case ruleTypeCoupon:
		return domain.CouponDiscount{
			Code:                    payload.Code,
			Kind:                    domain.DiscountKind(strings.TrimSpace(payload.Kind)),
			Percent:                 payload.Percent,
			Amount:                  payload.Amount,
			MaxDiscountValue:        payload.MaxDiscountValue,
			MinPurchaseValue:        payload.MinPurchaseValue,
			GrantsFreeShipping:      payload.GrantsFreeShipping,
			FreeShippingMinSubtotal: payload.FreeShippingMinSubtotal,
		}, nil
	case ruleTypeBuyXPayY:
		tiers := make([]domain.ProgressiveTier, 0, len(payload.ProgressiveTiers))
		for _, tier := range payload.ProgressiveTiers {
			tiers = append(tiers, domain.ProgressiveTier{
				MinItems:        tier.MinItems,
				DiscountPercent: tier.DiscountPercent,
			})
		}
		return domain.BuyXPayY{
			BuyQuantity:      payload.BuyQuantity,
			PayQuantity:      payload.PayQuantity,
			ProgressiveTiers: tiers,
		}, nil
	case ruleTypePercentage:
		return domain.PercentageDiscount{
			Percent:          payload.Percent,
			MaxDiscountValue: payload.MaxDiscountValue,
		}, nil
	case ruleTypeFixedValue:
		return domain.FixedValueDiscount{Amount: payload.Amount}, nil
	default:
		return nil, errors.New("rule.type must be one of free_shipping, coupon, buy_x_pay_y, percentage, fixed_value")
	}
}

func ruleToPayload(rule services.PromotionRule) promotionRulePayload {
	switch r := rule.(type) {
	case domain.FreeShipping:
		return promotionRulePayload{Type: ruleTypeFreeShipping, MinSubtotal: r.MinSubtotal}
	case domain.CouponDiscount:
		return promotionRulePayload{
			Type:                    ruleTypeCoupon,
			Code:                    domain.NormalizeCouponCode(r.Code),
			Kind:                    string(r.Kind),
			Percent:                 r.Percent,
			Amount:                  r.Amount,
			MaxDiscountValue:        r.MaxDiscountValue,
			MinPurchaseValue:        r.MinPurchaseValue,
			GrantsFreeShipping:      r.GrantsFreeShipping,
			FreeShippingMinSubtotal: r.FreeShippingMinSubtotal,
		}
	case domain.BuyXPayY:
		tiers := make([]progressiveTierPayload, 0, len(r.ProgressiveTiers))
		for _, tier := range r.ProgressiveTiers {
			tiers = append(tiers, progressiveTierPayload{
				MinItems:        tier.MinItems,
				DiscountPercent: tier.DiscountPercent,
			})
		}
		return promotionRulePayload{
			Type:             ruleTypeBuyXPayY,
			BuyQuantity:      r.BuyQuantity,
			PayQuantity:      r.PayQuantity,
			ProgressiveTiers: tiers,
		}
	case domain.PercentageDiscount:
		return promotionRulePayload{
			Type:             ruleTypePercentage,
			Percent:          r.Percent,
			MaxDiscountValue: r.MaxDiscountValue,
		}
	case domain.FixedValueDiscount:
		return promotionRulePayload{Type: ruleTypeFixedValue, Amount: r.Amount}
	default:
		return promotionRulePayload{}
	}
}

func (h *PromotionHandlers) buildPromotionPayload(promo services.Promotion) promotionPayload {
	payload := promotionPayload{
		ID:          promo.ID,
		StoreID:     promo.StoreID,
		Name:        strings.TrimSpace(h.sanitizer.Sanitize(promo.Name)),
		Description: strings.TrimSpace(h.sanitizer.Sanitize(promo.Description)),
		IsActive:    promo.IsActive,
		AppliesTo:   scopeToPayload(promo.Scope),
		MaxUses:     promo.MaxUses,
		UsesCount:   promo.UsesCount,
		Rule:        ruleToPayload(promo.Rule),
		CreatedAt:   formatTime(promo.CreatedAt),
		UpdatedAt:   formatTime(promo.UpdatedAt),
	}
	if promo.StartsAt != nil {
		payload.StartsAt = formatTime(*promo.StartsAt)
	}
	if promo.EndsAt != nil {
		payload.EndsAt = formatTime(*promo.EndsAt)
	}
	return payload
}
