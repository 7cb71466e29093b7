package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vitrinehub/api/internal/platform/httpx"
	"github.com/vitrinehub/api/internal/platform/requestctx"
	"github.com/vitrinehub/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the session cart endpoints for one store.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs handlers delegating to the cart service.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes wires the cart and pricing endpoints onto the store-scoped router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/cart", h.getCart)
	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items/{productID}", h.updateItemQuantity)
	r.Delete("/cart/items/{productID}", h.removeItem)
	r.Delete("/cart", h.clearCart)
	r.Post("/cart/coupon", h.applyCoupon)
	r.Delete("/cart/coupon", h.removeCoupon)
	r.Get("/pricing", h.getPricing)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, sessionID, ok := h.scope(ctx, w, r)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(ctx, storeID, sessionID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartViewResponse(view))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, sessionID, ok := h.scope(ctx, w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if !decodeJSONBody(ctx, w, r, maxCartBodySize, &req) {
		return
	}

	view, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		StoreID:    storeID,
		SessionID:  sessionID,
		ProductID:  req.ProductID,
		VariantID:  req.VariantID,
		SKU:        req.SKU,
		Name:       req.Name,
		ImageURL:   req.ImageURL,
		UnitPrice:  req.UnitPrice,
		Quantity:   req.Quantity,
		StockLimit: req.StockLimit,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartViewResponse(view))
}

func (h *CartHandlers) updateItemQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, sessionID, ok := h.scope(ctx, w, r)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if !decodeJSONBody(ctx, w, r, maxCartBodySize, &req) {
		return
	}

	view, err := h.carts.UpdateItemQuantity(ctx, services.UpdateCartItemQuantityCommand{
		StoreID:   storeID,
		SessionID: sessionID,
		ProductID: chi.URLParam(r, "productID"),
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartViewResponse(view))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, sessionID, ok := h.scope(ctx, w, r)
	if !ok {
		return
	}

	view, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		StoreID:   storeID,
		SessionID: sessionID,
		ProductID: chi.URLParam(r, "productID"),
		VariantID: r.URL.Query().Get("variantId"),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartViewResponse(view))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, sessionID, ok := h.scope(ctx, w, r)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, storeID, sessionID); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, sessionID, ok := h.scope(ctx, w, r)
	if !ok {
		return
	}

	var req applyCouponRequest
	if !decodeJSONBody(ctx, w, r, maxCartBodySize, &req) {
		return
	}

	result, view, err := h.carts.ApplyCoupon(ctx, services.ApplyCouponCommand{
		StoreID:   storeID,
		SessionID: sessionID,
		Code:      req.Code,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	payload := couponApplyResponse{
		Success:  result.Success,
		Message:  result.Message,
		Discount: result.Discount,
		Cart:     buildCartPayload(view.State),
		Pricing:  buildPricingPayload(view.Snapshot),
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSONResponse(w, status, payload)
}

func (h *CartHandlers) removeCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, sessionID, ok := h.scope(ctx, w, r)
	if !ok {
		return
	}

	view, err := h.carts.RemoveCoupon(ctx, storeID, sessionID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartViewResponse(view))
}

func (h *CartHandlers) getPricing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, sessionID, ok := h.scope(ctx, w, r)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(ctx, storeID, sessionID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, pricingResponse{Pricing: buildPricingPayload(view.Snapshot)})
}

func (h *CartHandlers) scope(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, string, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return "", "", false
	}
	storeID := strings.TrimSpace(chi.URLParam(r, "storeID"))
	sessionID := strings.TrimSpace(requestctx.SessionID(ctx))
	if storeID == "" || sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "store and session identifiers are required", http.StatusBadRequest))
		return "", "", false
	}
	return storeID, sessionID, true
}

// decodeJSONBody reads and unmarshals the request body, writing the error
// response itself. Returns false when the caller should stop.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput), errors.Is(err, services.ErrStoreInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStoreNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("store_not_found", "store not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartUnavailable), errors.Is(err, services.ErrStoreUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}

type addItemRequest struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url"`
	UnitPrice  int64  `json:"unit_price"`
	Quantity   int    `json:"quantity"`
	StockLimit *int   `json:"stock_limit"`
}

type updateQuantityRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

type cartViewResponse struct {
	Cart    cartPayload    `json:"cart"`
	Pricing pricingPayload `json:"pricing"`
}

type pricingResponse struct {
	Pricing pricingPayload `json:"pricing"`
}

type couponApplyResponse struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Discount int64          `json:"discount"`
	Cart     cartPayload    `json:"cart"`
	Pricing  pricingPayload `json:"pricing"`
}

type cartPayload struct {
	StoreID   string               `json:"store_id"`
	SessionID string               `json:"session_id"`
	Lines     []cartLinePayload    `json:"lines"`
	Coupon    *cartCouponPayload   `json:"coupon,omitempty"`
	UpdatedAt string               `json:"updated_at,omitempty"`
}

type cartLinePayload struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id,omitempty"`
	SKU        string `json:"sku,omitempty"`
	Name       string `json:"name,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
	UnitPrice  int64  `json:"unit_price"`
	Quantity   int    `json:"quantity"`
	StockLimit *int   `json:"stock_limit,omitempty"`
	LineTotal  int64  `json:"line_total"`
	AddedAt    string `json:"added_at,omitempty"`
}

type cartCouponPayload struct {
	Code          string `json:"code"`
	PromotionID   string `json:"promotion_id"`
	PromotionName string `json:"promotion_name,omitempty"`
	AppliedAt     string `json:"applied_at,omitempty"`
}

type pricingPayload struct {
	Currency          string                    `json:"currency"`
	Subtotal          int64                     `json:"subtotal"`
	AutomaticDiscount int64                     `json:"automatic_discount"`
	CouponDiscount    int64                     `json:"coupon_discount"`
	TotalDiscount     int64                     `json:"total_discount"`
	FinalTotal        int64                     `json:"final_total"`
	FreeShipping      bool                      `json:"free_shipping"`
	CouponCode        string                    `json:"coupon_code,omitempty"`
	AppliedPromotions []appliedPromotionPayload `json:"applied_promotions"`
}

type appliedPromotionPayload struct {
	PromotionID      string   `json:"promotion_id"`
	Name             string   `json:"name"`
	DiscountValue    int64    `json:"discount_value"`
	Description      string   `json:"description,omitempty"`
	AffectedLineKeys []string `json:"affected_line_keys,omitempty"`
}

func buildCartViewResponse(view services.CartView) cartViewResponse {
	return cartViewResponse{
		Cart:    buildCartPayload(view.State),
		Pricing: buildPricingPayload(view.Snapshot),
	}
}

func buildCartPayload(state services.SessionCartState) cartPayload {
	lines := make([]cartLinePayload, 0, len(state.Lines))
	for _, line := range state.Lines {
		lines = append(lines, cartLinePayload{
			ProductID:  line.ProductID,
			VariantID:  line.VariantID,
			SKU:        line.SKU,
			Name:       line.Name,
			ImageURL:   line.ImageURL,
			UnitPrice:  line.UnitPrice,
			Quantity:   line.Quantity,
			StockLimit: line.StockLimit,
			LineTotal:  line.LineTotal(),
			AddedAt:    formatTime(line.AddedAt),
		})
	}

	payload := cartPayload{
		StoreID:   state.StoreID,
		SessionID: state.SessionID,
		Lines:     lines,
		UpdatedAt: formatTime(state.UpdatedAt),
	}
	if state.Coupon != nil {
		payload.Coupon = &cartCouponPayload{
			Code:          state.Coupon.Code,
			PromotionID:   state.Coupon.Promotion.ID,
			PromotionName: state.Coupon.Promotion.Name,
			AppliedAt:     formatTime(state.Coupon.AppliedAt),
		}
	}
	return payload
}

func buildPricingPayload(snapshot services.PricingSnapshot) pricingPayload {
	applied := make([]appliedPromotionPayload, 0, len(snapshot.AppliedPromotions))
	for _, promo := range snapshot.AppliedPromotions {
		applied = append(applied, appliedPromotionPayload{
			PromotionID:      promo.Promotion.ID,
			Name:             promo.Promotion.Name,
			DiscountValue:    promo.DiscountValue,
			Description:      promo.Description,
			AffectedLineKeys: promo.AffectedLineKeys,
		})
	}
	return pricingPayload{
		Currency:          snapshot.Currency,
		Subtotal:          snapshot.Subtotal,
		AutomaticDiscount: snapshot.AutomaticDiscount,
		CouponDiscount:    snapshot.CouponDiscount,
		TotalDiscount:     snapshot.TotalDiscount,
		FinalTotal:        snapshot.FinalTotal,
		FreeShipping:      snapshot.FreeShipping,
		CouponCode:        snapshot.CouponCode,
		AppliedPromotions: applied,
	}
}
