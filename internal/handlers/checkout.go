package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vitrinehub/api/internal/platform/httpx"
	"github.com/vitrinehub/api/internal/platform/requestctx"
	"github.com/vitrinehub/api/internal/services"
)

const maxCheckoutBodySize = 8 * 1024

// CheckoutHandlers exposes the checkout session endpoint for one store.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs handlers delegating to the checkout service.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes wires the checkout endpoint onto the store-scoped router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout", h.createSession)
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}

	storeID := strings.TrimSpace(chi.URLParam(r, "storeID"))
	sessionID := strings.TrimSpace(requestctx.SessionID(ctx))
	if storeID == "" || sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "store and session identifiers are required", http.StatusBadRequest))
		return
	}

	var req createCheckoutRequest
	if !decodeJSONBody(ctx, w, r, maxCheckoutBodySize, &req) {
		return
	}

	result, err := h.checkout.CreateCheckoutSession(ctx, services.CreateCheckoutSessionCommand{
		StoreID:        storeID,
		SessionID:      sessionID,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		CustomerEmail:  req.CustomerEmail,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutSessionResponse{
		SessionID:   result.SessionID,
		Provider:    result.Provider,
		RedirectURL: result.RedirectURL,
		ExpiresAt:   formatTime(result.ExpiresAt),
		Pricing:     buildPricingPayload(result.Snapshot),
	})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCartNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_ready", "cart is empty or has no payable total", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment provider rejected the session", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to create checkout session", http.StatusInternalServerError))
	}
}

type createCheckoutRequest struct {
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
	CustomerEmail string `json:"customer_email"`
}

type checkoutSessionResponse struct {
	SessionID   string         `json:"session_id"`
	Provider    string         `json:"provider"`
	RedirectURL string         `json:"redirect_url"`
	ExpiresAt   string         `json:"expires_at,omitempty"`
	Pricing     pricingPayload `json:"pricing"`
}
