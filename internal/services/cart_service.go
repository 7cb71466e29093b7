package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/vitrinehub/api/internal/domain"
	"github.com/vitrinehub/api/internal/repositories"
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// snapshotBuilder is the pricing engine slice the cart service consumes.
type snapshotBuilder interface {
	Snapshot(ctx context.Context, store Store, state SessionCartState, promotions []Promotion) PricingSnapshot
}

// couponApplier validates a coupon code for a store session.
type couponApplier interface {
	Apply(ctx context.Context, store Store, state SessionCartState, code string) (CouponApplyResult, *domain.AppliedCoupon)
}

// promotionCatalog loads the active promotion set feeding a snapshot.
type promotionCatalog interface {
	ListActivePromotions(ctx context.Context, storeID string) ([]Promotion, error)
}

// CartServiceDeps wires the session store, promotion catalog, and pricing
// collaborators for cart operations.
type CartServiceDeps struct {
	Sessions   repositories.CartSessionRepository
	Stores     StoreService
	Promotions promotionCatalog
	Engine     snapshotBuilder
	Coupons    couponApplier
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type cartService struct {
	sessions   repositories.CartSessionRepository
	stores     StoreService
	promotions promotionCatalog
	engine     snapshotBuilder
	coupons    couponApplier
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Sessions == nil {
		return nil, errors.New("cart service: session repository is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("cart service: store service is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("cart service: promotion catalog is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("cart service: pricing engine is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("cart service: coupon resolver is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		sessions:   deps.Sessions,
		stores:     deps.Stores,
		promotions: deps.Promotions,
		engine:     deps.Engine,
		coupons:    deps.Coupons,
		now:        func() time.Time { return now().UTC() },
		logger:     logger,
	}, nil
}

// GetCart loads the session state and derives a fresh snapshot.
func (s *cartService) GetCart(ctx context.Context, storeID, sessionID string) (CartView, error) {
	store, state, err := s.loadScope(ctx, storeID, sessionID)
	if err != nil {
		return CartView{}, err
	}
	return s.view(ctx, store, state), nil
}

// AddItem appends a line or merges it into the line sharing its identity
// key, summing quantities. The unit price snapshot of an existing line is
// kept; prices are never recomputed here.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}
	if cmd.UnitPrice < 0 {
		return CartView{}, fmt.Errorf("%w: unit_price must be non-negative", ErrCartInvalidInput)
	}

	store, state, err := s.loadScope(ctx, cmd.StoreID, cmd.SessionID)
	if err != nil {
		return CartView{}, err
	}

	now := s.now()
	line := domain.CartLine{
		ProductID:  productID,
		VariantID:  strings.TrimSpace(cmd.VariantID),
		SKU:        strings.TrimSpace(cmd.SKU),
		Name:       strings.TrimSpace(cmd.Name),
		ImageURL:   strings.TrimSpace(cmd.ImageURL),
		UnitPrice:  cmd.UnitPrice,
		Quantity:   cmd.Quantity,
		StockLimit: cloneIntPointer(cmd.StockLimit),
		AddedAt:    now,
	}

	key := line.IdentityKey()
	merged := false
	for i := range state.Lines {
		if state.Lines[i].IdentityKey() == key {
			state.Lines[i].Quantity += cmd.Quantity
			if state.Lines[i].StockLimit == nil {
				state.Lines[i].StockLimit = cloneIntPointer(cmd.StockLimit)
			}
			merged = true
			break
		}
	}
	if !merged {
		state.Lines = append(state.Lines, line)
	}

	return s.save(ctx, store, state)
}

// UpdateItemQuantity sets an absolute quantity on the matched line, clamped
// to [1, stock limit]. Quantities below one and unmatched lines are no-ops:
// the cart never errors for them.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemQuantityCommand) (CartView, error) {
	store, state, err := s.loadScope(ctx, cmd.StoreID, cmd.SessionID)
	if err != nil {
		return CartView{}, err
	}

	if cmd.Quantity < 1 {
		return s.view(ctx, store, state), nil
	}

	idx := indexOfLine(state.Lines, cmd.ProductID, cmd.VariantID)
	if idx < 0 {
		s.logger(ctx, "cart.update_quantity_no_match", map[string]any{
			"storeId":   store.ID,
			"productId": strings.TrimSpace(cmd.ProductID),
		})
		return s.view(ctx, store, state), nil
	}

	quantity := cmd.Quantity
	if limit := state.Lines[idx].MaxQuantity(); quantity > limit {
		quantity = limit
	}
	state.Lines[idx].Quantity = quantity

	return s.save(ctx, store, state)
}

// RemoveItem removes the line matching the product plus optional variant.
// Unmatched removals are no-ops.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error) {
	store, state, err := s.loadScope(ctx, cmd.StoreID, cmd.SessionID)
	if err != nil {
		return CartView{}, err
	}

	idx := indexOfLine(state.Lines, cmd.ProductID, cmd.VariantID)
	if idx < 0 {
		return s.view(ctx, store, state), nil
	}

	state.Lines = append(state.Lines[:idx], state.Lines[idx+1:]...)
	return s.save(ctx, store, state)
}

// ClearCart drops the session state entirely, lines and coupon alike.
func (s *cartService) ClearCart(ctx context.Context, storeID, sessionID string) error {
	store, _, err := s.loadScope(ctx, storeID, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.Clear(ctx, store.ID, strings.TrimSpace(sessionID)); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// ApplyCoupon validates the code and, on success, persists it on the
// session. The typed result carries the storefront message either way; the
// returned view reflects the state after the attempt.
func (s *cartService) ApplyCoupon(ctx context.Context, cmd ApplyCouponCommand) (CouponApplyResult, CartView, error) {
	store, state, err := s.loadScope(ctx, cmd.StoreID, cmd.SessionID)
	if err != nil {
		return CouponApplyResult{}, CartView{}, err
	}

	result, coupon := s.coupons.Apply(ctx, store, state, cmd.Code)
	if !result.Success {
		return result, s.view(ctx, store, state), nil
	}

	state.Coupon = coupon
	view, err := s.save(ctx, store, state)
	if err != nil {
		return CouponApplyResult{}, CartView{}, err
	}
	return result, view, nil
}

// RemoveCoupon clears the applied coupon from the session.
func (s *cartService) RemoveCoupon(ctx context.Context, storeID, sessionID string) (CartView, error) {
	store, state, err := s.loadScope(ctx, storeID, sessionID)
	if err != nil {
		return CartView{}, err
	}

	if state.Coupon == nil {
		return s.view(ctx, store, state), nil
	}

	state.Coupon = nil
	return s.save(ctx, store, state)
}

func (s *cartService) loadScope(ctx context.Context, storeID, sessionID string) (Store, SessionCartState, error) {
	sid := strings.TrimSpace(storeID)
	sess := strings.TrimSpace(sessionID)
	if sid == "" || sess == "" {
		return Store{}, SessionCartState{}, ErrCartInvalidInput
	}

	store, err := s.stores.GetStore(ctx, sid)
	if err != nil {
		return Store{}, SessionCartState{}, err
	}

	state, err := s.sessions.GetState(ctx, store.ID, sess)
	if err != nil {
		if !isRepoNotFound(err) {
			return Store{}, SessionCartState{}, s.translateRepoError(err)
		}
		state = domain.SessionCartState{StoreID: store.ID, SessionID: sess, Lines: []domain.CartLine{}}
	}
	state.StoreID = store.ID
	state.SessionID = sess
	if state.Lines == nil {
		state.Lines = []domain.CartLine{}
	}
	return store, state, nil
}

func (s *cartService) save(ctx context.Context, store Store, state SessionCartState) (CartView, error) {
	state.UpdatedAt = s.now()
	if err := s.sessions.SaveState(ctx, state); err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.view(ctx, store, state), nil
}

// view derives the snapshot for the current state. A failed promotion
// refresh degrades to pricing without automatic promotions rather than
// failing the cart operation.
func (s *cartService) view(ctx context.Context, store Store, state SessionCartState) CartView {
	promotions, err := s.promotions.ListActivePromotions(ctx, store.ID)
	if err != nil {
		s.logger(ctx, "cart.promotions_refresh_failed", map[string]any{
			"storeId": store.ID,
			"error":   err.Error(),
		})
		promotions = nil
	}
	return CartView{
		State:    state,
		Snapshot: s.engine.Snapshot(ctx, store, state, promotions),
	}
}

func indexOfLine(lines []domain.CartLine, productID, variantID string) int {
	pid := strings.TrimSpace(productID)
	vid := strings.TrimSpace(variantID)
	if pid == "" {
		return -1
	}
	for i, line := range lines {
		if !strings.EqualFold(strings.TrimSpace(line.ProductID), pid) {
			continue
		}
		if vid != "" {
			if strings.EqualFold(strings.TrimSpace(line.VariantID), vid) {
				return i
			}
			continue
		}
		if strings.TrimSpace(line.VariantID) == "" {
			return i
		}
	}
	return -1
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartInvalidInput
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
	}
	return ErrCartUnavailable
}
