package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/vitrinehub/api/internal/domain"
	"github.com/vitrinehub/api/internal/repositories"
)

// productPromotionFinder is the badge lookup slice of the pricing engine.
type productPromotionFinder interface {
	ProductPromotion(promotions []Promotion, productID string) (Promotion, bool)
}

// PromotionServiceDeps wires repository and helpers for promotion operations.
type PromotionServiceDeps struct {
	Repository  repositories.PromotionRepository
	Badge       productPromotionFinder
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type promotionService struct {
	repo      repositories.PromotionRepository
	badge     productPromotionFinder
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
	newID     func() string
	sanitizer *bluemonday.Policy
}

// NewPromotionService constructs a PromotionService enforcing dependency validation.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Repository == nil {
		return nil, ErrPromotionRepositoryMissing
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &promotionService{
		repo:      deps.Repository,
		badge:     deps.Badge,
		now:       func() time.Time { return now().UTC() },
		logger:    logger,
		newID:     idGen,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// ListActivePromotions returns the promotions the pricing flow may honour
// right now: active, inside their window, and not exhausted.
func (s *promotionService) ListActivePromotions(ctx context.Context, storeID string) ([]Promotion, error) {
	sid := strings.TrimSpace(storeID)
	if sid == "" {
		return nil, ErrPromotionInvalidInput
	}

	promotions, err := s.repo.ListActive(ctx, sid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	now := s.now()
	available := make([]Promotion, 0, len(promotions))
	for _, promo := range promotions {
		if promo.AvailableAt(now) {
			available = append(available, promo)
		}
	}
	return available, nil
}

// ListPromotions returns a paginated promotion listing for the store.
func (s *promotionService) ListPromotions(ctx context.Context, filter PromotionListFilter) (domain.CursorPage[Promotion], error) {
	sid := strings.TrimSpace(filter.StoreID)
	if sid == "" {
		return domain.CursorPage[Promotion]{}, ErrPromotionInvalidInput
	}

	page, err := s.repo.List(ctx, repositories.PromotionListFilter{
		StoreID:    sid,
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Promotion]{}, s.translateRepoError(err)
	}
	return page, nil
}

// ResolveCoupon looks a promotion up by its activation code. The lookup is
// global; callers verify store ownership before accepting the result.
func (s *promotionService) ResolveCoupon(ctx context.Context, code string) (Promotion, error) {
	normalized := domain.NormalizeCouponCode(code)
	if normalized == "" {
		return Promotion{}, ErrPromotionInvalidInput
	}

	promo, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return Promotion{}, s.translateRepoError(err)
	}
	return promo, nil
}

// GetProductPromotion returns the first available promotion covering the
// product, for the catalog badge. Independent of any cart contents.
func (s *promotionService) GetProductPromotion(ctx context.Context, storeID, productID string) (Promotion, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return Promotion{}, ErrPromotionInvalidInput
	}

	promotions, err := s.ListActivePromotions(ctx, storeID)
	if err != nil {
		return Promotion{}, err
	}

	if s.badge != nil {
		if promo, ok := s.badge.ProductPromotion(promotions, pid); ok {
			return promo, nil
		}
		return Promotion{}, ErrPromotionNotFound
	}

	for _, promo := range promotions {
		if promo.Scope.CoversProduct(pid) {
			return promo, nil
		}
	}
	return Promotion{}, ErrPromotionNotFound
}

// CreatePromotion validates and persists a new promotion definition.
func (s *promotionService) CreatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error) {
	promo, err := s.promotionFromCommand(cmd, "")
	if err != nil {
		return Promotion{}, err
	}

	if err := s.repo.Insert(ctx, promo); err != nil {
		return Promotion{}, s.translateRepoError(err)
	}
	s.logger(ctx, "promotion.created", map[string]any{"storeId": promo.StoreID, "promotionId": promo.ID})
	return promo, nil
}

// UpdatePromotion validates and replaces an existing promotion definition.
func (s *promotionService) UpdatePromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error) {
	promotionID := strings.TrimSpace(cmd.PromotionID)
	if promotionID == "" {
		return Promotion{}, fmt.Errorf("%w: promotion id is required", ErrPromotionInvalidInput)
	}

	existing, err := s.repo.FindByID(ctx, strings.TrimSpace(cmd.StoreID), promotionID)
	if err != nil {
		return Promotion{}, s.translateRepoError(err)
	}

	promo, err := s.promotionFromCommand(cmd, promotionID)
	if err != nil {
		return Promotion{}, err
	}
	promo.UsesCount = existing.UsesCount
	promo.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, promo); err != nil {
		return Promotion{}, s.translateRepoError(err)
	}
	return promo, nil
}

// DeletePromotion removes a promotion definition.
func (s *promotionService) DeletePromotion(ctx context.Context, storeID, promotionID string) error {
	sid := strings.TrimSpace(storeID)
	pid := strings.TrimSpace(promotionID)
	if sid == "" || pid == "" {
		return ErrPromotionInvalidInput
	}
	if err := s.repo.Delete(ctx, sid, pid); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// RecordRedemption bumps the usage counter after a checkout completes with
// the promotion attached. Counting is not atomic across concurrent buyers.
func (s *promotionService) RecordRedemption(ctx context.Context, storeID, promotionID string) error {
	sid := strings.TrimSpace(storeID)
	pid := strings.TrimSpace(promotionID)
	if sid == "" || pid == "" {
		return ErrPromotionInvalidInput
	}
	if err := s.repo.IncrementUsage(ctx, sid, pid, s.now()); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *promotionService) promotionFromCommand(cmd UpsertPromotionCommand, promotionID string) (Promotion, error) {
	storeID := strings.TrimSpace(cmd.StoreID)
	if storeID == "" {
		return Promotion{}, fmt.Errorf("%w: store id is required", ErrPromotionInvalidInput)
	}

	name := strings.TrimSpace(s.sanitizer.Sanitize(cmd.Name))
	if name == "" {
		return Promotion{}, fmt.Errorf("%w: name is required", ErrPromotionInvalidInput)
	}
	description := strings.TrimSpace(s.sanitizer.Sanitize(cmd.Description))

	scope, err := normalizeScope(cmd.Scope)
	if err != nil {
		return Promotion{}, err
	}

	if err := validateRule(cmd.Rule); err != nil {
		return Promotion{}, err
	}

	if cmd.StartsAt != nil && cmd.EndsAt != nil && cmd.EndsAt.Before(*cmd.StartsAt) {
		return Promotion{}, fmt.Errorf("%w: ends_at precedes starts_at", ErrPromotionInvalidInput)
	}
	if cmd.MaxUses != nil && *cmd.MaxUses <= 0 {
		return Promotion{}, fmt.Errorf("%w: max_uses must be positive", ErrPromotionInvalidInput)
	}

	now := s.now()
	id := strings.TrimSpace(promotionID)
	if id == "" {
		id = s.newID()
	}

	return Promotion{
		ID:          id,
		StoreID:     storeID,
		Name:        name,
		Description: description,
		IsActive:    cmd.IsActive,
		Scope:       scope,
		StartsAt:    cloneTimePointer(cmd.StartsAt),
		EndsAt:      cloneTimePointer(cmd.EndsAt),
		MaxUses:     cloneIntPointer(cmd.MaxUses),
		Rule:        cmd.Rule,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func normalizeScope(scope PromotionScope) (PromotionScope, error) {
	switch scope.Kind {
	case "", domain.ScopeAll:
		return PromotionScope{Kind: domain.ScopeAll}, nil
	case domain.ScopeProducts:
		ids := trimNonEmpty(scope.ProductIDs)
		if len(ids) == 0 {
			return PromotionScope{}, fmt.Errorf("%w: product scope requires product ids", ErrPromotionInvalidInput)
		}
		return PromotionScope{Kind: domain.ScopeProducts, ProductIDs: ids}, nil
	case domain.ScopeCategories:
		ids := trimNonEmpty(scope.CategoryIDs)
		if len(ids) == 0 {
			return PromotionScope{}, fmt.Errorf("%w: category scope requires category ids", ErrPromotionInvalidInput)
		}
		return PromotionScope{Kind: domain.ScopeCategories, CategoryIDs: ids}, nil
	default:
		return PromotionScope{}, fmt.Errorf("%w: unknown scope kind %q", ErrPromotionInvalidInput, scope.Kind)
	}
}

func validateRule(rule PromotionRule) error {
	switch r := rule.(type) {
	case domain.FreeShipping:
		if r.MinSubtotal != nil && *r.MinSubtotal < 0 {
			return fmt.Errorf("%w: free shipping threshold cannot be negative", ErrPromotionInvalidInput)
		}
	case domain.CouponDiscount:
		if domain.NormalizeCouponCode(r.Code) == "" {
			return fmt.Errorf("%w: coupon code is required", ErrPromotionInvalidInput)
		}
		switch r.Kind {
		case domain.DiscountPercentage:
			if r.Percent <= 0 || r.Percent > 100 {
				return fmt.Errorf("%w: coupon percent must be in (0, 100]", ErrPromotionInvalidInput)
			}
		case domain.DiscountFixedValue:
			if r.Amount <= 0 {
				return fmt.Errorf("%w: coupon amount must be positive", ErrPromotionInvalidInput)
			}
		default:
			return fmt.Errorf("%w: unknown coupon kind %q", ErrPromotionInvalidInput, r.Kind)
		}
	case domain.BuyXPayY:
		hasLegacy := r.BuyQuantity > 0 || r.PayQuantity > 0
		hasTiers := len(r.ProgressiveTiers) > 0
		if hasLegacy == hasTiers {
			return fmt.Errorf("%w: buy-x-pay-y requires either a quantity pair or tiers", ErrPromotionInvalidInput)
		}
		if hasLegacy && (r.BuyQuantity <= 0 || r.PayQuantity < 0 || r.PayQuantity >= r.BuyQuantity) {
			return fmt.Errorf("%w: pay quantity must be below buy quantity", ErrPromotionInvalidInput)
		}
		for _, tier := range r.ProgressiveTiers {
			if tier.MinItems <= 0 || tier.DiscountPercent <= 0 || tier.DiscountPercent > 100 {
				return fmt.Errorf("%w: invalid progressive tier", ErrPromotionInvalidInput)
			}
		}
	case domain.PercentageDiscount:
		if r.Percent <= 0 || r.Percent > 100 {
			return fmt.Errorf("%w: percent must be in (0, 100]", ErrPromotionInvalidInput)
		}
	case domain.FixedValueDiscount:
		if r.Amount <= 0 {
			return fmt.Errorf("%w: amount must be positive", ErrPromotionInvalidInput)
		}
	default:
		return fmt.Errorf("%w: rule is required", ErrPromotionInvalidInput)
	}
	return nil
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	ts := value.UTC()
	return &ts
}

func cloneIntPointer(value *int) *int {
	if value == nil {
		return nil
	}
	dup := *value
	return &dup
}

func (s *promotionService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrPromotionNotFound
		case repoErr.IsConflict():
			return ErrPromotionConflict
		case repoErr.IsUnavailable():
			return ErrPromotionUnavailable
		}
	}
	return ErrPromotionUnavailable
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
