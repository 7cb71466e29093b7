package repositories

import (
	"context"
	"time"

	domain "github.com/vitrinehub/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Stores() StoreRepository
	Promotions() PromotionRepository
	CartSessions() CartSessionRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// StoreRepository resolves tenant records.
type StoreRepository interface {
	GetStore(ctx context.Context, storeID string) (domain.Store, error)
	GetStoreBySlug(ctx context.Context, slug string) (domain.Store, error)
}

// PromotionRepository maintains per-store promotion definitions and usage
// counters. FindByCode is globally scoped; callers verify store ownership.
type PromotionRepository interface {
	Insert(ctx context.Context, promotion domain.Promotion) error
	Update(ctx context.Context, promotion domain.Promotion) error
	Delete(ctx context.Context, storeID string, promotionID string) error
	FindByID(ctx context.Context, storeID string, promotionID string) (domain.Promotion, error)
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	ListActive(ctx context.Context, storeID string) ([]domain.Promotion, error)
	List(ctx context.Context, filter PromotionListFilter) (domain.CursorPage[domain.Promotion], error)
	IncrementUsage(ctx context.Context, storeID string, promotionID string, now time.Time) error
}

// CartSessionRepository round-trips session cart state through a store-scoped
// key-value store. GetState reports not-found when the session has no cart.
type CartSessionRepository interface {
	GetState(ctx context.Context, storeID string, sessionID string) (domain.SessionCartState, error)
	SaveState(ctx context.Context, state domain.SessionCartState) error
	Clear(ctx context.Context, storeID string, sessionID string) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// PromotionListFilter controls pagination and status filtering for
// promotion listings.
type PromotionListFilter struct {
	StoreID    string
	ActiveOnly bool
	Pagination domain.Pagination
}
