package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pfirestore "github.com/vitrinehub/api/internal/platform/firestore"
	"github.com/vitrinehub/api/internal/repositories"
	firestoreRepo "github.com/vitrinehub/api/internal/repositories/firestore"
	redisRepo "github.com/vitrinehub/api/internal/repositories/redis"
)

// RegistryDeps carries the infrastructure clients backing the repositories.
type RegistryDeps struct {
	Provider *pfirestore.Provider
	Redis    goredis.UniversalClient
	CartTTL  time.Duration
	Health   repositories.HealthRepository
}

type registry struct {
	provider *pfirestore.Provider
	redis    goredis.UniversalClient

	stores     repositories.StoreRepository
	promotions repositories.PromotionRepository
	carts      repositories.CartSessionRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*registry)(nil)

// NewRegistry assembles the Firestore and Redis backed repository set.
func NewRegistry(deps RegistryDeps) (repositories.Registry, error) {
	if deps.Provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}
	if deps.Redis == nil {
		return nil, errors.New("registry: redis client is required")
	}

	stores, err := firestoreRepo.NewStoreRepository(deps.Provider)
	if err != nil {
		return nil, fmt.Errorf("build store repository: %w", err)
	}
	promotions, err := firestoreRepo.NewPromotionRepository(deps.Provider)
	if err != nil {
		return nil, fmt.Errorf("build promotion repository: %w", err)
	}
	carts, err := redisRepo.NewCartSessionRepository(redisRepo.CartSessionRepositoryConfig{
		Client: deps.Redis,
		TTL:    deps.CartTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("build cart session repository: %w", err)
	}

	return &registry{
		provider:   deps.Provider,
		redis:      deps.Redis,
		stores:     stores,
		promotions: promotions,
		carts:      carts,
		health:     deps.Health,
	}, nil
}

func (r *registry) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if r.provider != nil {
		if err := r.provider.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close firestore: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *registry) Stores() repositories.StoreRepository             { return r.stores }
func (r *registry) Promotions() repositories.PromotionRepository     { return r.promotions }
func (r *registry) CartSessions() repositories.CartSessionRepository { return r.carts }
func (r *registry) Health() repositories.HealthRepository            { return r.health }
