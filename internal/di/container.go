package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vitrinehub/api/internal/payments"
	"github.com/vitrinehub/api/internal/platform/config"
	"github.com/vitrinehub/api/internal/repositories"
	"github.com/vitrinehub/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Stores     services.StoreService
	Promotions services.PromotionService
	Carts      services.CartService
	Checkout   services.CheckoutService
	System     services.SystemService
}

// ContainerDeps carries the externally constructed infrastructure the
// services depend on. Payments and Events are optional; checkout stays
// disabled when the payment manager is absent.
type ContainerDeps struct {
	Payments *payments.Manager
	Events   services.CouponRedemptionPublisher
	Logger   *zap.Logger
	Clock    func() time.Time
	Build    services.BuildInfo
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps ContainerDeps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(ctx context.Context, reg repositories.Registry, cfg config.Config, deps ContainerDeps) (Services, error) {
	var svc Services

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	storesRepo := reg.Stores()
	if storesRepo == nil {
		return Services{}, errors.New("store repository is required")
	}
	storeSvc, err := services.NewStoreService(services.StoreServiceDeps{
		Repository: storesRepo,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build store service: %w", err)
	}
	svc.Stores = storeSvc

	promotionsRepo := reg.Promotions()
	if promotionsRepo == nil {
		return Services{}, errors.New("promotion repository is required")
	}

	// The promotion service, coupon resolver, and pricing engine reference
	// each other: the resolver looks up coupons through the service and the
	// service delegates product badges to the engine. The proxy defers the
	// service binding until all three exist.
	couponSource := &couponSourceProxy{}

	resolver, err := services.NewCouponResolver(services.CouponResolverDeps{
		Promotions: couponSource,
		Clock:      clock,
		Logger:     zapEventLogger(logger.Named("coupons")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon resolver: %w", err)
	}

	engine, err := services.NewPricingEngine(services.PricingEngineDeps{
		Coupons: resolver,
		Clock:   clock,
		Logger:  zapEventLogger(logger.Named("pricing")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Repository: promotionsRepo,
		Badge:      engine,
		Clock:      clock,
		Logger:     zapEventLogger(logger.Named("promotions")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	couponSource.svc = promotionSvc
	svc.Promotions = promotionSvc

	sessionsRepo := reg.CartSessions()
	if sessionsRepo == nil {
		return Services{}, errors.New("cart session repository is required")
	}
	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Sessions:   sessionsRepo,
		Stores:     storeSvc,
		Promotions: promotionSvc,
		Engine:     engine,
		Coupons:    resolver,
		Clock:      clock,
		Logger:     zapEventLogger(logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = cartSvc

	if deps.Payments != nil {
		checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Carts:      cartSvc,
			Stores:     storeSvc,
			Promotions: promotionSvc,
			Payments:   deps.Payments,
			Events:     deps.Events,
			Clock:      clock,
			Logger:     zapEventLogger(logger.Named("checkout")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// couponSourceProxy breaks the construction cycle between the promotion
// service and the coupon resolver. The svc field is set once wiring finishes.
type couponSourceProxy struct {
	svc services.PromotionService
}

func (p *couponSourceProxy) ResolveCoupon(ctx context.Context, code string) (services.Promotion, error) {
	if p == nil || p.svc == nil {
		return services.Promotion{}, errors.New("promotion service not wired")
	}
	return p.svc.ResolveCoupon(ctx, code)
}

func zapEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}
