package di

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/checkout/internal/platform/config"
	"github.com/hanko-field/checkout/internal/platform/observability"
	"github.com/hanko-field/checkout/internal/repositories"
	"github.com/hanko-field/checkout/internal/services"
)

// Repositories bundles the storage contracts the checkout services depend on.
type Repositories struct {
	Catalog     repositories.CatalogReader
	Rules       repositories.DiscountRuleStore
	Orders      repositories.OrderRepository
	SellerIndex repositories.SellerOrderIndex
	Health      repositories.HealthRepository
}

// Infrastructure carries optional collaborators shared across services.
type Infrastructure struct {
	Events services.OrderEventPublisher
	Logger *zap.Logger
	Clock  func() time.Time
	Build  services.BuildInfo
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Cart         services.CartValidator
	Reservations services.OrderReservationService
	Reconciler   services.LifecycleReconciler
	Queries      services.OrderQueryService
	System       services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// NewContainer constructs the checkout services. Tests can supply in-memory repositories.
func NewContainer(cfg config.Config, repos Repositories, infra Infrastructure) (*Container, error) {
	if repos.Catalog == nil || repos.Rules == nil || repos.Orders == nil || repos.SellerIndex == nil {
		return nil, errors.New("di: catalog, discount rule, order and seller index repositories are required")
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}

	svc, err := buildServices(cfg, repos, infra)
	if err != nil {
		return nil, err
	}
	return &Container{
		Config:       cfg,
		Repositories: repos,
		Services:     svc,
	}, nil
}

func buildServices(cfg config.Config, repos Repositories, infra Infrastructure) (Services, error) {
	var svc Services

	cart, err := services.NewCartValidator(services.CartValidatorDeps{
		Catalog:         repos.Catalog,
		Rules:           repos.Rules,
		DefaultCurrency: cfg.Checkout.DefaultCurrency,
		Logger:          observability.NewEventLogger(infra.Logger, "cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart validator: %w", err)
	}
	svc.Cart = cart

	reservations, err := services.NewOrderReservationService(services.OrderReservationServiceDeps{
		Orders:          repos.Orders,
		Rules:           repos.Rules,
		SellerIndex:     repos.SellerIndex,
		Events:          infra.Events,
		DefaultCurrency: cfg.Checkout.DefaultCurrency,
		Clock:           infra.Clock,
		Logger:          observability.NewEventLogger(infra.Logger, "orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order reservation service: %w", err)
	}
	svc.Reservations = reservations

	reconciler, err := services.NewLifecycleReconciler(services.LifecycleReconcilerDeps{
		Orders:      repos.Orders,
		SellerIndex: repos.SellerIndex,
		Events:      infra.Events,
		Clock:       infra.Clock,
		Logger:      observability.NewEventLogger(infra.Logger, "reconciler"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build lifecycle reconciler: %w", err)
	}
	svc.Reconciler = reconciler

	queries, err := services.NewOrderQueryService(services.OrderQueryServiceDeps{
		Orders:      repos.Orders,
		SellerIndex: repos.SellerIndex,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order query service: %w", err)
	}
	svc.Queries = queries

	if repos.Health != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: repos.Health,
			Clock:            infra.Clock,
			Build:            infra.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}
	return svc, nil
}
