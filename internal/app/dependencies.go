package app

import (
	"context"

	"github.com/avc/storefront-orders/internal/cache"
	"github.com/avc/storefront-orders/internal/config"
	"github.com/avc/storefront-orders/internal/handlers"
	"github.com/avc/storefront-orders/internal/payment"
	"github.com/avc/storefront-orders/internal/repository/postgres"
	"github.com/avc/storefront-orders/internal/service"
	"github.com/avc/storefront-orders/internal/utils/jwt"
	"github.com/avc/storefront-orders/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// repositories содержит все репозитории приложения
type repositories struct {
	user      *postgres.UserRepository
	address   *postgres.AddressRepository
	catalog   *postgres.CatalogRepository
	inventory *postgres.InventoryRepository
	order     *postgres.OrderRepository
	payment   *postgres.PaymentRepository
	uow       *postgres.UnitOfWork
}

// services содержит все сервисы приложения
type services struct {
	order      *service.OrderService
	reconciler *service.Reconciler
	offers     *service.OfferService
}

// handlerSet содержит все хендлеры приложения
type handlerSet struct {
	orders  *handlers.OrdersHandler
	webhook *handlers.WebhookHandler
	health  *handlers.HealthHandler
}

// dependencies содержит все зависимости приложения
type dependencies struct {
	repos       *repositories
	services    *services
	handlers    *handlerSet
	jwtManager  *jwt.Manager
	idempotency *cache.IdempotencyStore
	rateLimiter *cache.RateLimiter
	workerPool  *worker.Pool
}

// initDependencies создает все зависимости приложения
func initDependencies(cfg *config.Config, dbPool *pgxpool.Pool, redisClient *redis.Client, logger *zap.Logger) *dependencies {
	// Создание репозиториев
	repos := &repositories{
		user:      postgres.NewUserRepository(dbPool),
		address:   postgres.NewAddressRepository(dbPool),
		catalog:   postgres.NewCatalogRepository(dbPool),
		inventory: postgres.NewInventoryRepository(dbPool),
		order:     postgres.NewOrderRepository(dbPool),
		payment:   postgres.NewPaymentRepository(dbPool),
		uow:       postgres.NewUnitOfWork(dbPool),
	}

	// Внешние системы
	jwtManager := jwt.NewManager(cfg.JWTSecret, cfg.JWTTokenTTL)
	provider := payment.NewStripeProvider(payment.Config{
		SecretKey:  cfg.StripeSecretKey,
		Currency:   cfg.StripeCurrency,
		Timeout:    cfg.StripeTimeout,
		MaxRetries: cfg.StripeMaxRetries,
	}, logger)
	webhookParser := payment.NewWebhookParser(cfg.StripeWebhookSecret)

	// Создание сервисов
	validator := service.NewValidator(repos.address, repos.catalog, repos.inventory, service.ValidatorConfig{
		Tolerance:              cfg.AmountTolerance,
		MaxOrderAmount:         cfg.MaxOrderAmount,
		FreeDeliveryThreshold:  cfg.FreeDeliveryThreshold,
		StandardDeliveryCharge: cfg.StandardDeliveryCharge,
	}, nil)
	svcs := &services{
		order: service.NewOrderService(repos.user, repos.order, repos.uow, provider, validator, service.CheckoutConfig{
			SuccessURL: cfg.CheckoutSuccessURL,
			CancelURL:  cfg.CheckoutCancelURL,
		}),
		reconciler: service.NewReconciler(repos.user, repos.order, repos.payment, repos.uow, provider, cfg.AmountTolerance, nil),
		offers:     service.NewOfferService(repos.catalog, nil),
	}

	// Создание handlers
	hdlrs := &handlerSet{
		orders:  handlers.NewOrdersHandler(svcs.order, svcs.reconciler, logger),
		webhook: handlers.NewWebhookHandler(webhookParser, svcs.reconciler, logger),
		health: handlers.NewHealthHandler(map[string]handlers.CheckFunc{
			"database": dbPool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		}, logger),
	}

	// Создание worker pool
	workerPool := worker.NewPool(worker.Config{
		Workers:           cfg.WorkerPoolSize,
		QueueSize:         cfg.WorkerQueueSize,
		ScanInterval:      cfg.WorkerScanInterval,
		MinPendingAge:     cfg.MinPendingAge,
		OfferSyncInterval: cfg.OfferSyncInterval,
	}, repos.order, svcs.reconciler, svcs.offers, logger)

	return &dependencies{
		repos:       repos,
		services:    svcs,
		handlers:    hdlrs,
		jwtManager:  jwtManager,
		idempotency: cache.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL),
		rateLimiter: cache.NewRateLimiter(redisClient, cfg.PlaceOrderRateLimit, cfg.PlaceOrderRateWindow),
		workerPool:  workerPool,
	}
}
