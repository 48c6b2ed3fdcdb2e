// Package initializer builds the process dependencies from configuration.
package initializer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/amirasaad/topupledger/infra"
	infra_cache "github.com/amirasaad/topupledger/infra/cache"
	infra_eventbus "github.com/amirasaad/topupledger/infra/eventbus"
	"github.com/amirasaad/topupledger/infra/provider/ethcontract"
	"github.com/amirasaad/topupledger/infra/provider/simcontract"
	"github.com/amirasaad/topupledger/infra/provider/stripegateway"
	"github.com/amirasaad/topupledger/infra/provider/visasim"
	infra_repository "github.com/amirasaad/topupledger/infra/repository"
	"github.com/amirasaad/topupledger/pkg/app"
	"github.com/amirasaad/topupledger/pkg/cache"
	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"github.com/amirasaad/topupledger/pkg/provider/onchain"
	"github.com/amirasaad/topupledger/pkg/provider/payment"
)

// InitializeDependencies initializes all the application dependencies
func InitializeDependencies(cfg *config.App) (
	deps *app.Deps,
	err error,
) {
	deps = &app.Deps{}
	logger := setupLogger(cfg.Log)
	deps.Logger = logger
	ctx := context.Background()

	// Initialize database
	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return nil, err
	}
	if err = infra_repository.Migrate(db, cfg.DB.MigrationsPath); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	deps.Closers = append(deps.Closers, sqlDB)
	deps.PingDB = sqlDB.PingContext
	deps.Uow = infra_repository.NewUoW(db)
	deps.Chain = infra_repository.NewChainSnapshot(db)

	// Initialize event bus
	deps.EventBus, err = initEventBus(cfg, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := deps.EventBus.(io.Closer); ok {
		deps.Closers = append(deps.Closers, c)
	}

	deps.Contract, err = initContract(ctx, cfg.Chain, deps.EventBus, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := deps.Contract.(*ethcontract.Contract); ok {
		deps.Closers = append(deps.Closers, closerFunc(c.Close))
	}

	deps.Gateway, err = initGateway(cfg.PaymentProviders, deps.EventBus, logger)
	if err != nil {
		return nil, err
	}

	deps.RateLimitStore, err = initRateLimitStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	if deps.RateLimitStore != nil {
		deps.Closers = append(deps.Closers, deps.RateLimitStore)
	}

	logger.Info("✅ Dependencies initialized",
		"db_driver", cfg.DB.Driver,
		"event_bus", fmt.Sprintf("%T", deps.EventBus),
		"chain_driver", cfg.Chain.Driver,
		"payment_provider", deps.Gateway.Name(),
	)
	return deps, nil
}

// initEventBus picks the bus named by EVENT_BUS_DRIVER. A broker that cannot
// be reached at startup degrades to the in-process async bus.
func initEventBus(cfg *config.App, logger *slog.Logger) (eventbus.Bus, error) {
	driver := ""
	if cfg.EventBus != nil {
		driver = cfg.EventBus.Driver
	}
	switch driver {
	case "", "memory":
		return infra_eventbus.NewWithMemoryAsync(logger), nil
	case "redis":
		if cfg.Redis == nil || cfg.Redis.URL == "" {
			return nil, fmt.Errorf("EVENT_BUS_DRIVER=redis requires REDIS_URL")
		}
		bus, err := infra_eventbus.NewWithRedis(cfg.Redis.URL, logger, nil)
		if err != nil {
			logger.Error("❌ Redis event bus unavailable, falling back to memory", "error", err)
			return infra_eventbus.NewWithMemoryAsync(logger), nil
		}
		return bus, nil
	case "kafka":
		if cfg.Kafka == nil || cfg.Kafka.Brokers == "" {
			return nil, fmt.Errorf("EVENT_BUS_DRIVER=kafka requires KAFKA_BROKERS")
		}
		kc := infra_eventbus.DefaultKafkaEventBusConfig()
		kc.GroupID = cfg.Kafka.GroupID
		kc.TopicPrefix = cfg.Kafka.TopicPrefix
		kc.SASLUsername = cfg.Kafka.SASLUsername
		kc.SASLPassword = cfg.Kafka.SASLPassword
		kc.TLSEnabled = cfg.Kafka.EnableTLS
		kc.TLSSkipVerify = cfg.Kafka.SkipTLSVerify
		bus, err := infra_eventbus.NewWithKafka(cfg.Kafka.Brokers, logger, kc)
		if err != nil {
			logger.Error("❌ Kafka event bus unavailable, falling back to memory", "error", err)
			return infra_eventbus.NewWithMemoryAsync(logger), nil
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported event bus driver %q", driver)
	}
}

// initRateLimitStore returns nil when the limiter keeps its own counters.
// An unreachable Redis degrades to per-process counters.
func initRateLimitStore(cfg *config.App, logger *slog.Logger) (cache.Store, error) {
	if cfg.RateLimit == nil {
		return nil, nil
	}
	switch cfg.RateLimit.Storage {
	case "", "memory":
		return infra_cache.NewMemoryStore(cfg.RateLimit.Window), nil
	case "redis":
		store, err := infra_cache.NewRedisStore(cfg.Redis, "ratelimit:", logger)
		if err != nil {
			logger.Error("❌ Redis rate limit store unavailable, counting per process", "error", err)
			return infra_cache.NewMemoryStore(cfg.RateLimit.Window), nil
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported rate limit storage %q", cfg.RateLimit.Storage)
	}
}

func initContract(ctx context.Context, cfg *config.Chain, bus eventbus.Bus, logger *slog.Logger) (onchain.Contract, error) {
	switch cfg.Driver {
	case "", "sim":
		return simcontract.New(bus, cfg, logger), nil
	case "eth":
		return ethcontract.Dial(ctx, cfg, bus, logger)
	default:
		return nil, fmt.Errorf("unsupported chain driver %q", cfg.Driver)
	}
}

func initGateway(cfg *config.PaymentProviders, bus eventbus.Bus, logger *slog.Logger) (payment.Gateway, error) {
	switch cfg.Driver {
	case "", "visa_sim":
		return visasim.New(bus, cfg.VisaSim, logger), nil
	case "stripe":
		if cfg.Stripe == nil || cfg.Stripe.ApiKey == "" {
			return nil, fmt.Errorf("PAYMENT_PROVIDER_DRIVER=stripe requires PAYMENT_PROVIDER_STRIPE_API_KEY")
		}
		return stripegateway.New(bus, cfg.Stripe, logger), nil
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.Driver)
	}
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
