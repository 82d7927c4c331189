package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
	"github.com/vladislavdragonenkov/orders-service/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders-service/internal/service/cart"
	"github.com/vladislavdragonenkov/orders-service/internal/service/email"
	"github.com/vladislavdragonenkov/orders-service/internal/service/product"
	"github.com/vladislavdragonenkov/orders-service/internal/storage/memory"
	"github.com/vladislavdragonenkov/orders-service/internal/storage/postgres"
)

// Dependencies содержит собранные зависимости сервиса.
type Dependencies struct {
	Orders      domain.OrderRepository
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository

	Carts    domain.CartService
	Products domain.ProductService
	Emails   domain.EmailService

	// Store не nil только при работе поверх PostgreSQL.
	Store *postgres.Store
	// Producer не nil только при настроенном Kafka.
	Producer *kafka.Producer

	Logger *log.Entry
}

// NewDependencies собирает зависимости по конфигурации: PostgreSQL при
// заданном DSN (иначе in-memory), реальные HTTP-клиенты при заданных
// base-URL (иначе mock-реализации), Kafka при заданных brokers.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.MigrateOnStart {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.Store = store
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)
		logger.Info("postgres storage initialized")
	} else {
		deps.Orders = memory.NewOrderRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Idempotency = memory.NewIdempotencyRepository()
		logger.Warn("running with in-memory storage, data will not survive restarts")
	}

	if cfg.CartBaseURL != "" {
		deps.Carts = cart.NewClient(cfg.CartBaseURL, cfg.ClientTimeout)
	} else {
		deps.Carts = cart.NewMockService()
		logger.Warn("cart service url is not set, using mock cart service")
	}
	if cfg.ProductBaseURL != "" {
		deps.Products = product.NewClient(cfg.ProductBaseURL, cfg.ClientTimeout)
	} else {
		deps.Products = product.NewMockService(nil)
		logger.Warn("product service url is not set, using mock product service")
	}
	if cfg.EmailBaseURL != "" {
		deps.Emails = email.NewClient(cfg.EmailBaseURL, cfg.ClientTimeout)
	} else {
		deps.Emails = email.NewMockService()
		logger.Warn("email service url is not set, using mock email service")
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, events will stay in outbox")
		} else {
			deps.Producer = producer
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		}
	}

	return deps, nil
}

// Close освобождает ресурсы в обратном порядке инициализации.
func (d *Dependencies) Close() {
	if d.Producer != nil {
		if err := d.Producer.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close kafka producer")
		} else {
			d.Logger.Info("kafka producer closed")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
