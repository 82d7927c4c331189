package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-service/internal/health"
	"github.com/vladislavdragonenkov/orders-service/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders-service/internal/metrics"
	"github.com/vladislavdragonenkov/orders-service/internal/service/checkout"
	"github.com/vladislavdragonenkov/orders-service/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orders-service/internal/service/outbox"
	"github.com/vladislavdragonenkov/orders-service/internal/service/rest"
	"github.com/vladislavdragonenkov/orders-service/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает зависимости и запускает сервис: REST API, сервер метрик,
// outbox-воркер и очистку idempotency ключей. Блокируется до отмены ctx
// или фатальной ошибки одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.WithField("version", version.String()).Info("starting orders service")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	orchestrator := checkout.New(
		deps.Orders,
		deps.Outbox,
		deps.Carts,
		deps.Products,
		deps.Emails,
		logger.WithField("layer", "checkout"),
	)

	handler := rest.NewOrderHandler(
		deps.Orders,
		orchestrator,
		deps.Idempotency,
		[]byte(cfg.JWTSecret),
		logger.WithField("layer", "rest"),
	)

	healthRegistry := newHealthRegistry(deps)

	router := rest.NewRouter(rest.RouterConfig{
		Handler: handler,
		Secret:  []byte(cfg.JWTSecret),
		Logger:  logger.WithField("layer", "auth"),
		Metrics: metrics.NewHTTPMetrics(),
		Health:  healthRegistry.GinHandler(),
	})

	apiServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	metricsServer := newMetricsServer(cfg.MetricsAddr, healthRegistry)

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var workers sync.WaitGroup
	startWorkers(workersCtx, &workers, cfg, deps)

	errCh := make(chan error, 2)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("REST API listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.WithField("addr", cfg.MetricsAddr).Info("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		runErr = ctx.Err()
	case err := <-errCh:
		logger.WithError(err).Error("server failed")
		runErr = err
	}

	shutdownServer(apiServer, logger.WithField("server", "api"))
	shutdownServer(metricsServer, logger.WithField("server", "metrics"))

	stopWorkers()
	workers.Wait()
	logger.Info("background workers stopped")

	return runErr
}

// startWorkers запускает фоновые процессы: публикацию outbox-событий (только
// при наличии Kafka) и периодическую очистку idempotency ключей.
func startWorkers(ctx context.Context, wg *sync.WaitGroup, cfg Config, deps *Dependencies) {
	if deps.Producer != nil {
		publisher := kafka.NewOutboxPublisher(deps.Producer, kafka.TopicOrderEvents)
		worker := outbox.NewWorker(
			deps.Outbox,
			publisher,
			outbox.WithLogger(deps.Logger.WithField("layer", "outbox")),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(deps.Producer, kafka.TopicDeadLetterQueue)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	} else {
		deps.Logger.Warn("kafka is not configured, outbox events will not be published")
	}

	cleanup := idempotency.NewCleanupWorker(
		deps.Idempotency,
		idempotency.WithLogger(deps.Logger.WithField("layer", "idempotency")),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanup.Run(ctx)
	}()
}

// newHealthRegistry регистрирует проверки внешних зависимостей сервиса.
func newHealthRegistry(deps *Dependencies) *health.Registry {
	registry := health.NewRegistry(version.Version())

	if deps.Store != nil {
		store := deps.Store
		registry.Register("postgres", func(ctx context.Context) error {
			return store.Ping(ctx)
		})
	}
	return registry
}

// newMetricsServer собирает ops-сервер: /metrics, liveness и readiness.
// Readiness гоняет реальные проверки, liveness отвечает всегда.
func newMetricsServer(addr string, registry *health.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/readyz", registry.HTTPHandler())
	mux.Handle("/healthz", registry.HTTPHandler())
	return &http.Server{Addr: addr, Handler: mux}
}

func shutdownServer(srv *http.Server, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("server shutdown with error")
	}
}
