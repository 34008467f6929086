package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/bookstore/internal/health"
	"github.com/vladislavdragonenkov/bookstore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
	"github.com/vladislavdragonenkov/bookstore/internal/service/cart"
	"github.com/vladislavdragonenkov/bookstore/internal/service/checkout"
	"github.com/vladislavdragonenkov/bookstore/internal/service/httpapi"
	"github.com/vladislavdragonenkov/bookstore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/bookstore/internal/service/ledger"
	"github.com/vladislavdragonenkov/bookstore/internal/service/outbox"
	"github.com/vladislavdragonenkov/bookstore/internal/version"
)

const (
	shutdownTimeout    = 5 * time.Second
	healthSyncInterval = 5 * time.Second
	cartSweepTarget    = "carts"
)

// Run поднимает HTTP API, gRPC health, метрики и фоновые воркеры и блокируется
// до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer closeStorage(deps, logger)

	if cfg.SeedDemo {
		if err := seedDemo(ctx, deps, logger); err != nil {
			return err
		}
	}

	apiServer := newAPIServer(cfg, deps, logger)

	// Producer закрывается после остановки воркеров, поэтому его defer объявлен раньше.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	if kafkaProducer != nil {
		worker := newOutboxWorker(cfg, deps, kafkaProducer, logger)
		startWorker(workerCtx, &workers, worker.Run)
	} else {
		logger.Info("kafka brokers are not configured, outbox events stay pending")
	}

	cleanup := idempotency.NewCleanupWorker(
		idempotency.WithLogger(logger.WithField("layer", "cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithSweep(idempotency.TargetKeys, idempotency.ExpiredKeys(deps.idempotencyRepo, cfg.IdempotencyCleanupBatchSize)),
		idempotency.WithSweep(cartSweepTarget, deps.carts.DeleteExpired),
	)
	startWorker(workerCtx, &workers, cleanup.Run)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPending))

	grpcServer, healthServer := newOpsGRPCServer(logger)
	startWorker(workerCtx, &workers, func(ctx context.Context) {
		syncGRPCHealth(ctx, healthServer, healthHandler, healthSyncInterval)
	})

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		errCh <- apiServer.Listen(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		shutdownAPI(apiServer, logger)
		stopGRPC(grpcServer, healthServer, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownAPI(apiServer, logger)
		stopGRPC(grpcServer, healthServer, logger)
		shutdownHTTP(metricsSrv, logger)
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newAPIServer собирает сервисы предметной области и HTTP API поверх них.
func newAPIServer(cfg Config, deps *runtimeDependencies, logger *log.Entry) *httpapi.Server {
	checkoutMetrics := metrics.NewCheckoutMetrics()

	engine := checkout.NewEngine(checkout.Repositories{
		Books:     deps.books,
		Customers: deps.customers,
		Employees: deps.employees,
		Orders:    deps.orders,
		Commits:   deps.commits,
	},
		checkout.WithLogger(logger.WithField("layer", "checkout")),
		checkout.WithMetrics(checkoutMetrics),
		checkout.WithOutbox(deps.outboxRepo),
		checkout.WithHistory(deps.historyRepo),
	)

	ledgerOptions := []ledger.Option{
		ledger.WithLogger(logger.WithField("layer", "ledger")),
		ledger.WithMetrics(checkoutMetrics),
		ledger.WithOutbox(deps.outboxRepo),
		ledger.WithHistory(deps.historyRepo),
	}
	if cfg.guarded() {
		ledgerOptions = append(ledgerOptions, ledger.WithGuardedTransitions())
	}

	httpLogger := logger.WithField("layer", "http")
	handler := httpapi.NewHandler(httpapi.Services{
		Books:     deps.books,
		Customers: deps.customers,
		Cart: cart.NewService(deps.carts, deps.books,
			cart.WithLogger(logger.WithField("layer", "cart")),
			cart.WithMetrics(checkoutMetrics),
		),
		Checkout: engine,
		Ledger:   ledger.NewService(deps.orders, ledgerOptions...),
		Guard: idempotency.NewGuard(deps.idempotencyRepo,
			idempotency.WithGuardLogger(logger.WithField("layer", "idempotency")),
		),
	}, httpLogger)

	return httpapi.NewServer(handler, httpapi.Config{
		JWTSecret:  cfg.JWTSecret,
		SessionTTL: cfg.SessionTTL,
	}, httpLogger)
}

func newOutboxWorker(cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) *outbox.Worker {
	return outbox.NewWorker(
		deps.outboxRepo,
		kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
}

// newOpsGRPCServer создаёт gRPC-сервер только с health и reflection.
func newOpsGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

// syncGRPCHealth переносит сводный статус health-проверок в gRPC health.
// degraded остаётся SERVING: заказы принимаются, страдает только доставка событий.
func syncGRPCHealth(ctx context.Context, server *health.Server, checks *healthcheck.Handler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status := healthpb.HealthCheckResponse_SERVING
		if checks.Report(ctx).Status == healthcheck.StatusUnhealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		server.SetServingStatus("", status)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func startWorker(ctx context.Context, wg *sync.WaitGroup, run func(context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		run(ctx)
	}()
}

// startMetricsServer запускает HTTP-обработчики /metrics и health-проверок.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}

func shutdownAPI(srv *httpapi.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("http api shutdown with error")
	}
}

func stopGRPC(server *grpc.Server, healthServer *health.Server, logger *log.Entry) {
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

func closeStorage(deps *runtimeDependencies, logger *log.Entry) {
	if deps == nil || deps.closeFn == nil {
		return
	}
	if err := deps.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}
