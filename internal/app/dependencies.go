package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/bookstore/internal/health"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/postgres"
)

// sweepableCartStore — хранилище корзин, из которого cleanup worker удаляет истёкшие сессии.
type sweepableCartStore interface {
	domain.CartStore
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// runtimeDependencies — репозитории выбранного storage driver.
type runtimeDependencies struct {
	books           domain.BookRepository
	customers       domain.CustomerRepository
	employees       domain.EmployeeRepository
	orders          domain.OrderRepository
	commits         domain.CheckoutStore
	carts           sweepableCartStore
	outboxRepo      domain.OutboxRepository
	historyRepo     domain.HistoryRepository
	idempotencyRepo domain.IdempotencyRepository

	storageChecker healthcheck.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		return newMemoryDependencies(cfg), nil
	case StorageDriverPostgres:
		return newPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func newMemoryDependencies(cfg Config) *runtimeDependencies {
	store := memory.NewStore()
	return &runtimeDependencies{
		books:           memory.NewBookRepository(store),
		customers:       memory.NewCustomerRepository(store),
		employees:       memory.NewEmployeeRepository(store),
		orders:          memory.NewOrderRepository(store),
		commits:         memory.NewCheckoutStore(store),
		carts:           memory.NewCartStore(cfg.SessionTTL),
		outboxRepo:      memory.NewOutboxRepository(),
		historyRepo:     memory.NewHistoryRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		storageChecker: healthcheck.NewSimpleChecker("storage", func(context.Context) error {
			return nil
		}),
	}
}

func newPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required when storage driver is %q", StorageDriverPostgres)
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	return &runtimeDependencies{
		books:           postgres.NewBookRepository(store),
		customers:       postgres.NewCustomerRepository(store),
		employees:       postgres.NewEmployeeRepository(store),
		orders:          postgres.NewOrderRepository(store),
		commits:         postgres.NewCheckoutStore(store),
		carts:           postgres.NewCartStore(store, cfg.SessionTTL),
		outboxRepo:      postgres.NewOutboxRepository(store),
		historyRepo:     postgres.NewHistoryRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		storageChecker:  healthcheck.NewSimpleChecker("storage", store.Ping),
		closeFn:         store.Close,
	}, nil
}
