package app

import (
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/messaging/kafka"
)

const (
	// StorageDriverMemory хранит всё в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres использует PostgreSQL.
	StorageDriverPostgres = "postgres"
)

const (
	// StatusPolicyUnconditional разрешает любую смену статуса заказа.
	StatusPolicyUnconditional = "unconditional"
	// StatusPolicyGuarded включает таблицу переходов и compare-and-set.
	StatusPolicyGuarded = "guarded"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	JWTSecret    string
	SessionTTL   time.Duration
	StatusPolicy string
	SeedDemo     bool

	KafkaBrokers []string
	KafkaTopic   string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		JWTSecret:    "dev-secret",
		SessionTTL:   24 * time.Hour,
		StatusPolicy: StatusPolicyUnconditional,

		KafkaTopic: kafka.TopicOrderEvents,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,
		OutboxMaxPending:   1000,

		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// guarded сообщает, включена ли таблица переходов статусов.
func (c Config) guarded() bool {
	return c.StatusPolicy == StatusPolicyGuarded
}
