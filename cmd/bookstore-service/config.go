package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/app"
)

const (
	envHTTPAddr                    = "BOOKSTORE_HTTP_ADDR"
	envGRPCAddr                    = "BOOKSTORE_GRPC_ADDR"
	envMetricsAddr                 = "BOOKSTORE_METRICS_ADDR"
	envStorageDriver               = "BOOKSTORE_STORAGE_DRIVER"
	envPostgresDSN                 = "BOOKSTORE_POSTGRES_DSN"
	envPostgresAutoMigrate         = "BOOKSTORE_POSTGRES_AUTO_MIGRATE"
	envJWTSecret                   = "BOOKSTORE_JWT_SECRET"
	envSessionTTL                  = "BOOKSTORE_SESSION_TTL"
	envStatusPolicy                = "BOOKSTORE_STATUS_POLICY"
	envSeedDemo                    = "BOOKSTORE_SEED_DEMO"
	envKafkaBrokers                = "BOOKSTORE_KAFKA_BROKERS"
	envKafkaTopic                  = "BOOKSTORE_KAFKA_TOPIC"
	envOutboxPollInterval          = "BOOKSTORE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "BOOKSTORE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "BOOKSTORE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "BOOKSTORE_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending            = "BOOKSTORE_OUTBOX_MAX_PENDING"
	envIdempotencyCleanupInterval  = "BOOKSTORE_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "BOOKSTORE_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
)

type envLookup func(key string) (string, bool)

// readConfig читает конфигурацию из окружения процесса.
func readConfig() (app.Config, []string) {
	return readConfigFromEnv(os.LookupEnv)
}

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректное значение не прерывает запуск: остаётся значение по умолчанию,
// а в warnings попадает описание проблемы.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envJWTSecret, &cfg.JWTSecret)
	duration(envSessionTTL, &cfg.SessionTTL, positiveDuration, "must be > 0")
	boolean(envSeedDemo, &cfg.SeedDemo)

	if v, ok := lookup(envStatusPolicy); ok && strings.TrimSpace(v) != "" {
		switch policy := strings.ToLower(strings.TrimSpace(v)); policy {
		case app.StatusPolicyUnconditional, app.StatusPolicyGuarded:
			cfg.StatusPolicy = policy
		default:
			warnings = append(warnings, fmt.Sprintf("%s: unknown policy %q", envStatusPolicy, v))
		}
	}

	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	str(envKafkaTopic, &cfg.KafkaTopic)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}
