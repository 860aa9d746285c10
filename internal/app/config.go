package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix — префикс переменных окружения сервиса.
const EnvPrefix = "COMMANDES"

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
// Значения по умолчанию задаёт DefaultConfig, переменные окружения их переопределяют.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
	GRPCAddr    string `envconfig:"GRPC_ADDR"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE"`

	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic    string   `envconfig:"KAFKA_TOPIC"`
	KafkaDLQTopic string   `envconfig:"KAFKA_DLQ_TOPIC"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY"`

	IdempotencyTTL              time.Duration `envconfig:"IDEMPOTENCY_TTL"`
	IdempotencyCleanupInterval  time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL"`
	IdempotencyCleanupBatchSize int           `envconfig:"IDEMPOTENCY_CLEANUP_BATCH_SIZE"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`
}

// DefaultConfig возвращает конфигурацию для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		GRPCAddr:    ":50051",
		LogLevel:    "info",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaTopic:    "commandes.client.events",
		KafkaDLQTopic: "commandes.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		RateLimitRPS:   50,
		RateLimitBurst: 100,

		ShutdownTimeout: 5 * time.Second,
	}
}

// LoadConfig читает необязательный .env и переменные окружения с префиксом COMMANDES_.
// Переменные процесса имеют приоритет над файлом.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.PostgresDSN = strings.TrimSpace(c.PostgresDSN)

	brokers := c.KafkaBrokers[:0]
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.KafkaBrokers = brokers
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox batch size must be > 0"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox max attempts must be > 0"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be > 0"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be > 0"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("rate limit rps must be >= 0"))
	}

	return errors.Join(errs...)
}
