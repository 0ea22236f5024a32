package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"corebanking/internal/infrastructure/database"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	LockDriverLocal = "local"
	LockDriverRedis = "redis"
)

type DBConfig struct {
	Host     string `env:"LEDGER_DB_HOST" envDefault:"localhost"`
	Port     int    `env:"LEDGER_DB_PORT" envDefault:"5432"`
	User     string `env:"LEDGER_DB_USER" envDefault:"user"`
	Password string `env:"LEDGER_DB_PASSWORD" envDefault:"password"`
	Name     string `env:"LEDGER_DB_NAME" envDefault:"ledger_db"`
	SSLMode  string `env:"LEDGER_DB_SSLMODE" envDefault:"disable"`
}

type Config struct {
	HTTPPort           int           `env:"HTTP_PORT" envDefault:"8082"`
	HTTPRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	StoreDriver    string `env:"STORE_DRIVER" envDefault:"postgres"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"file:///app/migrations"`
	DBConfig       DBConfig

	KafkaEnabled       bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers       []string `env:"KAFKA_BROKER_URL" envDefault:"localhost:9092" envSeparator:","`
	KafkaCommandsTopic string   `env:"KAFKA_COMMANDS_TOPIC" envDefault:"ledger_commands"`
	KafkaEventsTopic   string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"ledger_events"`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"corebanking-ledger"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxPollTimeout  time.Duration `env:"OUTBOX_POLL_TIMEOUT" envDefault:"500ms"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"10"`

	LockDriver  string        `env:"LOCK_DRIVER" envDefault:"local"`
	LockTimeout time.Duration `env:"LOCK_TIMEOUT" envDefault:"2s"`
	LockExpiry  time.Duration `env:"LOCK_EXPIRY" envDefault:"8s"`
	RedisAddr   string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	LedgerMaxAttempts      int             `env:"LEDGER_MAX_ATTEMPTS" envDefault:"3"`
	CheckingOverdraftLimit decimal.Decimal `env:"CHECKING_OVERDRAFT_LIMIT" envDefault:"500.00"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver))
	}
	switch c.LockDriver {
	case LockDriverLocal, LockDriverRedis:
	default:
		errs = append(errs, fmt.Errorf("LOCK_DRIVER must be %q or %q, got %q", LockDriverLocal, LockDriverRedis, c.LockDriver))
	}
	if c.LedgerMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("LEDGER_MAX_ATTEMPTS must be at least 1, got %d", c.LedgerMaxAttempts))
	}
	if c.CheckingOverdraftLimit.IsNegative() {
		errs = append(errs, fmt.Errorf("CHECKING_OVERDRAFT_LIMIT cannot be negative, got %s", c.CheckingOverdraftLimit))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("LOCK_TIMEOUT must be positive"))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKER_URL is required when Kafka is enabled"))
	}
	return errors.Join(errs...)
}

func (c *Config) Database() database.DBConfig {
	return database.DBConfig{
		Host:     c.DBConfig.Host,
		Port:     c.DBConfig.Port,
		User:     c.DBConfig.User,
		Password: c.DBConfig.Password,
		DBName:   c.DBConfig.Name,
		SSLMode:  c.DBConfig.SSLMode,
	}
}
