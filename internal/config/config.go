// Package config загружает настройки сервиса из значений по умолчанию,
// необязательного файла и переменных окружения с префиксом STOREFRONT_.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/retry"
)

const (
	// Префикс переменных окружения.
	EnvPrefix = "STOREFRONT"
	// ConfigFileEnv указывает путь к конфигурационному файлу.
	ConfigFileEnv = "STOREFRONT_CONFIG"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает все настройки запуска сервиса.
type Config struct {
	GRPC         GRPCConfig         `mapstructure:"grpc"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Log          LogConfig          `mapstructure:"log"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Allocation   AllocationConfig   `mapstructure:"allocation"`
	CustomerCode CustomerCodeConfig `mapstructure:"customer_code"`
	Outbox       OutboxConfig       `mapstructure:"outbox"`
	Idempotency  IdempotencyConfig  `mapstructure:"idempotency"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// HTTPConfig — admin API, метрики и health checks.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=memory postgres"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"gte=0"`
}

// KafkaConfig — публикация outbox. Пустой Brokers отключает publisher.
type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	ClientID   string   `mapstructure:"client_id"`
	Topic      string   `mapstructure:"topic" validate:"required"`
	DLQTopic   string   `mapstructure:"dlq_topic" validate:"required"`
	MaxRetries int      `mapstructure:"max_retries" validate:"gte=0"`
}

// AllocationConfig задаёт бюджет повторов при гонке за номер.
type AllocationConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"gte=1"`
	InitialDelay time.Duration `mapstructure:"initial_delay" validate:"gte=0"`
	MaxDelay     time.Duration `mapstructure:"max_delay" validate:"gte=0"`
}

type CustomerCodeConfig struct {
	// Start — отметка до выдачи первого кода; первый код равен Start+1.
	Start      int64 `mapstructure:"start" validate:"gte=0"`
	BatchLimit int   `mapstructure:"batch_limit" validate:"gte=0"`
}

type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	BatchSize    int           `mapstructure:"batch_size" validate:"gt=0"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"gt=0"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	// MaxPendingAge — после этого возраста непубликованного события /healthz отдаёт degraded.
	MaxPendingAge time.Duration `mapstructure:"max_pending_age" validate:"gte=0"`
}

type IdempotencyConfig struct {
	TTL              time.Duration `mapstructure:"ttl" validate:"gt=0"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
	CleanupBatchSize int           `mapstructure:"cleanup_batch_size" validate:"gt=0"`
}

// Default возвращает конфигурацию для локального запуска.
func Default() Config {
	return Config{
		GRPC:    GRPCConfig{Addr: ":50051"},
		HTTP:    HTTPConfig{Addr: ":9090"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Storage: StorageConfig{Driver: StorageDriverMemory},
		Postgres: PostgresConfig{
			AutoMigrate:     true,
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ClientID:   "storefront-ids",
			Topic:      "storefront.order.events",
			DLQTopic:   "storefront.dlq",
			MaxRetries: 5,
		},
		Allocation: AllocationConfig{
			MaxAttempts:  5,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
		},
		CustomerCode: CustomerCodeConfig{
			Start: domain.DefaultCustomerCodeStart,
		},
		Outbox: OutboxConfig{
			PollInterval:  time.Second,
			BatchSize:     100,
			MaxAttempts:   3,
			RetryDelay:    50 * time.Millisecond,
			MaxPendingAge: 5 * time.Minute,
		},
		Idempotency: IdempotencyConfig{
			TTL:              24 * time.Hour,
			CleanupInterval:  10 * time.Minute,
			CleanupBatchSize: 500,
		},
	}
}

// Load читает конфигурацию: значения по умолчанию, затем файл из
// STOREFRONT_CONFIG (если задан), затем переменные окружения.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return LoadFrom(v, v.GetString("config"))
}

// LoadFrom читает конфигурацию через готовый экземпляр viper; path может быть пустым.
func LoadFrom(v *viper.Viper, path string) (Config, error) {
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет теги и межполевые зависимости.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Driver == StorageDriverPostgres && strings.TrimSpace(c.Postgres.DSN) == "" {
		return errors.New("invalid config: postgres.dsn is required for postgres storage")
	}
	if c.Allocation.MaxDelay > 0 && c.Allocation.MaxDelay < c.Allocation.InitialDelay {
		return errors.New("invalid config: allocation.max_delay must not be less than allocation.initial_delay")
	}
	return nil
}

// Retry переводит настройки аллокации в политику повторов.
func (c AllocationConfig) Retry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = c.MaxAttempts
	cfg.InitialDelay = c.InitialDelay
	cfg.MaxDelay = c.MaxDelay
	return cfg
}

// KafkaEnabled сообщает, настроена ли публикация outbox.
func (c Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// Каждый ключ регистрируется явно: без этого AutomaticEnv не попадает в Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("grpc.addr", d.GRPC.Addr)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("postgres.dsn", d.Postgres.DSN)
	v.SetDefault("postgres.auto_migrate", d.Postgres.AutoMigrate)
	v.SetDefault("postgres.max_open_conns", d.Postgres.MaxOpenConns)
	v.SetDefault("postgres.max_idle_conns", d.Postgres.MaxIdleConns)
	v.SetDefault("postgres.conn_max_lifetime", d.Postgres.ConnMaxLifetime)
	v.SetDefault("postgres.conn_max_idle_time", d.Postgres.ConnMaxIdleTime)
	v.SetDefault("kafka.brokers", append([]string{}, d.Kafka.Brokers...))
	v.SetDefault("kafka.client_id", d.Kafka.ClientID)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.dlq_topic", d.Kafka.DLQTopic)
	v.SetDefault("kafka.max_retries", d.Kafka.MaxRetries)
	v.SetDefault("allocation.max_attempts", d.Allocation.MaxAttempts)
	v.SetDefault("allocation.initial_delay", d.Allocation.InitialDelay)
	v.SetDefault("allocation.max_delay", d.Allocation.MaxDelay)
	v.SetDefault("customer_code.start", d.CustomerCode.Start)
	v.SetDefault("customer_code.batch_limit", d.CustomerCode.BatchLimit)
	v.SetDefault("outbox.poll_interval", d.Outbox.PollInterval)
	v.SetDefault("outbox.batch_size", d.Outbox.BatchSize)
	v.SetDefault("outbox.max_attempts", d.Outbox.MaxAttempts)
	v.SetDefault("outbox.retry_delay", d.Outbox.RetryDelay)
	v.SetDefault("outbox.max_pending_age", d.Outbox.MaxPendingAge)
	v.SetDefault("idempotency.ttl", d.Idempotency.TTL)
	v.SetDefault("idempotency.cleanup_interval", d.Idempotency.CleanupInterval)
	v.SetDefault("idempotency.cleanup_batch_size", d.Idempotency.CleanupBatchSize)
}

// splitList разбирает "a,b" из переменной окружения и убирает пустые элементы.
func splitList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
