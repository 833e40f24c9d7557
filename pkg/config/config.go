// Package config loads service settings from the environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	OrderStorePostgres = "postgres"
	OrderStoreMemory   = "memory"
)

type Config struct {
	HTTPPort           string        `envconfig:"HTTP_PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxRequestBodySize int64         `envconfig:"MAX_REQUEST_BODY_SIZE" default:"1048576"`
	AdminIdentity      string        `envconfig:"ADMIN_IDENTITY" default:"admin@gmail.com"`

	OrderStore       string `envconfig:"ORDER_STORE" default:"postgres"`
	DBHost           string `envconfig:"DB_HOST" default:"localhost"`
	DBPort           int    `envconfig:"DB_PORT" default:"5432"`
	DBUser           string `envconfig:"DB_USER" default:"postgres"`
	DBPassword       string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName           string `envconfig:"DB_NAME" default:"picknpay"`
	MigrationsPath   string `envconfig:"MIGRATIONS_PATH" default:"./internal/repository/migrations"`
	PickupTokenTries int    `envconfig:"PICKUP_TOKEN_ATTEMPTS" default:"10"`

	MongoURI    string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDBName string `envconfig:"MONGO_DB_NAME" default:"picknpay"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	OutboxEnabled    bool     `envconfig:"OUTBOX_ENABLED" default:"false"`
	KafkaBrokers     []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	OrderEventsTopic string   `envconfig:"ORDER_EVENTS_TOPIC" default:"order-events"`

	FirebaseCredentialsFile string        `envconfig:"FIREBASE_CREDENTIALS_FILE"`
	PushTimeout             time.Duration `envconfig:"PUSH_TIMEOUT" default:"5s"`
	PushRatePerSecond       float64       `envconfig:"PUSH_RATE_PER_SECOND" default:"50"`
	PushBurst               int           `envconfig:"PUSH_BURST" default:"20"`
	PushOnlyWhenOffline     bool          `envconfig:"PUSH_ONLY_WHEN_OFFLINE" default:"false"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	OTelEnabled     bool    `envconfig:"OTEL_ENABLED" default:"false"`
	OTelEndpoint    string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	OTelServiceName string  `envconfig:"OTEL_SERVICE_NAME" default:"picknpay"`
	OTelEnvironment string  `envconfig:"OTEL_ENVIRONMENT" default:"local"`
	OTelSampleRatio float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
}

// Load reads the given .env files (missing files are ignored) and then the environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.OrderStore != OrderStorePostgres && c.OrderStore != OrderStoreMemory {
		return fmt.Errorf("ORDER_STORE must be %q or %q, got %q", OrderStorePostgres, OrderStoreMemory, c.OrderStore)
	}
	if c.AdminIdentity == "" {
		return errors.New("ADMIN_IDENTITY must not be empty")
	}
	if c.PickupTokenTries < 1 {
		return errors.New("PICKUP_TOKEN_ATTEMPTS must be at least 1")
	}
	if c.PushTimeout <= 0 {
		return errors.New("PUSH_TIMEOUT must be positive")
	}
	if c.OutboxEnabled && c.OrderStore != OrderStorePostgres {
		return errors.New("OUTBOX_ENABLED requires ORDER_STORE=postgres")
	}
	return nil
}
