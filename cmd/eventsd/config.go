package main

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/config"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/db"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/otelx"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/policy"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/schema"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverPGX    = "pgx"
	DriverSQL    = "sql"
	DriverSQLX   = "sqlx"
)

var drivers = []string{DriverMemory, DriverPGX, DriverSQL, DriverSQLX}

var (
	errUnknownDriver       = errors.New("unknown STORE_DRIVER")
	errDatabaseURLRequired = errors.New("DATABASE_URL is required for postgres drivers")
)

// Config is read from the environment. Redis, Kafka and SQLite are optional; without them
// the service runs the in-process variants.
type Config struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"eventsd"`
	Port            string        `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	StoreDriver        string        `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL        string        `env:"DATABASE_URL"`
	ReplicaDatabaseURL string        `env:"DATABASE_REPLICA_URL"`
	EventTable         string        `env:"EVENT_TABLE" envDefault:"events"`
	SnapshotTable      string        `env:"SNAPSHOT_TABLE" envDefault:"snapshots"`
	AutoMigrate        bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	FeedPollInterval   time.Duration `env:"FEED_POLL_INTERVAL" envDefault:"100ms"`
	FeedGapTolerance   time.Duration `env:"FEED_GAP_TOLERANCE" envDefault:"2s"`
	FeedGapRetention   time.Duration `env:"FEED_GAP_RETENTION" envDefault:"10m"`
	DB                 db.PoolConfig `envPrefix:"DB_"`

	SnapshotInterval  uint64        `env:"SNAPSHOT_INTERVAL" envDefault:"100"`
	SnapshotTTL       time.Duration `env:"SNAPSHOT_TTL" envDefault:"0s"`
	SnapshotTimeout   time.Duration `env:"SNAPSHOT_TIMEOUT" envDefault:"5s"`
	StrictSchemas     bool          `env:"STRICT_SCHEMAS" envDefault:"true"`
	SchemaDefaultMode string        `env:"SCHEMA_DEFAULT_MODE" envDefault:"BACKWARD"`

	RedisAddr       string `env:"REDIS_ADDR"`
	RedisKeyPrefix  string `env:"REDIS_KEY_PREFIX" envDefault:"nexus"`
	KafkaBrokers    string `env:"KAFKA_BROKERS"`
	KafkaTopic      string `env:"KAFKA_CRITICAL_TOPIC" envDefault:"events.critical.v1"`
	ProjectionsPath string `env:"PROJECTION_SQLITE_PATH"`

	VisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT" envDefault:"30s"`
	MaxAttempts       int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"5"`
	MaxInFlight       int           `env:"CONSUMER_MAX_IN_FLIGHT" envDefault:"32"`
	DLQCheckInterval  time.Duration `env:"DLQ_CHECK_INTERVAL" envDefault:"15s"`

	RateLimit       int           `env:"RATE_LIMIT" envDefault:"600"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	BodyLimitBytes  int64         `env:"BODY_LIMIT_BYTES" envDefault:"1048576"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`

	Policy policy.Config `envPrefix:"POLICY_"`
	OTel   otelx.Config  `envPrefix:"OTEL_"`
}

// LoadConfig parses and validates the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if err := config.ValidPort("PORT", c.Port); err != nil {
		return err
	}

	if !slices.Contains(drivers, c.StoreDriver) {
		return fmt.Errorf("%w: %q (want one of %v)", errUnknownDriver, c.StoreDriver, drivers)
	}

	if c.StoreDriver != DriverMemory && c.DatabaseURL == "" {
		return errDatabaseURLRequired
	}

	if _, err := schema.ParseMode(c.SchemaDefaultMode); err != nil {
		return err
	}

	if c.MaxAttempts <= 0 || c.VisibilityTimeout <= 0 || c.MaxInFlight <= 0 {
		return errors.New("queue settings must be positive")
	}

	return nil
}
