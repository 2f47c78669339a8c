package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full process configuration, read once at startup and passed
// to constructors.
type Config struct {
	Server      ServerConfig      `envconfig:"SERVER"`
	Database    DatabaseConfig    `envconfig:"DATABASE"`
	Redis       RedisConfig       `envconfig:"REDIS"`
	Kafka       KafkaConfig       `envconfig:"KAFKA"`
	MetaMap     MetaMapConfig     `envconfig:"METAMAP"`
	Admin       AdminConfig       `envconfig:"ADMIN"`
	Subscribers SubscribersConfig `envconfig:"SUBSCRIBERS"`
	Sweeper     SweeperConfig     `envconfig:"SWEEPER"`
	Audit       AuditConfig       `envconfig:"AUDIT"`
	Log         LogConfig         `envconfig:"LOG"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig selects Postgres. An empty URL runs on in-memory stores.
type DatabaseConfig struct {
	URL      string `envconfig:"URL"`
	MaxConns int32  `envconfig:"MAX_CONNS" default:"10"`
}

// RedisConfig configures the shared provider token cache.
type RedisConfig struct {
	URL          string        `envconfig:"URL"`
	TokenTTL     time.Duration `envconfig:"TOKEN_TTL" default:"0"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

// KafkaConfig enables publishing webhook events. No brokers disables it.
type KafkaConfig struct {
	Brokers      []string `envconfig:"BROKERS"`
	WebhookTopic string   `envconfig:"WEBHOOK_TOPIC" default:"kyc.webhook-events"`
}

// MetaMapConfig holds the identity provider credentials and flow ids.
type MetaMapConfig struct {
	ClientID         string        `envconfig:"CLIENT_ID"`
	ClientSecret     string        `envconfig:"CLIENT_SECRET"`
	BaseURL          string        `envconfig:"BASE_URL" default:"https://api.getmati.com"`
	WebhookSecret    string        `envconfig:"WEBHOOK_SECRET"`
	CitizenFlowID    string        `envconfig:"CITIZEN_FLOW_ID"`
	NonCitizenFlowID string        `envconfig:"NON_CITIZEN_FLOW_ID"`
	Timeout          time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

// AdminConfig holds the static bearer token for reporting endpoints.
type AdminConfig struct {
	APIToken string `envconfig:"API_TOKEN" default:"dev-admin-token"`
}

// SubscribersConfig controls the whitelist check.
type SubscribersConfig struct {
	// AllowUnseeded treats every number as eligible while the subscriber
	// table is empty.
	AllowUnseeded bool `envconfig:"ALLOW_UNSEEDED" default:"false"`
}

// SweeperConfig schedules the background refresh of stale pending verifications.
type SweeperConfig struct {
	Enabled    bool          `envconfig:"ENABLED" default:"false"`
	Schedule   string        `envconfig:"SCHEDULE" default:"@every 5m"`
	StaleAfter time.Duration `envconfig:"STALE_AFTER" default:"10m"`
	BatchSize  int           `envconfig:"BATCH_SIZE" default:"50"`
}

// AuditConfig selects synchronous or buffered step audit writes. Zero is synchronous.
type AuditConfig struct {
	AsyncBuffer int `envconfig:"ASYNC_BUFFER" default:"0"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.Admin.APIToken == "" {
		errs = append(errs, errors.New("ADMIN_API_TOKEN must not be empty"))
	}
	if c.Database.MaxConns < 1 {
		errs = append(errs, errors.New("DATABASE_MAX_CONNS must be positive"))
	}
	if c.MetaMap.Timeout <= 0 {
		errs = append(errs, errors.New("METAMAP_TIMEOUT must be positive"))
	}
	if c.Sweeper.BatchSize < 0 {
		errs = append(errs, errors.New("SWEEPER_BATCH_SIZE must not be negative"))
	}
	if c.Sweeper.Enabled && c.Sweeper.Schedule == "" {
		errs = append(errs, errors.New("SWEEPER_SCHEDULE is required when the sweeper is enabled"))
	}
	if c.Audit.AsyncBuffer < 0 {
		errs = append(errs, errors.New("AUDIT_ASYNC_BUFFER must not be negative"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.WebhookTopic == "" {
		errs = append(errs, errors.New("KAFKA_WEBHOOK_TOPIC is required when brokers are set"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not json or text", c.Log.Format))
	}
	return errors.Join(errs...)
}
