package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	Scheduler SchedulerConfig `envconfig:"SCHEDULER"`
	Facebook  FacebookConfig  `envconfig:"FACEBOOK"`
	AI        AIConfig        `envconfig:"AI"`
	Log       LogConfig       `envconfig:"LOG"`
	Tracing   TracingConfig   `envconfig:"TRACING"`
	Metrics   MetricsConfig   `envconfig:"METRICS"`
}

type ServerConfig struct {
	Port         int           `envconfig:"PORT" default:"8080"`
	Host         string        `envconfig:"HOST" default:"localhost"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	APIKeys      []string      `envconfig:"API_KEYS"`

	// Per-IP request budget for the API
	RateLimit       int           `envconfig:"RATE_LIMIT" default:"120"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

type RedisConfig struct {
	URL      string        `envconfig:"URL" default:"redis://localhost:6379"`
	Password string        `envconfig:"PASSWORD" default:""`
	DB       int           `envconfig:"DB" default:"0"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

type SchedulerConfig struct {
	Cadence         time.Duration `envconfig:"CADENCE" default:"5m"`
	BatchSize       int           `envconfig:"BATCH_SIZE" default:"10"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3"`
	BaseDelay       time.Duration `envconfig:"BASE_DELAY" default:"1s"`
	MaxDelay        time.Duration `envconfig:"MAX_DELAY" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

type FacebookConfig struct {
	GraphURL     string        `envconfig:"GRAPH_URL" default:"https://graph.facebook.com"`
	APIVersion   string        `envconfig:"API_VERSION" default:"v19.0"`
	AccessToken  string        `envconfig:"ACCESS_TOKEN" default:""`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"30s"`
	MaxAttempts  int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	PublishRate  float64       `envconfig:"PUBLISH_RATE" default:"0.5"`
	PublishBurst int           `envconfig:"PUBLISH_BURST" default:"5"`
}

type AIConfig struct {
	BaseURL     string        `envconfig:"BASE_URL" default:"https://api.openai.com/v1"`
	APIKey      string        `envconfig:"API_KEY" default:""`
	Model       string        `envconfig:"MODEL" default:"gpt-4o-mini"`
	Temperature float64       `envconfig:"TEMPERATURE" default:"0.8"`
	MaxTokens   int           `envconfig:"MAX_TOKENS" default:"400"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"60s"`
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"3"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL"  default:"info"`
	Format string `envconfig:"FORMAT" default:"console"` // json in prod
}

type TracingConfig struct {
	Enabled      bool   `envconfig:"ENABLED" default:"false"`
	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT" default:"localhost:4317"`
	Environment  string `envconfig:"ENVIRONMENT" default:"development"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	Address string `envconfig:"ADDRESS" default:":9091"`
}

// Address returns the full server address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads config from env variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("POSTPILOT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Config Validator
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Scheduler.Cadence <= 0 {
		return fmt.Errorf("scheduler cadence must be positive, got: %v", c.Scheduler.Cadence)
	}

	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler batch size must be positive, got: %d", c.Scheduler.BatchSize)
	}

	if c.Scheduler.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive, got: %d", c.Scheduler.MaxRetries)
	}

	if c.Scheduler.MaxDelay < c.Scheduler.BaseDelay {
		return fmt.Errorf("max delay %v cannot be below base delay %v", c.Scheduler.MaxDelay, c.Scheduler.BaseDelay)
	}

	return nil
}
