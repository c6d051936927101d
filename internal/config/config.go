package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable pointing at an optional YAML file.
const FileEnv = "ROASTBOT_CONFIG"

// Artifact backends.
const (
	BackendDataURI = "datauri"
	BackendLocal   = "local"
	BackendS3      = "s3"
)

// Config holds runtime configuration for roastbot.
type Config struct {
	Addr      string `env:"ADDR,default=:8080" yaml:"addr"`
	LogLevel  string `env:"LOG_LEVEL,default=info" yaml:"log_level"`
	LogFormat string `env:"LOG_FORMAT,default=json" yaml:"log_format"`

	Concurrency      int           `env:"ROAST_CONCURRENCY,default=3" yaml:"concurrency"`
	MaxConcurrency   int           `env:"ROAST_MAX_CONCURRENCY,default=10" yaml:"max_concurrency"`
	MaxAttempts      int           `env:"ROAST_MAX_ATTEMPTS,default=1" yaml:"max_attempts"`
	RetryBackoff     time.Duration `env:"ROAST_RETRY_BACKOFF,default=2s" yaml:"retry_backoff"`
	ExtractTimeout   time.Duration `env:"EXTRACT_TIMEOUT,default=90s" yaml:"extract_timeout"`
	CritiqueTimeout  time.Duration `env:"CRITIQUE_TIMEOUT,default=60s" yaml:"critique_timeout"`
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT,default=15s" yaml:"store_timeout"`
	SubscriberBuffer int           `env:"SUBSCRIBER_BUFFER,default=64" yaml:"subscriber_buffer"`

	BrowserlessURL   string `env:"BROWSERLESS_URL" yaml:"browserless_url"`
	BrowserlessToken string `env:"BROWSERLESS_TOKEN" yaml:"-"`

	GrokAPIKey       string        `env:"GROK_API_KEY" yaml:"-"`
	GrokModel        string        `env:"GROK_MODEL,default=grok-3" yaml:"grok_model"`
	GrokBaseURL      string        `env:"GROK_BASE_URL,default=https://api.x.ai/v1" yaml:"grok_base_url"`
	CritiqueCacheMB  int           `env:"CRITIQUE_CACHE_MB,default=16" yaml:"critique_cache_mb"`
	CritiqueCacheTTL time.Duration `env:"CRITIQUE_CACHE_TTL,default=1h" yaml:"critique_cache_ttl"`

	ArtifactBackend string `env:"ARTIFACT_BACKEND,default=datauri" yaml:"artifact_backend"`
	ArtifactDir     string `env:"ARTIFACT_DIR,default=./data" yaml:"artifact_dir"`
	ArtifactBaseURL string `env:"ARTIFACT_BASE_URL" yaml:"artifact_base_url"`

	S3Endpoint       string        `env:"S3_ENDPOINT" yaml:"s3_endpoint"`
	S3Region         string        `env:"S3_REGION,default=us-east-1" yaml:"s3_region"`
	S3AccessKey      string        `env:"S3_ACCESS_KEY" yaml:"-"`
	S3SecretKey      string        `env:"S3_SECRET_KEY" yaml:"-"`
	S3Bucket         string        `env:"S3_BUCKET" yaml:"s3_bucket"`
	S3DisableTLS     bool          `env:"S3_DISABLE_TLS,default=false" yaml:"s3_disable_tls"`
	S3ForcePathStyle bool          `env:"S3_FORCE_PATH_STYLE,default=true" yaml:"s3_force_path_style"`
	S3PresignTTL     time.Duration `env:"S3_PRESIGN_TTL,default=24h" yaml:"s3_presign_ttl"`

	NATSURL        string   `env:"NATS_URL" yaml:"nats_url"`
	OTLPEndpoint   string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT" yaml:"otlp_endpoint"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=*" yaml:"allowed_origins"`
	RunRateLimit   int      `env:"RUN_RATE_LIMIT,default=10" yaml:"run_rate_limit"`
}

// Load reads .env if present, then the YAML file named by ROASTBOT_CONFIG,
// then the environment. Later sources win; unset keys take their defaults.
func Load(ctx context.Context) (Config, error) {
	_ = godotenv.Load()
	return LoadWith(ctx, os.Getenv(FileEnv), envconfig.OsLookuper())
}

// LoadWith is Load with an explicit YAML path and lookuper.
func LoadWith(ctx context.Context, path string, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config yaml: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config yaml: parse %s: %w", path, err)
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           &cfg,
		Lookuper:         l,
		DefaultOverwrite: true,
	}); err != nil {
		return Config{}, fmt.Errorf("config env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validate: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c Config) Validate() error {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, errors.New("ROAST_CONCURRENCY must be at least 1"))
	}
	if c.MaxConcurrency < c.Concurrency {
		errs = append(errs, errors.New("ROAST_MAX_CONCURRENCY must not be below ROAST_CONCURRENCY"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("ROAST_MAX_ATTEMPTS must be at least 1"))
	}
	if c.ExtractTimeout <= 0 || c.CritiqueTimeout <= 0 || c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("stage timeouts must be positive"))
	}
	if c.SubscriberBuffer < 1 {
		errs = append(errs, errors.New("SUBSCRIBER_BUFFER must be at least 1"))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be json or console", c.LogFormat))
	}
	switch c.ArtifactBackend {
	case BackendDataURI, BackendLocal:
	case BackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 artifact backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("ARTIFACT_BACKEND %q must be datauri, local or s3", c.ArtifactBackend))
	}
	return errors.Join(errs...)
}
