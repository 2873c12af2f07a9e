package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"optionflow/internal/symbols"
)

type Config struct {
	Optionflow OptionflowConfig `yaml:"optionflow"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Reader     ReaderConfig     `yaml:"reader"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Source     SourceConfig     `yaml:"source"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Console    ConsoleConfig    `yaml:"console"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type OptionflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer    int `yaml:"raw_buffer"`
	ResultBuffer int `yaml:"result_buffer"`
}

type ReaderConfig struct {
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Retry          RetryConfig          `yaml:"retry"`
}

type CircuitBreakerConfig struct {
	FailureThreshold    int           `yaml:"failure_threshold"`
	RecoveryTimeout     time.Duration `yaml:"recovery_timeout"`
	HalfOpenMaxRequests int           `yaml:"half_open_max_requests"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

type ProcessorConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// AnalysisConfig sizes the presentation lists. Zero keeps the defaults.
type AnalysisConfig struct {
	TopBuyers  int `yaml:"top_buyers"`
	TopWriters int `yaml:"top_writers"`
}

type SourceConfig struct {
	NSE NSESourceConfig `yaml:"nse"`
}

type NSESourceConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	BaseURL        string               `yaml:"base_url"`
	HomeURL        string               `yaml:"home_url"`
	Referer        string               `yaml:"referer"`
	UserAgent      string               `yaml:"user_agent"`
	Symbols        []string             `yaml:"symbols"`
	Interval       time.Duration        `yaml:"interval"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type StorageConfig struct {
	S3      S3Config      `yaml:"s3"`
	Archive ArchiveConfig `yaml:"archive"`
	Kafka   KafkaConfig   `yaml:"kafka"`
}

// S3Config is the bucket used for replaying captured chains and, when the
// archive is enabled without a local directory, for archived analyses.
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// ArchiveConfig controls the parquet archive of analysed strike rows.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Prefix        string        `yaml:"prefix"`
	LocalDir      string        `yaml:"local_dir"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Compression   string        `yaml:"compression"`
	// Catalog keeps Iceberg-style table metadata next to the data files.
	Catalog bool `yaml:"catalog"`
}

type KafkaConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	QueueSize int      `yaml:"queue_size"`
}

type MetricsConfig struct {
	CloudWatch  CloudWatchConfig `yaml:"cloudwatch"`
	Prometheus  PrometheusConfig `yaml:"prometheus"`
	ChannelSize bool             `yaml:"channel_size"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
}

type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

const (
	defaultNSEBaseURL   = "https://www.nseindia.com/api"
	defaultNSEHomeURL   = "https://www.nseindia.com/option-chain"
	defaultNSEUserAgent = "Mozilla/5.0"
	defaultInterval     = 30 * time.Second
	minInterval         = time.Second
)

const (
	envSymbol   = "OPTIONFLOW_SYMBOL"
	envInterval = "OPTIONFLOW_INTERVAL"

	envKafkaBrokers = "KAFKA_BROKERS"
)

func defaults() Config {
	return Config{
		Channels: ChannelsConfig{RawBuffer: 16, ResultBuffer: 16},
		Reader: ReaderConfig{
			Timeout: 10 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:    5,
				RecoveryTimeout:     time.Minute,
				HalfOpenMaxRequests: 1,
			},
			RateLimit: RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1},
			Retry: RetryConfig{
				MaxAttempts:       3,
				BaseDelay:         time.Second,
				MaxDelay:          10 * time.Second,
				BackoffMultiplier: 2,
			},
		},
		Processor: ProcessorConfig{MaxWorkers: 1},
		Storage: StorageConfig{
			Archive: ArchiveConfig{Prefix: "analysis", FlushInterval: 5 * time.Minute, Compression: "snappy"},
			Kafka:   KafkaConfig{Topic: "optionflow.analysis", QueueSize: 64},
		},
		Source: SourceConfig{NSE: NSESourceConfig{
			Enabled:   true,
			BaseURL:   defaultNSEBaseURL,
			HomeURL:   defaultNSEHomeURL,
			Referer:   defaultNSEHomeURL,
			UserAgent: defaultNSEUserAgent,
			Symbols:   []string{"NIFTY"},
			Interval:  defaultInterval,
		}},
		Metrics: MetricsConfig{
			CloudWatch:  CloudWatchConfig{Namespace: "Optionflow"},
			Prometheus:  PrometheusConfig{Enabled: true},
			ChannelSize: true,
		},
		Console: ConsoleConfig{Enabled: true},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

var envConfigPaths = map[string]string{
	EnvironmentProduction: "config/config.production.yml",
	EnvironmentStaging:    "config/config.staging.yml",
}

// DefaultConfigPath is used when no -config flag is given.
const DefaultConfigPath = "config/config.yml"

// LoadConfig reads the YAML file at path (or its APP_ENV specific variant),
// applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultConfigPath, envConfigPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaults()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, err
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
	for i, s := range config.Source.NSE.Symbols {
		config.Source.NSE.Symbols[i] = symbols.ToNSE(s)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) error {
	if v := strings.TrimSpace(os.Getenv(envSymbol)); v != "" {
		config.Source.NSE.Symbols = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(os.Getenv(envInterval)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", envInterval, v, err)
		}
		config.Source.NSE.Interval = d
	}

	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	if v := strings.TrimSpace(os.Getenv(envKafkaBrokers)); v != "" {
		brokers := strings.Split(v, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		config.Storage.Kafka.Brokers = brokers
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.Optionflow.Name == "" {
		return fmt.Errorf("optionflow.name is required")
	}

	if cfg.Optionflow.Version == "" {
		return fmt.Errorf("optionflow.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Channels.ResultBuffer <= 0 {
		return fmt.Errorf("channels.result_buffer must be greater than 0")
	}

	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}

	if cfg.Analysis.TopBuyers < 0 || cfg.Analysis.TopWriters < 0 {
		return fmt.Errorf("analysis limits must not be negative")
	}

	if cfg.Reader.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("reader.rate_limit.requests_per_second must be greater than 0")
	}
	if cfg.Reader.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("reader.retry.max_attempts must be greater than 0")
	}

	nse := cfg.Source.NSE
	if nse.Enabled {
		if len(nse.Symbols) == 0 {
			return fmt.Errorf("source.nse.symbols must not be empty")
		}
		for _, s := range nse.Symbols {
			if s == "" {
				return fmt.Errorf("source.nse.symbols contains an empty symbol")
			}
		}
		if nse.Interval < minInterval {
			return fmt.Errorf("source.nse.interval must be at least %s", minInterval)
		}
		if nse.BaseURL == "" {
			return fmt.Errorf("source.nse.base_url is required")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	archive := cfg.Storage.Archive
	if archive.Enabled {
		if archive.LocalDir == "" && !cfg.Storage.S3.Enabled {
			return fmt.Errorf("storage.archive needs storage.s3 enabled or a local_dir")
		}
		if archive.FlushInterval < minInterval {
			return fmt.Errorf("storage.archive.flush_interval must be at least %s", minInterval)
		}
		switch archive.Compression {
		case "", "snappy", "gzip", "none":
		default:
			return fmt.Errorf("storage.archive.compression '%s' is not supported", archive.Compression)
		}
	}

	if kafka := cfg.Storage.Kafka; kafka.Enabled {
		if len(kafka.Brokers) == 0 {
			return fmt.Errorf("storage.kafka.brokers must not be empty")
		}
		if kafka.Topic == "" {
			return fmt.Errorf("storage.kafka.topic is required")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
