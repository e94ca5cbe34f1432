// ============================================================================
// docqueue Config - YAML configuration with environment overrides
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: load service settings from defaults, a YAML file and the environment
//
// Precedence (lowest to highest):
//   1. Default()                 - built-in values, enough to run locally
//   2. YAML file                 - --config flag, else $DOCQUEUE_CONFIG
//   3. Environment overrides     - DOCQUEUE_* and AWS_REGION
//
// Keys absent from the file keep their default because the file is decoded
// on top of Default().
//
// ============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv        = "DOCQUEUE_CONFIG"
	addrEnv              = "DOCQUEUE_ADDR"
	maxProcessingTimeEnv = "DOCQUEUE_MAX_PROCESSING_TIME"
	classifierURLEnv     = "DOCQUEUE_CLASSIFIER_URL"
	extractorURLEnv      = "DOCQUEUE_EXTRACTOR_URL"
	webhookURLEnv        = "DOCQUEUE_WEBHOOK_URL"
	logLevelEnv          = "DOCQUEUE_LOG_LEVEL"
	awsRegionEnv         = "AWS_REGION"
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig   `yaml:"server"`
	Storage    StorageConfig  `yaml:"storage"`
	Worker     WorkerConfig   `yaml:"worker"`
	Classifier EndpointConfig `yaml:"classifier"`
	Extractor  EndpointConfig `yaml:"extractor"`
	Download   DownloadConfig `yaml:"download"`
	Notify     NotifyConfig   `yaml:"notify"`
	Metrics    MetricsConfig  `yaml:"metrics"`
	Health     HealthConfig   `yaml:"health"`
	Log        LogConfig      `yaml:"log"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig locates uploaded PDFs, result files and the transition journal.
type StorageConfig struct {
	UploadDir   string `yaml:"upload_dir"`
	ResultDir   string `yaml:"result_dir"`
	JournalPath string `yaml:"journal_path"`
}

// WorkerConfig bounds extraction.
type WorkerConfig struct {
	MaxProcessingTime time.Duration `yaml:"max_processing_time"`
}

// EndpointConfig is a model service reached over HTTP.
type EndpointConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DownloadConfig configures source fetching. S3Endpoint is for
// S3-compatible stores such as MinIO.
type DownloadConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	S3Region   string        `yaml:"s3_region"`
	S3Endpoint string        `yaml:"s3_endpoint"`
}

// NotifyConfig selects the transition notifiers.
type NotifyConfig struct {
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	Journal        bool          `yaml:"journal"`
}

// MetricsConfig is the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// HealthConfig is the gRPC health endpoint. Port 0 disables it.
type HealthConfig struct {
	GRPCPort int `yaml:"grpc_port"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":5000"},
		Storage: StorageConfig{
			UploadDir:   "uploads",
			ResultDir:   "results",
			JournalPath: "data/transitions.log",
		},
		Worker:     WorkerConfig{MaxProcessingTime: 15 * time.Minute},
		Classifier: EndpointConfig{Timeout: 2 * time.Minute},
		Extractor:  EndpointConfig{Timeout: 15 * time.Minute},
		Download:   DownloadConfig{Timeout: 60 * time.Second},
		Notify:     NotifyConfig{WebhookTimeout: 5 * time.Second, Journal: true},
		Metrics:    MetricsConfig{Enabled: true, Port: 9090},
		Health:     HealthConfig{GRPCPort: 50051},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. An empty path falls back to
// $DOCQUEUE_CONFIG; with neither set only defaults and environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(addrEnv); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(maxProcessingTimeEnv); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, maxProcessingTimeEnv, err)
		}
		c.Worker.MaxProcessingTime = d
	}
	if v := os.Getenv(classifierURLEnv); v != "" {
		c.Classifier.URL = v
	}
	if v := os.Getenv(extractorURLEnv); v != "" {
		c.Extractor.URL = v
	}
	if v := os.Getenv(webhookURLEnv); v != "" {
		c.Notify.WebhookURL = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(awsRegionEnv); v != "" && c.Download.S3Region == "" {
		c.Download.S3Region = v
	}
	return nil
}

// parseDuration accepts Go durations ("90s") and bare seconds ("900").
func parseDuration(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("cannot parse duration %q", v)
	}
	return time.Duration(secs) * time.Second, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is empty", ErrInvalidConfig)
	}
	if c.Storage.UploadDir == "" || c.Storage.ResultDir == "" {
		return fmt.Errorf("%w: storage directories must be set", ErrInvalidConfig)
	}
	if c.Worker.MaxProcessingTime <= 0 {
		return fmt.Errorf("%w: worker.max_processing_time must be positive", ErrInvalidConfig)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("%w: metrics.port %d out of range", ErrInvalidConfig, c.Metrics.Port)
	}
	if c.Health.GRPCPort < 0 || c.Health.GRPCPort > 65535 {
		return fmt.Errorf("%w: health.grpc_port %d out of range", ErrInvalidConfig, c.Health.GRPCPort)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q (want text or json)", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}
