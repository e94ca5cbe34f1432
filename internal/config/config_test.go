package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docqueue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configPathEnv, addrEnv, maxProcessingTimeEnv, classifierURLEnv,
		extractorURLEnv, webhookURLEnv, logLevelEnv, awsRegionEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Worker.MaxProcessingTime)
	assert.True(t, cfg.Notify.Journal)
}

func TestLoadYAMLKeepsUnsetDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  addr: ":8080"
worker:
  max_processing_time: 90s
classifier:
  url: http://classifier:8000/classify
log:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 90*time.Second, cfg.Worker.MaxProcessingTime)
	assert.Equal(t, "http://classifier:8000/classify", cfg.Classifier.URL)
	assert.Equal(t, 2*time.Minute, cfg.Classifier.Timeout, "timeout keeps its default")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "uploads", cfg.Storage.UploadDir)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadExampleConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join("..", "..", "configs", "docqueue.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8001/classify", cfg.Classifier.URL)
	assert.Equal(t, 15*time.Minute, cfg.Extractor.Timeout)
	assert.Equal(t, "us-east-1", cfg.Download.S3Region)
	assert.Empty(t, cfg.Notify.WebhookURL)
	assert.Equal(t, 50051, cfg.Health.GRPCPort)
}

func TestLoadPathFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  addr: \":7000\"\n")
	t.Setenv(configPathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  addr: \":7000\"\n")
	t.Setenv(addrEnv, ":9999")
	t.Setenv(maxProcessingTimeEnv, "120")
	t.Setenv(classifierURLEnv, "http://c")
	t.Setenv(extractorURLEnv, "http://e")
	t.Setenv(webhookURLEnv, "http://hook")
	t.Setenv(logLevelEnv, "debug")
	t.Setenv(awsRegionEnv, "us-west-2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 2*time.Minute, cfg.Worker.MaxProcessingTime)
	assert.Equal(t, "http://c", cfg.Classifier.URL)
	assert.Equal(t, "http://e", cfg.Extractor.URL)
	assert.Equal(t, "http://hook", cfg.Notify.WebhookURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "us-west-2", cfg.Download.S3Region)
}

func TestAWSRegionDoesNotOverrideFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "download:\n  s3_region: eu-central-1\n")
	t.Setenv(awsRegionEnv, "us-west-2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "eu-central-1", cfg.Download.S3Region)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "15m", want: 15 * time.Minute},
		{in: "900", want: 900 * time.Second},
		{in: "1h30m", want: 90 * time.Minute},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [unterminated"))
		assert.Error(t, err)
	})

	t.Run("bad env duration", func(t *testing.T) {
		t.Setenv(maxProcessingTimeEnv, "soon")
		_, err := Load("")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"empty upload dir", func(c *Config) { c.Storage.UploadDir = "" }},
		{"zero timeout", func(c *Config) { c.Worker.MaxProcessingTime = 0 }},
		{"metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
		{"grpc port", func(c *Config) { c.Health.GRPCPort = -1 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := Default()
	cfg.Metrics.Enabled = false
	cfg.Metrics.Port = 0
	assert.NoError(t, cfg.Validate(), "port is ignored when metrics are disabled")
}
