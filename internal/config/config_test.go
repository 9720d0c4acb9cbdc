package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets keys for the duration of the test, including values a
// dotenv file sets during it.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if old, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, old) }) //nolint:errcheck
		} else {
			t.Cleanup(func() { os.Unsetenv(k) }) //nolint:errcheck
		}
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Engine.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 5.0, cfg.Engine.RatePerSecond)
	assert.Equal(t, "yageo", cfg.Brand.Default)
	assert.Equal(t, SinkLocal, cfg.Export.Sink)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, "partsub.yaml", `
engine:
  base_url: https://engine.example.com/
  timeout: 5s
  rate_per_second: 2
brand:
  default: " YAGEO "
export:
  sink: s3
  s3:
    bucket: exports
    region: eu-west-1
    prefix: batches/
logging:
  level: debug
  format: json
metrics:
  addr: ":9100"
`)
	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "https://engine.example.com", cfg.Engine.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 2.0, cfg.Engine.RatePerSecond)
	assert.Equal(t, "yageo", cfg.Brand.Default)
	assert.Equal(t, SinkS3, cfg.Export.Sink)
	assert.Equal(t, "exports", cfg.Export.S3.Bucket)
	assert.Equal(t, "batches/", cfg.Export.S3.Prefix)
	assert.Equal(t, "json", cfg.LogConfig().Format)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "yageo", cfg.Brand.Default)
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t, "PARTSUB_LOG_LEVEL", "PARTSUB_BRAND", "PARTSUB_EXPORT_DIR", "PARTSUB_ENGINE_URL")

	file := writeFile(t, "partsub.yaml", `
engine:
  base_url: http://from-file:8000
logging:
  level: debug
export:
  dir: /from/file
`)
	dotenv := writeFile(t, ".env", "PARTSUB_LOG_LEVEL=warn\nPARTSUB_EXPORT_DIR=/from/dotenv\nPARTSUB_BRAND=acme\n")
	t.Setenv("PARTSUB_EXPORT_DIR", "/from/env")

	cfg, err := Load(file, dotenv)
	require.NoError(t, err)

	assert.Equal(t, "http://from-file:8000", cfg.Engine.BaseURL, "file beats defaults")
	assert.Equal(t, "warn", cfg.Logging.Level, ".env beats file")
	assert.Equal(t, "acme", cfg.Brand.Default)
	assert.Equal(t, "/from/env", cfg.Export.Dir, "environment beats .env")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PARTSUB_ENGINE_URL", "http://engine:9000")
	t.Setenv("PARTSUB_ENGINE_TIMEOUT", "0s")
	t.Setenv("PARTSUB_ENGINE_RATE_PER_SECOND", "0.5")
	t.Setenv("PARTSUB_EXPORT_SINK", "S3")
	t.Setenv("PARTSUB_EXPORT_S3_BUCKET", "parts")
	t.Setenv("PARTSUB_EXPORT_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("PARTSUB_LOG_FILE_PATH", "/tmp/partsub.log")
	t.Setenv("PARTSUB_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "http://engine:9000", cfg.Engine.BaseURL)
	assert.Zero(t, cfg.Engine.Timeout)
	assert.Equal(t, 0.5, cfg.Engine.RatePerSecond)
	assert.Equal(t, SinkS3, cfg.Export.Sink)
	assert.Equal(t, "parts", cfg.Export.S3.Bucket)
	assert.Equal(t, "http://minio:9000", cfg.Export.S3.Endpoint)
	assert.Equal(t, "/tmp/partsub.log", cfg.LogConfig().FilePath)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad scheme", func(c *Config) { c.Engine.BaseURL = "ftp://engine" }},
		{"no host", func(c *Config) { c.Engine.BaseURL = "http://" }},
		{"negative timeout", func(c *Config) { c.Engine.Timeout = -time.Second }},
		{"negative rate", func(c *Config) { c.Engine.RatePerSecond = -1 }},
		{"empty brand", func(c *Config) { c.Brand.Default = "  " }},
		{"unknown sink", func(c *Config) { c.Export.Sink = "ftp" }},
		{"local without dir", func(c *Config) { c.Export.Dir = "" }},
		{"s3 without bucket", func(c *Config) { c.Export.Sink = SinkS3 }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}

	require.NoError(t, Default().validate())
}
