package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sydlexius/partsub/internal/logging"
	"github.com/sydlexius/partsub/internal/part"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "PARTSUB_"

// Export sink kinds.
const (
	SinkLocal = "local"
	SinkS3    = "s3"
)

// Config holds all application configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine" envPrefix:"ENGINE_"`
	Brand   BrandConfig   `yaml:"brand"`
	Export  ExportConfig  `yaml:"export" envPrefix:"EXPORT_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// EngineConfig locates the resolution engine.
type EngineConfig struct {
	BaseURL       string        `yaml:"base_url" env:"URL"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RatePerSecond float64       `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
}

// BrandConfig holds the brand preselected for lookups.
type BrandConfig struct {
	Default string `yaml:"default" env:"BRAND"`
}

// ExportConfig selects where exported spreadsheets are delivered.
type ExportConfig struct {
	Sink string   `yaml:"sink" env:"SINK"`
	Dir  string   `yaml:"dir" env:"DIR"`
	S3   S3Config `yaml:"s3" envPrefix:"S3_"`
}

// S3Config holds bucket settings for the s3 sink.
type S3Config struct {
	Bucket          string `yaml:"bucket" env:"BUCKET"`
	Region          string `yaml:"region" env:"REGION"`
	Endpoint        string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
	Prefix          string `yaml:"prefix" env:"PREFIX"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level" env:"LEVEL"`
	Format         string `yaml:"format" env:"FORMAT"`
	FilePath       string `yaml:"file_path" env:"FILE_PATH"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb" env:"FILE_MAX_SIZE_MB"`
	FileMaxFiles   int    `yaml:"file_max_files" env:"FILE_MAX_FILES"`
	FileMaxAgeDays int    `yaml:"file_max_age_days" env:"FILE_MAX_AGE_DAYS"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	lc := logging.DefaultConfig()
	return &Config{
		Engine: EngineConfig{
			BaseURL:       "http://localhost:8000",
			Timeout:       30 * time.Second,
			RatePerSecond: 5,
		},
		Brand: BrandConfig{
			Default: string(part.BrandYageo),
		},
		Export: ExportConfig{
			Sink: SinkLocal,
			Dir:  ".",
		},
		Logging: LoggingConfig{
			Level:          lc.Level,
			Format:         lc.Format,
			FileMaxSizeMB:  lc.FileMaxSizeMB,
			FileMaxFiles:   lc.FileMaxFiles,
			FileMaxAgeDays: lc.FileMaxAgeDays,
		},
	}
}

// Load builds the configuration. Later sources win: defaults, the YAML file
// at path (skipped when empty or missing), then the environment. Variables
// from dotenv files (".env" when none are given) fill in the environment but
// never override variables that are already set.
func Load(path string, dotenv ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) validate() error {
	c.Engine.BaseURL = strings.TrimRight(strings.TrimSpace(c.Engine.BaseURL), "/")
	u, err := url.Parse(c.Engine.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid engine base url: %q", c.Engine.BaseURL)
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("engine timeout must not be negative: %s", c.Engine.Timeout)
	}
	if c.Engine.RatePerSecond < 0 {
		return fmt.Errorf("engine rate must not be negative: %g", c.Engine.RatePerSecond)
	}

	c.Brand.Default = string(part.ParseBrand(c.Brand.Default))
	if c.Brand.Default == "" {
		return fmt.Errorf("default brand is required")
	}

	c.Export.Sink = strings.ToLower(strings.TrimSpace(c.Export.Sink))
	switch c.Export.Sink {
	case SinkLocal:
		if c.Export.Dir == "" {
			return fmt.Errorf("export dir is required for the local sink")
		}
	case SinkS3:
		if c.Export.S3.Bucket == "" {
			return fmt.Errorf("export s3 bucket is required for the s3 sink")
		}
	default:
		return fmt.Errorf("invalid export sink: %q (want %s or %s)", c.Export.Sink, SinkLocal, SinkS3)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	return nil
}

// LogConfig converts the logging section for logging.NewManager.
func (c *Config) LogConfig() logging.Config {
	return logging.Config{
		Level:          c.Logging.Level,
		Format:         c.Logging.Format,
		FilePath:       c.Logging.FilePath,
		FileMaxSizeMB:  c.Logging.FileMaxSizeMB,
		FileMaxFiles:   c.Logging.FileMaxFiles,
		FileMaxAgeDays: c.Logging.FileMaxAgeDays,
	}
}
