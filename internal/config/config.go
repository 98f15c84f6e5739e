// Package config loads application settings from YAML with environment
// overrides and builds the process logger.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

type Config struct {
	Oracle       OracleConfig    `yaml:"oracle"`
	Pipeline     PipelineConfig  `yaml:"pipeline"`
	DatabasePath string          `yaml:"database_path"`
	Telemetry    TelemetryConfig `yaml:"telemetry"`
	Logging      LoggingConfig   `yaml:"logging"`
}

type OracleConfig struct {
	Provider          string `yaml:"provider"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"-"`
	MaxTokens         int64  `yaml:"max_tokens"`
	Attempts          int    `yaml:"attempts"`
	TransportTries    uint   `yaml:"transport_tries"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type PipelineConfig struct {
	WindowSize  int    `yaml:"window_size"`
	Concurrency int    `yaml:"concurrency"`
	ChunkWords  int    `yaml:"chunk_words"`
	Timeout     string `yaml:"timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() *Config {
	return &Config{
		Oracle: OracleConfig{
			Provider:       ProviderAnthropic,
			MaxTokens:      4096,
			Attempts:       3,
			TransportTries: 3,
		},
		Pipeline: PipelineConfig{
			WindowSize:  3,
			Concurrency: 1,
			ChunkWords:  2000,
			Timeout:     "30m",
		},
		DatabasePath: "jury-instructions.db",
		Telemetry:    TelemetryConfig{ServiceName: "jury-instructions"},
		Logging:      LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment variables win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("JURY_ORACLE_PROVIDER"); p != "" {
		c.Oracle.Provider = strings.ToLower(p)
	}
	if m := os.Getenv("JURY_ORACLE_MODEL"); m != "" {
		c.Oracle.Model = m
	}
	switch c.Oracle.Provider {
	case ProviderGemini:
		c.Oracle.APIKey = os.Getenv("GEMINI_API_KEY")
	default:
		c.Oracle.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if p := os.Getenv("JURY_DB_PATH"); p != "" {
		c.DatabasePath = p
	}
	if v := os.Getenv("JURY_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.WindowSize = n
		}
	}
	if e := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); e != "" {
		c.Telemetry.OTLPEndpoint = e
	}
}

func (c *Config) Validate() error {
	switch c.Oracle.Provider {
	case ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("oracle.provider: unknown provider %q", c.Oracle.Provider)
	}
	if c.Pipeline.WindowSize < 2 {
		return fmt.Errorf("pipeline.window_size must be at least 2, got %d", c.Pipeline.WindowSize)
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be at least 1, got %d", c.Pipeline.Concurrency)
	}
	if _, err := time.ParseDuration(c.Pipeline.Timeout); c.Pipeline.Timeout != "" && err != nil {
		return fmt.Errorf("pipeline.timeout: %w", err)
	}
	return nil
}

// RunTimeout bounds one pipeline run, zero when unset.
func (c *Config) RunTimeout() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.Timeout)
	if err != nil {
		return 0
	}
	return d
}
