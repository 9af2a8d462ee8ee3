package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. It is loaded once at process
// start and treated as an immutable snapshot afterwards.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Kernel   KernelConfig   `yaml:"kernel"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Report   ReportConfig   `yaml:"report"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

// KernelConfig describes the execution host being observed.
type KernelConfig struct {
	PID              int  `yaml:"pid"`               // Kernel process to signal on auto-interrupt; 0 disables signaling
	VerboseTransport bool `yaml:"verbose_transport"` // Debug-log every hook message received from the kernel
}

// MonitorConfig controls the timeout monitor. A warning or timeout threshold
// of zero (or below) skips that phase entirely.
type MonitorConfig struct {
	Enabled          bool          `yaml:"enable_timeout_monitoring"`
	WarningThreshold time.Duration `yaml:"warning_threshold"`
	TimeoutThreshold time.Duration `yaml:"timeout_threshold"`
	AutoInterrupt    bool          `yaml:"auto_interrupt"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ReportConfig controls out-of-band reporting of warning/timeout notices to
// an external webapp endpoint.
type ReportConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            7411,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxRequestBody:  1 << 20, // 1MB, bounded by the kernel's max cell size
		},
		Kernel: KernelConfig{
			PID: 0,
		},
		Monitor: MonitorConfig{
			Enabled:          true,
			WarningThreshold: 4 * time.Minute,
			TimeoutThreshold: 5 * time.Minute,
			AutoInterrupt:    false,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled: false,
		},
		Report: ReportConfig{
			URL:     "",
			Timeout: 2 * time.Second,
		},
	}
}

// Validate checks that the configuration is valid. Threshold ordering is
// rejected here so an inverted pair never reaches the timeout monitor.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Kernel.PID < 0 {
		return fmt.Errorf("kernel.pid must be >= 0, got %d", c.Kernel.PID)
	}
	if c.Monitor.Enabled && c.Monitor.WarningThreshold > 0 && c.Monitor.TimeoutThreshold > 0 &&
		c.Monitor.WarningThreshold >= c.Monitor.TimeoutThreshold {
		return fmt.Errorf("monitor.warning_threshold (%s) must be < timeout_threshold (%s)",
			c.Monitor.WarningThreshold, c.Monitor.TimeoutThreshold)
	}
	if c.Monitor.Enabled && c.Monitor.AutoInterrupt && c.Monitor.TimeoutThreshold <= 0 {
		return fmt.Errorf("monitor.auto_interrupt requires a positive timeout_threshold")
	}
	if c.Report.URL != "" {
		if !strings.HasPrefix(c.Report.URL, "http://") && !strings.HasPrefix(c.Report.URL, "https://") {
			return fmt.Errorf("report.url must be an http(s) URL, got %q", c.Report.URL)
		}
		if c.Report.Timeout <= 0 {
			return fmt.Errorf("report.timeout must be positive when report.url is set")
		}
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable — connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
