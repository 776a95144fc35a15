// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration struct for the control plane.
type Config struct {
	App        AppConfig        `koanf:"app"`
	HTTP       HTTPConfig       `koanf:"http"`
	Log        LogConfig        `koanf:"log"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Tracing    TracingConfig    `koanf:"tracing"`
	Agent      AgentConfig      `koanf:"agent"`
	Topology   TopologyConfig   `koanf:"topology"`
	Ledger     LedgerConfig     `koanf:"ledger"`
	Reconciler ReconcilerConfig `koanf:"reconciler"`
	Limits     LimitsConfig     `koanf:"limits"`
	Database   DatabaseConfig   `koanf:"database"`
	Cache      CacheConfig      `koanf:"cache"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Audit      AuditConfig      `koanf:"audit"`
	Retry      RetryConfig      `koanf:"retry"`
	Report     ReportConfig     `koanf:"report"`
}

// AppConfig holds application-wide settings.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// HTTPConfig configures the control-plane's JSON/HTTP API server.
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORS            CORSConfig    `koanf:"cors"`
}

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	Enabled          bool     `koanf:"enabled"`
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`   // path to the log file
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // number of rotated backups
	MaxAge     int    `koanf:"max_age"`     // days
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures Prometheus instrumentation.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// AgentConfig configures the HTTP client used to reach the Data-Plane Agent.
type AgentConfig struct {
	BaseURL            string        `koanf:"base_url"`
	Timeout            time.Duration `koanf:"timeout"`
	MaxIdleConns       int           `koanf:"max_idle_conns"`
	IdleConnTimeout    time.Duration `koanf:"idle_conn_timeout"`
	DisableCompression bool          `koanf:"disable_compression"`
}

// TopologyConfig points at the two CSV files the Topology Store loads:
// initial_topology.csv, the immutable snapshot taken at start, and
// running_network.csv, the live residual capacities rewritten after every
// successful allocation or deallocation.
type TopologyConfig struct {
	InitialPath string `koanf:"initial_path"`
	RunningPath string `koanf:"running_path"`
}

// LedgerConfig configures the persisted tunnel ledger and its optional
// relational archive mirror.
type LedgerConfig struct {
	FilePath       string `koanf:"file_path"`
	ArchiveEnabled bool   `koanf:"archive_enabled"`
}

// ReconcilerConfig configures the periodic ledger-vs-installed reconcile loop.
type ReconcilerConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// LimitsConfig bounds the resources a single control-plane instance manages.
type LimitsConfig struct {
	MaxSwitches        int `koanf:"max_switches"`
	MaxConcurrentAlloc int `koanf:"max_concurrent_alloc"`
	MaxCandidatePaths  int `koanf:"max_candidate_paths"`
}

// DatabaseConfig configures the optional Postgres ledger archive.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // postgres
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	MigrationsPath  string        `koanf:"migrations_path"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DSN builds a connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
		)
	default:
		return ""
	}
}

// CacheConfig configures the path-cache backend (memory or Redis).
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // for the in-memory backend

	// Namespace scopes every cache key to this control-plane deployment.
	// Required when a Redis backend is shared across more than one
	// slicectl instance (e.g. prod and staging pointed at the same
	// cluster), so one instance's path-search memoization can never
	// satisfy a lookup against another instance's topology.
	Namespace string `koanf:"namespace"`
}

// Address returns the cache backend's host:port.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig configures request throttling on the control-plane API.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Strategy        string        `koanf:"strategy"`
	Backend         string        `koanf:"backend"`
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`

	// AllocationMbpsPerWindow is the refill rate, in Mbps per AllocationWindow,
	// of the token bucket admitting new tunnels (which holds up to twice that),
	// independent of per-client request
	// counting above: it throttles how fast the data plane is asked to
	// program flows, not how often one caller calls the API. Zero disables
	// it.
	AllocationMbpsPerWindow int           `koanf:"allocation_mbps_per_window"`
	AllocationWindow        time.Duration `koanf:"allocation_window"`
}

// AuditConfig configures audit log capture.
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Backend         string        `koanf:"backend"`
	FilePath        string        `koanf:"file_path"`
	BufferSize      int           `koanf:"buffer_size"`
	FlushPeriod     time.Duration `koanf:"flush_period"`
	ExcludeMethods  []string      `koanf:"exclude_methods"`
	IncludeRequest  bool          `koanf:"include_request"`
	IncludeResponse bool          `koanf:"include_response"`
}

// RetryConfig configures exponential backoff for data-plane agent RPCs.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// ReportConfig configures the tabular xlsx report exporter.
type ReportConfig struct {
	MaxRowsPerSheet int    `koanf:"max_rows_per_sheet"`
	DefaultSheet    string `koanf:"default_sheet"`
	IncludeTopology bool   `koanf:"include_topology"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Agent.BaseURL == "" {
		errs = append(errs, "agent.base_url is required")
	}

	if c.Ledger.FilePath == "" {
		errs = append(errs, "ledger.file_path is required")
	}

	if c.Reconciler.Interval <= 0 {
		errs = append(errs, "reconciler.interval must be positive")
	}

	if c.Limits.MaxSwitches <= 0 {
		errs = append(errs, "limits.max_switches must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether the configured environment is development.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
