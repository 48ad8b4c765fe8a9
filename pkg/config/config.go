// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < explicit file < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/logflow/bundler/pkg/adapters"
	"github.com/logflow/bundler/pkg/bundle"
	errs "github.com/logflow/bundler/pkg/errors"
	"github.com/logflow/bundler/pkg/pipeline"
	"github.com/logflow/bundler/pkg/storage/s3"
	"github.com/logflow/bundler/pkg/telemetry"
)

// DefaultInput is the public sample of friend tour events.
const DefaultInput = "https://static-eu-komoot.s3.amazonaws.com/backend/challenge/notifications.csv"

// Output formats.
const (
	FormatTable   = "table"
	FormatCSV     = "csv"
	FormatParquet = "parquet"
	FormatXLSX    = "xlsx"
	FormatRedis   = "redis"
)

// Input engines.
const (
	EngineGo     = "go"
	EngineDuckDB = "duckdb"
)

// Config holds all bundler configuration.
type Config struct {
	Version int `yaml:"version"`

	Bundle    BundleConfig    `yaml:"bundle"`
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Run       RunConfig       `yaml:"run"`
	S3        S3Config        `yaml:"s3"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BundleConfig controls the boundary search.
type BundleConfig struct {
	MaxIter         int    `yaml:"max_iter"`
	Strategy        string `yaml:"strategy"` // two-phase | interleaved | exhaustive
	ExhaustiveLimit int    `yaml:"exhaustive_limit"`
	CheckSorted     bool   `yaml:"check_sorted"`
}

// InputConfig controls how events are read.
type InputConfig struct {
	Path      string `yaml:"path"`
	Engine    string `yaml:"engine"` // go | duckdb
	Timezone  string `yaml:"timezone"`
	Delimiter string `yaml:"delimiter"`
	Header    bool   `yaml:"header"`
}

// OutputConfig controls where notifications go.
type OutputConfig struct {
	Format      string `yaml:"format"`
	Path        string `yaml:"path"` // "" or "-" = stdout
	Compression string `yaml:"compression"`
	Rows        int    `yaml:"rows"` // rows printed in table mode
}

// RunConfig controls the worker pool and failure policy.
type RunConfig struct {
	Workers        int    `yaml:"workers"` // 0 = GOMAXPROCS
	ErrorPolicy    string `yaml:"error_policy"`
	QuarantinePath string `yaml:"quarantine_path"`
	MaxErrors      int64  `yaml:"max_errors"`
	// MetricsAddr serves Prometheus metrics in watch mode (e.g. ":9090").
	MetricsAddr string `yaml:"metrics_addr"`
}

// S3Config for s3:// input and output.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// RedisConfig for the notification stream output.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
	// BatchSize is the number of entries per pipeline (0 = default).
	BatchSize int `yaml:"batch_size"`
}

// TelemetryConfig for OTLP trace export.
type TelemetryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Endpoint      string        `yaml:"endpoint"`
	ServiceName   string        `yaml:"service_name"`
	SamplingRatio float64       `yaml:"sampling_ratio"`
	Insecure      bool          `yaml:"insecure"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	redis := adapters.DefaultRedisOptions()
	tel := telemetry.DefaultConfig()

	return &Config{
		Version: 1,
		Bundle: BundleConfig{
			MaxIter:         bundle.DefaultMaxIter,
			Strategy:        bundle.StrategyTwoPhase.String(),
			ExhaustiveLimit: bundle.DefaultExhaustiveLimit,
			CheckSorted:     true,
		},
		Input: InputConfig{
			Path:      DefaultInput,
			Engine:    EngineGo,
			Timezone:  "UTC",
			Delimiter: ",",
		},
		Output: OutputConfig{
			Format:      FormatTable,
			Compression: "snappy",
			Rows:        50,
		},
		Run: RunConfig{
			ErrorPolicy: pipeline.ErrorPolicySkip.String(),
		},
		Redis: RedisConfig{
			Address: redis.Address,
			Stream:  redis.Stream,
		},
		Telemetry: TelemetryConfig{
			Endpoint:      tel.Endpoint,
			ServiceName:   tel.ServiceName,
			SamplingRatio: tel.SamplingRatio,
			Insecure:      tel.Insecure,
			BatchTimeout:  tel.BatchTimeout,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu          sync.RWMutex
	config      *Config
	paths       []string // Paths that were loaded
	searchPaths []string
}

// NewManager creates a new configuration manager searching the standard paths.
func NewManager() *Manager {
	return &Manager{
		config:      Default(),
		searchPaths: defaultSearchPaths(),
	}
}

// WithSearchPaths replaces the implicit config file locations.
func (m *Manager) WithSearchPaths(paths ...string) *Manager {
	m.searchPaths = paths
	return m
}

// Load loads configuration from all sources in priority order. A non-empty
// explicit path must exist and overrides the implicit files.
func (m *Manager) Load(explicit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.searchPaths {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	if explicit != "" {
		if err := m.loadFile(explicit); err != nil {
			if os.IsNotExist(err) {
				return errs.FileNotFound(explicit)
			}
			return err
		}
		m.paths = append(m.paths, explicit)
	}

	return m.loadEnv()
}

// defaultSearchPaths returns config file paths in priority order.
func defaultSearchPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/bundler/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".bundler", "config.yaml"))
	}

	// Project config
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".bundler.yaml"))
	}

	return paths
}

// loadFile decodes a config file over the current configuration. Keys absent
// from the file keep their current value.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, m.config); err != nil {
		return errs.Wrap(err, errs.CodeInvalidFormat, "invalid config file").WithContext("path", path)
	}
	return nil
}

// loadEnv loads configuration from BUNDLER_* environment variables.
func (m *Manager) loadEnv() error {
	strs := map[string]*string{
		"BUNDLER_INPUT":          &m.config.Input.Path,
		"BUNDLER_ENGINE":         &m.config.Input.Engine,
		"BUNDLER_TIMEZONE":       &m.config.Input.Timezone,
		"BUNDLER_FORMAT":         &m.config.Output.Format,
		"BUNDLER_OUTPUT":         &m.config.Output.Path,
		"BUNDLER_COMPRESSION":    &m.config.Output.Compression,
		"BUNDLER_STRATEGY":       &m.config.Bundle.Strategy,
		"BUNDLER_ERROR_POLICY":   &m.config.Run.ErrorPolicy,
		"BUNDLER_QUARANTINE":     &m.config.Run.QuarantinePath,
		"BUNDLER_METRICS_ADDR":   &m.config.Run.MetricsAddr,
		"BUNDLER_REDIS_ADDR":     &m.config.Redis.Address,
		"BUNDLER_REDIS_PASSWORD": &m.config.Redis.Password,
		"BUNDLER_S3_REGION":      &m.config.S3.Region,
		"BUNDLER_S3_ENDPOINT":    &m.config.S3.Endpoint,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"BUNDLER_MAX_ITER": &m.config.Bundle.MaxIter,
		"BUNDLER_WORKERS":  &m.config.Run.Workers,
		"BUNDLER_ROWS":     &m.config.Output.Rows,
	}
	for name, dst := range ints {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.New(errs.CodeValidationFailed, "invalid integer in environment").
				WithContext("var", name).
				WithContext("value", v)
		}
		*dst = n
	}

	// BUNDLER_OTLP_ENDPOINT also enables export
	if v := os.Getenv("BUNDLER_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to path.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the configuration for values no run could use.
func (c *Config) Validate() error {
	var merr errs.MultiError
	invalid := func(field string, value interface{}, msg string) {
		merr.Add(errs.New(errs.CodeValidationFailed, msg).
			WithContext("field", field).
			WithContext("value", value))
	}

	if c.Bundle.MaxIter < 1 {
		invalid("bundle.max_iter", c.Bundle.MaxIter, "must be at least 1")
	}
	if _, err := bundle.ParseStrategy(c.Bundle.Strategy); err != nil {
		invalid("bundle.strategy", c.Bundle.Strategy, "unknown strategy")
	}
	if c.Bundle.ExhaustiveLimit < 0 {
		invalid("bundle.exhaustive_limit", c.Bundle.ExhaustiveLimit, "must not be negative")
	}

	if c.Input.Path == "" {
		invalid("input.path", c.Input.Path, "input is required")
	}
	switch c.Input.Engine {
	case EngineGo:
	case EngineDuckDB:
		if c.Input.Path == "-" {
			invalid("input.engine", c.Input.Engine, "duckdb cannot read stdin")
		}
	default:
		invalid("input.engine", c.Input.Engine, "unknown engine")
	}
	if _, err := c.Location(); err != nil {
		invalid("input.timezone", c.Input.Timezone, "unknown time zone")
	}
	if utf8.RuneCountInString(c.Input.Delimiter) != 1 {
		invalid("input.delimiter", c.Input.Delimiter, "must be a single character")
	}

	switch c.Output.Format {
	case FormatTable, FormatCSV:
	case FormatParquet, FormatXLSX:
		if c.Output.Path == "" {
			invalid("output.path", c.Output.Path, fmt.Sprintf("%s output needs a path", c.Output.Format))
		}
	case FormatRedis:
		if c.Redis.Address == "" {
			invalid("redis.address", c.Redis.Address, "redis output needs an address")
		}
	default:
		invalid("output.format", c.Output.Format, "unknown format")
	}
	if _, err := adapters.ParseCompression(c.Output.Compression); err != nil {
		invalid("output.compression", c.Output.Compression, "unknown compression")
	}
	if c.Output.Rows < 0 {
		invalid("output.rows", c.Output.Rows, "must not be negative")
	}

	if c.Run.Workers < 0 {
		invalid("run.workers", c.Run.Workers, "must not be negative")
	}
	policy, err := pipeline.ParseErrorPolicy(c.Run.ErrorPolicy)
	if err != nil {
		invalid("run.error_policy", c.Run.ErrorPolicy, "unknown error policy")
	} else if policy == pipeline.ErrorPolicyQuarantine && c.Run.QuarantinePath == "" {
		invalid("run.quarantine_path", c.Run.QuarantinePath, "quarantine policy needs a path")
	}

	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		invalid("telemetry.sampling_ratio", c.Telemetry.SamplingRatio, "must be between 0 and 1")
	}

	return merr.Combined()
}

// Location returns the grouping time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Input.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Input.Timezone)
}

// Delimiter returns the input field separator.
func (c *Config) Delimiter() rune {
	r, _ := utf8.DecodeRuneInString(c.Input.Delimiter)
	if r == utf8.RuneError {
		return ','
	}
	return r
}

// BundleOptions returns the bundler options for the configured search.
func (c *Config) BundleOptions() []bundle.Option {
	strategy, _ := bundle.ParseStrategy(c.Bundle.Strategy)
	return []bundle.Option{
		bundle.WithMaxIter(c.Bundle.MaxIter),
		bundle.WithStrategy(strategy),
		bundle.WithExhaustiveLimit(c.Bundle.ExhaustiveLimit),
		bundle.WithSortCheck(c.Bundle.CheckSorted),
	}
}

// ErrorPolicy returns the parsed failure policy.
func (c *Config) ErrorPolicy() pipeline.ErrorPolicy {
	p, _ := pipeline.ParseErrorPolicy(c.Run.ErrorPolicy)
	return p
}

// S3Client returns the S3 client configuration.
func (c *Config) S3Client() s3.Config {
	cfg := s3.DefaultConfig()
	cfg.Region = c.S3.Region
	cfg.Endpoint = c.S3.Endpoint
	cfg.UsePathStyle = c.S3.UsePathStyle
	cfg.AccessKeyID = c.S3.AccessKeyID
	cfg.SecretAccessKey = c.S3.SecretAccessKey
	return cfg
}

// RedisOptions returns the notification stream options.
func (c *Config) RedisOptions() adapters.RedisOptions {
	opts := adapters.DefaultRedisOptions()
	opts.Address = c.Redis.Address
	opts.Password = c.Redis.Password
	opts.Database = c.Redis.DB
	if c.Redis.Stream != "" {
		opts.Stream = c.Redis.Stream
	}
	opts.MaxLen = c.Redis.MaxLen
	if c.Redis.BatchSize > 0 {
		opts.BatchSize = c.Redis.BatchSize
	}
	return opts
}

// TelemetryOptions returns the trace exporter configuration.
func (c *Config) TelemetryOptions(version string) telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = c.Telemetry.Enabled
	cfg.Endpoint = c.Telemetry.Endpoint
	cfg.ServiceName = c.Telemetry.ServiceName
	cfg.ServiceVersion = version
	cfg.SamplingRatio = c.Telemetry.SamplingRatio
	cfg.Insecure = c.Telemetry.Insecure
	if c.Telemetry.BatchTimeout > 0 {
		cfg.BatchTimeout = c.Telemetry.BatchTimeout
	}
	return cfg
}
