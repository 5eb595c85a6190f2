package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vango-dev/connect/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "connect.json"

	// DefaultAddr is the default devtools listen address.
	DefaultAddr = "localhost:7070"

	// DefaultNamespace is the default Prometheus namespace.
	DefaultNamespace = "connect"

	// DefaultSnapshotKey is the default key snapshots are stored under.
	DefaultSnapshotKey = "state.json"
)

// Persistence backends.
const (
	BackendNone = "none"
	BackendFile = "file"
	BackendS3   = "s3"
)

// Config represents the complete connect.json configuration.
type Config struct {
	// Devtools contains the devtools server configuration.
	Devtools DevtoolsConfig `json:"devtools,omitempty"`

	// Metrics contains Prometheus configuration.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// Log contains logging configuration.
	Log LogConfig `json:"log,omitempty"`

	// Persist contains state snapshot configuration.
	Persist PersistConfig `json:"persist,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// DevtoolsConfig contains devtools server settings.
type DevtoolsConfig struct {
	// Addr is the address the server listens on.
	Addr string `json:"addr,omitempty"`

	// AllowedOrigins restricts websocket origins. Empty allows all.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Namespace is the metrics namespace.
	Namespace string `json:"namespace,omitempty"`

	// Subsystem is the metrics subsystem.
	Subsystem string `json:"subsystem,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// PersistConfig contains state snapshot settings.
type PersistConfig struct {
	// Backend is none, file or s3.
	Backend string `json:"backend,omitempty"`

	// Dir is the snapshot directory for the file backend.
	Dir string `json:"dir,omitempty"`

	// Bucket is the S3 bucket for the s3 backend.
	Bucket string `json:"bucket,omitempty"`

	// Prefix is prepended to S3 object keys.
	Prefix string `json:"prefix,omitempty"`

	// Region overrides the AWS region.
	Region string `json:"region,omitempty"`

	// Key is the snapshot name.
	Key string `json:"key,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Devtools: DevtoolsConfig{
			Addr: DefaultAddr,
		},
		Metrics: MetricsConfig{
			Namespace: DefaultNamespace,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Persist: PersistConfig{
			Backend: BackendNone,
			Key:     DefaultSnapshotKey,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for connect.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("C010").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Create " + ConfigFileName + " or run without --config")
		}
		return nil, errors.New("C011").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		cerr := errors.New("C011").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON").
			Wrap(err)
		if line, col, ok := errorPosition(data, err); ok {
			cerr = cerr.WithLocation(path, line, col)
		}
		return nil, cerr
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// errorPosition maps a JSON decode error offset to a line and column.
func errorPosition(data []byte, err error) (line, col int, ok bool) {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stderrors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case stderrors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return 0, 0, false
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, col = 1, 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col, true
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("C011").Wrap(err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("C011").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Devtools.Addr == "" {
		c.Devtools.Addr = DefaultAddr
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Persist.Backend == "" {
		c.Persist.Backend = BackendNone
	}
	if c.Persist.Key == "" {
		c.Persist.Key = DefaultSnapshotKey
	}
	if c.Persist.Backend == BackendFile && c.Persist.Dir == "" {
		c.Persist.Dir = ".connect"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New("C012").
			WithDetail(fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}

	switch c.Persist.Backend {
	case BackendNone, BackendFile:
	case BackendS3:
		if c.Persist.Bucket == "" {
			return errors.New("C012").
				WithDetail("persist.bucket is required for the s3 backend")
		}
	default:
		return errors.New("C012").
			WithDetail(fmt.Sprintf("persist.backend must be none, file or s3, got %q", c.Persist.Backend))
	}

	if c.Devtools.Addr != "" && !strings.Contains(c.Devtools.Addr, ":") {
		return errors.New("C012").
			WithDetail(fmt.Sprintf("devtools.addr must be host:port, got %q", c.Devtools.Addr))
	}
	return nil
}

// SlogLevel parses Log.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, errors.New("C012").
		WithDetail(fmt.Sprintf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
}

// SnapshotDir returns the absolute snapshot directory for the file backend.
func (c *Config) SnapshotDir() string {
	if filepath.IsAbs(c.Persist.Dir) || c.Dir() == "" {
		return c.Persist.Dir
	}
	return filepath.Join(c.Dir(), c.Persist.Dir)
}
