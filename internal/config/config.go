// Package config defines the wortwatch configuration, loaded from YAML
// with defaults applied for any omitted field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete wortwatch configuration.
type Config struct {
	// Landing configures report file detection and processing.
	Landing LandingConfig `yaml:"landing"`

	// Cache configures the hot cache tier.
	Cache CacheConfig `yaml:"cache"`

	// Durable configures the durable store tier.
	Durable DurableConfig `yaml:"durable"`

	// Query configures read-side defaults and bounds.
	Query QueryConfig `yaml:"query"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// LandingConfig configures report file detection and processing.
type LandingConfig struct {
	// Dir is the landing directory watched for report files.
	Dir string `yaml:"dir"`

	// Extension is the recognized report file extension, including the dot.
	Extension string `yaml:"extension"`

	// QueueSize bounds the number of detected files awaiting a worker.
	QueueSize int `yaml:"queue_size"`

	// Workers is the number of concurrent file processors.
	Workers int `yaml:"workers"`

	// RescanInterval is how often the directory is swept for files
	// whose create events were missed. Zero disables the sweep.
	RescanInterval Duration `yaml:"rescan_interval"`

	// DrainTimeout bounds how long shutdown waits for in-flight files.
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// CacheConfig configures the hot cache tier.
type CacheConfig struct {
	// Addr is the cache server address (host:port).
	Addr string `yaml:"addr"`

	// DB is the cache database number.
	DB int `yaml:"db"`

	// Password is the cache password, empty when unauthenticated.
	Password string `yaml:"password"`

	// KeyPrefix namespaces all reading keys.
	KeyPrefix string `yaml:"key_prefix"`

	// Retention is the per-reading time-to-live. Expiry is enforced by
	// the cache server, not by explicit deletion.
	Retention Duration `yaml:"retention"`

	// ScanBatch is the key count requested per SCAN page and the chunk
	// size for bulk gets.
	ScanBatch int `yaml:"scan_batch"`

	// DialTimeout bounds connection establishment.
	DialTimeout Duration `yaml:"dial_timeout"`

	// OpTimeout bounds individual cache operations.
	OpTimeout Duration `yaml:"op_timeout"`
}

// DurableConfig configures the durable store tier.
type DurableConfig struct {
	// URI is the store connection string.
	URI string `yaml:"uri"`

	// Database is the database name.
	Database string `yaml:"database"`

	// Collection is the readings collection name.
	Collection string `yaml:"collection"`

	// OpTimeout bounds individual store operations.
	OpTimeout Duration `yaml:"op_timeout"`
}

// QueryConfig configures read-side defaults and bounds.
type QueryConfig struct {
	// RecentDefault is the reading count returned when none is requested.
	RecentDefault int `yaml:"recent_default"`

	// RecentMax caps the reading count a caller may request.
	RecentMax int `yaml:"recent_max"`

	// PageSize is the historical page size when none is requested.
	PageSize int `yaml:"page_size"`

	// PageSizeMax caps the historical page size.
	PageSizeMax int `yaml:"page_size_max"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// ListenAddr is the bind address (host:port).
	ListenAddr string `yaml:"listen_addr"`

	// ReadTimeout bounds request reading.
	ReadTimeout Duration `yaml:"read_timeout"`

	// WriteTimeout bounds response writing.
	WriteTimeout Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is one of: text, json.
	Format string `yaml:"format"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Landing: LandingConfig{
			Dir:            "incoming_reports",
			Extension:      ".json",
			QueueSize:      256,
			Workers:        4,
			RescanInterval: Duration(30 * time.Second),
			DrainTimeout:   Duration(30 * time.Second),
		},
		Cache: CacheConfig{
			Addr:        "localhost:6379",
			DB:          0,
			KeyPrefix:   "sensor_data:",
			Retention:   Duration(72 * time.Hour),
			ScanBatch:   512,
			DialTimeout: Duration(5 * time.Second),
			OpTimeout:   Duration(5 * time.Second),
		},
		Durable: DurableConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "brewing_db",
			Collection: "sensor_readings",
			OpTimeout:  Duration(10 * time.Second),
		},
		Query: QueryConfig{
			RecentDefault: 20,
			RecentMax:     1000,
			PageSize:      50,
			PageSizeMax:   1000,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     Duration(5 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
