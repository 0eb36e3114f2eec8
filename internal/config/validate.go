package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Landing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("landing: %w", err))
	}

	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}

	if err := c.Durable.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("durable: %w", err))
	}

	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the landing configuration.
func (c *LandingConfig) Validate() error {
	var errs []error

	if c.Dir == "" {
		errs = append(errs, errors.New("dir is required"))
	}

	if c.Extension == "" || !strings.HasPrefix(c.Extension, ".") {
		errs = append(errs, errors.New("extension must start with a dot"))
	}

	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("queue_size must be positive"))
	}

	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}

	if c.RescanInterval < 0 {
		errs = append(errs, errors.New("rescan_interval must not be negative"))
	}

	if c.DrainTimeout <= 0 {
		errs = append(errs, errors.New("drain_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the cache configuration.
func (c *CacheConfig) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}

	if c.DB < 0 {
		errs = append(errs, errors.New("db must not be negative"))
	}

	if c.KeyPrefix == "" {
		errs = append(errs, errors.New("key_prefix is required"))
	}

	if c.Retention <= 0 {
		errs = append(errs, errors.New("retention must be positive"))
	}

	if c.ScanBatch <= 0 {
		errs = append(errs, errors.New("scan_batch must be positive"))
	}

	if c.DialTimeout <= 0 {
		errs = append(errs, errors.New("dial_timeout must be positive"))
	}

	if c.OpTimeout <= 0 {
		errs = append(errs, errors.New("op_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the durable store configuration.
func (c *DurableConfig) Validate() error {
	var errs []error

	if c.URI == "" {
		errs = append(errs, errors.New("uri is required"))
	}

	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}

	if c.Collection == "" {
		errs = append(errs, errors.New("collection is required"))
	}

	if c.OpTimeout <= 0 {
		errs = append(errs, errors.New("op_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	var errs []error

	if c.RecentDefault <= 0 {
		errs = append(errs, errors.New("recent_default must be positive"))
	}

	if c.RecentMax < c.RecentDefault {
		errs = append(errs, errors.New("recent_max must be at least recent_default"))
	}

	if c.PageSize <= 0 {
		errs = append(errs, errors.New("page_size must be positive"))
	}

	if c.PageSizeMax < c.PageSize {
		errs = append(errs, errors.New("page_size_max must be at least page_size"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}

	if c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("read_timeout must be positive"))
	}

	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("write_timeout must be positive"))
	}

	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	var errs []error

	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		errs = append(errs, fmt.Errorf("level must be one of: debug, info, warn, error"))
	}

	switch strings.ToLower(c.Format) {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("format must be one of: text, json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
