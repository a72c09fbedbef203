// internal/config/validation.go - Configuration validation
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/valpere/r4c-viewport/internal/query"
)

// Validate validates the configuration structure and values, reporting every invalid section
func Validate(config *Config) error {
	var err error

	if e := validateSource(&config.Source); e != nil {
		err = multierr.Append(err, fmt.Errorf("source configuration invalid: %w", e))
	}

	if e := validateServices(config); e != nil {
		err = multierr.Append(err, fmt.Errorf("service configuration invalid: %w", e))
	}

	if e := validateNetwork(&config.Network); e != nil {
		err = multierr.Append(err, fmt.Errorf("network configuration invalid: %w", e))
	}

	if e := validateTiles(&config.Tiles); e != nil {
		err = multierr.Append(err, fmt.Errorf("tiles configuration invalid: %w", e))
	}

	if e := validateClick(&config.Click); e != nil {
		err = multierr.Append(err, fmt.Errorf("click configuration invalid: %w", e))
	}

	if e := validateProxy(&config.Proxy); e != nil {
		err = multierr.Append(err, fmt.Errorf("proxy configuration invalid: %w", e))
	}

	if e := validateOutput(&config.Output); e != nil {
		err = multierr.Append(err, fmt.Errorf("output configuration invalid: %w", e))
	}

	if e := validateLogging(&config.Logging); e != nil {
		err = multierr.Append(err, fmt.Errorf("logging configuration invalid: %w", e))
	}

	return err
}

// validateSource validates the data source selection
func validateSource(config *SourceConfig) error {
	validTypes := []string{"http", "local"}
	if !contains(validTypes, config.Type) {
		return fmt.Errorf("invalid type: %s, must be one of %v", config.Type, validTypes)
	}

	if _, err := query.ParseMode(config.Mode); err != nil {
		return err
	}

	if strings.EqualFold(config.Type, "local") && config.LocalPath == "" {
		return fmt.Errorf("local_path is required for the local source")
	}

	return nil
}

// validateServices validates the feature service endpoints
func validateServices(config *Config) error {
	if err := validateBaseURL("wfs.base_url", config.WFS.BaseURL); err != nil {
		return err
	}
	if config.WFS.TypeNames == "" {
		return fmt.Errorf("wfs.type_names is required")
	}
	if config.WFS.CRSURN == "" {
		return fmt.Errorf("wfs.crs_urn is required")
	}

	if err := validateBaseURL("ogc.base_url", config.OGC.BaseURL); err != nil {
		return err
	}
	if config.OGC.Limit <= 0 {
		return fmt.Errorf("ogc.limit must be positive")
	}

	return nil
}

// validateBaseURL checks that a base URL is present and absolute
func validateBaseURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s: must be an absolute URL", name)
	}

	return nil
}

// validateNetwork validates network configuration parameters
func validateNetwork(config *NetworkConfig) error {
	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if config.ProxyURL != "" {
		if _, err := url.Parse(config.ProxyURL); err != nil {
			return fmt.Errorf("invalid proxy_url: %w", err)
		}
	}

	if config.MaxIdleConns < 0 {
		return fmt.Errorf("max_idle_conns must be non-negative")
	}

	if config.UserAgent == "" {
		return fmt.Errorf("user_agent cannot be empty")
	}

	if config.IdleConnTimeout < 0 {
		return fmt.Errorf("idle_conn_timeout must be non-negative")
	}

	if config.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be non-negative")
	}

	if config.RequestsPerSecond > 0 && config.Burst <= 0 {
		return fmt.Errorf("burst must be positive when requests_per_second is set")
	}

	return nil
}

// validateTiles validates viewport tile loading parameters
func validateTiles(config *TilesConfig) error {
	if config.Size <= 0 || config.Size > 1 {
		return fmt.Errorf("size must be in (0, 1] degrees")
	}

	if config.BufferFactor < 0 {
		return fmt.Errorf("buffer_factor must be non-negative")
	}

	if config.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive")
	}

	if config.MaxConcurrent > 64 {
		return fmt.Errorf("max_concurrent must not exceed 64")
	}

	if config.Debounce < 0 {
		return fmt.Errorf("debounce must be non-negative")
	}

	return nil
}

// validateClick validates click processing parameters
func validateClick(config *ClickConfig) error {
	if config.FlightDuration < 0 {
		return fmt.Errorf("flight_duration must be non-negative")
	}

	if config.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be positive")
	}

	if config.GracePeriod < 0 {
		return fmt.Errorf("grace_period must be non-negative")
	}

	if config.RetryBaseDelay < 0 {
		return fmt.Errorf("retry_base_delay must be non-negative")
	}

	if config.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}

	if config.RegionConcurrency <= 0 {
		return fmt.Errorf("region_concurrency must be positive")
	}

	if config.MaxRegionTiles <= 0 {
		return fmt.Errorf("max_region_tiles must be positive")
	}

	return nil
}

// validateProxy validates caching proxy parameters
func validateProxy(config *ProxyConfig) error {
	validBackends := []string{"memory", "redis", "none"}
	if !contains(validBackends, config.CacheBackend) {
		return fmt.Errorf("invalid cache_backend: %s, must be one of %v", config.CacheBackend, validBackends)
	}

	if strings.EqualFold(config.CacheBackend, "memory") && config.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive for the memory backend")
	}

	if strings.EqualFold(config.CacheBackend, "redis") && config.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required for the redis backend")
	}

	if config.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be non-negative")
	}

	return nil
}

// validateOutput validates output configuration parameters
func validateOutput(config *OutputConfig) error {
	validFormats := []string{"geojson", "json"}
	if !contains(validFormats, config.Format) {
		return fmt.Errorf("invalid format: %s, must be one of %v", config.Format, validFormats)
	}

	return nil
}

// validateLogging validates logging configuration parameters
func validateLogging(config *LoggingConfig) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	if !contains(validLevels, config.Level) {
		return fmt.Errorf("invalid log level: %s, must be one of %v", config.Level, validLevels)
	}

	validFormats := []string{"text", "json"}
	if !contains(validFormats, config.Format) {
		return fmt.Errorf("invalid log format: %s, must be one of %v", config.Format, validFormats)
	}

	validOutputs := []string{"stdout", "stderr"}
	if !contains(validOutputs, config.Output) {
		return fmt.Errorf("invalid log output: %s, must be one of %v", config.Output, validOutputs)
	}

	return nil
}

// ValidateLocalSource checks that the local snapshot file exists and is a regular file
func ValidateLocalSource(fs afero.Fs, config *Config) error {
	info, err := fs.Stat(config.Source.LocalPath)
	if err != nil {
		return fmt.Errorf("cannot access local_path %s: %w", config.Source.LocalPath, err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("local_path %s is not a regular file", config.Source.LocalPath)
	}

	return nil
}

// contains checks if a string slice contains a specific string (case-insensitive)
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
