// internal/config/config.go - Configuration management
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/r4c-viewport/internal/geo"
	"github.com/valpere/r4c-viewport/internal/query"
)

// Config represents the complete application configuration
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	WFS     WFSConfig     `mapstructure:"wfs"`
	OGC     OGCConfig     `mapstructure:"ogc"`
	Network NetworkConfig `mapstructure:"network"`
	Tiles   TilesConfig   `mapstructure:"tiles"`
	Click   ClickConfig   `mapstructure:"click"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourceConfig selects where features come from and which service is queried
type SourceConfig struct {
	Type      string `mapstructure:"type"`
	Mode      string `mapstructure:"mode"`
	LocalPath string `mapstructure:"local_path"`
}

// WFSConfig describes the WFS feature service (query mode "wfs")
type WFSConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	TypeNames    string `mapstructure:"type_names"`
	Version      string `mapstructure:"version"`
	OutputFormat string `mapstructure:"output_format"`
	SRSName      string `mapstructure:"srs_name"`
	CRSURN       string `mapstructure:"crs_urn"`
}

// OGCConfig describes the OGC API Features service (query mode "ogc")
type OGCConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Limit   int    `mapstructure:"limit"`
}

// NetworkConfig contains network-related configuration
type NetworkConfig struct {
	Timeout           time.Duration     `mapstructure:"timeout"`
	ProxyURL          string            `mapstructure:"proxy_url"`
	UserAgent         string            `mapstructure:"user_agent"`
	Headers           map[string]string `mapstructure:"headers"`
	MaxIdleConns      int               `mapstructure:"max_idle_conns"`
	IdleConnTimeout   time.Duration     `mapstructure:"idle_conn_timeout"`
	DisableKeepAlive  bool              `mapstructure:"disable_keep_alive"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second"`
	Burst             int               `mapstructure:"burst"`
}

// TilesConfig contains viewport tile loading configuration
type TilesConfig struct {
	Size          float64       `mapstructure:"size"`
	BufferFactor  float64       `mapstructure:"buffer_factor"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	Debounce      time.Duration `mapstructure:"debounce"`
}

// ClickConfig contains click-to-drill-down configuration
type ClickConfig struct {
	FlightDuration    time.Duration `mapstructure:"flight_duration"`
	FrameInterval     time.Duration `mapstructure:"frame_interval"`
	GracePeriod       time.Duration `mapstructure:"grace_period"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RegionConcurrency int           `mapstructure:"region_concurrency"`
	MaxRegionTiles    int           `mapstructure:"max_region_tiles"`
	CameraHeight      float64       `mapstructure:"camera_height"`
	CameraPitch       float64       `mapstructure:"camera_pitch"`
}

// ProxyConfig contains caching reverse-proxy configuration
type ProxyConfig struct {
	Addr          string        `mapstructure:"addr"`
	CacheBackend  string        `mapstructure:"cache_backend"`
	CacheSize     int           `mapstructure:"cache_size"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// OutputConfig contains output formatting configuration
type OutputConfig struct {
	Format      string `mapstructure:"format"`
	Pretty      bool   `mapstructure:"pretty"`
	Compression bool   `mapstructure:"compression"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load loads configuration from various sources
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom loads configuration from a specific viper instance
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.type", "http")
	v.SetDefault("source.mode", string(query.ModeOGC))
	v.SetDefault("source.local_path", "")

	// Feature service defaults
	v.SetDefault("wfs.base_url", query.DefaultWFSBaseURL)
	v.SetDefault("wfs.type_names", query.DefaultWFSTypeNames)
	v.SetDefault("wfs.version", query.DefaultWFSVersion)
	v.SetDefault("wfs.output_format", query.DefaultOutputFormat)
	v.SetDefault("wfs.srs_name", query.DefaultSRSName)
	v.SetDefault("wfs.crs_urn", query.DefaultCRSURN)
	v.SetDefault("ogc.base_url", query.DefaultOGCBaseURL)
	v.SetDefault("ogc.limit", query.DefaultOGCLimit)

	// Network defaults
	v.SetDefault("network.timeout", 30*time.Second)
	v.SetDefault("network.user_agent", "R4CViewport/1.0")
	v.SetDefault("network.max_idle_conns", 100)
	v.SetDefault("network.idle_conn_timeout", 90*time.Second)
	v.SetDefault("network.disable_keep_alive", false)
	v.SetDefault("network.requests_per_second", 20.0)
	v.SetDefault("network.burst", 6)

	// Tile loading defaults
	v.SetDefault("tiles.size", geo.DefaultTileSize)
	v.SetDefault("tiles.buffer_factor", 0.2)
	v.SetDefault("tiles.max_concurrent", 6)
	v.SetDefault("tiles.debounce", 300*time.Millisecond)

	// Click processing defaults
	v.SetDefault("click.flight_duration", 3*time.Second)
	v.SetDefault("click.frame_interval", 16*time.Millisecond)
	v.SetDefault("click.grace_period", 2*time.Second)
	v.SetDefault("click.retry_base_delay", time.Second)
	v.SetDefault("click.max_retries", 3)
	v.SetDefault("click.region_concurrency", 4)
	v.SetDefault("click.max_region_tiles", 400)
	v.SetDefault("click.camera_height", 2500.0)
	v.SetDefault("click.camera_pitch", -35.0)

	// Proxy defaults
	v.SetDefault("proxy.addr", ":8080")
	v.SetDefault("proxy.cache_backend", "memory")
	v.SetDefault("proxy.cache_size", 512)
	v.SetDefault("proxy.cache_ttl", 10*time.Minute)
	v.SetDefault("proxy.redis_addr", "127.0.0.1:6379")
	v.SetDefault("proxy.redis_db", 0)

	// Output defaults
	v.SetDefault("output.format", "geojson")
	v.SetDefault("output.pretty", true)
	v.SetDefault("output.compression", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
}

// QueryMode returns the configured feature service mode
func (c *Config) QueryMode() (query.Mode, error) {
	return query.ParseMode(c.Source.Mode)
}

// QueryBuilder builds a query.Builder from the service sections
func (c *Config) QueryBuilder() *query.Builder {
	return &query.Builder{
		WFS: query.WFSEndpoint{
			BaseURL:      c.WFS.BaseURL,
			TypeNames:    c.WFS.TypeNames,
			Version:      c.WFS.Version,
			OutputFormat: c.WFS.OutputFormat,
			SRSName:      c.WFS.SRSName,
			CRSURN:       c.WFS.CRSURN,
		},
		OGC: query.OGCEndpoint{
			BaseURL: c.OGC.BaseURL,
			Limit:   c.OGC.Limit,
		},
	}
}

// UpstreamURL returns the base URL of the service behind a query mode
func (c *Config) UpstreamURL(mode query.Mode) string {
	if mode == query.ModeWFS {
		return c.WFS.BaseURL
	}
	return c.OGC.BaseURL
}
