// internal/config/config_test.go - Unit tests for configuration loading
package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/valpere/r4c-viewport/internal/query"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	if err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}

	if cfg.Tiles.Size != 0.01 {
		t.Errorf("Expected tile size 0.01, got %v", cfg.Tiles.Size)
	}
	if cfg.Click.FlightDuration != 3*time.Second {
		t.Errorf("Expected flight duration 3s, got %v", cfg.Click.FlightDuration)
	}
	if cfg.Click.MaxRetries != 3 {
		t.Errorf("Expected 3 retries, got %d", cfg.Click.MaxRetries)
	}

	mode, err := cfg.QueryMode()
	if err != nil || mode != query.ModeOGC {
		t.Errorf("Expected mode ogc, got %q (%v)", mode, err)
	}

	b := cfg.QueryBuilder()
	if b.WFS.BaseURL != query.DefaultWFSBaseURL || b.OGC.Limit != query.DefaultOGCLimit {
		t.Errorf("Unexpected builder %+v", b)
	}
	if cfg.UpstreamURL(query.ModeWFS) != query.DefaultWFSBaseURL {
		t.Errorf("Unexpected WFS upstream %s", cfg.UpstreamURL(query.ModeWFS))
	}
}

func TestLoadOverrides(t *testing.T) {
	v := viper.New()
	v.Set("source.mode", "wfs")
	v.Set("tiles.max_concurrent", 2)
	v.Set("click.grace_period", "500ms")

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Source.Mode != "wfs" || cfg.Tiles.MaxConcurrent != 2 {
		t.Errorf("Overrides not applied: %+v", cfg)
	}
	if cfg.Click.GracePeriod != 500*time.Millisecond {
		t.Errorf("Expected 500ms grace period, got %v", cfg.Click.GracePeriod)
	}
}

func TestValidateReportsEverySection(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	cfg.Source.Mode = "tms"
	cfg.Tiles.MaxConcurrent = 0
	cfg.Logging.Level = "loud"

	err = Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation errors")
	}

	errs := multierr.Errors(err)
	if len(errs) != 3 {
		t.Fatalf("Expected 3 errors, got %d: %v", len(errs), err)
	}
	for _, section := range []string{"source", "tiles", "logging"} {
		if !strings.Contains(err.Error(), section+" configuration invalid") {
			t.Errorf("Expected %s section in %v", section, err)
		}
	}
}

func TestValidateSections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"local without path", func(c *Config) { c.Source.Type = "local" }},
		{"relative wfs url", func(c *Config) { c.WFS.BaseURL = "/geoserver/wfs" }},
		{"zero ogc limit", func(c *Config) { c.OGC.Limit = 0 }},
		{"zero timeout", func(c *Config) { c.Network.Timeout = 0 }},
		{"rate without burst", func(c *Config) { c.Network.Burst = 0 }},
		{"negative buffer", func(c *Config) { c.Tiles.BufferFactor = -1 }},
		{"zero frame interval", func(c *Config) { c.Click.FrameInterval = 0 }},
		{"negative retries", func(c *Config) { c.Click.MaxRetries = -1 }},
		{"unknown cache backend", func(c *Config) { c.Proxy.CacheBackend = "memcached" }},
		{"redis without addr", func(c *Config) { c.Proxy.CacheBackend = "redis"; c.Proxy.RedisAddr = "" }},
		{"unknown output format", func(c *Config) { c.Output.Format = "csv" }},
		{"file log output", func(c *Config) { c.Logging.Output = "file" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(viper.New())
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestValidateLocalSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/data/buildings.geojson", []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := fs.MkdirAll("/data/dir", 0755); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{Source: SourceConfig{Type: "local", LocalPath: "/data/buildings.geojson"}}
	if err := ValidateLocalSource(fs, cfg); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	cfg.Source.LocalPath = "/data/dir"
	if err := ValidateLocalSource(fs, cfg); err == nil {
		t.Error("Expected error for a directory")
	}

	cfg.Source.LocalPath = "/missing.geojson"
	if err := ValidateLocalSource(fs, cfg); err == nil {
		t.Error("Expected error for a missing file")
	}
}
