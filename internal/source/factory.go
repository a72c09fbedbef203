// internal/source/factory.go - Source factory implementation
package source

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/valpere/r4c-viewport/internal/config"
)

// New creates the source selected by the configuration
func New(cfg *config.Config, fs afero.Fs) (Source, error) {
	return NewForType(cfg, fs, Type(strings.ToLower(cfg.Source.Type)))
}

// NewForType creates a source of a specific type
func NewForType(cfg *config.Config, fs afero.Fs, sourceType Type) (Source, error) {
	switch sourceType {
	case TypeHTTP:
		return NewHTTPSource(cfg)
	case TypeLocal:
		if cfg.Source.LocalPath == "" {
			return nil, fmt.Errorf("local_path is required for the local source")
		}
		if err := config.ValidateLocalSource(fs, cfg); err != nil {
			return nil, fmt.Errorf("local source validation failed: %w", err)
		}
		return NewLocalSource(fs, cfg.Source.LocalPath), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}
