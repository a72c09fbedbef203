// internal/output/types.go - Output handling types
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/valpere/r4c-viewport/internal/geo"
)

// Format represents different output formats supported by the application
type Format string

const (
	FormatGeoJSON Format = "geojson"
	FormatJSON    Format = "json"
)

// Document is one loaded region dataset ready for output
type Document struct {
	RegionID    string                     `json:"region_id"`
	Name        string                     `json:"name,omitempty"`
	Bounds      geo.Bounds                 `json:"bounds"`
	Features    *geojson.FeatureCollection `json:"-"`
	Tiles       int                        `json:"tiles"`
	LoadTime    time.Duration              `json:"load_time"`
	GeneratedAt time.Time                  `json:"generated_at"`
}

// FeatureCount returns the number of features in the document
func (d *Document) FeatureCount() int {
	if d == nil || d.Features == nil {
		return 0
	}
	return len(d.Features.Features)
}

// Writer defines the interface for writing region documents to various destinations
type Writer interface {
	Write(doc *Document) error
	WriteBatch(docs []*Document) error
	Summary() Summary
	Close() error
}

// Summary describes what a writer has produced so far
type Summary struct {
	ContentType string
	Files       []string
	Bytes       int64
}

// Formatter defines the interface for formatting documents into different output formats
type Formatter interface {
	Format(doc *Document) ([]byte, error)
	FormatBatch(docs []*Document) ([]byte, error)
	ContentType() string
}

// Destination represents an output destination (file, stdout, etc.)
type Destination interface {
	io.WriteCloser
	Name() string
	Size() int64
}

// WriterConfig contains configuration for creating writers
type WriterConfig struct {
	Format      Format
	Pretty      bool
	Compression bool
	Metadata    bool
}

// FormatterConfig contains configuration for creating formatters
type FormatterConfig struct {
	Format       Format
	Pretty       bool
	IncludeStats bool
}

// ParseFormat converts a configuration string into a Format
func ParseFormat(s string) (Format, error) {
	f := Format(s)
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format: %s", s)
	}
	return f, nil
}

// String returns a string representation of the format
func (f Format) String() string {
	return string(f)
}

// IsValid checks if the format is supported
func (f Format) IsValid() bool {
	switch f {
	case FormatGeoJSON, FormatJSON:
		return true
	default:
		return false
	}
}

// Extension returns the file extension for the format
func (f Format) Extension() string {
	if f == FormatGeoJSON {
		return ".geojson"
	}
	return ".json"
}
