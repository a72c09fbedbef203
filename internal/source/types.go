// internal/source/types.go - Feature data source types
package source

import (
	"context"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/valpere/r4c-viewport/internal/geo"
)

// Type identifies a feature data source implementation
type Type string

const (
	// TypeHTTP queries a remote WFS or OGC API Features service
	TypeHTTP Type = "http"
	// TypeLocal serves features from a GeoJSON snapshot on disk
	TypeLocal Type = "local"
)

// Response represents the features returned for one bounding-box query
type Response struct {
	URL        string                     `json:"url"`
	Features   *geojson.FeatureCollection `json:"-"`
	StatusCode int                        `json:"status_code"`
	Size       int                        `json:"size"`
	FetchTime  time.Duration              `json:"fetch_time"`
}

// Count returns the number of features in the response
func (r *Response) Count() int {
	if r == nil || r.Features == nil {
		return 0
	}
	return len(r.Features.Features)
}

// Source defines the interface for fetching features inside a bounding box
type Source interface {
	FetchBounds(ctx context.Context, bounds geo.Bounds) (*Response, error)
}

// SourceFunc adapts a function to the Source interface
type SourceFunc func(ctx context.Context, bounds geo.Bounds) (*Response, error)

// FetchBounds calls f(ctx, bounds)
func (f SourceFunc) FetchBounds(ctx context.Context, bounds geo.Bounds) (*Response, error) {
	return f(ctx, bounds)
}
