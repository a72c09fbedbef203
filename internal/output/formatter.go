// internal/output/formatter.go - Output formatting implementation
package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/valpere/r4c-viewport/internal/region"
)

// GeoJSONFormatter formats documents as GeoJSON FeatureCollections
type GeoJSONFormatter struct {
	pretty       bool
	includeStats bool
}

// NewGeoJSONFormatter creates a new GeoJSON formatter
func NewGeoJSONFormatter(pretty, includeStats bool) *GeoJSONFormatter {
	return &GeoJSONFormatter{
		pretty:       pretty,
		includeStats: includeStats,
	}
}

// Format formats a single document as a FeatureCollection
func (f *GeoJSONFormatter) Format(doc *Document) ([]byte, error) {
	if doc == nil || doc.Features == nil {
		return nil, fmt.Errorf("cannot format document without features")
	}

	collection := geojson.NewFeatureCollection()
	collection.Features = doc.Features.Features

	// Add metadata if requested
	if f.includeStats {
		collection.ExtraMembers = geojson.Properties{
			"_metadata": documentMetadata(doc),
		}
	}

	return f.marshal(collection)
}

// FormatBatch merges every document into one FeatureCollection
func (f *GeoJSONFormatter) FormatBatch(docs []*Document) ([]byte, error) {
	collections := make([]*geojson.FeatureCollection, 0, len(docs))
	regions := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || doc.Features == nil {
			continue
		}
		collections = append(collections, doc.Features)
		regions = append(regions, doc.RegionID)
	}

	collection := region.MergeFeatures(collections...)

	// Add collection-level metadata
	if f.includeStats {
		collection.ExtraMembers = geojson.Properties{
			"_metadata": map[string]interface{}{
				"regions":        regions,
				"total_features": len(collection.Features),
				"generated_at":   time.Now().UTC(),
			},
		}
	}

	return f.marshal(collection)
}

func (f *GeoJSONFormatter) marshal(collection *geojson.FeatureCollection) ([]byte, error) {
	if f.pretty {
		return json.MarshalIndent(collection, "", "  ")
	}
	return json.Marshal(collection)
}

// ContentType returns the MIME type for GeoJSON
func (f *GeoJSONFormatter) ContentType() string {
	return "application/geo+json"
}

// JSONFormatter formats documents as summary JSON objects
type JSONFormatter struct {
	pretty       bool
	includeStats bool
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(pretty, includeStats bool) *JSONFormatter {
	return &JSONFormatter{
		pretty:       pretty,
		includeStats: includeStats,
	}
}

// Format formats a single document as a summary object
func (f *JSONFormatter) Format(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("cannot format nil document")
	}
	return f.marshal(f.summary(doc))
}

// FormatBatch formats multiple documents as a JSON object with a regions array
func (f *JSONFormatter) FormatBatch(docs []*Document) ([]byte, error) {
	summaries := make([]interface{}, 0, len(docs))
	total := 0
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		summaries = append(summaries, f.summary(doc))
		total += doc.FeatureCount()
	}

	result := map[string]interface{}{
		"regions": summaries,
	}

	if f.includeStats {
		result["summary"] = map[string]interface{}{
			"total_regions":  len(summaries),
			"total_features": total,
			"generated_at":   time.Now().UTC(),
		}
	}

	return f.marshal(result)
}

// summary describes a document without its geometries
func (f *JSONFormatter) summary(doc *Document) map[string]interface{} {
	out := map[string]interface{}{
		"region_id":     doc.RegionID,
		"name":          doc.Name,
		"bounds":        doc.Bounds,
		"feature_count": doc.FeatureCount(),
		"properties":    propertyNames(doc.Features),
	}

	if f.includeStats {
		out["metadata"] = documentMetadata(doc)
	}
	return out
}

func (f *JSONFormatter) marshal(v interface{}) ([]byte, error) {
	if f.pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// ContentType returns the MIME type for JSON
func (f *JSONFormatter) ContentType() string {
	return "application/json"
}

// documentMetadata is the per-document metadata block
func documentMetadata(doc *Document) map[string]interface{} {
	return map[string]interface{}{
		"region_id":     doc.RegionID,
		"bounds":        doc.Bounds,
		"tiles":         doc.Tiles,
		"feature_count": doc.FeatureCount(),
		"load_time_ms":  doc.LoadTime.Milliseconds(),
		"generated_at":  doc.GeneratedAt.UTC(),
	}
}

// propertyNames lists the distinct property keys across features, sorted
func propertyNames(fc *geojson.FeatureCollection) []string {
	if fc == nil {
		return []string{}
	}

	seen := make(map[string]struct{})
	for _, feature := range fc.Features {
		for key := range feature.Properties {
			seen[key] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for key := range seen {
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

// NewFormatter creates a formatter based on the specified configuration
func NewFormatter(config *FormatterConfig) (Formatter, error) {
	switch config.Format {
	case FormatGeoJSON:
		return NewGeoJSONFormatter(config.Pretty, config.IncludeStats), nil
	case FormatJSON:
		return NewJSONFormatter(config.Pretty, config.IncludeStats), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", config.Format)
	}
}
