// internal/query/builder.go - Bounding-box query URLs for the feature services
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/valpere/r4c-viewport/internal/geo"
)

// Mode selects which feature-data service a query targets
type Mode string

const (
	// ModeWFS targets the HSY GeoServer WFS endpoint
	ModeWFS Mode = "wfs"
	// ModeOGC targets the OGC API Features (pygeoapi) endpoint
	ModeOGC Mode = "ogc"
)

// Default endpoints and layer names
const (
	DefaultWFSBaseURL   = "https://kartta.hsy.fi/geoserver/wfs"
	DefaultWFSTypeNames = "asuminen_ja_maankaytto:pks_rakennukset_paivittyva"
	DefaultWFSVersion   = "2.0.0"
	DefaultOutputFormat = "application/json"
	DefaultSRSName      = "EPSG:4326"
	DefaultCRSURN       = "urn:ogc:def:crs:EPSG::4326"
	DefaultOGCBaseURL   = "https://geo.fvh.fi/r4c/collections/hsy_buildings/items"
	DefaultOGCLimit     = 5000
)

// ParseMode converts a configuration string into a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeWFS:
		return ModeWFS, nil
	case ModeOGC:
		return ModeOGC, nil
	default:
		return "", fmt.Errorf("unsupported query mode %q (must be %q or %q)", s, ModeWFS, ModeOGC)
	}
}

// WFSEndpoint describes the WFS service
type WFSEndpoint struct {
	BaseURL      string
	TypeNames    string
	Version      string
	OutputFormat string
	SRSName      string
	CRSURN       string
}

// OGCEndpoint describes the OGC API Features collection
type OGCEndpoint struct {
	BaseURL string
	Limit   int
}

// Builder produces ready-to-fetch URLs for both services
type Builder struct {
	WFS WFSEndpoint
	OGC OGCEndpoint
}

// NewBuilder creates a builder with the default public endpoints
func NewBuilder() *Builder {
	return &Builder{
		WFS: WFSEndpoint{
			BaseURL:      DefaultWFSBaseURL,
			TypeNames:    DefaultWFSTypeNames,
			Version:      DefaultWFSVersion,
			OutputFormat: DefaultOutputFormat,
			SRSName:      DefaultSRSName,
			CRSURN:       DefaultCRSURN,
		},
		OGC: OGCEndpoint{
			BaseURL: DefaultOGCBaseURL,
			Limit:   DefaultOGCLimit,
		},
	}
}

// BuildBboxURL returns the query URL for bounds against the service selected by mode
func (b *Builder) BuildBboxURL(bounds geo.Bounds, mode Mode) (string, error) {
	if err := bounds.Validate(); err != nil {
		return "", fmt.Errorf("invalid bounds: %w", err)
	}

	switch mode {
	case ModeWFS:
		bbox := formatBbox(bounds) + "," + b.WFS.CRSURN
		return b.wfsURL(param{"bbox", bbox})
	case ModeOGC:
		return b.ogcURL(
			param{"f", "json"},
			param{"bbox", formatBbox(bounds)},
			param{"limit", strconv.Itoa(b.OGC.Limit)},
		)
	default:
		return "", fmt.Errorf("unsupported query mode %q", mode)
	}
}

// BuildPostalCodeURL returns the query URL for every feature in one postal-code area
func (b *Builder) BuildPostalCodeURL(postalCode string, mode Mode) (string, error) {
	postalCode = strings.TrimSpace(postalCode)
	if !isPostalCode(postalCode) {
		return "", fmt.Errorf("invalid postal code %q", postalCode)
	}

	switch mode {
	case ModeWFS:
		return b.wfsURL(param{"CQL_FILTER", "posno = '" + postalCode + "'"})
	case ModeOGC:
		return b.ogcURL(
			param{"f", "json"},
			param{"limit", strconv.Itoa(b.OGC.Limit)},
			param{"postinumero", postalCode},
		)
	default:
		return "", fmt.Errorf("unsupported query mode %q", mode)
	}
}

// param is one ordered query parameter
type param struct {
	key   string
	value string
}

// wfsURL builds a GetFeature URL with every value percent-encoded
func (b *Builder) wfsURL(extra ...param) (string, error) {
	params := []param{
		{"service", "WFS"},
		{"version", b.WFS.Version},
		{"request", "GetFeature"},
		{"typeNames", b.WFS.TypeNames},
		{"outputFormat", b.WFS.OutputFormat},
		{"srsName", b.WFS.SRSName},
	}
	params = append(params, extra...)

	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
	}
	return joinQuery(b.WFS.BaseURL, strings.Join(parts, "&"))
}

// ogcURL builds an items URL; bbox commas stay literal
func (b *Builder) ogcURL(params ...param) (string, error) {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		value := p.value
		if p.key != "bbox" {
			value = url.QueryEscape(value)
		}
		parts = append(parts, p.key+"="+value)
	}
	return joinQuery(b.OGC.BaseURL, strings.Join(parts, "&"))
}

// joinQuery appends a raw query to base and checks the result parses
func joinQuery(base, rawQuery string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base URL is not configured")
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		}
	}

	full := base + sep + rawQuery
	if _, err := url.Parse(full); err != nil {
		return "", fmt.Errorf("built an unparseable URL: %w", err)
	}
	return full, nil
}

// formatBbox renders bounds without rounding
func formatBbox(b geo.Bounds) string {
	return strings.Join([]string{
		strconv.FormatFloat(b.West, 'f', -1, 64),
		strconv.FormatFloat(b.South, 'f', -1, 64),
		strconv.FormatFloat(b.East, 'f', -1, 64),
		strconv.FormatFloat(b.North, 'f', -1, 64),
	}, ",")
}

// isPostalCode accepts five-digit Finnish postal codes
func isPostalCode(s string) bool {
	if len(s) != 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
