// internal/click/target.go - Click targets and pick resolution
package click

import (
	"github.com/valpere/r4c-viewport/internal/geo"
	"github.com/valpere/r4c-viewport/internal/scene"
)

// Target is a selectable region such as a postal-code area
type Target struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Bounds      geo.Bounds        `json:"bounds"`
	Destination scene.Position    `json:"destination"`
	Orientation scene.Orientation `json:"orientation"`
}

// NewTarget creates a target whose camera destination looks at the centre of bounds
func NewTarget(id, name string, bounds geo.Bounds, height, pitch float64) Target {
	lon, lat := bounds.Center()
	return Target{
		ID:          id,
		Name:        name,
		Bounds:      bounds,
		Destination: scene.Position{Lon: lon, Lat: lat, Height: height},
		Orientation: scene.Orientation{Pitch: pitch},
	}
}

// Directory resolves picked identifiers to targets
type Directory interface {
	Lookup(id string) (Target, bool)
}

// MapDirectory is a Directory backed by a map
type MapDirectory map[string]Target

// Lookup returns the target registered under id
func (d MapDirectory) Lookup(id string) (Target, bool) {
	t, ok := d[id]
	return t, ok
}
