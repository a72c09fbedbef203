// internal/geo/bounds.go - Viewport bounds arithmetic
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Bounds is a rectangle in decimal-degree longitude/latitude
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// NewBounds creates bounds from west, south, east, north
func NewBounds(west, south, east, north float64) Bounds {
	return Bounds{West: west, South: south, East: east, North: north}
}

// FromOrb converts an orb bound into Bounds
func FromOrb(b orb.Bound) Bounds {
	return Bounds{West: b.Min[0], South: b.Min[1], East: b.Max[0], North: b.Max[1]}
}

// Orb returns the bounds as an orb.Bound
func (b Bounds) Orb() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Width returns the east-west extent in degrees
func (b Bounds) Width() float64 {
	return b.East - b.West
}

// Height returns the south-north extent in degrees
func (b Bounds) Height() float64 {
	return b.North - b.South
}

// Center returns the midpoint of the bounds
func (b Bounds) Center() (lon, lat float64) {
	return (b.West + b.East) / 2, (b.South + b.North) / 2
}

// Validate checks ordering and finiteness
func (b Bounds) Validate() error {
	for _, v := range []float64{b.West, b.South, b.East, b.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bounds contain a non-finite value: %s", b)
		}
	}
	if b.West > b.East {
		return fmt.Errorf("west (%g) must not exceed east (%g)", b.West, b.East)
	}
	if b.South > b.North {
		return fmt.Errorf("south (%g) must not exceed north (%g)", b.South, b.North)
	}
	return nil
}

// String returns the bounds as "west,south,east,north"
func (b Bounds) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.West, b.South, b.East, b.North)
}

// ExpandBounds grows b on every side by factor times its own width and height.
// A zero factor returns b untouched.
func ExpandBounds(b Bounds, factor float64) Bounds {
	if factor == 0 {
		return b
	}

	dx := factor * b.Width()
	dy := factor * b.Height()

	return Bounds{
		West:  b.West - dx,
		South: b.South - dy,
		East:  b.East + dx,
		North: b.North + dy,
	}
}
