// internal/geo/tile.go - Fixed-size tile grid over longitude/latitude
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultTileSize is the edge of a grid cell in degrees (~1 km)
const DefaultTileSize = 0.01

// snapEpsilon absorbs float error when a coordinate sits on a cell edge
const snapEpsilon = 1e-9

// TileKey identifies one grid cell
type TileKey struct {
	IX int `json:"ix"`
	IY int `json:"iy"`
}

// String serializes the key as "ix_iy"
func (k TileKey) String() string {
	return strconv.Itoa(k.IX) + "_" + strconv.Itoa(k.IY)
}

// ParseTileKey parses an "ix_iy" string
func ParseTileKey(s string) (TileKey, error) {
	// split on the separator after the first character so "-1_-2" works
	idx := strings.Index(s[min(1, len(s)):], "_")
	if idx < 0 {
		return TileKey{}, fmt.Errorf("invalid tile key %q: missing separator", s)
	}
	idx += min(1, len(s))

	ix, err := strconv.Atoi(s[:idx])
	if err != nil {
		return TileKey{}, fmt.Errorf("invalid tile key %q: %w", s, err)
	}
	iy, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return TileKey{}, fmt.Errorf("invalid tile key %q: %w", s, err)
	}
	return TileKey{IX: ix, IY: iy}, nil
}

// Bounds returns the geographic cell covered by the key
func (k TileKey) Bounds(tileSize float64) Bounds {
	return Bounds{
		West:  float64(k.IX) * tileSize,
		South: float64(k.IY) * tileSize,
		East:  float64(k.IX+1) * tileSize,
		North: float64(k.IY+1) * tileSize,
	}
}

// Index converts viewports to tile keys for a fixed tile size
type Index struct {
	tileSize float64
}

// NewIndex creates an index; non-positive sizes fall back to DefaultTileSize
func NewIndex(tileSize float64) *Index {
	if tileSize <= 0 || math.IsNaN(tileSize) || math.IsInf(tileSize, 0) {
		tileSize = DefaultTileSize
	}
	return &Index{tileSize: tileSize}
}

// TileSize returns the cell edge in degrees
func (x *Index) TileSize() float64 {
	return x.tileSize
}

// KeyFor returns the key of the cell containing lon/lat
func (x *Index) KeyFor(lon, lat float64) TileKey {
	return TileKey{IX: x.cell(lon), IY: x.cell(lat)}
}

// Range returns the inclusive index ranges covered by b
func (x *Index) Range(b Bounds) (minX, maxX, minY, maxY int) {
	return x.cell(b.West), x.cell(b.East), x.cell(b.South), x.cell(b.North)
}

// Count returns the number of tiles TilesInBounds would return
func (x *Index) Count(b Bounds) int {
	minX, maxX, minY, maxY := x.Range(b)
	return (maxX - minX + 1) * (maxY - minY + 1)
}

// TilesInBounds returns every key intersecting b, rows south to north
func (x *Index) TilesInBounds(b Bounds) []TileKey {
	minX, maxX, minY, maxY := x.Range(b)
	if maxX < minX || maxY < minY {
		return nil
	}

	keys := make([]TileKey, 0, (maxX-minX+1)*(maxY-minY+1))
	for iy := minY; iy <= maxY; iy++ {
		for ix := minX; ix <= maxX; ix++ {
			keys = append(keys, TileKey{IX: ix, IY: iy})
		}
	}
	return keys
}

// cell floors a coordinate onto the grid
func (x *Index) cell(v float64) int {
	q := v / x.tileSize
	if r := math.Round(q); math.Abs(q-r) < snapEpsilon {
		q = r
	}
	return int(math.Floor(q))
}
