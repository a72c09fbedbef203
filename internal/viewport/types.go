// internal/viewport/types.go - Viewport tile loader types
package viewport

import (
	"time"

	"github.com/valpere/r4c-viewport/internal/config"
	"github.com/valpere/r4c-viewport/internal/geo"
	"github.com/valpere/r4c-viewport/internal/scene"
)

// TileState is the lifecycle stage of one tile
type TileState string

const (
	// StateUnloaded means no record exists; the tile may be queued
	StateUnloaded TileState = "unloaded"
	// StateLoading means a fetch is outstanding
	StateLoading TileState = "loading"
	// StateLoaded means the tile's entities are on the scene
	StateLoaded TileState = "loaded"
)

// maxViewportTiles bounds one viewport pass; wider views are ignored until zoomed in
const maxViewportTiles = 2500

// Options configures a Loader
type Options struct {
	TileSize      float64
	BufferFactor  float64
	MaxConcurrent int
	Debounce      time.Duration
}

// OptionsFromConfig extracts loader options from the tiles configuration
func OptionsFromConfig(cfg config.TilesConfig) Options {
	return Options{
		TileSize:      cfg.Size,
		BufferFactor:  cfg.BufferFactor,
		MaxConcurrent: cfg.MaxConcurrent,
		Debounce:      cfg.Debounce,
	}
}

// TileRecord is a loaded tile owned by the loader
type TileRecord struct {
	Key          geo.TileKey          `json:"key"`
	State        TileState            `json:"state"`
	Handles      []scene.EntityHandle `json:"-"`
	FeatureCount int                  `json:"feature_count"`
	LoadedAt     time.Time            `json:"loaded_at"`
}

// Stats is a snapshot of the loader's bookkeeping
type Stats struct {
	Visible     int `json:"visible"`
	Loaded      int `json:"loaded"`
	Loading     int `json:"loading"`
	Queued      int `json:"queued"`
	ActiveLoads int `json:"active_loads"`
	Features    int `json:"features"`
}
