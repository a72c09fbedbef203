// internal/region/loader.go - Region dataset loading over bbox tiles
package region

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/valpere/r4c-viewport/internal"
	"github.com/valpere/r4c-viewport/internal/geo"
	"github.com/valpere/r4c-viewport/internal/source"
)

// BuildingIDProperty identifies a building across overlapping tile responses
const BuildingIDProperty = "vtj_prt"

// ProgressFunc receives the number of finished sub-requests out of total
type ProgressFunc func(current, total int)

// Options configures a Loader
type Options struct {
	TileSize    float64
	Concurrency int
	MaxTiles    int
}

// Loader fetches every feature of a region by fanning bbox queries over its tiles
type Loader struct {
	opts   Options
	index  *geo.Index
	source source.Source
	logger zerolog.Logger
}

// NewLoader creates a region loader over src
func NewLoader(opts Options, src source.Source, logger zerolog.Logger) *Loader {
	if opts.TileSize <= 0 {
		opts.TileSize = geo.DefaultTileSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Loader{
		opts:   opts,
		index:  geo.NewIndex(opts.TileSize),
		source: src,
		logger: logger.With().Str("component", "region").Logger(),
	}
}

// LoadRegion fetches the features inside bounds. The first failed sub-request cancels the rest.
func (l *Loader) LoadRegion(ctx context.Context, regionID string, bounds geo.Bounds, progress ProgressFunc) (*geojson.FeatureCollection, error) {
	if err := bounds.Validate(); err != nil {
		return nil, internal.NewError(internal.ErrorCodeValidation, fmt.Sprintf("invalid bounds for region %s", regionID), err)
	}

	total := l.index.Count(bounds)
	if l.opts.MaxTiles > 0 && total > l.opts.MaxTiles {
		return nil, internal.NewError(internal.ErrorCodeValidation,
			fmt.Sprintf("region %s spans %d tiles, limit is %d", regionID, total, l.opts.MaxTiles), nil)
	}

	keys := l.index.TilesInBounds(bounds)
	results := make([]*geojson.FeatureCollection, len(keys))
	start := time.Now()

	var mu sync.Mutex
	done := 0
	if progress != nil {
		progress(0, total)
	}

	p := pool.New().
		WithMaxGoroutines(l.opts.Concurrency).
		WithErrors().
		WithContext(ctx).
		WithFirstError().
		WithCancelOnError()

	for i, key := range keys {
		i, key := i, key
		p.Go(func(ctx context.Context) error {
			resp, err := l.source.FetchBounds(ctx, key.Bounds(l.opts.TileSize))
			if err != nil {
				return err
			}
			results[i] = resp.Features

			mu.Lock()
			done++
			if progress != nil {
				progress(done, total)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		l.logger.Debug().Err(err).Str("region", regionID).Msg("Region load failed")
		return nil, err
	}

	fc := MergeFeatures(results...)
	l.logger.Info().
		Str("region", regionID).
		Int("tiles", total).
		Int("features", len(fc.Features)).
		Dur("elapsed", time.Since(start)).
		Msg("Region loaded")

	return fc, nil
}

// MergeFeatures concatenates collections, keeping one feature per building id or feature id.
// A later duplicate replaces an earlier one in place; features without any id are all kept.
func MergeFeatures(collections ...*geojson.FeatureCollection) *geojson.FeatureCollection {
	merged := geojson.NewFeatureCollection()
	position := make(map[string]int)

	for _, fc := range collections {
		if fc == nil {
			continue
		}
		for _, f := range fc.Features {
			id, ok := featureKey(f)
			if !ok {
				merged.Append(f)
				continue
			}
			if at, seen := position[id]; seen {
				merged.Features[at] = f
				continue
			}
			position[id] = len(merged.Features)
			merged.Append(f)
		}
	}

	return merged
}

// featureKey returns the identity used for de-duplication
func featureKey(f *geojson.Feature) (string, bool) {
	if v, ok := f.Properties[BuildingIDProperty]; ok && v != nil {
		if s := fmt.Sprint(v); s != "" {
			return "b:" + s, true
		}
	}
	if f.ID != nil {
		if s := fmt.Sprint(f.ID); s != "" {
			return "f:" + s, true
		}
	}
	return "", false
}
