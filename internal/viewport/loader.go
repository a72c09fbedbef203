// internal/viewport/loader.go - Viewport-driven tile loading
package viewport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/valpere/r4c-viewport/internal"
	"github.com/valpere/r4c-viewport/internal/geo"
	"github.com/valpere/r4c-viewport/internal/metrics"
	"github.com/valpere/r4c-viewport/internal/scene"
	"github.com/valpere/r4c-viewport/internal/source"
)

// Loader keeps the scene populated with the tiles around the current viewport
type Loader struct {
	opts     Options
	index    *geo.Index
	source   source.Source
	renderer scene.Renderer
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	debounced func(f func())
	group     singleflight.Group
	wg        sync.WaitGroup

	mu           sync.Mutex
	loadedTiles  map[geo.TileKey]*TileRecord
	visibleTiles map[geo.TileKey]struct{}
	loadingTiles map[geo.TileKey]struct{}
	queued       map[geo.TileKey]struct{}
	queue        []geo.TileKey
	activeLoads  int
	viewportSeen bool
	closed       bool
}

// NewLoader creates a tile loader fetching from src and drawing on renderer
func NewLoader(opts Options, src source.Source, renderer scene.Renderer, m *metrics.Metrics, logger zerolog.Logger) *Loader {
	if opts.TileSize <= 0 {
		opts.TileSize = geo.DefaultTileSize
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		opts:         opts,
		index:        geo.NewIndex(opts.TileSize),
		source:       src,
		renderer:     renderer,
		metrics:      m,
		logger:       logger.With().Str("component", "tiles").Logger(),
		ctx:          ctx,
		cancel:       cancel,
		loadedTiles:  make(map[geo.TileKey]*TileRecord),
		visibleTiles: make(map[geo.TileKey]struct{}),
		loadingTiles: make(map[geo.TileKey]struct{}),
		queued:       make(map[geo.TileKey]struct{}),
	}
	if opts.Debounce > 0 {
		l.debounced = debounce.New(opts.Debounce)
	}
	return l
}

// OnViewportChanged schedules a viewport pass; within the debounce window the latest bounds win
func (l *Loader) OnViewportChanged(bounds geo.Bounds) {
	if l.debounced == nil {
		l.UpdateViewport(bounds)
		return
	}
	l.debounced(func() {
		l.UpdateViewport(bounds)
	})
}

// UpdateViewport recomputes the visible tile set, evicts and prunes what left it, and queues what entered it
func (l *Loader) UpdateViewport(bounds geo.Bounds) {
	if err := bounds.Validate(); err != nil {
		l.logger.Warn().Err(err).Msg("Ignoring invalid viewport")
		return
	}

	expanded := geo.ExpandBounds(bounds, l.opts.BufferFactor)

	// A view too wide to enumerate still evicts; it just queues nothing new
	var keys []geo.TileKey
	tooWide := l.index.Count(expanded) > maxViewportTiles
	if !tooWide {
		keys = l.index.TilesInBounds(expanded)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}

	l.viewportSeen = true
	if tooWide {
		l.visibleTiles = l.knownTilesWithinLocked(expanded)
	} else {
		l.visibleTiles = make(map[geo.TileKey]struct{}, len(keys))
		for _, key := range keys {
			l.visibleTiles[key] = struct{}{}
		}
	}

	// Evict loaded tiles that left the view
	var evicted []scene.EntityHandle
	evictedCount := 0
	for key, record := range l.loadedTiles {
		if _, ok := l.visibleTiles[key]; ok {
			continue
		}
		evicted = append(evicted, record.Handles...)
		delete(l.loadedTiles, key)
		evictedCount++
	}

	// Prune queued tiles that left the view
	l.queue = lo.Filter(l.queue, func(key geo.TileKey, _ int) bool {
		if _, ok := l.visibleTiles[key]; ok {
			return true
		}
		delete(l.queued, key)
		return false
	})

	// Enqueue newly visible tiles
	added := 0
	for _, key := range keys {
		if l.isKnownLocked(key) {
			continue
		}
		l.queue = append(l.queue, key)
		l.queued[key] = struct{}{}
		added++
	}
	visibleCount := len(l.visibleTiles)
	l.mu.Unlock()

	if len(evicted) > 0 {
		l.renderer.RemoveEntities(evicted)
	}
	l.metrics.AddTileEvictions(evictedCount)

	l.logger.Debug().
		Str("bounds", bounds.String()).
		Bool("too_wide", tooWide).
		Int("visible", visibleCount).
		Int("evicted", evictedCount).
		Int("queued", added).
		Msg("Viewport updated")

	l.pump()
}

// knownTilesWithinLocked returns the loaded, loading and queued tiles whose cell lies in b
func (l *Loader) knownTilesWithinLocked(b geo.Bounds) map[geo.TileKey]struct{} {
	minX, maxX, minY, maxY := l.index.Range(b)
	within := func(key geo.TileKey) bool {
		return key.IX >= minX && key.IX <= maxX && key.IY >= minY && key.IY <= maxY
	}

	visible := make(map[geo.TileKey]struct{})
	for key := range l.loadedTiles {
		if within(key) {
			visible[key] = struct{}{}
		}
	}
	for key := range l.loadingTiles {
		if within(key) {
			visible[key] = struct{}{}
		}
	}
	for _, key := range l.queue {
		if within(key) {
			visible[key] = struct{}{}
		}
	}
	return visible
}

// isKnownLocked reports whether key is loaded, loading or queued
func (l *Loader) isKnownLocked(key geo.TileKey) bool {
	if _, ok := l.loadedTiles[key]; ok {
		return true
	}
	if _, ok := l.loadingTiles[key]; ok {
		return true
	}
	_, ok := l.queued[key]
	return ok
}

// pump starts queued loads in FIFO order while below the concurrency cap
func (l *Loader) pump() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for !l.closed && l.activeLoads < l.opts.MaxConcurrent && len(l.queue) > 0 {
		key := l.queue[0]
		l.queue = l.queue[1:]
		delete(l.queued, key)

		if _, ok := l.visibleTiles[key]; !ok {
			continue
		}
		if _, ok := l.loadedTiles[key]; ok {
			continue
		}
		if _, ok := l.loadingTiles[key]; ok {
			continue
		}

		l.activeLoads++
		l.metrics.SetActiveLoads(l.activeLoads)
		l.wg.Add(1)
		go l.runQueued(key)
	}
}

// runQueued loads one admitted tile and releases its slot
func (l *Loader) runQueued(key geo.TileKey) {
	defer l.wg.Done()

	_ = l.LoadTile(l.ctx, key)

	l.mu.Lock()
	l.activeLoads--
	l.metrics.SetActiveLoads(l.activeLoads)
	l.mu.Unlock()

	l.pump()
}

// LoadTile fetches one tile and puts its entities on the scene.
// Concurrent calls for the same key share a single fetch and its outcome.
func (l *Loader) LoadTile(ctx context.Context, key geo.TileKey) error {
	_, err, shared := l.group.Do(key.String(), func() (interface{}, error) {
		return nil, l.loadTile(ctx, key)
	})
	if shared {
		l.logger.Trace().Str("tile", key.String()).Msg("Joined in-flight tile load")
	}
	return err
}

// loadTile performs the fetch for key; failures return the tile to unloaded
func (l *Loader) loadTile(ctx context.Context, key geo.TileKey) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return internal.NewError(internal.ErrorCodeCanceled, "loader closed", nil)
	}
	if _, ok := l.loadedTiles[key]; ok {
		l.mu.Unlock()
		return nil
	}
	l.loadingTiles[key] = struct{}{}
	l.mu.Unlock()

	start := time.Now()
	resp, err := l.source.FetchBounds(ctx, key.Bounds(l.opts.TileSize))
	if err != nil {
		l.mu.Lock()
		delete(l.loadingTiles, key)
		l.mu.Unlock()

		loadErr := internal.NewError(internal.ErrorCodeTileLoad, fmt.Sprintf("failed to load tile %s", key), err)
		l.metrics.ObserveTileLoad(metrics.TileFailed, time.Since(start))
		l.logger.Warn().Err(loadErr).Str("tile", key.String()).Msg("Tile load failed")
		return loadErr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.loadingTiles, key)
	_, visible := l.visibleTiles[key]
	if l.closed || (l.viewportSeen && !visible) {
		l.metrics.ObserveTileLoad(metrics.TileDiscarded, time.Since(start))
		l.logger.Debug().Str("tile", key.String()).Msg("Discarding tile that left the viewport")
		return nil
	}

	handles, err := l.renderer.AddEntities(resp.Features)
	if err != nil {
		loadErr := internal.NewError(internal.ErrorCodeTileLoad, fmt.Sprintf("failed to add entities for tile %s", key), err)
		l.metrics.ObserveTileLoad(metrics.TileFailed, time.Since(start))
		l.logger.Warn().Err(loadErr).Str("tile", key.String()).Msg("Tile load failed")
		return loadErr
	}

	l.loadedTiles[key] = &TileRecord{
		Key:          key,
		State:        StateLoaded,
		Handles:      handles,
		FeatureCount: resp.Count(),
		LoadedAt:     time.Now(),
	}
	l.metrics.ObserveTileLoad(metrics.TileLoaded, time.Since(start))
	l.logger.Debug().
		Str("tile", key.String()).
		Int("features", resp.Count()).
		Dur("fetch_time", resp.FetchTime).
		Msg("Tile loaded")

	return nil
}

// State returns the lifecycle stage of key
func (l *Loader) State(key geo.TileKey) TileState {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.loadedTiles[key]; ok {
		return StateLoaded
	}
	if _, ok := l.loadingTiles[key]; ok {
		return StateLoading
	}
	return StateUnloaded
}

// Stats returns a snapshot of the loader's bookkeeping
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	features := lo.SumBy(lo.Values(l.loadedTiles), func(r *TileRecord) int {
		return r.FeatureCount
	})

	return Stats{
		Visible:     len(l.visibleTiles),
		Loaded:      len(l.loadedTiles),
		Loading:     len(l.loadingTiles),
		Queued:      len(l.queue),
		ActiveLoads: l.activeLoads,
		Features:    features,
	}
}

// Close cancels outstanding loads, removes every tile entity and ignores later viewport changes
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.cancel()

	var handles []scene.EntityHandle
	for _, record := range l.loadedTiles {
		handles = append(handles, record.Handles...)
	}
	l.loadedTiles = make(map[geo.TileKey]*TileRecord)
	l.queue = nil
	l.queued = make(map[geo.TileKey]struct{})
	l.mu.Unlock()

	if len(handles) > 0 {
		l.renderer.RemoveEntities(handles)
	}
	l.wg.Wait()
}
