// cmd/view.go - Headless viewer session command
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/valpere/r4c-viewport/internal/camera"
	"github.com/valpere/r4c-viewport/internal/click"
	"github.com/valpere/r4c-viewport/internal/metrics"
	"github.com/valpere/r4c-viewport/internal/region"
	"github.com/valpere/r4c-viewport/internal/scene"
	"github.com/valpere/r4c-viewport/internal/source"
	"github.com/valpere/r4c-viewport/internal/viewport"
)

// viewCmd represents the view command
var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Run a headless viewer session",
	Long: `Drive the viewport loader and the click coordinator against an in-memory
scene. Every --pan bounding box is applied as a camera move; afterwards the
region given by --region-id/--bbox is clicked. Each published click state is
printed as one JSON line on stdout.

Pressing Ctrl-C while the camera is flying cancels the interaction and
restores the previous view; a second Ctrl-C exits.

Examples:
  r4c-viewport view --pan "24.90,60.15,24.97,60.19" --pan "24.92,60.16,24.99,60.20" \
    --region-id 00100 --name "Helsinki keskusta" --bbox "24.92,60.16,24.95,60.18"`,
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)

	viewCmd.Flags().StringArray("pan", nil, "viewport bounding box to load, repeatable")
	viewCmd.Flags().String("region-id", "", "region to click")
	viewCmd.Flags().String("name", "", "region display name")
	viewCmd.Flags().String("bbox", "", "bounding box of the clicked region")
	viewCmd.Flags().Duration("settle", 2*time.Second, "time to wait for tile loads after each pan")

	viewCmd.MarkFlagsRequiredTogether("region-id", "bbox")
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	pans, _ := cmd.Flags().GetStringArray("pan")
	regionID, _ := cmd.Flags().GetString("region-id")
	name, _ := cmd.Flags().GetString("name")
	rawBounds, _ := cmd.Flags().GetString("bbox")
	settle, _ := cmd.Flags().GetDuration("settle")

	src, err := source.New(cfg, afero.NewOsFs())
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	m := metrics.New()
	renderer := scene.NewMemoryRenderer(scene.CameraPose{
		Position:    scene.Position{Lon: 24.9384, Lat: 60.1699, Height: 15000},
		Orientation: scene.Orientation{Pitch: -90},
	})

	tiles := viewport.NewLoader(viewport.OptionsFromConfig(cfg.Tiles), src, renderer, m, logger)
	defer tiles.Close()

	for _, raw := range pans {
		bounds, err := parseBounds(raw)
		if err != nil {
			return err
		}
		tiles.UpdateViewport(bounds)
		time.Sleep(settle)

		stats := tiles.Stats()
		logger.Info().
			Str("view", bounds.String()).
			Int("loaded", stats.Loaded).
			Int("loading", stats.Loading).
			Int("queued", stats.Queued).
			Int("features", stats.Features).
			Msg("Viewport updated")
	}

	if regionID == "" {
		return nil
	}

	bounds, err := parseBounds(rawBounds)
	if err != nil {
		return err
	}
	target := click.NewTarget(regionID, name, bounds, cfg.Click.CameraHeight, cfg.Click.CameraPitch)

	cam := camera.NewController(renderer, cfg.Click.FrameInterval, logger)
	regions := region.NewLoader(region.Options{
		TileSize:    cfg.Tiles.Size,
		Concurrency: cfg.Click.RegionConcurrency,
		MaxTiles:    cfg.Click.MaxRegionTiles,
	}, src, logger)

	store := click.NewStateStore()
	coordinator := click.NewCoordinator(click.OptionsFromConfig(cfg.Click), cam, regions, store, m, logger)
	defer coordinator.Close()
	coordinator.OnRegionLoaded = func(t click.Target, fc *geojson.FeatureCollection) {
		if _, err := renderer.AddEntities(fc); err != nil {
			logger.Warn().Err(err).Str("region", t.ID).Msg("Failed to add region entities")
		}
	}

	states, unsubscribe := store.Subscribe(32)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		enc := json.NewEncoder(cmd.OutOrStdout())
		for state := range states {
			_ = enc.Encode(state)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			if coordinator.Cancel() {
				logger.Info().Msg("Interaction cancelled")
				continue
			}
			cancel()
			return
		}
	}()

	pick := &scene.Pick{ID: scene.StringPtr(target.ID)}
	err = coordinator.HandlePick(ctx, pick, click.MapDirectory{target.ID: target})

	unsubscribe()
	<-printed

	if err != nil {
		return fmt.Errorf("click refused: %w", err)
	}

	final := coordinator.State()
	logger.Info().
		Str("stage", string(final.Stage)).
		Str("camera", renderer.CameraPose().String()).
		Int("entities", renderer.EntityCount()).
		Msg("Session finished")

	if final.Stage == click.StageError {
		return fmt.Errorf("%s: %s", final.Error.Message, final.Error.Details)
	}
	return nil
}
