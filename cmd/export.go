// cmd/export.go - Region dataset export command
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/r4c-viewport/internal/geo"
	"github.com/valpere/r4c-viewport/internal/output"
	"github.com/valpere/r4c-viewport/internal/region"
	"github.com/valpere/r4c-viewport/internal/source"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every building of one or more regions",
	Long: `Load the complete building dataset of one or more regions and write it as
GeoJSON or as a summary JSON document.

Each region is covered with grid tiles and every tile is queried with bounded
concurrency; buildings returned by more than one tile are merged by their
permanent building id. A --postal-code region is fetched from the HTTP source
with a single postal-code query instead. --postal-code and --region may be
repeated; several regions are combined into one output unless --output-dir
writes one file per region.

Examples:
  # Export by bounding box to a file
  r4c-viewport export --region-id 00100 --bbox "24.92,60.16,24.95,60.18" --output 00100.geojson

  # Export a postal-code area with a single service query, compressed
  r4c-viewport export --postal-code 00530 --output exports/00530.geojson --compression

  # One file per postal-code area
  r4c-viewport export --postal-code 00100 --postal-code 00530 --output-dir exports

  # Two named boxes combined into one collection
  r4c-viewport export --region "kallio:24.94,60.18,24.96,60.19" --region "toolo:24.91,60.17,24.93,60.19" -o inner.geojson

  # Summary to stdout from a local snapshot
  r4c-viewport export --source-type local --local-path helsinki.geojson --region-id kallio --bbox "24.94,60.18,24.96,60.19" --format json`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("region-id", "", "region identifier for --bbox (default: the postal code)")
	exportCmd.Flags().String("name", "", "region display name")
	exportCmd.Flags().String("bbox", "", "region bounding box: west,south,east,north")
	exportCmd.Flags().StringArray("postal-code", nil, "five-digit postal code (HTTP source, repeatable)")
	exportCmd.Flags().StringArray("region", nil, "named region id:west,south,east,north (repeatable)")
	exportCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
	exportCmd.Flags().String("output-dir", "", "write one file per region into this directory")
	exportCmd.Flags().Bool("metadata", false, "include region metadata in output")

	exportCmd.MarkFlagsOneRequired("bbox", "postal-code", "region")
	exportCmd.MarkFlagsMutuallyExclusive("output", "output-dir")
}

// exportTarget is one region to load; postal-code targets carry no bounds
type exportTarget struct {
	regionID   string
	name       string
	postalCode string
	bounds     geo.Bounds
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	regionID, _ := cmd.Flags().GetString("region-id")
	name, _ := cmd.Flags().GetString("name")
	rawBounds, _ := cmd.Flags().GetString("bbox")
	postalCodes, _ := cmd.Flags().GetStringArray("postal-code")
	regions, _ := cmd.Flags().GetStringArray("region")
	outputPath, _ := cmd.Flags().GetString("output")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	metadata, _ := cmd.Flags().GetBool("metadata")

	targets, err := exportTargets(regionID, name, rawBounds, postalCodes, regions)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fs := afero.NewOsFs()
	src, err := source.New(cfg, fs)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	loader := region.NewLoader(region.Options{
		TileSize:    cfg.Tiles.Size,
		Concurrency: cfg.Click.RegionConcurrency,
		MaxTiles:    cfg.Click.MaxRegionTiles,
	}, src, logger)

	docs := make([]*output.Document, 0, len(targets))
	for _, target := range targets {
		doc, err := loadTarget(ctx, loader, src, target)
		if err != nil {
			return err
		}
		logger.Info().
			Str("region", doc.RegionID).
			Int("features", doc.FeatureCount()).
			Int("tiles", doc.Tiles).
			Dur("elapsed", doc.LoadTime).
			Msg("Region exported")
		docs = append(docs, doc)
	}

	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	writerConfig := &output.WriterConfig{
		Format:      format,
		Pretty:      cfg.Output.Pretty,
		Compression: cfg.Output.Compression,
		Metadata:    metadata,
	}

	destination, multiFile := outputPath, false
	if outputDir != "" {
		destination, multiFile = outputDir, true
	}
	writer, err := output.NewWriter(fs, cmd.OutOrStdout(), writerConfig, destination, multiFile)
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}

	if len(docs) == 1 && !multiFile {
		err = writer.Write(docs[0])
	} else {
		err = writer.WriteBatch(docs)
	}
	if err != nil {
		writer.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}

	summary := writer.Summary()
	logger.Info().
		Int("regions", len(docs)).
		Strs("files", summary.Files).
		Str("content_type", summary.ContentType).
		Int64("bytes", summary.Bytes).
		Msg("Export written")

	return nil
}

// exportTargets turns the export flags into the list of regions to load
func exportTargets(regionID, name, rawBounds string, postalCodes, regions []string) ([]exportTarget, error) {
	var targets []exportTarget

	if rawBounds != "" {
		bounds, err := parseBounds(rawBounds)
		if err != nil {
			return nil, err
		}
		if regionID == "" && len(postalCodes) == 1 {
			regionID, postalCodes = postalCodes[0], nil
		}
		if regionID == "" {
			return nil, fmt.Errorf("--region-id is required when exporting by bounding box")
		}
		targets = append(targets, exportTarget{regionID: regionID, name: name, bounds: bounds})
	}

	for _, raw := range regions {
		target, err := parseRegion(raw)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}

	for _, code := range postalCodes {
		target := exportTarget{regionID: code, postalCode: code}
		if len(targets) == 0 && len(postalCodes) == 1 {
			target.name = name
		}
		targets = append(targets, target)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("nothing to export: use --bbox, --region or --postal-code")
	}
	seen := make(map[string]bool, len(targets))
	for _, target := range targets {
		if seen[target.regionID] {
			return nil, fmt.Errorf("region %s is listed more than once", target.regionID)
		}
		seen[target.regionID] = true
	}
	return targets, nil
}

// parseRegion parses an id:west,south,east,north region flag
func parseRegion(raw string) (exportTarget, error) {
	id, rawBounds, ok := strings.Cut(raw, ":")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return exportTarget{}, fmt.Errorf("region %q must look like id:west,south,east,north", raw)
	}
	bounds, err := parseBounds(rawBounds)
	if err != nil {
		return exportTarget{}, fmt.Errorf("region %s: %w", id, err)
	}
	return exportTarget{regionID: id, bounds: bounds}, nil
}

// loadTarget loads one region into an output document
func loadTarget(ctx context.Context, loader *region.Loader, src source.Source, target exportTarget) (*output.Document, error) {
	start := time.Now()
	doc := &output.Document{
		RegionID: target.regionID,
		Name:     target.name,
		Bounds:   target.bounds,
	}

	if target.postalCode != "" {
		httpSrc, ok := src.(*source.HTTPSource)
		if !ok {
			return nil, fmt.Errorf("--postal-code needs the http source; use --bbox with a local snapshot")
		}

		resp, err := httpSrc.FetchPostalCode(ctx, target.postalCode)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch postal code %s: %w", target.postalCode, err)
		}
		doc.Features = region.MergeFeatures(resp.Features)
		doc.Bounds = collectionBounds(doc.Features)
		doc.Tiles = 1
	} else {
		verbose := viper.GetBool("logging.verbose")
		fc, err := loader.LoadRegion(ctx, target.regionID, target.bounds, func(current, total int) {
			doc.Tiles = total
			if verbose {
				fmt.Fprintf(os.Stderr, "\r%s: %d/%d tiles", target.regionID, current, total)
			}
		})
		if verbose {
			fmt.Fprintln(os.Stderr)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load region %s: %w", target.regionID, err)
		}
		doc.Features = fc
	}

	doc.LoadTime = time.Since(start)
	doc.GeneratedAt = time.Now()
	return doc, nil
}

// collectionBounds returns the union of every feature's bound
func collectionBounds(fc *geojson.FeatureCollection) geo.Bounds {
	var (
		bound orb.Bound
		found bool
	)
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			bound, found = f.Geometry.Bound(), true
			continue
		}
		bound = bound.Union(f.Geometry.Bound())
	}
	return geo.FromOrb(bound)
}
