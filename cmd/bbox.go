// cmd/bbox.go - Tile and query inspection command
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/r4c-viewport/internal/geo"
)

// bboxCmd represents the bbox command
var bboxCmd = &cobra.Command{
	Use:   "bbox",
	Short: "Show the tiles and query URL for a bounding box",
	Long: `Show which grid tiles cover a bounding box once the viewport buffer is
applied, and the feature-service URL each tile would be fetched with.

Examples:
  # Tiles for a view around the Helsinki railway station
  r4c-viewport bbox --bbox "24.93,60.16,24.96,60.18"

  # Without buffer, querying the WFS service
  r4c-viewport bbox --bbox "24.93,60.16,24.96,60.18" --buffer 0 --mode wfs --urls`,
	RunE: runBbox,
}

func init() {
	rootCmd.AddCommand(bboxCmd)

	bboxCmd.Flags().String("bbox", "", "bounding box: west,south,east,north")
	bboxCmd.Flags().Float64("buffer", -1, "buffer factor (default: tiles.buffer_factor)")
	bboxCmd.Flags().Bool("urls", false, "print the query URL of every tile")

	bboxCmd.MarkFlagRequired("bbox")
}

func runBbox(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	raw, _ := cmd.Flags().GetString("bbox")
	buffer, _ := cmd.Flags().GetFloat64("buffer")
	urls, _ := cmd.Flags().GetBool("urls")

	bounds, err := parseBounds(raw)
	if err != nil {
		return err
	}
	if buffer < 0 {
		buffer = cfg.Tiles.BufferFactor
	}

	mode, err := cfg.QueryMode()
	if err != nil {
		return err
	}
	builder := cfg.QueryBuilder()

	expanded := geo.ExpandBounds(bounds, buffer)
	index := geo.NewIndex(cfg.Tiles.Size)
	keys := index.TilesInBounds(expanded)

	out := cmd.OutOrStdout()
	queryURL, err := builder.BuildBboxURL(bounds, mode)
	if err != nil {
		return fmt.Errorf("failed to build query URL: %w", err)
	}
	fmt.Fprintf(out, "Bounds:   %s\n", bounds)
	fmt.Fprintf(out, "Expanded: %s\n", expanded)
	fmt.Fprintf(out, "Query:    %s\n", queryURL)
	fmt.Fprintf(out, "Tiles:    %d (size %g)\n", len(keys), index.TileSize())

	for _, key := range keys {
		if !urls {
			fmt.Fprintln(out, key)
			continue
		}
		tileURL, err := builder.BuildBboxURL(key.Bounds(index.TileSize()), mode)
		if err != nil {
			return fmt.Errorf("failed to build URL for tile %s: %w", key, err)
		}
		fmt.Fprintf(out, "%s\t%s\n", key, tileURL)
	}

	return nil
}

// parseBounds parses a west,south,east,north string
func parseBounds(bbox string) (geo.Bounds, error) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return geo.Bounds{}, fmt.Errorf("bounding box must have 4 values: west,south,east,north")
	}

	coords := make([]float64, 4)
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return geo.Bounds{}, fmt.Errorf("invalid coordinate value: %s", part)
		}
		coords[i] = val
	}

	bounds := geo.NewBounds(coords[0], coords[1], coords[2], coords[3])
	if err := bounds.Validate(); err != nil {
		return geo.Bounds{}, fmt.Errorf("invalid bounding box: %w", err)
	}
	return bounds, nil
}
