// cmd/root.go - Root command implementation
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/r4c-viewport/internal/config"
	"github.com/valpere/r4c-viewport/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "r4c-viewport",
	Short: "Viewport-driven building data loading for the Helsinki region",
	Long: `r4c-viewport loads building footprints for the part of the map that is in
view, and drills down into a postal-code area on click: the camera flies to
the area while its full dataset loads in parallel, with retries and a
cancel key that restores the previous view.

Data Sources:
- HSY GeoServer WFS (mode wfs)
- OGC API Features collection (mode ogc)
- Local GeoJSON snapshot files

Examples:
  # Show the tiles and query URL for a bounding box
  r4c-viewport bbox --bbox "24.93,60.16,24.96,60.18"

  # Export every building of a postal-code area
  r4c-viewport export --region-id 00100 --bbox "24.92,60.16,24.95,60.18" --output 00100.geojson

  # Run the caching proxy in front of both services
  r4c-viewport serve --addr :8080 --cache-backend redis

  # Headless session: pan twice, then click a region (Ctrl-C cancels the flight)
  r4c-viewport view --pan "24.9,60.15,24.97,60.19" --region-id 00100 --bbox "24.92,60.16,24.95,60.18"

  # Use configuration file
  r4c-viewport export --config config.yaml --region-id 00100 --bbox "24.92,60.16,24.95,60.18"`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.r4c-viewport.yaml)")

	// Source configuration flags
	rootCmd.PersistentFlags().String("source-type", "http", "data source type (http, local)")
	rootCmd.PersistentFlags().String("mode", "ogc", "feature service (wfs, ogc)")
	rootCmd.PersistentFlags().String("local-path", "", "GeoJSON snapshot file (local source)")
	rootCmd.PersistentFlags().String("wfs-url", "", "WFS endpoint override")
	rootCmd.PersistentFlags().String("ogc-url", "", "OGC API Features items endpoint override")

	// Output flags
	rootCmd.PersistentFlags().StringP("format", "f", "geojson", "output format (geojson, json)")
	rootCmd.PersistentFlags().Bool("pretty", true, "pretty print JSON output")
	rootCmd.PersistentFlags().Bool("compression", false, "compress output files")

	// Processing flags
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose output")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().Int("concurrency", 4, "concurrent region sub-requests")
	rootCmd.PersistentFlags().Duration("timeout", 30*1000000000, "request timeout (HTTP source)")
	rootCmd.PersistentFlags().Int("retries", 3, "number of data retry attempts")

	// Bind flags to viper
	viper.BindPFlag("source.type", rootCmd.PersistentFlags().Lookup("source-type"))
	viper.BindPFlag("source.mode", rootCmd.PersistentFlags().Lookup("mode"))
	viper.BindPFlag("source.local_path", rootCmd.PersistentFlags().Lookup("local-path"))
	viper.BindPFlag("output.format", rootCmd.PersistentFlags().Lookup("format"))
	viper.BindPFlag("output.pretty", rootCmd.PersistentFlags().Lookup("pretty"))
	viper.BindPFlag("output.compression", rootCmd.PersistentFlags().Lookup("compression"))
	viper.BindPFlag("logging.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("click.region_concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	viper.BindPFlag("network.timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("click.max_retries", rootCmd.PersistentFlags().Lookup("retries"))
}

// initConfig reads in .env, the config file and ENV variables if set.
func initConfig() {
	// A missing .env file is not an error
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".r4c-viewport" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".r4c-viewport")
	}

	// Environment variables
	viper.SetEnvPrefix("R4C")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("logging.verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// loadConfig loads configuration with the endpoint override flags applied
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if url, _ := cmd.Flags().GetString("wfs-url"); url != "" {
		viper.Set("wfs.base_url", url)
	}
	if url, _ := cmd.Flags().GetString("ogc-url"); url != "" {
		viper.Set("ogc.base_url", url)
	}
	if viper.GetBool("logging.verbose") {
		viper.Set("logging.level", "debug")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the command logger from configuration
func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Logging)
}
