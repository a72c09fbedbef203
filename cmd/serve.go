// cmd/serve.go - Caching proxy command
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/r4c-viewport/internal/metrics"
	"github.com/valpere/r4c-viewport/internal/proxy"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the caching proxy in front of the feature services",
	Long: `Run an HTTP proxy that forwards /wfs and /ogc requests to the configured
feature services and caches successful responses, in memory or in a shared
Redis. Prometheus metrics are served on /metrics.

Examples:
  # In-memory cache on the default address
  r4c-viewport serve

  # Shared Redis cache with a one-hour TTL
  r4c-viewport serve --cache-backend redis --redis-addr redis:6379 --cache-ttl 1h`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("cache-backend", "memory", "cache backend (memory, redis, none)")
	serveCmd.Flags().Int("cache-size", 512, "memory cache entries")
	serveCmd.Flags().Duration("cache-ttl", 10*time.Minute, "cache entry lifetime")
	serveCmd.Flags().String("redis-addr", "127.0.0.1:6379", "Redis address (redis backend)")

	viper.BindPFlag("proxy.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("proxy.cache_backend", serveCmd.Flags().Lookup("cache-backend"))
	viper.BindPFlag("proxy.cache_size", serveCmd.Flags().Lookup("cache-size"))
	viper.BindPFlag("proxy.cache_ttl", serveCmd.Flags().Lookup("cache-ttl"))
	viper.BindPFlag("proxy.redis_addr", serveCmd.Flags().Lookup("redis-addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := proxy.NewCache(ctx, cfg.Proxy)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	defer cache.Close()

	handler, err := proxy.NewHandler(cfg, nil, cache, metrics.New(), logger)
	if err != nil {
		return fmt.Errorf("failed to create proxy: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Proxy.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Proxy.Addr).
			Str("cache", cfg.Proxy.CacheBackend).
			Str("wfs", cfg.WFS.BaseURL).
			Str("ogc", cfg.OGC.BaseURL).
			Msg("Proxy listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("proxy server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
