// internal/metrics/metrics.go - Prometheus metrics for loaders, clicks and the proxy
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tile load outcomes
const (
	TileLoaded    = "loaded"
	TileFailed    = "failed"
	TileDiscarded = "discarded"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry          *prometheus.Registry
	tileLoads         *prometheus.CounterVec
	tileLoadDuration  prometheus.Histogram
	tileEvictions     prometheus.Counter
	activeLoads       prometheus.Gauge
	clickInteractions *prometheus.CounterVec
	dataRetries       prometheus.Counter
	proxyRequests     *prometheus.CounterVec
}

// New creates a fresh Metrics registry with every application metric registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	tileLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "r4c",
		Name:      "tile_loads_total",
		Help:      "Count of viewport tile loads by outcome",
	}, []string{"outcome"})

	tileLoadDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "r4c",
		Name:      "tile_load_duration_seconds",
		Help:      "Duration of viewport tile fetches",
		Buckets:   prometheus.DefBuckets,
	})

	tileEvictions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "r4c",
		Name:      "tile_evictions_total",
		Help:      "Count of loaded tiles evicted after leaving the viewport",
	})

	activeLoads := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "r4c",
		Name:      "tile_active_loads",
		Help:      "Number of tile fetches currently outstanding",
	})

	clickInteractions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "r4c",
		Name:      "click_interactions_total",
		Help:      "Count of click interactions by final outcome",
	}, []string{"outcome"})

	dataRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "r4c",
		Name:      "data_retries_total",
		Help:      "Count of region data load retries",
	})

	proxyRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "r4c",
		Name:      "proxy_requests_total",
		Help:      "Count of proxied feature service requests by route and cache result",
	}, []string{"route", "cache"})

	registry.MustRegister(
		tileLoads,
		tileLoadDuration,
		tileEvictions,
		activeLoads,
		clickInteractions,
		dataRetries,
		proxyRequests,
	)

	return &Metrics{
		registry:          registry,
		tileLoads:         tileLoads,
		tileLoadDuration:  tileLoadDuration,
		tileEvictions:     tileEvictions,
		activeLoads:       activeLoads,
		clickInteractions: clickInteractions,
		dataRetries:       dataRetries,
		proxyRequests:     proxyRequests,
	}
}

// ObserveTileLoad records one tile fetch outcome and its duration.
func (m *Metrics) ObserveTileLoad(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.tileLoads.WithLabelValues(outcome).Inc()
	m.tileLoadDuration.Observe(duration.Seconds())
}

// AddTileEvictions counts evicted tiles.
func (m *Metrics) AddTileEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tileEvictions.Add(float64(n))
}

// SetActiveLoads records the admission counter.
func (m *Metrics) SetActiveLoads(n int) {
	if m == nil {
		return
	}
	m.activeLoads.Set(float64(n))
}

// IncClickInteraction counts a settled click interaction.
func (m *Metrics) IncClickInteraction(outcome string) {
	if m == nil {
		return
	}
	m.clickInteractions.WithLabelValues(outcome).Inc()
}

// IncDataRetry counts a region data retry.
func (m *Metrics) IncDataRetry() {
	if m == nil {
		return
	}
	m.dataRetries.Inc()
}

// IncProxyRequest counts a proxied request.
func (m *Metrics) IncProxyRequest(route, cache string) {
	if m == nil {
		return
	}
	m.proxyRequests.WithLabelValues(route, cache).Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
