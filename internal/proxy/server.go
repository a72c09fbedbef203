// internal/proxy/server.go - Caching reverse proxy for the feature services
package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/valpere/r4c-viewport/internal/config"
	"github.com/valpere/r4c-viewport/internal/metrics"
	"github.com/valpere/r4c-viewport/internal/query"
)

// Cache result header values
const (
	CacheHit  = "HIT"
	CacheMiss = "MISS"
)

// DefaultMaxBodySize caps upstream responses held in memory
const DefaultMaxBodySize = 64 << 20

// Handler forwards GET requests to the WFS and OGC upstreams
type Handler struct {
	log       zerolog.Logger
	client    *http.Client
	cache     Cache
	metrics   *metrics.Metrics
	upstreams map[query.Mode]*url.URL
	userAgent string

	// MaxBodySize is the largest upstream body served; larger ones get 502 and are never cached
	MaxBodySize int64
}

// NewHandler creates a proxy handler for the configured upstreams
func NewHandler(cfg *config.Config, client *http.Client, cache Cache, m *metrics.Metrics, log zerolog.Logger) (*Handler, error) {
	upstreams := make(map[query.Mode]*url.URL, 2)
	for _, mode := range []query.Mode{query.ModeWFS, query.ModeOGC} {
		u, err := url.Parse(cfg.UpstreamURL(mode))
		if err != nil {
			return nil, fmt.Errorf("invalid %s upstream: %w", mode, err)
		}
		upstreams[mode] = u
	}

	if client == nil {
		client = &http.Client{Timeout: cfg.Network.Timeout}
	}
	if cache == nil {
		cache = noCache{}
	}

	return &Handler{
		log:         log,
		client:      client,
		cache:       cache,
		metrics:     m,
		upstreams:   upstreams,
		userAgent:   cfg.Network.UserAgent,
		MaxBodySize: DefaultMaxBodySize,
	}, nil
}

// Router returns the proxy routes
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	r.Get("/healthz", h.handleHealthz)
	r.Get("/metrics", h.metrics.Handler().ServeHTTP)

	r.Get("/wfs", h.forward(query.ModeWFS))
	r.Get("/ogc", h.forward(query.ModeOGC))
	r.Get("/ogc/*", h.forward(query.ModeOGC))

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("cache", ww.Header().Get("X-Cache")).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// forward serves one route from cache or from its upstream
func (h *Handler) forward(mode query.Mode) http.HandlerFunc {
	route := string(mode)
	return func(w http.ResponseWriter, r *http.Request) {
		target := h.upstreamURL(mode, chi.URLParam(r, "*"), r.URL.RawQuery)

		if entry, ok := h.cache.Get(r.Context(), target); ok {
			h.metrics.IncProxyRequest(route, CacheHit)
			h.writeEntry(w, http.StatusOK, CacheHit, entry)
			return
		}
		h.metrics.IncProxyRequest(route, CacheMiss)

		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		req.Header.Set("User-Agent", h.userAgent)
		if accept := r.Header.Get("Accept"); accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			h.log.Warn().Err(err).Str("upstream", target).Msg("upstream request failed")
			h.writeError(w, http.StatusBadGateway, "upstream_unavailable", "upstream request failed")
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, h.MaxBodySize+1))
		if err != nil {
			h.writeError(w, http.StatusBadGateway, "upstream_read_failed", err.Error())
			return
		}
		if int64(len(body)) > h.MaxBodySize {
			h.log.Warn().Str("upstream", target).Int64("limit", h.MaxBodySize).Msg("upstream response too large")
			h.writeError(w, http.StatusBadGateway, "upstream_too_large",
				fmt.Sprintf("upstream response exceeds %d bytes", h.MaxBodySize))
			return
		}

		entry := Entry{ContentType: resp.Header.Get("Content-Type"), Body: body}
		if resp.StatusCode == http.StatusOK {
			h.cache.Set(r.Context(), target, entry)
		}
		h.writeEntry(w, resp.StatusCode, CacheMiss, entry)
	}
}

// upstreamURL appends the wildcard path and the client query to the upstream base
func (h *Handler) upstreamURL(mode query.Mode, suffix, rawQuery string) string {
	u := *h.upstreams[mode]
	if suffix != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(suffix, "/")
		u.RawPath = ""
	}

	switch {
	case rawQuery == "":
	case u.RawQuery == "":
		u.RawQuery = rawQuery
	default:
		u.RawQuery = u.RawQuery + "&" + rawQuery
	}
	return u.String()
}

func (h *Handler) writeEntry(w http.ResponseWriter, status int, cache string, entry Entry) {
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set("X-Cache", cache)
	w.WriteHeader(status)
	_, _ = w.Write(entry.Body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string) {
	h.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	})
}
