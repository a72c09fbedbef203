// internal/proxy/proxy_test.go - Unit tests for the caching proxy
package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/valpere/r4c-viewport/internal/config"
	"github.com/valpere/r4c-viewport/internal/metrics"
)

const upstreamBody = `{"type":"FeatureCollection","features":[]}`

type upstream struct {
	server *httptest.Server
	hits   atomic.Int32
	paths  chan string
}

func newUpstream(t *testing.T, status int) *upstream {
	t.Helper()
	u := &upstream{paths: make(chan string, 16)}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.paths <- r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(upstreamBody))
	}))
	t.Cleanup(u.server.Close)
	return u
}

func newTestProxy(t *testing.T, up *upstream, cache Cache) *httptest.Server {
	t.Helper()
	return newTestProxyWithLimit(t, up, cache, DefaultMaxBodySize)
}

func newTestProxyWithLimit(t *testing.T, up *upstream, cache Cache, limit int64) *httptest.Server {
	t.Helper()
	cfg, err := config.LoadFrom(viper.New())
	if err != nil {
		t.Fatalf("Expected default config, got %v", err)
	}
	cfg.WFS.BaseURL = up.server.URL + "/geoserver/wfs"
	cfg.OGC.BaseURL = up.server.URL + "/collections/hsy_buildings/items?lang=fi"

	h, err := NewHandler(cfg, up.server.Client(), cache, metrics.New(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	h.MaxBodySize = limit
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

func TestSecondRequestIsCacheHit(t *testing.T) {
	up := newUpstream(t, http.StatusOK)
	srv := newTestProxy(t, up, NewMemoryCache(16, time.Minute))

	first := get(t, srv.URL+"/wfs?bbox=24.9,60.1,25,60.2")
	if first.Header.Get("X-Cache") != CacheMiss {
		t.Errorf("Expected MISS, got %q", first.Header.Get("X-Cache"))
	}

	second := get(t, srv.URL+"/wfs?bbox=24.9,60.1,25,60.2")
	if second.Header.Get("X-Cache") != CacheHit {
		t.Errorf("Expected HIT, got %q", second.Header.Get("X-Cache"))
	}
	if second.Header.Get("Content-Type") != "application/geo+json" {
		t.Errorf("Expected cached content type, got %q", second.Header.Get("Content-Type"))
	}

	if got := up.hits.Load(); got != 1 {
		t.Errorf("Expected 1 upstream request, got %d", got)
	}
	if path := <-up.paths; path != "/geoserver/wfs?bbox=24.9,60.1,25,60.2" {
		t.Errorf("Unexpected upstream path %s", path)
	}
}

func TestOGCWildcardKeepsBaseQuery(t *testing.T) {
	up := newUpstream(t, http.StatusOK)
	srv := newTestProxy(t, up, NewMemoryCache(16, time.Minute))

	get(t, srv.URL+"/ogc/feature-1?f=json")

	path := <-up.paths
	if path != "/collections/hsy_buildings/items/feature-1?lang=fi&f=json" {
		t.Errorf("Unexpected upstream path %s", path)
	}
}

func TestErrorResponsesAreNotCached(t *testing.T) {
	up := newUpstream(t, http.StatusServiceUnavailable)
	srv := newTestProxy(t, up, NewMemoryCache(16, time.Minute))

	for i := 0; i < 2; i++ {
		resp := get(t, srv.URL+"/ogc?bbox=1,2,3,4")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected upstream status 503, got %d", resp.StatusCode)
		}
		if resp.Header.Get("X-Cache") != CacheMiss {
			t.Errorf("Expected MISS, got %q", resp.Header.Get("X-Cache"))
		}
	}

	if got := up.hits.Load(); got != 2 {
		t.Errorf("Expected 2 upstream requests, got %d", got)
	}
}

func TestOversizedResponseIsNotCached(t *testing.T) {
	up := newUpstream(t, http.StatusOK)
	cache := NewMemoryCache(16, time.Minute)
	// the upstream body is 42 bytes
	srv := newTestProxyWithLimit(t, up, cache, 16)

	for i := 0; i < 2; i++ {
		resp := get(t, srv.URL+"/wfs?bbox=1,2,3,4")
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("Expected 502 for an oversized body, got %d", resp.StatusCode)
		}
		if resp.Header.Get("X-Cache") == CacheHit {
			t.Error("Expected oversized body never served from cache")
		}
	}

	if cache.Len() != 0 {
		t.Errorf("Expected empty cache, got %d entries", cache.Len())
	}
	if got := up.hits.Load(); got != 2 {
		t.Errorf("Expected 2 upstream requests, got %d", got)
	}
}

func TestBodyAtLimitIsCached(t *testing.T) {
	up := newUpstream(t, http.StatusOK)
	cache := NewMemoryCache(16, time.Minute)
	srv := newTestProxyWithLimit(t, up, cache, int64(len(upstreamBody)))

	if resp := get(t, srv.URL+"/wfs?bbox=1,2,3,4"); resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 cached entry, got %d", cache.Len())
	}
}

func TestUpstreamDown(t *testing.T) {
	up := newUpstream(t, http.StatusOK)
	srv := newTestProxy(t, up, nil)
	up.server.Close()

	resp := get(t, srv.URL+"/wfs?bbox=1,2,3,4")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", resp.StatusCode)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	up := newUpstream(t, http.StatusOK)
	srv := newTestProxy(t, up, NewMemoryCache(16, time.Minute))

	if resp := get(t, srv.URL+"/healthz"); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected healthz 200, got %d", resp.StatusCode)
	}

	get(t, srv.URL+"/wfs?x=1")

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `r4c_proxy_requests_total{cache="MISS",route="wfs"} 1`) {
		t.Errorf("Expected proxy request metric, got:\n%s", body)
	}
}

func TestMemoryCacheEviction(t *testing.T) {
	c := NewMemoryCache(2, 0)
	ctx := context.Background()

	c.Set(ctx, "a", Entry{Body: []byte("a")})
	c.Set(ctx, "b", Entry{Body: []byte("b")})
	c.Set(ctx, "c", Entry{Body: []byte("c")})

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("Expected oldest entry to be evicted")
	}
	if e, ok := c.Get(ctx, "c"); !ok || string(e.Body) != "c" {
		t.Errorf("Expected entry c, got %v %v", e, ok)
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.Len())
	}
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()

	c, err := NewCache(ctx, config.ProxyConfig{CacheBackend: "none"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	c.Set(ctx, "k", Entry{})
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Expected none backend to never hit")
	}

	if _, err := NewCache(ctx, config.ProxyConfig{CacheBackend: "memcached"}); err == nil {
		t.Error("Expected error for unknown backend")
	}

	if redisKey("http://x/wfs") != "r4c:proxy:http://x/wfs" {
		t.Errorf("Unexpected redis key %s", redisKey("http://x/wfs"))
	}
}
