package imagery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roman-kulish/drone-flyover/internal/mission"
	"github.com/roman-kulish/drone-flyover/internal/telemetry"
)

func testPNG(t *testing.T, w, h int, seed int64) []byte {
	t.Helper()

	rnd := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(rnd.Intn(256)), G: uint8(rnd.Intn(256)), B: uint8(rnd.Intn(256)), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRequestKey(t *testing.T) {
	a := Request{Latitude: 53.988901, Longitude: -10.066101, Zoom: 18, Width: 800, Height: 800}
	b := Request{Latitude: 53.988903, Longitude: -10.066103, Zoom: 18, Width: 800, Height: 800}
	if a.Key() != b.Key() {
		t.Errorf("keys differ below quantization step: %s vs %s", a.Key(), b.Key())
	}
	if got, want := a.Key(), "z18_800x800_53.98890_-10.06610"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}

	c := a
	c.Zoom = 19
	if a.Key() == c.Key() {
		t.Error("zoom must be part of the key")
	}
	d := a
	d.Width = 640
	if a.Key() == d.Key() {
		t.Error("size must be part of the key")
	}
	e := a
	e.Latitude += 0.0001
	if a.Key() == e.Key() {
		t.Error("positions 11 m apart must not share a key")
	}

	if strings.ContainsAny(a.Key(), `/\: `) {
		t.Errorf("key is not filesystem-safe: %q", a.Key())
	}
	if neg := (Request{Latitude: -0.000001}).Key(); strings.Contains(neg, "-0.00000") {
		t.Errorf("negative zero leaked into key: %q", neg)
	}
}

func TestTileXY(t *testing.T) {
	cases := []struct {
		lat, lon float64
		zoom     int
		x, y     int
	}{
		{0, 0, 1, 1, 1},
		{0, 0, 0, 0, 0},
		{85.1, -180, 2, 0, 0},
		{-85.1, 179.9999, 2, 3, 3},
		{51.5074, -0.1278, 10, 511, 340},
	}
	for _, c := range cases {
		x, y := TileXY(c.lat, c.lon, c.zoom)
		if x != c.x || y != c.y {
			t.Errorf("TileXY(%g, %g, %d) = %d,%d want %d,%d", c.lat, c.lon, c.zoom, x, y, c.x, c.y)
		}
	}
}

func TestStaticMapProvider(t *testing.T) {
	img := testPNG(t, 64, 64, 1)
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("user agent = %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	p, err := NewStaticMapProvider(StaticMapConfig{BaseURL: srv.URL, APIKey: "secret", Scale: 2}, HTTPConfig{UserAgent: "test-agent", RequestsPerSecond: -1})
	if err != nil {
		t.Fatal(err)
	}

	b, err := p.Fetch(context.Background(), Request{Latitude: 53.9889, Longitude: -10.0661, Zoom: 18, Width: 800, Height: 600})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !bytes.Equal(b, img) {
		t.Error("body mismatch")
	}
	for _, want := range []string{"center=53.988900%2C-10.066100", "zoom=18", "size=800x600", "maptype=satellite", "scale=2", "key=secret"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q lacks %q", gotQuery, want)
		}
	}

	if _, err = NewStaticMapProvider(StaticMapConfig{}, HTTPConfig{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestHTTPValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/18/0/0":
			w.WriteHeader(http.StatusForbidden)
		default:
			_, _ = w.Write([]byte("tiny"))
		}
	}))
	defer srv.Close()

	p, err := NewTileProvider("test", srv.URL+"/{z}/{x}/{y}", HTTPConfig{RequestsPerSecond: -1})
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Fetch(context.Background(), Request{Latitude: 89, Longitude: -180, Zoom: 18})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode != http.StatusForbidden {
		t.Errorf("error = %v, want FetchError with 403", err)
	}

	_, err = p.Fetch(context.Background(), Request{Latitude: 10, Longitude: 10, Zoom: 18})
	if !errors.As(err, &fetchErr) || !strings.Contains(err.Error(), "too small") {
		t.Errorf("error = %v, want too small", err)
	}

	if _, err = NewTileProvider("bad", "https://example.com/{z}/{x}", HTTPConfig{}); err == nil {
		t.Error("expected template error")
	}
}

func TestTileURL(t *testing.T) {
	p, err := NewTileProvider("arcgis", ArcGISTileURL, HTTPConfig{})
	if err != nil {
		t.Fatal(err)
	}
	got := p.TileURL(Request{Latitude: 0, Longitude: 0, Zoom: 1})
	if !strings.HasSuffix(got, "/tile/1/1/1") {
		t.Errorf("TileURL() = %s", got)
	}
}

type stubProvider struct {
	name  string
	calls atomic.Int32
	fetch func(ctx context.Context, req Request) ([]byte, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Fetch(ctx context.Context, req Request) ([]byte, error) {
	s.calls.Add(1)
	return s.fetch(ctx, req)
}

func TestFallbackProvider(t *testing.T) {
	img := testPNG(t, 8, 8, 2)
	failing := &stubProvider{name: "a", fetch: func(context.Context, Request) ([]byte, error) {
		return nil, errors.New("down")
	}}
	working := &stubProvider{name: "b", fetch: func(context.Context, Request) ([]byte, error) {
		return img, nil
	}}

	b, err := NewFallbackProvider(failing, working).Fetch(context.Background(), Request{})
	if err != nil || !bytes.Equal(b, img) {
		t.Fatalf("Fetch() = %d bytes, %v", len(b), err)
	}
	if failing.calls.Load() != 1 || working.calls.Load() != 1 {
		t.Errorf("calls = %d/%d", failing.calls.Load(), working.calls.Load())
	}

	_, err = NewFallbackProvider(failing).Fetch(context.Background(), Request{})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Errorf("error = %v", err)
	}
	if _, err = NewFallbackProvider().Fetch(context.Background(), Request{}); !errors.Is(err, ErrNoProviders) {
		t.Errorf("error = %v, want ErrNoProviders", err)
	}
}

func TestCacheFreshness(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c, err := NewCache(CacheConfig{Dir: t.TempDir(), Freshness: time.Hour}, WithCacheClock(clock))
	if err != nil {
		t.Fatal(err)
	}

	if _, err = c.Get("missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get(missing) = %v", err)
	}

	data := []byte("image-bytes")
	if err = c.Put("k", "test", data); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get("k")
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Get(k) = %q, %v", got, err)
	}

	// A fresh entry is never rewritten.
	if err = c.Put("k", "test", []byte("other")); err != nil {
		t.Fatal(err)
	}
	if got, _ = c.Get("k"); !bytes.Equal(got, data) {
		t.Errorf("fresh entry rewritten: %q", got)
	}

	// A new cache over the same directory reads from disk.
	c2, err := NewCache(CacheConfig{Dir: c.Dir(), Freshness: time.Hour}, WithCacheClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	if got, err = c2.Get("k"); err != nil || !bytes.Equal(got, data) {
		t.Errorf("disk Get(k) = %q, %v", got, err)
	}

	now = now.Add(2 * time.Hour)
	if _, err = c.Get("k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("stale memory entry served: %v", err)
	}
	if _, err = c2.Get("k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("stale disk entry served: %v", err)
	}

	if err = c.Put("k", "test", []byte("refreshed")); err != nil {
		t.Fatal(err)
	}
	if got, _ = c.Get("k"); string(got) != "refreshed" {
		t.Errorf("stale entry not replaced: %q", got)
	}
}

func TestCachePrune(t *testing.T) {
	c, err := NewCache(CacheConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if err = c.Put(fmt.Sprintf("k%d", i), "test", bytes.Repeat([]byte{'x'}, 1000)); err != nil {
			t.Fatal(err)
		}
		old := time.Now().Add(time.Duration(i-10) * time.Minute)
		for _, ext := range []string{imageExt, metaExt} {
			if err = os.Chtimes(filepath.Join(c.Dir(), fmt.Sprintf("k%d%s", i, ext)), old, old); err != nil {
				t.Fatal(err)
			}
		}
	}

	if err = c.Prune(2500); err != nil {
		t.Fatal(err)
	}
	for i, wantPresent := range []bool{false, false, true, true} {
		_, statErr := os.Stat(filepath.Join(c.Dir(), fmt.Sprintf("k%d%s", i, imageExt)))
		if present := statErr == nil; present != wantPresent {
			t.Errorf("k%d present = %v, want %v", i, present, wantPresent)
		}
	}
}

type countingObserver struct {
	mu           sync.Mutex
	hits, misses int
	fetches      int
}

func (o *countingObserver) ObserveCache(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func (o *countingObserver) ObserveFetch(string, time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetches++
}

func TestCachedProvider(t *testing.T) {
	img := testPNG(t, 8, 8, 3)
	upstream := &stubProvider{name: "up", fetch: func(context.Context, Request) ([]byte, error) { return img, nil }}

	cache, err := NewCache(CacheConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	obs := &countingObserver{}
	p := NewCachedProvider(upstream, cache, WithCachedProviderObserver(obs))

	req := Request{Latitude: 1, Longitude: 2, Zoom: 18, Width: 8, Height: 8}
	for i := 0; i < 3; i++ {
		b, err := p.Fetch(context.Background(), req)
		if err != nil || !bytes.Equal(b, img) {
			t.Fatalf("Fetch #%d = %v", i, err)
		}
	}
	if upstream.calls.Load() != 1 {
		t.Errorf("upstream called %d times, want 1", upstream.calls.Load())
	}
	if obs.hits != 2 || obs.misses != 1 || obs.fetches != 1 {
		t.Errorf("observer = %+v", obs)
	}
}

func TestCachedProviderSkipsUndecodable(t *testing.T) {
	img := testPNG(t, 8, 8, 4)
	errorPage := []byte("<html><body>" + strings.Repeat("rate limit exceeded ", 90) + "</body></html>")
	var served atomic.Int32
	upstream := &stubProvider{name: "up", fetch: func(context.Context, Request) ([]byte, error) {
		if served.Add(1) == 1 {
			return errorPage, nil
		}
		return img, nil
	}}

	cache, err := NewCache(CacheConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	f := NewFetcher(NewCachedProvider(upstream, cache))
	req := Request{Latitude: 53.9, Longitude: -10, Zoom: 18, Width: 8, Height: 8}

	_, err = f.fetch(context.Background(), req)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("first fetch error = %v, want FetchError", err)
	}
	if _, err = cache.Get(req.Key()); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("error page cached: %v", err)
	}

	b, err := f.fetch(context.Background(), req)
	if err != nil || !bytes.Equal(b, img) {
		t.Fatalf("second fetch = %v", err)
	}
	if upstream.calls.Load() != 2 {
		t.Errorf("upstream called %d times, want 2", upstream.calls.Load())
	}
}

func cameraPath(n int) []mission.CameraPosition {
	path := make([]mission.CameraPosition, n)
	for i := range path {
		path[i] = mission.CameraPosition{
			Waypoint: i,
			Telemetry: telemetry.Telemetry{
				Latitude:   53.9 + float64(i)*0.001,
				Longitude:  -10.0,
				AltitudeM:  80,
				HeadingDeg: float64(i * 10),
				SpeedMPS:   10,
			},
		}
	}
	return path
}

func TestFetchFrameSourcesDegradesSingleFrame(t *testing.T) {
	img := testPNG(t, 16, 16, 4)
	failLat := 53.9 + 3*0.001

	var inFlight, peak atomic.Int32
	p := &stubProvider{name: "stub", fetch: func(ctx context.Context, req Request) ([]byte, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		if math.Abs(req.Latitude-failLat) < 1e-9 {
			return nil, errors.New("timeout")
		}
		return img, nil
	}}

	f := NewFetcher(p, WithConcurrency(2), WithTimeout(time.Second))
	sources, err := f.FetchFrameSources(context.Background(), cameraPath(8), FrameOptions{Zoom: 18, Width: 64, Height: 64})
	if err != nil {
		t.Fatal(err)
	}

	if len(sources) != 8 {
		t.Fatalf("got %d sources", len(sources))
	}
	placeholder, _ := PlaceholderPNG(64, 64)
	for i, s := range sources {
		if s.Index != i {
			t.Errorf("source %d has index %d", i, s.Index)
		}
		if s.Telemetry.HeadingDeg != float64(i*10) {
			t.Errorf("source %d carries telemetry of another frame", i)
		}
		if s.Telemetry.Zoom != 18 {
			t.Errorf("source %d zoom = %d", i, s.Telemetry.Zoom)
		}
		if i == 3 {
			if !s.Degraded() || !s.Telemetry.FetchFailed || !bytes.Equal(s.Image, placeholder) {
				t.Errorf("source 3 not degraded: %+v", s.Telemetry)
			}
			continue
		}
		if s.Degraded() || s.Telemetry.FetchFailed || !bytes.Equal(s.Image, img) {
			t.Errorf("source %d unexpectedly degraded: %v", i, s.Err)
		}
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d exceeds limit", peak.Load())
	}
}

func TestFetchFrameSourcesTimeout(t *testing.T) {
	p := &stubProvider{name: "slow", fetch: func(ctx context.Context, req Request) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	f := NewFetcher(p, WithTimeout(20*time.Millisecond))
	sources, err := f.FetchFrameSources(context.Background(), cameraPath(3), FrameOptions{})
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range sources {
		if !errors.Is(s.Err, context.DeadlineExceeded) || !s.Telemetry.FetchFailed {
			t.Errorf("source %d: err = %v", i, s.Err)
		}
	}
}

func TestFetchFrameSourcesRejectsGarbage(t *testing.T) {
	p := &stubProvider{name: "garbage", fetch: func(context.Context, Request) ([]byte, error) {
		return bytes.Repeat([]byte{0x42}, 2048), nil
	}}
	sources, err := NewFetcher(p).FetchFrameSources(context.Background(), cameraPath(1), FrameOptions{Width: 32, Height: 32})
	if err != nil {
		t.Fatal(err)
	}
	var fetchErr *FetchError
	if !errors.As(sources[0].Err, &fetchErr) {
		t.Errorf("err = %v, want FetchError", sources[0].Err)
	}
}

func TestFetchOverheadZoom(t *testing.T) {
	img := testPNG(t, 8, 8, 5)
	p := &stubProvider{name: "stub", fetch: func(context.Context, Request) ([]byte, error) { return img, nil }}

	path := cameraPath(2)
	path[1].Telemetry.Overhead = true
	sources, _ := NewFetcher(p).FetchFrameSources(context.Background(), path, FrameOptions{Zoom: 18, OverheadZoomDelta: 1})
	if sources[0].Request.Zoom != 18 || sources[1].Request.Zoom != 19 {
		t.Errorf("zooms = %d/%d", sources[0].Request.Zoom, sources[1].Request.Zoom)
	}
}

func TestPlaceholderDeterministic(t *testing.T) {
	a, err := PlaceholderPNG(120, 90)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := PlaceholderPNG(120, 90)
	if !bytes.Equal(a, b) {
		t.Fatal("placeholder differs between calls")
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(a))
	if err != nil || cfg.Width != 120 || cfg.Height != 90 {
		t.Errorf("placeholder config = %+v, %v", cfg, err)
	}
}
