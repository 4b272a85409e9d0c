package imagery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

const (
	DefaultUserAgent         = "drone-flyover/1.0"
	DefaultMinBytes          = 1000 // Smaller bodies are error tiles or blank images
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 2

	StaticMapsURL    = "https://maps.googleapis.com/maps/api/staticmap"
	ArcGISTileURL    = "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}"
	GoogleTileURL    = "https://mt1.google.com/vt/lyrs=s&x={x}&y={y}&z={z}"
	OpenStreetMapURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

	maxResponseBytes = 16 << 20
)

// Provider fetches raw encoded imagery for a request.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// HTTPConfig configures the HTTP transport shared by the network providers.
type HTTPConfig struct {
	Client            *http.Client
	UserAgent         string
	RequestsPerSecond float64 // Zero uses the default; negative disables limiting
	Burst             int
	MinBytes          int
}

type httpFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	minBytes  int
}

func newHTTPFetcher(cfg HTTPConfig) *httpFetcher {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = DefaultMinBytes
	}

	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond < 0 {
		limit = rate.Inf
	}

	return &httpFetcher{
		client:    cfg.Client,
		limiter:   rate.NewLimiter(limit, cfg.Burst),
		userAgent: cfg.UserAgent,
		minBytes:  cfg.MinBytes,
	}
}

func (h *httpFetcher) get(ctx context.Context, provider, rawURL string, req Request) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Provider: provider, Request: req, Err: fmt.Errorf("waiting for rate limiter: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Provider: provider, Request: req, Err: fmt.Errorf("creating request: %w", err)}
	}
	httpReq.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, &FetchError{Provider: provider, Request: req, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{Provider: provider, Request: req, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &FetchError{Provider: provider, Request: req, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	if len(body) < h.minBytes {
		return nil, &FetchError{
			Provider:   provider,
			Request:    req,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("response too small: %s", humanize.Bytes(uint64(len(body)))),
		}
	}
	return body, nil
}

// StaticMapConfig configures the Google Static Maps provider.
type StaticMapConfig struct {
	BaseURL string
	APIKey  string
	MapType string // satellite, hybrid, roadmap, terrain
	Scale   int    // 1 or 2
	Format  string // png, jpg
}

// StaticMapProvider renders one centered view per request.
type StaticMapProvider struct {
	config StaticMapConfig
	http   *httpFetcher
}

func NewStaticMapProvider(cfg StaticMapConfig, httpCfg HTTPConfig) (*StaticMapProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("imagery.StaticMapConfig: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = StaticMapsURL
	}
	if cfg.MapType == "" {
		cfg.MapType = "satellite"
	}
	if cfg.Scale == 0 {
		cfg.Scale = 1
	}
	if cfg.Format == "" {
		cfg.Format = "png"
	}
	return &StaticMapProvider{config: cfg, http: newHTTPFetcher(httpCfg)}, nil
}

func (p *StaticMapProvider) Name() string { return "staticmap" }

func (p *StaticMapProvider) Fetch(ctx context.Context, req Request) ([]byte, error) {
	q := url.Values{}
	q.Set("center", strconv.FormatFloat(req.Latitude, 'f', 6, 64)+","+strconv.FormatFloat(req.Longitude, 'f', 6, 64))
	q.Set("zoom", strconv.Itoa(req.Zoom))
	q.Set("size", fmt.Sprintf("%dx%d", req.Width, req.Height))
	q.Set("maptype", p.config.MapType)
	q.Set("scale", strconv.Itoa(p.config.Scale))
	q.Set("format", p.config.Format)
	q.Set("key", p.config.APIKey)

	return p.http.get(ctx, p.Name(), p.config.BaseURL+"?"+q.Encode(), req)
}

// TileProvider fetches the XYZ tile containing the requested position from a
// slippy-map tile server. The template uses {z}, {x} and {y} placeholders.
type TileProvider struct {
	name     string
	template string
	http     *httpFetcher
}

func NewTileProvider(name, template string, httpCfg HTTPConfig) (*TileProvider, error) {
	for _, ph := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(template, ph) {
			return nil, fmt.Errorf("imagery.TileProvider: template %q lacks %s", template, ph)
		}
	}
	return &TileProvider{name: name, template: template, http: newHTTPFetcher(httpCfg)}, nil
}

func (p *TileProvider) Name() string { return p.name }

func (p *TileProvider) Fetch(ctx context.Context, req Request) ([]byte, error) {
	return p.http.get(ctx, p.name, p.TileURL(req), req)
}

// TileURL expands the template for the tile containing the request.
func (p *TileProvider) TileURL(req Request) string {
	x, y := TileXY(req.Latitude, req.Longitude, req.Zoom)
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(req.Zoom),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	)
	return r.Replace(p.template)
}

// FallbackProvider tries each provider in order and returns the first success.
type FallbackProvider struct {
	providers []Provider
}

func NewFallbackProvider(providers ...Provider) *FallbackProvider {
	return &FallbackProvider{providers: providers}
}

func (p *FallbackProvider) Name() string {
	names := make([]string, len(p.providers))
	for i, pr := range p.providers {
		names[i] = pr.Name()
	}
	return strings.Join(names, "|")
}

func (p *FallbackProvider) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if len(p.providers) == 0 {
		return nil, ErrNoProviders
	}

	var errs []error
	for _, pr := range p.providers {
		b, err := pr.Fetch(ctx, req)
		if err == nil {
			return b, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}
