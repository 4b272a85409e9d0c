// Package geocode resolves a point of interest name to coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/roman-kulish/drone-flyover/internal/geo"
)

const (
	NominatimURL = "https://nominatim.openstreetmap.org/search"

	DefaultUserAgent = "drone-flyover/1.0"
	DefaultTimeout   = 10 * time.Second

	// Nominatim usage policy allows at most one request per second.
	nominatimRequestsPerSecond = 1
)

var (
	ErrEmptyQuery = errors.New("empty geocoding query")
	ErrNoResults  = errors.New("no geocoding results")
)

// Geocoder resolves a point of interest within a region to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, poi, region string) (geo.Point, error)
}

type Option func(*NominatimClient)

func WithBaseURL(u string) Option {
	return func(c *NominatimClient) {
		c.baseURL = u
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *NominatimClient) {
		c.client = client
	}
}

func WithUserAgent(ua string) Option {
	return func(c *NominatimClient) {
		c.userAgent = ua
	}
}

// WithRateLimit overrides the request rate. A non-positive rate disables
// limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *NominatimClient) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *NominatimClient) {
		c.logger = logger.With(slog.String("component", "geocoder"))
	}
}

// NominatimClient queries the OpenStreetMap Nominatim search API.
type NominatimClient struct {
	baseURL   string
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func NewNominatimClient(opts ...Option) *NominatimClient {
	c := &NominatimClient{
		baseURL:   NominatimURL,
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		limiter:   rate.NewLimiter(nominatimRequestsPerSecond, 1),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// place is a single Nominatim search result. Coordinates come back as strings.
type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (p place) point() (geo.Point, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("parsing latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("parsing longitude %q: %w", p.Lon, err)
	}
	pt := geo.Point{Latitude: lat, Longitude: lon}
	if err = pt.Validate(); err != nil {
		return geo.Point{}, err
	}
	return pt, nil
}

func (c *NominatimClient) Geocode(ctx context.Context, poi, region string) (geo.Point, error) {
	query := strings.Join(strings.Fields(poi+" "+region), " ")
	if query == "" {
		return geo.Point{}, ErrEmptyQuery
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return geo.Point{}, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return geo.Point{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return geo.Point{}, fmt.Errorf("querying geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return geo.Point{}, fmt.Errorf("geocoder returned status %d for %q", resp.StatusCode, query)
	}

	var places []place
	if err = json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return geo.Point{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(places) == 0 {
		return geo.Point{}, fmt.Errorf("%q: %w", query, ErrNoResults)
	}

	pt, err := places[0].point()
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid result for %q: %w", query, err)
	}

	c.logger.Debug("geocoded",
		slog.String("query", query),
		slog.String("place", places[0].DisplayName),
		slog.String("point", pt.String()))

	return pt, nil
}

// Resolution is the outcome of a geocoding attempt with a fallback.
type Resolution struct {
	Point    geo.Point
	Fallback bool  // Default center used
	Err      error // Why the geocoder was not used, when Fallback is set
}

// Fallback wraps a Geocoder and substitutes a default center when it fails.
type Fallback struct {
	geocoder Geocoder
	def      geo.Point
	logger   *slog.Logger
}

// WithFallback returns a geocoder that never fails for lookup reasons: any
// error from g yields def. A nil g always yields def.
func WithFallback(g Geocoder, def geo.Point, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fallback{geocoder: g, def: def, logger: logger.With(slog.String("component", "geocoder"))}
}

// Resolve geocodes poi and reports whether the default center was used.
// Only context cancellation is returned as an error.
func (f *Fallback) Resolve(ctx context.Context, poi, region string) (Resolution, error) {
	if f.geocoder == nil {
		return Resolution{Point: f.def, Fallback: true, Err: errors.New("no geocoder configured")}, nil
	}

	pt, err := f.geocoder.Geocode(ctx, poi, region)
	if err == nil {
		return Resolution{Point: pt}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Resolution{}, ctxErr
	}

	f.logger.Warn("geocoding failed, using default center",
		slog.String("poi", poi),
		slog.String("region", region),
		slog.String("default", f.def.String()),
		slog.String("error", err.Error()))

	return Resolution{Point: f.def, Fallback: true, Err: err}, nil
}

func (f *Fallback) Geocode(ctx context.Context, poi, region string) (geo.Point, error) {
	res, err := f.Resolve(ctx, poi, region)
	return res.Point, err
}
