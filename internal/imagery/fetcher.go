package imagery

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"time"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/drone-flyover/internal/mission"
	"github.com/roman-kulish/drone-flyover/internal/telemetry"
)

const (
	DefaultConcurrency = 4
	DefaultTimeout     = 20 * time.Second
	DefaultZoom        = 18
	DefaultFrameSize   = 800
)

// FrameOptions describes the imagery requested for every camera position.
type FrameOptions struct {
	Zoom              int
	Width             int
	Height            int
	OverheadZoomDelta int // Added to Zoom for the overhead view of the center
}

// Source is the raw imagery for one frame, in frame order.
type Source struct {
	Index     int // Zero-based position in the camera path
	Request   Request
	Telemetry telemetry.Telemetry
	Image     []byte // Fetched imagery, or the placeholder when Err is set
	Err       error
}

// Degraded reports whether the frame shows a placeholder.
func (s *Source) Degraded() bool {
	return s.Err != nil
}

type FetcherOption func(*Fetcher)

func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger.With(slog.String("component", "imagery"))
	}
}

// WithConcurrency bounds the number of fetches in flight.
func WithConcurrency(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithTimeout bounds every individual fetch.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// Fetcher retrieves imagery for a whole camera path with a bounded worker pool.
type Fetcher struct {
	provider    Provider
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

func NewFetcher(provider Provider, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		provider:    provider,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchFrameSources fetches imagery for every position and returns one Source
// per position in index order, regardless of completion order. A failed fetch
// never aborts the mission: its Source carries a placeholder image, the error,
// and telemetry flagged as FetchFailed.
func (f *Fetcher) FetchFrameSources(ctx context.Context, positions []mission.CameraPosition, opts FrameOptions) ([]Source, error) {
	if opts.Zoom <= 0 {
		opts.Zoom = DefaultZoom
	}
	if opts.Width <= 0 {
		opts.Width = DefaultFrameSize
	}
	if opts.Height <= 0 {
		opts.Height = DefaultFrameSize
	}

	placeholder, err := PlaceholderPNG(opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}

	sources := make([]Source, len(positions))

	var g errgroup.Group
	g.SetLimit(f.concurrency)

	for i, pos := range positions {
		i, pos := i, pos
		req := Request{
			Latitude:  pos.Telemetry.Latitude,
			Longitude: pos.Telemetry.Longitude,
			Zoom:      opts.Zoom,
			Width:     opts.Width,
			Height:    opts.Height,
		}
		if pos.Telemetry.Overhead {
			req.Zoom += opts.OverheadZoomDelta
		}

		g.Go(func() error {
			tm := pos.Telemetry
			tm.Zoom = req.Zoom

			b, err := f.fetch(ctx, req)
			if err != nil {
				f.logger.Warn("imagery unavailable, using placeholder",
					slog.Int("frame", i),
					slog.String("request", req.String()),
					slog.String("error", err.Error()))

				b = placeholder
				tm.FetchFailed = true
				tm.FetchError = err.Error()
			}

			sources[i] = Source{Index: i, Request: req, Telemetry: tm, Image: b, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return sources, nil
}

func (f *Fetcher) fetch(ctx context.Context, req Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	b, err := f.provider.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if _, _, err = image.DecodeConfig(bytes.NewReader(b)); err != nil {
		return nil, &FetchError{Provider: f.provider.Name(), Request: req, Err: fmt.Errorf("undecodable image: %w", err)}
	}
	return b, nil
}
