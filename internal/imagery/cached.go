package imagery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"
)

// Observer receives fetch outcomes, typically to feed metrics.
type Observer interface {
	ObserveCache(hit bool)
	ObserveFetch(provider string, elapsed time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveCache(bool) {}
func (noopObserver) ObserveFetch(string, time.Duration, error) {}

type CachedProviderOption func(*CachedProvider)

func WithCachedProviderLogger(logger *slog.Logger) CachedProviderOption {
	return func(p *CachedProvider) {
		p.logger = logger.With(slog.String("component", "imagery-cache"))
	}
}

func WithCachedProviderObserver(o Observer) CachedProviderOption {
	return func(p *CachedProvider) {
		p.observer = o
	}
}

// CachedProvider consults the cache before delegating to the wrapped provider
// and stores every successful fetch that decodes as an image. Responses that
// do not decode are returned as errors and never cached, so the next fetch
// asks the provider again.
type CachedProvider struct {
	provider Provider
	cache    *Cache
	observer Observer
	logger   *slog.Logger
}

func NewCachedProvider(p Provider, cache *Cache, opts ...CachedProviderOption) *CachedProvider {
	cp := &CachedProvider{
		provider: p,
		cache:    cache,
		observer: noopObserver{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(cp)
	}
	return cp
}

func (p *CachedProvider) Name() string { return p.provider.Name() }

func (p *CachedProvider) Fetch(ctx context.Context, req Request) ([]byte, error) {
	key := req.Key()

	b, err := p.cache.Get(key)
	if err == nil {
		p.observer.ObserveCache(true)
		return b, nil
	}
	p.observer.ObserveCache(false)
	if !errors.Is(err, ErrCacheMiss) {
		p.logger.Warn("cache lookup failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	start := time.Now()
	b, err = p.provider.Fetch(ctx, req)
	if err == nil {
		if _, _, decodeErr := image.DecodeConfig(bytes.NewReader(b)); decodeErr != nil {
			err = &FetchError{Provider: p.provider.Name(), Request: req, Err: fmt.Errorf("undecodable image: %w", decodeErr)}
		}
	}
	p.observer.ObserveFetch(p.provider.Name(), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if err = p.cache.Put(key, p.provider.Name(), b); err != nil {
		p.logger.Warn("cache store failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return b, nil
}
