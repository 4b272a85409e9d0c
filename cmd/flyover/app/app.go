package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/drone-flyover/internal/geocode"
	"github.com/roman-kulish/drone-flyover/internal/hud"
	"github.com/roman-kulish/drone-flyover/internal/imagery"
	"github.com/roman-kulish/drone-flyover/internal/metrics"
	"github.com/roman-kulish/drone-flyover/internal/mission"
	"github.com/roman-kulish/drone-flyover/internal/pipeline"
	"github.com/roman-kulish/drone-flyover/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	cache, err := imagery.NewCache(imagery.CacheConfig{
		Dir:           config.Imagery.Cache.Directory,
		Freshness:     time.Duration(config.Imagery.Cache.Freshness),
		MemoryEntries: config.Imagery.Cache.MemoryEntries,
	}, imagery.WithCacheLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create imagery cache: %w", err)
	}

	provider, err := createProvider(&config.Imagery)
	if err != nil {
		return fmt.Errorf("failed to create imagery provider: %w", err)
	}
	cached := imagery.NewCachedProvider(provider, cache,
		imagery.WithCachedProviderLogger(logger),
		imagery.WithCachedProviderObserver(collector))

	fetcher := imagery.NewFetcher(cached,
		imagery.WithLogger(logger),
		imagery.WithConcurrency(config.Imagery.Concurrency),
		imagery.WithTimeout(time.Duration(config.Imagery.Timeout)))

	compositor, err := hud.NewCompositor(config.HUD, hud.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create compositor: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(collector, config.Metrics.Textfile),
	}
	if config.Geocoder.Enabled {
		opts = append(opts, pipeline.WithGeocoder(createGeocoder(&config.Geocoder, logger)))
	}
	if config.Storage.DBPath != "" {
		store, err := createStorage(&config.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer store.Close()

		opts = append(opts, pipeline.WithStore(store))
	}

	p, err := pipeline.New(pipeline.Config{
		OutputDir:     config.Output.Directory,
		Region:        config.Mission.Region,
		DefaultCenter: config.Geocoder.DefaultCenter,
		Formats:       config.Output.ParsedFormats(),
		Camera: mission.CameraOptions{
			StepsPerLeg:       config.Mission.StepsPerLeg,
			Overhead:          config.Mission.Overhead,
			OverheadAltitudeM: config.Mission.OverheadAltitude,
		},
		Frames: imagery.FrameOptions{
			Zoom:              config.Imagery.Zoom,
			Width:             config.Imagery.Width,
			Height:            config.Imagery.Height,
			OverheadZoomDelta: config.Mission.OverheadZoomDelta,
		},
		PlayInterval: time.Duration(config.Output.PlayInterval),
	}, createPlanner(&config.Mission, logger), fetcher, compositor, opts...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	res, err := p.Run(ctx, pipeline.Request{
		TargetName: config.Mission.Target,
		Center:     config.Mission.Center,
		Pattern:    config.Mission.Pattern,
		NumPoints:  config.Mission.NumPoints,
		RadiusM:    config.Mission.Radius,
		AltitudeM:  config.Mission.Altitude,
		SpeedMPS:   config.Mission.Speed,
	})
	if err != nil {
		return err
	}

	if maxSize := config.Imagery.Cache.MaxSize; maxSize > 0 {
		if err = cache.Prune(maxSize); err != nil {
			logger.Warn("pruning imagery cache failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("flyover ready",
		slog.String("viewer", res.Artifact.ViewerPath),
		slog.String("frames", humanize.Comma(int64(res.Artifact.Frames))))
	return nil
}

func createPlanner(config *MissionConfig, logger *slog.Logger) *mission.Planner {
	opts := []mission.PlannerOption{
		mission.WithLogger(logger),
		mission.WithEnvelope(config.Envelope),
		mission.WithDwell(time.Duration(config.CaptureDwell), time.Duration(config.HoverDwell)),
	}
	if config.LaunchAndRecovery {
		opts = append(opts, mission.WithLaunchAndRecovery())
	}
	return mission.NewPlanner(opts...)
}

// createProvider builds the fallback chain from the enabled providers, in
// configuration order.
func createProvider(config *ImageryConfig) (imagery.Provider, error) {
	client := &http.Client{Timeout: time.Duration(config.Timeout)}

	var providers []imagery.Provider
	for _, pc := range config.Providers {
		if !pc.Enabled {
			continue
		}

		httpCfg := imagery.HTTPConfig{
			Client:            client,
			UserAgent:         config.UserAgent,
			RequestsPerSecond: pc.RateLimit,
		}

		var provider imagery.Provider
		var err error
		switch pc.Type {
		case ProviderStaticMap:
			if config.APIKey == "" {
				return nil, fmt.Errorf("provider %q: API key is required, set imagery.apiKey or %s", pc.Name, APIKeyEnv)
			}
			provider, err = imagery.NewStaticMapProvider(imagery.StaticMapConfig{
				BaseURL: pc.URL,
				APIKey:  config.APIKey,
				MapType: pc.MapType,
				Scale:   pc.Scale,
				Format:  pc.Format,
			}, httpCfg)

		case ProviderTile:
			provider, err = imagery.NewTileProvider(pc.Name, pc.URL, httpCfg)

		default:
			return nil, fmt.Errorf("creating provider: unknown type '%s'", pc.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("creating provider %q: %w", pc.Name, err)
		}
		providers = append(providers, provider)
	}

	switch len(providers) {
	case 0:
		return nil, imagery.ErrNoProviders
	case 1:
		return providers[0], nil
	default:
		return imagery.NewFallbackProvider(providers...), nil
	}
}

func createGeocoder(config *GeocoderConfig, logger *slog.Logger) geocode.Geocoder {
	opts := []geocode.Option{geocode.WithLogger(logger)}
	if config.URL != "" {
		opts = append(opts, geocode.WithBaseURL(config.URL))
	}
	if config.UserAgent != "" {
		opts = append(opts, geocode.WithUserAgent(config.UserAgent))
	}
	if config.RateLimit != 0 {
		opts = append(opts, geocode.WithRateLimit(config.RateLimit))
	}
	return geocode.NewNominatimClient(opts...)
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dbPath := config.DBPath
	if !filepath.IsAbs(dbPath) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dbPath = filepath.Join(wd, dbPath)
	}

	dir := filepath.Dir(dbPath)
	stat, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, err
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return storage.NewSqliteStore(dbPath), nil
}
