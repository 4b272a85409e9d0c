package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/drone-flyover/internal/geo"
	"github.com/roman-kulish/drone-flyover/internal/geocode"
	"github.com/roman-kulish/drone-flyover/internal/mission"
	"github.com/roman-kulish/drone-flyover/internal/pipeline"
)

// Run plans the mission and writes the requested exports to
// <output>/<mission id>/mission.<format>.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	center, err := resolveCenter(ctx, config, logger)
	if err != nil {
		return err
	}

	m, err := mission.NewPlanner(mission.WithLogger(logger)).Plan(mission.Params{
		TargetName: config.Target,
		Center:     center,
		Pattern:    config.Pattern,
		NumPoints:  config.NumPoints,
		RadiusM:    config.RadiusM,
		AltitudeM:  config.AltitudeM,
		SpeedMPS:   config.SpeedMPS,
	})
	if err != nil {
		return err
	}
	if m.Fallback() {
		logger.Warn("pattern changed", slog.String("requested", string(m.RequestedPattern())), slog.String("planned", string(m.Pattern())))
	}

	dir := filepath.Join(config.OutputDir, m.ID())
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	for _, f := range config.Formats {
		if err = ctx.Err(); err != nil {
			return err
		}

		data, err := pipeline.Exporters[f](m)
		if err != nil {
			return fmt.Errorf("exporting %s: %w", f, err)
		}
		path := filepath.Join(dir, "mission."+string(f))
		if err = os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		logger.Info("mission exported", slog.String("path", path), slog.String("size", humanize.Bytes(uint64(len(data)))))
	}

	logger.Info("mission planned",
		slog.String("missionID", m.ID()),
		slog.String("center", m.Center().String()),
		slog.String("pattern", string(m.Pattern())),
		slog.Int("waypoints", m.Len()),
		slog.String("pathLength", humanize.SIWithDigits(m.PathLengthM(), 2, "m")),
		slog.Duration("estimatedDuration", time.Duration(m.EstimatedDurationS()*float64(time.Second)).Round(time.Second)))
	return nil
}

func resolveCenter(ctx context.Context, config *Config, logger *slog.Logger) (geo.Point, error) {
	if config.Center != nil {
		return *config.Center, nil
	}

	var g geocode.Geocoder
	if config.Geocode {
		g = geocode.NewNominatimClient(geocode.WithLogger(logger))
	}
	res, err := geocode.WithFallback(g, pipeline.DefaultCenter, logger).Resolve(ctx, config.Target, config.Region)
	if err != nil {
		return geo.Point{}, err
	}
	if res.Fallback {
		logger.Warn("using default center", slog.String("center", res.Point.String()), slog.String("reason", res.Err.Error()))
	}
	return res.Point, nil
}
