package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/roman-kulish/drone-flyover/internal/geo"
	"github.com/roman-kulish/drone-flyover/internal/mission"
	"github.com/roman-kulish/drone-flyover/internal/pipeline"
)

type Config struct {
	Target    string
	Region    string
	Center    *geo.Point // Nil when the target is to be geocoded
	Pattern   mission.Pattern
	NumPoints int
	RadiusM   float64
	AltitudeM float64
	SpeedMPS  float64
	OutputDir string
	Formats   []pipeline.Format
	Geocode   bool
	Verbose   bool
}

func NewConfig() *Config {
	return &Config{
		Pattern:   mission.PatternOrbit,
		NumPoints: 8,
		RadiusM:   500,
		AltitudeM: 80,
		SpeedMPS:  10,
		OutputDir: ".",
		Formats:   pipeline.AllFormats,
		Geocode:   true,
	}
}

// NewConfigFromCLI parses args. Without -lat and -lon the target is geocoded,
// falling back to the default center.
func NewConfigFromCLI(args []string) (*Config, error) {
	c := NewConfig()
	fs := flag.NewFlagSet("missionplan", flag.ContinueOnError)

	var pattern, numPoints, formats string
	var lat, lon float64
	fs.StringVar(&c.Target, "target", "", "Target (point of interest) name")
	fs.StringVar(&c.Region, "region", "", "Region appended to the target when geocoding")
	fs.Float64Var(&lat, "lat", 0, "Center latitude in degrees (format nn.nnnn)")
	fs.Float64Var(&lon, "lon", 0, "Center longitude in degrees (format nn.nnnn)")
	fs.StringVar(&pattern, "pattern", string(mission.PatternOrbit), "Flight pattern. [orbit, grid, linear]")
	fs.StringVar(&numPoints, "n", "8", "Number of orbit points, or grid lanes")
	fs.Float64Var(&c.RadiusM, "radius", c.RadiusM, "Radius in meters")
	fs.Float64Var(&c.AltitudeM, "alt", c.AltitudeM, "Altitude in meters")
	fs.Float64Var(&c.SpeedMPS, "speed", c.SpeedMPS, "Speed in meters per second")
	fs.StringVar(&c.OutputDir, "o", c.OutputDir, "Output directory")
	fs.StringVar(&formats, "formats", "kml,csv,geojson,xlsx", "Comma separated export formats")
	fs.BoolVar(&c.Geocode, "geocode", true, "Look up the target when no center is given")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var latSet, lonSet bool
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "lat" {
			latSet = true
		}
		if f.Name == "lon" {
			lonSet = true
		}
	})

	var err error
	if strings.TrimSpace(c.Target) == "" {
		err = errors.New("target is required")
	} else if latSet != lonSet {
		err = errors.New("lat and lon must be given together")
	} else if c.Pattern, err = mission.ParsePattern(pattern); err != nil {
		err = fmt.Errorf("invalid pattern: %w", err)
	} else if c.NumPoints, err = mission.ParseNumPoints(numPoints); err != nil {
		err = fmt.Errorf("invalid number of points: %w", err)
	} else if c.Formats, err = parseFormats(formats); err != nil {
		err = fmt.Errorf("invalid formats: %w", err)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	if latSet {
		c.Center = &geo.Point{Latitude: lat, Longitude: lon}
	}
	return c, nil
}

func parseFormats(s string) ([]pipeline.Format, error) {
	var formats []pipeline.Format
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := pipeline.ParseFormat(part)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	if len(formats) == 0 {
		return nil, errors.New("at least one format is required")
	}
	return formats, nil
}
