package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/drone-flyover/internal/geo"
	"github.com/roman-kulish/drone-flyover/internal/hud"
	"github.com/roman-kulish/drone-flyover/internal/imagery"
	"github.com/roman-kulish/drone-flyover/internal/mission"
	"github.com/roman-kulish/drone-flyover/internal/pipeline"
)

// APIKeyEnv overrides imagery.apiKey when set.
const APIKeyEnv = "FLYOVER_MAPS_API_KEY"

const (
	ProviderStaticMap ProviderType = "staticmap"
	ProviderTile      ProviderType = "tile"
)

type ProviderType string

var validProviderTypes = map[ProviderType]struct{}{
	ProviderStaticMap: {},
	ProviderTile:      {},
}

// Duration is a time.Duration written as "30s", "15m" or "2h" in the config.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Validate() error {
	if d < 0 {
		return fmt.Errorf("app.Duration: must not be negative: %s", time.Duration(d))
	}
	return nil
}

// Config represents the main application configuration
type Config struct {
	Settings Settings       `yaml:"settings"`
	Mission  MissionConfig  `yaml:"mission"`
	Imagery  ImageryConfig  `yaml:"imagery"`
	HUD      hud.Style      `yaml:"hud"`
	Output   OutputConfig   `yaml:"output"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"` // Rotated JSON log, in addition to stdout
}

// MissionConfig is the mission to fly plus the planner envelope.
type MissionConfig struct {
	Target    string           `yaml:"target"`
	Region    string           `yaml:"region"`
	Center    *geo.Point       `yaml:"center"` // Skips geocoding when set
	Pattern   mission.Pattern  `yaml:"pattern"`
	NumPoints int              `yaml:"numPoints"`
	Radius    float64          `yaml:"radius"`
	Altitude  float64          `yaml:"altitude"`
	Speed     float64          `yaml:"speed"`
	Envelope  mission.Envelope `yaml:"envelope"`

	CaptureDwell      Duration `yaml:"captureDwell"`
	HoverDwell        Duration `yaml:"hoverDwell"`
	LaunchAndRecovery bool     `yaml:"launchAndRecovery"`

	StepsPerLeg       int     `yaml:"stepsPerLeg"`
	Overhead          bool    `yaml:"overhead"`
	OverheadAltitude  float64 `yaml:"overheadAltitude"`
	OverheadZoomDelta int     `yaml:"overheadZoomDelta"`
}

// ProviderConfig is one imagery source of the fallback chain.
type ProviderConfig struct {
	Name      string       `yaml:"name"`
	Type      ProviderType `yaml:"type"`
	Enabled   bool         `yaml:"enabled"`
	URL       string       `yaml:"url"`       // Tile template, or static map endpoint
	MapType   string       `yaml:"mapType"`   // Static map only
	Scale     int          `yaml:"scale"`     // Static map only
	Format    string       `yaml:"format"`    // Static map only
	RateLimit float64      `yaml:"rateLimit"` // Requests per second, negative disables limiting
}

// ImageryConfig represents imagery retrieval settings
type ImageryConfig struct {
	APIKey      string           `yaml:"apiKey"`
	UserAgent   string           `yaml:"userAgent"`
	Zoom        int              `yaml:"zoom"`
	Width       int              `yaml:"width"`
	Height      int              `yaml:"height"`
	Concurrency int              `yaml:"concurrency"`
	Timeout     Duration         `yaml:"timeout"`
	Providers   []ProviderConfig `yaml:"providers"`
	Cache       CacheConfig      `yaml:"cache"`
}

// CacheConfig represents imagery cache settings
type CacheConfig struct {
	Directory     string   `yaml:"directory"`
	Freshness     Duration `yaml:"freshness"`
	MemoryEntries int      `yaml:"memoryEntries"`
	MaxSize       int64    `yaml:"maxSize"` // Bytes kept after a run, zero disables pruning
}

// OutputConfig represents mission output settings
type OutputConfig struct {
	Directory    string   `yaml:"directory"`
	Formats      []string `yaml:"formats"`
	PlayInterval Duration `yaml:"playInterval"`
}

type GeocoderConfig struct {
	Enabled       bool       `yaml:"enabled"`
	URL           string     `yaml:"url"`
	UserAgent     string     `yaml:"userAgent"`
	RateLimit     float64    `yaml:"rateLimit"`
	DefaultCenter *geo.Point `yaml:"defaultCenter"`
}

// StorageConfig represents the run history database
type StorageConfig struct {
	DBPath string `yaml:"dbPath"` // Empty disables run history
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // Empty disables metrics output
}

func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Mission: MissionConfig{
			Pattern:      mission.PatternOrbit,
			NumPoints:    8,
			Radius:       500,
			Altitude:     80,
			Speed:        10,
			CaptureDwell: Duration(mission.DefaultCaptureDwell),
		},
		Imagery: ImageryConfig{
			Zoom:        imagery.DefaultZoom,
			Width:       imagery.DefaultFrameSize,
			Height:      imagery.DefaultFrameSize,
			Concurrency: imagery.DefaultConcurrency,
			Timeout:     Duration(imagery.DefaultTimeout),
			Providers: []ProviderConfig{
				{Name: "arcgis", Type: ProviderTile, Enabled: true, URL: imagery.ArcGISTileURL},
			},
			Cache: CacheConfig{
				Directory:     "cache",
				Freshness:     Duration(imagery.DefaultFreshness),
				MemoryEntries: imagery.DefaultMemoryEntries,
			},
		},
		HUD: hud.Style{Theme: hud.ClassicTheme},
		Output: OutputConfig{
			Directory: "missions",
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults, applies the
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := NewConfig()
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if key := os.Getenv(APIKeyEnv); key != "" {
		c.Imagery.APIKey = key
	}
	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	validations := []struct {
		msg string
		fn  func() error
	}{
		{"settings", c.Settings.Validate},
		{"mission", c.Mission.Validate},
		{"imagery", c.Imagery.Validate},
		{"hud", c.HUD.Validate},
		{"output", c.Output.Validate},
		{"geocoder", c.Geocoder.Validate},
	}

	for _, v := range validations {
		if err := v.fn(); err != nil {
			return fmt.Errorf("invalid %s configuration: %w", v.msg, err)
		}
	}
	return nil
}

func (s *Settings) Validate() error {
	_, err := s.Level()
	return err
}

// Level parses LogLevel.
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("app.Settings: invalid log level %q", s.LogLevel)
	}
	return level, nil
}

// Validate checks what the planner cannot: the planner itself rejects bad
// flight parameters with an InputError at run time.
func (m *MissionConfig) Validate() error {
	if strings.TrimSpace(m.Target) == "" {
		return errors.New("app.MissionConfig: target is required")
	}
	pattern, err := mission.ParsePattern(string(m.Pattern))
	if err != nil {
		return fmt.Errorf("app.MissionConfig: %w", err)
	}
	m.Pattern = pattern

	if m.Center != nil {
		if err := m.Center.Validate(); err != nil {
			return fmt.Errorf("app.MissionConfig: center: %w", err)
		}
	}
	if m.StepsPerLeg < 0 {
		return fmt.Errorf("app.MissionConfig: steps per leg must not be negative: %d", m.StepsPerLeg)
	}
	if err := m.CaptureDwell.Validate(); err != nil {
		return fmt.Errorf("app.MissionConfig: capture dwell: %w", err)
	}
	if err := m.HoverDwell.Validate(); err != nil {
		return fmt.Errorf("app.MissionConfig: hover dwell: %w", err)
	}
	return nil
}

func (i *ImageryConfig) Validate() error {
	if i.Zoom < 0 || i.Zoom > 21 {
		return fmt.Errorf("app.ImageryConfig: zoom must be between 0 and 21: %d given", i.Zoom)
	}
	if i.Width <= 0 || i.Height <= 0 {
		return fmt.Errorf("app.ImageryConfig: invalid frame size %dx%d", i.Width, i.Height)
	}
	if i.Concurrency <= 0 {
		return fmt.Errorf("app.ImageryConfig: concurrency must be positive: %d given", i.Concurrency)
	}
	if err := i.Timeout.Validate(); err != nil {
		return fmt.Errorf("app.ImageryConfig: timeout: %w", err)
	}

	var enabled int
	for _, p := range i.Providers {
		if !p.Enabled {
			continue
		}
		enabled++
		if _, ok := validProviderTypes[p.Type]; !ok {
			return fmt.Errorf("app.ImageryConfig: provider %q: unknown type %q", p.Name, p.Type)
		}
		if p.Type == ProviderTile && p.URL == "" {
			return fmt.Errorf("app.ImageryConfig: provider %q: tile url template is required", p.Name)
		}
	}
	if enabled == 0 {
		return errors.New("app.ImageryConfig: no imagery provider enabled")
	}

	if i.Cache.Directory == "" {
		return errors.New("app.ImageryConfig: cache directory is required")
	}
	if err := i.Cache.Freshness.Validate(); err != nil {
		return fmt.Errorf("app.ImageryConfig: cache freshness: %w", err)
	}
	if i.Cache.MaxSize < 0 {
		return fmt.Errorf("app.ImageryConfig: cache max size must not be negative: %d", i.Cache.MaxSize)
	}
	return nil
}

func (o *OutputConfig) Validate() error {
	if o.Directory == "" {
		return errors.New("app.OutputConfig: directory is required")
	}
	for _, f := range o.Formats {
		if _, err := pipeline.ParseFormat(f); err != nil {
			return fmt.Errorf("app.OutputConfig: %w", err)
		}
	}
	return o.PlayInterval.Validate()
}

func (g *GeocoderConfig) Validate() error {
	if g.DefaultCenter != nil {
		if err := g.DefaultCenter.Validate(); err != nil {
			return fmt.Errorf("app.GeocoderConfig: default center: %w", err)
		}
	}
	return nil
}

// ParsedFormats returns the export formats, validated by Validate.
func (o *OutputConfig) ParsedFormats() []pipeline.Format {
	formats := make([]pipeline.Format, 0, len(o.Formats))
	for _, f := range o.Formats {
		pf, _ := pipeline.ParseFormat(f)
		formats = append(formats, pf)
	}
	return formats
}
