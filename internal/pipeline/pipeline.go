// Package pipeline runs a reconnaissance mission end to end: plan, export,
// fetch imagery, composite the HUD and assemble the flyover.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/drone-flyover/internal/export"
	"github.com/roman-kulish/drone-flyover/internal/flyover"
	"github.com/roman-kulish/drone-flyover/internal/geo"
	"github.com/roman-kulish/drone-flyover/internal/geocode"
	"github.com/roman-kulish/drone-flyover/internal/hud"
	"github.com/roman-kulish/drone-flyover/internal/imagery"
	"github.com/roman-kulish/drone-flyover/internal/metrics"
	"github.com/roman-kulish/drone-flyover/internal/mission"
	"github.com/roman-kulish/drone-flyover/internal/storage"
)

const (
	SummaryFile = "summary.json"
	FlyoverDir  = "flyover"

	fileMode = 0o644
	dirMode  = 0o755
)

// DefaultCenter is used when no center is given and geocoding is unavailable.
var DefaultCenter = geo.Point{Latitude: 53.9889, Longitude: -10.0661}

// Format is a mission export format.
type Format string

const (
	FormatKML     Format = "kml"
	FormatCSV     Format = "csv"
	FormatGeoJSON Format = "geojson"
	FormatXLSX    Format = "xlsx"
)

// Exporters maps each format to its serializer.
var Exporters = map[Format]func(*mission.Mission) ([]byte, error){
	FormatKML:     export.KML,
	FormatCSV:     export.CSV,
	FormatGeoJSON: export.GeoJSON,
	FormatXLSX:    export.XLSX,
}

// AllFormats lists every export format in output order.
var AllFormats = []Format{FormatKML, FormatCSV, FormatGeoJSON, FormatXLSX}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := Exporters[f]; !ok {
		return "", fmt.Errorf("unknown export format %q", s)
	}
	return f, nil
}

// SourceFetcher retrieves imagery for a camera path.
type SourceFetcher interface {
	FetchFrameSources(ctx context.Context, positions []mission.CameraPosition, opts imagery.FrameOptions) ([]imagery.Source, error)
}

// FrameCompositor draws the HUD over one frame.
type FrameCompositor interface {
	Composite(src []byte, info hud.FrameInfo) ([]byte, error)
}

// Config is the fixed part of a pipeline, shared by all runs.
type Config struct {
	OutputDir     string
	Region        string // Appended to the target name for geocoding
	DefaultCenter *geo.Point
	Formats       []Format
	Camera        mission.CameraOptions
	Frames        imagery.FrameOptions
	PlayInterval  time.Duration
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.New("pipeline.Config: output directory is required")
	}
	for _, f := range c.Formats {
		if _, ok := Exporters[f]; !ok {
			return fmt.Errorf("pipeline.Config: unknown export format %q", f)
		}
	}
	if c.DefaultCenter != nil {
		if err := c.DefaultCenter.Validate(); err != nil {
			return fmt.Errorf("pipeline.Config: default center: %w", err)
		}
	}
	if c.Camera.StepsPerLeg < 0 {
		return fmt.Errorf("pipeline.Config: steps per leg cannot be negative: %d", c.Camera.StepsPerLeg)
	}
	return nil
}

// Request is a single mission to run.
type Request struct {
	TargetName string          `json:"target_name"`
	Region     string          `json:"region,omitempty"` // Overrides Config.Region
	Center     *geo.Point      `json:"center,omitempty"` // Skips geocoding when set
	Pattern    mission.Pattern `json:"pattern"`
	NumPoints  int             `json:"num_points"`
	RadiusM    float64         `json:"radius_m"`
	AltitudeM  float64         `json:"altitude_m"`
	SpeedMPS   float64         `json:"speed_mps"`
}

// Result describes a completed run.
type Result struct {
	RunID      string
	Mission    *mission.Mission
	MissionDir string
	Exports    map[Format]string
	Frames     []flyover.Frame
	Artifact   *flyover.Artifact
	Summary    *Summary
	States     []State
}

// State returns the last state the run reached.
func (r *Result) State() State {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.baseLogger = logger
		p.logger = logger.With(slog.String("component", "pipeline"))
	}
}

// WithGeocoder resolves centers for requests that do not carry one.
func WithGeocoder(g geocode.Geocoder) Option {
	return func(p *Pipeline) {
		p.geocoder = g
	}
}

// WithStore records every run in the run history.
func WithStore(s storage.Store) Option {
	return func(p *Pipeline) {
		p.store = s
	}
}

// WithMetrics records stage timings and frame counts, and writes them to
// textfile after each run when textfile is not empty.
func WithMetrics(c *metrics.Collector, textfile string) Option {
	return func(p *Pipeline) {
		p.metrics = c
		p.metricsFile = textfile
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// Pipeline runs missions. Stages execute synchronously and in order.
type Pipeline struct {
	config     Config
	planner    *mission.Planner
	fetcher    SourceFetcher
	compositor FrameCompositor

	geocoder    geocode.Geocoder
	store       storage.Store
	metrics     *metrics.Collector
	metricsFile string
	now         func() time.Time
	baseLogger  *slog.Logger // Handed to the components the pipeline creates
	logger      *slog.Logger
}

func New(config Config, planner *mission.Planner, fetcher SourceFetcher, compositor FrameCompositor, opts ...Option) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if planner == nil || fetcher == nil || compositor == nil {
		return nil, errors.New("pipeline: planner, fetcher and compositor are required")
	}
	if len(config.Formats) == 0 {
		config.Formats = AllFormats
	}
	if config.DefaultCenter == nil {
		def := DefaultCenter
		config.DefaultCenter = &def
	}
	if config.Frames.Width <= 0 {
		config.Frames.Width = imagery.DefaultFrameSize
	}
	if config.Frames.Height <= 0 {
		config.Frames.Height = imagery.DefaultFrameSize
	}

	p := &Pipeline{
		config:     config,
		planner:    planner,
		fetcher:    fetcher,
		compositor: compositor,
		now:        time.Now,
		baseLogger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run is the mutable state of one invocation.
type run struct {
	id       string
	started  time.Time
	result   *Result
	center   geo.Point
	fallback bool
	sources  []imagery.Source
	recorded bool // Run row exists in the store
}

func (r *run) advance(to State) error {
	if len(r.result.States) == 0 {
		if to != StatePlanned {
			return fmt.Errorf("run must start at %s, not %s", StatePlanned, to)
		}
	} else if next, ok := r.result.State().Next(); !ok || next != to {
		return fmt.Errorf("illegal transition %s -> %s", r.result.State(), to)
	}
	r.result.States = append(r.result.States, to)
	return nil
}

// Run executes every stage for req. Input errors stop the run before anything
// is written. Imagery and compositing failures degrade single frames; the run
// still completes. A failure to assemble ends the run with an error, leaving
// whatever was already written in place. The context is checked before each
// stage.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		id:      uuid.NewString(),
		started: p.now(),
		result:  &Result{Exports: make(map[Format]string)},
	}
	r.result.RunID = r.id
	logger := p.logger.With(slog.String("runID", r.id))

	stages := []struct {
		state State
		name  string
		fn    func(context.Context, *run, Request, *slog.Logger) error
	}{
		{StatePlanned, "plan", p.plan},
		{StateExported, "export", p.export},
		{StateFramesFetched, "fetch", p.fetch},
		{StateComposited, "composite", p.composite},
		{StateAssembled, "assemble", p.assemble},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return r.result, p.abort(ctx, r, fmt.Errorf("before %s: %w", stage.name, err), logger)
		}

		start := time.Now()
		if err := stage.fn(ctx, r, req, logger); err != nil {
			return r.result, p.abort(ctx, r, fmt.Errorf("%s: %w", stage.name, err), logger)
		}
		p.metrics.ObserveStage(stage.name, time.Since(start))

		if err := r.advance(stage.state); err != nil {
			return r.result, p.abort(ctx, r, err, logger)
		}
		logger.Info("state reached", slog.String("state", string(stage.state)), slog.Duration("elapsed", time.Since(start)))
	}

	if err := p.finish(ctx, r, logger); err != nil {
		return r.result, err
	}
	return r.result, nil
}

func (p *Pipeline) plan(ctx context.Context, r *run, req Request, logger *slog.Logger) error {
	center, fallback, err := p.resolveCenter(ctx, req)
	if err != nil {
		return err
	}
	r.center, r.fallback = center, fallback

	m, err := p.planner.Plan(mission.Params{
		TargetName: req.TargetName,
		Center:     center,
		Pattern:    req.Pattern,
		NumPoints:  req.NumPoints,
		RadiusM:    req.RadiusM,
		AltitudeM:  req.AltitudeM,
		SpeedMPS:   req.SpeedMPS,
	})
	if err != nil {
		return err
	}
	r.result.Mission = m
	r.result.MissionDir = filepath.Join(p.config.OutputDir, m.ID())

	logger.Info("mission planned",
		slog.String("missionID", m.ID()),
		slog.String("pattern", string(m.Pattern())),
		slog.Int("waypoints", m.Len()),
		slog.String("pathLength", humanize.SIWithDigits(m.PathLengthM(), 2, "m")),
		slog.Duration("estimatedDuration", time.Duration(m.EstimatedDurationS()*float64(time.Second)).Round(time.Second)))

	if p.store != nil {
		dbRun := &storage.Run{
			ID:               r.id,
			MissionID:        m.ID(),
			TargetName:       m.TargetName(),
			Pattern:          string(m.Pattern()),
			RequestedPattern: string(m.RequestedPattern()),
			State:            string(StatePlanned),
			OutputDir:        r.result.MissionDir,
			StartedAt:        r.started,
		}
		if err = p.store.CreateRun(ctx, dbRun, req); err != nil {
			logger.Warn("recording run failed", slog.String("error", err.Error()))
		} else {
			r.recorded = true
		}
	}
	return nil
}

// resolveCenter picks the explicit center, else the geocoded one, else the
// configured default.
func (p *Pipeline) resolveCenter(ctx context.Context, req Request) (geo.Point, bool, error) {
	if req.Center != nil {
		if err := req.Center.Validate(); err != nil {
			return geo.Point{}, false, err
		}
		return *req.Center, false, nil
	}

	region := req.Region
	if region == "" {
		region = p.config.Region
	}
	res, err := geocode.WithFallback(p.geocoder, *p.config.DefaultCenter, p.baseLogger).Resolve(ctx, req.TargetName, region)
	if err != nil {
		return geo.Point{}, false, err
	}
	return res.Point, res.Fallback, nil
}

func (p *Pipeline) export(_ context.Context, r *run, _ Request, logger *slog.Logger) error {
	if err := os.MkdirAll(r.result.MissionDir, dirMode); err != nil {
		return fmt.Errorf("creating mission directory: %w", err)
	}

	for _, f := range p.config.Formats {
		data, err := Exporters[f](r.result.Mission)
		if err != nil {
			return fmt.Errorf("exporting %s: %w", f, err)
		}
		path := filepath.Join(r.result.MissionDir, "mission."+string(f))
		if err = os.WriteFile(path, data, fileMode); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		r.result.Exports[f] = path

		logger.Debug("mission exported", slog.String("format", string(f)), slog.String("size", humanize.Bytes(uint64(len(data)))))
	}
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, r *run, _ Request, logger *slog.Logger) error {
	positions := mission.CameraPath(r.result.Mission, p.config.Camera)
	sources, err := p.fetcher.FetchFrameSources(ctx, positions, p.config.Frames)
	if err != nil {
		return err
	}
	if len(sources) != len(positions) {
		return fmt.Errorf("fetched %d sources for %d camera positions", len(sources), len(positions))
	}
	r.sources = sources

	var degraded int
	for i := range sources {
		if sources[i].Degraded() {
			degraded++
		}
	}
	logger.Info("imagery fetched", slog.Int("frames", len(sources)), slog.Int("degraded", degraded))
	return nil
}

func (p *Pipeline) composite(_ context.Context, r *run, _ Request, logger *slog.Logger) error {
	m := r.result.Mission
	frames := make([]flyover.Frame, len(r.sources))

	var placeholder []byte
	for i, src := range r.sources {
		frame := flyover.Frame{
			Index:     i + 1,
			Source:    src.Image,
			Telemetry: src.Telemetry,
			Status:    flyover.StatusOK,
		}
		if src.Degraded() {
			frame.Status = flyover.StatusDegraded
		}

		out, err := p.compositor.Composite(src.Image, hud.FrameInfo{
			Index:     i + 1,
			Total:     len(r.sources),
			Label:     m.TargetName(),
			Telemetry: src.Telemetry,
		})
		if err != nil {
			var compErr *hud.CompositeError
			if !errors.As(err, &compErr) {
				return err
			}
			if placeholder == nil {
				if placeholder, err = imagery.PlaceholderPNG(p.config.Frames.Width, p.config.Frames.Height); err != nil {
					return err
				}
			}

			logger.Warn("frame not composited", slog.Int("frame", i+1), slog.String("error", compErr.Error()))
			out = placeholder
			frame.Status = flyover.StatusFailed
			frame.Err = compErr
		}
		frame.Composited = out
		frames[i] = frame
	}

	r.result.Frames = frames
	return nil
}

func (p *Pipeline) assemble(_ context.Context, r *run, _ Request, _ *slog.Logger) error {
	m := r.result.Mission
	assembler := flyover.NewAssembler(
		filepath.Join(r.result.MissionDir, FlyoverDir),
		flyover.WithLogger(p.baseLogger),
		flyover.WithPlayInterval(p.config.PlayInterval),
	)

	artifact, err := assembler.Assemble(r.result.Frames, flyover.MissionMeta{
		MissionID:          m.ID(),
		TargetName:         m.TargetName(),
		Pattern:            string(m.Pattern()),
		EstimatedDurationS: m.EstimatedDurationS(),
	})
	if err != nil {
		return err
	}
	r.result.Artifact = artifact
	return nil
}

// finish writes summary.json and records the completed run.
func (p *Pipeline) finish(ctx context.Context, r *run, logger *slog.Logger) error {
	finished := p.now()
	summary := p.summary(r, finished)
	summaryPath := filepath.Join(r.result.MissionDir, SummaryFile)
	summary.ArtifactPaths["summary"] = summaryPath
	r.result.Summary = summary

	if err := writeSummary(summaryPath, summary); err != nil {
		return p.abort(ctx, r, err, logger)
	}

	p.record(ctx, r, summary, nil, logger)

	failed := len(summary.FailedFrames)
	degraded := len(summary.DegradedFrames)
	p.metrics.SetFrames(summary.FrameCount-failed-degraded, degraded, failed)
	p.metrics.MarkSuccess(finished)
	p.writeMetrics(logger)

	logger.Info("mission complete",
		slog.String("missionID", summary.MissionID),
		slog.String("dir", r.result.MissionDir),
		slog.Int("frames", summary.FrameCount),
		slog.Any("degraded", summary.DegradedFrames),
		slog.Any("failed", summary.FailedFrames))
	return nil
}

// abort records a run that stopped early and returns err.
func (p *Pipeline) abort(ctx context.Context, r *run, err error, logger *slog.Logger) error {
	logger.Error("run stopped", slog.String("state", string(r.result.State())), slog.String("error", err.Error()))

	if r.result.Mission != nil {
		// The caller's context may be the reason for stopping.
		p.record(context.WithoutCancel(ctx), r, p.summary(r, p.now()), err, logger)
	}
	p.writeMetrics(logger)
	return err
}

func (p *Pipeline) summary(r *run, finished time.Time) *Summary {
	m := r.result.Mission
	s := &Summary{
		RunID:              r.id,
		MissionID:          m.ID(),
		TargetName:         m.TargetName(),
		Center:             r.center,
		CenterFallback:     r.fallback,
		Pattern:            string(m.Pattern()),
		RequestedPattern:   string(m.RequestedPattern()),
		WaypointCount:      m.Len(),
		FrameCount:         len(r.result.Frames),
		DegradedFrames:     []int{},
		FailedFrames:       []int{},
		EstimatedDurationS: m.EstimatedDurationS(),
		ArtifactPaths:      make(map[string]string),
		State:              r.result.State(),
		StartedAt:          r.started.UTC(),
		FinishedAt:         finished.UTC(),
	}
	for _, f := range r.result.Frames {
		switch f.Status {
		case flyover.StatusDegraded:
			s.DegradedFrames = append(s.DegradedFrames, f.Index)
		case flyover.StatusFailed:
			s.FailedFrames = append(s.FailedFrames, f.Index)
		}
	}
	for f, path := range r.result.Exports {
		s.ArtifactPaths[string(f)] = path
	}
	if a := r.result.Artifact; a != nil {
		s.ArtifactPaths["flyover"] = a.Dir
		s.ArtifactPaths["viewer"] = a.ViewerPath
		s.ArtifactPaths["metadata"] = a.MetadataPath
		s.ArtifactPaths["manifest"] = a.ManifestPath
	}
	return s
}

// record stores the run and its frames. Run history is auxiliary: failures
// are logged, never returned.
func (p *Pipeline) record(ctx context.Context, r *run, s *Summary, runErr error, logger *slog.Logger) {
	if p.store == nil || !r.recorded {
		return
	}

	finished := s.FinishedAt
	dbRun := &storage.Run{
		ID:                 s.RunID,
		State:              string(s.State),
		WaypointCount:      s.WaypointCount,
		FrameCount:         s.FrameCount,
		DegradedFrames:     len(s.DegradedFrames),
		FailedFrames:       len(s.FailedFrames),
		EstimatedDurationS: s.EstimatedDurationS,
		FinishedAt:         &finished,
	}
	if runErr != nil {
		msg := runErr.Error()
		dbRun.Error = &msg
	}
	if err := p.store.FinishRun(ctx, dbRun); err != nil {
		logger.Warn("recording run failed", slog.String("error", err.Error()))
		return
	}

	frames := make([]storage.Frame, 0, len(r.result.Frames))
	for _, f := range r.result.Frames {
		t := f.Telemetry
		sf := storage.Frame{
			Index:            f.Index,
			Status:           string(f.Status),
			File:             flyover.FrameFile(f.Index),
			Latitude:         t.Latitude,
			Longitude:        t.Longitude,
			AltitudeM:        t.AltitudeM,
			HeadingDeg:       t.HeadingDeg,
			SpeedMPS:         t.SpeedMPS,
			TimestampOffsetS: t.TimestampOffsetS,
			Zoom:             t.Zoom,
			Overhead:         t.Overhead,
		}
		switch {
		case f.Err != nil:
			msg := f.Err.Error()
			sf.Error = &msg
		case t.FetchError != "":
			msg := t.FetchError
			sf.Error = &msg
		}
		frames = append(frames, sf)
	}
	if err := p.store.StoreFrames(ctx, s.RunID, frames); err != nil {
		logger.Warn("recording frames failed", slog.String("error", err.Error()))
	}
}

func (p *Pipeline) writeMetrics(logger *slog.Logger) {
	if p.metrics == nil || p.metricsFile == "" {
		return
	}
	if err := p.metrics.WriteTextfile(p.metricsFile); err != nil {
		logger.Warn("writing metrics failed", slog.String("error", err.Error()))
	}
}

// Formats returns the configured export formats in output order.
func (p *Pipeline) Formats() []Format {
	return slices.Clone(p.config.Formats)
}
