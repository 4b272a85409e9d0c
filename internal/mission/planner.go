package mission

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/roman-kulish/drone-flyover/internal/geo"
)

const (
	DefaultMaxAltitudeM = 120.0 // Typical regulatory ceiling for small UAS
	DefaultMaxSpeedMPS  = 25.0
	DefaultMaxWaypoints = 360

	DefaultCaptureDwell = 5 * time.Second

	minOrbitPoints = 3
	minGridLanes   = 2
)

// Envelope bounds the flight parameters a planner accepts. Requests outside
// the envelope are rejected, never clamped.
type Envelope struct {
	MaxAltitudeM float64 `yaml:"maxAltitude"`
	MaxSpeedMPS  float64 `yaml:"maxSpeed"`
	MaxWaypoints int     `yaml:"maxWaypoints"`
}

// Params is a single planning request.
type Params struct {
	TargetName string
	Center     geo.Point
	Pattern    Pattern
	NumPoints  int     // Orbit stops, or survey lanes for GRID. Ignored for LINEAR
	RadiusM    float64 // Orbit radius, or half the side of the GRID square
	AltitudeM  float64
	SpeedMPS   float64
}

type PlannerOption func(*Planner)

// WithEnvelope overrides the safe flight envelope. Zero fields keep defaults.
func WithEnvelope(e Envelope) PlannerOption {
	return func(p *Planner) {
		if e.MaxAltitudeM > 0 {
			p.envelope.MaxAltitudeM = e.MaxAltitudeM
		}
		if e.MaxSpeedMPS > 0 {
			p.envelope.MaxSpeedMPS = e.MaxSpeedMPS
		}
		if e.MaxWaypoints > 0 {
			p.envelope.MaxWaypoints = e.MaxWaypoints
		}
	}
}

// WithDwell sets the stationary time spent at CAPTURE and HOVER waypoints.
func WithDwell(capture, hover time.Duration) PlannerOption {
	return func(p *Planner) {
		p.captureDwell = max(capture, 0)
		p.hoverDwell = max(hover, 0)
	}
}

// WithClock sets the time source used for mission creation dates.
func WithClock(now func() time.Time) PlannerOption {
	return func(p *Planner) {
		p.now = now
	}
}

// WithLaunchAndRecovery adds a HOVER launch waypoint over the center before the
// survey and a HOVER recovery waypoint at ground level after it.
func WithLaunchAndRecovery() PlannerOption {
	return func(p *Planner) {
		p.launchAndRecovery = true
	}
}

func WithLogger(logger *slog.Logger) PlannerOption {
	return func(p *Planner) {
		p.logger = logger.With(slog.String("component", "planner"))
	}
}

// Planner turns a center point and pattern parameters into a Mission.
type Planner struct {
	envelope          Envelope
	captureDwell      time.Duration
	hoverDwell        time.Duration
	launchAndRecovery bool
	now               func() time.Time
	logger            *slog.Logger
}

func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{
		envelope: Envelope{
			MaxAltitudeM: DefaultMaxAltitudeM,
			MaxSpeedMPS:  DefaultMaxSpeedMPS,
			MaxWaypoints: DefaultMaxWaypoints,
		},
		captureDwell: DefaultCaptureDwell,
		now:          time.Now,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan validates the request and computes the mission. An ORBIT request with
// fewer than three points falls back to LINEAR; the returned mission reports
// the effective pattern.
func (p *Planner) Plan(params Params) (*Mission, error) {
	if err := p.validate(params); err != nil {
		return nil, err
	}

	effective := params.Pattern
	if effective == PatternOrbit && params.NumPoints < minOrbitPoints {
		effective = PatternLinear
		p.logger.Warn("orbit needs at least three points, planning a linear flyby instead",
			slog.String("target", params.TargetName),
			slog.Int("numPoints", params.NumPoints))
	}

	var wps []Waypoint
	switch effective {
	case PatternOrbit:
		wps = orbit(params)
	case PatternGrid:
		wps = grid(params)
	case PatternLinear:
		wps = linear(params)
	}

	if p.launchAndRecovery {
		wps = withLaunchAndRecovery(wps, params)
	}
	for i := range wps {
		wps[i].SequenceIndex = i
	}

	createdAt := p.now()
	m := &Mission{
		id:               NewID(params.TargetName, createdAt),
		targetName:       strings.TrimSpace(params.TargetName),
		center:           params.Center,
		pattern:          effective,
		requestedPattern: params.Pattern,
		radius:           params.RadiusM,
		waypoints:        wps,
		createdAt:        createdAt,
		captureDwell:     p.captureDwell,
		hoverDwell:       p.hoverDwell,
	}
	m.pathLength = PathLength(wps, m.Closed())
	m.duration = EstimateDuration(m.pathLength, params.SpeedMPS, wps, p.captureDwell, p.hoverDwell)

	p.logger.Debug("mission planned",
		slog.String("missionID", m.id),
		slog.String("pattern", string(effective)),
		slog.Int("waypoints", len(wps)),
		slog.Float64("pathLengthM", m.pathLength),
		slog.Float64("durationS", m.duration))

	return m, nil
}

func (p *Planner) validate(params Params) error {
	if strings.TrimSpace(params.TargetName) == "" {
		return NewInputError("target", "target name is required")
	}
	if err := params.Center.Validate(); err != nil {
		return err
	}
	if _, ok := validPatterns[params.Pattern]; !ok {
		return NewInputError("pattern", fmt.Sprintf("unknown pattern %q", params.Pattern))
	}
	if !isFinite(params.RadiusM) || params.RadiusM <= 0 {
		return NewInputError("radius", fmt.Sprintf("radius must be a positive number of meters: %g given", params.RadiusM))
	}
	if !isFinite(params.AltitudeM) || params.AltitudeM < 0 {
		return NewInputError("altitude", fmt.Sprintf("altitude must be non-negative: %g given", params.AltitudeM))
	}
	if params.AltitudeM > p.envelope.MaxAltitudeM {
		return NewInputError("altitude", fmt.Sprintf("altitude %g m exceeds the %g m ceiling", params.AltitudeM, p.envelope.MaxAltitudeM))
	}
	if !isFinite(params.SpeedMPS) || params.SpeedMPS <= 0 {
		return NewInputError("speed", fmt.Sprintf("speed must be positive: %g given", params.SpeedMPS))
	}
	if params.SpeedMPS > p.envelope.MaxSpeedMPS {
		return NewInputError("speed", fmt.Sprintf("speed %g m/s exceeds the %g m/s limit", params.SpeedMPS, p.envelope.MaxSpeedMPS))
	}

	switch params.Pattern {
	case PatternOrbit:
		if params.NumPoints <= 0 {
			return NewInputError("num_points", fmt.Sprintf("orbit needs at least one point: %d given", params.NumPoints))
		}
	case PatternGrid:
		if params.NumPoints < minGridLanes {
			return NewInputError("num_points", fmt.Sprintf("grid needs at least %d lanes: %d given", minGridLanes, params.NumPoints))
		}
	}

	if n := p.waypointCount(params); n > p.envelope.MaxWaypoints {
		return NewInputError("num_points", fmt.Sprintf("mission would have %d waypoints, limit is %d", n, p.envelope.MaxWaypoints))
	}
	return nil
}

// waypointCount returns how many waypoints Plan would generate for valid
// params, without generating them.
func (p *Planner) waypointCount(params Params) int {
	var n int
	switch {
	case params.Pattern == PatternOrbit && params.NumPoints >= minOrbitPoints:
		n = params.NumPoints
	case params.Pattern == PatternGrid:
		n = 2 * params.NumPoints
	default:
		n = 2 // LINEAR, and ORBIT falling back to it
	}
	if p.launchAndRecovery {
		n += 2
	}
	return n
}

func orbit(params Params) []Waypoint {
	wps := make([]Waypoint, params.NumPoints)
	step := 360.0 / float64(params.NumPoints)
	for i := range wps {
		bearing := float64(i) * step
		pos := geo.Destination(params.Center, bearing, params.RadiusM)
		wps[i] = Waypoint{
			Latitude:   pos.Latitude,
			Longitude:  pos.Longitude,
			AltitudeM:  params.AltitudeM,
			HeadingDeg: geo.NormalizeBearing(bearing + 90),
			SpeedMPS:   params.SpeedMPS,
			Action:     ActionCapture,
		}
	}
	return wps
}

func grid(params Params) []Waypoint {
	lanes := params.NumPoints
	spacing := 2 * params.RadiusM / float64(lanes-1)

	points := make([]geo.Point, 0, 2*lanes)
	for k := 0; k < lanes; k++ {
		north := params.RadiusM - float64(k)*spacing
		laneCenter := params.Center
		switch {
		case north > 0:
			laneCenter = geo.Destination(params.Center, 0, north)
		case north < 0:
			laneCenter = geo.Destination(params.Center, 180, -north)
		}

		west := geo.Destination(laneCenter, 270, params.RadiusM)
		east := geo.Destination(laneCenter, 90, params.RadiusM)
		if k%2 == 0 {
			points = append(points, west, east)
		} else {
			points = append(points, east, west)
		}
	}

	wps := make([]Waypoint, len(points))
	for i, pos := range points {
		next := points[(i+1)%len(points)]
		wps[i] = Waypoint{
			Latitude:   pos.Latitude,
			Longitude:  pos.Longitude,
			AltitudeM:  params.AltitudeM,
			HeadingDeg: geo.Bearing(pos, next),
			SpeedMPS:   params.SpeedMPS,
			Action:     ActionCapture,
		}
	}
	return wps
}

func linear(params Params) []Waypoint {
	approach := geo.Destination(params.Center, 270, params.RadiusM)
	departure := geo.Destination(params.Center, 90, params.RadiusM)

	return []Waypoint{
		{
			Latitude:   approach.Latitude,
			Longitude:  approach.Longitude,
			AltitudeM:  params.AltitudeM,
			HeadingDeg: geo.Bearing(approach, departure),
			SpeedMPS:   params.SpeedMPS,
			Action:     ActionCapture,
		},
		{
			Latitude:   departure.Latitude,
			Longitude:  departure.Longitude,
			AltitudeM:  params.AltitudeM,
			HeadingDeg: geo.NormalizeBearing(geo.Bearing(departure, approach) + 180),
			SpeedMPS:   params.SpeedMPS,
			Action:     ActionCapture,
		},
	}
}

func withLaunchAndRecovery(wps []Waypoint, params Params) []Waypoint {
	c := params.Center
	out := make([]Waypoint, 0, len(wps)+2)
	out = append(out, Waypoint{
		Latitude:   c.Latitude,
		Longitude:  c.Longitude,
		AltitudeM:  params.AltitudeM,
		HeadingDeg: geo.Bearing(c, wps[0].Point()),
		SpeedMPS:   params.SpeedMPS,
		Action:     ActionHover,
	})
	out = append(out, wps...)
	out = append(out, Waypoint{
		Latitude:   c.Latitude,
		Longitude:  c.Longitude,
		AltitudeM:  0,
		HeadingDeg: geo.Bearing(wps[len(wps)-1].Point(), c),
		SpeedMPS:   params.SpeedMPS,
		Action:     ActionHover,
	})
	return out
}

// PathLength sums great-circle leg distances between consecutive waypoints,
// adding the leg from the last waypoint back to the first when closed is set.
func PathLength(wps []Waypoint, closed bool) float64 {
	var total float64
	for i := 1; i < len(wps); i++ {
		total += geo.Distance(wps[i-1].Point(), wps[i].Point())
	}
	if closed && len(wps) > 1 {
		total += geo.Distance(wps[len(wps)-1].Point(), wps[0].Point())
	}
	return total
}

// EstimateDuration returns the flight time in seconds: travel time at the
// given speed plus the dwell for every CAPTURE and HOVER waypoint.
func EstimateDuration(pathLength, speed float64, wps []Waypoint, captureDwell, hoverDwell time.Duration) float64 {
	seconds := pathLength / speed
	for _, wp := range wps {
		switch wp.Action {
		case ActionCapture:
			seconds += captureDwell.Seconds()
		case ActionHover:
			seconds += hoverDwell.Seconds()
		}
	}
	return seconds
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
