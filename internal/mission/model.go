package mission

import (
	"fmt"
	"strings"
	"time"

	"github.com/roman-kulish/drone-flyover/internal/geo"
)

const (
	PatternOrbit  Pattern = "ORBIT"  // Evenly spaced stops on a circle, tangential heading
	PatternGrid   Pattern = "GRID"   // Boustrophedon lanes over a square survey area
	PatternLinear Pattern = "LINEAR" // Single approach and departure flyby

	ActionCapture Action = "CAPTURE"
	ActionHover   Action = "HOVER"
	ActionTransit Action = "TRANSIT"
)

// Pattern is the geometric layout of a reconnaissance flight path.
type Pattern string

var validPatterns = map[Pattern]struct{}{
	PatternOrbit:  {},
	PatternGrid:   {},
	PatternLinear: {},
}

// ParsePattern parses a case-insensitive pattern name.
func ParsePattern(s string) (Pattern, error) {
	p := Pattern(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := validPatterns[p]; !ok {
		return "", NewInputError("pattern", fmt.Sprintf("unknown pattern %q", s))
	}
	return p, nil
}

// Action is what the vehicle does on reaching a waypoint.
type Action string

var validActions = map[Action]struct{}{
	ActionCapture: {},
	ActionHover:   {},
	ActionTransit: {},
}

// ParseAction parses a case-insensitive action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := validActions[a]; !ok {
		return "", NewInputError("action", fmt.Sprintf("unknown action %q", s))
	}
	return a, nil
}

// Waypoint is one positioned, oriented stop along a planned flight path.
type Waypoint struct {
	SequenceIndex int     `json:"sequenceIndex"` // Zero-based position in the path
	Latitude      float64 `json:"latitude"`      // Decimal degrees
	Longitude     float64 `json:"longitude"`     // Decimal degrees
	AltitudeM     float64 `json:"altitudeM"`     // Meters above ground
	HeadingDeg    float64 `json:"headingDeg"`    // Degrees clockwise from true north, [0, 360)
	SpeedMPS      float64 `json:"speedMPS"`      // Ground speed in m/s
	Action        Action  `json:"action"`
}

// Point returns the waypoint position.
func (w Waypoint) Point() geo.Point {
	return geo.Point{Latitude: w.Latitude, Longitude: w.Longitude}
}

// Mission is a planned reconnaissance flight. It is immutable once returned
// by the Planner: accessors hand out copies.
type Mission struct {
	id               string
	targetName       string
	center           geo.Point
	pattern          Pattern
	requestedPattern Pattern
	radius           float64
	waypoints        []Waypoint
	pathLength       float64
	duration         float64
	createdAt        time.Time
	captureDwell     time.Duration
	hoverDwell       time.Duration
}

// ID returns the filesystem-safe mission identifier.
func (m *Mission) ID() string { return m.id }

func (m *Mission) TargetName() string { return m.targetName }

func (m *Mission) Center() geo.Point { return m.center }

// Pattern returns the effective pattern, which differs from the requested one
// when the planner had to fall back.
func (m *Mission) Pattern() Pattern { return m.pattern }

func (m *Mission) RequestedPattern() Pattern { return m.requestedPattern }

// Fallback reports whether the effective pattern differs from the requested one.
func (m *Mission) Fallback() bool { return m.pattern != m.requestedPattern }

func (m *Mission) RadiusM() float64 { return m.radius }

// Closed reports whether the path returns from the last waypoint to the first.
func (m *Mission) Closed() bool { return m.pattern != PatternLinear }

// Waypoints returns a copy of the ordered waypoints.
func (m *Mission) Waypoints() []Waypoint {
	wps := make([]Waypoint, len(m.waypoints))
	copy(wps, m.waypoints)
	return wps
}

// Len returns the number of waypoints.
func (m *Mission) Len() int { return len(m.waypoints) }

// PathLengthM returns the total flown distance in meters, closing leg included.
func (m *Mission) PathLengthM() float64 { return m.pathLength }

// EstimatedDurationS returns the estimated flight time in seconds.
func (m *Mission) EstimatedDurationS() float64 { return m.duration }

func (m *Mission) CreatedAt() time.Time { return m.createdAt }

// Dwell returns the time spent stationary at a waypoint with the given action.
func (m *Mission) Dwell(a Action) time.Duration {
	switch a {
	case ActionCapture:
		return m.captureDwell
	case ActionHover:
		return m.hoverDwell
	default:
		return 0
	}
}
