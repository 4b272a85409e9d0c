package mission

import (
	"github.com/roman-kulish/drone-flyover/internal/geo"
	"github.com/roman-kulish/drone-flyover/internal/telemetry"
)

// CameraOptions controls how a mission is turned into a sequence of camera
// positions for imagery capture.
type CameraOptions struct {
	StepsPerLeg       int  // Intermediate stops inserted between consecutive waypoints
	Overhead          bool // Append a straight-down view of the mission center
	OverheadAltitudeM float64
}

// CameraPosition is one imagery capture point along the flight path.
type CameraPosition struct {
	Waypoint  int // Index of the waypoint this position belongs to, -1 for the overhead view
	Telemetry telemetry.Telemetry
}

// Point returns the camera position.
func (c CameraPosition) Point() geo.Point {
	return geo.Point{Latitude: c.Telemetry.Latitude, Longitude: c.Telemetry.Longitude}
}

// CameraPath returns the camera positions along the mission path in flight
// order. With no intermediate steps there is exactly one position per
// waypoint. Timestamp offsets accumulate travel time and dwell.
func CameraPath(m *Mission, opts CameraOptions) []CameraPosition {
	wps := m.waypoints
	if len(wps) == 0 {
		return nil
	}

	steps := max(opts.StepsPerLeg, 0)
	positions := make([]CameraPosition, 0, len(wps)*(steps+1)+1)

	var offset float64
	for i, wp := range wps {
		positions = append(positions, CameraPosition{
			Waypoint: i,
			Telemetry: telemetry.Telemetry{
				Latitude:         wp.Latitude,
				Longitude:        wp.Longitude,
				AltitudeM:        wp.AltitudeM,
				HeadingDeg:       wp.HeadingDeg,
				SpeedMPS:         wp.SpeedMPS,
				TimestampOffsetS: offset,
			},
		})
		offset += m.Dwell(wp.Action).Seconds()

		last := i == len(wps)-1
		if last && !m.Closed() {
			break
		}
		next := wps[(i+1)%len(wps)]
		legLength := geo.Distance(wp.Point(), next.Point())
		legTime := 0.0
		if wp.SpeedMPS > 0 {
			legTime = legLength / wp.SpeedMPS
		}

		for s := 1; s <= steps; s++ {
			f := float64(s) / float64(steps+1)
			pos := geo.Interpolate(wp.Point(), next.Point(), f)
			positions = append(positions, CameraPosition{
				Waypoint: i,
				Telemetry: telemetry.Telemetry{
					Latitude:         pos.Latitude,
					Longitude:        pos.Longitude,
					AltitudeM:        wp.AltitudeM + (next.AltitudeM-wp.AltitudeM)*f,
					HeadingDeg:       geo.Bearing(pos, next.Point()),
					SpeedMPS:         wp.SpeedMPS,
					TimestampOffsetS: offset + legTime*f,
				},
			})
		}
		offset += legTime
	}

	if opts.Overhead {
		alt := opts.OverheadAltitudeM
		if alt <= 0 {
			alt = wps[0].AltitudeM
		}
		positions = append(positions, CameraPosition{
			Waypoint: -1,
			Telemetry: telemetry.Telemetry{
				Latitude:         m.center.Latitude,
				Longitude:        m.center.Longitude,
				AltitudeM:        alt,
				HeadingDeg:       0,
				SpeedMPS:         0,
				TimestampOffsetS: offset,
				Overhead:         true,
			},
		})
	}

	return positions
}
