package telemetry

import (
	"errors"
	"fmt"
	"math"
)

// Telemetry is the simulated vehicle state attached to a single frame
type Telemetry struct {
	Latitude         float64 `json:"latitude"`             // Latitude in decimal degrees
	Longitude        float64 `json:"longitude"`            // Longitude in decimal degrees
	AltitudeM        float64 `json:"altitudeM"`            // Altitude above ground in meters
	HeadingDeg       float64 `json:"headingDeg"`           // Heading in degrees clockwise from north
	SpeedMPS         float64 `json:"speedMPS"`             // Ground speed in m/s
	TimestampOffsetS float64 `json:"timestampOffsetS"`     // Seconds since mission start
	Zoom             int     `json:"zoom,omitempty"`       // Imagery zoom level used for the frame
	Overhead         bool    `json:"overhead,omitempty"`   // Straight-down view of the mission center
	FetchFailed      bool    `json:"fetchFailed"`          // Imagery could not be fetched, frame shows a placeholder
	FetchError       string  `json:"fetchError,omitempty"` // Reason the fetch failed
}

// Validate checks that every value can be rendered. It does not clamp.
func (t *Telemetry) Validate() error {
	values := []struct {
		name string
		v    float64
	}{
		{"latitude", t.Latitude},
		{"longitude", t.Longitude},
		{"altitude", t.AltitudeM},
		{"heading", t.HeadingDeg},
		{"speed", t.SpeedMPS},
		{"timestamp offset", t.TimestampOffsetS},
	}
	for _, f := range values {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("telemetry: %s is not a finite number", f.name)
		}
	}

	switch {
	case t.Latitude < -90 || t.Latitude > 90:
		return fmt.Errorf("telemetry: latitude out of range: %g", t.Latitude)
	case t.Longitude < -180 || t.Longitude > 180:
		return fmt.Errorf("telemetry: longitude out of range: %g", t.Longitude)
	case t.HeadingDeg < 0 || t.HeadingDeg >= 360:
		return fmt.Errorf("telemetry: heading must be within [0, 360): %g", t.HeadingDeg)
	case t.AltitudeM < 0:
		return errors.New("telemetry: altitude cannot be negative")
	case t.SpeedMPS < 0:
		return errors.New("telemetry: speed cannot be negative")
	}
	return nil
}
