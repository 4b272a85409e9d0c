package export

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roman-kulish/drone-flyover/internal/mission"
)

// GeoJSON renders the mission as a FeatureCollection holding the flight path
// as a LineString followed by one Point feature per waypoint.
func GeoJSON(m *mission.Mission) ([]byte, error) {
	wps := m.Waypoints()
	if len(wps) == 0 {
		return nil, fmt.Errorf("exporting GeoJSON: mission %s has no waypoints", m.ID())
	}

	line := make(orb.LineString, 0, len(wps)+1)
	for _, wp := range wps {
		line = append(line, orb.Point{wp.Longitude, wp.Latitude})
	}
	if m.Closed() {
		line = append(line, line[0])
	}

	fc := geojson.NewFeatureCollection()

	path := geojson.NewFeature(line)
	path.Properties["missionId"] = m.ID()
	path.Properties["target"] = m.TargetName()
	path.Properties["pattern"] = string(m.Pattern())
	path.Properties["radiusM"] = m.RadiusM()
	path.Properties["pathLengthM"] = m.PathLengthM()
	path.Properties["estimatedDurationS"] = m.EstimatedDurationS()
	fc.Append(path)

	for _, wp := range wps {
		f := geojson.NewFeature(orb.Point{wp.Longitude, wp.Latitude})
		f.Properties["sequenceIndex"] = wp.SequenceIndex
		f.Properties["altitudeM"] = wp.AltitudeM
		f.Properties["headingDeg"] = wp.HeadingDeg
		f.Properties["speedMPS"] = wp.SpeedMPS
		f.Properties["action"] = string(wp.Action)
		fc.Append(f)
	}

	b, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding GeoJSON: %w", err)
	}
	return b, nil
}
