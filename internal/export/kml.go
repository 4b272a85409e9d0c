// Package export serializes missions into geospatial and tabular formats.
// Every function is pure: it returns bytes and leaves persistence to the caller.
package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/drone-flyover/internal/mission"
)

const kmlNamespace = "http://www.opengis.net/kml/2.2"

type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	Xmlns    string      `xml:"xmlns,attr"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name        string         `xml:"name"`
	Description string         `xml:"description"`
	Styles      []kmlStyle     `xml:"Style"`
	Placemarks  []kmlPlacemark `xml:"Placemark"`
}

type kmlStyle struct {
	ID        string        `xml:"id,attr"`
	LineStyle *kmlLineStyle `xml:"LineStyle,omitempty"`
	IconStyle *kmlIconStyle `xml:"IconStyle,omitempty"`
}

type kmlLineStyle struct {
	Color string `xml:"color"`
	Width int    `xml:"width"`
}

type kmlIconStyle struct {
	Color string  `xml:"color"`
	Scale float64 `xml:"scale"`
}

type kmlPlacemark struct {
	Name        string         `xml:"name"`
	Description string         `xml:"description,omitempty"`
	StyleURL    string         `xml:"styleUrl"`
	LineString  *kmlLineString `xml:"LineString,omitempty"`
	Point       *kmlPoint      `xml:"Point,omitempty"`
}

type kmlLineString struct {
	Tessellate   int    `xml:"tessellate"`
	AltitudeMode string `xml:"altitudeMode"`
	Coordinates  string `xml:"coordinates"`
}

type kmlPoint struct {
	AltitudeMode string `xml:"altitudeMode"`
	Coordinates  string `xml:"coordinates"`
}

// KML renders the mission as a KML 2.2 document: one path through every
// waypoint in sequence order and one labeled marker per waypoint. Closed
// patterns repeat the first coordinate at the end of the path.
func KML(m *mission.Mission) ([]byte, error) {
	wps := m.Waypoints()
	if len(wps) == 0 {
		return nil, fmt.Errorf("exporting KML: mission %s has no waypoints", m.ID())
	}

	coords := make([]string, 0, len(wps)+1)
	for _, wp := range wps {
		coords = append(coords, kmlCoordinate(wp))
	}
	if m.Closed() {
		coords = append(coords, coords[0])
	}

	doc := kmlDocument{
		Name: m.ID(),
		Description: fmt.Sprintf("Reconnaissance of %s: %s pattern, %d waypoints, radius %s m, estimated %s s",
			m.TargetName(), m.Pattern(), len(wps), formatFloat(m.RadiusM()), strconv.FormatFloat(m.EstimatedDurationS(), 'f', 1, 64)),
		Styles: []kmlStyle{
			{ID: "flightPath", LineStyle: &kmlLineStyle{Color: "ff00ff00", Width: 3}},
			{ID: "waypoint", IconStyle: &kmlIconStyle{Color: "ff00ffff", Scale: 0.8}},
		},
	}

	doc.Placemarks = append(doc.Placemarks, kmlPlacemark{
		Name:     m.TargetName() + " flight path",
		StyleURL: "#flightPath",
		LineString: &kmlLineString{
			Tessellate:   1,
			AltitudeMode: "relativeToGround",
			Coordinates:  strings.Join(coords, " "),
		},
	})

	for i, wp := range wps {
		doc.Placemarks = append(doc.Placemarks, kmlPlacemark{
			Name: fmt.Sprintf("WP%02d %s", wp.SequenceIndex, wp.Action),
			Description: fmt.Sprintf("altitude %s m, heading %s°, speed %s m/s",
				formatFloat(wp.AltitudeM), strconv.FormatFloat(wp.HeadingDeg, 'f', 1, 64), formatFloat(wp.SpeedMPS)),
			StyleURL: "#waypoint",
			Point: &kmlPoint{
				AltitudeMode: "relativeToGround",
				Coordinates:  coords[i],
			},
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(kmlRoot{Xmlns: kmlNamespace, Document: doc}); err != nil {
		return nil, fmt.Errorf("encoding KML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding KML: %w", err)
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// kmlCoordinate formats lon,lat,alt as KML expects.
func kmlCoordinate(wp mission.Waypoint) string {
	return formatFloat(wp.Longitude) + "," + formatFloat(wp.Latitude) + "," + formatFloat(wp.AltitudeM)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
