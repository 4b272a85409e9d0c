// Package geo implements great-circle calculations on a spherical Earth model.
package geo

import (
	"fmt"
	"math"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6_371_000.0

var cardinals = [...]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Point is a geographic position in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude" yaml:"lat"`
	Longitude float64 `json:"longitude" yaml:"lon"`
}

// Validate reports an InputError when the point is not a real coordinate.
// Values are never clamped.
func (p Point) Validate() error {
	switch {
	case math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0):
		return NewInputError("latitude", "latitude is not a finite number")
	case math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0):
		return NewInputError("longitude", "longitude is not a finite number")
	case p.Latitude < -90 || p.Latitude > 90:
		return NewInputError("latitude", fmt.Sprintf("latitude must be within [-90, 90]: %g given", p.Latitude))
	case p.Longitude < -180 || p.Longitude > 180:
		return NewInputError("longitude", fmt.Sprintf("longitude must be within [-180, 180]: %g given", p.Longitude))
	}
	return nil
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Latitude, p.Longitude)
}

// Destination returns the point reached by travelling distance meters from p
// along the initial bearing (degrees clockwise from true north).
func Destination(p Point, bearing, distance float64) Point {
	angDist := distance / EarthRadius
	brng := toRadians(bearing)
	lat1 := toRadians(p.Latitude)
	lon1 := toRadians(p.Longitude)

	sinLat2 := math.Sin(lat1)*math.Cos(angDist) + math.Cos(lat1)*math.Sin(angDist)*math.Cos(brng)
	lat2 := math.Asin(clamp(sinLat2, -1, 1))

	y := math.Sin(brng) * math.Sin(angDist) * math.Cos(lat1)
	x := math.Cos(angDist) - math.Sin(lat1)*sinLat2
	lon2 := lon1 + math.Atan2(y, x)

	return Point{
		Latitude:  toDegrees(lat2),
		Longitude: normalizeLongitude(toDegrees(lon2)),
	}
}

// Bearing returns the initial great-circle bearing from a to b, normalized to
// [0, 360). The bearing between identical points is 0.
func Bearing(a, b Point) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	if x == 0 && y == 0 {
		return 0
	}
	return NormalizeBearing(toDegrees(math.Atan2(y, x)))
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Sqrt(clamp(h, 0, 1)))
}

// Interpolate returns the point at fraction f (0..1) of the great-circle path
// from a to b.
func Interpolate(a, b Point, f float64) Point {
	switch {
	case f <= 0:
		return a
	case f >= 1:
		return b
	}
	d := Distance(a, b)
	if d == 0 {
		return a
	}
	return Destination(a, Bearing(a, b), d*f)
}

// NormalizeBearing maps any angle in degrees into [0, 360).
func NormalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// Cardinal returns the 16-wind compass point for a bearing.
func Cardinal(bearing float64) string {
	i := int(math.Floor(NormalizeBearing(bearing)/22.5+0.5)) % len(cardinals)
	return cardinals[i]
}

func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+540, 360) - 180
	if lon == 180 {
		lon = -180
	}
	return lon
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
