// Package imagery fetches satellite imagery for camera positions along a
// mission path, with caching, rate limiting and per-frame failure recovery.
package imagery

import (
	"fmt"
	"math"
	"strconv"
)

const (
	// keyPrecision quantizes coordinates to five decimal places (~1.1 m).
	keyPrecision = 1e5

	maxMercatorLatitude = 85.05112878
)

// Request describes one imagery view.
type Request struct {
	Latitude  float64
	Longitude float64
	Zoom      int
	Width     int
	Height    int
}

// Key returns the cache key for the request. Positions closer than the
// quantization step share a key. The key is safe to use as a file name.
func (r Request) Key() string {
	return fmt.Sprintf("z%02d_%dx%d_%s_%s", r.Zoom, r.Width, r.Height, quantize(r.Latitude), quantize(r.Longitude))
}

func (r Request) String() string {
	return fmt.Sprintf("%.6f,%.6f@z%d", r.Latitude, r.Longitude, r.Zoom)
}

func quantize(v float64) string {
	q := math.Round(v*keyPrecision) / keyPrecision
	if q == 0 {
		q = 0 // drop negative zero
	}
	return strconv.FormatFloat(q, 'f', 5, 64)
}

// TileXY returns the slippy-map tile column and row that contain the
// coordinate at the given zoom level.
func TileXY(lat, lon float64, zoom int) (x, y int) {
	lat = math.Max(-maxMercatorLatitude, math.Min(maxMercatorLatitude, lat))
	n := math.Exp2(float64(zoom))

	x = int(math.Floor((lon + 180) / 360 * n))
	latRad := lat * math.Pi / 180
	y = int(math.Floor((1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n))

	limit := int(n) - 1
	return min(max(x, 0), limit), min(max(y, 0), limit)
}
