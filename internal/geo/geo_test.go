package geo

import (
	"errors"
	"math"
	"testing"
)

func TestDestinationBearingRoundTrip(t *testing.T) {
	origin := Point{Latitude: 53.9889, Longitude: -10.0661}

	for _, bearing := range []float64{0, 45, 90, 135, 180, 225, 270, 315, 359.5} {
		for _, distance := range []float64{1, 100, 500, 2_000} {
			dst := Destination(origin, bearing, distance)

			got := Bearing(origin, dst)
			if diff := angleDiff(got, bearing); diff > 1e-6 {
				t.Errorf("bearing(%g, %g m) = %g, want %g", bearing, distance, got, bearing)
			}

			d := Distance(origin, dst)
			if math.Abs(d-distance) > 1e-3*distance {
				t.Errorf("distance(%g, %g m) = %g", bearing, distance, d)
			}
		}
	}
}

func TestBearingRange(t *testing.T) {
	cases := []struct {
		a, b Point
		want float64
	}{
		{Point{0, 0}, Point{1, 0}, 0},
		{Point{0, 0}, Point{0, 1}, 90},
		{Point{0, 0}, Point{-1, 0}, 180},
		{Point{0, 0}, Point{0, -1}, 270},
		{Point{10, 10}, Point{10, 10}, 0},
	}

	for _, c := range cases {
		got := Bearing(c.a, c.b)
		if got < 0 || got >= 360 {
			t.Fatalf("bearing %g out of range", got)
		}
		if angleDiff(got, c.want) > 1e-9 {
			t.Errorf("Bearing(%v, %v) = %g, want %g", c.a, c.b, got, c.want)
		}
	}
}

func TestDestinationAntimeridian(t *testing.T) {
	p := Destination(Point{Latitude: 0, Longitude: 179.9999}, 90, 1_000)
	if p.Longitude >= 180 || p.Longitude < -180 {
		t.Fatalf("longitude not normalized: %g", p.Longitude)
	}
	if p.Longitude > 0 {
		t.Errorf("expected wrap to western hemisphere, got %g", p.Longitude)
	}
}

func TestNormalizeBearing(t *testing.T) {
	cases := map[float64]float64{
		0:    0,
		360:  0,
		-90:  270,
		725:  5,
		-720: 0,
	}
	for in, want := range cases {
		if got := NormalizeBearing(in); got != want {
			t.Errorf("NormalizeBearing(%g) = %g, want %g", in, got, want)
		}
	}
}

func TestCardinal(t *testing.T) {
	cases := map[float64]string{
		0:     "N",
		11:    "N",
		12:    "NNE",
		90:    "E",
		180:   "S",
		247.5: "WSW",
		350:   "N",
		-45:   "NW",
	}
	for in, want := range cases {
		if got := Cardinal(in); got != want {
			t.Errorf("Cardinal(%g) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := []Point{{0, 0}, {90, 180}, {-90, -180}, {53.9889, -10.0661}}
	for _, p := range valid {
		if err := p.Validate(); err != nil {
			t.Errorf("Validate(%v) = %v", p, err)
		}
	}

	invalid := []Point{
		{91, 0},
		{-90.0001, 0},
		{0, 180.5},
		{0, -181},
		{math.NaN(), 0},
		{0, math.Inf(1)},
	}
	for _, p := range invalid {
		err := p.Validate()
		var inputErr *InputError
		if !errors.As(err, &inputErr) {
			t.Errorf("Validate(%v) = %v, want InputError", p, err)
		}
	}
}

func TestInterpolate(t *testing.T) {
	a := Point{Latitude: 53.9889, Longitude: -10.0661}
	b := Destination(a, 60, 1_000)

	mid := Interpolate(a, b, 0.5)
	if d := Distance(a, mid); math.Abs(d-500) > 0.5 {
		t.Errorf("midpoint distance = %g, want 500", d)
	}
	if got := Interpolate(a, b, 0); got != a {
		t.Errorf("Interpolate(0) = %v, want %v", got, a)
	}
	if got := Interpolate(a, b, 1); got != b {
		t.Errorf("Interpolate(1) = %v, want %v", got, b)
	}
}

func angleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeBearing(a) - NormalizeBearing(b))
	return math.Min(d, 360-d)
}
