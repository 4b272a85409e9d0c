package mission

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestCameraPathOnePerWaypoint(t *testing.T) {
	m, err := newTestPlanner().Plan(orbitParams(8))
	if err != nil {
		t.Fatal(err)
	}

	path := CameraPath(m, CameraOptions{})
	if len(path) != 8 {
		t.Fatalf("got %d positions, want 8", len(path))
	}
	wps := m.Waypoints()
	for i, pos := range path {
		if pos.Waypoint != i {
			t.Errorf("position %d belongs to waypoint %d", i, pos.Waypoint)
		}
		if pos.Point() != wps[i].Point() {
			t.Errorf("position %d is not on waypoint", i)
		}
		if pos.Telemetry.HeadingDeg != wps[i].HeadingDeg {
			t.Errorf("position %d heading = %g", i, pos.Telemetry.HeadingDeg)
		}
		if i > 0 && pos.Telemetry.TimestampOffsetS <= path[i-1].Telemetry.TimestampOffsetS {
			t.Errorf("timestamp offsets not increasing at %d", i)
		}
	}
}

func TestCameraPathInterpolated(t *testing.T) {
	m, err := newTestPlanner(WithDwell(0, 0)).Plan(orbitParams(4))
	if err != nil {
		t.Fatal(err)
	}

	path := CameraPath(m, CameraOptions{StepsPerLeg: 2, Overhead: true})
	// 4 waypoints, 4 legs (closed) with 2 stops each, plus the overhead view.
	if len(path) != 4+4*2+1 {
		t.Fatalf("got %d positions", len(path))
	}

	last := path[len(path)-1]
	if !last.Telemetry.Overhead || last.Waypoint != -1 {
		t.Fatalf("last position is not the overhead view: %+v", last)
	}
	if last.Point() != m.Center() {
		t.Errorf("overhead view not above center")
	}
	wantTotal := m.EstimatedDurationS()
	if math.Abs(last.Telemetry.TimestampOffsetS-wantTotal) > 1e-6 {
		t.Errorf("overhead offset = %g, want %g", last.Telemetry.TimestampOffsetS, wantTotal)
	}
}

func TestCameraPathLinearIsOpen(t *testing.T) {
	params := orbitParams(0)
	params.Pattern = PatternLinear
	m, err := newTestPlanner().Plan(params)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(CameraPath(m, CameraOptions{StepsPerLeg: 3})); got != 2+3 {
		t.Errorf("got %d positions, want 5", got)
	}
}

func TestNewID(t *testing.T) {
	date := time.Date(2026, 10, 17, 23, 59, 0, 0, time.UTC)
	cases := map[string]string{
		"Dún Aonghasa":          "RECON_DUN_AONGHASA_20261017",
		"  keem bay / achill ": "RECON_KEEM_BAY_ACHILL_20261017",
		"../../etc/passwd":      "RECON_ETC_PASSWD_20261017",
		"":                      "RECON_TARGET_20261017",
		"東京":                    "RECON_TARGET_20261017",
	}
	for in, want := range cases {
		if got := NewID(in, date); got != want {
			t.Errorf("NewID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseNumPoints(t *testing.T) {
	valid := map[string]int{"8": 8, " 3 ": 3, "12.0": 12}
	for in, want := range valid {
		got, err := ParseNumPoints(in)
		if err != nil || got != want {
			t.Errorf("ParseNumPoints(%q) = %d, %v", in, got, err)
		}
	}

	for _, in := range []string{"2.5", "-3", "0", "x", "", "NaN", "1e20"} {
		_, err := ParseNumPoints(in)
		var inputErr *InputError
		if !errors.As(err, &inputErr) {
			t.Errorf("ParseNumPoints(%q) error = %v, want InputError", in, err)
		}
	}
}

func TestParsePattern(t *testing.T) {
	if p, err := ParsePattern(" orbit "); err != nil || p != PatternOrbit {
		t.Errorf("ParsePattern(orbit) = %s, %v", p, err)
	}
	if _, err := ParsePattern("spiral"); err == nil {
		t.Error("expected error for unknown pattern")
	}
}
