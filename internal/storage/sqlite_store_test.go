package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "runs.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRun(id, target string, started time.Time) *Run {
	return &Run{
		ID:               id,
		MissionID:        "RECON_" + target + "_20261017",
		TargetName:       target,
		Pattern:          "ORBIT",
		RequestedPattern: "ORBIT",
		State:            "PLANNED",
		OutputDir:        "/tmp/out",
		StartedAt:        started,
	}
}

func TestRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	started := time.Date(2026, 10, 17, 9, 30, 0, 123456789, time.UTC)

	run := testRun("run-1", "ACHILL", started)
	if err := s.CreateRun(ctx, run, map[string]any{"numPoints": 8}); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	finished := started.Add(90 * time.Second)
	run.State = "ASSEMBLED"
	run.WaypointCount = 8
	run.FrameCount = 9
	run.DegradedFrames = 1
	run.EstimatedDurationS = 354.2
	run.FinishedAt = &finished
	if err := s.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	reason := "timeout"
	frames := []Frame{
		{Index: 1, Status: "OK", File: "frame_0001.png", Latitude: 53.99, Longitude: -10.07, AltitudeM: 80, HeadingDeg: 90, SpeedMPS: 10, Zoom: 18},
		{Index: 2, Status: "DEGRADED", File: "frame_0002.png", Latitude: 53.98, Longitude: -10.06, AltitudeM: 80, HeadingDeg: 135, SpeedMPS: 10, TimestampOffsetS: 40.5, Error: &reason},
		{Index: 3, Status: "OK", File: "frame_0003.png", Overhead: true},
	}
	if err := s.StoreFrames(ctx, run.ID, frames); err != nil {
		t.Fatalf("StoreFrames() error = %v", err)
	}

	got, err := s.Run(ctx, "run-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.State != "ASSEMBLED" || got.FrameCount != 9 || got.DegradedFrames != 1 || got.WaypointCount != 8 {
		t.Errorf("run = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started = %s, want %s", got.StartedAt, started)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("finished = %v", got.FinishedAt)
	}
	if got.Request == nil || *got.Request != `{"numPoints":8}` {
		t.Errorf("request = %v", got.Request)
	}
	if got.Error != nil {
		t.Errorf("error = %q", *got.Error)
	}

	stored, err := s.Frames(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 3 {
		t.Fatalf("got %d frames", len(stored))
	}
	for i, f := range stored {
		if f.Index != i+1 || f.Status != frames[i].Status || f.HeadingDeg != frames[i].HeadingDeg {
			t.Errorf("frame %d = %+v", i, f)
		}
	}
	if stored[1].Error == nil || *stored[1].Error != "timeout" {
		t.Errorf("frame 2 error = %v", stored[1].Error)
	}
	if !stored[2].Overhead || stored[0].Overhead {
		t.Error("overhead flag not preserved")
	}
}

func TestRunNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.CreateRun(ctx, testRun("exists", "X", time.Now()), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Run(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.FinishRun(ctx, testRun("missing", "X", time.Now())); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.CreateRun(ctx, testRun("exists", "X", time.Now()), nil); err == nil {
		t.Error("duplicate run ID accepted")
	}
}

func TestRunsFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	runs := []*Run{
		testRun("a", "ACHILL", base),
		testRun("b", "KEEM", base.Add(24*time.Hour)),
		testRun("c", "ACHILL", base.Add(48*time.Hour)),
		testRun("d", "Achill", base.Add(72*time.Hour)),
	}
	for _, r := range runs {
		if err := s.CreateRun(ctx, r, "{}"); err != nil {
			t.Fatal(err)
		}
	}

	ids := func(rs []*Run) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.ID
		}
		return out
	}

	cases := []struct {
		name string
		opts []RunsOption
		want []string
	}{
		{"all, newest first", nil, []string{"d", "c", "b", "a"}},
		{"target ignores case", []RunsOption{WithTarget("achill")}, []string{"d", "c", "a"}},
		{"mission", []RunsOption{WithMission("RECON_KEEM_20261017")}, []string{"b"}},
		{"since", []RunsOption{WithSince(base.Add(48 * time.Hour))}, []string{"d", "c"}},
		{"limit", []RunsOption{WithLimit(2)}, []string{"d", "c"}},
		{"combined", []RunsOption{WithTarget("ACHILL"), WithSince(base.Add(time.Hour)), WithLimit(1)}, []string{"d"}},
		{"no match", []RunsOption{WithTarget("NOWHERE")}, []string{}},
	}
	for _, c := range cases {
		got, err := s.Runs(ctx, c.opts...)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		gotIDs := ids(got)
		if len(gotIDs) != len(c.want) {
			t.Errorf("%s: got %v, want %v", c.name, gotIDs, c.want)
			continue
		}
		for i := range gotIDs {
			if gotIDs[i] != c.want[i] {
				t.Errorf("%s: got %v, want %v", c.name, gotIDs, c.want)
				break
			}
		}
	}

	if _, err := s.Runs(ctx, WithLimit(-1)); err == nil {
		t.Error("negative limit accepted")
	}
}

func TestStoreFramesReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.CreateRun(ctx, testRun("r", "X", time.Now()), nil); err != nil {
		t.Fatal(err)
	}

	if err := s.StoreFrames(ctx, "r", []Frame{{Index: 1, Status: "DEGRADED", File: "frame_0001.png"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreFrames(ctx, "r", []Frame{{Index: 1, Status: "OK", File: "frame_0001.png"}}); err != nil {
		t.Fatal(err)
	}
	frames, err := s.Frames(ctx, "r")
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 || frames[0].Status != "OK" {
		t.Errorf("frames = %+v", frames)
	}

	if err = s.StoreFrames(ctx, "no-such-run", []Frame{{Index: 1, Status: "OK"}}); err == nil {
		t.Error("frames stored for unknown run")
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err := s.CreateRun(context.Background(), testRun("r", "X", time.Now()), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
