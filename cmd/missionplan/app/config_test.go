package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/roman-kulish/drone-flyover/internal/export"
	"github.com/roman-kulish/drone-flyover/internal/mission"
	"github.com/roman-kulish/drone-flyover/internal/pipeline"
)

func TestNewConfigFromCLI(t *testing.T) {
	c, err := NewConfigFromCLI([]string{
		"-target", "Keem Bay", "-lat", "53.9667", "-lon", "-10.1944",
		"-pattern", "grid", "-n", "4.0", "-formats", "csv, kml",
	})
	if err != nil {
		t.Fatalf("NewConfigFromCLI() error = %v", err)
	}
	if c.Center == nil || c.Center.Latitude != 53.9667 || c.Center.Longitude != -10.1944 {
		t.Errorf("center = %v", c.Center)
	}
	if c.Pattern != mission.PatternGrid || c.NumPoints != 4 {
		t.Errorf("pattern = %s, n = %d", c.Pattern, c.NumPoints)
	}
	if !slices.Equal(c.Formats, []pipeline.Format{pipeline.FormatCSV, pipeline.FormatKML}) {
		t.Errorf("formats = %v", c.Formats)
	}
	if c.RadiusM != 500 || c.SpeedMPS != 10 {
		t.Errorf("defaults lost: %+v", c)
	}
}

func TestNewConfigFromCLIWithoutCenter(t *testing.T) {
	c, err := NewConfigFromCLI([]string{"-target", "Achill Head"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Center != nil {
		t.Errorf("center = %v, want nil", c.Center)
	}
}

func TestNewConfigFromCLIInvalid(t *testing.T) {
	cases := map[string][]string{
		"missing target": {"-lat", "1", "-lon", "1"},
		"lat only":       {"-target", "x", "-lat", "1"},
		"bad pattern":    {"-target", "x", "-pattern", "spiral"},
		"fractional n":   {"-target", "x", "-n", "2.5"},
		"negative n":     {"-target", "x", "-n", "-3"},
		"bad format":     {"-target", "x", "-formats", "pdf"},
		"no formats":     {"-target", "x", "-formats", ","},
	}
	for name, args := range cases {
		if _, err := NewConfigFromCLI(args); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	_, err := NewConfigFromCLI([]string{"-target", "x", "-n", "x"})
	var inputErr *mission.InputError
	if !errors.As(err, &inputErr) {
		t.Errorf("non-numeric n: error = %v, want InputError", err)
	}
}

func TestRunWritesExports(t *testing.T) {
	out := t.TempDir()
	c, err := NewConfigFromCLI([]string{"-target", "Achill Head", "-lat", "53.9889", "-lon", "-10.0661", "-o", out, "-formats", "csv,geojson"})
	if err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err = Run(context.Background(), c, logger); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	dirs, err := filepath.Glob(filepath.Join(out, "RECON_ACHILL_HEAD_*"))
	if err != nil || len(dirs) != 1 {
		t.Fatalf("mission directories = %v, %v", dirs, err)
	}
	data, err := os.ReadFile(filepath.Join(dirs[0], "mission.csv"))
	if err != nil {
		t.Fatal(err)
	}
	wps, err := export.ParseCSV(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(wps) != 8 {
		t.Errorf("exported %d waypoints, want 8", len(wps))
	}
	if _, err = os.Stat(filepath.Join(dirs[0], "mission.kml")); !os.IsNotExist(err) {
		t.Errorf("unrequested kml export written: %v", err)
	}
}

func TestRunRejectsBadRadius(t *testing.T) {
	out := t.TempDir()
	c, err := NewConfigFromCLI([]string{"-target", "x", "-lat", "1", "-lon", "1", "-radius", "-5", "-o", out})
	if err != nil {
		t.Fatal(err)
	}

	err = Run(context.Background(), c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var inputErr *mission.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("error = %v, want InputError", err)
	}
	if entries, _ := os.ReadDir(out); len(entries) != 0 {
		t.Errorf("rejected mission wrote %d entries", len(entries))
	}
}
