// Package flyover assembles composited frames into a self-contained,
// navigable flyover directory.
package flyover

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/iancoleman/orderedmap"

	"github.com/roman-kulish/drone-flyover/internal/geo"
)

const (
	ViewerFile   = "index.html"
	MetadataFile = "metadata.json"
	ManifestFile = "manifest.json"

	framePrefix = "frame_"
	frameSuffix = ".png"

	DefaultPlayInterval = 800 * time.Millisecond

	fileMode = 0o644
	dirMode  = 0o755
)

//go:embed viewer.html.tmpl
var viewerSource string

var viewerTemplate = template.Must(template.New("viewer").Funcs(template.FuncMap{
	"lower": strings.ToLower,
}).Parse(viewerSource))

// FrameFile returns the file name of the frame with the given one-based index.
func FrameFile(index int) string {
	return fmt.Sprintf("%s%04d%s", framePrefix, index, frameSuffix)
}

type Option func(*Assembler)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		a.logger = logger.With(slog.String("component", "assembler"))
	}
}

// WithPlayInterval sets the delay between frames during viewer autoplay.
func WithPlayInterval(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.playInterval = d
		}
	}
}

// Assembler writes flyover artifacts into a single directory. Re-assembling
// into the same directory overwrites the previous artifact.
type Assembler struct {
	dir          string
	playInterval time.Duration
	logger       *slog.Logger
}

func NewAssembler(dir string, opts ...Option) *Assembler {
	a := &Assembler{
		dir:          dir,
		playInterval: DefaultPlayInterval,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Assembler) Dir() string { return a.dir }

// Assemble writes frame files, the viewer, metadata.json and manifest.json.
// Frames must be ordered by index starting at 1. Stale frame files left by a
// previous, longer flyover are removed once everything else is written.
func (a *Assembler) Assemble(frames []Frame, meta MissionMeta) (*Artifact, error) {
	if err := validateFrames(frames); err != nil {
		return nil, &AssemblyError{Path: a.dir, Err: err}
	}
	if err := os.MkdirAll(a.dir, dirMode); err != nil {
		return nil, &AssemblyError{Path: a.dir, Err: err}
	}

	artifact := &Artifact{
		Dir:          a.dir,
		Frames:       len(frames),
		FramePaths:   make([]string, 0, len(frames)),
		ViewerPath:   filepath.Join(a.dir, ViewerFile),
		MetadataPath: filepath.Join(a.dir, MetadataFile),
		ManifestPath: filepath.Join(a.dir, ManifestFile),
		Degraded:     []int{},
		Failed:       []int{},
	}

	var written uint64
	for _, f := range frames {
		path := filepath.Join(a.dir, FrameFile(f.Index))
		if err := writeFile(path, f.Composited); err != nil {
			return nil, err
		}
		artifact.FramePaths = append(artifact.FramePaths, path)
		written += uint64(len(f.Composited))

		switch f.Status {
		case StatusDegraded:
			artifact.Degraded = append(artifact.Degraded, f.Index)
		case StatusFailed:
			artifact.Failed = append(artifact.Failed, f.Index)
		}
	}

	ops := []struct {
		path string
		fn   func() ([]byte, error)
	}{
		{artifact.MetadataPath, func() ([]byte, error) { return metadata(frames) }},
		{artifact.ManifestPath, func() ([]byte, error) { return manifest(meta, artifact) }},
		{artifact.ViewerPath, func() ([]byte, error) { return a.viewer(frames, meta) }},
	}
	for _, op := range ops {
		data, err := op.fn()
		if err != nil {
			return nil, &AssemblyError{Path: op.path, Err: err}
		}
		if err = writeFile(op.path, data); err != nil {
			return nil, err
		}
	}

	removed, err := a.removeStale(len(frames))
	if err != nil {
		return nil, err
	}

	a.logger.Info("flyover assembled",
		slog.String("missionID", meta.MissionID),
		slog.String("dir", a.dir),
		slog.Int("frames", len(frames)),
		slog.String("size", humanize.Bytes(written)),
		slog.Int("degraded", len(artifact.Degraded)),
		slog.Int("failed", len(artifact.Failed)),
		slog.Int("staleRemoved", removed))

	return artifact, nil
}

func validateFrames(frames []Frame) error {
	if len(frames) == 0 {
		return errors.New("no frames to assemble")
	}
	for i, f := range frames {
		if f.Index != i+1 {
			return fmt.Errorf("frame at position %d has index %d", i, f.Index)
		}
		if _, ok := validStatuses[f.Status]; !ok {
			return fmt.Errorf("frame %d has unknown status %q", f.Index, f.Status)
		}
		if len(f.Composited) == 0 {
			return fmt.Errorf("frame %d has no image", f.Index)
		}
	}
	return nil
}

// metadata builds metadata.json with keys in ascending frame order.
func metadata(frames []Frame) ([]byte, error) {
	index := orderedmap.New()
	index.SetEscapeHTML(false)
	for _, f := range frames {
		entry := frameMetadata{
			File:      FrameFile(f.Index),
			Status:    f.Status,
			Telemetry: f.Telemetry,
		}
		if f.Err != nil {
			entry.Error = f.Err.Error()
		}
		index.Set(strconv.Itoa(f.Index), entry)
	}
	return json.MarshalIndent(index, "", "  ")
}

func manifest(meta MissionMeta, artifact *Artifact) ([]byte, error) {
	return json.MarshalIndent(Manifest{
		MissionID:  meta.MissionID,
		FrameCount: artifact.Frames,
		Degraded:   artifact.Degraded,
		Failed:     artifact.Failed,
	}, "", "  ")
}

type viewerFrame struct {
	Index    int     `json:"index"`
	File     string  `json:"file"`
	Status   Status  `json:"status"`
	Playable bool    `json:"playable"`
	Heading  float64 `json:"heading"`
	Cardinal string  `json:"cardinal"`
	Altitude float64 `json:"altitude"`
	Speed    float64 `json:"speed"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Offset   float64 `json:"offset"`
	Overhead bool    `json:"overhead"`
}

type viewerData struct {
	Meta       MissionMeta
	Duration   string
	IntervalMS int64
	Frames     []viewerFrame
}

func (a *Assembler) viewer(frames []Frame, meta MissionMeta) ([]byte, error) {
	data := viewerData{
		Meta:       meta,
		Duration:   time.Duration(meta.EstimatedDurationS * float64(time.Second)).Round(time.Second).String(),
		IntervalMS: a.playInterval.Milliseconds(),
		Frames:     make([]viewerFrame, len(frames)),
	}
	for i, f := range frames {
		t := f.Telemetry
		data.Frames[i] = viewerFrame{
			Index:    f.Index,
			File:     FrameFile(f.Index),
			Status:   f.Status,
			Playable: f.Status.Playable(),
			Heading:  t.HeadingDeg,
			Cardinal: geo.Cardinal(t.HeadingDeg),
			Altitude: t.AltitudeM,
			Speed:    t.SpeedMPS,
			Lat:      t.Latitude,
			Lon:      t.Longitude,
			Offset:   t.TimestampOffsetS,
			Overhead: t.Overhead,
		}
	}

	var buf bytes.Buffer
	if err := viewerTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering viewer: %w", err)
	}
	return buf.Bytes(), nil
}

// removeStale deletes frame files with an index above count.
func (a *Assembler) removeStale(count int) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, &AssemblyError{Path: a.dir, Err: err}
	}

	var removed int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, framePrefix) || !strings.HasSuffix(name, frameSuffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, framePrefix), frameSuffix))
		if err != nil || n <= count {
			continue
		}
		path := filepath.Join(a.dir, name)
		if err = os.Remove(path); err != nil {
			return removed, &AssemblyError{Path: path, Err: err}
		}
		removed++
	}
	return removed, nil
}

// writeFile replaces path atomically so a reader never sees a partial file.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, fileMode); err != nil {
		return &AssemblyError{Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &AssemblyError{Path: path, Err: errors.Join(err, os.Remove(tmp))}
	}
	return nil
}
