package flyover

import (
	"fmt"
	"strings"

	"github.com/roman-kulish/drone-flyover/internal/telemetry"
)

// Status is the quality of a single frame.
type Status string

const (
	StatusOK       Status = "OK"
	StatusDegraded Status = "DEGRADED" // Imagery fetch failed, placeholder shown under the HUD
	StatusFailed   Status = "FAILED"   // Compositing failed, frame is not playable
)

var validStatuses = map[Status]struct{}{
	StatusOK:       {},
	StatusDegraded: {},
	StatusFailed:   {},
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := validStatuses[st]; !ok {
		return "", fmt.Errorf("unknown frame status %q", s)
	}
	return st, nil
}

// Playable reports whether the viewer may show the frame during playback.
func (s Status) Playable() bool {
	return s != StatusFailed
}

// Frame is one element of the flyover sequence.
type Frame struct {
	Index      int    // One-based position in the sequence
	Source     []byte // Raw imagery or placeholder
	Composited []byte // PNG with the HUD overlay
	Telemetry  telemetry.Telemetry
	Status     Status
	Err        error // Why the frame is FAILED, if it is
}

// MissionMeta describes the mission a flyover belongs to.
type MissionMeta struct {
	MissionID          string
	TargetName         string
	Pattern            string
	EstimatedDurationS float64
}

// Artifact lists what Assemble wrote.
type Artifact struct {
	Dir          string
	Frames       int
	FramePaths   []string
	ViewerPath   string
	MetadataPath string
	ManifestPath string
	Degraded     []int
	Failed       []int
}

// Manifest is the content of manifest.json.
type Manifest struct {
	MissionID  string `json:"mission_id"`
	FrameCount int    `json:"frame_count"`
	Degraded   []int  `json:"degraded"`
	Failed     []int  `json:"failed"`
}

// frameMetadata is one entry of metadata.json.
type frameMetadata struct {
	File   string `json:"file"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
	telemetry.Telemetry
}
