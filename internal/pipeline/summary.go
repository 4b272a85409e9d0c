package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/roman-kulish/drone-flyover/internal/geo"
)

// Summary is the record of one run, written to summary.json next to the
// mission exports.
type Summary struct {
	RunID              string            `json:"run_id"`
	MissionID          string            `json:"mission_id"`
	TargetName         string            `json:"target_name"`
	Center             geo.Point         `json:"center"`
	CenterFallback     bool              `json:"center_fallback"`
	Pattern            string            `json:"pattern"`
	RequestedPattern   string            `json:"requested_pattern"`
	WaypointCount      int               `json:"waypoint_count"`
	FrameCount         int               `json:"frame_count"`
	DegradedFrames     []int             `json:"degraded_frames"`
	FailedFrames       []int             `json:"failed_frames"`
	EstimatedDurationS float64           `json:"estimated_duration_s"`
	ArtifactPaths      map[string]string `json:"artifact_paths"`
	State              State             `json:"state"`
	StartedAt          time.Time         `json:"started_at"`
	FinishedAt         time.Time         `json:"finished_at"`
}

func writeSummary(path string, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	if err = os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// ReadSummary loads a summary.json written by a previous run.
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Summary
	if err = json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding summary %s: %w", path, err)
	}
	return &s, nil
}
