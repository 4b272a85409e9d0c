package storage

import (
	"time"
)

// Run is the persisted summary of one pipeline invocation.
type Run struct {
	ID                 string
	MissionID          string
	TargetName         string
	Pattern            string
	RequestedPattern   string
	State              string // Last pipeline state reached
	WaypointCount      int
	FrameCount         int
	DegradedFrames     int
	FailedFrames       int
	EstimatedDurationS float64
	OutputDir          string
	Request            *string // JSON encoded request, if one was stored
	Error              *string // Why the run stopped early
	StartedAt          time.Time
	FinishedAt         *time.Time
}

// Frame is the persisted status of one flyover frame.
type Frame struct {
	RunID            string
	Index            int
	Status           string
	File             string
	Latitude         float64
	Longitude        float64
	AltitudeM        float64
	HeadingDeg       float64
	SpeedMPS         float64
	TimestampOffsetS float64
	Zoom             int
	Overhead         bool
	Error            *string
}
