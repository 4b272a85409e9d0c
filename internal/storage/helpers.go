package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && cErr != sql.ErrTxDone && *err == nil {
		*err = cErr
	}
}

// toNullJSON stores strings and byte slices verbatim and anything else as JSON.
func toNullJSON(v any) (sql.NullString, error) {
	switch v := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: v, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(v), Valid: true}, nil
	default:
		p, err := json.Marshal(v)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling request: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func toRun(d *runData) *Run {
	return &Run{
		ID:                 d.ID,
		MissionID:          d.MissionID,
		TargetName:         d.TargetName,
		Pattern:            d.Pattern,
		RequestedPattern:   d.RequestedPattern,
		State:              d.State,
		WaypointCount:      d.WaypointCount,
		FrameCount:         d.FrameCount,
		DegradedFrames:     d.DegradedFrames,
		FailedFrames:       d.FailedFrames,
		EstimatedDurationS: d.EstimatedDurationS,
		OutputDir:          d.OutputDir,
		Request:            fromNullString(d.Request),
		Error:              fromNullString(d.Error),
		StartedAt:          d.StartedAt.Time,
		FinishedAt:         d.FinishedAt.ptr(),
	}
}

func toFrame(d *frameData) *Frame {
	return &Frame{
		RunID:            d.RunID,
		Index:            d.Index,
		Status:           d.Status,
		File:             d.File,
		Latitude:         d.Latitude,
		Longitude:        d.Longitude,
		AltitudeM:        d.AltitudeM,
		HeadingDeg:       d.HeadingDeg,
		SpeedMPS:         d.SpeedMPS,
		TimestampOffsetS: d.TimestampOffsetS,
		Zoom:             d.Zoom,
		Overhead:         d.Overhead,
		Error:            fromNullString(d.Error),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(rs rowScanner) (*Run, error) {
	var d runData
	err := rs.Scan(
		&d.ID,
		&d.MissionID,
		&d.TargetName,
		&d.Pattern,
		&d.RequestedPattern,
		&d.State,
		&d.WaypointCount,
		&d.FrameCount,
		&d.DegradedFrames,
		&d.FailedFrames,
		&d.EstimatedDurationS,
		&d.OutputDir,
		&d.Request,
		&d.Error,
		&d.StartedAt,
		&d.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return toRun(&d), nil
}

func scanFrame(rs rowScanner) (*Frame, error) {
	var d frameData
	err := rs.Scan(
		&d.RunID,
		&d.Index,
		&d.Status,
		&d.File,
		&d.Latitude,
		&d.Longitude,
		&d.AltitudeM,
		&d.HeadingDeg,
		&d.SpeedMPS,
		&d.TimestampOffsetS,
		&d.Zoom,
		&d.Overhead,
		&d.Error,
	)
	if err != nil {
		return nil, err
	}
	return toFrame(&d), nil
}
