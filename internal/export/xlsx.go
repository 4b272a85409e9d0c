package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/roman-kulish/drone-flyover/internal/mission"
)

const (
	waypointsSheet = "Waypoints"
	missionSheet   = "Mission"
)

// XLSX renders a workbook with a Waypoints sheet (same columns as CSV) and a
// Mission sheet summarizing the plan.
func XLSX(m *mission.Mission) (b []byte, err error) {
	f := excelize.NewFile()
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing workbook: %w", cErr)
		}
	}()

	if err = f.SetSheetName("Sheet1", waypointsSheet); err != nil {
		return nil, fmt.Errorf("renaming sheet: %w", err)
	}

	header := make([]any, len(csvHeader))
	for i, h := range csvHeader {
		header[i] = h
	}
	if err = f.SetSheetRow(waypointsSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	for i, wp := range m.Waypoints() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("addressing row %d: %w", i+2, err)
		}
		row := []any{wp.SequenceIndex, wp.Latitude, wp.Longitude, wp.AltitudeM, wp.HeadingDeg, wp.SpeedMPS, string(wp.Action)}
		if err = f.SetSheetRow(waypointsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("writing waypoint %d: %w", wp.SequenceIndex, err)
		}
	}

	if _, err = f.NewSheet(missionSheet); err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	summary := [][]any{
		{"mission_id", m.ID()},
		{"target_name", m.TargetName()},
		{"pattern", string(m.Pattern())},
		{"requested_pattern", string(m.RequestedPattern())},
		{"center_latitude", m.Center().Latitude},
		{"center_longitude", m.Center().Longitude},
		{"radius_m", m.RadiusM()},
		{"waypoint_count", m.Len()},
		{"path_length_m", m.PathLengthM()},
		{"estimated_duration_s", m.EstimatedDurationS()},
	}
	for i, row := range summary {
		if err = f.SetSheetRow(missionSheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return nil, fmt.Errorf("writing mission summary: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}
