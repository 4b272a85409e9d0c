package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/roman-kulish/drone-flyover/internal/mission"
)

var csvHeader = []string{
	"sequence_index",
	"latitude",
	"longitude",
	"altitude_m",
	"heading_deg",
	"speed_mps",
	"action",
}

// CSV renders one row per waypoint. Floats use the shortest representation
// that parses back to the same value, so ParseCSV(CSV(m)) reproduces the
// waypoints exactly.
func CSV(m *mission.Mission) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, wp := range m.Waypoints() {
		row := []string{
			strconv.Itoa(wp.SequenceIndex),
			formatFloat(wp.Latitude),
			formatFloat(wp.Longitude),
			formatFloat(wp.AltitudeM),
			formatFloat(wp.HeadingDeg),
			formatFloat(wp.SpeedMPS),
			string(wp.Action),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ParseCSV reads waypoints written by CSV. Rows must be in sequence order.
func ParseCSV(r io.Reader) ([]mission.Waypoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, mission.NewInputError("csv", "empty document")
		}
		return nil, mission.NewInputError("csv", fmt.Sprintf("reading header: %v", err))
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, mission.NewInputError("csv", fmt.Sprintf("column %d is %q, want %q", i+1, header[i], name))
		}
	}

	var wps []mission.Waypoint
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, mission.NewInputError("csv", err.Error())
		}

		wp, err := parseWaypointRecord(record)
		if err != nil {
			return nil, mission.NewInputError("csv", fmt.Sprintf("line %d: %v", line, err))
		}
		if wp.SequenceIndex != len(wps) {
			return nil, mission.NewInputError("csv", fmt.Sprintf("line %d: sequence index %d out of order", line, wp.SequenceIndex))
		}
		wps = append(wps, wp)
	}

	return wps, nil
}

func parseWaypointRecord(record []string) (wp mission.Waypoint, err error) {
	if wp.SequenceIndex, err = strconv.Atoi(record[0]); err != nil {
		return wp, fmt.Errorf("sequence_index: %w", err)
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{"latitude", &wp.Latitude},
		{"longitude", &wp.Longitude},
		{"altitude_m", &wp.AltitudeM},
		{"heading_deg", &wp.HeadingDeg},
		{"speed_mps", &wp.SpeedMPS},
	}
	for i, f := range floats {
		if *f.dst, err = strconv.ParseFloat(record[i+1], 64); err != nil {
			return wp, fmt.Errorf("%s: %w", f.name, err)
		}
	}

	if err = wp.Point().Validate(); err != nil {
		return wp, err
	}
	if !isFinite(wp.AltitudeM) || wp.AltitudeM < 0 {
		return wp, fmt.Errorf("altitude_m must be a non-negative number: %g given", wp.AltitudeM)
	}
	if !isFinite(wp.HeadingDeg) || wp.HeadingDeg < 0 || wp.HeadingDeg >= 360 {
		return wp, fmt.Errorf("heading_deg must be within [0, 360): %g given", wp.HeadingDeg)
	}
	if !isFinite(wp.SpeedMPS) || wp.SpeedMPS < 0 {
		return wp, fmt.Errorf("speed_mps must be a non-negative number: %g given", wp.SpeedMPS)
	}
	if wp.Action, err = mission.ParseAction(record[6]); err != nil {
		return wp, err
	}
	return wp, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
