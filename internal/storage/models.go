package storage

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"
)

type runData struct {
	ID                 string
	MissionID          string
	TargetName         string
	Pattern            string
	RequestedPattern   string
	State              string
	WaypointCount      int
	FrameCount         int
	DegradedFrames     int
	FailedFrames       int
	EstimatedDurationS float64
	OutputDir          string
	Request            sql.NullString
	Error              sql.NullString
	StartedAt          sqliteTime
	FinishedAt         sqliteTime
}

type frameData struct {
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
	Error            sql.NullString
}

// timeLayout sorts lexically in chronological order, which the Runs filters
// rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// sqliteTime stores timestamps as fixed-width UTC text. The driver may hand
// back either a string or, for columns it recognizes as dates, a time.Time.
type sqliteTime struct {
	Time  time.Time
	Valid bool
}

func newSqliteTime(t *time.Time) sqliteTime {
	if t == nil || t.IsZero() {
		return sqliteTime{}
	}
	return sqliteTime{Time: *t, Valid: true}
}

func (st sqliteTime) Value() (driver.Value, error) {
	if !st.Valid {
		return nil, nil
	}
	return st.Time.UTC().Format(timeLayout), nil
}

func (st *sqliteTime) Scan(src any) (err error) {
	switch v := src.(type) {
	case nil:
		st.Time, st.Valid = time.Time{}, false
		return nil
	case time.Time:
		st.Time, st.Valid = v.UTC(), true
		return nil
	case string:
		st.Time, err = parseTime(v)
	case []byte:
		st.Time, err = parseTime(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
	st.Valid = err == nil
	return err
}

func (st sqliteTime) ptr() *time.Time {
	if !st.Valid {
		return nil
	}
	t := st.Time
	return &t
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
