package storage

import (
	"fmt"
	"strings"
	"time"
)

// RunsOption narrows the runs returned by Runs.
type RunsOption func(*runsQuery)

// WithTarget keeps runs whose target name matches, ignoring case.
func WithTarget(name string) RunsOption {
	return func(q *runsQuery) {
		q.target = &name
	}
}

// WithMission keeps runs of the given mission ID.
func WithMission(missionID string) RunsOption {
	return func(q *runsQuery) {
		q.missionID = &missionID
	}
}

// WithSince keeps runs started at or after t.
func WithSince(t time.Time) RunsOption {
	return func(q *runsQuery) {
		q.since = &t
	}
}

// WithLimit caps the number of runs returned.
func WithLimit(n int) RunsOption {
	return func(q *runsQuery) {
		q.limit = n
	}
}

type runsQuery struct {
	target    *string
	missionID *string
	since     *time.Time
	limit     int
}

func newRunsQuery(opts ...RunsOption) (*runsQuery, error) {
	q := &runsQuery{}
	for _, opt := range opts {
		opt(q)
	}
	if q.limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative: %d", q.limit)
	}
	if q.target != nil && strings.TrimSpace(*q.target) == "" {
		return nil, fmt.Errorf("target filter cannot be empty")
	}
	return q, nil
}

// build renders the SELECT statement and its arguments.
func (q *runsQuery) build() (string, []any) {
	var where []string
	var args []any

	if q.target != nil {
		where = append(where, "target_name = ? COLLATE NOCASE")
		args = append(args, strings.TrimSpace(*q.target))
	}
	if q.missionID != nil {
		where = append(where, "mission_id = ?")
		args = append(args, *q.missionID)
	}
	if q.since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, newSqliteTime(q.since))
	}

	var sb strings.Builder
	sb.WriteString(selectRunColumnsSQL)
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, "\n  AND "))
	}
	sb.WriteString("\nORDER BY started_at DESC, id")
	if q.limit > 0 {
		sb.WriteString("\nLIMIT ?")
		args = append(args, q.limit)
	}
	return sb.String(), args
}
