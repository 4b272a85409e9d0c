package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	optimizeSQL = `PRAGMA optimize`

	insertRunSQL = `
INSERT INTO runs (id,
                  mission_id,
                  target_name,
                  pattern,
                  requested_pattern,
                  state,
                  output_dir,
                  request,
                  started_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	finishRunSQL = `
UPDATE runs
SET state                = ?,
    waypoint_count       = ?,
    frame_count          = ?,
    degraded_frames      = ?,
    failed_frames        = ?,
    estimated_duration_s = ?,
    error                = ?,
    finished_at          = ?
WHERE id = ?`

	selectRunColumnsSQL = `
SELECT id,
       mission_id,
       target_name,
       pattern,
       requested_pattern,
       state,
       waypoint_count,
       frame_count,
       degraded_frames,
       failed_frames,
       estimated_duration_s,
       output_dir,
       request,
       error,
       started_at,
       finished_at
FROM runs`

	selectRunSQL = selectRunColumnsSQL + `
WHERE id = ?`

	insertFrameSQL = `
INSERT OR REPLACE INTO frames (run_id,
                               frame_index,
                               status,
                               file,
                               latitude,
                               longitude,
                               altitude_m,
                               heading_deg,
                               speed_mps,
                               timestamp_offset_s,
                               zoom,
                               overhead,
                               error)
VALUES `

	selectFramesSQL = `
SELECT run_id,
       frame_index,
       status,
       file,
       latitude,
       longitude,
       altitude_m,
       heading_deg,
       speed_mps,
       timestamp_offset_s,
       zoom,
       overhead,
       error
FROM frames
WHERE run_id = ?
ORDER BY frame_index`
)
