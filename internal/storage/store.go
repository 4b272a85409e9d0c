package storage

import (
	"context"
	"errors"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Store provides an interface for persisting flyover run history.
// It records one row per pipeline invocation plus the status of every frame
// the invocation produced. All operations that write to the database should be
// considered atomic.
type Store interface {
	// CreateRun records the start of a pipeline invocation.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - run: Run to insert. ID, MissionID, TargetName, Pattern, State and
	//     StartedAt must be set; counters are filled in by FinishRun
	//   - request: Optional request that started the run. Can be string, []byte,
	//     or JSON-serializable object
	//
	// Returns:
	//   - error: If the run already exists, insertion fails or context is cancelled
	CreateRun(ctx context.Context, run *Run, request any) error

	// FinishRun updates the final state, counters, error and finish time of a
	// run created with CreateRun.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - run: Run carrying the final values, matched by ID
	//
	// Returns:
	//   - error: ErrNotFound if the run does not exist, or if the update fails
	FinishRun(ctx context.Context, run *Run) error

	// StoreFrames saves per-frame status for a run in a single transaction.
	// Storing a frame index twice replaces the earlier row.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - runID: ID of the run the frames belong to
	//   - frames: Frames to store
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	StoreFrames(ctx context.Context, runID string, frames []Frame) error

	// Run retrieves a run by its ID.
	//
	// Returns:
	//   - run: Pointer to the run
	//   - error: ErrNotFound if there is no such run, or if retrieval fails
	Run(ctx context.Context, id string) (*Run, error)

	// Runs returns runs matching the given filters, most recent first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - opts: Optional filters (WithTarget, WithMission, WithSince, WithLimit)
	//
	// Returns:
	//   - runs: Slice of pointers to matching runs, empty when nothing matches
	//   - error: If the filters are invalid or retrieval fails
	Runs(ctx context.Context, opts ...RunsOption) ([]*Run, error)

	// Frames returns the frames stored for a run in index order.
	Frames(ctx context.Context, runID string) ([]*Frame, error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	//
	// Returns:
	//   - error: If closing fails or some resources cannot be released
	Close() error
}
