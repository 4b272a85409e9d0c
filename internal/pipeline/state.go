package pipeline

import "slices"

// State is a stage of the mission lifecycle. A run moves through the states
// in order and never skips one.
type State string

const (
	StatePlanned       State = "PLANNED"
	StateExported      State = "EXPORTED"
	StateFramesFetched State = "FRAMES_FETCHED"
	StateComposited    State = "COMPOSITED"
	StateAssembled     State = "ASSEMBLED"
)

// States lists every state in lifecycle order.
var States = []State{
	StatePlanned,
	StateExported,
	StateFramesFetched,
	StateComposited,
	StateAssembled,
}

// Next returns the state that follows s, or false when s is final or unknown.
func (s State) Next() (State, bool) {
	i := slices.Index(States, s)
	if i < 0 || i == len(States)-1 {
		return "", false
	}
	return States[i+1], true
}

// Before reports whether s comes before other in the lifecycle.
func (s State) Before(other State) bool {
	i, j := slices.Index(States, s), slices.Index(States, other)
	return i >= 0 && j >= 0 && i < j
}
