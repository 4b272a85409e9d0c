package hud

import "fmt"

// CompositeError reports that a single frame could not be composited. It does
// not affect other frames.
type CompositeError struct {
	Index int
	Err   error
}

func (e *CompositeError) Error() string {
	return fmt.Sprintf("compositing frame %d: %v", e.Index, e.Err)
}

func (e *CompositeError) Unwrap() error {
	return e.Err
}
