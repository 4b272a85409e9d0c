package flyover

import "fmt"

// AssemblyError reports a failure writing the flyover artifact. Files written
// before the failure are left in place.
type AssemblyError struct {
	Path string
	Err  error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembling flyover at %s: %v", e.Path, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}
