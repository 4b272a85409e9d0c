package imagery

import (
	"errors"
	"fmt"
)

var (
	ErrCacheMiss   = errors.New("imagery: cache miss")
	ErrNoProviders = errors.New("imagery: no providers configured")
)

// FetchError reports that imagery for a single request could not be obtained.
// It is recovered per frame by substituting a placeholder.
type FetchError struct {
	Provider   string
	Request    Request
	StatusCode int // HTTP status, zero when the request never completed
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s from %s: HTTP %d: %v", e.Request, e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetching %s from %s: %v", e.Request, e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
