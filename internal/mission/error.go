package mission

import "github.com/roman-kulish/drone-flyover/internal/geo"

// InputError is the planning error for malformed or out-of-range requests.
// It shares its type with geo.InputError so one errors.As check covers both.
type InputError = geo.InputError

func NewInputError(field, msg string) *InputError {
	return geo.NewInputError(field, msg)
}
