package geo

// InputError is returned for malformed or out-of-range input. It is never
// retried: the caller must correct the input.
type InputError struct {
	Field string
	msg   string
}

func NewInputError(field, msg string) *InputError {
	return &InputError{Field: field, msg: msg}
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.msg
	}
	return "invalid " + e.Field + ": " + e.msg
}
