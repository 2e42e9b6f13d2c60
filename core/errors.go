package core

import "github.com/pkg/errors"

// FieldError ties a message to the request field that caused it, named by
// the field's JSON tag.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a request refused by domain rules rather than by struct
// tags. Err carries the overall message; Fields, when present, carries the
// per-field messages for the API error payload.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// FieldMap flattens Fields into the field -> message form of error responses.
func (err ValidationError) FieldMap() map[string]string {
	flds := make(map[string]string, len(err.Fields))
	for _, fErr := range err.Fields {
		flds[fErr.Field] = fErr.Error
	}
	return flds
}

// shutdown marks an integrity failure the server should not try to outlive.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

// IsShutdown reports whether err (at its cause) requests a graceful shutdown.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
