package interceptor

import (
	"errors"
	"fmt"
)

// ErrDuplicateID is returned when registering an interceptor whose ID is
// already taken.
var ErrDuplicateID = errors.New("duplicate interceptor id")

// ErrNilHandler is returned when registering an interceptor without a
// callable.
var ErrNilHandler = errors.New("registration has no handler")

// UnknownIDError reports a chain or invoke request referencing an
// interceptor that is not registered. The whole call aborts; the caller
// must fix the request rather than retry it.
type UnknownIDError struct {
	ID string
}

// Error implements error.
func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("unknown interceptor id %q", e.ID)
}

// BindingError reports that the parameter binder could not satisfy an
// argument. Missing distinguishes a required argument absent from every
// source from an argument that was present but could not be converted.
type BindingError struct {
	// Param is the declared name of the argument that failed to bind.
	Param string
	// Missing is true when a required argument had no value and no default.
	Missing bool
	// Err is the underlying cause, nil for plain missing arguments.
	Err error
}

// Error implements error.
func (e *BindingError) Error() string {
	if e.Missing {
		return fmt.Sprintf("missing required parameter %q", e.Param)
	}
	if e.Err != nil {
		return fmt.Sprintf("cannot bind parameter %q: %v", e.Param, e.Err)
	}
	return fmt.Sprintf("cannot bind parameter %q", e.Param)
}

// Unwrap returns the underlying cause.
func (e *BindingError) Unwrap() error {
	return e.Err
}

// HandlerError reports that an interceptor's logic failed during
// execution. It always names the offending interceptor so operators can
// pinpoint which registration misbehaved.
type HandlerError struct {
	// ID is the failing interceptor's id.
	ID string
	// Err is the error the handler returned.
	Err error
}

// Error implements error.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("interceptor %q failed: %v", e.ID, e.Err)
}

// Unwrap returns the handler's error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// SerializationError reports a payload value that cannot be matched to the
// shape an argument declares.
type SerializationError struct {
	// Field is the payload field that failed to deserialize.
	Field string
	// Err is the underlying decode error.
	Err error
}

// Error implements error.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("payload field %q does not match expected shape: %v", e.Field, e.Err)
}

// Unwrap returns the underlying decode error.
func (e *SerializationError) Unwrap() error {
	return e.Err
}
