package domain

import (
	"errors"
	"fmt"
)

// ErrSealed is returned by RequestState setters after dispatch.
var ErrSealed = errors.New("request state is sealed after dispatch")

// MalformedDocumentError aborts compilation. Position is the offending
// block's position in the document.
type MalformedDocumentError struct {
	Position int
	Reason   string
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed document at block %d: %s", e.Position, e.Reason)
}

// IsMalformedDocument returns true if the error is a compilation failure.
func IsMalformedDocument(err error) bool {
	var t *MalformedDocumentError
	return errors.As(err, &t)
}

// ConfigurationError reports an invalid registration or setup value, such
// as registering a hook for a stage that does not exist.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// UnresolvedVariableWarning records a template reference that had no value.
// It is non-fatal: substitution proceeds with the literal left in place.
type UnresolvedVariableWarning struct {
	Name  string `json:"name"`
	Stage string `json:"stage,omitempty"`
}

func (w UnresolvedVariableWarning) String() string {
	return fmt.Sprintf("unresolved variable {{%s}}", w.Name)
}

// ResolutionError is fatal when raised inside the secure-substitution
// stage: an unresolved secret must not proceed to dispatch.
type ResolutionError struct {
	Name   string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve {{%s}}: %s", e.Name, e.Reason)
}

// IsResolution returns true if the error is a secure-resolution failure.
func IsResolution(err error) bool {
	var t *ResolutionError
	return errors.As(err, &t)
}

// HookError records a failed or panicking hook. It is isolated per
// handler: the stage and the execution continue past it.
type HookError struct {
	Extension string
	Hook      string
	Stage     string
	Err       error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s/%s failed at stage %s: %v", e.Extension, e.Hook, e.Stage, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// TransportError is fatal to the execution and produces a synthetic
// ResponseState carrying the error instead of a status code.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport returns true if the error is a transport failure.
func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}

// CancelledError is a first-class terminal state, not a failure. Phase
// names where in the pipeline the cancellation was observed.
type CancelledError struct {
	Phase string
}

func (e *CancelledError) Error() string {
	if e.Phase == "" {
		return "execution cancelled"
	}
	return "execution cancelled during " + e.Phase
}

// IsCancelled returns true if the execution ended by cancellation.
func IsCancelled(err error) bool {
	var t *CancelledError
	return errors.As(err, &t)
}
