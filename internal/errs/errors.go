// Package errs provides the error vocabulary shared across the ECS core.
//
// All failures raised by the repository, storage, query, event and
// recorder packages are represented as *ECSError so callers can switch on
// a stable Code rather than parsing messages.
package errs

import (
	"fmt"
)

// Code identifies a class of failure. See spec §7 for the full catalogue.
type Code string

const (
	BadHandle                   Code = "BAD_HANDLE"
	IndexOutOfRange             Code = "INDEX_OUT_OF_RANGE"
	InvalidLifecycleTransition  Code = "INVALID_LIFECYCLE_TRANSITION"
	PermissionViolation         Code = "PERMISSION_VIOLATION"
	TypeNotRegistered           Code = "TYPE_NOT_REGISTERED"
	RegistryFull                Code = "REGISTRY_FULL"
	SchemaMismatch              Code = "SCHEMA_MISMATCH"
	DecommitRefused             Code = "DECOMMIT_REFUSED"
	EntityCapacityExceeded      Code = "ENTITY_CAPACITY_EXCEEDED"
	AlreadyDisposed             Code = "ALREADY_DISPOSED"
	HydrateConflict             Code = "HYDRATE_CONFLICT"
	SingletonNotSet             Code = "SINGLETON_NOT_SET"
	SingletonAlreadySet         Code = "SINGLETON_ALREADY_SET"
	RecordingCorrupt            Code = "RECORDING_CORRUPT"
)

// ECSError carries the failure code plus whatever identifying context the
// caller supplied. Entity/Type are optional; zero values are omitted
// from Error().
type ECSError struct {
	Code    Code
	Message string
	Entity  uint64 // packed entity handle, 0 if not applicable
	Type    string // component/event type name, "" if not applicable
}

func (e *ECSError) Error() string {
	switch {
	case e.Entity != 0 && e.Type != "":
		return fmt.Sprintf("[%s] %s (entity=%d type=%s)", e.Code, e.Message, e.Entity, e.Type)
	case e.Entity != 0:
		return fmt.Sprintf("[%s] %s (entity=%d)", e.Code, e.Message, e.Entity)
	case e.Type != "":
		return fmt.Sprintf("[%s] %s (type=%s)", e.Code, e.Message, e.Type)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

// New builds a bare ECSError with no identifying context.
func New(code Code, message string) *ECSError {
	return &ECSError{Code: code, Message: message}
}

// WithEntity returns a copy of e annotated with a packed entity handle.
func (e *ECSError) WithEntity(handle uint64) *ECSError {
	c := *e
	c.Entity = handle
	return &c
}

// WithType returns a copy of e annotated with a type name.
func (e *ECSError) WithType(t string) *ECSError {
	c := *e
	c.Type = t
	return &c
}

// Is implements errors.Is support by comparing codes.
func (e *ECSError) Is(target error) bool {
	other, ok := target.(*ECSError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// BuildMode names the diagnostic and release error-propagation modes
// (spec §7). config.RuntimeConfig.BuildMode reports which one a
// configuration selects; no package of the core reads the value, so
// every check runs and every error surfaces the same way in both modes.
type BuildMode int

const (
	// Diagnostic is selected by RuntimeConfig.Diagnostic = true.
	Diagnostic BuildMode = iota
	// Release is selected by RuntimeConfig.Diagnostic = false.
	Release
)
