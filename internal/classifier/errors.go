package classifier

import (
	"errors"
	"fmt"
)

// LoadErrorKind classifies why a model could not be loaded on a backend.
type LoadErrorKind int

const (
	NotFound LoadErrorKind = iota
	Corrupt
	IncompatibleShape
	BackendUnavailable
)

func (k LoadErrorKind) String() string {
	switch k {
	case NotFound:
		return "model not found"
	case Corrupt:
		return "model corrupt"
	case IncompatibleShape:
		return "incompatible model shape"
	case BackendUnavailable:
		return "backend unavailable"
	default:
		return fmt.Sprintf("LoadErrorKind(%d)", int(k))
	}
}

// Sentinels matching each LoadErrorKind, usable with errors.Is.
var (
	ErrNotFound           = errors.New("model not found")
	ErrCorrupt            = errors.New("model corrupt")
	ErrIncompatibleShape  = errors.New("incompatible model shape")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

func (k LoadErrorKind) sentinel() error {
	switch k {
	case NotFound:
		return ErrNotFound
	case Corrupt:
		return ErrCorrupt
	case IncompatibleShape:
		return ErrIncompatibleShape
	default:
		return ErrBackendUnavailable
	}
}

// LoadError is returned when the model cannot be made ready for inference.
type LoadError struct {
	Kind    LoadErrorKind
	Backend Backend // empty when the failure is not backend specific
	Err     error
}

func (e *LoadError) Error() string {
	msg := e.Kind.String()
	if e.Backend != "" {
		msg += " (" + string(e.Backend) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// InferenceError is a transient failure of a single Run.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return "inference failed: " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// ErrShape is wrapped by engines when the input or output tensor does not have
// the shape the model expects.
var ErrShape = errors.New("tensor shape mismatch")

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("classifier closed")
