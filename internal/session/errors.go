package session

import (
	"fmt"
	"strings"
)

// Kind classifies a terminal session failure.
type Kind string

const (
	KindPermissionDenied   Kind = "permission_denied"
	KindEngineStartFailed  Kind = "engine_start_failed"
	KindEngineStopFailed   Kind = "engine_stop_failed"
	KindEngineRuntimeError Kind = "engine_runtime_error"
)

var (
	ErrPermissionDenied   = &Error{Kind: KindPermissionDenied}
	ErrEngineStartFailed  = &Error{Kind: KindEngineStartFailed}
	ErrEngineStopFailed   = &Error{Kind: KindEngineStopFailed}
	ErrEngineRuntimeError = &Error{Kind: KindEngineRuntimeError}
)

// Error is returned for every failure that ends a session.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.describe())
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Code == "" && t.Kind == e.Kind
}

func (k Kind) describe() string {
	switch k {
	case KindPermissionDenied:
		return "microphone permission denied"
	case KindEngineStartFailed:
		return "recognition engine failed to start"
	case KindEngineStopFailed:
		return "recognition engine failed to stop"
	case KindEngineRuntimeError:
		return "recognition engine error"
	default:
		return string(k)
	}
}

// notice is the short user-facing text for an indicator.
func (k Kind) notice() string {
	switch k {
	case KindPermissionDenied:
		return "Microphone unavailable"
	case KindEngineStartFailed:
		return "Unable to start recording"
	case KindEngineStopFailed:
		return "Recording did not stop cleanly"
	case KindEngineRuntimeError:
		return "Speech recognition failed"
	default:
		return "Recording error"
	}
}
