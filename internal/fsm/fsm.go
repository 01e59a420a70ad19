// Package fsm defines the recording session state table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting_permission"
	StateRecording            State = "recording"
	StateStopping             State = "stopping"
	StateError                State = "error"
)

const (
	EventStart            Event = "start"
	EventPermissionDenied Event = "permission_denied"
	EventStartFailed      Event = "start_failed"
	EventRecognizing      Event = "recognizing"
	EventCancel           Event = "cancel"
	EventStop             Event = "stop"
	EventStopped          Event = "stopped"
	EventEnd              Event = "end"
	EventFail             Event = "fail"
	EventReset            Event = "reset"
)

// States lists every state in lifecycle order.
func States() []State {
	return []State{StateIdle, StateRequestingPermission, StateRecording, StateStopping, StateError}
}

// Live reports whether a state belongs to an in-flight session.
func (s State) Live() bool {
	switch s {
	case StateRequestingPermission, StateRecording, StateStopping:
		return true
	default:
		return false
	}
}

func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateRequestingPermission, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRequestingPermission:
		switch event {
		case EventRecognizing:
			return StateRecording, nil
		case EventPermissionDenied, EventStartFailed, EventCancel:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateStopping, nil
		case EventEnd:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopping:
		switch event {
		case EventStopped:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
