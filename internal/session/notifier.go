package session

import "context"

// Notifier is the session-facing subset of indicator behavior.
type Notifier interface {
	ShowRecording(context.Context)
	ShowStopped(context.Context)
	ShowError(context.Context, string)
	CueStart(context.Context)
	CueStop(context.Context)
	CueError(context.Context)
}

type noopNotifier struct{}

func (noopNotifier) ShowRecording(context.Context)     {}
func (noopNotifier) ShowStopped(context.Context)       {}
func (noopNotifier) ShowError(context.Context, string) {}
func (noopNotifier) CueStart(context.Context)          {}
func (noopNotifier) CueStop(context.Context)           {}
func (noopNotifier) CueError(context.Context)          {}

// Observer is told about every published snapshot.
type Observer interface {
	SessionChanged(Snapshot)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) SessionChanged(s Snapshot) { f(s) }

// Timer drives elapsed-time ticks while recording.
type Timer interface {
	Start(onTick func())
	Stop()
}
