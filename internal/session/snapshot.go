package session

import (
	"time"

	"github.com/rbright/omirec/internal/fsm"
)

// EntryKind distinguishes recognized speech from lifecycle markers.
type EntryKind string

const (
	EntryUtterance EntryKind = "utterance"
	EntryControl   EntryKind = "control"
)

const (
	ControlStarted = "recording started"
	ControlStopped = "recording stopped"
)

// TranscriptEntry is one immutable log line.
type TranscriptEntry struct {
	Timestamp time.Time
	Text      string
	Kind      EntryKind
	SessionID string
}

// Snapshot is a read-only copy of session data.
type Snapshot struct {
	State          fsm.State
	LiveTranscript string
	Log            []TranscriptEntry
	ElapsedSeconds int
	SessionID      string
	StartedAt      time.Time
	LastError      string
}

// Recording reports whether the snapshot was taken mid-recording.
func (s Snapshot) Recording() bool {
	return s.State == fsm.StateRecording
}
