package tui

import "github.com/rbright/omirec/internal/session"

// snapshotMsg carries the latest controller snapshot.
type snapshotMsg struct {
	Snapshot session.Snapshot
}

// commandDoneMsg reports the outcome of a start, stop, or clear request.
type commandDoneMsg struct {
	Action string
	Err    error
}

// copiedMsg reports the outcome of a clipboard copy.
type copiedMsg struct {
	Lines int
	Err   error
}

// clearNoticeMsg clears a transient notice once its id is still current.
type clearNoticeMsg struct {
	ID int
}
