package session

import (
	"context"
	"fmt"

	"github.com/rbright/omirec/internal/ipc"
)

// Handle serves IPC commands against the owning controller.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return c.respond(ctx, "status", nil, false)
	case ipc.CommandStart:
		return c.respond(ctx, "recording", c.StartSession(ctx), false)
	case ipc.CommandStop:
		return c.respond(ctx, "stopped", c.StopSession(ctx), false)
	case ipc.CommandToggle:
		return c.respond(ctx, "toggled", c.Toggle(ctx), false)
	case ipc.CommandClear:
		c.ClearLog()
		return c.respond(ctx, "log cleared", nil, false)
	case ipc.CommandLog:
		return c.respond(ctx, "log", nil, true)
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) respond(ctx context.Context, message string, err error, withLog bool) ipc.Response {
	if err == nil {
		err = c.Sync(ctx)
	}

	snap := c.Snapshot()
	resp := ipc.Response{
		OK:             err == nil,
		State:          string(snap.State),
		ElapsedSeconds: snap.ElapsedSeconds,
		LiveTranscript: snap.LiveTranscript,
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Message = message
	}
	if withLog {
		resp.Log = EntriesToWire(snap.Log)
	}
	return resp
}

// EntriesToWire converts log entries to their IPC form.
func EntriesToWire(entries []TranscriptEntry) []ipc.LogEntry {
	out := make([]ipc.LogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, ipc.LogEntry{
			Timestamp: e.Timestamp,
			Text:      e.Text,
			Kind:      string(e.Kind),
			SessionID: e.SessionID,
		})
	}
	return out
}

// EntriesFromWire converts IPC log entries back to transcript entries.
func EntriesFromWire(entries []ipc.LogEntry) []TranscriptEntry {
	out := make([]TranscriptEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, TranscriptEntry{
			Timestamp: e.Timestamp,
			Text:      e.Text,
			Kind:      EntryKind(e.Kind),
			SessionID: e.SessionID,
		})
	}
	return out
}
