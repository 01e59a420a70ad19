package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rbright/omirec/internal/fsm"
	"github.com/rbright/omirec/internal/ipc"
	"github.com/stretchr/testify/require"
)

func TestHandleStatusAndUnknownCommand(t *testing.T) {
	h := newHarness(t, newFakeEngine())

	status := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateIdle), status.State)
	require.Empty(t, status.Log)

	unknown := h.ctrl.Handle(context.Background(), ipc.Request{Command: "definitely-unknown"})
	require.False(t, unknown.OK)
	require.Contains(t, unknown.Error, "unknown command")
}

func TestHandleStartLogStopClear(t *testing.T) {
	h := newHarness(t, newFakeEngine())
	ctx := context.Background()

	start := h.ctrl.Handle(ctx, ipc.Request{Command: ipc.CommandStart})
	require.True(t, start.OK, start.Error)
	require.Equal(t, string(fsm.StateRecording), start.State)

	h.engine.currentSink().OnInterimResult("still talking")
	status := h.ctrl.Handle(ctx, ipc.Request{Command: ipc.CommandStatus})
	require.Equal(t, "still talking", status.LiveTranscript)

	stop := h.ctrl.Handle(ctx, ipc.Request{Command: ipc.CommandStop})
	require.True(t, stop.OK)
	require.Equal(t, string(fsm.StateIdle), stop.State)

	logResp := h.ctrl.Handle(ctx, ipc.Request{Command: ipc.CommandLog})
	require.True(t, logResp.OK)
	require.Len(t, logResp.Log, 3)
	require.Equal(t, "still talking", logResp.Log[1].Text)
	require.Equal(t, string(EntryUtterance), logResp.Log[1].Kind)

	entries := EntriesFromWire(logResp.Log)
	require.Equal(t, EntryControl, entries[0].Kind)
	require.Equal(t, ControlStopped, entries[2].Text)

	clear := h.ctrl.Handle(ctx, ipc.Request{Command: ipc.CommandClear})
	require.True(t, clear.OK)
	require.Empty(t, h.ctrl.Snapshot().Log)
}

func TestHandleToggleAndStartFailure(t *testing.T) {
	engine := newFakeEngine()
	engine.startErr = errors.New("no credentials")
	h := newHarness(t, engine)

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandToggle})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "no credentials")
	require.Equal(t, string(fsm.StateIdle), resp.State)
}
