package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbright/omirec/internal/fsm"
	"github.com/stretchr/testify/require"
)

func TestStopWhileIdleIsNoop(t *testing.T) {
	h := newHarness(t, newFakeEngine())

	require.NoError(t, h.ctrl.StopSession(context.Background()))

	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateIdle, snap.State)
	require.Empty(t, snap.Log)
	require.Zero(t, snap.ElapsedSeconds)
	require.Zero(t, h.engine.stopCalls.Load())
}

func TestStartWhileRecordingIsIgnored(t *testing.T) {
	h := newHarness(t, newFakeEngine())
	h.startRecording(t)
	sessionID := h.ctrl.Snapshot().SessionID

	require.NoError(t, h.ctrl.StartSession(context.Background()))

	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateRecording, snap.State)
	require.Equal(t, sessionID, snap.SessionID)
	require.Equal(t, int32(1), h.engine.permCalls.Load())
	require.Equal(t, int32(1), h.engine.startCalls.Load())
	require.Len(t, snap.Log, 1)
}

func TestClearLogKeepsStateAndLiveText(t *testing.T) {
	h := newHarness(t, newFakeEngine())
	sink := h.startRecording(t)

	sink.OnFinalResult("one.")
	sink.OnInterimResult("two")
	h.ctrl.ClearLog()

	snap := h.ctrl.Snapshot()
	require.Empty(t, snap.Log)
	require.Equal(t, fsm.StateRecording, snap.State)
	require.Equal(t, "two", snap.LiveTranscript)

	require.NoError(t, h.ctrl.StopSession(context.Background()))
	require.Equal(t, []string{"two", ControlStopped}, logTexts(h.ctrl.Snapshot().Log))

	h.ctrl.ClearLog()
	require.Empty(t, h.ctrl.Snapshot().Log)
}

func TestLogPersistsAcrossSessions(t *testing.T) {
	h := newHarness(t, newFakeEngine())

	sink := h.startRecording(t)
	first := h.ctrl.Snapshot().SessionID
	sink.OnFinalResult("first session.")
	require.NoError(t, h.ctrl.StopSession(context.Background()))

	sink = h.startRecording(t)
	second := h.ctrl.Snapshot().SessionID
	require.NotEqual(t, first, second)
	sink.OnFinalResult("second session.")
	require.NoError(t, h.ctrl.StopSession(context.Background()))

	snap := h.ctrl.Snapshot()
	require.Equal(t, []string{
		ControlStarted, "first session.", ControlStopped,
		ControlStarted, "second session.", ControlStopped,
	}, logTexts(snap.Log))
	require.Equal(t, first, snap.Log[1].SessionID)
	require.Equal(t, second, snap.Log[4].SessionID)
	for i := 1; i < len(snap.Log); i++ {
		require.True(t, snap.Log[i].Timestamp.After(snap.Log[i-1].Timestamp))
	}
}

func TestEngineEventsWhileIdleAreIgnored(t *testing.T) {
	h := newHarness(t, newFakeEngine())

	h.ctrl.OnInterimResult("ghost")
	h.ctrl.OnFinalResult("ghost.")
	h.ctrl.OnEnd()
	h.ctrl.OnError("late", errors.New("late error"))
	h.settle(t)

	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateIdle, snap.State)
	require.Empty(t, snap.Log)
	require.Empty(t, snap.LiveTranscript)
	require.Empty(t, snap.LastError)
	require.Empty(t, h.notifier.shownErrors())
}

func TestStaleSessionEventsAreDropped(t *testing.T) {
	h := newHarness(t, newFakeEngine())

	oldSink := h.startRecording(t)
	require.NoError(t, h.ctrl.StopSession(context.Background()))

	h.startRecording(t)
	oldSink.OnFinalResult("from the old stream")
	oldSink.OnError("old", errors.New("old stream died"))
	h.settle(t)

	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateRecording, snap.State)
	require.NotContains(t, logTexts(snap.Log), "from the old stream")
	require.Empty(t, h.notifier.shownErrors())
}

func TestEndOfStreamActsAsImplicitStop(t *testing.T) {
	h := newHarness(t, newFakeEngine())
	sink := h.startRecording(t)

	sink.OnInterimResult("tail words")
	sink.OnEnd()
	h.settle(t)

	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateIdle, snap.State)
	require.Equal(t, []string{ControlStarted, "tail words", ControlStopped}, logTexts(snap.Log))
	require.Zero(t, snap.ElapsedSeconds)
	require.Zero(t, h.engine.stopCalls.Load())
	require.Equal(t, int32(1), h.notifier.stopCues.Load())
}

func TestEventsWhileStoppingGoToPendingBuffer(t *testing.T) {
	engine := newFakeEngine()
	engine.stopGate = make(chan struct{})
	h := newHarness(t, engine)
	sink := h.startRecording(t)

	sink.OnInterimResult("abc")
	stopDone := make(chan error, 1)
	go func() { stopDone <- h.ctrl.StopSession(context.Background()) }()
	waitForState(t, h.ctrl, fsm.StateStopping)
	require.Empty(t, h.ctrl.Snapshot().LiveTranscript)

	sink.OnInterimResult("abc def")
	sink.OnFinalResult("abc def.")
	sink.OnInterimResult("ghi")
	sink.OnEnd()
	h.settle(t)
	require.Equal(t, fsm.StateStopping, h.ctrl.State())

	close(engine.stopGate)
	require.NoError(t, <-stopDone)

	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateIdle, snap.State)
	require.Equal(t, []string{ControlStarted, "abc def.", "ghi", ControlStopped}, logTexts(snap.Log))
}

func TestStopFailureStillEndsIdle(t *testing.T) {
	engine := newFakeEngine()
	engine.stopErr = errors.New("device busy")
	h := newHarness(t, engine)
	sink := h.startRecording(t)
	sink.OnInterimResult("last words")

	err := h.ctrl.StopSession(context.Background())
	require.ErrorIs(t, err, ErrEngineStopFailed)
	require.Contains(t, err.Error(), "device busy")

	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateIdle, snap.State)
	require.Equal(t, []string{ControlStarted, "last words", ControlStopped}, logTexts(snap.Log))
	require.Equal(t, []string{"Recording did not stop cleanly"}, h.notifier.shownErrors())
	require.Zero(t, h.notifier.stopped.Load())
}

func TestRuntimeErrorWhileStoppingFailsPendingStop(t *testing.T) {
	engine := newFakeEngine()
	engine.stopGate = make(chan struct{})
	h := newHarness(t, engine)
	sink := h.startRecording(t)

	stopDone := make(chan error, 1)
	go func() { stopDone <- h.ctrl.StopSession(context.Background()) }()
	waitForState(t, h.ctrl, fsm.StateStopping)

	sink.OnError("aborted", errors.New("socket closed"))
	err := <-stopDone
	require.ErrorIs(t, err, ErrEngineRuntimeError)

	close(engine.stopGate)
	h.settle(t)

	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateIdle, snap.State)
	require.Equal(t, []string{ControlStarted, ControlStopped}, logTexts(snap.Log))
	require.Len(t, h.notifier.shownErrors(), 1)
}

func TestStopDuringPermissionQueuesCancel(t *testing.T) {
	engine := newFakeEngine()
	engine.permGate = make(chan struct{})
	h := newHarness(t, engine)

	startDone := make(chan error, 1)
	go func() { startDone <- h.ctrl.StartSession(context.Background()) }()
	waitForState(t, h.ctrl, fsm.StateRequestingPermission)

	stopDone := make(chan error, 1)
	go func() { stopDone <- h.ctrl.StopSession(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, fsm.StateRequestingPermission, h.ctrl.State())

	close(engine.permGate)
	require.ErrorIs(t, <-startDone, ErrStartCancelled)
	require.NoError(t, <-stopDone)

	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateIdle, snap.State)
	require.Empty(t, snap.Log)
	require.Zero(t, engine.startCalls.Load())
	require.Zero(t, engine.stopCalls.Load())
	require.Empty(t, h.notifier.shownErrors())
}

func TestStopDuringEngineStartStopsEngineBestEffort(t *testing.T) {
	engine := newFakeEngine()
	engine.startGate = make(chan struct{})
	h := newHarness(t, engine)

	startDone := make(chan error, 1)
	go func() { startDone <- h.ctrl.StartSession(context.Background()) }()
	require.Eventually(t, func() bool { return engine.startCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	stopDone := make(chan error, 1)
	go func() { stopDone <- h.ctrl.StopSession(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	close(engine.startGate)
	require.ErrorIs(t, <-startDone, ErrStartCancelled)
	require.NoError(t, <-stopDone)
	require.Eventually(t, func() bool { return engine.stopCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateIdle, snap.State)
	require.Empty(t, snap.Log)
	require.Zero(t, h.timer.starts.Load())
}

func TestToggleStartsAndStops(t *testing.T) {
	h := newHarness(t, newFakeEngine())

	require.NoError(t, h.ctrl.Toggle(context.Background()))
	require.Equal(t, fsm.StateRecording, h.ctrl.State())

	require.NoError(t, h.ctrl.Toggle(context.Background()))
	require.Equal(t, fsm.StateIdle, h.ctrl.State())
	require.Equal(t, []string{ControlStarted, ControlStopped}, logTexts(h.ctrl.Snapshot().Log))
}

func TestObserverSeesEveryTick(t *testing.T) {
	h := newHarness(t, newFakeEngine())

	elapsed := make(chan int, 16)
	h.ctrl.Subscribe(ObserverFunc(func(s Snapshot) {
		if s.Recording() {
			elapsed <- s.ElapsedSeconds
		}
	}))

	h.startRecording(t)
	h.timer.tick()
	h.timer.tick()
	h.settle(t)

	require.Equal(t, 0, <-elapsed)
	require.Equal(t, 1, <-elapsed)
	require.Equal(t, 2, <-elapsed)
}

func TestRunTwiceAndRequestsAfterClose(t *testing.T) {
	ctrl := NewController(nil, newFakeEngine(), nil, Options{Timer: &fakeTimer{}})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.Run(ctx) }()
	require.NoError(t, ctrl.Sync(context.Background()))

	require.ErrorIs(t, ctrl.Run(context.Background()), ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-runDone)
	require.ErrorIs(t, ctrl.StartSession(context.Background()), ErrClosed)
}

func TestShutdownStopsLiveEngine(t *testing.T) {
	engine := newFakeEngine()
	ctrl := NewController(nil, engine, nil, Options{Timer: &fakeTimer{}})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.Run(ctx) }()

	require.NoError(t, ctrl.StartSession(context.Background()))
	cancel()
	require.NoError(t, <-runDone)
	require.Equal(t, int32(1), engine.stopCalls.Load())
}

func TestPlaceholderEngineFailsStart(t *testing.T) {
	ctrl := NewController(nil, nil, nil, Options{Timer: &fakeTimer{}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ctrl.Run(ctx) }()

	err := ctrl.StartSession(context.Background())
	require.ErrorIs(t, err, ErrEngineStartFailed)
	require.ErrorIs(t, err, ErrEngineUnavailable)
}
