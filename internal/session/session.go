// Package session owns the recording lifecycle, engine event reconciliation, and transcript log.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/omirec/internal/fsm"
	"github.com/rbright/omirec/internal/timer"
)

var (
	// ErrAlreadyRunning is returned when Run is invoked twice.
	ErrAlreadyRunning = errors.New("session loop already running")
	// ErrClosed is returned for requests made after the loop exited.
	ErrClosed = errors.New("session loop closed")
	// ErrStartCancelled is returned to a start that a stop cancelled before recording began.
	ErrStartCancelled = errors.New("session start cancelled")
)

const (
	defaultQueueSize   = 64
	defaultStopTimeout = 5 * time.Second
)

type msgKind int

const (
	msgStart msgKind = iota + 1
	msgStop
	msgToggle
	msgClear
	msgInterim
	msgFinal
	msgEnd
	msgError
	msgPermission
	msgStarted
	msgStopped
	msgTick
	msgSync
)

// message is the single unit of work consumed by the loop.
// A zero gen targets whatever session is current.
type message struct {
	kind  msgKind
	gen   uint64
	text  string
	code  string
	err   error
	perm  Permission
	reply chan error
}

// Options tunes a Controller. Zero values select defaults.
type Options struct {
	Recognition RecognitionConfig
	QueueSize   int
	StopTimeout time.Duration
	Timer       Timer
	Now         func() time.Time
	NewID       func() string
}

// Controller serializes user commands and engine events through one loop goroutine.
type Controller struct {
	logger      *slog.Logger
	engine      Engine
	notifier    Notifier
	timer       Timer
	recognition RecognitionConfig
	stopTimeout time.Duration
	now         func() time.Time
	newID       func() string

	queue   chan message
	done    chan struct{}
	running atomic.Bool

	mu        sync.RWMutex
	snap      Snapshot
	observers []Observer

	// Loop-owned; never touched outside Run.
	ctx          context.Context
	state        fsm.State
	live         string
	pending      string
	log          []TranscriptEntry
	elapsed      int
	sessionID    string
	startedAt    time.Time
	lastErr      string
	gen          uint64
	cancelQueued bool
	deferred     []message
	startWaiters []chan error
	stopWaiters  []chan error
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(logger *slog.Logger, engine Engine, notifier Notifier, opts Options) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if engine == nil {
		engine = PlaceholderEngine{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.Timer == nil {
		opts.Timer = timer.New(time.Second)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Controller{
		logger:      logger,
		engine:      engine,
		notifier:    notifier,
		timer:       opts.Timer,
		recognition: opts.Recognition,
		stopTimeout: opts.StopTimeout,
		now:         opts.Now,
		newID:       opts.NewID,
		queue:       make(chan message, opts.QueueSize),
		done:        make(chan struct{}),
		state:       fsm.StateIdle,
		snap:        Snapshot{State: fsm.StateIdle},
	}
}

// Subscribe registers an observer for every future snapshot.
func (c *Controller) Subscribe(o Observer) {
	if o == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// State returns the most recently published state.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.State
}

// Snapshot returns a copy of the most recently published session data.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := c.snap
	snap.Log = slices.Clone(c.snap.Log)
	return snap
}

// StartSession begins a recording and blocks until it is live or has failed.
// It is a no-op when a session is already in flight.
func (c *Controller) StartSession(ctx context.Context) error {
	return c.request(ctx, msgStart)
}

// StopSession ends the live recording and blocks until the controller is idle.
// It is a no-op unless recording or awaiting permission.
func (c *Controller) StopSession(ctx context.Context) error {
	return c.request(ctx, msgStop)
}

// Toggle starts from idle and stops otherwise.
func (c *Controller) Toggle(ctx context.Context) error {
	return c.request(ctx, msgToggle)
}

// Sync waits until every message queued before it has been processed.
func (c *Controller) Sync(ctx context.Context) error {
	return c.request(ctx, msgSync)
}

// ClearLog empties the transcript log and blocks until the loop applied it.
func (c *Controller) ClearLog() {
	_ = c.request(context.Background(), msgClear)
}

func (c *Controller) OnInterimResult(text string) {
	c.post(message{kind: msgInterim, text: text})
}

func (c *Controller) OnFinalResult(text string) {
	c.post(message{kind: msgFinal, text: text})
}

func (c *Controller) OnEnd() {
	c.post(message{kind: msgEnd})
}

func (c *Controller) OnError(code string, err error) {
	c.post(message{kind: msgError, code: code, err: err})
}

// Run owns all session data until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	c.ctx = ctx
	c.publish()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case msg := <-c.queue:
			c.dispatch(msg)
		}
	}
}

// request enqueues a command and waits for the loop's answer.
func (c *Controller) request(ctx context.Context, kind msgKind) error {
	reply := make(chan error, 1)
	select {
	case c.queue <- message{kind: kind, reply: reply}:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an engine-side message, dropping it once the loop is gone.
func (c *Controller) post(msg message) {
	select {
	case c.queue <- msg:
	case <-c.done:
	}
}

func (c *Controller) dispatch(msg message) {
	if msg.gen != 0 && msg.gen != c.gen {
		c.logger.Debug("dropping stale session message", "kind", int(msg.kind), "gen", msg.gen, "current_gen", c.gen)
		return
	}

	switch msg.kind {
	case msgStart:
		c.handleStart(msg.reply)
	case msgStop:
		c.handleStop(msg.reply)
	case msgToggle:
		if c.state == fsm.StateIdle {
			c.handleStart(msg.reply)
		} else {
			c.handleStop(msg.reply)
		}
	case msgClear:
		c.log = nil
		c.publish()
		msg.reply <- nil
	case msgInterim, msgFinal, msgEnd, msgError:
		c.handleEngineEvent(msg)
	case msgPermission:
		c.handlePermission(msg)
	case msgStarted:
		c.handleStarted(msg)
	case msgStopped:
		c.handleStopped(msg)
	case msgSync:
		msg.reply <- nil
	case msgTick:
		if c.state == fsm.StateRecording {
			c.elapsed++
			c.publish()
		}
	}
}

func (c *Controller) handleStart(reply chan error) {
	if c.state != fsm.StateIdle {
		reply <- nil
		return
	}
	if err := c.transition(fsm.EventStart); err != nil {
		reply <- err
		return
	}

	c.gen++
	c.sessionID = c.newID()
	c.lastErr = ""
	c.cancelQueued = false
	c.deferred = nil
	c.startWaiters = append(c.startWaiters, reply)
	c.logger.Info("session start requested", "session_id", c.sessionID)
	c.publish()

	gen := c.gen
	go func() {
		perm, err := c.engine.RequestPermission(c.ctx)
		c.post(message{kind: msgPermission, gen: gen, perm: perm, err: err})
	}()
}

func (c *Controller) handlePermission(msg message) {
	if c.state != fsm.StateRequestingPermission {
		return
	}
	if c.cancelQueued {
		c.finishCancel()
		return
	}
	if msg.err != nil || !msg.perm.Granted {
		cause := msg.err
		if cause == nil {
			reason := strings.TrimSpace(msg.perm.Reason)
			if reason == "" {
				reason = "permission not granted"
			}
			cause = errors.New(reason)
		}
		c.failStart(fsm.EventPermissionDenied, &Error{Kind: KindPermissionDenied, Err: cause})
		return
	}

	c.logger.Info("microphone permission granted", "session_id", c.sessionID, "device", msg.perm.Device)

	gen := c.gen
	cfg := c.recognition
	sink := generationSink{c: c, gen: gen}
	go func() {
		err := c.engine.Start(c.ctx, cfg, sink)
		c.post(message{kind: msgStarted, gen: gen, err: err})
	}()
}

func (c *Controller) handleStarted(msg message) {
	if c.state != fsm.StateRequestingPermission {
		return
	}
	if c.cancelQueued {
		if msg.err == nil {
			c.stopEngineAsync()
		}
		c.finishCancel()
		return
	}
	if msg.err != nil {
		c.failStart(fsm.EventStartFailed, &Error{Kind: KindEngineStartFailed, Err: msg.err})
		return
	}
	if err := c.transition(fsm.EventRecognizing); err != nil {
		return
	}

	c.elapsed = 0
	c.startedAt = c.now()
	c.live, c.pending = "", ""
	c.appendEntry(ControlStarted, EntryControl)

	gen := c.gen
	c.timer.Start(func() {
		c.post(message{kind: msgTick, gen: gen})
	})

	c.notifier.ShowRecording(c.ctx)
	c.notifier.CueStart(c.ctx)
	c.logger.Info("recording started", "session_id", c.sessionID)
	replyAll(&c.startWaiters, nil)
	c.publish()

	deferred := c.deferred
	c.deferred = nil
	for _, d := range deferred {
		c.handleEngineEvent(d)
	}
}

func (c *Controller) handleStop(reply chan error) {
	switch c.state {
	case fsm.StateRequestingPermission:
		c.cancelQueued = true
		c.stopWaiters = append(c.stopWaiters, reply)
		c.logger.Info("stop queued until start resolves", "session_id", c.sessionID)
	case fsm.StateRecording:
		if err := c.transition(fsm.EventStop); err != nil {
			reply <- err
			return
		}
		c.pending, c.live = c.live, ""
		c.timer.Stop()
		c.elapsed = 0
		c.stopWaiters = append(c.stopWaiters, reply)
		c.publish()

		gen := c.gen
		timeout := c.stopTimeout
		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), timeout)
			defer cancel()
			err := c.engine.Stop(ctx)
			c.post(message{kind: msgStopped, gen: gen, err: err})
		}()
	default:
		reply <- nil
	}
}

func (c *Controller) handleStopped(msg message) {
	if c.state != fsm.StateStopping {
		return
	}

	c.flush(&c.pending)
	c.appendEntry(ControlStopped, EntryControl)
	if err := c.transition(fsm.EventStopped); err != nil {
		return
	}

	var stopErr error
	if msg.err != nil {
		stopErr = &Error{Kind: KindEngineStopFailed, Err: msg.err}
		c.lastErr = stopErr.Error()
		c.logger.Error("recording stop failed", "session_id", c.sessionID, "error", msg.err.Error())
		c.notifier.ShowError(c.ctx, KindEngineStopFailed.notice())
		c.notifier.CueError(c.ctx)
	} else {
		c.logger.Info("recording stopped", "session_id", c.sessionID)
		c.notifier.ShowStopped(c.ctx)
		c.notifier.CueStop(c.ctx)
	}
	replyAll(&c.stopWaiters, stopErr)
	c.publish()
}

func (c *Controller) handleEngineEvent(msg message) {
	switch c.state {
	case fsm.StateRequestingPermission:
		c.deferred = append(c.deferred, msg)
		return
	case fsm.StateRecording, fsm.StateStopping:
	default:
		c.logger.Debug("ignoring engine event while idle", "kind", int(msg.kind))
		return
	}

	switch msg.kind {
	case msgInterim:
		if c.state == fsm.StateRecording {
			c.live = msg.text
			c.publish()
		} else {
			c.pending = msg.text
		}
	case msgFinal:
		buf := &c.live
		if c.state == fsm.StateStopping {
			buf = &c.pending
		}
		if strings.TrimSpace(msg.text) != "" {
			*buf = msg.text
		}
		c.flush(buf)
		c.publish()
	case msgEnd:
		if c.state == fsm.StateStopping {
			c.logger.Debug("engine ended while stopping", "session_id", c.sessionID)
			return
		}
		c.timer.Stop()
		c.elapsed = 0
		c.flush(&c.live)
		c.appendEntry(ControlStopped, EntryControl)
		if err := c.transition(fsm.EventEnd); err != nil {
			return
		}
		c.logger.Info("recording ended by engine", "session_id", c.sessionID)
		c.notifier.ShowStopped(c.ctx)
		c.notifier.CueStop(c.ctx)
		c.publish()
	case msgError:
		c.handleRuntimeError(msg.code, msg.err)
	}
}

func (c *Controller) handleRuntimeError(code string, cause error) {
	c.timer.Stop()
	c.elapsed = 0
	c.live, c.pending = "", ""
	c.appendEntry(ControlStopped, EntryControl)

	runtimeErr := &Error{Kind: KindEngineRuntimeError, Code: code, Err: cause}
	c.lastErr = runtimeErr.Error()
	c.logger.Error("recognition engine error", "session_id", c.sessionID, "code", code, "error", runtimeErr.Error())

	c.toErrorAndReset()
	c.notifier.ShowError(c.ctx, KindEngineRuntimeError.notice())
	c.notifier.CueError(c.ctx)
	replyAll(&c.stopWaiters, runtimeErr)
	c.publish()
}

func (c *Controller) failStart(event fsm.Event, err *Error) {
	if transitionErr := c.transition(event); transitionErr != nil {
		return
	}
	c.deferred = nil
	c.lastErr = err.Error()
	c.logger.Error("session start failed", "session_id", c.sessionID, "error", err.Error())
	c.notifier.ShowError(c.ctx, err.Kind.notice())
	c.notifier.CueError(c.ctx)
	replyAll(&c.startWaiters, err)
	replyAll(&c.stopWaiters, nil)
	c.publish()
}

func (c *Controller) finishCancel() {
	if err := c.transition(fsm.EventCancel); err != nil {
		return
	}
	c.deferred = nil
	c.logger.Info("session start cancelled", "session_id", c.sessionID)
	replyAll(&c.startWaiters, ErrStartCancelled)
	replyAll(&c.stopWaiters, nil)
	c.publish()
}

// shutdown releases the engine and every waiter when the loop exits.
func (c *Controller) shutdown() {
	c.timer.Stop()
	if c.state == fsm.StateRecording || c.state == fsm.StateStopping {
		ctx, cancel := context.WithTimeout(context.Background(), c.stopTimeout)
		if err := c.engine.Stop(ctx); err != nil {
			c.logger.Debug("engine stop on shutdown failed", "error", err.Error())
		}
		cancel()
	}
	replyAll(&c.startWaiters, ErrClosed)
	replyAll(&c.stopWaiters, ErrClosed)
}

func (c *Controller) stopEngineAsync() {
	timeout := c.stopTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), timeout)
		defer cancel()
		if err := c.engine.Stop(ctx); err != nil {
			c.logger.Debug("best-effort engine stop failed", "error", err.Error())
		}
	}()
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (c *Controller) toErrorAndReset() {
	_ = c.transition(fsm.EventFail)
	_ = c.transition(fsm.EventReset)
}

// transition applies one FSM event to the loop-owned state.
func (c *Controller) transition(event fsm.Event) error {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logger.Error("session transition rejected", "state", string(c.state), "event", string(event), "error", err.Error())
		return err
	}
	c.logger.Debug("session transition", "session_id", c.sessionID, "from", string(c.state), "to", string(next), "event", string(event))
	c.state = next
	return nil
}

// flush appends a non-blank buffer as an utterance and clears it.
func (c *Controller) flush(buf *string) {
	text := strings.TrimSpace(*buf)
	*buf = ""
	if text == "" {
		return
	}
	c.appendEntry(text, EntryUtterance)
}

func (c *Controller) appendEntry(text string, kind EntryKind) {
	c.log = append(c.log, TranscriptEntry{
		Timestamp: c.now(),
		Text:      text,
		Kind:      kind,
		SessionID: c.sessionID,
	})
}

// publish stores a fresh snapshot and hands it to observers.
func (c *Controller) publish() {
	snap := Snapshot{
		State:          c.state,
		LiveTranscript: c.live,
		Log:            slices.Clone(c.log),
		ElapsedSeconds: c.elapsed,
		SessionID:      c.sessionID,
		StartedAt:      c.startedAt,
		LastError:      c.lastErr,
	}

	c.mu.Lock()
	c.snap = snap
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	for _, o := range observers {
		o.SessionChanged(snap)
	}
}

func replyAll(waiters *[]chan error, err error) {
	for _, w := range *waiters {
		w <- err
	}
	*waiters = nil
}

// generationSink tags engine events with the session that started the engine.
type generationSink struct {
	c   *Controller
	gen uint64
}

func (s generationSink) OnInterimResult(text string) {
	s.c.post(message{kind: msgInterim, gen: s.gen, text: text})
}

func (s generationSink) OnFinalResult(text string) {
	s.c.post(message{kind: msgFinal, gen: s.gen, text: text})
}

func (s generationSink) OnEnd() {
	s.c.post(message{kind: msgEnd, gen: s.gen})
}

func (s generationSink) OnError(code string, err error) {
	s.c.post(message{kind: msgError, gen: s.gen, code: code, err: err})
}
