// Package pipeline runs capture -> ASR recognition and reports results to a session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/omirec/internal/asr"
	"github.com/rbright/omirec/internal/audio"
	"github.com/rbright/omirec/internal/session"
	"github.com/rbright/omirec/internal/transcript"
)

// ErrAlreadyStarted is returned by Start while a previous run is still live.
var ErrAlreadyStarted = errors.New("recognition already started")

const defaultEndTimeout = 10 * time.Second

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	Normalize   transcript.Options
	DialTimeout time.Duration
	// EndTimeout bounds the drain after a single-utterance session ends itself.
	EndTimeout time.Duration
}

// Engine implements session.Engine on an audio source plus an ASR dialer.
type Engine struct {
	source audio.Source
	dialer asr.Dialer
	logger *slog.Logger
	opts   Options

	mu        sync.Mutex
	selection *audio.Selection
	active    *run
}

// run is one live capture + recognition stream pair.
type run struct {
	capture audio.Stream
	stream  asr.Stream
	sink    session.EventSink

	sendDone chan struct{}
	group    errgroup.Group

	stopping atomic.Bool
	ending   sync.Once
	sendErr  atomic.Pointer[error]
}

// New constructs an engine over source and dialer.
func New(source audio.Source, dialer asr.Dialer, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.EndTimeout <= 0 {
		opts.EndTimeout = defaultEndTimeout
	}
	return &Engine{source: source, dialer: dialer, logger: logger, opts: opts}
}

// RequestPermission grants microphone access when an input source can be selected.
func (e *Engine) RequestPermission(ctx context.Context) (session.Permission, error) {
	selection, err := e.source.Select(ctx)
	if err != nil {
		e.logger.Warn("microphone unavailable", "error", err.Error())
		return session.Permission{Granted: false, Reason: err.Error()}, nil
	}
	if selection.Warning != "" {
		e.logger.Warn(selection.Warning)
	}

	e.mu.Lock()
	e.selection = &selection
	e.mu.Unlock()

	return session.Permission{Granted: true, Device: selection.Device.Label()}, nil
}

// Start dials the recognizer, opens capture, and begins streaming audio.
func (e *Engine) Start(ctx context.Context, cfg session.RecognitionConfig, sink session.EventSink) error {
	e.mu.Lock()
	if e.active != nil {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	selection := e.selection
	e.selection = nil
	e.mu.Unlock()

	if selection == nil {
		selected, err := e.source.Select(ctx)
		if err != nil {
			return fmt.Errorf("select audio input: %w", err)
		}
		selection = &selected
	}

	r := &run{sink: sink, sendDone: make(chan struct{})}
	handler := e.resultHandler(r, cfg.Continuous)

	stream, err := e.dialer.Dial(ctx, streamConfig(cfg, e.opts.DialTimeout), handler)
	if err != nil {
		return fmt.Errorf("dial recognizer: %w", err)
	}
	r.stream = stream

	capture, err := e.source.Open(ctx, selection.Device)
	if err != nil {
		_ = stream.Cancel()
		return fmt.Errorf("open audio capture: %w", err)
	}
	r.capture = capture

	e.mu.Lock()
	e.active = r
	e.mu.Unlock()

	r.group.Go(func() error { return e.sendLoop(r) })
	r.group.Go(func() error { return e.watch(r) })

	e.logger.Info("recognition started", "device", selection.Device.Label(), "language", cfg.Language)
	return nil
}

// Stop halts capture, drains the recognizer, and waits for both goroutines.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	r := e.active
	e.active = nil
	e.mu.Unlock()

	if r == nil {
		return nil
	}

	r.stopping.Store(true)
	_ = r.capture.Stop()
	<-r.sendDone

	closeErr := r.stream.Close(ctx)
	if err := r.group.Wait(); err != nil && closeErr == nil {
		closeErr = err
	}

	e.logger.Info("recognition stopped", "bytes_captured", r.capture.BytesCaptured())
	if closeErr != nil {
		return fmt.Errorf("close recognizer: %w", closeErr)
	}
	return nil
}

func (e *Engine) resultHandler(r *run, continuous bool) asr.Handler {
	return func(result asr.Result) {
		if !result.Final {
			r.sink.OnInterimResult(result.Text)
			return
		}
		r.sink.OnFinalResult(transcript.Normalize(result.Text, e.opts.Normalize))
		if !continuous {
			r.ending.Do(func() { go e.endAfterFinal(r) })
		}
	}
}

// endAfterFinal closes a single-utterance run once its first final arrives.
func (e *Engine) endAfterFinal(r *run) {
	if r.stopping.Load() {
		return
	}
	_ = r.capture.Stop()
	<-r.sendDone

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.EndTimeout)
	defer cancel()
	if err := r.stream.Close(ctx); err != nil {
		e.logger.Debug("single-utterance close failed", "error", err.Error())
	}
}

// sendLoop forwards capture chunks to the recognizer until capture ends.
func (e *Engine) sendLoop(r *run) error {
	defer close(r.sendDone)

	for chunk := range r.capture.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		err := r.stream.SendAudio(chunk)
		if err == nil {
			continue
		}
		_ = r.capture.Stop()
		if errors.Is(err, asr.ErrStreamClosed) {
			// Drain the remaining buffered audio without sending.
			continue
		}
		wrapped := fmt.Errorf("send audio: %w", err)
		r.sendErr.Store(&wrapped)
		_ = r.stream.Cancel()
		return wrapped
	}
	return nil
}

// watch reports the end of a run that was not stopped by the session.
func (e *Engine) watch(r *run) error {
	<-r.stream.Done()
	if r.stopping.Load() {
		return nil
	}

	_ = r.capture.Stop()
	e.release(r)

	if p := r.sendErr.Load(); p != nil {
		r.sink.OnError(asr.ErrorCode(*p), *p)
		return nil
	}
	if err := r.stream.Err(); err != nil {
		r.sink.OnError(asr.ErrorCode(err), err)
		return nil
	}
	r.sink.OnEnd()
	return nil
}

func (e *Engine) release(r *run) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == r {
		e.active = nil
	}
}

func streamConfig(cfg session.RecognitionConfig, dialTimeout time.Duration) asr.Config {
	phrases := make([]asr.Phrase, 0, len(cfg.Phrases))
	for _, phrase := range cfg.Phrases {
		phrases = append(phrases, asr.Phrase{Phrase: phrase.Phrase, Boost: phrase.Boost})
	}
	return asr.Config{
		Language:             cfg.Language,
		Model:                cfg.Model,
		InterimResults:       cfg.InterimResults,
		AutomaticPunctuation: cfg.AutomaticPunctuation,
		Phrases:              phrases,
		SampleRate:           audio.SampleRate,
		DialTimeout:          dialTimeout,
	}
}
