// Package asr streams PCM audio to a speech recognition backend.
package asr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStreamClosed is returned by SendAudio after Close or Cancel.
var ErrStreamClosed = errors.New("stream already closed for sending")

// Result is one recognition hypothesis from the backend.
type Result struct {
	Text  string
	Final bool
}

// Handler receives results on the stream's receive goroutine.
type Handler func(Result)

// Phrase is one contextual vocabulary hint.
type Phrase struct {
	Phrase string
	Boost  float32
}

// Config controls one recognition stream.
type Config struct {
	Language             string
	Model                string
	InterimResults       bool
	AutomaticPunctuation bool
	Phrases              []Phrase
	SampleRate           int
	DialTimeout          time.Duration
}

func (c Config) withDefaults() Config {
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	return c
}

// Stream is one live bidirectional recognition session.
type Stream interface {
	SendAudio([]byte) error
	// Close half-closes the audio side and waits for the backend to drain.
	Close(context.Context) error
	Cancel() error
	// Done is closed when the receive side ends.
	Done() <-chan struct{}
	// Err reports why the receive side ended; nil means a clean end of stream.
	Err() error
}

// Dialer opens recognition streams.
type Dialer interface {
	Dial(context.Context, Config, Handler) (Stream, error)
}

// StreamError is a backend failure with its provider code.
type StreamError struct {
	Code string
	Err  error
}

func (e *StreamError) Error() string {
	if e.Code == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// ErrorCode extracts a provider code from err, or "" when none is attached.
func ErrorCode(err error) string {
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr.Code
	}
	return ""
}

// runWithTimeout bounds one blocking stream operation such as the initial Send.
func runWithTimeout(ctx context.Context, timeout time.Duration, call func() error) error {
	if timeout <= 0 {
		return call()
	}

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- call()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case err := <-resultCh:
		return err
	}
}
