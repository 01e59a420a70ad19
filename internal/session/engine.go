package session

import (
	"context"
	"errors"
)

// ErrEngineUnavailable indicates no recognition engine is wired.
var ErrEngineUnavailable = errors.New("recognition engine not configured")

// Permission is the outcome of a microphone permission request.
type Permission struct {
	Granted bool
	Reason  string
	Device  string
}

// SpeechPhrase is one contextual vocabulary hint.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}

// RecognitionConfig is handed to the engine on every start.
type RecognitionConfig struct {
	Language             string
	Model                string
	InterimResults       bool
	Continuous           bool
	AutomaticPunctuation bool
	Phrases              []SpeechPhrase
}

// EventSink receives asynchronous recognition events from an engine.
type EventSink interface {
	OnInterimResult(text string)
	OnFinalResult(text string)
	OnEnd()
	OnError(code string, err error)
}

// Engine abstracts the speech recognition backend.
type Engine interface {
	RequestPermission(context.Context) (Permission, error)
	Start(context.Context, RecognitionConfig, EventSink) error
	Stop(context.Context) error
}

// PlaceholderEngine grants permission and fails every start.
type PlaceholderEngine struct{}

func (PlaceholderEngine) RequestPermission(context.Context) (Permission, error) {
	return Permission{Granted: true}, nil
}

func (PlaceholderEngine) Start(context.Context, RecognitionConfig, EventSink) error {
	return ErrEngineUnavailable
}

func (PlaceholderEngine) Stop(context.Context) error {
	return nil
}
