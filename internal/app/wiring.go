package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rbright/omirec/internal/asr"
	"github.com/rbright/omirec/internal/audio"
	"github.com/rbright/omirec/internal/config"
	"github.com/rbright/omirec/internal/indicator"
	"github.com/rbright/omirec/internal/logging"
	"github.com/rbright/omirec/internal/pipeline"
	"github.com/rbright/omirec/internal/session"
	"github.com/rbright/omirec/internal/timer"
	"github.com/rbright/omirec/internal/transcript"
)

// components is everything an owning process needs beyond the socket.
type components struct {
	controller *session.Controller
	closers    []io.Closer
}

func (c components) Close() {
	for _, closer := range c.closers {
		_ = closer.Close()
	}
}

func buildComponents(cfg config.Config, logger *slog.Logger) (components, error) {
	var built components

	dialer, closer, err := newDialer(cfg, logger)
	if err != nil {
		return components{}, err
	}
	if closer != nil {
		built.closers = append(built.closers, closer)
	}

	recognition, err := recognitionConfig(cfg)
	if err != nil {
		built.Close()
		return components{}, err
	}

	engine := pipeline.New(
		audio.PulseSource{Input: cfg.Audio.Input, Fallback: cfg.Audio.Fallback},
		dialer,
		logger,
		pipeline.Options{
			Normalize:   transcript.Options{CapitalizeSentences: cfg.Transcript.CapitalizeSentences},
			DialTimeout: cfg.Engine.DialTimeout,
			EndTimeout:  cfg.Engine.StopTimeout,
		},
	)

	built.controller = session.NewController(logger, engine, indicator.NewDesktop(cfg.Indicator, logger), session.Options{
		Recognition: recognition,
		QueueSize:   cfg.Session.QueueSize,
		StopTimeout: cfg.Engine.StopTimeout,
		Timer:       timer.New(cfg.Session.TickInterval),
	})
	return built, nil
}

// newDialer picks the ASR backend. The closer, when non-nil, owns a debug artifact.
func newDialer(cfg config.Config, logger *slog.Logger) (asr.Dialer, io.Closer, error) {
	switch cfg.Engine.Backend {
	case "deepgram":
		return asr.NewDeepgram(asr.DeepgramConfig{
			APIKey:        cfg.Deepgram.APIKey,
			URL:           cfg.Deepgram.URL,
			Model:         cfg.Deepgram.Model,
			EndpointingMS: cfg.Deepgram.EndpointingMS,
		}, logger), nil, nil

	case "google", "":
		googleCfg := asr.GoogleConfig{
			ProjectID:       cfg.Google.ProjectID,
			Region:          cfg.Google.Region,
			Recognizer:      cfg.Google.Recognizer,
			APIKey:          cfg.Google.APIKey,
			CredentialsFile: cfg.Google.CredentialsFile,
		}
		if !cfg.Debug.ResponseDump {
			return asr.NewGoogle(googleCfg, logger), nil, nil
		}
		dump, err := logging.CreateDebugFile("google-responses", "jsonl")
		if err != nil {
			return nil, nil, fmt.Errorf("create response dump: %w", err)
		}
		logger.Info("dumping recognizer responses", "path", dump.Name())
		googleCfg.DebugResponses = dump
		return asr.NewGoogle(googleCfg, logger), dump, nil

	default:
		return nil, nil, fmt.Errorf("unsupported engine.backend %q", cfg.Engine.Backend)
	}
}

func recognitionConfig(cfg config.Config) (session.RecognitionConfig, error) {
	phrases, _, err := config.BuildSpeechPhrases(cfg)
	if err != nil {
		return session.RecognitionConfig{}, fmt.Errorf("build speech phrases: %w", err)
	}

	out := session.RecognitionConfig{
		Language:             cfg.Engine.Language,
		Model:                cfg.Engine.Model,
		InterimResults:       cfg.Engine.InterimResults,
		Continuous:           cfg.Engine.Continuous,
		AutomaticPunctuation: cfg.Engine.AutomaticPunctuation,
		Phrases:              make([]session.SpeechPhrase, 0, len(phrases)),
	}
	for _, phrase := range phrases {
		out.Phrases = append(out.Phrases, session.SpeechPhrase{Phrase: phrase.Phrase, Boost: phrase.Boost})
	}
	return out, nil
}
