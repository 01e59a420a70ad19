package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildSpeechPhrasesSortedAndHighestBoostWins(t *testing.T) {
	cfg := Default()
	cfg.Vocab.GlobalSets = []string{"core", "team"}
	cfg.Vocab.Sets["core"] = VocabSet{Name: "core", Boost: 10, Phrases: []string{"beta", "alpha", " "}}
	cfg.Vocab.Sets["team"] = VocabSet{Name: "team", Boost: 20, Phrases: []string{"alpha", "gamma"}}

	phrases, warnings, err := BuildSpeechPhrases(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, []SpeechPhrase{
		{Phrase: "alpha", Boost: 20},
		{Phrase: "beta", Boost: 10},
		{Phrase: "gamma", Boost: 20},
	}, phrases)
}

func TestBuildSpeechPhrasesRejectsUnknownSetAndOverflow(t *testing.T) {
	cfg := Default()
	cfg.Vocab.GlobalSets = []string{"missing"}
	_, _, err := BuildSpeechPhrases(cfg)
	require.ErrorContains(t, err, `unknown set "missing"`)

	cfg.Vocab.GlobalSets = []string{"core"}
	cfg.Vocab.Sets["core"] = VocabSet{Boost: 1, Phrases: []string{"a", "b"}}
	cfg.Vocab.MaxPhrases = 1
	_, _, err = BuildSpeechPhrases(cfg)
	require.ErrorContains(t, err, "exceeds vocab.max_phrases=1")
}

func TestValidateDefaultsWarnsAboutMissingCredentials(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "google.project_id")

	cfg := Default()
	cfg.Engine.Backend = "deepgram"
	warnings, err = Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "deepgram.api_key")
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "unknown backend", mutate: func(c *Config) { c.Engine.Backend = "whisper" }, wantErr: "engine.backend must be one of: google, deepgram"},
		{name: "empty language", mutate: func(c *Config) { c.Engine.Language = "" }, wantErr: "engine.language must not be empty"},
		{name: "zero dial timeout", mutate: func(c *Config) { c.Engine.DialTimeout = 0 }, wantErr: "engine.dial_timeout must be > 0"},
		{name: "zero stop timeout", mutate: func(c *Config) { c.Engine.StopTimeout = 0 }, wantErr: "engine.stop_timeout"},
		{name: "queue size", mutate: func(c *Config) { c.Session.QueueSize = 0 }, wantErr: "session.queue_size must be >= 1"},
		{name: "tick interval", mutate: func(c *Config) { c.Session.TickInterval = -time.Second }, wantErr: "session.tick_interval"},
		{name: "negative error timeout", mutate: func(c *Config) { c.Indicator.ErrorTimeoutMS = -1 }, wantErr: "indicator.error_timeout_ms"},
		{name: "missing app name", mutate: func(c *Config) { c.Indicator.DesktopAppName = "" }, wantErr: "indicator.desktop_app_name"},
		{name: "invalid max phrases", mutate: func(c *Config) { c.Vocab.MaxPhrases = 0 }, wantErr: "vocab.max_phrases"},
		{name: "negative boost", mutate: func(c *Config) { c.Vocab.Sets["core"] = VocabSet{Boost: -1} }, wantErr: "vocab.sets.core: boost"},
		{name: "empty clipboard argv", mutate: func(c *Config) { c.Clipboard.Argv = nil }, wantErr: "clipboard.command"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: "log.level"},
		{name: "deepgram url", mutate: func(c *Config) { c.Deepgram.URL = "not a url" }, wantErr: "deepgram.url must be a URL"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Google.APIKey = "g-key"
	cfg.Deepgram.APIKey = "d-key"

	redacted := cfg.Redacted()
	require.Equal(t, "********", redacted.Google.APIKey)
	require.Equal(t, "********", redacted.Deepgram.APIKey)
	require.Equal(t, "g-key", cfg.Google.APIKey)

	out, err := redacted.YAML()
	require.NoError(t, err)
	require.NotContains(t, string(out), "d-key")
	require.Contains(t, string(out), "dial_timeout: 5s")
}
