// Package config resolves, loads, validates, and defaults omirec configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by omirec.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Google     GoogleConfig     `mapstructure:"google" yaml:"google"`
	Deepgram   DeepgramConfig   `mapstructure:"deepgram" yaml:"deepgram"`
	Audio      AudioConfig      `mapstructure:"audio" yaml:"audio"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Transcript TranscriptConfig `mapstructure:"transcript" yaml:"transcript"`
	Indicator  IndicatorConfig  `mapstructure:"indicator" yaml:"indicator"`
	Clipboard  CommandConfig    `mapstructure:"clipboard" yaml:"clipboard"`
	Vocab      VocabConfig      `mapstructure:"vocab" yaml:"vocab"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Debug      DebugConfig      `mapstructure:"debug" yaml:"debug"`
}

// EngineConfig selects the recognition backend and per-session request hints.
type EngineConfig struct {
	Backend              string        `mapstructure:"backend" yaml:"backend" validate:"oneof=google deepgram"`
	Language             string        `mapstructure:"language" yaml:"language" validate:"required"`
	Model                string        `mapstructure:"model" yaml:"model"`
	InterimResults       bool          `mapstructure:"interim_results" yaml:"interim_results"`
	Continuous           bool          `mapstructure:"continuous" yaml:"continuous"`
	AutomaticPunctuation bool          `mapstructure:"automatic_punctuation" yaml:"automatic_punctuation"`
	DialTimeout          time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" validate:"gt=0"`
	StopTimeout          time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout" validate:"gt=0"`
}

// GoogleConfig holds Cloud Speech-to-Text v2 routing and credentials.
type GoogleConfig struct {
	ProjectID       string `mapstructure:"project_id" yaml:"project_id"`
	Region          string `mapstructure:"region" yaml:"region"`
	Recognizer      string `mapstructure:"recognizer" yaml:"recognizer"`
	APIKey          string `mapstructure:"api_key" yaml:"api_key"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
}

// DeepgramConfig holds Deepgram live-streaming credentials and tuning.
type DeepgramConfig struct {
	APIKey        string `mapstructure:"api_key" yaml:"api_key"`
	URL           string `mapstructure:"url" yaml:"url" validate:"omitempty,url"`
	Model         string `mapstructure:"model" yaml:"model"`
	EndpointingMS int    `mapstructure:"endpointing_ms" yaml:"endpointing_ms" validate:"gte=0"`
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string `mapstructure:"input" yaml:"input"`
	Fallback string `mapstructure:"fallback" yaml:"fallback"`
}

// SessionConfig tunes the session controller loop.
type SessionConfig struct {
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size" validate:"gte=1"`
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval" validate:"gt=0"`
}

// TranscriptConfig controls final-utterance normalization.
type TranscriptConfig struct {
	CapitalizeSentences bool `mapstructure:"capitalize_sentences" yaml:"capitalize_sentences"`
}

// IndicatorConfig controls desktop notifications and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool   `mapstructure:"enable" yaml:"enable"`
	DesktopAppName string `mapstructure:"desktop_app_name" yaml:"desktop_app_name"`
	SoundEnable    bool   `mapstructure:"sound_enable" yaml:"sound_enable"`
	SoundStartFile string `mapstructure:"sound_start_file" yaml:"sound_start_file"`
	SoundStopFile  string `mapstructure:"sound_stop_file" yaml:"sound_stop_file"`
	SoundErrorFile string `mapstructure:"sound_error_file" yaml:"sound_error_file"`
	ErrorTimeoutMS int    `mapstructure:"error_timeout_ms" yaml:"error_timeout_ms" validate:"gte=0"`
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string   `mapstructure:"command" yaml:"command"`
	Argv []string `mapstructure:"-" yaml:"-"`
}

// VocabConfig controls enabled speech phrase sets and dedupe limits.
type VocabConfig struct {
	GlobalSets []string            `mapstructure:"global" yaml:"global"`
	Sets       map[string]VocabSet `mapstructure:"sets" yaml:"sets"`
	MaxPhrases int                 `mapstructure:"max_phrases" yaml:"max_phrases" validate:"gt=0"`
}

// VocabSet is one named phrase group with a shared boost value.
type VocabSet struct {
	Name    string   `mapstructure:"-" yaml:"-"`
	Boost   float64  `mapstructure:"boost" yaml:"boost" validate:"gte=0"`
	Phrases []string `mapstructure:"phrases" yaml:"phrases"`
}

// LogConfig controls log level and file rotation.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"gt=0"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" validate:"gte=0"`
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	ResponseDump bool `mapstructure:"response_dump" yaml:"response_dump"`
}

// Warning is a non-fatal load/validation message.
type Warning struct {
	Message string
}

// SpeechPhrase is the normalized phrase payload sent to ASR adapters.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}
