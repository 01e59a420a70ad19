package config

import "time"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Engine: EngineConfig{
			Backend:              "google",
			Language:             "en-US",
			InterimResults:       true,
			Continuous:           true,
			AutomaticPunctuation: true,
			DialTimeout:          5 * time.Second,
			StopTimeout:          10 * time.Second,
		},
		Google: GoogleConfig{
			Region:     "global",
			Recognizer: "_",
		},
		Deepgram: DeepgramConfig{
			URL:           "wss://api.deepgram.com/v1/listen",
			Model:         "nova-2",
			EndpointingMS: 300,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Session: SessionConfig{
			QueueSize:    64,
			TickInterval: time.Second,
		},
		Transcript: TranscriptConfig{CapitalizeSentences: true},
		Indicator: IndicatorConfig{
			Enable:         true,
			DesktopAppName: "omirec",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		Vocab: VocabConfig{
			GlobalSets: nil,
			Sets:       map[string]VocabSet{},
			MaxPhrases: 1024,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Debug: DebugConfig{},
	}
}
