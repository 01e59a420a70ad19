package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. OMIREC_ENGINE_BACKEND.
const EnvPrefix = "OMIREC"

// Loaded captures resolved config path, decoded values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, decodes, and validates the runtime configuration.
// Defaults come first, the YAML file is merged over them, and OMIREC_* env vars win.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	v, err := newViper(Default())
	if err != nil {
		return Loaded{}, err
	}

	var warnings []Warning
	exists := true
	if _, statErr := os.Stat(resolvedPath); statErr != nil {
		if !errors.Is(statErr, os.ErrNotExist) {
			return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, statErr)
		}
		exists = false
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		})
	} else {
		v.SetConfigFile(resolvedPath)
		if err := v.MergeInConfig(); err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return Loaded{}, fmt.Errorf("decode config %q: %w", resolvedPath, err)
	}

	validationWarnings, err := Validate(cfg)
	if err != nil {
		return Loaded{}, fmt.Errorf("validate config %q: %w", resolvedPath, err)
	}
	warnings = append(warnings, validationWarnings...)

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   exists,
	}, nil
}

// newViper seeds a viper instance with base so every key is known to AutomaticEnv.
func newViper(base Config) (*viper.Viper, error) {
	seed, err := yaml.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("encode default config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadConfig(bytes.NewReader(seed)); err != nil {
		return nil, fmt.Errorf("seed default config: %w", err)
	}
	return v, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, err
	}

	argv, err := parseArgv(cfg.Clipboard.Raw)
	if err != nil {
		return Config{}, fmt.Errorf("clipboard.command: %w", err)
	}
	cfg.Clipboard.Argv = argv

	// viper folds map keys to lower case, so set names are matched that way.
	if cfg.Vocab.Sets == nil {
		cfg.Vocab.Sets = map[string]VocabSet{}
	}
	for name, set := range cfg.Vocab.Sets {
		set.Name = name
		cfg.Vocab.Sets[name] = set
	}
	if len(cfg.Vocab.GlobalSets) == 0 {
		cfg.Vocab.GlobalSets = nil
	}
	for i, name := range cfg.Vocab.GlobalSets {
		cfg.Vocab.GlobalSets[i] = strings.ToLower(strings.TrimSpace(name))
	}
	return cfg, nil
}

// Redacted returns a copy of cfg with secrets masked for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return s
		}
		return "********"
	}
	c.Google.APIKey = mask(c.Google.APIKey)
	c.Deepgram.APIKey = mask(c.Deepgram.APIKey)
	return c
}

// YAML renders cfg in the same shape Load accepts.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
