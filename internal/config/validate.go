package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, describeValidation(err)
	}
	for name, set := range cfg.Vocab.Sets {
		if err := validate.Struct(set); err != nil {
			return nil, fmt.Errorf("vocab.sets.%s: %w", name, describeValidation(err))
		}
	}

	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Engine.Language) == "" {
		return nil, fmt.Errorf("engine.language must not be empty")
	}
	if len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard.command must not be empty")
	}
	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}

	switch cfg.Engine.Backend {
	case "google":
		if strings.TrimSpace(cfg.Google.ProjectID) == "" {
			warnings = append(warnings, Warning{Message: "google.project_id is empty; recording will fail to start"})
		}
	case "deepgram":
		if strings.TrimSpace(cfg.Deepgram.APIKey) == "" {
			warnings = append(warnings, Warning{Message: "deepgram.api_key is empty; recording will fail to start"})
		}
	}
	if !cfg.Engine.InterimResults {
		warnings = append(warnings, Warning{Message: "engine.interim_results=false; live transcript stays empty until each utterance ends"})
	}

	_, vocabWarnings, err := BuildSpeechPhrases(cfg)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, vocabWarnings...)

	return warnings, nil
}

// describeValidation flattens validator errors into dotted config keys.
func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := fe.Namespace()
		if _, rest, ok := strings.Cut(key, "."); ok {
			key = rest
		}
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s must not be empty", key))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", key, strings.ReplaceAll(fe.Param(), " ", ", ")))
		case "gt":
			messages = append(messages, fmt.Sprintf("%s must be > %s", key, fe.Param()))
		case "gte":
			messages = append(messages, fmt.Sprintf("%s must be >= %s", key, fe.Param()))
		case "url":
			messages = append(messages, fmt.Sprintf("%s must be a URL", key))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s", key, fe.Tag()))
		}
	}
	return errors.New(strings.Join(messages, "; "))
}

// BuildSpeechPhrases merges enabled vocab sets into deterministic ASR phrase payloads.
func BuildSpeechPhrases(cfg Config) ([]SpeechPhrase, []Warning, error) {
	enabledSets := cfg.Vocab.GlobalSets
	if len(enabledSets) == 0 {
		return nil, nil, nil
	}

	type candidate struct {
		boost float64
		from  string
	}

	warnings := make([]Warning, 0)
	selected := make(map[string]candidate)

	for _, name := range enabledSets {
		set, ok := cfg.Vocab.Sets[name]
		if !ok {
			return nil, nil, fmt.Errorf("vocab.global references unknown set %q", name)
		}
		for _, phrase := range set.Phrases {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" {
				continue
			}
			if existing, exists := selected[phrase]; exists {
				if set.Boost > existing.boost {
					warnings = append(warnings, Warning{Message: fmt.Sprintf("phrase %q present in %q and %q; using higher boost %.2f", phrase, existing.from, name, set.Boost)})
					selected[phrase] = candidate{boost: set.Boost, from: name}
				}
				continue
			}
			selected[phrase] = candidate{boost: set.Boost, from: name}
		}
	}

	if len(selected) > cfg.Vocab.MaxPhrases {
		return nil, nil, fmt.Errorf("vocabulary phrase count %d exceeds vocab.max_phrases=%d", len(selected), cfg.Vocab.MaxPhrases)
	}

	phrases := make([]SpeechPhrase, 0, len(selected))
	for phrase, c := range selected {
		phrases = append(phrases, SpeechPhrase{Phrase: phrase, Boost: float32(c.boost)})
	}

	sort.Slice(phrases, func(i, j int) bool {
		if phrases[i].Phrase == phrases[j].Phrase {
			return phrases[i].Boost < phrases[j].Boost
		}
		return phrases[i].Phrase < phrases[j].Phrase
	})

	return phrases, warnings, nil
}
