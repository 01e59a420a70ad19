// Package transcript normalizes recognized utterances and renders the transcript log.
package transcript

import (
	"regexp"
	"strings"
	"unicode"
)

// Options controls utterance normalization.
type Options struct {
	CapitalizeSentences bool
}

var (
	pronounIContractionPattern = regexp.MustCompile(`\bi['’](?:m|d|ll|ve|re|s)\b`)
	pronounIWordPattern        = regexp.MustCompile(`\bi\b`)

	// nonTerminalAbbreviations end with a period that does not close a sentence.
	nonTerminalAbbreviations = map[string]struct{}{
		"cf": {}, "dr": {}, "e.g": {}, "eq": {}, "fig": {}, "i.e": {}, "jr": {},
		"mr": {}, "mrs": {}, "ms": {}, "prof": {}, "sr": {}, "st": {}, "vs": {},
	}
)

// Normalize collapses whitespace and optionally applies sentence casing.
func Normalize(text string, opts Options) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" || !opts.CapitalizeSentences {
		return normalized
	}

	normalized = capitalizeSentenceStarts(normalized)
	normalized = pronounIContractionPattern.ReplaceAllStringFunc(normalized, func(match string) string {
		return "I" + match[1:]
	})
	return capitalizeStandalonePronounI(normalized)
}

func capitalizeSentenceStarts(text string) string {
	runes := []rune(text)
	capitalize := true
	for i, r := range runes {
		switch {
		case capitalize && unicode.IsLetter(r):
			runes[i] = unicode.ToUpper(r)
			capitalize = false
		case capitalize && unicode.IsDigit(r):
			capitalize = false
		case r == '!' || r == '?':
			capitalize = true
		case r == '.':
			capitalize = isSentenceBoundary(runes, i)
		}
	}
	return string(runes)
}

// isSentenceBoundary reports whether the period at idx closes a sentence.
func isSentenceBoundary(runes []rune, idx int) bool {
	if idx+1 < len(runes) && !unicode.IsSpace(runes[idx+1]) {
		// Decimals, initialisms, and domains keep the period inside a token.
		return false
	}

	start := idx
	for start > 0 && (unicode.IsLetter(runes[start-1]) || runes[start-1] == '.') {
		start--
	}
	token := strings.ToLower(strings.Trim(string(runes[start:idx]), "."))
	_, abbreviation := nonTerminalAbbreviations[token]
	return !abbreviation
}

// capitalizeStandalonePronounI skips the "i" inside initialisms like "i.e.".
func capitalizeStandalonePronounI(text string) string {
	matches := pronounIWordPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var out strings.Builder
	out.Grow(len(text))
	last := 0
	for _, match := range matches {
		start, end := match[0], match[1]
		out.WriteString(text[last:start])
		if insideInitialism(text, start, end) {
			out.WriteString(text[start:end])
		} else {
			out.WriteString("I")
		}
		last = end
	}
	out.WriteString(text[last:])
	return out.String()
}

func insideInitialism(text string, start int, end int) bool {
	if end+1 < len(text) && text[end] == '.' && isASCIILetter(text[end+1]) {
		return true
	}
	return start > 1 && text[start-1] == '.' && isASCIILetter(text[start-2])
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
