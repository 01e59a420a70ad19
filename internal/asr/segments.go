package asr

import "strings"

// utterance accumulates finalized fragments until the backend marks the end of speech.
type utterance struct {
	segments []string
}

func (u *utterance) commit(text string) {
	u.segments = appendSegment(u.segments, text)
}

// preview renders the committed fragments followed by the current interim.
func (u *utterance) preview(interim string) string {
	return cleanSegment(strings.Join(appendSegment(append([]string(nil), u.segments...), interim), " "))
}

// flush returns the full utterance and resets the accumulator.
func (u *utterance) flush() string {
	text := cleanSegment(strings.Join(u.segments, " "))
	u.segments = nil
	return text
}

func (u *utterance) empty() bool {
	return len(u.segments) == 0
}

// appendSegment merges continuation segments to avoid duplicate transcript growth.
func appendSegment(segments []string, transcript string) []string {
	transcript = cleanSegment(transcript)
	if transcript == "" {
		return segments
	}
	if len(segments) == 0 {
		return append(segments, transcript)
	}

	last := segments[len(segments)-1]
	switch {
	case transcript == last:
		return segments
	case strings.HasPrefix(transcript, last):
		segments[len(segments)-1] = transcript
		return segments
	case strings.HasPrefix(last, transcript):
		return segments
	default:
		return append(segments, transcript)
	}
}

// cleanSegment normalizes transcript whitespace.
func cleanSegment(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
