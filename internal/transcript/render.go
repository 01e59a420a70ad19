package transcript

import (
	"strings"
	"time"

	"github.com/rbright/omirec/internal/session"
)

const timestampLayout = "15:04:05"

// RenderOptions selects which log lines appear and how.
type RenderOptions struct {
	Timestamps     bool
	IncludeControl bool
}

// FormatLine renders one entry as "[HH:MM:SS] text".
func FormatLine(entry session.TranscriptEntry) string {
	return "[" + entry.Timestamp.Local().Format(timestampLayout) + "] " + entry.Text
}

// Render joins log entries one per line.
func Render(entries []session.TranscriptEntry, opts RenderOptions) string {
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Kind == session.EntryControl && !opts.IncludeControl {
			continue
		}
		if opts.Timestamps {
			lines = append(lines, FormatLine(entry))
		} else {
			lines = append(lines, entry.Text)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Utterances returns the text of every recognized utterance in order.
func Utterances(entries []session.TranscriptEntry) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Kind == session.EntryUtterance {
			out = append(out, entry.Text)
		}
	}
	return out
}

// Since returns the wall time elapsed since ts, truncated to seconds.
func Since(ts time.Time, now time.Time) time.Duration {
	if ts.IsZero() || now.Before(ts) {
		return 0
	}
	return now.Sub(ts).Truncate(time.Second)
}
