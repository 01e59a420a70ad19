package ipc

import "time"

// Commands understood by the owning process.
const (
	CommandStatus = "status"
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandToggle = "toggle"
	CommandClear  = "clear"
	CommandLog    = "log"
)

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK             bool       `json:"ok"`
	State          string     `json:"state,omitempty"`
	Message        string     `json:"message,omitempty"`
	Error          string     `json:"error,omitempty"`
	ElapsedSeconds int        `json:"elapsed_seconds,omitempty"`
	LiveTranscript string     `json:"live_transcript,omitempty"`
	Log            []LogEntry `json:"log,omitempty"`
}

// LogEntry is the wire form of one transcript log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
}
