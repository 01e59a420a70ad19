// Package mcpserver exposes the recording session as MCP tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rbright/omirec/internal/session"
	"github.com/rbright/omirec/internal/timer"
	"github.com/rbright/omirec/internal/transcript"
	"github.com/rbright/omirec/internal/version"
)

const serverName = version.Name

const (
	ToolStartRecording = "start_recording"
	ToolStopRecording  = "stop_recording"
	ToolClearLog       = "clear_log"
	ToolSessionStatus  = "session_status"
	ToolTranscriptLog  = "transcript_log"
)

// Controller is the subset of session.Controller the tools drive.
type Controller interface {
	Snapshot() session.Snapshot
	StartSession(ctx context.Context) error
	StopSession(ctx context.Context) error
	ClearLog()
}

// Server binds MCP tool handlers to a controller.
type Server struct {
	ctrl   Controller
	logger *slog.Logger
	mcp    *server.MCPServer
}

// New registers every tool on a fresh MCP server.
func New(ctrl Controller, buildVersion string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		ctrl:   ctrl,
		logger: logger,
		mcp:    server.NewMCPServer(serverName, buildVersion, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool(ToolStartRecording,
		mcp.WithDescription("Start recording from the microphone with live speech recognition. No-op when a recording is already in progress."),
	), s.startRecording)

	s.mcp.AddTool(mcp.NewTool(ToolStopRecording,
		mcp.WithDescription("Stop the current recording and return the text recognized during it."),
	), s.stopRecording)

	s.mcp.AddTool(mcp.NewTool(ToolClearLog,
		mcp.WithDescription("Discard every entry in the transcript log."),
	), s.clearLog)

	s.mcp.AddTool(mcp.NewTool(ToolSessionStatus,
		mcp.WithDescription("Report the recording state, elapsed time, interim text, and last error."),
	), s.sessionStatus)

	s.mcp.AddTool(mcp.NewTool(ToolTranscriptLog,
		mcp.WithDescription("Return the transcript log, one line per entry."),
		mcp.WithBoolean("timestamps",
			mcp.Description("Prefix each line with [HH:MM:SS]"),
			mcp.DefaultBool(true),
		),
		mcp.WithBoolean("include_control",
			mcp.Description("Include recording started/stopped markers"),
			mcp.DefaultBool(false),
		),
	), s.transcriptLog)

	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over in/out until ctx is cancelled or in reaches EOF.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer, errLog io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	if errLog != nil {
		stdio.SetErrorLogger(log.New(errLog, "mcp: ", 0))
	}

	s.logger.Info("mcp server listening on stdio")
	if err := stdio.Listen(ctx, in, out); err != nil {
		if ctx.Err() != nil || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("serve mcp: %w", err)
	}
	return nil
}

func (s *Server) startRecording(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ctrl.StartSession(ctx); err != nil {
		s.logger.Warn("mcp start failed", "error", err.Error())
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(StatusText(s.ctrl.Snapshot())), nil
}

func (s *Server) stopRecording(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := s.ctrl.Snapshot().SessionID
	if err := s.ctrl.StopSession(ctx); err != nil {
		s.logger.Warn("mcp stop failed", "error", err.Error())
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap := s.ctrl.Snapshot()
	text := strings.Join(transcript.Utterances(sessionEntries(snap.Log, sessionID)), " ")
	if text == "" {
		return mcp.NewToolResultText("stopped; nothing was recognized"), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) clearLog(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.ctrl.ClearLog()
	return mcp.NewToolResultText("transcript log cleared"), nil
}

func (s *Server) sessionStatus(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StatusText(s.ctrl.Snapshot())), nil
}

func (s *Server) transcriptLog(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := transcript.RenderOptions{
		Timestamps:     req.GetBool("timestamps", true),
		IncludeControl: req.GetBool("include_control", false),
	}
	rendered := transcript.Render(s.ctrl.Snapshot().Log, opts)
	if rendered == "" {
		return mcp.NewToolResultText("transcript log is empty"), nil
	}
	return mcp.NewToolResultText(rendered), nil
}

// StatusText renders a snapshot as "key: value" lines.
func StatusText(snap session.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "state: %s\n", snap.State)
	if snap.Recording() {
		fmt.Fprintf(&b, "elapsed: %s\n", timer.Format(snap.ElapsedSeconds))
	}
	if snap.LiveTranscript != "" {
		fmt.Fprintf(&b, "live: %s\n", snap.LiveTranscript)
	}
	fmt.Fprintf(&b, "log_entries: %d\n", len(snap.Log))
	if snap.LastError != "" {
		fmt.Fprintf(&b, "error: %s\n", snap.LastError)
	}
	return b.String()
}

func sessionEntries(entries []session.TranscriptEntry, sessionID string) []session.TranscriptEntry {
	if sessionID == "" {
		return nil
	}
	out := make([]session.TranscriptEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.SessionID == sessionID {
			out = append(out, entry)
		}
	}
	return out
}
