// Package app dispatches parsed commands to the session owner or to a running owner over IPC.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/omirec/internal/audio"
	"github.com/rbright/omirec/internal/cli"
	"github.com/rbright/omirec/internal/config"
	"github.com/rbright/omirec/internal/doctor"
	"github.com/rbright/omirec/internal/ipc"
	"github.com/rbright/omirec/internal/logging"
	"github.com/rbright/omirec/internal/output"
	"github.com/rbright/omirec/internal/session"
	"github.com/rbright/omirec/internal/timer"
	"github.com/rbright/omirec/internal/transcript"
	"github.com/rbright/omirec/internal/version"
)

const (
	// queryTimeout bounds requests the owner answers immediately.
	queryTimeout = 2 * time.Second
	// commandTimeout bounds start/stop/toggle, which wait for the engine.
	commandTimeout = 30 * time.Second
)

type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(version.Name))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(version.Name))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(logging.Options{
		Level:      cfgLoaded.Config.Log.Level,
		Verbose:    parsed.Verbose,
		MaxSizeMB:  cfgLoaded.Config.Log.MaxSizeMB,
		MaxBackups: cfgLoaded.Config.Log.MaxBackups,
		MaxAgeDays: cfgLoaded.Config.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandConfig:
		return r.commandConfig(cfgLoaded.Config)
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop, commandTimeout)
	case cli.CommandClear:
		return r.forwardOrFail(ctx, ipc.CommandClear, queryTimeout)
	case cli.CommandLog:
		return r.commandLog(ctx, parsed)
	case cli.CommandCopy:
		return r.commandCopy(ctx, parsed, cfgLoaded.Config, logger)
	case cli.CommandStart:
		return r.forwardOrOwn(ctx, ipc.CommandStart, cfgLoaded, logger)
	case cli.CommandToggle:
		return r.forwardOrOwn(ctx, ipc.CommandToggle, cfgLoaded, logger)
	case cli.CommandTUI:
		return r.own(ctx, cfgLoaded, logger, r.tuiFront(cfgLoaded.Config, logger))
	case cli.CommandServe:
		return r.own(ctx, cfgLoaded, logger, r.serveFront(logger))
	case cli.CommandMCP:
		return r.own(ctx, cfgLoaded, logger, r.mcpFront(logger))
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) own(ctx context.Context, loaded config.Loaded, logger *slog.Logger, front frontEnd) int {
	if err := r.runOwner(ctx, loaded, logger, front); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("session owner failed", "error", err.Error())
		return 1
	}
	return 0
}

func (r Runner) commandConfig(cfg config.Config) int {
	out, err := cfg.Redacted().YAML()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	_, _ = r.Stdout.Write(out)
	return 0
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus, queryTimeout)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintln(r.Stdout, statusLine(resp))
	if resp.LiveTranscript != "" {
		fmt.Fprintln(r.Stdout, resp.LiveTranscript)
	}
	return 0
}

func statusLine(resp ipc.Response) string {
	state := resp.State
	if state == "" {
		state = "idle"
	}
	if state == "recording" {
		return state + " " + timer.Format(resp.ElapsedSeconds)
	}
	return state
}

func (r Runner) forwardOrFail(ctx context.Context, command string, timeout time.Duration) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command, timeout)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active omirec session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// forwardOrOwn sends command to a running owner, or becomes a one-shot owner.
func (r Runner) forwardOrOwn(ctx context.Context, command string, loaded config.Loaded, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command, commandTimeout)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.Message != "" {
			fmt.Fprintln(r.Stdout, resp.Message)
		}
		return 0
	}

	return r.own(ctx, loaded, logger, r.oneShotFront(logger))
}

// fetchLog reads the owner's transcript log.
func (r Runner) fetchLog(ctx context.Context) ([]session.TranscriptEntry, error) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return nil, err
	}
	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandLog, queryTimeout)
	if !handled {
		return nil, errors.New("no active omirec session")
	}
	if err != nil {
		return nil, err
	}
	return session.EntriesFromWire(resp.Log), nil
}

func (r Runner) commandLog(ctx context.Context, parsed cli.Parsed) int {
	entries, err := r.fetchLog(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprint(r.Stdout, transcript.Render(entries, transcript.RenderOptions{
		Timestamps:     parsed.Timestamps,
		IncludeControl: parsed.IncludeControl,
	}))
	return 0
}

func (r Runner) commandCopy(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	entries, err := r.fetchLog(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	text := transcript.Render(entries, transcript.RenderOptions{
		Timestamps:     parsed.Timestamps,
		IncludeControl: parsed.IncludeControl,
	})
	if err := output.NewClipboard(cfg.Clipboard.Argv, logger).Copy(ctx, text); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	lines := strings.Count(text, "\n")
	fmt.Fprintf(r.Stdout, "copied %d lines\n", lines)
	return 0
}

func tryForward(ctx context.Context, socketPath string, command string, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
