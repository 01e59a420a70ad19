package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/omirec/internal/config"
	"github.com/rbright/omirec/internal/fsm"
	"github.com/rbright/omirec/internal/ipc"
	"github.com/rbright/omirec/internal/mcpserver"
	"github.com/rbright/omirec/internal/output"
	"github.com/rbright/omirec/internal/session"
	"github.com/rbright/omirec/internal/transcript"
	"github.com/rbright/omirec/internal/tui"
	"github.com/rbright/omirec/internal/version"
)

const (
	acquireProbeTimeout = 180 * time.Millisecond
	acquireRetries      = 8
)

// frontEnd drives the owned controller until it returns; its return ends the process.
type frontEnd func(ctx context.Context, controller *session.Controller) error

// runOwner takes the runtime socket, serves IPC, and runs front next to the session loop.
func (r Runner) runOwner(ctx context.Context, loaded config.Loaded, logger *slog.Logger, front frontEnd) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}

	listener, err := ipc.Acquire(ctx, socketPath, acquireProbeTimeout, acquireRetries, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			return fmt.Errorf("omirec is already running (socket %s)", socketPath)
		}
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	built, err := buildComponents(loaded.Config, logger)
	if err != nil {
		return err
	}
	defer built.Close()
	controller := built.controller

	logger.Info("session owner started", "socket", socketPath, "backend", loaded.Config.Engine.Backend)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		return controller.Run(runCtx)
	})
	g.Go(func() error {
		if err := ipc.Serve(runCtx, listener, controller); err != nil {
			return fmt.Errorf("ipc server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return front(runCtx, controller)
	})

	err = g.Wait()
	logger.Info("session owner stopped", "log_entries", len(controller.Snapshot().Log))
	return err
}

func (r Runner) tuiFront(cfg config.Config, logger *slog.Logger) frontEnd {
	return func(ctx context.Context, controller *session.Controller) error {
		model := tui.New(controller, output.NewClipboard(cfg.Clipboard.Argv, logger))
		controller.Subscribe(model.Observer())
		return tui.Run(ctx, model, tui.Options{Input: r.Stdin, Output: r.Stdout, AltScreen: true})
	}
}

func (r Runner) serveFront(logger *slog.Logger) frontEnd {
	return func(ctx context.Context, _ *session.Controller) error {
		fmt.Fprintln(r.Stdout, "serving; press Ctrl+C to exit")
		<-ctx.Done()
		logger.Info("serve interrupted")
		return nil
	}
}

func (r Runner) mcpFront(logger *slog.Logger) frontEnd {
	return func(ctx context.Context, controller *session.Controller) error {
		return mcpserver.New(controller, version.Version, logger).Serve(ctx, r.Stdin, r.Stdout, r.Stderr)
	}
}

// oneShotFront starts a session and exits once it is back to idle, printing what it heard.
// It serves start/toggle when no owner is running, so a hotkey can drive a whole recording.
func (r Runner) oneShotFront(logger *slog.Logger) frontEnd {
	return func(ctx context.Context, controller *session.Controller) error {
		ended := make(chan session.Snapshot, 1)
		var recorded bool
		controller.Subscribe(session.ObserverFunc(func(snap session.Snapshot) {
			if snap.Recording() {
				recorded = true
				return
			}
			if recorded && snap.State == fsm.StateIdle {
				recorded = false
				select {
				case ended <- snap:
				default:
				}
			}
		}))

		if err := controller.StartSession(ctx); err != nil {
			if errors.Is(err, session.ErrStartCancelled) {
				fmt.Fprintln(r.Stdout, "cancelled")
				return nil
			}
			return err
		}
		fmt.Fprintln(r.Stdout, "recording; run `omirec stop` or `omirec toggle` to finish")

		var snap session.Snapshot
		select {
		case snap = <-ended:
		case <-ctx.Done():
			// The session loop shares ctx and stops the engine on its way out.
			logger.Info("one-shot recording interrupted")
			snap = controller.Snapshot()
		}

		var heard []session.TranscriptEntry
		for _, entry := range snap.Log {
			if entry.SessionID == snap.SessionID {
				heard = append(heard, entry)
			}
		}
		if text := strings.Join(transcript.Utterances(heard), " "); text != "" {
			fmt.Fprintln(r.Stdout, text)
		}
		if snap.LastError != "" {
			return errors.New(snap.LastError)
		}
		return nil
	}
}
