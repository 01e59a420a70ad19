package tui

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rbright/omirec/internal/session"
)

// updates hands the newest snapshot to the program without blocking the session loop.
// Older undelivered snapshots are replaced.
type updates struct {
	latest chan session.Snapshot
}

func newUpdates() *updates {
	return &updates{latest: make(chan session.Snapshot, 1)}
}

// SessionChanged is called on the controller loop; it never blocks.
func (u *updates) SessionChanged(snap session.Snapshot) {
	select {
	case <-u.latest:
	default:
	}
	select {
	case u.latest <- snap:
	default:
	}
}

func (u *updates) wait() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg{Snapshot: <-u.latest}
	}
}

// Options configures Run.
type Options struct {
	Input     io.Reader
	Output    io.Writer
	AltScreen bool
}

// Run drives the model until the user quits or ctx is cancelled.
func Run(ctx context.Context, model Model, opts Options) error {
	programOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.AltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	}

	if _, err := tea.NewProgram(model, programOpts...).Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}
