// Package output copies the rendered transcript log to the system clipboard.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrNothingToCopy is returned when the rendered log is empty.
var ErrNothingToCopy = errors.New("transcript log is empty")

const clipboardTimeout = 2 * time.Second

// Clipboard pipes text into the configured clipboard command.
type Clipboard struct {
	argv   []string
	logger *slog.Logger
}

// NewClipboard constructs a clipboard writer around argv, e.g. wl-copy.
func NewClipboard(argv []string, logger *slog.Logger) *Clipboard {
	return &Clipboard{argv: argv, logger: logger}
}

// Copy writes text to the clipboard.
func (c *Clipboard) Copy(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrNothingToCopy
	}

	ctx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	if err := runCommandWithInput(ctx, c.argv, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	if c.logger != nil {
		c.logger.Debug("transcript copied to clipboard", "chars", len(text))
	}
	return nil
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
