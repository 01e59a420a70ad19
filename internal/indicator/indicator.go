// Package indicator handles desktop notifications and audio cue playback.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/omirec/internal/config"
)

// Desktop is the session notifier backed by freedesktop notifications and Pulse cues.
type Desktop struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu                    sync.Mutex
	desktopNotificationID uint32
	soundMu               sync.Mutex
}

// NewDesktop creates a notifier from config.
func NewDesktop(cfg config.IndicatorConfig, logger *slog.Logger) *Desktop {
	return &Desktop{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
	}
}

// ShowRecording raises a persistent recording notification.
func (d *Desktop) ShowRecording(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notifyDesktop(ctx, urgencyNormal, 0, d.messages.recording)
	})
}

// ShowStopped dismisses the recording notification.
func (d *Desktop) ShowStopped(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, d.dismissDesktop)
}

// ShowError replaces the current notification with a timed error message.
func (d *Desktop) ShowError(ctx context.Context, text string) {
	if !d.cfg.Enable {
		return
	}
	if strings.TrimSpace(text) == "" {
		text = d.messages.errorText
	}
	timeout := d.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notifyDesktop(ctx, urgencyCritical, timeout, text)
	})
}

func (d *Desktop) CueStart(context.Context) { d.playCue(cueStart) }

func (d *Desktop) CueStop(context.Context) { d.playCue(cueStop) }

func (d *Desktop) CueError(context.Context) { d.playCue(cueError) }

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (d *Desktop) notifyDesktop(ctx context.Context, level urgency, timeoutMS int, text string) error {
	d.mu.Lock()
	replaceID := d.desktopNotificationID
	d.mu.Unlock()

	appName := strings.TrimSpace(d.cfg.DesktopAppName)
	if appName == "" {
		appName = "omirec"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, level, timeoutMS)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.desktopNotificationID = id
	d.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (d *Desktop) dismissDesktop(ctx context.Context) error {
	d.mu.Lock()
	id := d.desktopNotificationID
	d.desktopNotificationID = 0
	d.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes a notification call with a bounded timeout.
func (d *Desktop) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		d.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (d *Desktop) playCue(kind cueKind) {
	if !d.cfg.SoundEnable {
		return
	}
	go func() {
		d.soundMu.Lock()
		defer d.soundMu.Unlock()
		if err := emitCue(kind, d.cfg); err != nil {
			d.log("indicator audio cue failed", err)
		}
	}()
}

func (d *Desktop) log(message string, err error) {
	if d.logger == nil || err == nil {
		return
	}
	d.logger.Debug(message, "error", err.Error())
}
