// Package tui renders the recording session in the terminal and forwards key presses to the controller.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rbright/omirec/internal/fsm"
	"github.com/rbright/omirec/internal/session"
	"github.com/rbright/omirec/internal/timer"
	"github.com/rbright/omirec/internal/transcript"
)

const (
	noticeTimeout  = 4 * time.Second
	commandTimeout = 30 * time.Second
	liveCursor     = "▌"
)

// Controller is the display-facing subset of session.Controller.
type Controller interface {
	Snapshot() session.Snapshot
	StartSession(ctx context.Context) error
	StopSession(ctx context.Context) error
	ClearLog()
}

// Copier writes the transcript to the clipboard.
type Copier interface {
	Copy(ctx context.Context, text string) error
}

// Model is the root bubbletea model.
type Model struct {
	ctrl    Controller
	copier  Copier
	updates *updates

	snap session.Snapshot

	width  int
	height int
	scroll int

	busy     bool
	notice   string
	noticeID int
	failed   bool
}

// New builds a model over ctrl. copier may be nil, which disables copy.
func New(ctrl Controller, copier Copier) Model {
	return Model{
		ctrl:    ctrl,
		copier:  copier,
		updates: newUpdates(),
		snap:    ctrl.Snapshot(),
	}
}

// Observer returns the session observer that feeds this model.
func (m Model) Observer() session.Observer {
	return m.updates
}

// Init starts listening for snapshots.
func (m Model) Init() tea.Cmd {
	return m.updates.wait()
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case snapshotMsg:
		m.snap = msg.Snapshot
		return m, m.updates.wait()

	case commandDoneMsg:
		m.busy = false
		if msg.Err == nil || errors.Is(msg.Err, session.ErrStartCancelled) {
			return m, nil
		}
		// Session failures already surface through the snapshot's error bar.
		var sessionErr *session.Error
		if errors.As(msg.Err, &sessionErr) {
			return m, nil
		}
		return m.setNotice(fmt.Sprintf("%s failed: %v", msg.Action, msg.Err), true)

	case copiedMsg:
		if msg.Err != nil {
			return m.setNotice("copy failed: "+msg.Err.Error(), true)
		}
		return m.setNotice(fmt.Sprintf("copied %d %s", msg.Lines, plural(msg.Lines, "line", "lines")), false)

	case clearNoticeMsg:
		if msg.ID == m.noticeID {
			m.notice = ""
			m.failed = false
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyQuit, keyQuitUpper, keyCtrlC:
		return m, tea.Quit

	case keySpace:
		if m.busy {
			return m, nil
		}
		m.busy = true
		if m.snap.State == fsm.StateIdle {
			return m, startCmd(m.ctrl)
		}
		return m, stopCmd(m.ctrl)

	case keyClear:
		m.scroll = 0
		return m, clearCmd(m.ctrl)

	case keyCopy:
		if m.copier == nil {
			return m.setNotice("clipboard not configured", true)
		}
		return m, copyCmd(m.copier, m.snap.Log)

	case keyUp, keyK:
		if m.scroll < len(m.snap.Log)-1 {
			m.scroll++
		}
		return m, nil

	case keyDown, keyJ:
		if m.scroll > 0 {
			m.scroll--
		}
		return m, nil

	case keyEnd:
		m.scroll = 0
		return m, nil
	}
	return m, nil
}

func (m Model) setNotice(text string, failed bool) (tea.Model, tea.Cmd) {
	m.noticeID++
	m.notice = text
	m.failed = failed
	id := m.noticeID
	return m, tea.Tick(noticeTimeout, func(time.Time) tea.Msg {
		return clearNoticeMsg{ID: id}
	})
}

func startCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return commandDoneMsg{Action: "start", Err: ctrl.StartSession(ctx)}
	}
}

func stopCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return commandDoneMsg{Action: "stop", Err: ctrl.StopSession(ctx)}
	}
}

func clearCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctrl.ClearLog()
		return commandDoneMsg{Action: "clear"}
	}
}

func copyCmd(copier Copier, log []session.TranscriptEntry) tea.Cmd {
	return func() tea.Msg {
		lines := transcript.Utterances(log)
		err := copier.Copy(context.Background(), transcript.Render(log, transcript.RenderOptions{}))
		return copiedMsg{Lines: len(lines), Err: err}
	}
}

// View renders the header, log, live text, and footer.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.divider())
	b.WriteString("\n")

	for _, line := range m.visibleLog() {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.snap.LiveTranscript != "" || m.snap.Recording() {
		b.WriteString(liveStyle.Render(m.snap.LiveTranscript + liveCursor))
		b.WriteString("\n")
	}

	b.WriteString(m.divider())
	b.WriteString("\n")

	if m.snap.LastError != "" {
		b.WriteString(errorStyle.Render("! " + m.snap.LastError))
		b.WriteString("\n")
	}
	if m.notice != "" {
		if m.failed {
			b.WriteString(errorStyle.Render(m.notice))
		} else {
			b.WriteString(noticeStyle.Render(m.notice))
		}
		b.WriteString("\n")
	}

	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	parts := []string{titleStyle.Render("omirec")}

	switch m.snap.State {
	case fsm.StateRecording:
		parts = append(parts, recordingStyle.Render("● REC"), recordingStyle.Render(timer.Format(m.snap.ElapsedSeconds)))
	case fsm.StateRequestingPermission:
		parts = append(parts, pendingStyle.Render("◌ STARTING"))
	case fsm.StateStopping:
		parts = append(parts, pendingStyle.Render("◌ STOPPING"))
	default:
		parts = append(parts, idleStyle.Render("○ IDLE"))
	}

	if m.scroll > 0 {
		parts = append(parts, pendingStyle.Render(fmt.Sprintf("↑%d", m.scroll)))
	}
	return strings.Join(parts, "  ")
}

// visibleLog returns the formatted log lines that fit above the live text.
func (m Model) visibleLog() []string {
	entries := m.snap.Log
	end := len(entries) - m.scroll
	if end < 0 {
		end = 0
	}

	start := 0
	if room := m.logRoom(); room >= 0 && end-room > start {
		start = end - room
	}

	lines := make([]string, 0, end-start)
	for _, entry := range entries[start:end] {
		stamp := timestampStyle.Render("[" + entry.Timestamp.Local().Format("15:04:05") + "]")
		text := entry.Text
		if entry.Kind == session.EntryControl {
			text = controlStyle.Render(text)
		}
		lines = append(lines, stamp+" "+text)
	}
	return lines
}

// logRoom is the number of log rows available, or -1 before the first resize.
func (m Model) logRoom() int {
	if m.height <= 0 {
		return -1
	}
	// header, two dividers, live line, footer
	used := 5
	if m.snap.LastError != "" {
		used++
	}
	if m.notice != "" {
		used++
	}
	room := m.height - used
	if room < 1 {
		room = 1
	}
	return room
}

func (m Model) divider() string {
	width := m.width
	if width <= 0 {
		width = 40
	}
	return dividerStyle.Render(strings.Repeat("─", width))
}

func (m Model) renderFooter() string {
	action := "start"
	if m.snap.State != fsm.StateIdle {
		action = "stop"
	}
	keys := [][2]string{
		{"space", action},
		{"c", "clear"},
		{"y", "copy"},
		{"↑/↓", "scroll"},
		{"q", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, footerKeyStyle.Render(k[0])+" "+footerDescStyle.Render(k[1]))
	}
	return strings.Join(parts, "  ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
