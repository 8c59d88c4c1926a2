package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/meter"
	"github.com/TF-SoftwareEmergentes/livecall/internal/output"
	"github.com/TF-SoftwareEmergentes/livecall/internal/session"
)

const (
	levelBars      = 24
	transcriptTail = 320
)

var barGlyphs = []rune("▁▂▃▄▅▆▇█")

// Controller is the part of the session manager the view drives.
type Controller interface {
	Snapshot() session.State
	Stop() (session.State, error)
	Finalize(ctx context.Context, op analytics.Operator) (*analytics.FinalReport, error)
}

type eventMsg session.Event

type eventsClosedMsg struct{}

type stoppedMsg struct {
	state session.State
	err   error
}

type finalizedMsg struct {
	report *analytics.FinalReport
	err    error
}

// LiveModel is a Bubble Tea model following one live call.
type LiveModel struct {
	ctrl     Controller
	events   <-chan session.Event
	operator analytics.Operator
	timeout  time.Duration

	state    session.State
	level    meter.Reading
	lastErr  string
	width    int
	height   int
	quitting bool
}

// NewLiveModel creates the live view. events is normally a subscription to
// the manager's bus taken before recording started.
func NewLiveModel(ctrl Controller, events <-chan session.Event, op analytics.Operator, finalizeTimeout time.Duration) LiveModel {
	return LiveModel{
		ctrl:     ctrl,
		events:   events,
		operator: op,
		timeout:  finalizeTimeout,
		state:    ctrl.Snapshot(),
	}
}

// State returns the call state as last seen by the view.
func (m LiveModel) State() session.State {
	return m.state
}

// Init implements tea.Model.
func (m LiveModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m LiveModel) stop() tea.Cmd {
	return func() tea.Msg {
		st, err := m.ctrl.Stop()
		return stoppedMsg{state: st, err: err}
	}
}

func (m LiveModel) finalize() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		report, err := m.ctrl.Finalize(ctx, m.operator)
		return finalizedMsg{report: report, err: err}
	}
}

// Update implements tea.Model.
func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Stop):
			if m.state.Status == session.StatusRecording {
				return m, m.stop()
			}
		case key.Matches(msg, keys.Finalize):
			if m.state.Status == session.StatusStopped {
				m.state.Status = session.StatusFinalizing
				m.lastErr = ""
				return m, m.finalize()
			}
		}
		return m, nil

	case eventMsg:
		m.apply(session.Event(msg))
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, nil

	case stoppedMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}
		m.state = msg.state
		return m, nil

	case finalizedMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
			m.state.Status = session.StatusStopped
			return m, nil
		}
		m.state.Status = session.StatusFinalized
		m.state.Report = msg.report
		return m, nil
	}

	return m, nil
}

func (m *LiveModel) apply(ev session.Event) {
	if ev.SessionID != "" {
		m.state.SessionID = ev.SessionID
	}

	switch data := ev.Data.(type) {
	case session.StateChange:
		m.state.Status = data.To
	case session.Tick:
		m.state.Duration = data.Duration
	case meter.Reading:
		m.level = data
	case session.SegmentInfo:
		m.state.SegmentCount = data.Index + 1
	case session.ChunkUpdate:
		m.state.Current = data.Result
		m.state.ChunkCount = data.ChunkCount
		m.state.Transcript = data.Transcript
		m.state.Alerts = data.Alerts
		m.state.AlertCount = data.AlertCount
	case session.ChunkFailure:
		m.lastErr = fmt.Sprintf("segment %d: %s", data.Index+1, data.Error)
	case *analytics.FinalReport:
		m.state.Status = session.StatusFinalized
		m.state.Report = data
	case map[string]string:
		if ev.Type == session.EventCaptureEnded {
			m.lastErr = data["reason"]
		}
	}
}

// View implements tea.Model.
func (m LiveModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("LiveCall"))
	b.WriteString("\n")

	status := string(m.state.Status)
	b.WriteString(LabelStyle.Render("Status"))
	b.WriteString(StatusStyle(status).Render(status))
	b.WriteString("\n")
	b.WriteString(LabelStyle.Render("Duration"))
	b.WriteString(ValueStyle.Render(output.FormatDuration(time.Duration(m.state.Duration) * time.Second)))
	b.WriteString("\n")
	b.WriteString(LabelStyle.Render("Level"))
	b.WriteString(renderLevel(m.level))
	b.WriteString("\n\n")

	boxes := []string{
		renderStatBox("Segments", m.state.SegmentCount),
		renderStatBox("Analyzed", m.state.ChunkCount),
		renderStatBox("Alerts", m.state.AlertCount),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")

	if r := m.state.Current; r != nil {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("Score"))
		b.WriteString(ValueStyle.Render(fmt.Sprintf("%.2f", r.FinalScore)))
		b.WriteString("\n")
		if r.Advice != "" {
			b.WriteString(LabelStyle.Render("Advice"))
			b.WriteString(ValueStyle.Render(r.Advice))
			b.WriteString("\n")
		}
	}

	if len(m.state.Alerts) > 0 {
		b.WriteString(LabelStyle.Render("Flagged"))
		b.WriteString(ErrorStyle.Render(strings.Join(m.state.Alerts, ", ")))
		b.WriteString("\n")
	}

	if t := tail(m.state.Transcript, transcriptTail); t != "" {
		box := BoxStyle
		if m.width > 4 {
			box = box.Width(m.width - 4)
		}
		b.WriteString(box.Render(t))
		b.WriteString("\n")
	}

	if rep := m.state.Report; rep != nil {
		b.WriteString("\n")
		b.WriteString(SuccessStyle.Render("Report ready"))
		if rep.IDCall != "" {
			b.WriteString(ValueStyle.Render(" " + rep.IDCall))
		}
		if rep.Caller != nil {
			b.WriteString(ValueStyle.Render(fmt.Sprintf(" (caller %.2f)", rep.Caller.FinalScore)))
		}
		b.WriteString("\n")
	}

	if m.lastErr != "" {
		b.WriteString(ErrorStyle.Render(m.lastErr))
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render(m.help()))
	return b.String()
}

func (m LiveModel) help() string {
	switch m.state.Status {
	case session.StatusRecording:
		return "s stop • q quit"
	case session.StatusStopped:
		return "f finalize • q quit"
	default:
		return "q quit"
	}
}

func renderStatBox(label string, value int) string {
	content := StatLabelStyle.Render(label) + "\n" + StatValueStyle.Render(fmt.Sprintf("%d", value))
	return StatBoxStyle.Render(content)
}

func renderLevel(r meter.Reading) string {
	bars := meter.BarsFor(r.Level, levelBars)
	out := make([]rune, len(bars))
	for i, v := range bars {
		idx := int(v * float64(len(barGlyphs)-1))
		idx = max(0, min(idx, len(barGlyphs)-1))
		out[i] = barGlyphs[idx]
	}
	style := LabelStyle.UnsetWidth()
	if r.Active {
		style = SuccessStyle
	}
	return style.Render(string(out))
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n:])
}

// keyMap defines key bindings.
type keyMap struct {
	Quit     key.Binding
	Stop     key.Binding
	Finalize key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop"),
	),
	Finalize: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "finalize"),
	),
}

// RunLive runs the live view until the user quits and returns the last
// state it observed.
func RunLive(model LiveModel) (session.State, error) {
	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return model.state, err
	}
	if lm, ok := final.(LiveModel); ok {
		return lm.state, nil
	}
	return model.state, nil
}
