package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/meter"
	"github.com/TF-SoftwareEmergentes/livecall/internal/session"
)

type fakeController struct {
	state       session.State
	stopped     int
	finalized   int
	finalizeErr error
	report      *analytics.FinalReport
}

func (f *fakeController) Snapshot() session.State { return f.state }

func (f *fakeController) Stop() (session.State, error) {
	f.stopped++
	f.state.Status = session.StatusStopped
	return f.state, nil
}

func (f *fakeController) Finalize(ctx context.Context, op analytics.Operator) (*analytics.FinalReport, error) {
	f.finalized++
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	return f.report, nil
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newModel(ctrl *fakeController) (LiveModel, chan session.Event) {
	ch := make(chan session.Event, 8)
	return NewLiveModel(ctrl, ch, analytics.Operator{Email: "a@example.com"}, time.Second), ch
}

func update(t *testing.T, m LiveModel, msg tea.Msg) (LiveModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	lm, ok := next.(LiveModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return lm, cmd
}

func TestLiveModelAppliesEvents(t *testing.T) {
	ctrl := &fakeController{state: session.State{Status: session.StatusRecording}}
	m, _ := newModel(ctrl)

	m, cmd := update(t, m, eventMsg{Type: session.EventTick, SessionID: "abc", Data: session.Tick{Duration: 65}})
	if cmd == nil {
		t.Error("Expected a command waiting for the next event")
	}
	m, _ = update(t, m, eventMsg{Type: session.EventSegment, Data: session.SegmentInfo{Index: 2}})
	m, _ = update(t, m, eventMsg{Type: session.EventLevel, Data: meter.Reading{Level: 0.8, Active: true}})
	m, _ = update(t, m, eventMsg{Type: session.EventChunk, Data: session.ChunkUpdate{
		Result:     &analytics.ChunkResult{FinalScore: 0.42, Advice: "slow down"},
		ChunkCount: 2,
		Transcript: "hello world",
		Alerts:     []string{"darn", "anger"},
		AlertCount: 2,
	}})

	st := m.State()
	if st.SessionID != "abc" || st.Duration != 65 || st.SegmentCount != 3 || st.ChunkCount != 2 {
		t.Errorf("Unexpected state %+v", st)
	}

	view := m.View()
	for _, want := range []string{"recording", "1m05s", "0.42", "slow down", "hello world", "darn, anger", "s stop"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q:\n%s", want, view)
		}
	}
}

func TestLiveModelStopThenFinalize(t *testing.T) {
	ctrl := &fakeController{
		state:  session.State{Status: session.StatusRecording},
		report: &analytics.FinalReport{IDCall: "call-7", Caller: &analytics.ChannelAnalysis{FinalScore: 0.6}},
	}
	m, _ := newModel(ctrl)

	// finalize is ignored while recording
	m, cmd := update(t, m, runeKey("f"))
	if cmd != nil || ctrl.finalized != 0 {
		t.Fatal("Finalize should be ignored while recording")
	}

	m, cmd = update(t, m, runeKey("s"))
	if cmd == nil {
		t.Fatal("Expected stop command")
	}
	m, _ = update(t, m, cmd())
	if ctrl.stopped != 1 || m.State().Status != session.StatusStopped {
		t.Fatalf("Expected stopped, got %s", m.State().Status)
	}

	m, cmd = update(t, m, runeKey("f"))
	if cmd == nil {
		t.Fatal("Expected finalize command")
	}
	if m.State().Status != session.StatusFinalizing {
		t.Errorf("Expected finalizing while the report is pending, got %s", m.State().Status)
	}
	m, _ = update(t, m, cmd())
	if m.State().Status != session.StatusFinalized {
		t.Fatalf("Expected finalized, got %s", m.State().Status)
	}
	if !strings.Contains(m.View(), "call-7") {
		t.Errorf("View should show the report id:\n%s", m.View())
	}
}

func TestLiveModelFinalizeFailure(t *testing.T) {
	ctrl := &fakeController{
		state:       session.State{Status: session.StatusStopped},
		finalizeErr: errors.New("backend unavailable"),
	}
	m, _ := newModel(ctrl)

	m, cmd := update(t, m, runeKey("f"))
	m, _ = update(t, m, cmd())

	if m.State().Status != session.StatusStopped {
		t.Errorf("Expected stopped after failure, got %s", m.State().Status)
	}
	if !strings.Contains(m.View(), "backend unavailable") {
		t.Errorf("View should show the error:\n%s", m.View())
	}
}

func TestLiveModelQuit(t *testing.T) {
	m, _ := newModel(&fakeController{state: session.State{Status: session.StatusIdle}})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
	if m.View() != "" {
		t.Error("View should be empty after quitting")
	}
}

func TestWaitForEventClosed(t *testing.T) {
	ch := make(chan session.Event)
	close(ch)
	if _, ok := waitForEvent(ch)().(eventsClosedMsg); !ok {
		t.Error("Expected eventsClosedMsg on a closed channel")
	}
}

func TestTail(t *testing.T) {
	if got := tail("short", 10); got != "short" {
		t.Errorf("tail = %q", got)
	}
	if got := tail("abcdef", 3); got != "…def" {
		t.Errorf("tail = %q", got)
	}
}
