package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/notify"
)

func openTest(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func call(id string, finalized time.Time) *notify.CallCompleted {
	return &notify.CallCompleted{
		Event:       notify.EventCallFinalized,
		SessionID:   id,
		FinalizedAt: finalized,
		Operator:    analytics.Operator{Email: "agent@example.com"},
		Transcript:  "hello " + id,
		Alerts:      []string{"x", "anger"},
		AlertCount:  2,
		Report: &analytics.FinalReport{
			Caller: &analytics.ChannelAnalysis{Channel: "caller", FinalScore: 0.42},
			Alerts: &analytics.Alerts{Profanity: []string{"x"}, Anger: true},
			Saved:  true,
		},
		AudioBytes: 3,
		Audio:      []byte{1, 2, 3},
	}
}

func TestStoreAndGet(t *testing.T) {
	a := openTest(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := a.Notify(context.Background(), call("s1", now)); err != nil {
		t.Fatalf("notify: %v", err)
	}

	got, err := a.Get("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SessionID != "s1" || got.Transcript != "hello s1" || got.AlertCount != 2 {
		t.Errorf("Unexpected call %+v", got)
	}
	if !got.FinalizedAt.Equal(now) {
		t.Errorf("Expected finalized at %v, got %v", now, got.FinalizedAt)
	}
	if got.Report == nil || got.Report.Caller == nil || got.Report.Caller.FinalScore != 0.42 || !got.Report.Alerts.Anger {
		t.Errorf("Report not preserved: %+v", got.Report)
	}
	if got.Operator.Email != "agent@example.com" {
		t.Errorf("Operator not preserved: %+v", got.Operator)
	}
	if got.Audio != nil {
		t.Error("Audio must not be archived")
	}
}

func TestGetMissing(t *testing.T) {
	a := openTest(t)
	if _, err := a.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	a := openTest(t)
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		if err := a.Notify(context.Background(), call(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	calls, err := a.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 3 || calls[0].SessionID != "c" || calls[2].SessionID != "a" {
		t.Errorf("Unexpected order: %v", ids(calls))
	}

	limited, _ := a.List(2)
	if len(limited) != 2 || limited[0].SessionID != "c" {
		t.Errorf("Unexpected limited list: %v", ids(limited))
	}
}

func TestDelete(t *testing.T) {
	a := openTest(t)
	a.Notify(context.Background(), call("s1", time.Now()))

	if err := a.Delete("s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Get("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Notify(context.Background(), call("s1", time.Now())); err != nil {
		t.Fatal(err)
	}
	a.Close()

	b, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, err := b.Get("s1"); err != nil {
		t.Errorf("Expected call to survive reopen, got %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("Expected error without path")
	}
}

func ids(calls []*notify.CallCompleted) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.SessionID
	}
	return out
}
