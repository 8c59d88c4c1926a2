package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		BaseURL:       srv.URL + "/",
		MaxRetries:    retries,
		MaxConcurrent: 2,
		RetryBackoff:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"empty", "", true},
		{"no scheme", "localhost:8000", true},
		{"valid", "http://localhost:8000", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(Config{BaseURL: tt.baseURL})
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient(%q) error = %v, wantErr %v", tt.baseURL, err, tt.wantErr)
			}
		})
	}
}

func TestAnalyzeChunkMultipart(t *testing.T) {
	var gotPath, gotChannel, gotFilename string
	var gotAudio []byte

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotChannel = r.FormValue("channel")
		f, hdr, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		gotFilename = hdr.Filename
		gotAudio, _ = io.ReadAll(f)

		json.NewEncoder(w).Encode(map[string]any{
			"channel":     "caller",
			"final_score": 0.7,
			"transcript":  "hola",
			"alerts":      map[string]any{"profanity": []string{"x"}, "anger": true},
			"alert_count": 2,
			"all_scores":  map[string]float64{"Joy": 0.4},
		})
	}, 0)

	res, err := client.AnalyzeChunk(context.Background(), []byte("RIFFdata"), "")
	if err != nil {
		t.Fatalf("AnalyzeChunk failed: %v", err)
	}

	if gotPath != PathAnalyzeChunk {
		t.Errorf("Expected path %s, got %s", PathAnalyzeChunk, gotPath)
	}
	if gotChannel != "caller" {
		t.Errorf("Expected default channel caller, got %q", gotChannel)
	}
	if gotFilename != "chunk.wav" || string(gotAudio) != "RIFFdata" {
		t.Errorf("Unexpected audio part %q (%q)", gotFilename, gotAudio)
	}
	if res.FinalScore != 0.7 || res.Transcript != "hola" {
		t.Errorf("Unexpected result: %+v", res)
	}
	if res.Alerts.Count() != 2 || res.AlertCount != 2 || res.AllScores["Joy"] != 0.4 {
		t.Errorf("Unexpected alerts: %+v", res)
	}
}

func TestEndCallFields(t *testing.T) {
	tests := []struct {
		name      string
		op        Operator
		wantEmail bool
		wantName  bool
	}{
		{"both", Operator{Email: "a@b.c", Name: "Ana"}, true, true},
		{"blank values omitted", Operator{Email: "  ", Name: ""}, false, false},
		{"email only", Operator{Email: "a@b.c"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var form map[string][]string
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != PathEndCall {
					t.Errorf("Unexpected path %s", r.URL.Path)
				}
				r.ParseMultipartForm(1 << 20)
				form = r.MultipartForm.Value
				w.Write([]byte(`{"result":{"caller":{"final_score":0.5},"client":{"final_score":0.6},"saved":true}}`))
			}, 0)

			report, err := client.EndCall(context.Background(), []byte("wav"), tt.op)
			if err != nil {
				t.Fatalf("EndCall failed: %v", err)
			}
			if report.Caller == nil || report.Caller.FinalScore != 0.5 || report.Client.FinalScore != 0.6 {
				t.Errorf("Unexpected report: %+v", report)
			}

			if _, ok := form["agent_email"]; ok != tt.wantEmail {
				t.Errorf("agent_email present = %v, want %v", ok, tt.wantEmail)
			}
			if _, ok := form["agent_name"]; ok != tt.wantName {
				t.Errorf("agent_name present = %v, want %v", ok, tt.wantName)
			}
			if got := form["analyze_channels"]; len(got) != 1 || got[0] != "both" {
				t.Errorf("Expected analyze_channels=both, got %v", got)
			}
			if got := form["save"]; len(got) != 1 || got[0] != "true" {
				t.Errorf("Expected save=true, got %v", got)
			}
		})
	}
}

func TestEndCallMissingResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}, 0)

	if _, err := client.EndCall(context.Background(), []byte("wav"), Operator{}); err == nil {
		t.Error("Expected error for response without result")
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"total_audios":4}`))
	}, 3)

	stats, err := client.Statistics(context.Background())
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if stats.TotalAudios != 4 {
		t.Errorf("Expected 4 audios, got %d", stats.TotalAudios)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}

	cs := client.GetStats()
	if cs.TotalRetries != 2 || cs.SuccessRequests != 1 {
		t.Errorf("Unexpected client stats: %+v", cs)
	}
}

func TestPersistingCallsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		call func(*Client) error
	}{
		{"end call", func(c *Client) error {
			_, err := c.EndCall(context.Background(), []byte("wav"), Operator{Email: "a@b.c"})
			return err
		}},
		{"analyze audio", func(c *Client) error {
			_, err := c.AnalyzeAudio(context.Background(), "call.wav", []byte("wav"), "both", Operator{})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) == 1 {
					http.Error(w, "bad gateway", http.StatusBadGateway)
					return
				}
				w.Write([]byte(`{"result":{"saved":true}}`))
			}, 3)

			err := tt.call(client)
			var se *StatusError
			if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
				t.Errorf("Expected StatusError 502, got %v", err)
			}
			if got := atomic.LoadInt32(&calls); got != 1 {
				t.Errorf("Expected exactly one POST, got %d", got)
			}
			if client.GetStats().TotalRetries != 0 {
				t.Error("Expected no retries to be counted")
			}
		})
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "Record not found", http.StatusNotFound)
	}, 3)

	_, err := client.GetRecord(context.Background(), "abc")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("Expected StatusError 404, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected a single attempt, got %d", got)
	}
	if client.GetStats().FailedRequests != 1 {
		t.Error("Expected failed request to be counted")
	}
}

func TestCancelledRequest(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 3)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := client.AnalyzeChunk(ctx, []byte("wav"), "caller")
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !IsCancelled(err) {
			t.Errorf("Expected cancellation error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request did not return after cancel")
	}

	if client.GetStats().TotalRetries != 0 {
		t.Error("Expected no retries after cancellation")
	}
}

func TestListRecordsQuery(t *testing.T) {
	var query string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`[{"id_call":"1","final_score":0.3},{"id_call":"2"}]`))
	}, 0)

	records, err := client.ListRecords(context.Background(), RecordsQuery{Limit: 10, Offset: 20, AgentEmail: "a@b.c"})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 2 || records[0].IDCall != "1" {
		t.Errorf("Unexpected records: %+v", records)
	}
	if query != "agent_email=a%40b.c&limit=10&offset=20" {
		t.Errorf("Unexpected query %q", query)
	}

	if _, err := client.ListRecords(context.Background(), RecordsQuery{}); err != nil {
		t.Fatal(err)
	}
	if query != "limit=100&offset=0" {
		t.Errorf("Expected default paging, got %q", query)
	}
}

func TestListChannelRecords(t *testing.T) {
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`[]`))
	}, 0)

	if _, err := client.ListChannelRecords(context.Background(), "client", RecordsQuery{}); err != nil {
		t.Fatal(err)
	}
	if path != "/api/feeling-analytics/client-records" {
		t.Errorf("Unexpected path %s", path)
	}
	if _, err := client.ListChannelRecords(context.Background(), "agent", RecordsQuery{}); err == nil {
		t.Error("Expected error for unknown channel")
	}
}

func TestAnalyzeAudio(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		if r.FormValue("analyze_channels") != "mono" {
			t.Errorf("Expected mono, got %q", r.FormValue("analyze_channels"))
		}
		_, hdr, _ := r.FormFile("audio")
		if hdr == nil || hdr.Filename != "call.mp3" {
			t.Errorf("Unexpected file header %+v", hdr)
		}
		w.Write([]byte(`{"id_call":"x","is_stereo":false,"final_score":0.2}`))
	}, 0)

	res, err := client.AnalyzeAudio(context.Background(), "call.mp3", []byte("data"), "mono", Operator{})
	if err != nil {
		t.Fatalf("AnalyzeAudio failed: %v", err)
	}
	if res.IDCall != "x" || res.FinalScore != 0.2 {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestHasSpeech(t *testing.T) {
	tests := []struct {
		transcript string
		want       bool
	}{
		{"", false},
		{"   ", false},
		{"[Silence]", false},
		{"hello", true},
	}
	for _, tt := range tests {
		r := &ChunkResult{Transcript: tt.transcript}
		if got := r.HasSpeech(); got != tt.want {
			t.Errorf("HasSpeech(%q) = %v, want %v", tt.transcript, got, tt.want)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"500", &StatusError{Code: 500}, true},
		{"429", &StatusError{Code: 429}, true},
		{"400", &StatusError{Code: 400}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
