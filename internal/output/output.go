package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/notify"
	"github.com/TF-SoftwareEmergentes/livecall/internal/session"
)

var (
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	alertStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) RecordingStarted(st session.State) {
	fmt.Fprintf(f.w, "🎙️  Recording started (session %s)\n", st.SessionID)
	fmt.Fprintf(f.w, "%s\n", mutedStyle.Render("Press Ctrl+C to stop"))
}

func (f *Formatter) RecordingStopped(st session.State) {
	fmt.Fprintf(f.w, "⏹️  Recording stopped (%s, %d segments, %d analyzed)\n",
		FormatDuration(time.Duration(st.Duration)*time.Second), st.SegmentCount, st.ChunkCount)
}

func (f *Formatter) Segment(info session.SegmentInfo) {
	note := ""
	if !info.Uploaded {
		note = mutedStyle.Render(" (too short, not analyzed)")
	}
	fmt.Fprintf(f.w, "🧩 Segment %d: %.1fs, %d bytes%s\n", info.Index+1, info.Seconds, info.Bytes, note)
}

func (f *Formatter) Chunk(u session.ChunkUpdate) {
	r := u.Result
	fmt.Fprintf(f.w, "📊 Score %.2f (valence %.2f, arousal %.2f)", r.FinalScore, r.ValenceScore, r.ArousalScore)
	if r.HasSpeech() {
		fmt.Fprintf(f.w, ": %q", strings.TrimSpace(r.Transcript))
	}
	fmt.Fprintln(f.w)
	if r.Advice != "" {
		fmt.Fprintf(f.w, "   💡 %s\n", r.Advice)
	}
	if n := r.Alerts.Count(); n > 0 {
		fmt.Fprintf(f.w, "   %s\n", alertStyle.Render("🚨 "+strings.Join(alertWords(r.Alerts), ", ")))
	}
}

func (f *Formatter) ChunkFailed(fail session.ChunkFailure) {
	fmt.Fprintf(f.w, "⚠️  Segment %d not analyzed: %s\n", fail.Index+1, fail.Error)
}

func (f *Formatter) Finalizing() {
	fmt.Fprintf(f.w, "🤖 Generating final report...\n")
}

func (f *Formatter) Report(report *analytics.FinalReport) {
	fmt.Fprintf(f.w, "\n%s\n", headingStyle.Render("Call report"))
	if report.IDCall != "" {
		fmt.Fprintf(f.w, "  ID:        %s\n", report.IDCall)
	}
	f.channel("Caller", report.Caller)
	f.channel("Client", report.Client)
	if c := report.Comparison; c != nil {
		fmt.Fprintf(f.w, "  Dominant:  %s (synchrony %.2f)\n", c.DominantSpeaker, c.EmotionalSynchrony)
	}
	if n := report.Alerts.Count(); n > 0 {
		fmt.Fprintf(f.w, "  %s\n", alertStyle.Render(fmt.Sprintf("Alerts:    %s", strings.Join(alertWords(report.Alerts), ", "))))
	}
	if report.Saved {
		fmt.Fprintf(f.w, "✅ Report saved\n")
	}
}

func (f *Formatter) channel(label string, c *analytics.ChannelAnalysis) {
	if c == nil {
		return
	}
	fmt.Fprintf(f.w, "  %-10s %.2f", label+":", c.FinalScore)
	if len(c.TopEmotions) > 0 {
		names := make([]string, 0, len(c.TopEmotions))
		for _, e := range c.TopEmotions {
			names = append(names, fmt.Sprintf("%s %.0f%%", e.Emotion, e.Score*100))
		}
		fmt.Fprintf(f.w, " %s", mutedStyle.Render("("+strings.Join(names, ", ")+")"))
	}
	fmt.Fprintln(f.w)
}

func (f *Formatter) Analysis(res *analytics.SentimentAnalysisResult) {
	fmt.Fprintf(f.w, "%s\n", headingStyle.Render("Analysis of "+res.Filename))
	fmt.Fprintf(f.w, "  Channels:  %s\n", strings.Join(res.ChannelsAnalyzed, ", "))
	fmt.Fprintf(f.w, "  Score:     %.2f (valence %.2f, arousal %.2f)\n", res.FinalScore, res.ValenceScore, res.ArousalScore)
	f.channel("Caller", res.Caller)
	f.channel("Client", res.Client)
	if len(res.Keywords) > 0 {
		fmt.Fprintf(f.w, "  Keywords:  %s\n", strings.Join(res.Keywords, ", "))
	}
}

func (f *Formatter) RecordListHeader() {
	fmt.Fprintf(f.w, "📁 Calls:\n\n")
}

func (f *Formatter) RecordListItem(r analytics.Record) {
	agent := r.AgentEmail
	if agent == "" {
		agent = "-"
	}
	fmt.Fprintf(f.w, "  %-12s %.2f  %-6s %s %s\n", r.IDCall, r.FinalScore, r.AnalysisType, agent, mutedStyle.Render(r.AnalysisDate))
}

func (f *Formatter) Statistics(s *analytics.Statistics) {
	fmt.Fprintf(f.w, "%s\n", headingStyle.Render("History"))
	fmt.Fprintf(f.w, "  Calls:        %d\n", s.TotalAudios)
	fmt.Fprintf(f.w, "  Avg score:    %.2f\n", s.AvgFinalScore)
	fmt.Fprintf(f.w, "  Avg caller:   %.2f\n", s.AvgCallerScore)
	fmt.Fprintf(f.w, "  Avg client:   %.2f\n", s.AvgClientScore)
	fmt.Fprintf(f.w, "  Stereo:       %.0f%%\n", s.StereoPercentage)
	fmt.Fprintf(f.w, "  Top emotion:  %s\n", s.TopEmotion)
}

func (f *Formatter) HistoryItem(c *notify.CallCompleted) {
	score := "-"
	if c.Report != nil && c.Report.Caller != nil {
		score = fmt.Sprintf("%.2f", c.Report.Caller.FinalScore)
	}
	fmt.Fprintf(f.w, "  %s  %s  %5s  %d alerts  %s\n",
		c.FinalizedAt.Local().Format("2006-01-02 15:04"),
		c.SessionID[:min(8, len(c.SessionID))],
		FormatDuration(time.Duration(c.DurationSeconds)*time.Second),
		c.AlertCount,
		score,
	)
}

func (f *Formatter) Saved(path string) {
	fmt.Fprintf(f.w, "💾 Recording saved: %s\n", path)
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func alertWords(a *analytics.Alerts) []string {
	words := append([]string{}, a.Profanity...)
	if a.Anger {
		words = append(words, "anger")
	}
	return words
}

// FormatDuration renders d as 1h02m03s, 2m03s or 3s.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
