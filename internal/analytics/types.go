package analytics

import "strings"

// SilenceTranscript is the placeholder the backend returns when no speech
// was recognised in a chunk.
const SilenceTranscript = "[Silence]"

// Alerts flags problematic content detected in a chunk or a whole call
type Alerts struct {
	Profanity []string `json:"profanity"`
	Anger     bool     `json:"anger"`
}

// Count returns the number of alert entries these flags contribute: one per
// profanity word plus one for anger.
func (a *Alerts) Count() int {
	if a == nil {
		return 0
	}
	n := len(a.Profanity)
	if a.Anger {
		n++
	}
	return n
}

// ChunkResult is the backend's analysis of a single live segment
type ChunkResult struct {
	Channel      string             `json:"channel"`
	FinalScore   float64            `json:"final_score"`
	ValenceScore float64            `json:"valence_score"`
	ArousalScore float64            `json:"arousal_score"`
	Advice       string             `json:"advice"`
	Transcript   string             `json:"transcript"`
	Alerts       *Alerts            `json:"alerts,omitempty"`
	AlertCount   int                `json:"alert_count,omitempty"`
	AllScores    map[string]float64 `json:"all_scores,omitempty"`
}

// HasSpeech reports whether the transcript carries text worth keeping.
func (r *ChunkResult) HasSpeech() bool {
	t := strings.TrimSpace(r.Transcript)
	return t != "" && t != SilenceTranscript
}

// Emotion is a single scored emotion
type Emotion struct {
	Emotion string  `json:"emotion"`
	Score   float64 `json:"score"`
}

// ChannelAnalysis holds the scores for one party of a call
type ChannelAnalysis struct {
	Channel      string             `json:"channel"`
	FinalScore   float64            `json:"final_score"`
	ValenceScore float64            `json:"valence_score"`
	ArousalScore float64            `json:"arousal_score"`
	TopEmotions  []Emotion          `json:"top_emotions"`
	AllScores    map[string]float64 `json:"all_scores"`
	Keywords     []string           `json:"keywords"`
}

// Comparison contrasts the caller and client channels
type Comparison struct {
	ScoreDifference               float64            `json:"score_difference"`
	ValenceDifference             float64            `json:"valence_difference"`
	ArousalDifference             float64            `json:"arousal_difference"`
	DominantSpeaker               string             `json:"dominant_speaker"`
	EmotionalSynchrony            float64            `json:"emotional_synchrony"`
	SignificantEmotionDifferences map[string]float64 `json:"significant_emotion_differences,omitempty"`
}

// FinalReport is the consolidated analysis of a finalized call
type FinalReport struct {
	IDCall     string           `json:"id_call,omitempty"`
	Filename   string           `json:"filename,omitempty"`
	Caller     *ChannelAnalysis `json:"caller"`
	Client     *ChannelAnalysis `json:"client,omitempty"`
	Comparison *Comparison      `json:"comparison,omitempty"`
	Transcript string           `json:"transcript,omitempty"`
	Alerts     *Alerts          `json:"alerts,omitempty"`
	AlertCount int              `json:"alert_count,omitempty"`
	AgentEmail string           `json:"agent_email,omitempty"`
	AgentName  string           `json:"agent_name,omitempty"`
	Saved      bool             `json:"saved,omitempty"`
}

type endCallResponse struct {
	Result *FinalReport `json:"result"`
}

// SentimentAnalysisResult is the full analysis of an uploaded recording
type SentimentAnalysisResult struct {
	IDCall           string             `json:"id_call"`
	DNI              string             `json:"dni"`
	CallDate         string             `json:"call_date"`
	Filename         string             `json:"filename"`
	AnalysisType     string             `json:"analysis_type,omitempty"`
	IsStereo         bool               `json:"is_stereo"`
	ChannelsAnalyzed []string           `json:"channels_analyzed"`
	FinalScore       float64            `json:"final_score"`
	ValenceScore     float64            `json:"valence_score"`
	ArousalScore     float64            `json:"arousal_score"`
	TopEmotions      []Emotion          `json:"top_emotions"`
	AllScores        map[string]float64 `json:"all_scores"`
	Keywords         []string           `json:"keywords"`
	ProcessingTime   float64            `json:"processing_time"`
	AnalysisDate     string             `json:"analysis_date"`
	Caller           *ChannelAnalysis   `json:"caller,omitempty"`
	Client           *ChannelAnalysis   `json:"client,omitempty"`
	Comparison       *Comparison        `json:"comparison,omitempty"`
}

// Record is one entry of the stored call history
type Record struct {
	IDCall           string   `json:"id_call"`
	Filename         string   `json:"filename"`
	FinalScore       float64  `json:"final_score"`
	AnalysisDate     string   `json:"analysis_date"`
	AnalysisType     string   `json:"analysis_type"`
	IsStereo         bool     `json:"is_stereo"`
	ChannelsAnalyzed []string `json:"channels_analyzed"`
	RecordType       string   `json:"record_type,omitempty"`
	ChannelName      string   `json:"channel_name,omitempty"`
	AgentEmail       string   `json:"agent_email,omitempty"`
	AgentName        string   `json:"agent_name,omitempty"`
}

// Statistics aggregates the stored call history
type Statistics struct {
	TotalAudios      int     `json:"total_audios"`
	AvgFinalScore    float64 `json:"avg_final_score"`
	AvgCallerScore   float64 `json:"avg_caller_score"`
	AvgClientScore   float64 `json:"avg_client_score"`
	StereoPercentage float64 `json:"stereo_percentage"`
	TopEmotion       string  `json:"top_emotion"`
}

// Operator identifies the agent a finalized call is attributed to
type Operator struct {
	Email string `json:"agent_email,omitempty" yaml:"email"`
	Name  string `json:"agent_name,omitempty" yaml:"name"`
}

// RecordsQuery pages through the call history
type RecordsQuery struct {
	Limit      int
	Offset     int
	AgentEmail string
}
