package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Backend routes.
const (
	PathAnalyzeChunk  = "/api/feeling-analytics/live/analyze-chunk"
	PathEndCall       = "/api/feeling-analytics/live/end-call"
	PathAnalyze       = "/api/feeling-analytics/analyze"
	PathRecords       = "/api/feeling-analytics/records"
	PathStatistics    = "/api/feeling-analytics/statistics"
	PathCallerRecords = "/api/feeling-analytics/caller-records"
	PathClientRecords = "/api/feeling-analytics/client-records"

	// DefaultChannel is the party a live chunk is attributed to.
	DefaultChannel = "caller"
)

// Client talks to the feeling-analytics backend
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains analytics client configuration
type Config struct {
	BaseURL       string
	Timeout       time.Duration // transport-level ceiling; callers bound each call with ctx
	MaxRetries    int
	MaxConcurrent int
	RetryBackoff  time.Duration // first backoff step, doubled per attempt
	UserAgent     string
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new analytics HTTP client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	u, err := url.Parse(config.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", config.BaseURL)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	if config.UserAgent == "" {
		config.UserAgent = "livecall/1.0"
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: config.MaxConcurrent,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// AnalyzeChunk submits one live segment for scoring.
func (c *Client) AnalyzeChunk(ctx context.Context, wav []byte, channel string) (*ChunkResult, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	body, contentType, err := buildMultipart("chunk.wav", wav, [][2]string{{"channel", channel}})
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	var result ChunkResult
	if err := c.execute(ctx, http.MethodPost, PathAnalyzeChunk, nil, body, contentType, &result); err != nil {
		return nil, fmt.Errorf("analyze chunk: %w", err)
	}
	return &result, nil
}

// EndCall submits the whole call for the consolidated two-party report and
// asks the backend to persist it.
func (c *Client) EndCall(ctx context.Context, wav []byte, op Operator) (*FinalReport, error) {
	fields := operatorFields(op)
	fields = append(fields, [2]string{"analyze_channels", "both"}, [2]string{"save", "true"})

	body, contentType, err := buildMultipart("call.wav", wav, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	var resp endCallResponse
	if err := c.executeOnce(ctx, http.MethodPost, PathEndCall, nil, body, contentType, &resp); err != nil {
		return nil, fmt.Errorf("end call: %w", err)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("end call: response has no result")
	}
	return resp.Result, nil
}

// AnalyzeAudio runs the batch analysis on a recorded file.
// channels is one of both, caller, client or mono.
func (c *Client) AnalyzeAudio(ctx context.Context, filename string, data []byte, channels string, op Operator) (*SentimentAnalysisResult, error) {
	if channels == "" {
		channels = "both"
	}
	fields := append([][2]string{{"analyze_channels", channels}}, operatorFields(op)...)

	body, contentType, err := buildMultipart(filename, data, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	var result SentimentAnalysisResult
	if err := c.executeOnce(ctx, http.MethodPost, PathAnalyze, nil, body, contentType, &result); err != nil {
		return nil, fmt.Errorf("analyze audio: %w", err)
	}
	return &result, nil
}

// ListRecords pages through stored calls, optionally filtered by agent.
func (c *Client) ListRecords(ctx context.Context, q RecordsQuery) ([]Record, error) {
	var records []Record
	if err := c.execute(ctx, http.MethodGet, PathRecords, q.values(), nil, "", &records); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// ListChannelRecords pages through the per-party tables (caller or client).
func (c *Client) ListChannelRecords(ctx context.Context, channel string, q RecordsQuery) ([]Record, error) {
	var path string
	switch channel {
	case "caller":
		path = PathCallerRecords
	case "client":
		path = PathClientRecords
	default:
		return nil, fmt.Errorf("unknown channel %q", channel)
	}
	var records []Record
	if err := c.execute(ctx, http.MethodGet, path, q.values(), nil, "", &records); err != nil {
		return nil, fmt.Errorf("list %s records: %w", channel, err)
	}
	return records, nil
}

// GetRecord fetches the full analysis of a stored call.
func (c *Client) GetRecord(ctx context.Context, id string) (*SentimentAnalysisResult, error) {
	if id == "" {
		return nil, fmt.Errorf("record id cannot be empty")
	}
	var result SentimentAnalysisResult
	if err := c.execute(ctx, http.MethodGet, PathRecords+"/"+url.PathEscape(id), nil, nil, "", &result); err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return &result, nil
}

// Statistics fetches aggregate history figures.
func (c *Client) Statistics(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	if err := c.execute(ctx, http.MethodGet, PathStatistics, nil, nil, "", &stats); err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	return &stats, nil
}

func (q RecordsQuery) values() url.Values {
	v := url.Values{}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	v.Set("limit", strconv.Itoa(limit))
	v.Set("offset", strconv.Itoa(max(q.Offset, 0)))
	if email := strings.TrimSpace(q.AgentEmail); email != "" {
		v.Set("agent_email", email)
	}
	return v
}

// operatorFields returns agent fields, omitting blank values entirely.
func operatorFields(op Operator) [][2]string {
	var fields [][2]string
	if email := strings.TrimSpace(op.Email); email != "" {
		fields = append(fields, [2]string{"agent_email", email})
	}
	if name := strings.TrimSpace(op.Name); name != "" {
		fields = append(fields, [2]string{"agent_name", name})
	}
	return fields
}

// buildMultipart creates a multipart/form-data body with an "audio" file part
func buildMultipart(filename string, audio []byte, fields [][2]string) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// execute performs a request under the concurrency limit, retrying with
// exponential backoff while the error is retryable.
func (c *Client) execute(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, out any) error {
	return c.send(ctx, c.config.MaxRetries, method, path, query, body, contentType, out)
}

// executeOnce performs a request that the backend persists. It is never
// repeated: a failure goes back to the caller, who decides whether to retry.
func (c *Client) executeOnce(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, out any) error {
	return c.send(ctx, 0, method, path, query, body, contentType, out)
}

func (c *Client) send(ctx context.Context, maxRetries int, method, path string, query url.Values, body []byte, contentType string, out any) error {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := c.config.RetryBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				c.incrementFailedRequests()
				return ctx.Err()
			}
		}

		err := c.doRequest(ctx, method, path, query, body, contentType, out)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return nil
		}

		lastErr = err
		if !isRetryableError(err) || ctx.Err() != nil {
			break
		}
	}

	c.incrementFailedRequests()
	if attempt := maxRetries; attempt > 0 && isRetryableError(lastErr) {
		return fmt.Errorf("failed after %d attempts: %w", attempt+1, lastErr)
	}
	return lastErr
}

// doRequest performs a single HTTP request against the backend
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, out any) error {
	target := c.config.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for in-flight requests to finish, or for ctx to expire.
func (c *Client) Close(ctx context.Context) error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		select {
		case c.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.httpClient.CloseIdleConnections()
	return nil
}
