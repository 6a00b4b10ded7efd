package lucid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "http://localhost:8002"

	// KeywordWorkspaceID is the tenant id the service expects for free-text
	// keyword summaries.
	KeywordWorkspaceID = 1

	apiKeyHeader   = "X-API-KEY"
	requestTimeout = 30 * time.Second
)

// DefaultTopics is used when a summary request carries no topics.
var DefaultTopics = []string{"finance", "technology", "world"}

// Client is a typed client for the Lucid insight service. All summary-producing
// methods recover transport and service failures into a SummaryResult; only
// GetInsight and the auth endpoints propagate errors to the caller.
type Client struct {
	client *resty.Client
	apiKey string
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(requestTimeout)
	if apiKey != "" {
		client.SetHeader(apiKeyHeader, apiKey)
	}

	return &Client{client: client, apiKey: apiKey}
}

// APIKey returns the key this client authenticates with, if any.
func (c *Client) APIKey() string {
	return c.apiKey
}

type HealthStatus struct {
	Status string `json:"status"`
}

// Healthy reports whether the service considers itself up. A healthy response
// also implies the presented API key was accepted.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}

func (c *Client) HealthCheck(ctx context.Context) (HealthStatus, error) {
	var health HealthStatus
	if err := c.get(ctx, "/health", &health); err != nil {
		return HealthStatus{}, err
	}
	return health, nil
}

type APIKeyGrant struct {
	APIKey string `json:"api_key"`
	UserID string `json:"user_id"`
}

// CreateAPIKey requests a new credential for the given display name. The
// client does not need to hold a key for this call.
func (c *Client) CreateAPIKey(ctx context.Context, userName string) (APIKeyGrant, error) {
	var grant APIKeyGrant
	err := c.post(ctx, "/create_api_key", map[string]string{"user_name": userName}, &grant)
	if err != nil {
		return APIKeyGrant{}, err
	}
	return grant, nil
}

type Insight struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// GetInsight fetches a stored insight by id. Transport errors propagate; the
// summary methods apply their own recovery on top of this.
func (c *Client) GetInsight(ctx context.Context, id int64) (Insight, error) {
	var insight Insight
	if err := c.get(ctx, fmt.Sprintf("/insights/%d", id), &insight); err != nil {
		return Insight{}, err
	}
	return insight, nil
}

type summaryResponse struct {
	Success   bool   `json:"success"`
	InsightID int64  `json:"insight_id"`
	Message   string `json:"message"`
}

// CreateNewsSummary generates a news summary for a free-text query. Topics
// default to DefaultTopics when empty; the timespan is normalized before being
// sent. The returned result is always user-presentable.
func (c *Client) CreateNewsSummary(ctx context.Context, query string, topics []string, timespan string) SummaryResult {
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	timeframe := NormalizeTimespan(timespan)

	slog.Info("requesting news summary", "query", query, "topics", topics, "timeframe", timeframe)

	body := map[string]any{
		"user_prompt":  query,
		"timeframe":    timeframe,
		"workspace_id": KeywordWorkspaceID,
	}

	var resp summaryResponse
	if err := c.post(ctx, "/generate_keyword_news_summary", body, &resp); err != nil {
		slog.Error("news summary request failed", "error", err)
		return SummaryResult{
			Status: StatusUnavailable,
			Text:   fmt.Sprintf("Unable to generate news summary due to an error: %v", err),
		}
	}

	return c.resolveSummary(ctx, resp)
}

// CreateStreamNewsSummary generates a summary over explicit stream ids instead
// of a free-text query. Same normalization and recovery as CreateNewsSummary.
func (c *Client) CreateStreamNewsSummary(ctx context.Context, streamIDs []int64, workspaceID int64, timespan, userPrompt string) SummaryResult {
	timeframe := NormalizeTimespan(timespan)

	slog.Info("requesting stream news summary", "stream_ids", streamIDs, "workspace_id", workspaceID, "timeframe", timeframe)

	body := map[string]any{
		"stream_ids":   streamIDs,
		"workspace_id": workspaceID,
		"timeframe":    timeframe,
		"user_prompt":  userPrompt,
	}

	var resp summaryResponse
	if err := c.post(ctx, "/generate_stream_news_summary", body, &resp); err != nil {
		slog.Error("stream news summary request failed", "error", err)
		return SummaryResult{
			Status: StatusUnavailable,
			Text:   fmt.Sprintf("Unable to generate news summary due to an error: %v", err),
		}
	}

	return c.resolveSummary(ctx, resp)
}

// resolveSummary turns the service's response into a result, attempting one
// follow-up insight retrieval when an id is present. Retrieval failures are
// recovered locally: the user still gets the insight id.
func (c *Client) resolveSummary(ctx context.Context, resp summaryResponse) SummaryResult {
	if !resp.Success {
		return SummaryResult{
			Status:  StatusFailed,
			Text:    fmt.Sprintf("Unable to generate news summary: %s", resp.Message),
			Message: resp.Message,
		}
	}

	if resp.InsightID == 0 {
		return SummaryResult{
			Status: StatusSubmitted,
			Text:   "News summary request submitted. No insight ID was returned.",
		}
	}

	insight, err := c.GetInsight(ctx, resp.InsightID)
	if err != nil || insight.Content == "" {
		if err != nil {
			slog.Warn("could not retrieve generated insight", "insight_id", resp.InsightID, "error", err)
		}
		return SummaryResult{
			Status:    StatusPending,
			InsightID: resp.InsightID,
			Text:      fmt.Sprintf("News summary generated successfully. Insight ID: %d", resp.InsightID),
		}
	}

	return SummaryResult{
		Status:    StatusSucceeded,
		InsightID: resp.InsightID,
		Text:      insight.Content,
	}
}

// NormalizeTimespan maps a user-supplied timespan token onto what the service
// accepts: tokens already ending in "h" or "d" pass through verbatim, an empty
// token falls back to "24h", anything else is treated as hours.
func NormalizeTimespan(timespan string) string {
	if timespan == "" {
		return "24h"
	}
	if strings.HasSuffix(timespan, "h") || strings.HasSuffix(timespan, "d") {
		return timespan
	}
	return timespan + "h"
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	res, err := c.client.R().SetContext(ctx).Get(path)
	return c.handleResponse(res, err, path, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	return c.handleResponse(res, err, path, out)
}

func (c *Client) handleResponse(res *resty.Response, err error, path string, out any) error {
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}

	if !res.IsSuccess() {
		return fmt.Errorf("request to %s returned status %d: %s", path, res.StatusCode(), strings.TrimSpace(res.String()))
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(res.Body(), out); err != nil {
		return fmt.Errorf("error parsing response from %s: %w", path, err)
	}

	return nil
}
