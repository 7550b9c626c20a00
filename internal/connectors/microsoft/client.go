package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getset-labs/pox-mcp/internal/core/ports/driven"
)

// Microsoft Graph API base URLs.
const (
	graphBaseURL     = "https://graph.microsoft.com/v1.0"
	graphBetaBaseURL = "https://graph.microsoft.com/beta"
)

// Client executes Microsoft Graph API requests with bearer
// authentication and rate limiting.
type Client struct {
	baseURL       string
	betaBaseURL   string
	tokenProvider driven.TokenProvider
	rateLimiter   *RateLimiter
	httpClient    *http.Client
}

var _ driven.GraphClient = (*Client)(nil)

// NewClient creates a Graph client using tokens from tokenProvider.
func NewClient(tokenProvider driven.TokenProvider) *Client {
	return &Client{
		baseURL:       graphBaseURL,
		betaBaseURL:   graphBetaBaseURL,
		tokenProvider: tokenProvider,
		rateLimiter:   NewRateLimiter(),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURLs overrides the Graph endpoints. Used in tests.
func (c *Client) SetBaseURLs(v1, beta string) {
	c.baseURL = v1
	c.betaBaseURL = beta
}

// Do executes a Graph request. Responses with a JSON body are decoded
// into the result regardless of status; callers branch on StatusCode.
func (c *Client) Do(ctx context.Context, req driven.GraphRequest) (*driven.GraphResult, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	token, err := c.tokenProvider.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	base := c.baseURL
	if req.Beta {
		base = c.betaBaseURL
	}
	url := base + req.Path

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	if IsRateLimited(resp.StatusCode) {
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		c.rateLimiter.RecordRateLimitError(retryAfter)
	}

	result := &driven.GraphResult{StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(raw) > 0 && strings.Contains(resp.Header.Get("Content-Type"), "json") {
		if err := json.Unmarshal(raw, &result.Body); err != nil {
			// Graph occasionally returns non-object JSON; keep the raw
			// text under a synthetic key rather than failing the call.
			result.Body = map[string]any{"raw": string(raw)}
		}
	}

	slog.Debug("graph request",
		"method", req.Method, "path", req.Path, "status", resp.StatusCode)

	return result, nil
}
