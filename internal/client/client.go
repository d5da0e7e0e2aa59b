// Package client is the wire-protocol wrapper for the CareGuide agent
// backend: create a session, post a user utterance, fetch new events. It is
// deliberately thin, with no retries or backoff, so the polling policy stays
// in one place (the poller) and this layer remains a trivially testable
// transport.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/careguide/careguide-go/internal/metrics"
	"github.com/careguide/careguide-go/internal/models"
)

// Client talks to the agent backend over HTTP.
type Client struct {
	baseURL    string
	agentID    string
	agentName  string
	httpClient *http.Client
	metrics    *metrics.Collector
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient substitutes the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records operation timings into the given collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the backend at baseURL. agentID and agentName tag
// sessions created through this client.
func New(baseURL, agentID, agentName string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		agentID:   agentID,
		agentName: agentName,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createSessionRequest struct {
	AgentID    string `json:"agentId"`
	AgentName  string `json:"agentName"`
	Profile    string `json:"profile"`
	MaxResults int    `json:"maxResults"`
}

type postMessageRequest struct {
	Text string `json:"text"`
}

// CreateSession requests a new backend session tagged with the profile.
// The returned descriptor starts at offset zero.
func (c *Client) CreateSession(ctx context.Context, profile models.AudienceProfile) (models.SessionDescriptor, error) {
	defer c.record("session_create", time.Now())

	body := createSessionRequest{
		AgentID:    c.agentID,
		AgentName:  c.agentName,
		Profile:    profile.String(),
		MaxResults: profile.MaxResults(),
	}

	var desc models.SessionDescriptor
	if err := c.post(ctx, c.baseURL+"/sessions", body, &desc); err != nil {
		return models.SessionDescriptor{}, &SessionCreationError{Err: err}
	}
	desc.Profile = profile
	desc.LastOffset = 0
	return desc, nil
}

// PostMessage appends a user utterance to the backend conversation. The call
// does not retry; retry policy belongs to the caller.
func (c *Client) PostMessage(ctx context.Context, sessionID, text string) error {
	defer c.record("message_post", time.Now())

	endpoint := fmt.Sprintf("%s/sessions/%s/messages", c.baseURL, url.PathEscape(sessionID))
	if err := c.post(ctx, endpoint, postMessageRequest{Text: text}, nil); err != nil {
		return &MessagePostError{Err: err}
	}
	return nil
}

// ListEvents fetches all events at or after sinceOffset, in ascending offset
// order. An empty log tail is an empty slice, not an error.
func (c *Client) ListEvents(ctx context.Context, sessionID string, sinceOffset int) ([]models.RawEvent, error) {
	defer c.record("event_list", time.Now())

	endpoint := fmt.Sprintf("%s/sessions/%s/events?since=%s",
		c.baseURL, url.PathEscape(sessionID), strconv.Itoa(sinceOffset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &EventFetchError{Err: fmt.Errorf("create request: %w", err)}
	}

	var events []models.RawEvent
	if err := c.do(req, &events); err != nil {
		return nil, &EventFetchError{Err: err}
	}
	return events, nil
}

// post sends a JSON body and decodes the JSON response into result when
// result is non-nil.
func (c *Client) post(ctx context.Context, endpoint string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server error: %s - %s", resp.Status, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) record(op string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordTiming(op, time.Since(start))
	}
}
