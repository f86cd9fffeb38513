// Package client implements the HTTP client for the workflow, run, and
// node-schema APIs. The editor core owns no persistence of its own; every
// durable read and write goes through this boundary.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tcmartin/floweditor/pkg/auth"
	"github.com/tcmartin/floweditor/pkg/graph"
	"github.com/tcmartin/floweditor/pkg/models"
	"github.com/tcmartin/floweditor/pkg/runlog"
)

// Workflow is the persistence payload for a saved workflow
type Workflow struct {
	// ID of the workflow, empty before the first save
	ID models.FlexID `json:"id,omitempty"`

	// Name of the workflow
	Name string `json:"name"`

	// Graph is the node/edge payload
	Graph graph.WireGraph `json:"graph"`
}

// Client talks to the backend API
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *auth.TokenSource
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource attaches a bearer token source
func WithTokenSource(ts *auth.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// New creates an API client for the given base URL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current bearer token, or empty when unauthenticated
func (c *Client) Token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StreamURL returns the SSE endpoint for a run
func (c *Client) StreamURL(runID string) string {
	return fmt.Sprintf("%s/runs/%s/stream", c.baseURL, url.PathEscape(runID))
}

// GetWorkflow retrieves a workflow by ID
func (c *Client) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var wf Workflow
	if err := c.doJSON(ctx, http.MethodGet, "/workflows/"+url.PathEscape(id), nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// SaveWorkflow persists a workflow. On a structured validation failure the
// returned error is a *models.ValidationError carrying the offending node.
func (c *Client) SaveWorkflow(ctx context.Context, wf *Workflow) (*Workflow, error) {
	var saved Workflow
	if err := c.doJSON(ctx, http.MethodPost, "/workflows", wf, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// RunWorkflow starts a run and returns the run ID
func (c *Client) RunWorkflow(ctx context.Context, workflowID string) (string, error) {
	var resp struct {
		RunID models.FlexID `json:"run_id"`
	}
	path := fmt.Sprintf("/workflows/%s/run", url.PathEscape(workflowID))
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}
	if resp.RunID == "" {
		return "", fmt.Errorf("run response missing run_id")
	}
	return resp.RunID.String(), nil
}

// ListRuns retrieves the run list for a workflow. Both the paginated object
// shape and the bare-array shape are accepted; malformed payloads yield an
// empty list.
func (c *Client) ListRuns(ctx context.Context, workflowID string) ([]models.RunSummary, error) {
	var list models.RunList
	path := "/runs?workflow_id=" + url.QueryEscape(workflowID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	if list.Items == nil {
		return []models.RunSummary{}, nil
	}
	return list.Items, nil
}

// GetRunLogs retrieves the persisted logs for a run
func (c *Client) GetRunLogs(ctx context.Context, runID string) ([]runlog.Entry, error) {
	var resp struct {
		Logs []runlog.Entry `json:"logs"`
	}
	path := fmt.Sprintf("/runs/%s/logs", url.PathEscape(runID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Logs == nil {
		return []runlog.Entry{}, nil
	}
	return resp.Logs, nil
}

// GetNodeSchema retrieves the JSON-schema-like descriptor for a node label,
// used only by the generic fallback form.
func (c *Client) GetNodeSchema(ctx context.Context, label string) (map[string]interface{}, error) {
	var schema map[string]interface{}
	path := "/node_schema/" + url.PathEscape(label)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// doJSON executes one JSON request/response round trip. Non-2xx responses
// become errors; a body matching the structured validation shape becomes a
// *models.ValidationError.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if verr := parseValidationError(raw); verr != nil {
			return verr
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// Malformed server payloads degrade to the zero value at the
		// boundary rather than propagating as errors.
		return nil
	}
	return nil
}

// parseValidationError recognizes the {message, node_id} error shape
func parseValidationError(raw []byte) *models.ValidationError {
	var verr models.ValidationError
	if err := json.Unmarshal(raw, &verr); err != nil {
		return nil
	}
	if verr.Message == "" {
		return nil
	}
	return &verr
}
