// Package orchestrator is the HTTP client of the investigation backend.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkt.systems/noctrace/core"
	"pkt.systems/noctrace/internal/protocol"
	"pkt.systems/noctrace/schema"
	"pkt.systems/pslog"
)

const (
	// DefaultInvestigatePath opens an investigation stream.
	DefaultInvestigatePath = "/api/investigate"
	// DefaultVisualizationPath looks up a step visualization.
	DefaultVisualizationPath = "/api/visualization"
	// DefaultHistoryPath saves and deletes transcripts.
	DefaultHistoryPath = "/api/history"
	// DefaultRequestTimeout bounds non-streaming requests.
	DefaultRequestTimeout = 30 * time.Second

	maxErrorBody = 4 << 10
	maxJSONBody  = 8 << 20
)

// Config configures the orchestrator client.
type Config struct {
	BaseURL           string
	InvestigatePath   string
	VisualizationPath string
	HistoryPath       string
	// Token is sent as a bearer token when set.
	Token   string
	Headers map[string]string
	// RequestTimeout bounds visualization and history calls. The investigation
	// stream is never timed out by the client.
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "orchestrator error"
	}
	status := strings.TrimSpace(e.Status)
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("orchestrator returned %s", status)
	}
	return fmt.Sprintf("orchestrator returned %s: %s", status, body)
}

// Client talks to the orchestrator over HTTP.
type Client struct {
	base    *url.URL
	cfg     Config
	http    *http.Client
	headers http.Header
}

var (
	_ core.Orchestrator = (*Client)(nil)
	_ core.HistoryStore = (*Client)(nil)
)

// New constructs a client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("orchestrator base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse orchestrator base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("orchestrator base url must be http or https: %q", raw)
	}
	if cfg.InvestigatePath == "" {
		cfg.InvestigatePath = DefaultInvestigatePath
	}
	if cfg.VisualizationPath == "" {
		cfg.VisualizationPath = DefaultVisualizationPath
	}
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = DefaultHistoryPath
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: &loggingTransport{next: http.DefaultTransport}}
	}
	headers := http.Header{}
	for key, value := range cfg.Headers {
		headers.Set(key, value)
	}
	if cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+cfg.Token)
	}
	return &Client{base: base, cfg: cfg, http: httpClient, headers: headers}, nil
}

// StartRun opens the investigation stream for req.
func (c *Client) StartRun(ctx context.Context, req schema.StartRunRequest) (core.EventStream, error) {
	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, c.cfg.InvestigatePath, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	log := pslog.Ctx(ctx)
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		log.Warn("orchestrator unexpected content type", "content_type", ct)
	}
	return protocol.NewStream(ctx, resp.Body), nil
}

// FetchVisualization returns the visualization payload of one step.
func (c *Client) FetchVisualization(ctx context.Context, req schema.VisualizationRequest) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, c.cfg.VisualizationPath, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
	if err != nil {
		return nil, fmt.Errorf("read visualization: %w", err)
	}
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, errors.New("visualization response is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// SaveHistory stores record and returns its id.
func (c *Client) SaveHistory(ctx context.Context, record schema.HistoryRecord) (schema.HistoryID, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, c.cfg.HistoryPath, record)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	var out schema.SaveHistoryResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode history response: %w", err)
	}
	if strings.TrimSpace(string(out.ID)) == "" {
		return "", errors.New("history response has no id")
	}
	return out.ID, nil
}

// DeleteHistory removes a stored transcript.
func (c *Client) DeleteHistory(ctx context.Context, id schema.HistoryID) error {
	if strings.TrimSpace(string(id)) == "" {
		return schema.ErrInvalidHistoryID
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	httpReq, err := c.newRequest(ctx, http.MethodDelete, c.endpoint(c.cfg.HistoryPath, string(id)), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

// endpoint joins path, and an optional escaped id segment, onto the base url.
func (c *Client) endpoint(path, id string) string {
	out := *c.base
	prefix := strings.TrimRight(c.base.Path, "/") + "/" + strings.Trim(path, "/")
	out.Path = prefix
	out.RawPath = ""
	if id != "" {
		out.Path = prefix + "/" + id
		out.RawPath = (&url.URL{Path: prefix}).EscapedPath() + "/" + url.PathEscape(id)
	}
	return out.String()
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, method, c.endpoint(path, ""), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
}

// loggingTransport traces requests through the context logger.
type loggingTransport struct {
	next http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	log := pslog.Ctx(req.Context()).With("method", req.Method, "url", req.URL.Redacted())
	started := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		log.Debug("orchestrator request failed", "err", err, "duration_ms", time.Since(started).Milliseconds())
		return nil, err
	}
	log.Debug("orchestrator response", "status", resp.StatusCode, "duration_ms", time.Since(started).Milliseconds())
	return resp, nil
}
