package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vidsub/internal/services"
)

// Client talks to a running `vidsub serve` instance.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient builds a client for bind ("host:port" or a full URL).
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches the controller snapshot.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

// Start asks the server to begin a run.
func (c *Client) Start(ctx context.Context, req StartRunRequest) (string, error) {
	var resp StartRunResponse
	if err := c.do(ctx, http.MethodPost, "/api/runs", req, &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

// Stop cancels the active run and returns the resulting status.
func (c *Client) Stop(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodDelete, "/api/runs/current", nil, &resp)
	return resp, err
}

// History lists up to limit recent runs.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryRun, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var resp HistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Health reports tool availability on the server host.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp)
	if err != nil && resp.Dependencies != nil {
		return resp, nil
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact vidsub server at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if out != nil && len(data) > 0 {
		// Decode into out even for error replies that share the success shape
		// (e.g. /api/health with 503).
		_ = json.Unmarshal(data, out)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(data, &apiErr)
	message := strings.TrimSpace(apiErr.Error)
	if message == "" {
		message = resp.Status
	}
	return errorForStatus(resp.StatusCode, message)
}

// errorForStatus maps HTTP codes back onto the service markers so callers
// can use errors.Is on either side of the wire.
func errorForStatus(code int, message string) error {
	var marker error
	switch code {
	case http.StatusBadRequest:
		marker = services.ErrValidation
	case http.StatusConflict:
		marker = services.ErrBusy
	case http.StatusNotFound:
		marker = services.ErrNotRunning
	case http.StatusUnauthorized:
		return errors.New("vidsub server rejected the API token")
	default:
		return fmt.Errorf("vidsub server error (%d): %s", code, message)
	}
	message = strings.TrimPrefix(message, marker.Error()+": ")
	return fmt.Errorf("%w: %s", marker, message)
}
