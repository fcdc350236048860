package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/pettracer/internal/devicestate"
	"github.com/muurk/pettracer/internal/version"
)

// DefaultClientTimeout bounds each request made by Client.
const DefaultClientTimeout = 5 * time.Second

// ErrNotFound is returned when the API answers 404.
var ErrNotFound = errors.New("api: not found")

// StatusError is a non-2xx answer from the query API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running query API, e.g. one found by discovery.
type Client struct {
	// BaseURL is the server root (e.g. "http://192.168.4.16:8780")
	BaseURL string

	HTTPClient *http.Client
}

// NewClient returns a client for baseURL. A trailing "/api/v1" is accepted.
func NewClient(baseURL string) *Client {
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/api/v1")
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: DefaultClientTimeout},
	}
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status calls GET /api/v1/status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Devices calls GET /api/v1/devices.
func (c *Client) Devices(ctx context.Context) ([]*devicestate.Snapshot, error) {
	var out DevicesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/devices", nil, &out); err != nil {
		return nil, err
	}
	if out.Devices == nil {
		out.Devices = []*devicestate.Snapshot{}
	}
	return out.Devices, nil
}

// Device calls GET /api/v1/devices/:id. A missing device yields ErrNotFound.
func (c *Client) Device(ctx context.Context, deviceID int) (*devicestate.Snapshot, error) {
	var out devicestate.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/devices/"+strconv.Itoa(deviceID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveDevice calls DELETE /api/v1/devices/:id.
func (c *Client) RemoveDevice(ctx context.Context, deviceID int) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/devices/"+strconv.Itoa(deviceID), nil, nil)
}

// UpdateTracked calls PUT /api/v1/tracked.
func (c *Client) UpdateTracked(ctx context.Context, deviceIDs []int) error {
	if deviceIDs == nil {
		deviceIDs = []int{}
	}
	return c.do(ctx, http.MethodPut, "/api/v1/tracked", TrackedRequest{DeviceIDs: deviceIDs}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		return &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
