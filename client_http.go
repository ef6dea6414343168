package taskpulse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HTTPStatusClient implements StatusClient against a JSON HTTP backend:
// GET  {base}/tasks/{id}/status  -> StatusResponse
// POST {base}/tasks/cancel       <- {"task_id": id}
type HTTPStatusClient struct {
	base *url.URL
	hc   *http.Client
	enc  Encoder
}

// NewHTTPStatusClient creates a status client for the given base address.
// httpClient may be nil to use http.DefaultClient; per-request deadlines come
// from the caller's context either way.
func NewHTTPStatusClient(address string, httpClient *http.Client) (*HTTPStatusClient, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPStatusClient{base: u, hc: httpClient, enc: &JSONEncoder{}}, nil
}

// Status fetches the backend status of a task.
func (c *HTTPStatusClient) Status(ctx context.Context, taskID string) (*StatusResponse, error) {
	addr := c.base.JoinPath("tasks", url.PathEscape(taskID), "status").String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("taskpulse: status fetch for %s returned %d", taskID, resp.StatusCode)
	}
	var out StatusResponse
	if err := c.enc.Decode(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel posts a cancellation request for a task.
func (c *HTTPStatusClient) Cancel(ctx context.Context, taskID string) error {
	raw, err := c.enc.Encode(map[string]string{"task_id": taskID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath("tasks", "cancel").String(), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("taskpulse: cancel for %s returned %d", taskID, resp.StatusCode)
	}
	return nil
}
