package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/YingxueSec/AI-Code-Sec/pkg/auditapi"
)

// Client is a read-only client for the daemon's HTTP API. The monitor only
// polls status endpoints; mutations go through the daemon directly.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient targets a daemon at baseURL, e.g. "http://127.0.0.1:8844".
func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// QueueStatus fetches the scheduler's running set and queue head.
func (c *Client) QueueStatus(ctx context.Context) (auditapi.QueueStatusResponse, error) {
	var resp auditapi.QueueStatusResponse
	err := c.getJSON(ctx, "/api/queue", &resp)
	return resp, err
}

// Events fetches up to limit recent lifecycle events, newest first.
func (c *Client) Events(ctx context.Context, limit int) (auditapi.EventsResponse, error) {
	var resp auditapi.EventsResponse
	err := c.getJSON(ctx, "/api/events?limit="+strconv.Itoa(limit), &resp)
	return resp, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr auditapi.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
