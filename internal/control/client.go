package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pders01/fwrdpost/internal/supervisor"
)

// Client talks to a running control server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(addr, token string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Reload(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/schedules/reload", nil)
}

func (c *Client) Restart(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/v1/users/"+url.PathEscape(userID)+"/schedule/restart", nil)
}

func (c *Client) Status(ctx context.Context) ([]supervisor.HostStatus, error) {
	var body struct {
		Hosts []supervisor.HostStatus `json:"hosts"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/schedules", &body); err != nil {
		return nil, err
	}
	return body.Hosts, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting control server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("control server returned %s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("control server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
