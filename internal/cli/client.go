package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gluk-w/termhub/internal/inventory"
	"github.com/gluk-w/termhub/internal/termsession"
)

// hubClient talks to the termhub REST API.
type hubClient struct {
	baseURL string
	http    *http.Client
}

func newHubClient(baseURL string) *hubClient {
	return &hubClient{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

// sessionSummary mirrors the hub's session JSON.
type sessionSummary struct {
	ID         string                      `json:"id"`
	TargetID   string                      `json:"target_id"`
	TargetName string                      `json:"target_name"`
	State      termsession.ConnectionState `json:"state"`
	CreatedAt  time.Time                   `json:"created_at"`
	LineCount  int                         `json:"line_count"`
	Lines      []termsession.Line          `json:"lines,omitempty"`
}

type targetList struct {
	Targets []inventory.Target `json:"targets"`
	Total   int                `json:"total"`
	Backend string             `json:"backend"`
}

func (c *hubClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Detail string `json:"detail"`
		}
		json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&apiErr)
		if apiErr.Detail == "" {
			apiErr.Detail = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, apiErr.Detail)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *hubClient) listTargets(ctx context.Context) (*targetList, error) {
	var out targetList
	if err := c.do(ctx, http.MethodGet, "/api/v1/targets", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *hubClient) listSessions(ctx context.Context) ([]sessionSummary, error) {
	var out struct {
		Sessions []sessionSummary `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *hubClient) openSession(ctx context.Context, targetID string) (*sessionSummary, error) {
	var out sessionSummary
	body := map[string]string{"target_id": targetID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *hubClient) getSession(ctx context.Context, id string, since uint64) (*sessionSummary, error) {
	var out sessionSummary
	path := fmt.Sprintf("/api/v1/sessions/%s?since=%d", url.PathEscape(id), since)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *hubClient) sendInput(ctx context.Context, id, data string) (bool, error) {
	var out struct {
		Sent bool `json:"sent"`
	}
	path := "/api/v1/sessions/" + url.PathEscape(id) + "/input"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"data": data}, &out); err != nil {
		return false, err
	}
	return out.Sent, nil
}

func (c *hubClient) closeSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(id), nil, nil)
}
