package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTSource reads targets from the terminal backend's container API:
// GET /api/containers and GET /api/containers/{id}.
type RESTSource struct {
	BaseURL string
	Client  *http.Client
}

// NewRESTSource creates a source for baseURL with a bounded HTTP client.
func NewRESTSource(baseURL string) *RESTSource {
	return &RESTSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type containerList struct {
	Containers []Target `json:"containers"`
	Total      int      `json:"total"`
}

func (r *RESTSource) BackendName() string {
	return "rest"
}

func (r *RESTSource) ListTargets(ctx context.Context) ([]Target, error) {
	var body containerList
	if err := r.get(ctx, "/api/containers", &body); err != nil {
		return nil, err
	}
	if body.Containers == nil {
		return []Target{}, nil
	}
	return body.Containers, nil
}

func (r *RESTSource) GetTarget(ctx context.Context, id string) (Target, error) {
	var t Target
	if err := r.get(ctx, "/api/containers/"+url.PathEscape(id), &t); err != nil {
		return Target{}, err
	}
	return t, nil
}

func (r *RESTSource) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrTargetNotFound, path)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
