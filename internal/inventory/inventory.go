package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrTargetNotFound is returned by Find when no listed target has the id.
var ErrTargetNotFound = errors.New("target not found")

// Target is one connectable endpoint (a container) as reported by an
// inventory source. Only ID, Name and Status matter to terminal sessions.
type Target struct {
	ID       string            `json:"id" yaml:"id"`
	Name     string            `json:"name" yaml:"name"`
	Status   string            `json:"status" yaml:"status"`
	Labels   map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Image    string            `json:"image,omitempty" yaml:"image,omitempty"`
	Ports    []string          `json:"ports,omitempty" yaml:"ports,omitempty"`
	NodeAddr string            `json:"node_addr,omitempty" yaml:"node_addr,omitempty"`
	Created  string            `json:"created,omitempty" yaml:"created,omitempty"`
	Uptime   string            `json:"uptime,omitempty" yaml:"uptime,omitempty"`
}

// Connectable reports whether the target's status allows a terminal session.
func (t Target) Connectable() bool {
	return Connectable(t.Status)
}

// Connectable reports whether status is "running" or "online".
func Connectable(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "running", "online":
		return true
	default:
		return false
	}
}

// Source lists targets from one backend.
type Source interface {
	ListTargets(ctx context.Context) ([]Target, error)
	BackendName() string
}

// Getter is implemented by sources that can look up a single target
// without listing everything.
type Getter interface {
	GetTarget(ctx context.Context, id string) (Target, error)
}

// Find returns the target with the given id from src.
func Find(ctx context.Context, src Source, id string) (Target, error) {
	if g, ok := src.(Getter); ok {
		return g.GetTarget(ctx, id)
	}
	targets, err := src.ListTargets(ctx)
	if err != nil {
		return Target{}, fmt.Errorf("list targets: %w", err)
	}
	for _, t := range targets {
		if t.ID == id {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("%w: %s", ErrTargetNotFound, id)
}
