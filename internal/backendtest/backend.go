// Package backendtest runs an in-process terminal backend for tests: the
// container listing endpoint and the per-target terminal websocket.
package backendtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/coder/websocket"
	"github.com/gluk-w/termhub/internal/inventory"
	"github.com/gluk-w/termhub/internal/protocol"
	"github.com/go-chi/chi/v5"
)

// Backend serves GET /api/containers[/{id}] and GET /ws/terminal/{id}.
//
// The terminal greets with "welcome to <id>", echoes input as
// "echo: <input>", answers ping with pong and on input "exit\n" sends an
// exit envelope and closes. Targets named "reject" fail the upgrade.
type Backend struct {
	*httptest.Server

	mu      sync.Mutex
	targets []inventory.Target
	paths   []string

	// Connections counts successful websocket upgrades.
	Connections atomic.Int32
}

// New starts a backend listing targets and registers its shutdown with t.
func New(t testing.TB, targets ...inventory.Target) *Backend {
	t.Helper()
	b := &Backend{targets: targets}
	r := chi.NewRouter()
	r.Get("/api/containers", b.listContainers)
	r.Get("/api/containers/{id}", b.getContainer)
	r.Get("/ws/terminal/{id}", b.terminal)
	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Close)
	return b
}

// SetTargets replaces the listed targets.
func (b *Backend) SetTargets(targets ...inventory.Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targets = targets
}

// Paths returns the raw request paths of terminal upgrades seen so far.
func (b *Backend) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.paths...)
}

func (b *Backend) listContainers(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	targets := append([]inventory.Target{}, b.targets...)
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"containers": targets,
		"total":      len(targets),
	})
}

func (b *Backend) getContainer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.targets {
		if t.ID == id {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(t)
			return
		}
	}
	http.Error(w, "container not found", http.StatusNotFound)
}

func (b *Backend) terminal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	b.paths = append(b.paths, r.URL.EscapedPath())
	b.mu.Unlock()
	if id == "reject" {
		http.Error(w, "no such container", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	b.Connections.Add(1)

	ctx := r.Context()
	if err := send(ctx, conn, protocol.KindOutput, "welcome to "+id); err != nil {
		return
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		f := protocol.Decode(data)
		text := ""
		if f.Payload != nil {
			text = f.Payload.Text()
		}
		switch f.Type {
		case protocol.KindInput:
			if strings.TrimSpace(text) == "exit" {
				send(ctx, conn, protocol.KindExit, map[string]string{"message": "bye"})
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			err = send(ctx, conn, protocol.KindOutput, "echo: "+text)
		case protocol.KindPing:
			err = send(ctx, conn, protocol.KindPong, text)
		default:
			err = send(ctx, conn, protocol.KindError, "unsupported message type")
		}
		if err != nil {
			return
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, kind protocol.Kind, payload interface{}) error {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, frame)
}
