package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gluk-w/termhub/internal/backendtest"
	"github.com/gluk-w/termhub/internal/handlers"
	"github.com/gluk-w/termhub/internal/inventory"
	"github.com/gluk-w/termhub/internal/termsession"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/viper"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func testTargets() []inventory.Target {
	return []inventory.Target{
		{ID: "t1", Name: "alpha", Status: "running", Image: "ubuntu:24.04"},
		{ID: "t2", Name: "beta", Status: "stopped"},
	}
}

// startHub serves the hub API backed by a fake terminal backend.
func startHub(t *testing.T) *httptest.Server {
	t.Helper()
	backend := backendtest.New(t, testTargets()...)
	inventory.SetForTest(inventory.NewRESTSource(backend.URL))
	handlers.Registry = termsession.NewRegistry(&termsession.WSDialer{Backend: backend.URL}, termsession.RegistryConfig{}, nil)

	r := chi.NewRouter()
	handlers.Mount(r)
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		ts.Close()
		handlers.Registry.CloseAll()
		handlers.Registry = nil
		inventory.ResetForTest()
	})
	return ts
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "hub:\n  url: http://hub.example:8080/\nbackend:\n  url: http://backend.example\n  handshake_timeout: 3s\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TERMCTL_BACKEND_URL", "http://override.example")

	cfg, err := loadConfig(viper.New(), path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Hub.URL != "http://hub.example:8080" {
		t.Errorf("hub url = %q", cfg.Hub.URL)
	}
	if cfg.Backend.URL != "http://override.example" {
		t.Errorf("backend url = %q, want env override", cfg.Backend.URL)
	}
	if cfg.Backend.HandshakeTimeout != 3*time.Second {
		t.Errorf("handshake timeout = %v", cfg.Backend.HandshakeTimeout)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig(viper.New(), "")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Hub.URL != "http://localhost:8080" || cfg.Backend.URL != "http://localhost:3000" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Backend.HandshakeTimeout != 15*time.Second {
		t.Errorf("handshake timeout = %v", cfg.Backend.HandshakeTimeout)
	}
}

func TestTargetsCommand(t *testing.T) {
	hub := startHub(t)

	out, err := run(t, "--hub-url", hub.URL, "targets")
	if err != nil {
		t.Fatalf("targets: %v", err)
	}
	for _, want := range []string{"ID", "alpha", "ubuntu:24.04", "stopped", "2 target(s) from rest"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "--hub-url", hub.URL, "targets", "-o", "json")
	if err != nil {
		t.Fatalf("targets -o json: %v", err)
	}
	var list targetList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode json output: %v", err)
	}
	if list.Total != 2 || list.Targets[0].ID != "t1" {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestTargetsCommandHubDown(t *testing.T) {
	hub := httptest.NewServer(nil)
	hub.Close()
	if _, err := run(t, "--hub-url", hub.URL, "targets"); err == nil {
		t.Fatal("expected an error when the hub is unreachable")
	}
}

func TestSessionsLifecycle(t *testing.T) {
	hub := startHub(t)

	out, err := run(t, "--hub-url", hub.URL, "sessions", "open", "t1")
	if err != nil {
		t.Fatalf("sessions open: %v", err)
	}
	id := strings.TrimSpace(out)
	if !strings.HasPrefix(id, "terminal-t1-") {
		t.Fatalf("unexpected session id %q", id)
	}

	deadline := time.Now().Add(3 * time.Second)
	for handlers.Registry.Get(id).State() != termsession.StateConnected {
		if time.Now().After(deadline) {
			t.Fatal("session never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := run(t, "--hub-url", hub.URL, "sessions", "send", id, "hello"); err != nil {
		t.Fatalf("sessions send: %v", err)
	}

	for {
		out, err = run(t, "--hub-url", hub.URL, "sessions", "logs", id)
		if err != nil {
			t.Fatalf("sessions logs: %v", err)
		}
		if strings.Contains(out, "echo: hello") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("echo never arrived:\n%s", out)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(out, "[system] terminal connection established: alpha (t1)") {
		t.Errorf("logs missing connection notice:\n%s", out)
	}

	out, err = run(t, "--hub-url", hub.URL, "sessions")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "connected") {
		t.Errorf("session list missing %s:\n%s", id, out)
	}

	if _, err := run(t, "--hub-url", hub.URL, "sessions", "close", id); err != nil {
		t.Fatalf("sessions close: %v", err)
	}
	if handlers.Registry.Count() != 0 {
		t.Errorf("expected no sessions after close, got %d", handlers.Registry.Count())
	}
}

func TestSessionsOpenStoppedTarget(t *testing.T) {
	hub := startHub(t)
	_, err := run(t, "--hub-url", hub.URL, "sessions", "open", "t2")
	if err == nil || !strings.Contains(err.Error(), "not running or online") {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestAttach(t *testing.T) {
	backend := backendtest.New(t, testTargets()...)

	pr, pw := io.Pipe()
	defer pw.Close()
	out := &syncBuffer{}
	errOut := &syncBuffer{}

	cmd := NewRootCmd()
	cmd.SetIn(pr)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"--backend-url", backend.URL, "attach", "t1"})

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(out.String(), "welcome to t1") {
		if time.Now().After(deadline) {
			t.Fatalf("no greeting from backend:\n%q", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	pw.Write([]byte("exit\n"))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("attach: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("attach did not return after the remote exit")
	}
	if !strings.Contains(errOut.String(), "Session disconnected.") {
		t.Errorf("expected disconnect notice, got %q", errOut.String())
	}
	if !strings.Contains(out.String(), "[system] terminal connection established: alpha (t1)") {
		t.Errorf("expected connection notice, got %q", out.String())
	}
}

func TestAttachStoppedTarget(t *testing.T) {
	backend := backendtest.New(t, testTargets()...)
	_, err := run(t, "--backend-url", backend.URL, "attach", "t2")
	if err == nil || !strings.Contains(err.Error(), "not connectable") {
		t.Fatalf("expected not connectable error, got %v", err)
	}
	if backend.Connections.Load() != 0 {
		t.Errorf("expected no terminal connection, got %d", backend.Connections.Load())
	}
}
