package termsession

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gluk-w/termhub/internal/inventory"
)

func target(id, status string) inventory.Target {
	return inventory.Target{ID: id, Name: "name-" + id, Status: status}
}

func TestRegistry_OpenRejectsNonConnectableTarget(t *testing.T) {
	d := &fakeDialer{}
	reg := NewRegistry(d, RegistryConfig{}, nil)
	defer reg.CloseAll()

	for _, status := range []string{"stopped", "creating", "exited", ""} {
		_, err := reg.Open(target("c1", status))
		if !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("status %q: expected ErrInvalidTarget, got %v", status, err)
		}
	}
	if reg.Count() != 0 {
		t.Errorf("expected empty registry, got %d", reg.Count())
	}
	if n := d.dials.Load(); n != 0 {
		t.Errorf("expected no dials, got %d", n)
	}
}

func TestRegistry_OpenConnectsAndListsInOrder(t *testing.T) {
	d := &fakeDialer{}
	reg := NewRegistry(d, RegistryConfig{}, nil)
	defer reg.CloseAll()

	s1, err := reg.Open(target("c1", "running"))
	if err != nil {
		t.Fatalf("Open c1: %v", err)
	}
	s2, err := reg.Open(target("c2", "online"))
	if err != nil {
		t.Fatalf("Open c2: %v", err)
	}
	s3, err := reg.Open(target("c1", "Running"))
	if err != nil {
		t.Fatalf("Open c1 again: %v", err)
	}

	if !strings.HasPrefix(s1.ID, "terminal-c1-") {
		t.Errorf("unexpected session id %q", s1.ID)
	}
	if s1.ID == s3.ID {
		t.Error("expected distinct ids for sessions on the same target")
	}

	list := reg.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	for i, want := range []*Session{s1, s2, s3} {
		if list[i] != want {
			t.Errorf("position %d: expected %s, got %s", i, want.ID, list[i].ID)
		}
	}

	for _, s := range list {
		s := s
		waitFor(t, s.ID+" connected", func() bool { return s.State() == StateConnected })
	}
	if got := reg.Get(s2.ID); got != s2 {
		t.Error("Get returned wrong session")
	}
}

func TestRegistry_CloseIsIdempotent(t *testing.T) {
	obs := &recordingObserver{}
	d := &fakeDialer{}
	reg := NewRegistry(d, RegistryConfig{}, obs)
	defer reg.CloseAll()

	s1, _ := reg.Open(target("c1", "running"))
	s2, _ := reg.Open(target("c2", "running"))
	waitFor(t, "connected", func() bool {
		return s1.State() == StateConnected && s2.State() == StateConnected
	})

	reg.Close(s1.ID)
	reg.Close(s1.ID)
	reg.Close("terminal-missing")

	if reg.Count() != 1 {
		t.Fatalf("expected 1 session left, got %d", reg.Count())
	}
	if reg.Get(s1.ID) != nil {
		t.Error("closed session still registered")
	}
	if reg.List()[0] != s2 {
		t.Error("expected remaining session to be s2")
	}
	if s1.State() != StateDisconnected {
		t.Errorf("expected closed session disconnected, got %s", s1.State())
	}
	if s1.Output.Len() == 0 {
		t.Error("expected output of a closed session to stay readable")
	}
	if !d.transportFor("c1").isClosed() {
		t.Error("expected transport closed")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.opened) != 2 || len(obs.removed) != 1 || obs.removed[0] != s1.ID {
		t.Errorf("unexpected lifecycle events opened=%v removed=%v", obs.opened, obs.removed)
	}
}

func TestRegistry_DeadSessionStaysRegistered(t *testing.T) {
	d := &fakeDialer{err: errors.New("no route to host")}
	reg := NewRegistry(d, RegistryConfig{}, nil)
	defer reg.CloseAll()

	s, err := reg.Open(target("c1", "running"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	<-s.Done()
	if reg.Get(s.ID) == nil {
		t.Fatal("session in error state must stay registered until closed")
	}
	if s.State() != StateError {
		t.Errorf("expected error, got %s", s.State())
	}
}

func TestRegistry_MaxSessions(t *testing.T) {
	reg := NewRegistry(&fakeDialer{}, RegistryConfig{MaxSessions: 1}, nil)
	defer reg.CloseAll()

	s, err := reg.Open(target("c1", "running"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := reg.Open(target("c2", "running")); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("expected ErrTooManySessions, got %v", err)
	}
	reg.Close(s.ID)
	if _, err := reg.Open(target("c2", "running")); err != nil {
		t.Fatalf("Open after close: %v", err)
	}
}

func TestRegistry_SendAndPing(t *testing.T) {
	d := &fakeDialer{}
	reg := NewRegistry(d, RegistryConfig{}, nil)
	defer reg.CloseAll()

	if _, err := reg.Send(context.Background(), "nope", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := reg.Ping(context.Background(), "nope", ""); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	s, _ := reg.Open(target("c1", "running"))
	waitFor(t, "connected", func() bool { return s.State() == StateConnected })

	sent, err := reg.Send(context.Background(), s.ID, "whoami\n")
	if err != nil || !sent {
		t.Fatalf("Send: sent=%v err=%v", sent, err)
	}
	pinged, err := reg.Ping(context.Background(), s.ID, "hb")
	if err != nil || !pinged {
		t.Fatalf("Ping: sent=%v err=%v", pinged, err)
	}
	if n := len(d.transport(0).frames()); n != 2 {
		t.Errorf("expected 2 frames written, got %d", n)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	d := &fakeDialer{gate: make(chan struct{})}
	reg := NewRegistry(d, RegistryConfig{}, nil)

	s1, _ := reg.Open(target("c1", "running"))
	s2, _ := reg.Open(target("c2", "running"))
	reg.CloseAll()

	if reg.Count() != 0 {
		t.Errorf("expected empty registry, got %d", reg.Count())
	}
	for _, s := range []*Session{s1, s2} {
		if s.State() != StateError {
			t.Errorf("%s: expected aborted session in error, got %s", s.ID, s.State())
		}
	}
}

func TestRegistry_RecordingAndHistoryConfig(t *testing.T) {
	reg := NewRegistry(&fakeDialer{}, RegistryConfig{HistoryLines: 2, RecordingEnabled: true}, nil)
	defer reg.CloseAll()

	s, _ := reg.Open(target("c1", "running"))
	waitFor(t, "connected", func() bool { return s.State() == StateConnected })
	if s.Recording == nil {
		t.Fatal("expected recording enabled")
	}
	s.HandleFrame(protocolOutput("a"))
	s.HandleFrame(protocolOutput("b"))
	s.HandleFrame(protocolOutput("c"))

	lines := s.Output.Lines()
	if len(lines) != 2 || lines[0].Text != "b" || lines[1].Text != "c" {
		t.Errorf("expected history trimmed to [b c], got %v", renderAll(lines))
	}
	if s.Recording.EntryCount() != 4 {
		t.Errorf("expected 4 recorded entries, got %d", s.Recording.EntryCount())
	}
}
