package inventory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/gluk-w/termhub/internal/config"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestConnectable(t *testing.T) {
	tests := map[string]bool{
		"running":  true,
		"online":   true,
		"Running":  true,
		" online ": true,
		"stopped":  false,
		"creating": false,
		"error":    false,
		"":         false,
	}
	for status, want := range tests {
		if got := Connectable(status); got != want {
			t.Errorf("Connectable(%q) = %v, want %v", status, got, want)
		}
	}
}

type listSource struct {
	targets []Target
	err     error
}

func (l *listSource) ListTargets(context.Context) ([]Target, error) { return l.targets, l.err }
func (l *listSource) BackendName() string                          { return "list" }

func TestFind(t *testing.T) {
	src := &listSource{targets: []Target{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}}

	got, err := Find(context.Background(), src, "b")
	if err != nil || got.Name != "B" {
		t.Fatalf("Find(b) = %+v, %v", got, err)
	}
	if _, err := Find(context.Background(), src, "zzz"); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("expected ErrTargetNotFound, got %v", err)
	}

	src.err = errors.New("backend down")
	if _, err := Find(context.Background(), src, "a"); err == nil || errors.Is(err, ErrTargetNotFound) {
		t.Errorf("expected listing error, got %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestStaticSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	writeFile(t, path, `
targets:
  - id: web-1
    name: web
    status: running
    labels:
      tier: frontend
  - id: db-1
    status: stopped
`)

	src, err := NewStaticSource(path)
	if err != nil {
		t.Fatalf("NewStaticSource: %v", err)
	}
	targets, err := src.ListTargets(context.Background())
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].Labels["tier"] != "frontend" || !targets[0].Connectable() {
		t.Errorf("unexpected first target %+v", targets[0])
	}
	if targets[1].Name != "db-1" {
		t.Errorf("expected name to default to id, got %q", targets[1].Name)
	}

	// rewrite with a later mtime so the change is picked up
	writeFile(t, path, "targets:\n  - id: only\n    status: online\n")
	later := time.Now().Add(time.Minute)
	os.Chtimes(path, later, later)
	targets, err = src.ListTargets(context.Background())
	if err != nil {
		t.Fatalf("ListTargets after rewrite: %v", err)
	}
	if len(targets) != 1 || targets[0].ID != "only" {
		t.Errorf("expected reloaded targets, got %+v", targets)
	}
}

func TestStaticSource_Invalid(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewStaticSource(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "targets:\n  - name: no-id\n")
	if _, err := NewStaticSource(bad); err == nil {
		t.Error("expected error for target without id")
	}
}

type fakeDocker struct {
	containers []container.Summary
	opts       container.ListOptions
}

func (f *fakeDocker) ContainerList(_ context.Context, opts container.ListOptions) ([]container.Summary, error) {
	f.opts = opts
	return f.containers, nil
}

func TestDockerSource(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fd := &fakeDocker{containers: []container.Summary{
		{
			ID:      "0123456789abcdef0123",
			Names:   []string{"/web"},
			Image:   "nginx:1.27",
			State:   "running",
			Status:  "Up 2 hours",
			Created: now.Add(-2 * time.Hour).Unix(),
			Ports: []container.Port{
				{IP: "0.0.0.0", PrivatePort: 80, PublicPort: 8080, Type: "tcp"},
				{PrivatePort: 443, Type: "tcp"},
			},
		},
		{ID: "fedcba9876543210", Names: []string{"/job"}, State: "exited", Status: "Exited (0)"},
		{ID: "abc", Names: []string{"/sick"}, State: "running", Status: "Up 1 minute (unhealthy)"},
	}}
	src := newDockerSource(fd, "termhub.enabled=true")
	src.now = func() time.Time { return now }

	targets, err := src.ListTargets(context.Background())
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	if !fd.opts.All || fd.opts.Filters.Get("label")[0] != "termhub.enabled=true" {
		t.Errorf("unexpected list options %+v", fd.opts)
	}
	if len(targets) != 3 {
		t.Fatalf("expected 3 targets, got %d", len(targets))
	}

	web := targets[0]
	if web.ID != "0123456789ab" || web.Name != "web" || web.Status != "running" {
		t.Errorf("unexpected web target %+v", web)
	}
	if web.Uptime != "2 hours" {
		t.Errorf("expected uptime '2 hours', got %q", web.Uptime)
	}
	if len(web.Ports) != 2 || web.Ports[0] != "0.0.0.0:8080->80/tcp" || web.Ports[1] != "443/tcp" {
		t.Errorf("unexpected ports %v", web.Ports)
	}
	if targets[1].Status != "stopped" || targets[1].Uptime != "" {
		t.Errorf("unexpected exited target %+v", targets[1])
	}
	if targets[2].Status != "error" {
		t.Errorf("expected unhealthy container to be error, got %q", targets[2].Status)
	}
}

func readyPod(name string, phase corev1.PodPhase, ready bool) *corev1.Pod {
	start := metav1.NewTime(time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC))
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "apps",
			Labels:    map[string]string{"app": name + "-app", "team": "infra"},
		},
		Spec: corev1.PodSpec{Containers: []corev1.Container{{
			Name:  "main",
			Image: "busybox:1.36",
			Ports: []corev1.ContainerPort{{ContainerPort: 22, Protocol: corev1.ProtocolTCP}},
		}}},
		Status: corev1.PodStatus{
			Phase:             phase,
			HostIP:            "10.0.0.5",
			StartTime:         &start,
			ContainerStatuses: []corev1.ContainerStatus{{Name: "main", Ready: ready}},
		},
	}
}

func TestKubernetesSource(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		readyPod("shell", corev1.PodRunning, true),
		readyPod("warming", corev1.PodRunning, false),
		readyPod("broken", corev1.PodFailed, false),
	)
	src := newKubernetesSource(clientset, "apps", "team=infra")
	src.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }

	targets, err := src.ListTargets(context.Background())
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	byID := map[string]Target{}
	for _, tg := range targets {
		byID[tg.ID] = tg
	}
	if len(byID) != 3 {
		t.Fatalf("expected 3 targets, got %d", len(byID))
	}

	shell := byID["shell"]
	if shell.Status != "running" || shell.Name != "shell-app" || shell.NodeAddr != "10.0.0.5" {
		t.Errorf("unexpected shell target %+v", shell)
	}
	if shell.Image != "busybox:1.36" || len(shell.Ports) != 1 || shell.Ports[0] != "22/tcp" {
		t.Errorf("unexpected shell image/ports %+v", shell)
	}
	if shell.Uptime != "About an hour" {
		t.Errorf("unexpected uptime %q", shell.Uptime)
	}
	if byID["warming"].Status != "creating" {
		t.Errorf("expected unready pod to be creating, got %q", byID["warming"].Status)
	}
	if byID["broken"].Status != "error" {
		t.Errorf("expected failed pod to be error, got %q", byID["broken"].Status)
	}
}

func TestInitSelectsStaticSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	writeFile(t, path, "targets:\n  - id: a\n    status: running\n")

	prev := config.Cfg
	t.Cleanup(func() {
		config.Cfg = prev
		ResetForTest()
	})
	config.Cfg.InventoryBackend = "auto"
	config.Cfg.StaticTargets = path

	if err := Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Get() == nil || Get().BackendName() != "static" {
		t.Fatalf("expected static source, got %v", Get())
	}

	config.Cfg.InventoryBackend = "carrier-pigeon"
	if err := Init(context.Background()); err == nil {
		t.Error("expected error for unknown backend")
	}
}
