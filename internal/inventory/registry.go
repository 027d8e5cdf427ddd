package inventory

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/gluk-w/termhub/internal/config"
)

var (
	current Source
	mu      sync.RWMutex
)

// Init selects the inventory source named by config.Cfg.InventoryBackend.
// "auto" tries, in order: a configured static file, kubernetes, docker and
// finally the REST API of the terminal backend.
func Init(ctx context.Context) error {
	backend := config.Cfg.InventoryBackend
	if backend == "" {
		backend = "auto"
	}

	src, err := open(ctx, backend)
	if err != nil {
		log.Printf("WARNING: no inventory source available: %v", err)
		return err
	}
	mu.Lock()
	current = src
	mu.Unlock()
	log.Printf("[inventory] using %s source", src.BackendName())
	return nil
}

func open(ctx context.Context, backend string) (Source, error) {
	cfg := config.Cfg
	switch backend {
	case "static":
		return NewStaticSource(cfg.StaticTargets)
	case "rest":
		return NewRESTSource(cfg.InventoryBaseURL()), nil
	case "docker":
		return NewDockerSource(ctx, cfg.DockerHost, cfg.LabelSelector)
	case "kubernetes":
		return NewKubernetesSource(ctx, cfg.K8sNamespace, cfg.LabelSelector)
	case "auto":
	default:
		return nil, fmt.Errorf("unknown inventory backend %q", backend)
	}

	if cfg.StaticTargets != "" {
		return NewStaticSource(cfg.StaticTargets)
	}
	if k8s, err := NewKubernetesSource(ctx, cfg.K8sNamespace, cfg.LabelSelector); err == nil {
		return k8s, nil
	} else {
		log.Printf("[inventory] kubernetes unavailable: %v", err)
	}
	if docker, err := NewDockerSource(ctx, cfg.DockerHost, cfg.LabelSelector); err == nil {
		return docker, nil
	} else {
		log.Printf("[inventory] docker unavailable: %v", err)
	}
	return NewRESTSource(cfg.InventoryBaseURL()), nil
}

// Get returns the active source, or nil before Init.
func Get() Source {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetForTest sets the active source for testing.
func SetForTest(s Source) {
	mu.Lock()
	defer mu.Unlock()
	current = s
}

// ResetForTest clears the active source.
func ResetForTest() {
	mu.Lock()
	defer mu.Unlock()
	current = nil
}
