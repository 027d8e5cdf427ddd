package inventory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// StaticSource serves targets from a YAML file of the form
//
//	targets:
//	  - id: web-1
//	    name: web
//	    status: running
//
// The file is re-read whenever its modification time changes.
type StaticSource struct {
	path string

	mu      sync.Mutex
	modTime int64
	targets []Target
}

type staticFile struct {
	Targets []Target `yaml:"targets"`
}

// NewStaticSource loads path once to validate it.
func NewStaticSource(path string) (*StaticSource, error) {
	s := &StaticSource{path: path}
	if _, err := s.ListTargets(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StaticSource) BackendName() string {
	return "static"
}

func (s *StaticSource) ListTargets(_ context.Context) ([]Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("stat targets file: %w", err)
	}
	if mt := info.ModTime().UnixNano(); mt != s.modTime || s.targets == nil {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read targets file: %w", err)
		}
		var f staticFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse targets file %s: %w", s.path, err)
		}
		for i, t := range f.Targets {
			if t.ID == "" {
				return nil, fmt.Errorf("parse targets file %s: target %d has no id", s.path, i)
			}
			if t.Name == "" {
				f.Targets[i].Name = t.ID
			}
		}
		if f.Targets == nil {
			f.Targets = []Target{}
		}
		s.targets = f.Targets
		s.modTime = mt
	}

	result := make([]Target, len(s.targets))
	copy(result, s.targets)
	return result, nil
}
