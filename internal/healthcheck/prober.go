// Package healthcheck probes the terminal backend on a cron schedule and
// runs the hub's other periodic maintenance jobs.
package healthcheck

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gluk-w/termhub/internal/metrics"
	"github.com/robfig/cron/v3"
)

// SessionCounter reports how many sessions are open.
type SessionCounter interface {
	Count() int
}

// Status is the last probe result.
type Status struct {
	Backend      string    `json:"backend"`
	Reachable    bool      `json:"reachable"`
	LastChecked  time.Time `json:"last_checked"`
	LatencyMs    int64     `json:"latency_ms"`
	LastError    string    `json:"last_error,omitempty"`
	OpenSessions int       `json:"open_sessions"`
}

// Prober checks that the terminal backend answers HTTP. Any response below
// 500 counts as reachable; the websocket endpoint itself is not dialed.
type Prober struct {
	backend  string
	client   *http.Client
	sessions SessionCounter

	cron *cron.Cron

	mu     sync.RWMutex
	status Status
}

// NewProber creates a prober for backend. sessions may be nil.
func NewProber(backend string, sessions SessionCounter) *Prober {
	return &Prober{
		backend:  strings.TrimRight(backend, "/"),
		client:   &http.Client{Timeout: 5 * time.Second},
		sessions: sessions,
		cron:     cron.New(),
		status:   Status{Backend: backend},
	}
}

// Start probes once, then on schedule (standard cron spec or @every).
func (p *Prober) Start(schedule string) error {
	if _, err := p.cron.AddFunc(schedule, func() { p.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule health probe %q: %w", schedule, err)
	}
	p.RunOnce(context.Background())
	p.cron.Start()
	log.Printf("[health] probing %s on schedule %q", p.backend, schedule)
	return nil
}

// AddJob schedules an extra maintenance job on the same scheduler.
func (p *Prober) AddJob(schedule, name string, job func()) error {
	if _, err := p.cron.AddFunc(schedule, job); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, schedule, err)
	}
	log.Printf("[health] scheduled %s on %q", name, schedule)
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (p *Prober) Stop() {
	<-p.cron.Stop().Done()
}

// RunOnce probes the backend and stores the result.
func (p *Prober) RunOnce(ctx context.Context) Status {
	start := time.Now()
	err := p.probe(ctx)
	took := time.Since(start)
	metrics.ObserveProbe(err == nil, took)

	st := Status{
		Backend:     p.backend,
		Reachable:   err == nil,
		LastChecked: start,
		LatencyMs:   took.Milliseconds(),
	}
	if err != nil {
		st.LastError = err.Error()
	}

	p.mu.Lock()
	wasReachable := p.status.Reachable || p.status.LastChecked.IsZero()
	p.status = st
	p.mu.Unlock()

	if err != nil && wasReachable {
		log.Printf("[health] terminal backend unreachable: %v", err)
	} else if err == nil && !wasReachable {
		log.Printf("[health] terminal backend reachable again")
	}
	return st
}

func (p *Prober) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.backend+"/", nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.backend, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("probe %s: status %d", p.backend, resp.StatusCode)
	}
	return nil
}

// Status returns the last probe result with the current session count.
func (p *Prober) Status() Status {
	p.mu.RLock()
	st := p.status
	p.mu.RUnlock()
	if p.sessions != nil {
		st.OpenSessions = p.sessions.Count()
	}
	return st
}
