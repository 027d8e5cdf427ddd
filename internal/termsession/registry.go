package termsession

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gluk-w/termhub/internal/inventory"
	"github.com/gluk-w/termhub/internal/logutil"
	"github.com/google/uuid"
)

var (
	// ErrInvalidTarget is returned by Open when the target is not connectable.
	ErrInvalidTarget = errors.New("target is not connectable")
	// ErrSessionNotFound is returned for ids that are not registered.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned by Open when MaxSessions is reached.
	ErrTooManySessions = errors.New("too many open sessions")
)

// LifecycleObserver is optionally implemented by an Observer that also wants
// to know when sessions enter and leave the registry.
type LifecycleObserver interface {
	OnSessionOpened(s *Session)
	OnSessionRemoved(s *Session)
}

// RegistryConfig holds settings applied to every new session.
type RegistryConfig struct {
	// HistoryLines caps each session's output log; 0 keeps everything.
	HistoryLines int
	// RecordingEnabled turns on in-memory recording for new sessions.
	RecordingEnabled bool
	// RecordingEntries caps each recording; 0 means unlimited.
	RecordingEntries int
	// MaxSessions limits concurrently registered sessions; 0 means no limit.
	MaxSessions int
	// HandshakeTimeout aborts a dial that has not completed; 0 waits forever.
	HandshakeTimeout time.Duration
}

// Registry owns every open session, keyed by session id, in the order they
// were opened. Sessions are added only by Open and removed only by Close or
// CloseAll; a session whose transport died stays registered until closed so
// its final output remains readable.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string

	dialer   Dialer
	observer Observer
	cfg      RegistryConfig

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistry creates an empty registry. Transports are opened with dialer;
// observer (which may be nil) sees every session's events.
func NewRegistry(dialer Dialer, cfg RegistryConfig, observer Observer) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		sessions: make(map[string]*Session),
		dialer:   dialer,
		observer: observer,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// newSessionID returns terminal-<target>-<unix millis>-<8 hex>.
func newSessionID(targetID string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("terminal-%s-%d-%s", targetID, now.UnixMilli(), suffix)
}

// Open creates a session for target and starts connecting it. The target's
// status is checked once, here, against the data the caller already fetched.
func (r *Registry) Open(target inventory.Target) (*Session, error) {
	if !target.Connectable() {
		return nil, fmt.Errorf("%w: %s is %q", ErrInvalidTarget, target.ID, target.Status)
	}

	s := NewSession(newSessionID(target.ID, time.Now()), target.ID, target.Name, SessionOptions{
		Dialer:           r.dialer,
		Observer:         r.observer,
		HistoryLines:     r.cfg.HistoryLines,
		Recording:        r.cfg.RecordingEnabled,
		RecordingEntries: r.cfg.RecordingEntries,
		HandshakeTimeout: r.cfg.HandshakeTimeout,
	})

	r.mu.Lock()
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w (limit %d)", ErrTooManySessions, r.cfg.MaxSessions)
	}
	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
	r.mu.Unlock()

	if lo, ok := r.observer.(LifecycleObserver); ok {
		lo.OnSessionOpened(s)
	}
	log.Printf("[registry] opened session %s for target %s (%s)",
		s.ID, logutil.SanitizeForLog(target.ID), logutil.SanitizeForLog(target.Name))

	if err := s.Connect(r.ctx); err != nil {
		log.Printf("[registry] connect session %s: %v", s.ID, err)
	}
	return s, nil
}

// Get returns a session by id, or nil if not registered.
func (r *Registry) Get(sessionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// List returns the registered sessions in the order they were opened.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.sessions[id])
	}
	return result
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Send writes input to a session. It reports false (and no error) when the
// session is not connected.
func (r *Registry) Send(ctx context.Context, sessionID, text string) (bool, error) {
	s := r.Get(sessionID)
	if s == nil {
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s.Send(ctx, text), nil
}

// Ping sends a diagnostic ping on a session.
func (r *Registry) Ping(ctx context.Context, sessionID, text string) (bool, error) {
	s := r.Get(sessionID)
	if s == nil {
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s.Ping(ctx, text), nil
}

// Close tears down the session's transport and removes it from the
// registry. Unknown or already-closed ids are a no-op.
func (r *Registry) Close(sessionID string) {
	s := r.Get(sessionID)
	if s == nil {
		return
	}
	s.Close()

	r.mu.Lock()
	if r.sessions[sessionID] != s {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)
	for i, id := range r.order {
		if id == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if lo, ok := r.observer.(LifecycleObserver); ok {
		lo.OnSessionRemoved(s)
	}
	log.Printf("[registry] closed session %s", sessionID)
}

// CloseAll closes every session and stops any dial still in flight.
func (r *Registry) CloseAll() {
	for _, s := range r.List() {
		r.Close(s.ID)
	}
	r.cancel()
}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) OnStateChanged(sessionID string, from, to ConnectionState) {
	for _, obs := range o {
		obs.OnStateChanged(sessionID, from, to)
	}
}

func (o Observers) OnOutputAppended(sessionID string, line Line) {
	for _, obs := range o {
		obs.OnOutputAppended(sessionID, line)
	}
}

func (o Observers) OnSessionOpened(s *Session) {
	for _, obs := range o {
		if lo, ok := obs.(LifecycleObserver); ok {
			lo.OnSessionOpened(s)
		}
	}
}

func (o Observers) OnSessionRemoved(s *Session) {
	for _, obs := range o {
		if lo, ok := obs.(LifecycleObserver); ok {
			lo.OnSessionRemoved(s)
		}
	}
}
