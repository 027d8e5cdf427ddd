package database

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gluk-w/termhub/internal/termsession"
	"gorm.io/gorm"
)

const defaultAuditBuffer = 256

type auditEvent struct {
	sessionID  string
	targetID   string
	targetName string
	kind       string // opened, state, removed
	state      termsession.ConnectionState
	at         time.Time
}

// Auditor writes session lifecycle rows from registry events. Events are
// queued and written by one goroutine in arrival order, so the session lock
// is never held across a database write. When the queue is full events are
// dropped and counted.
type Auditor struct {
	db     *gorm.DB
	events chan auditEvent

	mu      sync.RWMutex
	stopped bool
	dropped atomic.Int64

	done chan struct{}
	now  func() time.Time
}

// NewAuditor starts the writer goroutine. buffer <= 0 uses a default size.
func NewAuditor(db *gorm.DB, buffer int) *Auditor {
	if buffer <= 0 {
		buffer = defaultAuditBuffer
	}
	a := &Auditor{
		db:     db,
		events: make(chan auditEvent, buffer),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go a.run()
	return a
}

func (a *Auditor) enqueue(ev auditEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		return
	}
	select {
	case a.events <- ev:
	default:
		a.dropped.Add(1)
		log.Printf("[audit] queue full, dropped %s event for %s", ev.kind, ev.sessionID)
	}
}

func (a *Auditor) OnSessionOpened(s *termsession.Session) {
	a.enqueue(auditEvent{
		sessionID:  s.ID,
		targetID:   s.TargetID,
		targetName: s.TargetName,
		kind:       "opened",
		at:         s.CreatedAt,
	})
}

func (a *Auditor) OnSessionRemoved(s *termsession.Session) {
	a.enqueue(auditEvent{sessionID: s.ID, kind: "removed", at: a.now()})
}

func (a *Auditor) OnStateChanged(sessionID string, _, to termsession.ConnectionState) {
	a.enqueue(auditEvent{sessionID: sessionID, kind: "state", state: to, at: a.now()})
}

// OnOutputAppended is a no-op: output is not audited.
func (a *Auditor) OnOutputAppended(string, termsession.Line) {}

func (a *Auditor) run() {
	defer close(a.done)
	for ev := range a.events {
		if err := a.apply(ev); err != nil {
			log.Printf("[audit] %v", err)
		}
	}
}

func (a *Auditor) apply(ev auditEvent) error {
	switch ev.kind {
	case "opened":
		return CreateSessionRecord(a.db, &SessionRecord{
			SessionID:  ev.sessionID,
			TargetID:   ev.targetID,
			TargetName: ev.targetName,
			OpenedAt:   ev.at,
			FinalState: termsession.StateConnecting.String(),
		})
	case "state":
		updates := map[string]interface{}{"final_state": ev.state.String()}
		if ev.state == termsession.StateConnected {
			updates["connected_at"] = ev.at
		}
		if ev.state.IsTerminal() {
			updates["ended_at"] = ev.at
		}
		return UpdateSessionRecord(a.db, ev.sessionID, updates)
	case "removed":
		return UpdateSessionRecord(a.db, ev.sessionID, map[string]interface{}{"closed_at": ev.at})
	}
	return nil
}

// Stop stops accepting events, writes what is queued and waits for the
// writer to finish.
func (a *Auditor) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	close(a.events)
	a.mu.Unlock()
	<-a.done
}

// Dropped returns how many events were discarded because the queue was full.
func (a *Auditor) Dropped() int64 {
	return a.dropped.Load()
}
