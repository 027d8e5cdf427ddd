package termsession

import (
	"encoding/json"
	"sync"
	"time"
)

// RecordingEntry is one timestamped event, asciinema v2 style.
type RecordingEntry struct {
	// Elapsed is the time since session creation in seconds.
	Elapsed float64 `json:"elapsed"`
	// Type is "o" for displayed lines, "i" for input sent.
	Type string `json:"type"`
	Data string `json:"data"`
}

// SessionRecording captures a session's input and displayed output while the
// session is registered. It lives in memory only and is discarded with the
// session. It is safe for concurrent use.
type SessionRecording struct {
	mu         sync.Mutex
	entries    []RecordingEntry
	startTime  time.Time
	maxEntries int
}

// NewSessionRecording creates a new recording. If maxEntries <= 0, there is
// no limit on the number of entries.
func NewSessionRecording(start time.Time, maxEntries int) *SessionRecording {
	return &SessionRecording{
		startTime:  start,
		maxEntries: maxEntries,
	}
}

func (sr *SessionRecording) record(typ, data string, at time.Time) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.maxEntries > 0 && len(sr.entries) >= sr.maxEntries {
		return
	}
	sr.entries = append(sr.entries, RecordingEntry{
		Elapsed: at.Sub(sr.startTime).Seconds(),
		Type:    typ,
		Data:    data,
	})
}

// RecordOutput adds a displayed line.
func (sr *SessionRecording) RecordOutput(line Line) {
	sr.record("o", line.Render(), line.At)
}

// RecordInput adds input that was written to the transport.
func (sr *SessionRecording) RecordInput(data string) {
	sr.record("i", data, time.Now())
}

// Entries returns a copy of all recorded entries.
func (sr *SessionRecording) Entries() []RecordingEntry {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	result := make([]RecordingEntry, len(sr.entries))
	copy(result, sr.entries)
	return result
}

// EntryCount returns the number of recorded entries.
func (sr *SessionRecording) EntryCount() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.entries)
}

// ExportJSON returns the recording as JSON-encoded bytes.
func (sr *SessionRecording) ExportJSON() ([]byte, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(sr.entries)
}
