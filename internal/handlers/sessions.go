package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gluk-w/termhub/internal/database"
	"github.com/gluk-w/termhub/internal/inventory"
	"github.com/gluk-w/termhub/internal/logutil"
	"github.com/gluk-w/termhub/internal/metrics"
	"github.com/gluk-w/termhub/internal/termsession"
	"github.com/go-chi/chi/v5"
)

// Registry is set from main.go during init.
var Registry *termsession.Registry

// sessionInfo is the JSON representation of a session for API responses.
type sessionInfo struct {
	ID          string                        `json:"id"`
	TargetID    string                        `json:"target_id"`
	TargetName  string                        `json:"target_name"`
	State       termsession.ConnectionState   `json:"state"`
	CreatedAt   time.Time                     `json:"created_at"`
	LineCount   int                           `json:"line_count"`
	Recording   bool                          `json:"recording"`
	Transitions []termsession.StateTransition `json:"transitions,omitempty"`
	Lines       []termsession.Line            `json:"lines,omitempty"`
	// Trimmed counts requested lines that were dropped by the history limit.
	Trimmed uint64 `json:"trimmed,omitempty"`
}

func toSessionInfo(s *termsession.Session) sessionInfo {
	return sessionInfo{
		ID:         s.ID,
		TargetID:   s.TargetID,
		TargetName: s.TargetName,
		State:      s.State(),
		CreatedAt:  s.CreatedAt,
		LineCount:  s.Output.Len(),
		Recording:  s.Recording != nil,
	}
}

// lookupSession resolves {sessionId} or writes the error response.
func lookupSession(w http.ResponseWriter, r *http.Request) *termsession.Session {
	if Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "Session registry not available")
		return nil
	}
	s := Registry.Get(chi.URLParam(r, "sessionId"))
	if s == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return nil
	}
	return s
}

type createSessionRequest struct {
	TargetID string `json:"target_id"`
}

// CreateSession opens a session on a target from the inventory.
// POST /api/v1/sessions
func CreateSession(w http.ResponseWriter, r *http.Request) {
	if Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "Session registry not available")
		return
	}
	src := inventory.Get()
	if src == nil {
		writeError(w, http.StatusServiceUnavailable, "No inventory source available")
		return
	}

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TargetID == "" {
		writeError(w, http.StatusBadRequest, "target_id is required")
		return
	}

	target, err := inventory.Find(r.Context(), src, req.TargetID)
	if err != nil {
		if errors.Is(err, inventory.ErrTargetNotFound) {
			writeError(w, http.StatusNotFound, "Target not found")
			return
		}
		log.Printf("[registry] look up target %s: %v", logutil.SanitizeForLog(req.TargetID), err)
		writeError(w, http.StatusBadGateway, "Failed to look up target")
		return
	}

	s, err := Registry.Open(target)
	switch {
	case errors.Is(err, termsession.ErrInvalidTarget):
		writeError(w, http.StatusConflict, "Target is "+target.Status+", not running or online")
		return
	case errors.Is(err, termsession.ErrTooManySessions):
		writeError(w, http.StatusTooManyRequests, "Too many open sessions")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to open session")
		return
	}
	writeJSON(w, http.StatusCreated, toSessionInfo(s))
}

// ListSessions returns every registered session in open order.
// GET /api/v1/sessions
func ListSessions(w http.ResponseWriter, r *http.Request) {
	result := []sessionInfo{}
	if Registry != nil {
		for _, s := range Registry.List() {
			result = append(result, toSessionInfo(s))
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": result})
}

// GetSession returns a session with its retained output lines. ?since=N
// returns only lines with seq >= N.
// GET /api/v1/sessions/{sessionId}
func GetSession(w http.ResponseWriter, r *http.Request) {
	s := lookupSession(w, r)
	if s == nil {
		return
	}
	var since uint64
	if q := r.URL.Query().Get("since"); q != "" {
		n, err := strconv.ParseUint(q, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since")
			return
		}
		since = n
	}
	info := toSessionInfo(s)
	info.Transitions = s.Transitions()
	info.Lines = s.Output.Since(since)
	info.Trimmed = s.Output.Missed(since)
	writeJSON(w, http.StatusOK, info)
}

type inputRequest struct {
	Data string `json:"data"`
}

// SendInput writes an input envelope. Sessions that are not connected
// accept and discard it, reported as sent=false.
// POST /api/v1/sessions/{sessionId}/input
func SendInput(w http.ResponseWriter, r *http.Request) {
	s := lookupSession(w, r)
	if s == nil {
		return
	}
	var req inputRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Data) > termsession.MaxInputMessageSize {
		metrics.ObserveRejectedInput("too_large")
		writeError(w, http.StatusRequestEntityTooLarge, "Input exceeds 64KB")
		return
	}
	sent := s.Send(r.Context(), req.Data)
	if sent {
		metrics.ObserveInput(len(req.Data))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sent": sent, "state": s.State()})
}

// PingSession sends a diagnostic ping; the pong shows up as a system line.
// POST /api/v1/sessions/{sessionId}/ping
func PingSession(w http.ResponseWriter, r *http.Request) {
	s := lookupSession(w, r)
	if s == nil {
		return
	}
	sent := s.Ping(r.Context(), r.URL.Query().Get("data"))
	writeJSON(w, http.StatusOK, map[string]interface{}{"sent": sent, "state": s.State()})
}

// CloseSession closes and removes a session. Closing an unknown or already
// closed session succeeds.
// DELETE /api/v1/sessions/{sessionId}
func CloseSession(w http.ResponseWriter, r *http.Request) {
	if Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "Session registry not available")
		return
	}
	Registry.Close(chi.URLParam(r, "sessionId"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// GetSessionRecording returns the in-memory recording of a session.
// GET /api/v1/sessions/{sessionId}/recording
func GetSessionRecording(w http.ResponseWriter, r *http.Request) {
	s := lookupSession(w, r)
	if s == nil {
		return
	}
	if s.Recording == nil {
		writeError(w, http.StatusNotFound, "Recording not enabled for this session")
		return
	}
	data, err := s.Recording.ExportJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export recording")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// ListSessionHistory returns lifecycle audit rows, newest first.
// GET /api/v1/sessions/history?target_id=&limit=
func ListSessionHistory(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "Database not available")
		return
	}
	records, err := database.ListSessionHistory(database.DB, r.URL.Query().Get("target_id"), queryInt(r, "limit", 100))
	if err != nil {
		log.Printf("[audit] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load session history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": records})
}
