package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/gluk-w/termhub/internal/config"
	"github.com/gluk-w/termhub/internal/metrics"
	"github.com/gluk-w/termhub/internal/termsession"
)

// streamEvent is one JSON message sent to a browser display.
type streamEvent struct {
	Type      string                      `json:"type"` // session_info, line, state
	SessionID string                      `json:"session_id,omitempty"`
	State     termsession.ConnectionState `json:"state,omitempty"`
	Line      *termsession.Line           `json:"line,omitempty"`
}

// streamInput is one JSON message received from a browser display.
type streamInput struct {
	Type string `json:"type"` // input, ping
	Data string `json:"data"`
}

// SessionStream attaches a browser display to a session over websocket.
//
// The display first receives session_info, then every retained line from
// ?since (default 1) and every line appended afterwards, each followed by a
// state event whenever the connection state changed. The socket closes
// normally once the session reaches a terminal state and its log is
// drained. Input arrives as {"type":"input","data":...}; binary frames are
// taken as raw input. Input is rate limited and size limited per stream.
// GET /api/v1/sessions/{sessionId}/stream
func SessionStream(w http.ResponseWriter, r *http.Request) {
	s := lookupSession(w, r)
	if s == nil {
		return
	}
	var since uint64 = 1
	if q := r.URL.Query().Get("since"); q != "" {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			since = n
		}
	}

	// Browsers may only attach from the hub's own origin or a configured one.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: config.Cfg.AllowedOrigins,
	})
	if err != nil {
		log.Printf("Failed to accept stream websocket: %v", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(termsession.MaxInputMessageSize + 1024)

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	lastState := s.State()
	if err := writeEvent(ctx, conn, streamEvent{Type: "session_info", SessionID: s.ID, State: lastState}); err != nil {
		return
	}

	// Browser -> session
	go func() {
		defer cancel()
		readStreamInput(ctx, conn, s)
	}()

	// Session -> browser
	err = s.Follow(ctx, since, func(line termsession.Line) error {
		if err := writeEvent(ctx, conn, streamEvent{Type: "line", Line: &line}); err != nil {
			return err
		}
		if st := s.State(); st != lastState {
			lastState = st
			return writeEvent(ctx, conn, streamEvent{Type: "state", State: st})
		}
		return nil
	})
	if err != nil {
		return
	}
	if st := s.State(); st != lastState {
		if err := writeEvent(ctx, conn, streamEvent{Type: "state", State: st}); err != nil {
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "session ended")
}

func readStreamInput(ctx context.Context, conn *websocket.Conn, s *termsession.Session) {
	limiter := termsession.NewRateLimiter(termsession.MessageRateLimit, termsession.MessageRateBurst)
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if !limiter.Allow() {
			metrics.ObserveRejectedInput("rate_limited")
			continue
		}
		if len(data) > termsession.MaxInputMessageSize {
			log.Printf("Stream input message too large: session=%s size=%d limit=%d", s.ID, len(data), termsession.MaxInputMessageSize)
			metrics.ObserveRejectedInput("too_large")
			continue
		}

		if msgType == websocket.MessageBinary {
			if s.Send(ctx, string(data)) {
				metrics.ObserveInput(len(data))
			}
			continue
		}
		var in streamInput
		if err := json.Unmarshal(data, &in); err != nil {
			metrics.ObserveRejectedInput("malformed")
			continue
		}
		switch in.Type {
		case "input":
			if s.Send(ctx, in.Data) {
				metrics.ObserveInput(len(in.Data))
			}
		case "ping":
			s.Ping(ctx, in.Data)
		default:
			metrics.ObserveRejectedInput("unknown_type")
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev streamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
