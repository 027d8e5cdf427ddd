package termsession

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gluk-w/termhub/internal/logutil"
	"github.com/gluk-w/termhub/internal/protocol"
)

// ErrDuplicateConnection is returned by Connect when a transport has already
// been attempted for the session.
var ErrDuplicateConnection = errors.New("connection already attempted for session")

// maxTransitions bounds the per-session transition history.
const maxTransitions = 16

// writeTimeout bounds one input write to the transport.
const writeTimeout = 10 * time.Second

// Observer receives every state change and appended line of a session, in
// the order they happen. Calls are made with the session locked: an observer
// must not call back into the session and must not block.
type Observer interface {
	OnStateChanged(sessionID string, from, to ConnectionState)
	OnOutputAppended(sessionID string, line Line)
}

// Session is one terminal attachment to a target. It owns exactly one
// transport and runs the connection state machine:
//
//	connecting -> connected -> disconnected | error
//	connecting -> error
//
// disconnected and error are terminal. Every transport callback is a method
// (HandleOpen, HandleFrame, HandleClose, HandleError) executed under the
// session lock, so one session's events are processed one at a time and in
// transport order.
type Session struct {
	ID         string
	TargetID   string
	TargetName string
	CreatedAt  time.Time

	// Output is the session's display log. It stays readable after the
	// transport has died and after the session leaves the registry.
	Output *OutputLog
	// Recording captures input and output (nil if disabled).
	Recording *SessionRecording

	dialer           Dialer
	observer         Observer
	handshakeTimeout time.Duration

	mu          sync.Mutex
	writeMu     sync.Mutex // serializes transport writes; taken before mu
	writeCtx    context.Context
	writeCancel context.CancelFunc
	state       ConnectionState
	transitions []StateTransition
	transport   Transport
	dialing     bool // latch: set before the first dial, never reset
	closed      bool // local close requested
	cancel      context.CancelFunc
	done        chan struct{}
}

// SessionOptions configures a new Session.
type SessionOptions struct {
	Dialer           Dialer
	Observer         Observer
	HistoryLines     int
	Recording        bool
	RecordingEntries int
	HandshakeTimeout time.Duration
}

// NewSession creates a session in the connecting state. Nothing is dialed
// until Connect.
func NewSession(id, targetID, targetName string, opts SessionOptions) *Session {
	now := time.Now()
	writeCtx, writeCancel := context.WithCancel(context.Background())
	s := &Session{
		ID:               id,
		TargetID:         targetID,
		TargetName:       targetName,
		CreatedAt:        now,
		Output:           NewOutputLog(opts.HistoryLines),
		dialer:           opts.Dialer,
		observer:         opts.Observer,
		handshakeTimeout: opts.HandshakeTimeout,
		writeCtx:         writeCtx,
		writeCancel:      writeCancel,
		state:            StateConnecting,
		done:             make(chan struct{}),
	}
	if opts.Recording {
		s.Recording = NewSessionRecording(now, opts.RecordingEntries)
	}
	return s
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transitions returns a copy of the recorded state changes.
func (s *Session) Transitions() []StateTransition {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]StateTransition, len(s.transitions))
	copy(result, s.transitions)
	return result
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Follow streams the session's display lines from seq onward until the
// session ends or ctx is done. See OutputLog.Follow.
func (s *Session) Follow(ctx context.Context, from uint64, fn func(Line) error) error {
	return s.Output.Follow(ctx, from, fn)
}

// Connect starts opening the transport in the background. It may succeed
// only once per session: later calls, including concurrent ones racing the
// handshake, are ignored and return ErrDuplicateConnection.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.dialing {
		s.mu.Unlock()
		log.Printf("[session] %s: ignoring duplicate connection attempt", s.ID)
		return ErrDuplicateConnection
	}
	s.dialing = true
	if s.closed || s.state.IsTerminal() {
		s.mu.Unlock()
		return fmt.Errorf("session %s is %s", s.ID, s.state)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.pump(ctx)
	return nil
}

// pump dials and then feeds every inbound frame to the state machine until
// the transport ends or the session is closed locally.
func (s *Session) pump(ctx context.Context) {
	dialCtx := ctx
	if s.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.handshakeTimeout)
		defer cancel()
	}

	if s.dialer == nil {
		s.HandleError(errors.New("no transport dialer configured"))
		return
	}
	t, err := s.dialer.Dial(dialCtx, s.TargetID)
	if err != nil {
		if ctx.Err() != nil {
			return // closed locally while dialing
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("handshake timed out after %s: %w", s.handshakeTimeout, err)
		}
		s.HandleError(err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.Close("session closed")
		return
	}
	s.transport = t
	s.mu.Unlock()

	s.HandleOpen()

	for {
		msg, err := t.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var ce *CloseError
			if errors.As(err, &ce) {
				s.HandleClose(ce.Reason)
			} else {
				s.HandleError(err)
			}
			return
		}

		var frame protocol.Frame
		if msg.Binary {
			frame = protocol.RawFrame(msg.Data)
		} else {
			frame = protocol.Decode(msg.Data)
		}
		s.HandleFrame(frame)

		if s.State().IsTerminal() {
			t.Close("session ended")
			return
		}
	}
}

// HandleOpen is the transport's handshake-completed event.
func (s *Session) HandleOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transitionLocked(StateConnected) {
		return
	}
	s.appendLocked(protocol.DisplaySystem,
		fmt.Sprintf("terminal connection established: %s (%s)", s.TargetName, s.TargetID))
	log.Printf("[session] %s connected to target %s", s.ID, logutil.SanitizeForLog(s.TargetID))
}

// HandleFrame processes one decoded inbound frame.
func (s *Session) HandleFrame(f protocol.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return
	}

	action := protocol.Interpret(f)
	if action.Dropped {
		log.Printf("[session] %s: dropped %q envelope without data", s.ID, logutil.SanitizeForLog(string(f.Type)))
		return
	}
	for _, d := range action.Display {
		s.appendLocked(d.Kind, d.Text)
	}
	if action.Exit && s.state == StateConnected {
		s.transitionLocked(StateDisconnected)
	}
}

// HandleClose is the transport-closed event (peer or local close frame).
func (s *Session) HandleClose(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateConnected:
		s.appendLocked(protocol.DisplaySystem, closeNotice(reason))
		s.transitionLocked(StateDisconnected)
	case StateConnecting:
		s.appendLocked(protocol.DisplayError, "connection closed during handshake")
		s.transitionLocked(StateError)
	}
}

// HandleError is the transport-failure event. Protocol-level error
// envelopes go through HandleFrame instead and do not end the session.
func (s *Session) HandleError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return
	}
	log.Printf("[session] %s transport error: %v", s.ID, err)
	s.appendLocked(protocol.DisplayError, fmt.Sprintf("connection error: %v", err))
	s.transitionLocked(StateError)
}

// Send writes text as an input envelope. It is a no-op unless the session
// is connected, and reports whether the frame was written. The caller adds
// any line terminator. A failed write drives the session to error instead
// of being returned, unless the session was closed meanwhile. The write runs
// outside the session lock and is aborted once the session ends.
func (s *Session) Send(ctx context.Context, text string) bool {
	return s.write(ctx, protocol.KindInput, text)
}

// Ping sends a diagnostic ping envelope; the peer answers with pong.
func (s *Session) Ping(ctx context.Context, text string) bool {
	return s.write(ctx, protocol.KindPing, text)
}

func (s *Session) write(ctx context.Context, kind protocol.Kind, text string) bool {
	frame, err := protocol.Encode(kind, text)
	if err != nil {
		return false
	}

	s.mu.Lock()
	if s.state != StateConnected || s.transport == nil {
		s.mu.Unlock()
		return false
	}
	t := s.transport
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	stop := context.AfterFunc(s.writeCtx, cancel)
	defer stop()

	err = t.Write(ctx, frame)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.closed || s.state != StateConnected {
			return false
		}
		log.Printf("[session] %s write failed: %v", s.ID, err)
		s.appendLocked(protocol.DisplayError, fmt.Sprintf("connection error: %v", err))
		s.transitionLocked(StateError)
		return false
	}
	if kind == protocol.KindInput && s.Recording != nil {
		s.Recording.RecordInput(text)
	}
	return true
}

// Close is the local close. It commands the transport to close, moves the
// session to its terminal state and leaves the output log intact. Safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	switch s.state {
	case StateConnecting:
		s.appendLocked(protocol.DisplayError, "connection aborted")
		s.transitionLocked(StateError)
	case StateConnected:
		s.appendLocked(protocol.DisplaySystem, "connection closed by user")
		s.transitionLocked(StateDisconnected)
	}
	t := s.transport
	cancel := s.cancel
	s.mu.Unlock()

	if t != nil {
		if err := t.Close("session closed"); err != nil {
			log.Printf("[session] %s close transport: %v", s.ID, err)
		}
	}
	if cancel != nil {
		cancel()
	}
}

func (s *Session) appendLocked(kind protocol.DisplayKind, text string) {
	line := s.Output.Append(kind, text)
	if s.Recording != nil {
		s.Recording.RecordOutput(line)
	}
	if s.observer != nil {
		s.observer.OnOutputAppended(s.ID, line)
	}
}

// transitionLocked moves to next if the edge exists and fires side effects
// common to every transition. It reports whether the transition happened.
func (s *Session) transitionLocked(next ConnectionState) bool {
	from := s.state
	if !CanTransition(from, next) {
		if from != next {
			log.Printf("[session] %s: ignoring transition %s -> %s", s.ID, from, next)
		}
		return false
	}
	s.state = next
	s.transitions = append(s.transitions, StateTransition{From: from, To: next, Timestamp: time.Now()})
	if len(s.transitions) > maxTransitions {
		s.transitions = s.transitions[len(s.transitions)-maxTransitions:]
	}
	if next.IsTerminal() {
		s.writeCancel()
		s.Output.Close()
		close(s.done)
	}
	if s.observer != nil {
		s.observer.OnStateChanged(s.ID, from, next)
	}
	return true
}

func closeNotice(reason string) string {
	if reason == "" {
		return "connection closed"
	}
	return "connection closed: " + reason
}
