package termsession

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gluk-w/termhub/internal/protocol"
)

// fakeTransport is an in-memory Transport driven by the test.
type fakeTransport struct {
	in chan readResult

	mu       sync.Mutex
	written  [][]byte
	writeErr error

	closeOnce sync.Once
	closed    chan struct{}
	reason    string
}

type readResult struct {
	msg Message
	err error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan readResult, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) push(data string) {
	f.in <- readResult{msg: Message{Data: []byte(data)}}
}

func (f *fakeTransport) pushBinary(data []byte) {
	f.in <- readResult{msg: Message{Data: data, Binary: true}}
}

func (f *fakeTransport) fail(err error) {
	f.in <- readResult{err: err}
}

func (f *fakeTransport) Read(ctx context.Context) (Message, error) {
	select {
	case r := <-f.in:
		return r.msg, r.err
	case <-f.closed:
		return Message{}, errors.New("use of closed transport")
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (f *fakeTransport) Write(_ context.Context, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), frame...))
	return nil
}

func (f *fakeTransport) Close(reason string) error {
	f.closeOnce.Do(func() {
		f.reason = reason
		close(f.closed)
	})
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]string, len(f.written))
	for i, b := range f.written {
		result[i] = string(b)
	}
	return result
}

// fakeDialer hands out fresh fake transports and counts dials. When gate is
// non-nil, Dial blocks until it is closed.
type fakeDialer struct {
	dials atomic.Int32
	gate  chan struct{}
	err   error

	mu         sync.Mutex
	transports []*fakeTransport
	targets    []string
}

func (d *fakeDialer) Dial(ctx context.Context, targetID string) (Transport, error) {
	d.dials.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	t := newFakeTransport()
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.targets = append(d.targets, targetID)
	d.mu.Unlock()
	return t, nil
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.transports) {
		return nil
	}
	return d.transports[i]
}

func (d *fakeDialer) transportFor(targetID string) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, id := range d.targets {
		if id == targetID {
			return d.transports[i]
		}
	}
	return nil
}

// recordingObserver collects callbacks in arrival order.
type recordingObserver struct {
	mu      sync.Mutex
	events  []string
	opened  []string
	removed []string
}

func (o *recordingObserver) OnStateChanged(sessionID string, from, to ConnectionState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "state:"+from.String()+"->"+to.String())
}

func (o *recordingObserver) OnOutputAppended(sessionID string, line Line) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "line:"+line.Render())
}

func (o *recordingObserver) OnSessionOpened(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, s.ID)
}

func (o *recordingObserver) OnSessionRemoved(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removed = append(o.removed, s.ID)
}

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func renderAll(lines []Line) []string {
	result := make([]string, len(lines))
	for i, l := range lines {
		result[i] = l.Render()
	}
	return result
}

func waitTimeout() <-chan time.Time {
	return time.After(3 * time.Second)
}

func protocolOutput(text string) protocol.Frame {
	b, _ := protocol.Encode(protocol.KindOutput, text)
	return protocol.Decode(b)
}
