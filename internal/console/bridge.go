// Package console bridges a local terminal to a session: keystrokes become
// input envelopes and the session's display lines are written back.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gluk-w/termhub/internal/protocol"
	"github.com/gluk-w/termhub/internal/termsession"
	"golang.org/x/term"
)

const (
	// exitSequence1 is the first byte of the exit sequence (Ctrl+]).
	exitSequence1 = 0x1D
	// exitSequence2 must follow exitSequence1 to detach.
	exitSequence2 = 'q'
)

// ErrDetached is returned by Run when the user typed the exit sequence.
var ErrDetached = errors.New("detached by user")

// Bridge connects In/Out to one session.
type Bridge struct {
	Session *termsession.Session
	In      io.Reader
	Out     io.Writer

	mu          sync.Mutex
	exitPressed bool
}

// New creates a bridge on stdin and stdout.
func New(s *termsession.Session) *Bridge {
	return &Bridge{Session: s, In: os.Stdin, Out: os.Stdout}
}

// MakeRaw switches f to raw mode when it is a terminal and returns the
// function restoring it. For non-terminals it does nothing.
func MakeRaw(f *os.File) (func(), error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("set raw mode: %w", err)
	}
	return func() { term.Restore(fd, old) }, nil
}

// Run pumps both directions until the session ends (nil), the user types
// Ctrl+] then q (ErrDetached), In reaches EOF (nil) or ctx is done.
//
// On return In is closed when it is an io.Closer, which stops the input
// goroutine. os.Stdin is left open: a read on it cannot be interrupted, so
// that goroutine stays blocked until the process exits.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer b.closeInput()

	outDone := make(chan error, 1)
	go func() {
		outDone <- b.Session.Follow(ctx, 1, b.writeLine)
	}()

	inDone := make(chan error, 1)
	go func() {
		inDone <- b.pumpInput(ctx)
	}()

	select {
	case err := <-outDone:
		if errors.Is(err, context.Canceled) {
			return ctx.Err()
		}
		return err
	case err := <-inDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) closeInput() {
	if f, ok := b.In.(*os.File); ok && f == os.Stdin {
		return
	}
	if c, ok := b.In.(io.Closer); ok {
		c.Close()
	}
}

func (b *Bridge) writeLine(line termsession.Line) error {
	var err error
	if line.Kind == protocol.DisplayOutput {
		_, err = io.WriteString(b.Out, line.Text)
	} else {
		_, err = fmt.Fprintf(b.Out, "\r\n%s\r\n", line.Render())
	}
	return err
}

func (b *Bridge) pumpInput(ctx context.Context) error {
	buf := make([]byte, 4096)
	for {
		n, err := b.In.Read(buf)
		if n > 0 {
			forward, exit := b.filter(buf[:n])
			if len(forward) > 0 {
				b.Session.Send(ctx, string(forward))
			}
			if exit {
				return ErrDetached
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
	}
}

// filter strips the exit sequence from p. A lone Ctrl+] is held back until
// the next byte shows whether it starts the sequence.
func (b *Bridge) filter(p []byte) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, 0, len(p))
	for _, c := range p {
		if b.exitPressed {
			b.exitPressed = false
			if c == exitSequence2 {
				return out, true
			}
			out = append(out, exitSequence1)
		}
		if c == exitSequence1 {
			b.exitPressed = true
			continue
		}
		out = append(out, c)
	}
	return out, false
}
