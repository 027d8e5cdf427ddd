package termsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gluk-w/termhub/internal/protocol"
)

// Line is one display line captured by a session.
type Line struct {
	// Seq is assigned in append order starting at 1 and never reused.
	Seq  uint64               `json:"seq"`
	Kind protocol.DisplayKind `json:"kind"`
	Text string               `json:"text"`
	At   time.Time            `json:"at"`
	// Trimmed is set only on the notice Follow emits in place of lines that
	// were trimmed before the reader got to them. Such a notice has Seq 0.
	Trimmed uint64 `json:"trimmed,omitempty"`
}

// Render returns the text as a display surface should print it: output is
// verbatim, notices carry a bracketed prefix.
func (l Line) Render() string {
	switch l.Kind {
	case protocol.DisplaySystem:
		return "[system] " + l.Text
	case protocol.DisplayError:
		return "[error] " + l.Text
	default:
		return l.Text
	}
}

// OutputLog is the append-only, ordered record of a session's display lines.
// Any number of readers may follow it; each is woken on every append and
// reads from its own cursor, so a slow reader never loses lines.
//
// By default nothing is ever dropped. When maxLines > 0 the oldest lines are
// trimmed once the log grows past it; sequence numbers keep counting and
// Follow reports the gap to readers that fell behind.
type OutputLog struct {
	mu       sync.Mutex
	lines    []Line
	nextSeq  uint64
	maxLines int
	trimmed  uint64 // highest seq trimmed so far, 0 if none
	closed   bool
	wake     chan struct{} // closed and replaced on every append
	now      func() time.Time
}

// NewOutputLog creates an empty log. maxLines <= 0 means unbounded.
func NewOutputLog(maxLines int) *OutputLog {
	return &OutputLog{
		nextSeq:  1,
		maxLines: maxLines,
		wake:     make(chan struct{}),
		now:      time.Now,
	}
}

// Append adds a line stamped with the capture time and wakes readers.
// Appends after Close are still recorded.
func (o *OutputLog) Append(kind protocol.DisplayKind, text string) Line {
	o.mu.Lock()
	line := Line{Seq: o.nextSeq, Kind: kind, Text: text, At: o.now()}
	o.nextSeq++
	o.lines = append(o.lines, line)
	if o.maxLines > 0 && len(o.lines) > o.maxLines {
		// Re-slicing leaves the copy to append's next growth, which only
		// moves the retained lines.
		drop := len(o.lines) - o.maxLines
		o.trimmed = o.lines[drop-1].Seq
		o.lines = o.lines[drop:]
	}
	o.broadcastLocked()
	o.mu.Unlock()
	return line
}

// Close marks the log as complete; no more lines are expected. Followers
// drain what is left and return.
func (o *OutputLog) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.broadcastLocked()
}

func (o *OutputLog) broadcastLocked() {
	close(o.wake)
	o.wake = make(chan struct{})
}

// IsClosed returns whether the log has been closed.
func (o *OutputLog) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Lines returns a copy of every retained line.
func (o *OutputLog) Lines() []Line {
	return o.Since(0)
}

// Since returns a copy of retained lines with Seq >= seq.
func (o *OutputLog) Since(seq uint64) []Line {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sinceLocked(seq)
}

func (o *OutputLog) sinceLocked(seq uint64) []Line {
	start := 0
	for start < len(o.lines) && o.lines[start].Seq < seq {
		start++
	}
	result := make([]Line, len(o.lines)-start)
	copy(result, o.lines[start:])
	return result
}

// Missed returns how many lines with Seq >= from were trimmed and can no
// longer be read.
func (o *OutputLog) Missed(from uint64) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.missedLocked(from)
}

func (o *OutputLog) missedLocked(from uint64) uint64 {
	if from == 0 {
		from = 1
	}
	if from > o.trimmed {
		return 0
	}
	return o.trimmed - from + 1
}

// Len returns the number of retained lines.
func (o *OutputLog) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.lines)
}

// Follow calls fn for every line with Seq >= from, in order, including lines
// appended later. Lines trimmed before the reader reached them are replaced
// by a single error notice with Trimmed set. It returns nil once the log is
// closed and drained, or the context error. fn returning an error stops the
// follow with that error.
func (o *OutputLog) Follow(ctx context.Context, from uint64, fn func(Line) error) error {
	for {
		o.mu.Lock()
		missed := o.missedLocked(from)
		if missed > 0 {
			from = o.trimmed + 1
		}
		batch := o.sinceLocked(from)
		closed := o.closed
		wake := o.wake
		now := o.now()
		o.mu.Unlock()

		if missed > 0 {
			if err := fn(trimNotice(missed, now)); err != nil {
				return err
			}
		}

		for _, line := range batch {
			if err := fn(line); err != nil {
				return err
			}
			from = line.Seq + 1
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

func trimNotice(n uint64, at time.Time) Line {
	return Line{
		Kind:    protocol.DisplayError,
		Text:    fmt.Sprintf("%d earlier lines were trimmed from history", n),
		At:      at,
		Trimmed: n,
	}
}
