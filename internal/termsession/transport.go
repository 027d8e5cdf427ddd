package termsession

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gluk-w/termhub/internal/protocol"
)

// Message is one frame read from a transport.
type Message struct {
	Data   []byte
	Binary bool
}

// CloseError is returned by Transport.Read when the peer closed the
// connection with a close frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("transport closed: code=%d reason=%q", e.Code, e.Reason)
}

// Transport is one established duplex connection for one session.
// Read is only ever called from the session's pump goroutine; Write and
// Close may be called from any goroutine.
type Transport interface {
	Read(ctx context.Context) (Message, error)
	Write(ctx context.Context, frame []byte) error
	Close(reason string) error
}

// Dialer opens a transport to a target. Dial returns once the opening
// handshake has completed or failed.
type Dialer interface {
	Dial(ctx context.Context, targetID string) (Transport, error)
}

// defaultReadLimit bounds a single inbound frame.
const defaultReadLimit = 1024 * 1024

// WSDialer dials <Backend>/ws/terminal/{targetId} over websocket.
type WSDialer struct {
	// Backend is the terminal backend base URL (http, https, ws or wss).
	Backend string
	// HTTPHeader is sent with the upgrade request.
	HTTPHeader http.Header
	// HTTPClient overrides the client used for the handshake.
	HTTPClient *http.Client
	// ReadLimit is the maximum inbound frame size; 0 uses 1 MB.
	ReadLimit int64
}

// Dial implements Dialer.
func (d *WSDialer) Dial(ctx context.Context, targetID string) (Transport, error) {
	u, err := protocol.TerminalURL(d.Backend, targetID)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPHeader: d.HTTPHeader,
		HTTPClient: d.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) (Message, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return Message{}, &CloseError{Code: int(ce.Code), Reason: ce.Reason}
		}
		return Message{}, err
	}
	return Message{Data: data, Binary: typ == websocket.MessageBinary}, nil
}

func (t *wsTransport) Write(ctx context.Context, frame []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, frame)
}

func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}
