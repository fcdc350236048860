package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/pettracer/internal/logging"
	"github.com/muurk/pettracer/internal/protocol"
	"go.uber.org/zap"
)

// Direction labels an envelope for logging and capture.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Conn is the subset of *websocket.Conn the live channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a transport connection to a session URL.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	// Dialer overrides websocket.DefaultDialer when set.
	Dialer *websocket.Dialer
	// Header is sent with the upgrade request (e.g. User-Agent).
	Header http.Header
}

// Dial opens the WebSocket. Failures are classified transport errors.
func (d *WebSocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, d.Header)
	if err != nil {
		sessErr := ClassifyTransportError(err)
		if resp != nil {
			sessErr.Message = fmt.Sprintf("%s (HTTP %d)", sessErr.Message, resp.StatusCode)
		}
		return nil, sessErr
	}
	return conn, nil
}

// Observer is told about every envelope crossing the transport.
type Observer func(dir Direction, data []byte)

// Transport wraps one connection. Writes are serialized; reads must come
// from a single goroutine.
type Transport struct {
	conn Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error

	observer Observer
}

// NewTransport wraps conn. The observer may be nil.
func NewTransport(conn Conn, observer Observer) *Transport {
	return &Transport{conn: conn, observer: observer}
}

// Send encodes frames into one client envelope and writes it. The frame
// log and the observer see the envelope with the access token masked.
func (t *Transport) Send(frames ...*protocol.Frame) error {
	texts := make([]string, len(frames))
	masked := make([]string, len(frames))
	redacted := false
	for i, f := range frames {
		texts[i] = f.Encode()
		if r := f.Redacted(); r != f {
			masked[i] = r.Encode()
			redacted = true
		} else {
			masked[i] = texts[i]
		}
	}
	payload, err := protocol.EncodeEnvelope(texts...)
	if err != nil {
		return err
	}
	visible := payload
	if redacted {
		if visible, err = protocol.EncodeEnvelope(masked...); err != nil {
			return err
		}
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	logging.LogFrame(string(Outbound), visible)
	t.observe(Outbound, visible)

	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return ClassifyTransportError(err)
	}
	return nil
}

// Read blocks for the next message. A zero deadline waits forever.
func (t *Transport) Read(deadline time.Time) ([]byte, error) {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, ClassifyTransportError(err)
	}
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, ClassifyTransportError(err)
	}

	logging.LogFrame(string(Inbound), data)
	t.observe(Inbound, data)
	return data, nil
}

// Close closes the connection. It is safe to call more than once and from
// any goroutine; a blocked Read returns with an error.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
		if t.closeErr != nil {
			logging.Debug("Transport close failed", zap.Error(t.closeErr))
		}
	})
	return t.closeErr
}

func (t *Transport) observe(dir Direction, data []byte) {
	if t.observer != nil {
		t.observer(dir, data)
	}
}
