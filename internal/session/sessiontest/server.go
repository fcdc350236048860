// Package sessiontest provides an in-process stand-in for the PetTracer live
// endpoint. It speaks the envelope and STOMP layers over a real WebSocket
// and, like the vendor service, streams MESSAGE frames only to connections
// that have sent the /app/subscribe activation.
package sessiontest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/pettracer/internal/protocol"
	"github.com/muurk/pettracer/internal/session"
)

// Options changes how the fake endpoint behaves.
type Options struct {
	// FirstEnvelope replaces the 'o' sent on connect. Use "-" to send nothing.
	FirstEnvelope string
	// RejectConnect answers CONNECT with an ERROR frame carrying this message.
	RejectConnect string
	// IgnoreConnect never answers CONNECT.
	IgnoreConnect bool
	// RequireToken rejects the upgrade with 401 unless access_token matches.
	RequireToken string
}

// Request records one upgrade request.
type Request struct {
	ServerID  string
	SessionID string
	Token     string
}

// Server is a fake live endpoint.
type Server struct {
	httpServer *httptest.Server
	upgrader   websocket.Upgrader
	opts       Options

	mu        sync.Mutex
	conns     []*serverConn
	requests  []Request
	received  []*protocol.Frame
	activated chan []int
	frames    chan *protocol.Frame
}

type serverConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu            sync.Mutex
	subscriptions map[string]string // destination -> subscription id
	activeDevices []int
	activated     bool
}

// NewServer starts a fake endpoint. Close it when done.
func NewServer(opts Options) *Server {
	s := &Server{
		opts:      opts,
		activated: make(chan []int, 16),
		frames:    make(chan *protocol.Frame, 256),
	}
	s.httpServer = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Endpoint returns the ws:// endpoint of the fake server.
func (s *Server) Endpoint() session.Endpoint {
	u, _ := url.Parse(s.httpServer.URL)
	return session.Endpoint{Scheme: "ws", Host: u.Host}
}

// Close stops the server and drops all connections.
func (s *Server) Close() {
	s.DropConnections()
	s.httpServer.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[0] != "sc" || parts[3] != "websocket" {
		http.NotFound(w, r)
		return
	}
	token := r.URL.Query().Get("access_token")
	if s.opts.RequireToken != "" && token != s.opts.RequireToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := &serverConn{ws: ws, subscriptions: make(map[string]string)}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.requests = append(s.requests, Request{ServerID: parts[1], SessionID: parts[2], Token: token})
	s.mu.Unlock()

	switch s.opts.FirstEnvelope {
	case "":
		_ = conn.write("o")
	case "-":
	default:
		_ = conn.write(s.opts.FirstEnvelope)
	}

	go s.readLoop(conn)
}

func (s *Server) readLoop(conn *serverConn) {
	defer conn.ws.Close()
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		var texts []string
		if err := json.Unmarshal(data, &texts); err != nil {
			continue
		}
		for _, text := range texts {
			frame, err := protocol.DecodeFrame(text)
			if err != nil {
				continue
			}
			s.mu.Lock()
			s.received = append(s.received, frame)
			s.mu.Unlock()
			select {
			case s.frames <- frame:
			default:
			}
			s.handleFrame(conn, frame)
		}
	}
}

func (s *Server) handleFrame(conn *serverConn, frame *protocol.Frame) {
	switch frame.Command {
	case protocol.CommandConnect:
		switch {
		case s.opts.IgnoreConnect:
		case s.opts.RejectConnect != "":
			_ = conn.writeFrames(protocol.EncodeFrame(protocol.CommandError,
				protocol.Headers{protocol.HeaderMessage: s.opts.RejectConnect}, ""))
		default:
			_ = conn.writeFrames(protocol.EncodeFrame(protocol.CommandConnected,
				protocol.Headers{protocol.HeaderVersion: "1.1", protocol.HeaderHeartBeat: "0,0"}, ""))
		}

	case protocol.CommandSubscribe:
		id, _ := frame.Get(protocol.HeaderID)
		conn.mu.Lock()
		conn.subscriptions[frame.Destination()] = id
		conn.mu.Unlock()

	case protocol.CommandSend:
		var payload session.DeviceIDsPayload
		if err := json.Unmarshal([]byte(frame.Body), &payload); err != nil {
			return
		}
		switch frame.Destination() {
		case session.DestinationActivate:
			conn.mu.Lock()
			conn.activated = true
			conn.activeDevices = payload.DeviceIDs
			conn.mu.Unlock()
			select {
			case s.activated <- payload.DeviceIDs:
			default:
			}
		case session.DestinationDeactivate:
			conn.mu.Lock()
			conn.activeDevices = without(conn.activeDevices, payload.DeviceIDs)
			conn.mu.Unlock()
		}
	}
}

// Publish sends a MESSAGE with body to every activated connection that
// subscribed to destination. It returns the number of connections reached.
func (s *Server) Publish(destination, body string) int {
	sent := 0
	for _, conn := range s.connections() {
		conn.mu.Lock()
		subID, subscribed := conn.subscriptions[destination]
		ready := subscribed && conn.activated
		conn.mu.Unlock()
		if !ready {
			continue
		}
		text := protocol.EncodeFrame(protocol.CommandMessage, protocol.Headers{
			protocol.HeaderDestination:   destination,
			protocol.HeaderSubscription:  subID,
			protocol.HeaderMessageID:     fmt.Sprintf("msg-%d", time.Now().UnixNano()),
			protocol.HeaderContentLength: "",
		}, body)
		if conn.writeFrames(text) == nil {
			sent++
		}
	}
	return sent
}

// SendRaw writes an arbitrary envelope to every connection.
func (s *Server) SendRaw(envelope string) {
	for _, conn := range s.connections() {
		_ = conn.write(envelope)
	}
}

// Heartbeat sends 'h' to every connection.
func (s *Server) Heartbeat() {
	s.SendRaw("h")
}

// CloseSessions sends a 'c' envelope to every connection.
func (s *Server) CloseSessions(code int, reason string) {
	data, _ := protocol.EncodeServerEnvelope(&protocol.Envelope{
		Type:        protocol.EnvelopeClose,
		CloseCode:   code,
		CloseReason: reason,
	})
	s.SendRaw(string(data))
}

// DropConnections closes every socket without a close envelope.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, conn := range conns {
		conn.ws.Close()
	}
}

// WaitForActivation returns the device ids of the next activation command.
func (s *Server) WaitForActivation(timeout time.Duration) ([]int, error) {
	select {
	case ids := <-s.activated:
		return ids, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no activation within %s", timeout)
	}
}

// WaitForFrame returns the next received frame with the given command.
func (s *Server) WaitForFrame(command string, timeout time.Duration) (*protocol.Frame, error) {
	deadline := time.After(timeout)
	for {
		select {
		case f := <-s.frames:
			if f.Command == command {
				return f, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("no %s frame within %s", command, timeout)
		}
	}
}

// ActiveDevices returns the devices the most recent connection is streaming.
func (s *Server) ActiveDevices() []int {
	conns := s.connections()
	if len(conns) == 0 {
		return nil
	}
	last := conns[len(conns)-1]
	last.mu.Lock()
	defer last.mu.Unlock()
	return append([]int(nil), last.activeDevices...)
}

// Received returns every inner frame received so far.
func (s *Server) Received() []*protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*protocol.Frame(nil), s.received...)
}

// Requests returns the upgrade requests seen so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// ConnectionCount returns the number of connections accepted so far.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Server) connections() []*serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*serverConn(nil), s.conns...)
}

func (c *serverConn) write(envelope string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(envelope))
}

func (c *serverConn) writeFrames(texts ...string) error {
	data, err := protocol.EncodeServerEnvelope(&protocol.Envelope{
		Type:   protocol.EnvelopeArray,
		Frames: texts,
	})
	if err != nil {
		return err
	}
	return c.write(string(data))
}

func without(ids, remove []int) []int {
	drop := make(map[int]bool, len(remove))
	for _, id := range remove {
		drop[id] = true
	}
	out := ids[:0:0]
	for _, id := range ids {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}
