package session

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/muurk/pettracer/internal/protocol"
)

const (
	// DefaultScheme is the URL scheme of the vendor endpoint.
	DefaultScheme = "wss"
	// DefaultHost is the vendor endpoint host.
	DefaultHost = "pt.pettracer.com"

	// serverIDRange bounds the numeric server identifier (000-999).
	serverIDRange = 1000
	// sessionIDLength is the length of the alphanumeric session identifier.
	sessionIDLength = 8

	sessionAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// State is the lifecycle state of the live channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateSubscribing
	StateLive
	StateClosing
)

var stateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateHandshaking:  "handshaking",
	StateSubscribing:  "subscribing",
	StateLive:         "live",
	StateClosing:      "closing",
}

// String returns the lower-case state name
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Endpoint is the scheme and host of the live endpoint.
type Endpoint struct {
	Scheme string
	Host   string
}

// DefaultEndpoint returns the production endpoint.
func DefaultEndpoint() Endpoint {
	return Endpoint{Scheme: DefaultScheme, Host: DefaultHost}
}

// URL builds the WebSocket URL for one session.
func (e Endpoint) URL(serverID, sessionID, token string) string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	host := e.Host
	if host == "" {
		host = DefaultHost
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     fmt.Sprintf("/sc/%s/%s/websocket", serverID, sessionID),
		RawQuery: url.Values{"access_token": {token}}.Encode(),
	}
	return u.String()
}

// ConnectionContext describes one connection attempt. A new context is built
// for every attempt; only the token and device ids carry over.
type ConnectionContext struct {
	AttemptID string
	ServerID  string
	SessionID string
	URL       string
	Token     string
	DeviceIDs []int
	State     State
	Retry     int
	CreatedAt time.Time
}

// BeginSession generates fresh identifiers and builds the endpoint URL.
func BeginSession(endpoint Endpoint, token string, deviceIDs []int) *ConnectionContext {
	serverID := NewServerID()
	sessionID := NewSessionID()
	return &ConnectionContext{
		AttemptID: uuid.New().String(),
		ServerID:  serverID,
		SessionID: sessionID,
		URL:       endpoint.URL(serverID, sessionID, token),
		Token:     token,
		DeviceIDs: NormalizeDeviceIDs(deviceIDs),
		State:     StateDisconnected,
		CreatedAt: time.Now(),
	}
}

// RedactedURL returns the endpoint URL with the token masked, for logs.
func (c *ConnectionContext) RedactedURL() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has(protocol.HeaderAccessToken) {
		q.Set(protocol.HeaderAccessToken, protocol.RedactedValue)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// NewServerID returns a random three-digit server identifier.
func NewServerID() string {
	return fmt.Sprintf("%03d", rand.IntN(serverIDRange))
}

// NewSessionID returns a random lower-case alphanumeric session identifier.
func NewSessionID() string {
	b := make([]byte, sessionIDLength)
	for i := range b {
		b[i] = sessionAlphabet[rand.IntN(len(sessionAlphabet))]
	}
	return string(b)
}

// NormalizeDeviceIDs returns a sorted copy of ids without duplicates.
// The result is never nil so that it encodes as [] rather than null.
func NormalizeDeviceIDs(ids []int) []int {
	out := make([]int, 0, len(ids))
	out = append(out, ids...)
	slices.Sort(out)
	return slices.Compact(out)
}
