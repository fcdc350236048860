package session

import (
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint Endpoint
		token    string
		want     string
	}{
		{
			name:     "production",
			endpoint: DefaultEndpoint(),
			token:    "abc",
			want:     "wss://pt.pettracer.com/sc/042/k3j9xq0a/websocket?access_token=abc",
		},
		{
			name:     "empty endpoint falls back to defaults",
			endpoint: Endpoint{},
			token:    "abc",
			want:     "wss://pt.pettracer.com/sc/042/k3j9xq0a/websocket?access_token=abc",
		},
		{
			name:     "token is query-escaped",
			endpoint: Endpoint{Scheme: "ws", Host: "127.0.0.1:8080"},
			token:    "a b&c=d",
			want:     "ws://127.0.0.1:8080/sc/042/k3j9xq0a/websocket?access_token=a+b%26c%3Dd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.endpoint.URL("042", "k3j9xq0a", tt.token)
			if got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBeginSession(t *testing.T) {
	serverRe := regexp.MustCompile(`^[0-9]{3}$`)
	sessionRe := regexp.MustCompile(`^[a-z0-9]{8}$`)

	cc := BeginSession(DefaultEndpoint(), "tok", []int{3, 1, 3, 2})

	assert.Regexp(t, serverRe, cc.ServerID)
	assert.Regexp(t, sessionRe, cc.SessionID)
	assert.NotEmpty(t, cc.AttemptID)
	assert.Equal(t, []int{1, 2, 3}, cc.DeviceIDs)
	assert.Equal(t, StateDisconnected, cc.State)
	assert.Equal(t, "tok", cc.Token)

	u, err := url.Parse(cc.URL)
	require.NoError(t, err)
	assert.Equal(t, "wss", u.Scheme)
	assert.Equal(t, "/sc/"+cc.ServerID+"/"+cc.SessionID+"/websocket", u.Path)
	assert.Equal(t, "tok", u.Query().Get("access_token"))
}

func TestBeginSessionFreshIdentifiers(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		cc := BeginSession(DefaultEndpoint(), "tok", nil)
		key := cc.ServerID + "/" + cc.SessionID
		if seen[key] {
			t.Fatalf("identifiers reused across attempts: %s", key)
		}
		seen[key] = true
		if seen[cc.AttemptID] {
			t.Fatalf("attempt id reused: %s", cc.AttemptID)
		}
		seen[cc.AttemptID] = true
	}
}

func TestRedactedURL(t *testing.T) {
	cc := BeginSession(DefaultEndpoint(), "supersecret", nil)
	got := cc.RedactedURL()
	if strings.Contains(got, "supersecret") {
		t.Errorf("RedactedURL() leaked token: %s", got)
	}
	assert.Contains(t, got, "access_token=REDACTED")
}

func TestNormalizeDeviceIDs(t *testing.T) {
	assert.Equal(t, []int{}, NormalizeDeviceIDs(nil))
	assert.Equal(t, []int{1, 5, 9}, NormalizeDeviceIDs([]int{9, 1, 5, 1}))

	in := []int{2, 1}
	_ = NormalizeDeviceIDs(in)
	assert.Equal(t, []int{2, 1}, in, "input must not be modified")
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateHandshaking, "handshaking"},
		{StateSubscribing, "subscribing"},
		{StateLive, "live"},
		{StateClosing, "closing"},
		{State(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
