package channel

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/pettracer/internal/protocol"
	"github.com/muurk/pettracer/internal/session"
	"github.com/muurk/pettracer/internal/session/sessiontest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 3 * time.Second

type harness struct {
	srv      *sessiontest.Server
	sup      *Supervisor
	states   chan session.State
	messages chan *protocol.Frame
	delays   chan time.Duration
	errs     chan string
}

// newHarness starts a fake endpoint and a supervisor pointed at it. Backoff
// delays are recorded and skipped so reconnects happen immediately.
func newHarness(t *testing.T, opts sessiontest.Options, cfg Config) *harness {
	t.Helper()
	srv := sessiontest.NewServer(opts)
	if cfg.Endpoint == (session.Endpoint{}) {
		cfg.Endpoint = srv.Endpoint()
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = time.Second
	}

	h := &harness{
		srv:      srv,
		states:   make(chan session.State, 256),
		messages: make(chan *protocol.Frame, 64),
		delays:   make(chan time.Duration, 64),
		errs:     make(chan string, 64),
	}
	h.sup = NewSupervisor(cfg,
		func(_ session.Subscription, f *protocol.Frame) { h.messages <- f },
		func(st session.State) { h.states <- st },
	)
	h.sup.sleep = func(ctx context.Context, d time.Duration) error {
		select {
		case h.errs <- h.sup.Status().LastError:
		default:
		}
		select {
		case h.delays <- d:
		default:
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
			return nil
		}
	}

	t.Cleanup(func() {
		h.sup.Stop()
		srv.Close()
	})
	return h
}

func (h *harness) waitState(t *testing.T, want session.State) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case st := <-h.states:
			if st == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %s not reached, current %s", want, h.sup.State())
		}
	}
}

func (h *harness) nextDelay(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-h.delays:
		return d
	case <-time.After(waitTimeout):
		t.Fatal("no reconnect scheduled")
		return 0
	}
}

func (h *harness) nextMessage(t *testing.T) *protocol.Frame {
	t.Helper()
	select {
	case f := <-h.messages:
		return f
	case <-time.After(waitTimeout):
		t.Fatal("no MESSAGE dispatched")
		return nil
	}
}

type failingDialer struct {
	calls atomic.Int32
}

func (d *failingDialer) Dial(context.Context, string) (session.Conn, error) {
	d.calls.Add(1)
	return nil, errors.New("dial tcp: connection refused")
}

func TestSupervisorReachesLive(t *testing.T) {
	h := newHarness(t, sessiontest.Options{}, Config{})

	require.NoError(t, h.sup.Start(context.Background(), "tok", []int{2, 1}))

	var seen []session.State
	deadline := time.After(waitTimeout)
	for len(seen) < 4 {
		select {
		case st := <-h.states:
			seen = append(seen, st)
		case <-deadline:
			t.Fatalf("states so far: %v", seen)
		}
	}
	assert.Equal(t, []session.State{
		session.StateConnecting,
		session.StateHandshaking,
		session.StateSubscribing,
		session.StateLive,
	}, seen)

	ids, err := h.srv.WaitForActivation(waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)

	status := h.sup.Status()
	assert.Equal(t, session.StateLive, status.State)
	assert.Equal(t, 0, status.Retries)
	assert.Equal(t, DefaultInitialBackoff, status.NextBackoff)
	assert.False(t, status.LiveSince.IsZero())

	var commands []string
	for _, f := range h.srv.Received() {
		commands = append(commands, f.Command)
	}
	assert.Equal(t, []string{"CONNECT", "SUBSCRIBE", "SUBSCRIBE", "SEND"}, commands)
}

func TestSupervisorDispatchesMessages(t *testing.T) {
	h := newHarness(t, sessiontest.Options{}, Config{})
	require.NoError(t, h.sup.Start(context.Background(), "tok", []int{7}))
	h.waitState(t, session.StateLive)
	_, err := h.srv.WaitForActivation(waitTimeout)
	require.NoError(t, err)

	h.srv.SendRaw("garbage")
	h.srv.SendRaw(`a["NOT A FRAME"]`)
	h.srv.SendRaw(`a["\n"]`)
	h.srv.Heartbeat()
	require.Equal(t, 1, h.srv.Publish(session.DestinationMessages, `{"id":7,"lastRssi":199}`))

	f := h.nextMessage(t)
	assert.Equal(t, protocol.CommandMessage, f.Command)
	assert.Equal(t, `{"id":7,"lastRssi":199}`, f.Body)
	assert.Equal(t, session.StateLive, h.sup.State(), "malformed input must not drop the connection")
}

func TestSupervisorReconnectsAfterCloseEnvelope(t *testing.T) {
	h := newHarness(t, sessiontest.Options{}, Config{})
	require.NoError(t, h.sup.Start(context.Background(), "tok", []int{1}))
	h.waitState(t, session.StateLive)

	h.srv.CloseSessions(1000, "reason")
	h.waitState(t, session.StateDisconnected)
	assert.Equal(t, 5*time.Second, h.nextDelay(t))
	assert.Contains(t, <-h.errs, "1000")

	h.waitState(t, session.StateLive)
	assert.Equal(t, 0, h.sup.Retries(), "retry counter resets on Live")

	reqs := h.srv.Requests()
	require.Len(t, reqs, 2)
	assert.NotEqual(t, reqs[0].SessionID, reqs[1].SessionID, "session ids are not reused")

	h.srv.CloseSessions(1000, "again")
	assert.Equal(t, 5*time.Second, h.nextDelay(t), "backoff restarts after a Live connection")
}

func TestSupervisorReconnectsAfterDroppedSocket(t *testing.T) {
	h := newHarness(t, sessiontest.Options{}, Config{})
	require.NoError(t, h.sup.Start(context.Background(), "tok", []int{1}))
	h.waitState(t, session.StateLive)

	h.srv.DropConnections()
	assert.Equal(t, 5*time.Second, h.nextDelay(t))
	h.waitState(t, session.StateLive)
}

func TestSupervisorBackoffSequence(t *testing.T) {
	dialer := &failingDialer{}
	h := newHarness(t, sessiontest.Options{}, Config{Dialer: dialer})

	var delays []time.Duration
	done := make(chan struct{})
	h.sup.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) == 8 {
			close(done)
			return context.Canceled
		}
		return nil
	}

	require.NoError(t, h.sup.Start(context.Background(), "tok", nil))
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("backoff loop did not run")
	}
	<-h.sup.Done()

	want := []time.Duration{5, 10, 20, 40, 80, 160, 300, 300}
	for i := range want {
		want[i] *= time.Second
	}
	assert.Equal(t, want, delays)
	assert.Equal(t, int32(8), dialer.calls.Load())
	assert.Equal(t, 8, h.sup.Retries())
}

func TestSupervisorHandshakeFailureRetries(t *testing.T) {
	h := newHarness(t, sessiontest.Options{RejectConnect: "bad token"}, Config{})
	require.NoError(t, h.sup.Start(context.Background(), "tok", []int{1}))

	assert.Equal(t, 5*time.Second, h.nextDelay(t))
	assert.Contains(t, <-h.errs, "bad token")
	assert.Equal(t, 10*time.Second, h.nextDelay(t))
	assert.NotEqual(t, session.StateLive, h.sup.State())
}

func TestSupervisorHeartbeatTimeout(t *testing.T) {
	h := newHarness(t, sessiontest.Options{}, Config{HeartbeatTimeout: 200 * time.Millisecond})
	require.NoError(t, h.sup.Start(context.Background(), "tok", []int{1}))
	h.waitState(t, session.StateLive)

	h.waitState(t, session.StateDisconnected)
	assert.Equal(t, 5*time.Second, h.nextDelay(t))
	assert.Contains(t, <-h.errs, "heartbeat")
}

func TestSupervisorHeartbeatsKeepAlive(t *testing.T) {
	h := newHarness(t, sessiontest.Options{}, Config{HeartbeatTimeout: 300 * time.Millisecond})
	require.NoError(t, h.sup.Start(context.Background(), "tok", []int{1}))
	h.waitState(t, session.StateLive)

	for i := 0; i < 6; i++ {
		time.Sleep(100 * time.Millisecond)
		h.srv.Heartbeat()
	}
	assert.Equal(t, session.StateLive, h.sup.State())
	assert.Equal(t, 1, h.srv.ConnectionCount())
}

func TestSupervisorStopSendsDisconnect(t *testing.T) {
	h := newHarness(t, sessiontest.Options{}, Config{})
	require.NoError(t, h.sup.Start(context.Background(), "tok", []int{1}))
	h.waitState(t, session.StateLive)

	h.sup.Stop()
	assert.Equal(t, session.StateDisconnected, h.sup.State())

	_, err := h.srv.WaitForFrame(protocol.CommandDisconnect, waitTimeout)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.srv.ConnectionCount(), "no reconnect after Stop")
	assert.Empty(t, h.delays)
}

func TestSupervisorStopDuringBackoff(t *testing.T) {
	h := newHarness(t, sessiontest.Options{}, Config{
		Dialer:         &failingDialer{},
		InitialBackoff: time.Hour,
	})
	h.sup.sleep = sleepContext

	require.NoError(t, h.sup.Start(context.Background(), "tok", nil))
	h.waitState(t, session.StateDisconnected)

	stopped := make(chan struct{})
	go func() {
		h.sup.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(waitTimeout):
		t.Fatal("Stop did not preempt the backoff delay")
	}
	assert.Equal(t, session.StateDisconnected, h.sup.State())
}

func TestSupervisorStopDuringHandshake(t *testing.T) {
	h := newHarness(t, sessiontest.Options{IgnoreConnect: true}, Config{HandshakeTimeout: time.Hour})
	require.NoError(t, h.sup.Start(context.Background(), "tok", nil))
	h.waitState(t, session.StateHandshaking)

	stopped := make(chan struct{})
	go func() {
		h.sup.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(waitTimeout):
		t.Fatal("Stop did not preempt the handshake")
	}
}

func TestSupervisorUpdateDeviceIDsWhileLive(t *testing.T) {
	h := newHarness(t, sessiontest.Options{}, Config{})
	require.NoError(t, h.sup.Start(context.Background(), "tok", []int{1, 2, 3}))
	h.waitState(t, session.StateLive)
	_, err := h.srv.WaitForActivation(waitTimeout)
	require.NoError(t, err)

	removed, err := h.sup.UpdateDeviceIDs([]int{4, 3, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, removed)

	ids, err := h.srv.WaitForActivation(waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, ids)
	assert.Equal(t, []int{2, 3, 4}, h.srv.ActiveDevices())

	var unsubscribe *protocol.Frame
	for _, f := range h.srv.Received() {
		if f.Destination() == session.DestinationDeactivate {
			unsubscribe = f
		}
	}
	require.NotNil(t, unsubscribe)
	assert.Equal(t, `{"deviceIds":[1]}`, unsubscribe.Body)

	removed, err = h.sup.UpdateDeviceIDs([]int{2, 3, 4})
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestSupervisorUpdateDeviceIDsBeforeStart(t *testing.T) {
	h := newHarness(t, sessiontest.Options{}, Config{})

	_, err := h.sup.UpdateDeviceIDs([]int{9})
	require.NoError(t, err)
	assert.Equal(t, []int{9}, h.sup.DeviceIDs())

	require.NoError(t, h.sup.Start(context.Background(), "tok", []int{9, 10}))
	ids, err := h.srv.WaitForActivation(waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, []int{9, 10}, ids)
}

func TestSupervisorStartValidation(t *testing.T) {
	h := newHarness(t, sessiontest.Options{}, Config{})

	assert.Error(t, h.sup.Start(context.Background(), "", nil))

	require.NoError(t, h.sup.Start(context.Background(), "tok", nil))
	assert.ErrorIs(t, h.sup.Start(context.Background(), "tok", nil), ErrAlreadyRunning)

	h.sup.Stop()
	h.sup.Stop()
	require.NoError(t, h.sup.Start(context.Background(), "tok", nil), "restart after Stop")
}

func TestSupervisorRecordsCapture(t *testing.T) {
	const secret = "SECRET-TOKEN-123"

	rec := NewRecorder(t.TempDir())
	h := newHarness(t, sessiontest.Options{RequireToken: secret}, Config{Recorder: rec})
	require.NoError(t, h.sup.Start(context.Background(), secret, []int{1}))
	h.waitState(t, session.StateLive)
	h.sup.Stop()
	require.NoError(t, rec.Close())

	require.NotEmpty(t, rec.Filename())
	data, err := os.ReadFile(rec.Filename())
	require.NoError(t, err)
	assert.NotContains(t, string(data), secret)
	assert.Contains(t, string(data), `access_token:`+protocol.RedactedValue)

	info, err := os.Stat(rec.Filename())
	require.NoError(t, err)
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("capture mode = %o, want %o", got, 0o600)
	}

	// the server still received the real token
	var connect *protocol.Frame
	for _, f := range h.srv.Received() {
		if f.Command == protocol.CommandConnect {
			connect = f
		}
	}
	require.NotNil(t, connect)
	token, _ := connect.Get(protocol.HeaderAccessToken)
	assert.Equal(t, secret, token)
}

// stopFromHandler builds a supervisor whose handlers are set by the test.
func stopFromHandler(t *testing.T, onMessage func(*Supervisor), onState func(*Supervisor, session.State)) (*Supervisor, *sessiontest.Server, chan session.State) {
	t.Helper()
	srv := sessiontest.NewServer(sessiontest.Options{})
	states := make(chan session.State, 256)

	var sup *Supervisor
	sup = NewSupervisor(Config{Endpoint: srv.Endpoint(), HandshakeTimeout: time.Second},
		func(session.Subscription, *protocol.Frame) {
			if onMessage != nil {
				onMessage(sup)
			}
		},
		func(st session.State) {
			states <- st
			if onState != nil {
				onState(sup, st)
			}
		},
	)
	t.Cleanup(func() {
		sup.Stop()
		srv.Close()
	})
	return sup, srv, states
}

func waitDone(t *testing.T, sup *Supervisor) {
	t.Helper()
	select {
	case <-sup.Done():
	case <-time.After(waitTimeout):
		t.Fatal("run goroutine did not exit")
	}
}

func drainStates(states chan session.State) []session.State {
	var out []session.State
	for {
		select {
		case st := <-states:
			out = append(out, st)
		default:
			return out
		}
	}
}

func TestSupervisorStopFromMessageHandler(t *testing.T) {
	returned := make(chan struct{})
	sup, srv, states := stopFromHandler(t, func(s *Supervisor) {
		s.Stop()
		close(returned)
	}, nil)

	require.NoError(t, sup.Start(context.Background(), "tok", []int{1}))
	_, err := srv.WaitForActivation(waitTimeout)
	require.NoError(t, err)
	srv.Publish(session.DestinationMessages, `{"id":1}`)

	select {
	case <-returned:
	case <-time.After(waitTimeout):
		t.Fatal("Stop called from the message handler blocked")
	}
	waitDone(t, sup)
	assert.Equal(t, session.StateDisconnected, sup.State())

	seen := drainStates(states)
	require.GreaterOrEqual(t, len(seen), 2)
	assert.Equal(t, []session.State{session.StateClosing, session.StateDisconnected}, seen[len(seen)-2:])

	_, err = srv.WaitForFrame(protocol.CommandDisconnect, waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.ConnectionCount())
}

func TestSupervisorStopFromStateHandler(t *testing.T) {
	returned := make(chan struct{})
	sup, srv, states := stopFromHandler(t, nil, func(s *Supervisor, st session.State) {
		if st == session.StateLive {
			s.Stop()
			close(returned)
		}
	})

	require.NoError(t, sup.Start(context.Background(), "tok", []int{1}))
	select {
	case <-returned:
	case <-time.After(waitTimeout):
		t.Fatal("Stop called from the state handler blocked")
	}
	waitDone(t, sup)

	seen := drainStates(states)
	tests := []struct {
		name string
		want session.State
		at   int
	}{
		{"last", session.StateDisconnected, len(seen) - 1},
		{"before last", session.StateClosing, len(seen) - 2},
		{"live before closing", session.StateLive, len(seen) - 3},
	}
	for _, tt := range tests {
		require.GreaterOrEqual(t, tt.at, 0, tt.name)
		if seen[tt.at] != tt.want {
			t.Errorf("%s = %s, want %s (states %v)", tt.name, seen[tt.at], tt.want, seen)
		}
	}
	assert.Equal(t, 1, srv.ConnectionCount())
}

func TestSupervisorStopRacesMessages(t *testing.T) {
	h := newHarness(t, sessiontest.Options{}, Config{})
	require.NoError(t, h.sup.Start(context.Background(), "tok", []int{1}))
	h.waitState(t, session.StateLive)

	go func() {
		// stays under the harness message buffer
		for i := 0; i < 40; i++ {
			h.srv.Publish(session.DestinationMessages, `{"id":1}`)
		}
	}()
	h.nextMessage(t)

	stopped := make(chan struct{})
	go func() {
		h.sup.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(waitTimeout):
		t.Fatal("Stop did not return while messages were arriving")
	}

	after := drainStates(h.states)
	for i, st := range after {
		if st == session.StateClosing {
			for _, later := range after[i+1:] {
				if later != session.StateDisconnected {
					t.Errorf("state %s published after Closing (states %v)", later, after)
				}
			}
		}
	}
	assert.Equal(t, session.StateDisconnected, h.sup.State())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.srv.ConnectionCount(), "no reconnect after Stop")
}
