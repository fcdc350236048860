package channel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/pettracer/internal/logging"
	"github.com/muurk/pettracer/internal/protocol"
	"github.com/muurk/pettracer/internal/session"
	"go.uber.org/zap"
)

// DefaultHeartbeatTimeout is how long a Live connection may stay silent.
const DefaultHeartbeatTimeout = 45 * time.Second

// ErrAlreadyRunning is returned by Start on a running supervisor.
var ErrAlreadyRunning = errors.New("channel: supervisor already running")

// Config configures a Supervisor. Zero values select defaults.
type Config struct {
	Endpoint         session.Endpoint
	Dialer           session.Dialer
	HandshakeTimeout time.Duration
	HeartbeatTimeout time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	Destinations     []string
	Recorder         *Recorder
}

// MessageHandler receives inbound MESSAGE frames. It runs on the receive
// goroutine and must not block for long. It may call Stop.
type MessageHandler func(sub session.Subscription, frame *protocol.Frame)

// StateHandler is told about every state transition, in order. All calls
// come from the run goroutine. It may call Stop.
type StateHandler func(state session.State)

// Status is a point-in-time view of the supervisor.
type Status struct {
	State       session.State `json:"state"`
	Retries     int           `json:"retries"`
	NextBackoff time.Duration `json:"next_backoff"`
	DeviceIDs   []int         `json:"device_ids"`
	AttemptID   string        `json:"attempt_id,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	LiveSince   time.Time     `json:"live_since"`
}

// Supervisor owns the live connection lifecycle.
type Supervisor struct {
	cfg       Config
	onMessage MessageHandler
	onState   StateHandler

	mu        sync.Mutex
	state     session.State
	token     string
	deviceIDs []int
	policy    *Backoff
	running   bool
	stopping  bool
	cancel    context.CancelFunc
	done      chan struct{}
	transport *session.Transport
	live      *liveConn
	attemptID string
	lastErr   error
	liveSince time.Time

	// inCallback is non-zero while the run goroutine is inside a handler.
	inCallback atomic.Int32

	// sleep waits out a backoff delay; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// liveConn is the connection currently in the Live state.
type liveConn struct {
	transport *session.Transport
	subs      *session.Subscriptions
}

// NewSupervisor returns a stopped supervisor.
func NewSupervisor(cfg Config, onMessage MessageHandler, onState StateHandler) *Supervisor {
	if cfg.Dialer == nil {
		cfg.Dialer = &session.WebSocketDialer{}
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = session.DefaultHandshakeTimeout
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if len(cfg.Destinations) == 0 {
		cfg.Destinations = session.DefaultDestinations
	}
	return &Supervisor{
		cfg:       cfg,
		onMessage: onMessage,
		onState:   onState,
		state:     session.StateDisconnected,
		deviceIDs: []int{},
		policy:    NewBackoff(cfg.InitialBackoff, cfg.MaxBackoff),
		sleep:     sleepContext,
	}
}

// Start begins connecting in the background.
func (s *Supervisor) Start(ctx context.Context, token string, deviceIDs []int) error {
	if token == "" {
		return fmt.Errorf("channel: empty access token")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.token = token
	s.deviceIDs = session.NormalizeDeviceIDs(deviceIDs)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.lastErr = nil
	s.policy.Reset()
	done := s.done
	s.mu.Unlock()

	go s.run(runCtx, done)
	return nil
}

// Stop closes the connection, cancels any pending reconnect and waits for
// the background goroutine. The supervisor can be started again afterwards.
//
// While a MessageHandler or StateHandler is running, including when the
// handler itself calls Stop, Stop does not wait: the run goroutine publishes
// Closing and Disconnected as soon as the handler returns.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	first := !s.stopping
	s.stopping = true
	s.cancel()
	done := s.done
	tr, live := s.transport, s.live
	s.mu.Unlock()

	if first && tr != nil {
		if live != nil {
			if err := tr.Send(protocol.NewDisconnect("")); err != nil {
				logging.Debug("Failed to send DISCONNECT", zap.Error(err))
			}
		}
		_ = tr.Close()
	}

	if s.inCallback.Load() > 0 {
		return
	}
	<-done
}

// Done is closed when the background goroutine of the current run exits.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// UpdateDeviceIDs replaces the tracked device set. When Live, removed ids
// are deactivated and the new set is activated on the current connection;
// otherwise the set takes effect on the next connection. It returns the
// removed ids.
func (s *Supervisor) UpdateDeviceIDs(deviceIDs []int) ([]int, error) {
	next := session.NormalizeDeviceIDs(deviceIDs)

	s.mu.Lock()
	removed := difference(s.deviceIDs, next)
	unchanged := slices.Equal(s.deviceIDs, next)
	s.deviceIDs = next
	live := s.live
	s.mu.Unlock()

	if unchanged || live == nil {
		return removed, nil
	}

	if err := live.subs.Deactivate(live.transport, removed); err != nil {
		return removed, err
	}
	if err := live.subs.Activate(live.transport, next); err != nil {
		return removed, err
	}
	logging.Info("Re-activated device set",
		zap.Ints("device_ids", next),
		zap.Ints("removed", removed),
	)
	return removed, nil
}

// State returns the current state.
func (s *Supervisor) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Retries returns the number of consecutive failed attempts.
func (s *Supervisor) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.Failures()
}

// DeviceIDs returns the tracked device set.
func (s *Supervisor) DeviceIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deviceIDs)
}

// Status returns a snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:       s.state,
		Retries:     s.policy.Failures(),
		NextBackoff: s.policy.Peek(),
		DeviceIDs:   slices.Clone(s.deviceIDs),
		AttemptID:   s.attemptID,
		LiveSince:   s.liveSince,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer s.finish(done)

	for {
		err := s.connect(ctx)
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		s.lastErr = err
		delay := s.policy.Next()
		retries := s.policy.Failures()
		attemptID := s.attemptID
		s.mu.Unlock()

		s.setState(session.StateDisconnected)
		logging.LogConnection(attemptID, "failed",
			zap.Error(err),
			zap.Int("retries", retries),
			zap.Duration("reconnect_in", delay),
		)

		if err := s.sleep(ctx, delay); err != nil {
			return
		}
	}
}

// finish publishes the terminal transitions and marks the run over.
func (s *Supervisor) finish(done chan struct{}) {
	s.setState(session.StateClosing)
	s.setState(session.StateDisconnected)

	s.mu.Lock()
	s.running = false
	s.stopping = false
	s.cancel = nil
	s.mu.Unlock()
	close(done)
}

// connect runs one attempt from dial to the end of the receive loop.
func (s *Supervisor) connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	cc := session.BeginSession(s.cfg.Endpoint, s.token, s.deviceIDs)
	cc.Retry = s.policy.Failures()
	s.attemptID = cc.AttemptID
	s.mu.Unlock()

	s.setState(session.StateConnecting)
	logging.LogConnection(cc.AttemptID, "dialing",
		zap.String("url", cc.RedactedURL()),
		zap.Int("retry", cc.Retry),
	)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	conn, err := s.cfg.Dialer.Dial(dialCtx, cc.URL)
	cancel()
	if err != nil {
		return err
	}

	tr := session.NewTransport(conn, s.cfg.Recorder.Observer(cc.AttemptID))
	if err := s.attach(ctx, tr); err != nil {
		return err
	}
	defer s.detach(tr)

	if err := session.AwaitOpen(tr, s.cfg.HandshakeTimeout); err != nil {
		return err
	}
	s.setState(session.StateHandshaking)

	connected, err := session.Connect(tr, cc.Token, s.cfg.HandshakeTimeout)
	if err != nil {
		return err
	}
	version, _ := connected.Get(protocol.HeaderVersion)
	logging.LogConnection(cc.AttemptID, "connected", zap.String("stomp_version", version))
	s.setState(session.StateSubscribing)

	subs := session.NewSubscriptions()
	subs.Observe(func(sub session.Subscription) {
		logging.Info("Subscription active",
			zap.String("attempt_id", cc.AttemptID),
			zap.String("id", sub.ID),
			zap.String("destination", sub.Destination),
		)
	})
	if _, err := subs.Subscribe(tr, s.cfg.Destinations...); err != nil {
		return err
	}
	if err := subs.Activate(tr, cc.DeviceIDs); err != nil {
		return err
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return ctx.Err()
	}
	s.live = &liveConn{transport: tr, subs: subs}
	s.policy.Reset()
	s.liveSince = time.Now()
	s.lastErr = nil
	current := s.deviceIDs
	s.mu.Unlock()

	// The set may have changed while subscribing.
	if !slices.Equal(current, cc.DeviceIDs) {
		if err := subs.Deactivate(tr, difference(cc.DeviceIDs, current)); err != nil {
			return err
		}
		if err := subs.Activate(tr, current); err != nil {
			return err
		}
	}

	s.setState(session.StateLive)
	logging.LogConnection(cc.AttemptID, "live", zap.Ints("device_ids", current))

	return s.receive(ctx, tr, subs)
}

func (s *Supervisor) attach(ctx context.Context, tr *session.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		_ = tr.Close()
		return ctx.Err()
	}
	s.transport = tr
	return nil
}

func (s *Supervisor) detach(tr *session.Transport) {
	s.mu.Lock()
	if s.transport == tr {
		s.transport = nil
		s.live = nil
		s.liveSince = time.Time{}
	}
	s.mu.Unlock()
	_ = tr.Close()
}

// receive reads envelopes until the connection fails.
func (s *Supervisor) receive(ctx context.Context, tr *session.Transport, subs *session.Subscriptions) error {
	for {
		data, err := tr.Read(time.Now().Add(s.cfg.HeartbeatTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if session.IsTimeoutError(err) {
				return session.NewHeartbeatTimeoutError(err)
			}
			return err
		}

		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			logging.Warn("Skipping malformed envelope", zap.Error(err))
			continue
		}

		switch env.Type {
		case protocol.EnvelopeHeartbeat:
		case protocol.EnvelopeOpen:
			logging.Debug("Ignoring repeated session open")
		case protocol.EnvelopeClose:
			return session.NewCloseError(env.CloseCode, env.CloseReason)
		case protocol.EnvelopeArray:
			for _, text := range env.Frames {
				s.dispatch(subs, text)
			}
		}
	}
}

func (s *Supervisor) dispatch(subs *session.Subscriptions, text string) {
	if protocol.IsHeartbeatFrame(text) {
		return
	}
	frame, err := protocol.DecodeFrame(text)
	if err != nil {
		logging.Warn("Skipping malformed frame", zap.Error(err))
		return
	}

	switch frame.Command {
	case protocol.CommandMessage:
		sub, ok := subs.Match(frame)
		if !ok {
			logging.Debug("MESSAGE for unknown subscription",
				zap.String("subscription", frame.Subscription()),
				zap.String("destination", frame.Destination()),
			)
		}
		if s.onMessage != nil {
			s.deliver(sub, frame)
		}
	case protocol.CommandError:
		msg, _ := frame.Get(protocol.HeaderMessage)
		logging.Error("Server sent ERROR frame",
			zap.String("message", msg),
			zap.String("body", frame.Body),
		)
	default:
		logging.Debug("Ignoring frame", zap.String("command", frame.Command))
	}
}

func (s *Supervisor) deliver(sub session.Subscription, frame *protocol.Frame) {
	s.inCallback.Add(1)
	defer s.inCallback.Add(-1)
	s.onMessage(sub, frame)
}

// setState records a transition and notifies. Only the run goroutine calls
// it, so notifications are ordered. Once Stop has begun, only Closing and
// Disconnected are accepted.
func (s *Supervisor) setState(next session.State) {
	s.mu.Lock()
	if s.stopping && next != session.StateClosing && next != session.StateDisconnected {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev == next {
		return
	}
	logging.LogStateChange(prev.String(), next.String())
	if s.onState != nil {
		s.inCallback.Add(1)
		defer s.inCallback.Add(-1)
		s.onState(next)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// difference returns the ids in a that are not in b.
func difference(a, b []int) []int {
	var out []int
	for _, id := range a {
		if !slices.Contains(b, id) {
			out = append(out, id)
		}
	}
	return out
}
