package session

import (
	"time"

	"github.com/muurk/pettracer/internal/logging"
	"github.com/muurk/pettracer/internal/protocol"
	"go.uber.org/zap"
)

// DefaultHandshakeTimeout bounds AwaitOpen and Connect.
const DefaultHandshakeTimeout = 10 * time.Second

// AwaitOpen waits for the session-open envelope. Anything else first is a
// handshake error.
func AwaitOpen(t *Transport, timeout time.Duration) error {
	data, err := t.Read(deadlineAfter(timeout))
	if err != nil {
		return handshakeReadError(err, "waiting for session open")
	}

	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		return newHandshakeError(CauseProtocol, err, "first envelope is not a valid session open")
	}
	switch env.Type {
	case protocol.EnvelopeOpen:
		return nil
	case protocol.EnvelopeClose:
		e := newHandshakeError(CauseClosed, nil, "server closed session before open (%d %s)",
			env.CloseCode, env.CloseReason)
		e.CloseCode = env.CloseCode
		e.CloseReason = env.CloseReason
		return e
	default:
		return newHandshakeError(CauseProtocol, nil, "expected session open, got %s envelope", env.Type)
	}
}

// Connect sends CONNECT and waits for CONNECTED. Heartbeats and malformed
// messages while waiting are skipped. An ERROR frame, a close, or any other
// frame fails the handshake.
func Connect(t *Transport, token string, timeout time.Duration) (*protocol.Frame, error) {
	if err := t.Send(protocol.NewConnect(token)); err != nil {
		return nil, err
	}

	deadline := deadlineAfter(timeout)
	for {
		data, err := t.Read(deadline)
		if err != nil {
			return nil, handshakeReadError(err, "waiting for CONNECTED")
		}

		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			logging.Warn("Skipping malformed envelope during handshake", zap.Error(err))
			continue
		}

		switch env.Type {
		case protocol.EnvelopeHeartbeat:
			continue
		case protocol.EnvelopeOpen:
			return nil, newHandshakeError(CauseProtocol, nil, "duplicate session open")
		case protocol.EnvelopeClose:
			e := newHandshakeError(CauseClosed, nil, "server closed session during CONNECT (%d %s)",
				env.CloseCode, env.CloseReason)
			e.CloseCode = env.CloseCode
			e.CloseReason = env.CloseReason
			return nil, e
		}

		for _, text := range env.Frames {
			if protocol.IsHeartbeatFrame(text) {
				continue
			}
			frame, err := protocol.DecodeFrame(text)
			if err != nil {
				logging.Warn("Skipping malformed frame during handshake", zap.Error(err))
				continue
			}
			switch frame.Command {
			case protocol.CommandConnected:
				return frame, nil
			case protocol.CommandError:
				msg, _ := frame.Get(protocol.HeaderMessage)
				return nil, newHandshakeError(CauseRejected, nil, "server rejected CONNECT: %s", msg)
			default:
				return nil, newHandshakeError(CauseProtocol, nil, "expected CONNECTED, got %s", frame.Command)
			}
		}
	}
}

// handshakeReadError turns a read timeout into a handshake timeout and keeps
// every other read failure a transport error.
func handshakeReadError(err error, waiting string) error {
	if IsTimeoutError(err) {
		return newHandshakeError(CauseTimeout, err, "timed out %s", waiting)
	}
	return err
}

func deadlineAfter(timeout time.Duration) time.Time {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	return time.Now().Add(timeout)
}
