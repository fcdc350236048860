package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/gorilla/websocket"
)

// Kind is the top-level category of a session failure.
type Kind int

const (
	// KindHandshake covers a missing session-open envelope, a rejected or
	// unanswered CONNECT, and any unexpected frame during setup.
	KindHandshake Kind = iota
	// KindTransport covers socket-level failures and server-initiated closes.
	KindTransport
)

// String returns a human-readable name for the error kind
func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "Handshake Error"
	case KindTransport:
		return "Transport Error"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Cause provides a more specific classification
type Cause int

const (
	CauseGeneral Cause = iota
	CauseTimeout
	CauseConnectionRefused
	CauseDNS
	CauseRejected
	CauseClosed
	CauseProtocol
	CauseHeartbeat
	CauseCanceled
)

// String returns a short name for the cause
func (c Cause) String() string {
	switch c {
	case CauseGeneral:
		return "general"
	case CauseTimeout:
		return "timeout"
	case CauseConnectionRefused:
		return "connection_refused"
	case CauseDNS:
		return "dns"
	case CauseRejected:
		return "rejected"
	case CauseClosed:
		return "closed"
	case CauseProtocol:
		return "protocol"
	case CauseHeartbeat:
		return "heartbeat_timeout"
	case CauseCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("cause(%d)", int(c))
	}
}

// Error is a failure of one connection attempt.
type Error struct {
	Kind        Kind   // Handshake or transport
	Cause       Cause  // More specific classification
	Message     string // Human-readable error message
	CloseCode   int    // Close code from a 'c' envelope or WebSocket close (if any)
	CloseReason string // Close reason (if any)
	Err         error  // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

func newHandshakeError(cause Cause, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindHandshake,
		Cause:   cause,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func newTransportError(cause Cause, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindTransport,
		Cause:   cause,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// NewCloseError reports a 'c' envelope received from the server.
func NewCloseError(code int, reason string) *Error {
	return &Error{
		Kind:        KindTransport,
		Cause:       CauseClosed,
		Message:     fmt.Sprintf("server closed session (%d %s)", code, reason),
		CloseCode:   code,
		CloseReason: reason,
	}
}

// NewHeartbeatTimeoutError reports a silent connection.
func NewHeartbeatTimeoutError(err error) *Error {
	return newTransportError(CauseHeartbeat, err, "no envelope received within heartbeat window")
}

// ClassifyTransportError analyzes a socket error and returns a transport
// error with a specific cause. Errors that are already *Error pass through.
func ClassifyTransportError(err error) *Error {
	if err == nil {
		return nil
	}

	var sessErr *Error
	if errors.As(err, &sessErr) {
		return sessErr
	}

	if errors.Is(err, context.Canceled) {
		return newTransportError(CauseCanceled, err, "connection canceled")
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return newTransportError(CauseTimeout, err, "operation timed out")
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		e := newTransportError(CauseClosed, err, "websocket closed (%d)", closeErr.Code)
		e.CloseCode = closeErr.Code
		e.CloseReason = closeErr.Text
		return e
	}

	if errors.Is(err, websocket.ErrBadHandshake) {
		return newTransportError(CauseRejected, err, "server rejected websocket upgrade")
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return newTransportError(CauseDNS, err, "DNS resolution failed for %s", dnsErr.Name)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return newTransportError(CauseConnectionRefused, err, "server refused connection")
		}
	}

	if errors.Is(err, net.ErrClosed) {
		return newTransportError(CauseClosed, err, "connection closed")
	}

	return newTransportError(CauseGeneral, err, "transport failure")
}

// IsHandshakeError checks if an error is a handshake error
func IsHandshakeError(err error) bool {
	var sessErr *Error
	if errors.As(err, &sessErr) {
		return sessErr.Kind == KindHandshake
	}
	return false
}

// IsTransportError checks if an error is a transport error
func IsTransportError(err error) bool {
	var sessErr *Error
	if errors.As(err, &sessErr) {
		return sessErr.Kind == KindTransport
	}
	return false
}

// IsTimeoutError checks if an error is a timeout of either kind
func IsTimeoutError(err error) bool {
	var sessErr *Error
	if errors.As(err, &sessErr) {
		return sessErr.Cause == CauseTimeout || sessErr.Cause == CauseHeartbeat
	}
	return false
}
