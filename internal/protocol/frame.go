package protocol

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	stompframe "github.com/go-stomp/stomp/v3/frame"
)

// STOMP commands used on the live channel
const (
	CommandConnect    = "CONNECT"
	CommandConnected  = "CONNECTED"
	CommandSubscribe  = "SUBSCRIBE"
	CommandSend       = "SEND"
	CommandMessage    = "MESSAGE"
	CommandError      = "ERROR"
	CommandDisconnect = "DISCONNECT"
	CommandReceipt    = "RECEIPT"
)

// Header names
const (
	HeaderDestination   = "destination"
	HeaderSubscription  = "subscription"
	HeaderID            = "id"
	HeaderContentLength = "content-length"
	HeaderContentType   = "content-type"
	HeaderAcceptVersion = "accept-version"
	HeaderHeartBeat     = "heart-beat"
	HeaderAccessToken   = "access_token"
	HeaderMessage       = "message"
	HeaderMessageID     = "message-id"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderVersion       = "version"
)

// RedactedValue replaces secrets in logs and captures.
const RedactedValue = "REDACTED"

// frameTerminator ends every serialized frame.
const frameTerminator = '\x00'

// Headers maps header names to values. Names are case-sensitive.
type Headers map[string]string

// Frame is one inner STOMP frame.
type Frame struct {
	Command string
	Headers Headers
	Body    string
}

// Get returns a header value.
func (f *Frame) Get(name string) (string, bool) {
	if f.Headers == nil {
		return "", false
	}
	v, ok := f.Headers[name]
	return v, ok
}

// Destination returns the destination header, or "".
func (f *Frame) Destination() string {
	v, _ := f.Get(HeaderDestination)
	return v
}

// Subscription returns the subscription header, or "".
func (f *Frame) Subscription() string {
	v, _ := f.Get(HeaderSubscription)
	return v
}

// Redacted returns a copy of f with the access token header masked, or f
// itself when it carries no token.
func (f *Frame) Redacted() *Frame {
	if _, ok := f.Get(HeaderAccessToken); !ok {
		return f
	}
	headers := make(Headers, len(f.Headers))
	for name, value := range f.Headers {
		headers[name] = value
	}
	headers[HeaderAccessToken] = RedactedValue
	return &Frame{Command: f.Command, Headers: headers, Body: f.Body}
}

// Encode serializes the frame.
func (f *Frame) Encode() string {
	return EncodeFrame(f.Command, f.Headers, f.Body)
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{command=%s, destination=%q, headers=%d, body_len=%d}",
		f.Command, f.Destination(), len(f.Headers), len(f.Body))
}

// EncodeFrame serializes a frame. The destination header comes first, the
// rest follow in name order, and the result ends with one NUL byte.
//
// A supplied content-length is rewritten to the byte length of body. When
// body contains a NUL byte and no content-length was supplied, one is
// added, so decoding such a frame yields one header more than was encoded.
func EncodeFrame(command string, headers Headers, body string) string {
	f := stompframe.New(command)

	if dest, ok := headers[HeaderDestination]; ok {
		f.Header.Add(HeaderDestination, dest)
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		if name != HeaderDestination {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	_, hasLength := headers[HeaderContentLength]
	for _, name := range names {
		value := headers[name]
		if name == HeaderContentLength {
			value = strconv.Itoa(len(body))
		}
		f.Header.Add(name, value)
	}
	if !hasLength && strings.IndexByte(body, frameTerminator) >= 0 {
		f.Header.Add(HeaderContentLength, strconv.Itoa(len(body)))
	}
	f.Body = []byte(body)

	var b strings.Builder
	b.Grow(len(command) + len(body) + 16*len(headers) + 4)
	// strings.Builder never returns a write error
	_ = stompframe.NewWriter(&b).Write(f)
	return b.String()
}

// IsHeartbeatFrame reports whether text is a bare end-of-line, which STOMP
// uses as a heartbeat inside array envelopes.
func IsHeartbeatFrame(text string) bool {
	return text != "" && strings.Trim(text, "\r\n") == ""
}

// DecodeFrame parses one serialized inner frame. Leading EOLs are skipped
// and only EOLs may follow the terminator. When a header repeats, the first
// occurrence wins.
func DecodeFrame(text string) (*Frame, error) {
	r := stompframe.NewReader(strings.NewReader(text))

	var f *stompframe.Frame
	for f == nil {
		var err error
		f, err = r.Read()
		if errors.Is(err, io.EOF) {
			if strings.Trim(text, "\r\n") == "" {
				return nil, newDecodeError(LayerFrame, text, nil, "empty frame")
			}
			return nil, newDecodeError(LayerFrame, text, io.ErrUnexpectedEOF, "truncated frame")
		}
		if err != nil {
			return nil, newDecodeError(LayerFrame, text, err, "malformed frame")
		}
	}

	// the reader buffers ahead, so trailing data is checked on the text:
	// the frame's own terminator must be the last NUL in it
	body := string(f.Body)
	last := strings.LastIndexByte(text, frameTerminator)
	if strings.Count(text, "\x00") != strings.Count(body, "\x00")+1 ||
		strings.Trim(text[last+1:], "\r\n") != "" {
		return nil, newDecodeError(LayerFrame, text, nil, "unexpected data after frame terminator")
	}

	headers := make(Headers, f.Header.Len())
	for i := 0; i < f.Header.Len(); i++ {
		name, value := f.Header.GetAt(i)
		if _, seen := headers[name]; !seen {
			headers[name] = value
		}
	}
	return &Frame{Command: f.Command, Headers: headers, Body: body}, nil
}
