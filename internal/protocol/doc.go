// Package protocol implements the two-layer wire format of the PetTracer live
// channel.
//
// The vendor endpoint speaks a session envelope protocol over a WebSocket and
// carries STOMP frames inside it. This package encodes and decodes both
// layers. It holds no connection state.
//
// # Envelope Layer
//
// Every WebSocket text message from the server is one envelope:
//
//	o                       session open
//	h                       heartbeat
//	a["<frame>","<frame>"]  array of serialized inner frames
//	c[3000,"Go away!"]      session close with code and reason
//
// Only array envelopes carry application data. The client direction is
// asymmetric: the client sends a bare JSON array of strings without the
// leading 'a' (see EncodeEnvelope).
//
// # Inner Frame Layer
//
// Inner frames are STOMP 1.1 text frames:
//
//	COMMAND\n
//	header1:value1\n
//	header2:value2\n
//	\n
//	<body>\x00
//
// Frames are read and written with the go-stomp frame codec, so header
// names and values use STOMP escaping (\\, \c, \n, \r) and only the
// standard STOMP commands are accepted. EncodeFrame always writes the
// destination header first, the remaining headers in name order, and
// exactly one NUL terminator. A content-length header always carries the
// true byte length of the body, and one is added when the body itself
// contains a NUL byte.
//
// # Usage Example - Parsing
//
//	env, err := protocol.DecodeEnvelope(message)
//	if err != nil {
//	    // stray control bytes: log and skip this message only
//	}
//	if env.Type == protocol.EnvelopeArray {
//	    for _, text := range env.Frames {
//	        frame, err := protocol.DecodeFrame(text)
//	        ...
//	    }
//	}
//
// # Usage Example - Construction
//
//	payload, err := protocol.EncodeEnvelope(
//	    protocol.NewSubscribe("sub-0", "/user/queue/messages").Encode(),
//	)
//	err = conn.WriteMessage(websocket.TextMessage, payload)
//
// # Error Handling
//
// Every decode failure is a *DecodeError. Decode errors concern exactly one
// envelope or one inner frame and are never fatal to a connection.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package protocol
