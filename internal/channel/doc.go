// Package channel supervises the live connection to the PetTracer endpoint.
//
// A Supervisor owns one connection at a time and drives it through
//
//	Disconnected -> Connecting -> Handshaking -> Subscribing -> Live
//
// On any transport failure, handshake failure, server close envelope or
// heartbeat timeout it drops back to Disconnected, waits for the next
// backoff interval and starts over with fresh session identifiers. The
// backoff starts at 5s, doubles per consecutive failure, is capped at 300s
// and resets once a connection reaches Live.
//
// Stop preempts every wait: dialing, the handshake, the receive loop and the
// backoff delay. After Stop returns the supervisor is Disconnected and will
// not reconnect.
//
// Inbound MESSAGE frames are handed to the MessageHandler on the receive
// goroutine. Malformed envelopes and frames are logged and skipped without
// affecting the connection.
//
// Every envelope can additionally be appended to a JSONL capture file
// through a Recorder.
package channel
