// Package session opens and prepares one connection to the PetTracer live
// endpoint.
//
// A connection attempt goes through these steps, each owned by this package:
//
//  1. BeginSession derives fresh server and session identifiers and builds
//     the endpoint URL. Identifiers are never reused across attempts.
//  2. A Dialer opens the WebSocket and the result is wrapped in a Transport,
//     which serializes all writes behind one lock.
//  3. AwaitOpen waits for the 'o' envelope.
//  4. Connect sends the STOMP CONNECT frame and waits for CONNECTED.
//  5. Subscriptions issues SUBSCRIBE frames and the activation SEND that
//     tells the server which devices to stream.
//
// The server never acknowledges a subscription. A Subscription record moves
// from Pending to Active when the first MESSAGE for it arrives; observers
// registered with Subscriptions.Observe are told about that transition.
//
// Failures are reported as *Error with Kind KindHandshake or KindTransport.
// Both are fatal to the current attempt and nothing else.
package session
