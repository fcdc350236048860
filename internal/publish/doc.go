// Package publish forwards device snapshots and connection state to an MQTT
// broker.
//
// Topics, for a prefix of "pettracer":
//
//	pettracer/<deviceId>/state   snapshot JSON, one message per update
//	pettracer/status             connection state, retained
//
// The status topic doubles as the last-will topic: the broker publishes
// "offline" there when the publisher disappears without Close.
package publish
