// Package devicestate keeps the reconciled state of every tracked collar.
//
// A Table holds one Snapshot per device id behind a read-write lock. The
// receive loop is the only writer; readers always get deep copies, so a
// snapshot handed out can never change under the caller.
//
// The Reconciler merges device-update payloads into the table field by field.
// A field is written only when the payload carries it, so a message with just
// lastRssi leaves a known position alone. History entries (fiFo) are merged
// newest first and de-duplicated, which makes applying the same payload twice
// a no-op.
//
// Malformed payloads are reported as *ReconcileError and affect only that one
// update. A field of the wrong type is logged and skipped while the rest of
// the payload is still applied.
package devicestate
