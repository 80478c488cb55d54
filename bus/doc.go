// Package bus adapts the NATS transport to the narrow pub/sub surface
// the fusion tier needs: publish an opaque payload to a topic, and
// consume a topic in arrival order on a dedicated goroutine until the
// caller cancels or the transport fails fatally.
//
// Publishes are serialized by a mutex so callers never interleave on the
// connection; the subscribe loop consumes on its own goroutine and does
// not share that mutex. A failed consume loop logs and exits without
// restarting itself; reconnection policy belongs to the caller.
package bus
