// Package manager implements the L2 fusion coordinator: the component
// that subscribes to the L1 fleet, feeds a pluggable fusion algorithm,
// and publishes its decisions back out.
//
// One Manager owns the bus subscription, a bounded drop-oldest inbound
// queue drained by N workers, the algorithm tick loop, the L2 heartbeat,
// and the node liveness monitor. The algorithm and its context are lent
// to exactly one call at a time under the algorithm and context locks;
// outputs are drained after each call and handed to a single-worker
// publisher pool so they go out in append order, outside all locks.
//
// Lifecycle: CREATED -> SetAlgorithm -> READY -> Start -> RUNNING ->
// Stop -> STOPPED. SetAlgorithm is rejected while running; Start is
// rejected without an algorithm.
package manager
