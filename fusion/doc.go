// Package fusion defines the pluggable algorithm framework of the L2
// tier: the Algorithm contract, the mutable Context every hook operates
// on, the Target entity shared with the strategy layer, and the factory
// registry that maps algorithm names to constructors.
//
// Concurrency contract: the fusion manager lends the Context to exactly
// one algorithm call at a time while holding the context lock. Algorithms
// therefore never synchronize internally on context state; they read and
// mutate it freely and append outbound messages, which the manager drains
// after the call returns and publishes outside the lock.
package fusion
