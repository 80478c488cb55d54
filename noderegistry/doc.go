// Package noderegistry tracks the live fleet of L1 nodes.
//
// The registry keeps three maps keyed by node id (identity, last-seen
// instant, reported status) that are mutated and deleted together under a
// single RWMutex, so observers never see a node in one map but not the
// others. SweepAndRemove finds and evicts timed-out nodes in one critical
// section; a read-then-write sweep would race with heartbeats arriving
// between the passes and evict nodes that just spoke.
package noderegistry
