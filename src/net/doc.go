// Package net implements the gossip transports that carry spore actions and
// status lines between nodes.
//
// The gossip channel is a set of topics. Publishing is fire-and-forget and
// fetching returns whatever the transport currently retains for a topic, in
// arrival order. Nothing here guarantees delivery, ordering across nodes, or
// authenticity: anyone who can publish on a topic can impersonate any node.
//
// There are three implementations of the Transport interface:
//
// - Inmem: an in-process board shared by every node of a simulated swarm,
// used by tests and the swarm command
//
// - NATS: topics map to NATS subjects. Each transport subscribes to the
// topics it is told about and keeps a bounded local buffer of what it hears.
//
// - Breaker: wraps another transport in a circuit breaker so that a dead
// gossip backend fails fast instead of stalling every epoch.
package net
