// Package proxy connects a sporenet node to a trainer that runs in another
// process.
//
// The node only needs a model.Trainer. A trainer written as a separate
// program, possibly in another language, is reached through the socket
// package: the node side holds a SocketTrainerProxy, which implements
// model.Trainer by calling the trainer over JSON-RPC, and the trainer side
// exposes itself with a SocketTrainerServer. Snapshots travel in their
// canonical JSON encoding.
package proxy
