// Package keys manages the key-pair that identifies a sporenet node.
//
// Keys use ECDSA over secp256k1. The public key is hashed into the node id
// that appears in spore actions and in the node registry. Spore actions are
// not signed, so the id is an identifier, not a proof of origin.
package keys
