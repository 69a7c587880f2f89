package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// GenerateECDSAKey creates a new secp256k1 private key.
func GenerateECDSAKey() (*ecdsa.PrivateKey, error) {
	priv, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, err
	}
	return priv.ToECDSA(), nil
}

// DumpPrivateKey exports the D value of priv as 32 big-endian bytes.
func DumpPrivateKey(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return (*btcec.PrivateKey)(priv).Serialize()
}

// ParsePrivateKey creates a private key with the given D value.
func ParsePrivateKey(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid length, need %d bytes", btcec.PrivKeyBytesLen)
	}

	k := new(big.Int).SetBytes(d)
	if k.Sign() <= 0 {
		return nil, fmt.Errorf("invalid private key, zero")
	}
	if k.Cmp(secp256k1N) >= 0 {
		return nil, fmt.Errorf("invalid private key, >=N")
	}

	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), d)
	return priv.ToECDSA(), nil
}

// PrivateKeyHex returns the hex encoding of DumpPrivateKey.
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return hex.EncodeToString(DumpPrivateKey(key))
}

// FromPublicKey returns the uncompressed form of pub.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return (*btcec.PublicKey)(pub).SerializeUncompressed()
}

// PublicKeyHex returns the hexadecimal reprentation of the uncompressed form of
// the public key
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return "0X" + fmt.Sprintf("%X", FromPublicKey(pub))
}

// PublicKeyID gives a short uint32 representation of the public key. There
// is a risk of collision; with the swarm sizes this runs at, it is ignored.
func PublicKeyID(pub *ecdsa.PublicKey) uint32 {
	h := fnv.New32a()
	h.Write(FromPublicKey(pub))
	return h.Sum32()
}
