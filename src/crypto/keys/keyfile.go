package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SimpleKeyfile reads and writes a key as a raw hex dump in a file.
type SimpleKeyfile struct {
	l       sync.Mutex
	keyfile string
}

// NewSimpleKeyfile instantiates a new SimpleKeyfile with an underlying file
func NewSimpleKeyfile(keyfile string) *SimpleKeyfile {
	return &SimpleKeyfile{
		keyfile: keyfile,
	}
}

// CheckFileInfo verifies that the file exists and has user permissions only.
func (k *SimpleKeyfile) CheckFileInfo() error {
	info, err := os.Stat(k.keyfile)
	if err != nil {
		return err
	}

	perm := info.Mode().Perm()

	// build 000111111 mask
	var nonUserMask os.FileMode = (1 << 6) - 1

	if perm&nonUserMask != 0 {
		return fmt.Errorf("priv_key file permissions should exclude 'groups' and 'others'. Got %o", perm)
	}

	return nil
}

// ReadKey reads a key written by WriteKey.
func (k *SimpleKeyfile) ReadKey() (*ecdsa.PrivateKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.CheckFileInfo(); err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(k.keyfile)
	if err != nil {
		return nil, err
	}

	key, err := hex.DecodeString(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, err
	}

	return ParsePrivateKey(key)
}

// WriteKey writes a raw hex dump of the key's D value to the underlying file.
func (k *SimpleKeyfile) WriteKey(key *ecdsa.PrivateKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	if err := os.MkdirAll(filepath.Dir(k.keyfile), 0700); err != nil {
		return err
	}

	return os.WriteFile(k.keyfile, []byte(PrivateKeyHex(key)), 0600)
}

// LoadOrCreate reads the key from the file, generating and writing a new one
// if the file does not exist.
func (k *SimpleKeyfile) LoadOrCreate() (*ecdsa.PrivateKey, bool, error) {
	key, err := k.ReadKey()
	if err == nil {
		return key, false, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, err
	}

	key, err = GenerateECDSAKey()
	if err != nil {
		return nil, false, err
	}
	if err := k.WriteKey(key); err != nil {
		return nil, false, err
	}
	return key, true, nil
}
