package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/sporenet/sporenet/src/config"
	"github.com/sporenet/sporenet/src/crypto/keys"
)

var (
	privKeyFile           string
	pubKeyFile            string
	defaultPrivateKeyFile = filepath.Join(_config.Sporenet.DataDir, config.DefaultKeyfile)
	defaultPublicKeyFile  = filepath.Join(_config.Sporenet.DataDir, "key.pub")
)

// NewKeygenCmd produces a KeygenCmd which create a key pair
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

// AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&privKeyFile, "priv", defaultPrivateKeyFile, "File where the private key will be written")
	cmd.Flags().StringVar(&pubKeyFile, "pub", defaultPublicKeyFile, "File where the public key will be written")
}

func keygen(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(privKeyFile); err == nil {
		return fmt.Errorf("A key already lives under: %s", filepath.Dir(privKeyFile))
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return fmt.Errorf("Error generating ECDSA key")
	}

	if err := os.MkdirAll(filepath.Dir(privKeyFile), 0700); err != nil {
		return fmt.Errorf("Writing private key: %s", err)
	}

	keyfile := keys.NewSimpleKeyfile(privKeyFile)

	if err := keyfile.WriteKey(key); err != nil {
		return fmt.Errorf("Writing private key: %s", err)
	}

	fmt.Printf("Your private key has been saved to: %s\n", privKeyFile)

	if err := os.MkdirAll(filepath.Dir(pubKeyFile), 0700); err != nil {
		return fmt.Errorf("Writing public key: %s", err)
	}

	pub := keys.PublicKeyHex(&key.PublicKey)

	if err := os.WriteFile(pubKeyFile, []byte(pub), 0600); err != nil {
		return fmt.Errorf("Writing public key: %s", err)
	}

	fmt.Printf("Your public key has been saved to: %s\n", pubKeyFile)
	fmt.Printf("Node ID: %d\n", keys.PublicKeyID(&key.PublicKey))

	return nil
}
