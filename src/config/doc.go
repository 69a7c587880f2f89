// Package config defines the configuration for a sporenet node.
//
// Whether a node is started from Go code or from the command line, it uses
// the Config object defined in this package to store and forward
// configuration options. The data directory, Config.DataDir, holds:
//
//	priv_key // a plain text file containing the raw private key (cf. sporenet keygen).
//	sporenet.toml // (optional) configuration file read by the CLI.
//	badger_db // the badger directory, when directory = badger.
//	directory.db // the sqlite directory, when directory = sqlite.
package config
