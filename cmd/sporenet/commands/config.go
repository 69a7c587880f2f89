package commands

import (
	"github.com/sporenet/sporenet/src/config"
)

// CLIConfig contains configuration for the Run and Swarm commands
type CLIConfig struct {
	Sporenet config.Config `mapstructure:",squash"`

	// Nodes is the number of in-process nodes started by the swarm command.
	Nodes int `mapstructure:"nodes"`
}

// NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Sporenet: *config.NewDefaultConfig(),
		Nodes:    3,
	}
}
