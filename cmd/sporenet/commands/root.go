package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

// RootCmd is the root command for Sporenet
var RootCmd = &cobra.Command{
	Use:              "sporenet",
	Short:            "sporenet swarm learning node",
	TraverseChildren: true,
}
