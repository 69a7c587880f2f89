package main

import (
	"os"

	cmd "github.com/sporenet/sporenet/cmd/sporenet/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.VersionCmd,
		cmd.NewKeygenCmd(),
		cmd.NewRunCmd(),
		cmd.NewSwarmCmd(),
		cmd.NewTrainerCmd())

	//Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
