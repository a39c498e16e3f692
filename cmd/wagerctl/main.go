package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "wagerctl",
		Short:         "Player-side helpers for the wager server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		NonceCmd(),
		CommitmentCmd(),
		HashPasswordCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
