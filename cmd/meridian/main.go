package main

import (
	"os"

	"github.com/meridiandb/meridian/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	listIndexesCmd := cmd.NewListIndexesCommand()
	rootCmd.AddCommand(listIndexesCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
