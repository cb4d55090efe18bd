package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("lwm2mcored version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
		return nil
	},
}
