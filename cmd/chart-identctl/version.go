package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nathantilsley/chart-ident/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "chart-identctl", version.GetInfo())
			return nil
		},
	}
}
