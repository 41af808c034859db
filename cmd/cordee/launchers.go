package main

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/cordee/internal/presentation"
)

var launchersCmd = &cobra.Command{
	Use:   "launchers",
	Short: "List the registered launchers in precedence order",
	Long: `List every registered launcher with its priority, whether it detects
the current environment, and how it detects it. The selected launcher is
the highest-priority active one; with none active, queries fall back to
the single-process default.

Examples:
  cordee launchers
  cordee launchers --format json | jq '.[] | select(.active)'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		dtos := presentation.FromAPIs(rt.facade.Launchers())
		return rt.formatter.FormatLaunchers(dtos)
	},
}

func init() {
	rootCmd.AddCommand(launchersCmd)
}
