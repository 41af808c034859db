package main

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/cordee/internal/presentation"
)

var attrsCmd = &cobra.Command{
	Use:   "attrs",
	Short: "List the attributes the library exposes",
	Long: `List the advertised facade surface: every declared query plus the
introspection attributes. Callable attributes carry a "()" suffix.

Examples:
  cordee attrs
  cordee attrs --format json | jq '.[] | select(.callable) | .name'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		dtos := presentation.FromAttributeNames(rt.facade.Attributes())
		return rt.formatter.FormatAttributes(dtos)
	},
}

func init() {
	rootCmd.AddCommand(attrsCmd)
}
