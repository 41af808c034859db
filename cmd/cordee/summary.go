package main

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/cordee/diag"
	"github.com/zjrosen/cordee/internal/presentation"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the job-identity summary for the active launcher",
	Long: `Print the launcher that claims the current environment and the job
identity it reports: rank, world size, node list, rendezvous endpoint.
Values the environment does not determine render as <unavailable>.

Examples:
  # Human-readable summary
  cordee summary

  # Machine-readable, unavailable values become null
  cordee summary --format json | jq .rank`,
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	// The summary is the human-facing report; launcher advisories would
	// repeat on every row, so they are muted for its queries.
	ctx := diag.WithMuted(cmd.Context(), diag.CategoryLauncher)

	dto := presentation.BuildSummary(ctx, rt.facade.CurrentLauncher(), rt.facade)
	return rt.formatter.FormatSummary(dto)
}
