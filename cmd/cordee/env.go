package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/cordee/internal/presentation"
)

var (
	envPrefix string
	envRaw    bool
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Emit job identity as KEY=value lines for shell scripts",
	Long: `Emit the job identity of the active launcher as KEY=value lines
(RANK, LOCAL_RANK, WORLD_SIZE, LOCAL_WORLD_SIZE, MASTER_ADDR,
MASTER_PORT), suitable for eval in job scripts. Values the environment
does not determine are skipped with a note on stderr.

Examples:
  # Export the identity into the current shell
  eval "$(cordee env --prefix MYAPP_)"

  # Dump the raw launcher variables the process actually sees
  cordee env --raw`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		if envRaw {
			vars := presentation.FromEnviron(os.Environ(), isLauncherVar)
			return rt.formatter.FormatEnv(vars)
		}

		vars, skipped := envRows(cmd.Context(), rt.facade, envPrefix)
		if len(skipped) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "cordee: skipped (unavailable): %s\n",
				strings.Join(skipped, " "))
		}
		return rt.formatter.FormatEnv(vars)
	},
}

func init() {
	envCmd.Flags().StringVar(&envPrefix, "prefix", "",
		"prepend a namespace to every emitted key")
	envCmd.Flags().BoolVar(&envRaw, "raw", false,
		"dump the raw launcher variables from the process environment")
	rootCmd.AddCommand(envCmd)
}

// envRows resolves the exportable identity queries, skipping the ones the
// environment does not determine.
func envRows(ctx context.Context, api presentation.QueryAPI, prefix string) (vars []presentation.EnvVar, skipped []string) {
	intVar := func(key string, query func(context.Context) (int, error)) {
		n, err := query(ctx)
		if err != nil {
			skipped = append(skipped, prefix+key)
			return
		}
		vars = append(vars, presentation.EnvVar{Key: prefix + key, Value: strconv.Itoa(n)})
	}
	stringVar := func(key string, query func(context.Context) (string, error)) {
		s, err := query(ctx)
		if err != nil {
			skipped = append(skipped, prefix+key)
			return
		}
		vars = append(vars, presentation.EnvVar{Key: prefix + key, Value: s})
	}

	intVar("RANK", api.Rank)
	intVar("LOCAL_RANK", api.LocalRank)
	intVar("WORLD_SIZE", api.WorldSize)
	intVar("LOCAL_WORLD_SIZE", api.LocalWorldSize)
	stringVar("MASTER_ADDR", api.MasterAddress)
	intVar("MASTER_PORT", api.MasterPort)
	return vars, skipped
}

// isLauncherVar reports whether an environment key belongs to one of the
// recognized launchers or the rendezvous contract.
func isLauncherVar(key string) bool {
	switch key {
	case "RANK", "LOCAL_RANK", "WORLD_SIZE", "LOCAL_WORLD_SIZE", "GROUP_WORLD_SIZE":
		return true
	}
	for _, prefix := range []string{"SLURM", "OMPI_", "TORCHELASTIC_", "MASTER_"} {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
