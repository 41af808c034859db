package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/cordee"
	"github.com/zjrosen/cordee/diag"
	"github.com/zjrosen/cordee/internal/config"
	"github.com/zjrosen/cordee/internal/flags"
	"github.com/zjrosen/cordee/internal/log"
	"github.com/zjrosen/cordee/internal/paths"
	"github.com/zjrosen/cordee/internal/presentation"
	"github.com/zjrosen/cordee/internal/tracing"
)

var (
	cfgFile string
	debug   bool
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cordee",
	Short: "Report how this process was launched and its place in the job",
	Long: `Cordee detects the launcher that started the current process (srun,
torchrun, mpirun or none) and reports the job identity it left behind in
the environment: rank, world size, node list, rendezvous endpoint.

Run without arguments it prints the summary for the active launcher.`,
	RunE: runSummary,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/cordee/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug logging to the state directory")
	rootCmd.PersistentFlags().StringP("format", "f", "",
		"output format: text, json or yaml")
	rootCmd.PersistentFlags().Int("indent", 0,
		"indent width of text summaries")
	rootCmd.PersistentFlags().Bool("strict", false,
		"refuse approximated values instead of guessing")
	rootCmd.PersistentFlags().Bool("no-color", false,
		"disable ANSI styling in text output")

	// Bind flags to viper
	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("indent", rootCmd.PersistentFlags().Lookup("indent"))
	_ = viper.BindPFlag("strict", rootCmd.PersistentFlags().Lookup("strict"))
	_ = viper.BindPFlag("no_color", rootCmd.PersistentFlags().Lookup("no-color"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("format", defaults.Format)
	viper.SetDefault("indent", defaults.Indent)
	viper.SetDefault("strict", defaults.Strict)
	viper.SetDefault("no_color", defaults.NoColor)
	viper.SetDefault("port.base", defaults.Port.Base)
	viper.SetDefault("port.span", defaults.Port.Span)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .cordee/config.yaml (current directory)
		// 2. ~/.config/cordee/config.yaml (user config)
		if _, err := os.Stat(".cordee/config.yaml"); err == nil {
			viper.SetConfigFile(".cordee/config.yaml")
		} else {
			viper.AddConfigPath(paths.ConfigDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - write the commented default
		// template to the user config path.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := paths.ConfigFile()
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// runtime bundles what every command needs: the facade, the formatter,
// and the teardown of logging, tracing and the diagnostics tail.
type runtime struct {
	facade    *cordee.Interface
	formatter *presentation.Formatter
	events    <-chan diag.Event
	cleanup   []func()
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	rt := &runtime{}

	if debug || os.Getenv("CORDEE_DEBUG") != "" {
		if cleanup, err := log.Init(paths.LogFile()); err == nil {
			rt.cleanup = append(rt.cleanup, cleanup)
		}
	}

	if cfg.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	features := flags.New(cfg.Flags)
	strict := cfg.Strict || features.Enabled(flags.FlagStrictValues)

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	rt.cleanup = append(rt.cleanup, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	})

	// The facade emits through the shared filter; subscribing before any
	// query runs means the drain sees every first-occurrence warning.
	if features.Enabled(flags.FlagEmitDiagnostics) {
		ctx, cancel := context.WithCancel(context.Background())
		rt.cleanup = append(rt.cleanup, cancel)
		rt.events = diag.Default().Broker().Subscribe(ctx)
	}

	format, err := presentation.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	rt.facade = cordee.New(
		cordee.WithPortRange(cfg.Port.Base, cfg.Port.Span),
		cordee.WithStrict(strict),
		cordee.WithTracer(provider.Tracer()),
	)
	rt.formatter = presentation.NewFormatter(cmd.OutOrStdout(), format, cfg.Indent)

	log.Debug(log.CatCLI, "runtime assembled",
		"command", cmd.Name(), "format", cfg.Format, "strict", strict)
	return rt, nil
}

// close drains queued diagnostics to stderr, then tears down in reverse
// order.
func (rt *runtime) close() {
	drainDiagnostics(os.Stderr, rt.events)
	for i := len(rt.cleanup) - 1; i >= 0; i-- {
		rt.cleanup[i]()
	}
}

// drainDiagnostics prints every warning queued so far and returns; the
// broker buffers synchronously during queries, so by the time a command
// finishes everything it raised is waiting in the channel. A nil channel
// means the feature flag is off.
func drainDiagnostics(w io.Writer, events <-chan diag.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintln(w, ev.Warning.String())
		default:
			return
		}
	}
}

// execute runs the root command
func execute() error {
	return rootCmd.Execute()
}

// setVersion sets the version string (called from main with ldflags)
func setVersion(v string) {
	rootCmd.Version = v
}
