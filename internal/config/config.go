// Package config provides configuration types and defaults for cordee.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/cordee/internal/log"
	"github.com/zjrosen/cordee/internal/tracing"
	"github.com/zjrosen/cordee/launcher"
)

// Config holds all configuration options for cordee.
type Config struct {
	// Format selects the CLI output format.
	// Valid values: "text" (default), "json", "yaml"
	Format string `mapstructure:"format"`

	// Indent is the indent width used when rendering summaries.
	Indent int `mapstructure:"indent"`

	// Strict refuses approximated values: queries that would guess
	// (nodelist from the local hostname, node counts by division)
	// report unavailable instead.
	Strict bool `mapstructure:"strict"`

	// NoColor disables ANSI styling in text output.
	NoColor bool `mapstructure:"no_color"`

	Port    PortConfig      `mapstructure:"port"`
	Tracing tracing.Config  `mapstructure:"tracing"`
	Flags   map[string]bool `mapstructure:"flags"`
}

// PortConfig bounds derived master ports. When no MASTER_PORT is exported
// the port becomes base + job_id mod span.
type PortConfig struct {
	Base int `mapstructure:"base"`
	Span int `mapstructure:"span"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Format: "text",
		Indent: 4,
		Port: PortConfig{
			Base: launcher.DefaultPortBase,
			Span: launcher.DefaultPortSpan,
		},
		Tracing: tracing.DefaultConfig(),
		Flags:   map[string]bool{},
	}
}

// Validate checks the whole configuration for errors.
// Empty values are valid and fall back to defaults.
func Validate(cfg Config) error {
	if err := ValidateFormat(cfg.Format); err != nil {
		return err
	}
	if err := ValidateIndent(cfg.Indent); err != nil {
		return err
	}
	if err := ValidatePort(cfg.Port); err != nil {
		return err
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateFormat checks the output format option.
func ValidateFormat(format string) error {
	switch format {
	case "", "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("format must be \"text\", \"json\", or \"yaml\", got %q", format)
	}
}

// ValidateIndent checks the summary indent width.
func ValidateIndent(indent int) error {
	if indent < 0 || indent > 16 {
		return fmt.Errorf("indent must be between 0 and 16, got %d", indent)
	}
	return nil
}

// ValidatePort checks the master-port derivation window. Zero values fall
// back to defaults; explicit values must stay inside the TCP port space.
func ValidatePort(port PortConfig) error {
	if port.Base != 0 && (port.Base < 1024 || port.Base > 65535) {
		return fmt.Errorf("port.base must be between 1024 and 65535, got %d", port.Base)
	}
	if port.Span < 0 {
		return fmt.Errorf("port.span must be positive, got %d", port.Span)
	}
	base := port.Base
	if base == 0 {
		base = launcher.DefaultPortBase
	}
	if port.Span != 0 && base+port.Span-1 > 65535 {
		return fmt.Errorf("port window [%d, %d] exceeds 65535", base, base+port.Span-1)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(cfg tracing.Config) error {
	if cfg.SampleRate < 0.0 || cfg.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", cfg.SampleRate)
	}

	switch cfg.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", cfg.Exporter)
	}

	return nil
}

// LauncherConfig converts the file-level options into the launcher
// package's knobs. The environment source stays nil so the process
// environment is used.
func (c Config) LauncherConfig() launcher.Config {
	return launcher.Config{
		PortBase: c.Port.Base,
		PortSpan: c.Port.Span,
		Strict:   c.Strict,
	}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Cordee Configuration

# Output format for CLI commands: "text" (default), "json", or "yaml"
format: text

# Indent width for summary rendering
indent: 4

# Refuse approximated values. When true, queries that would guess
# (nodelist from the local hostname, node counts by division) report
# unavailable instead of a best effort.
strict: false

# Disable ANSI colors in text output
# no_color: true

# Master-port derivation window. When MASTER_PORT is not exported the
# port becomes base + job_id % span, the same on every rank of a job.
port:
  base: 10000
  span: 20000

# Query tracing
# Every query runs under a span carrying the launcher and query names.
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ""                  # Output file; empty resolves into the state directory
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
#
# Example: send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
