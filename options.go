package cordee

import (
	"io"
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/cordee/diag"
	"github.com/zjrosen/cordee/internal/tracing"
	"github.com/zjrosen/cordee/launcher"
)

type options struct {
	cfg       launcher.Config
	launchers []launcher.API
	replace   bool
	extras    []launcher.API
	filter    *diag.Filter
	tracer    trace.Tracer
	out       io.Writer
}

func defaultOptions() options {
	return options{
		filter: diag.Default(),
		tracer: noop.NewTracerProvider().Tracer(tracing.ServiceName),
		out:    os.Stdout,
	}
}

// Option configures an Interface during construction.
type Option func(*options)

// WithLaunchers replaces the builtin launcher set. Passing none yields a
// facade that always answers from the Default fallback.
func WithLaunchers(apis ...launcher.API) Option {
	return func(o *options) {
		o.launchers = apis
		o.replace = true
	}
}

// WithExtraLaunchers registers additional launchers after the base set.
func WithExtraLaunchers(apis ...launcher.API) Option {
	return func(o *options) {
		o.extras = append(o.extras, apis...)
	}
}

// WithEnv overrides the environment source of the builtin launchers and
// the Default fallback. Nil restores os.LookupEnv.
func WithEnv(env launcher.Env) Option {
	return func(o *options) {
		o.cfg.Env = env
	}
}

// WithPortRange bounds derived master ports: base + jobID mod span.
// Non-positive values keep the defaults.
func WithPortRange(base, span int) Option {
	return func(o *options) {
		o.cfg.PortBase = base
		o.cfg.PortSpan = span
	}
}

// WithStrict toggles strict mode: queries that would approximate a value
// return ErrUnavailable instead.
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.cfg.Strict = strict
	}
}

// WithFilter replaces the shared warning re-emission filter. Tests pass a
// private filter to keep process-lifetime dedup state out of each other's
// way. Nil keeps the shared one.
func WithFilter(f *diag.Filter) Option {
	return func(o *options) {
		if f != nil {
			o.filter = f
		}
	}
}

// WithTracer wires an OpenTelemetry tracer; every query access then opens
// a span. Nil keeps the no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithOutput redirects PrintSummary. Nil keeps stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.out = w
		}
	}
}
