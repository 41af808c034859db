// Package cordee answers "how was this process launched, and where does it
// sit in the distributed job" uniformly across incompatible launch
// mechanisms. A cordée is a rope team of climbers, each tied in at a fixed
// position; so is a distributed job's process group, and this package
// tells a process its place on the rope.
//
// The Interface facade forwards named queries (rank, world size, master
// address, ...) to whichever registered launcher claims the current
// environment, re-resolving the selection on every access. Advisory
// diagnostics raised while answering (approximated values, deprecated
// environment variables) are captured per call and re-emitted once per
// unique warning through a shared filter. The package-level wrappers use a
// lazily constructed default Interface, so most programs never build one:
//
//	rank, err := cordee.Rank(ctx)
package cordee

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/muesli/reflow/indent"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/cordee/diag"
	"github.com/zjrosen/cordee/internal/log"
	"github.com/zjrosen/cordee/internal/tracing"
	"github.com/zjrosen/cordee/launcher"
)

// Version is the library release string. The CLI build overrides it via
// ldflags.
var Version = "dev"

// API is the launcher contract. Alias so callers registering custom
// launchers need only this package.
type API = launcher.API

// ErrUnavailable signals that a query has no determinable value in the
// current environment. Callers match it with errors.Is.
var ErrUnavailable = launcher.ErrUnavailable

// summaryIndentWidth indents summary rows under the launcher name.
const summaryIndentWidth = 4

// Interface is the facade over the launcher registry. It owns the
// registry, the warning re-emission filter, and a tracer; every query
// re-resolves the active launcher, so a torchrun worker forked inside an
// sbatch allocation answers from TorchElastic while its parent shell
// would answer from Slurm.
type Interface struct {
	id       uuid.UUID
	registry *launcher.Registry
	filter   *diag.Filter
	tracer   trace.Tracer
	attrs    []string
	out      io.Writer
}

// New builds a facade: registers the builtin launchers (or a
// caller-supplied set), freezes the advertised attribute list, and runs
// the one-time bootstrap side effect of whichever launcher is active at
// construction. Bootstrap failures degrade to a warning, never an error.
func New(opts ...Option) *Interface {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	i := &Interface{
		id:       uuid.New(),
		registry: launcher.NewRegistry(o.cfg),
		filter:   o.filter,
		tracer:   o.tracer,
		attrs:    attributeNames(),
		out:      o.out,
	}

	base := o.launchers
	if !o.replace {
		base = launcher.Builtin(o.cfg)
	}
	i.registry.RegisterAll(base...)
	i.registry.RegisterAll(o.extras...)

	i.bootstrap()
	return i
}

// bootstrap resolves the construction-time launcher and runs its one-time
// setup when it declares any.
func (i *Interface) bootstrap() {
	ctx, span := i.tracer.Start(context.Background(), tracing.SpanSelect,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	api := i.registry.Active()
	span.SetAttributes(
		attribute.String(tracing.AttrInstanceID, i.id.String()),
		attribute.String(tracing.AttrLauncherName, api.Name()),
		attribute.Int(tracing.AttrLauncherPriority, api.Priority()),
	)
	log.Info(log.CatFacade, "facade constructed",
		"instance", i.id.String(), "launcher", api.Name(), "registered", i.registry.Len())

	boot, ok := api.(launcher.Bootstrapper)
	if !ok {
		span.SetStatus(codes.Ok, "")
		return
	}

	_, bootSpan := i.tracer.Start(ctx, tracing.SpanBootstrap,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer bootSpan.End()
	bootSpan.SetAttributes(attribute.String(tracing.AttrLauncherName, api.Name()))

	if err := boot.Bootstrap(); err != nil {
		bootSpan.RecordError(err)
		bootSpan.SetStatus(codes.Error, err.Error())
		i.filter.Emit([]diag.Warning{{
			Category: diag.CategoryBootstrap,
			Launcher: api.Name(),
			Query:    "bootstrap",
			Message:  err.Error(),
		}})
		return
	}
	bootSpan.SetStatus(codes.Ok, "")
	span.SetStatus(codes.Ok, "")
}

// forward answers one named query: re-resolve the active launcher, invoke
// the query under a capture scope, re-emit captured warnings through the
// filter, and return the result unchanged. Errors, ErrUnavailable
// included, propagate unmodified.
func forward[T any](i *Interface, ctx context.Context, query string, call func(launcher.API, context.Context) (T, error)) (T, error) {
	ctx, span := i.tracer.Start(ctx, tracing.SpanPrefixQuery+query,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	api := i.registry.Active()
	span.SetAttributes(
		attribute.String(tracing.AttrInstanceID, i.id.String()),
		attribute.String(tracing.AttrLauncherName, api.Name()),
		attribute.String(tracing.AttrQueryName, query),
	)

	scoped, rec := diag.Capture(ctx)
	value, err := call(api, scoped)

	warnings := rec.Drain()
	for _, w := range warnings {
		span.AddEvent(tracing.EventWarningRaised, trace.WithAttributes(
			attribute.String(tracing.AttrQueryName, w.Query),
			attribute.String(tracing.AttrWarningMessage, w.Message),
		))
	}
	span.SetAttributes(attribute.Int(tracing.AttrWarningCount, len(warnings)))
	i.filter.Emit(warnings)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool(tracing.AttrUnavailable, errors.Is(err, launcher.ErrUnavailable)))
		return value, err
	}
	span.SetStatus(codes.Ok, "")
	return value, nil
}

// Rank reports this process's global rank in the job.
func (i *Interface) Rank(ctx context.Context) (int, error) {
	return forward(i, ctx, "rank", launcher.API.Rank)
}

// LocalRank reports this process's rank on its node.
func (i *Interface) LocalRank(ctx context.Context) (int, error) {
	return forward(i, ctx, "local_rank", launcher.API.LocalRank)
}

// WorldSize reports the total process count of the job.
func (i *Interface) WorldSize(ctx context.Context) (int, error) {
	return forward(i, ctx, "world_size", launcher.API.WorldSize)
}

// LocalWorldSize reports the process count on this node.
func (i *Interface) LocalWorldSize(ctx context.Context) (int, error) {
	return forward(i, ctx, "local_world_size", launcher.API.LocalWorldSize)
}

// NumNodes reports the node count of the job.
func (i *Interface) NumNodes(ctx context.Context) (int, error) {
	return forward(i, ctx, "num_nodes", launcher.API.NumNodes)
}

// CPUsPerTask reports the CPU allocation of one task.
func (i *Interface) CPUsPerTask(ctx context.Context) (int, error) {
	return forward(i, ctx, "cpus_per_task", launcher.API.CPUsPerTask)
}

// GPUIDs reports the GPU identifiers allocated to the job on this node.
func (i *Interface) GPUIDs(ctx context.Context) ([]string, error) {
	return forward(i, ctx, "gpu_ids", launcher.API.GPUIDs)
}

// Nodelist reports the hostnames of every node in the job.
func (i *Interface) Nodelist(ctx context.Context) ([]string, error) {
	return forward(i, ctx, "nodelist", launcher.API.Nodelist)
}

// Hostname reports the hostname of this node.
func (i *Interface) Hostname(ctx context.Context) (string, error) {
	return forward(i, ctx, "hostname", launcher.API.Hostname)
}

// MasterAddress reports the rendezvous host of the job.
func (i *Interface) MasterAddress(ctx context.Context) (string, error) {
	return forward(i, ctx, "master_address", launcher.API.MasterAddress)
}

// MasterPort reports the rendezvous port of the job.
func (i *Interface) MasterPort(ctx context.Context) (int, error) {
	return forward(i, ctx, "master_port", launcher.API.MasterPort)
}

// InitMethod composes the process-group rendezvous URL.
func (i *Interface) InitMethod(ctx context.Context) (string, error) {
	return forward(i, ctx, "init_method", launcher.API.InitMethod)
}

// CurrentLauncher names the launcher claiming the environment right now.
func (i *Interface) CurrentLauncher() string {
	return i.registry.Active().Name()
}

// Launchers snapshots the registered APIs in precedence order. The
// snapshot reflects registrations made after construction.
func (i *Interface) Launchers() []launcher.API {
	return i.registry.All()
}

// Attributes lists the facade's advertised surface: the query names in
// declaration order (callables suffixed "()") followed by the static
// introspection names. The list is frozen at construction; launchers
// registered later never change it.
func (i *Interface) Attributes() []string {
	out := make([]string, len(i.attrs))
	copy(out, i.attrs)
	return out
}

// Version reports the library release string.
func (i *Interface) Version() string {
	return Version
}

// RegisterAPI registers an additional launcher. Registration is additive
// and immediately visible to selection and Launchers.
func (i *Interface) RegisterAPI(api launcher.API) {
	i.registry.Register(api)
}

// attributeNames builds the frozen attribute list from the query table
// plus the static facade surface.
func attributeNames() []string {
	names := make([]string, 0, len(launcher.Queries)+5)
	for _, q := range launcher.Queries {
		name := q.Name
		if q.Callable {
			name += "()"
		}
		names = append(names, name)
	}
	return append(names,
		"current_launcher",
		"launchers",
		"register_api()",
		"summary()",
		"version",
	)
}

// summaryRows answers the fixed row set of RenderSummary, a deliberate
// subset of the query table: num_nodes, gpu_ids and init_method stay out
// of the human-facing report.
func (i *Interface) summaryRows(ctx context.Context) []string {
	return []string{
		intRow(ctx, "rank", i.Rank),
		intRow(ctx, "local_rank", i.LocalRank),
		intRow(ctx, "world_size", i.WorldSize),
		intRow(ctx, "local_world_size", i.LocalWorldSize),
		intRow(ctx, "cpus_per_task", i.CPUsPerTask),
		listRow(ctx, "nodelist", i.Nodelist),
		stringRow(ctx, "hostname", i.Hostname),
		stringRow(ctx, "master_address", i.MasterAddress),
		intRow(ctx, "master_port", i.MasterPort),
	}
}

// RenderSummary renders the job-identity report: the current launcher
// name followed by one indented key=value row per summary query. Values
// the environment does not determine render as <unavailable>; every row
// still goes through the normal forwarding path.
func (i *Interface) RenderSummary(ctx context.Context, indentWidth int) string {
	if indentWidth < 0 {
		indentWidth = 0
	}

	body := strings.Join(i.summaryRows(ctx), "")
	return i.CurrentLauncher() + "(\n" + indent.String(body, uint(indentWidth)) + ")\n"
}

// PrintSummary writes the summary to the configured output, muting
// launcher advisories for its queries: a human asking for the report does
// not need nine approximation warnings alongside it.
func (i *Interface) PrintSummary(ctx context.Context) {
	ctx = diag.WithMuted(ctx, diag.CategoryLauncher)
	fmt.Fprint(i.out, i.RenderSummary(ctx, summaryIndentWidth))
}

func intRow(ctx context.Context, key string, query func(context.Context) (int, error)) string {
	n, err := query(ctx)
	if err != nil {
		return row(key, errValue(err))
	}
	return row(key, strconv.Itoa(n))
}

func stringRow(ctx context.Context, key string, query func(context.Context) (string, error)) string {
	s, err := query(ctx)
	if err != nil {
		return row(key, errValue(err))
	}
	return row(key, s)
}

func listRow(ctx context.Context, key string, query func(context.Context) ([]string, error)) string {
	v, err := query(ctx)
	if err != nil {
		return row(key, errValue(err))
	}
	return row(key, "["+strings.Join(v, " ")+"]")
}

func row(key, value string) string {
	return key + "=" + value + ",\n"
}

func errValue(err error) string {
	if errors.Is(err, launcher.ErrUnavailable) {
		return "<unavailable>"
	}
	return fmt.Sprintf("<error: %v>", err)
}
