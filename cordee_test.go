package cordee

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/cordee/diag"
	"github.com/zjrosen/cordee/internal/paths"
	"github.com/zjrosen/cordee/internal/testutil"
	"github.com/zjrosen/cordee/launcher"
)

// emptyEnv is an environment with no launcher variables set.
func emptyEnv() launcher.Env {
	return testutil.Env(map[string]string{})
}

func launcherNames(apis []launcher.API) []string {
	names := make([]string, len(apis))
	for i, api := range apis {
		names[i] = api.Name()
	}
	return names
}

// === CONSTRUCTION ===

func TestNew_RegistersBuiltinsInPrecedenceOrder(t *testing.T) {
	t.Setenv(paths.EnvStateDir, t.TempDir())

	i := New(WithEnv(emptyEnv()), WithFilter(diag.NewFilter()))

	require.Equal(t, []string{"TorchElastic", "Slurm", "OpenMPI"}, launcherNames(i.Launchers()))
}

func TestNew_WithLaunchers_ReplacesBuiltins(t *testing.T) {
	stub := testutil.NewStubAPI("Stub", testutil.Active())

	i := New(WithLaunchers(stub), WithFilter(diag.NewFilter()))

	require.Equal(t, []string{"Stub"}, launcherNames(i.Launchers()))
	require.Equal(t, "Stub", i.CurrentLauncher())
}

func TestNew_WithLaunchers_EmptySetFallsBackToDefault(t *testing.T) {
	t.Setenv(paths.EnvStateDir, t.TempDir())

	i := New(WithLaunchers(), WithFilter(diag.NewFilter()))

	require.Empty(t, i.Launchers())
	require.Equal(t, "Default", i.CurrentLauncher())
}

func TestNew_WithExtraLaunchers_AugmentBuiltins(t *testing.T) {
	extra := testutil.NewStubAPI("Extra", testutil.Priority(40), testutil.Active())

	i := New(
		WithEnv(emptyEnv()),
		WithExtraLaunchers(extra),
		WithFilter(diag.NewFilter()),
	)

	require.Equal(t, []string{"Extra", "TorchElastic", "Slurm", "OpenMPI"}, launcherNames(i.Launchers()))
	require.Equal(t, "Extra", i.CurrentLauncher())
}

func TestNew_BootstrapRunsOnceOnActiveLauncher(t *testing.T) {
	stub := testutil.NewStubAPI("Stub", testutil.Active())

	i := New(WithLaunchers(stub), WithFilter(diag.NewFilter()))
	require.Equal(t, 1, stub.BootstrapCalls())

	_, err := i.Rank(context.Background())
	require.NoError(t, err)
	_, err = i.WorldSize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stub.BootstrapCalls())
}

func TestNew_BootstrapFailureDegradesToWarning(t *testing.T) {
	filter := diag.NewFilter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := filter.Broker().Subscribe(ctx)

	stub := testutil.NewStubAPI("Stub",
		testutil.Active(),
		testutil.BootstrapErr(errors.New("state dir: disk full")),
	)

	i := New(WithLaunchers(stub), WithFilter(filter))

	select {
	case ev := <-events:
		require.Equal(t, diag.CategoryBootstrap, ev.Warning.Category)
		require.Equal(t, "Stub", ev.Warning.Launcher)
		require.Equal(t, "bootstrap", ev.Warning.Query)
		require.Contains(t, ev.Warning.Message, "disk full")
	case <-time.After(time.Second):
		t.Fatal("expected a bootstrap warning event")
	}

	rank, err := i.Rank(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, rank)
}

// === FORWARDING ===

func TestInterface_ForwardsToHighestPriorityActive(t *testing.T) {
	i := New(
		WithEnv(testutil.Env(testutil.TorchInsideSlurmEnv())),
		WithFilter(diag.NewFilter()),
	)

	require.Equal(t, "TorchElastic", i.CurrentLauncher())

	rank, err := i.Rank(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, rank)

	world, err := i.WorldSize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 8, world)
}

func TestInterface_SelectionReresolvedPerAccess(t *testing.T) {
	t.Setenv(paths.EnvStateDir, t.TempDir())

	vars := map[string]string{}
	i := New(WithEnv(testutil.Env(vars)), WithFilter(diag.NewFilter()))

	require.Equal(t, "Default", i.CurrentLauncher())
	rank, err := i.Rank(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, rank)

	maps.Copy(vars, testutil.SlurmEnv())

	require.Equal(t, "Slurm", i.CurrentLauncher())
	rank, err = i.Rank(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, rank)
}

func TestInterface_NoActiveLauncher_FallsBackToDefault(t *testing.T) {
	t.Setenv(paths.EnvStateDir, t.TempDir())

	inactive := testutil.NewStubAPI("Slurm", testutil.Priority(10))
	i := New(WithLaunchers(inactive), WithFilter(diag.NewFilter()))

	require.Equal(t, "Default", i.CurrentLauncher())

	_, err := i.MasterAddress(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)

	rank, err := i.Rank(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, rank)
}

func TestInterface_RepeatedAccessAnswersEqually(t *testing.T) {
	i := New(
		WithEnv(testutil.Env(testutil.SlurmEnv())),
		WithFilter(diag.NewFilter()),
	)

	first, err := i.Nodelist(context.Background())
	require.NoError(t, err)
	second, err := i.Nodelist(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"gpu001", "gpu002", "gpu003"}, first)
	require.Equal(t, first, second)
}

func TestInterface_ErrUnavailablePropagatesUnmodified(t *testing.T) {
	stub := testutil.NewStubAPI("Stub", testutil.Active(), testutil.Unavailable("gpu_ids"))
	i := New(WithLaunchers(stub), WithFilter(diag.NewFilter()))

	_, err := i.GPUIDs(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, launcher.ErrUnavailable)
	require.Contains(t, err.Error(), "Stub: gpu_ids")
}

func TestInterface_WarningsReemitThroughFilterOnce(t *testing.T) {
	filter := diag.NewFilter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := filter.Broker().Subscribe(ctx)

	stub := testutil.NewStubAPI("Stub",
		testutil.Active(),
		testutil.WarnOn("nodelist", "node list approximated from hostname"),
	)
	i := New(WithLaunchers(stub), WithFilter(filter))

	nodes, err := i.Nodelist(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"node01"}, nodes)

	_, err = i.Nodelist(context.Background())
	require.NoError(t, err)

	select {
	case ev := <-events:
		require.Equal(t, diag.CategoryLauncher, ev.Warning.Category)
		require.Equal(t, "nodelist", ev.Warning.Query)
		require.Contains(t, ev.Warning.Message, "approximated")
	case <-time.After(time.Second):
		t.Fatal("expected the nodelist advisory to re-emit")
	}

	select {
	case ev := <-events:
		t.Fatalf("advisory re-emitted twice: %v", ev.Warning)
	default:
	}
}

func TestInterface_CallerCaptureScopeNotConsumed(t *testing.T) {
	filter := diag.NewFilter()
	stub := testutil.NewStubAPI("Stub",
		testutil.Active(),
		testutil.WarnOn("hostname", "resolved from the local machine"),
	)
	i := New(WithLaunchers(stub), WithFilter(filter))

	ctx, rec := diag.Capture(context.Background())
	_, err := i.Hostname(ctx)
	require.NoError(t, err)

	require.Zero(t, rec.Len())
	require.Equal(t, 1, filter.SeenCount())
}

// === INTROSPECTION ===

func TestAttributes_FrozenListMatchesQueryTable(t *testing.T) {
	stub := testutil.NewStubAPI("Stub", testutil.Active())
	i := New(WithLaunchers(stub), WithFilter(diag.NewFilter()))

	want := []string{
		"rank",
		"local_rank",
		"world_size",
		"local_world_size",
		"num_nodes",
		"cpus_per_task",
		"gpu_ids",
		"nodelist",
		"hostname",
		"master_address",
		"master_port",
		"init_method()",
		"current_launcher",
		"launchers",
		"register_api()",
		"summary()",
		"version",
	}
	require.Equal(t, want, i.Attributes())
}

func TestAttributes_UnchangedByLaterRegistration(t *testing.T) {
	stub := testutil.NewStubAPI("Stub", testutil.Active())
	i := New(WithLaunchers(stub), WithFilter(diag.NewFilter()))

	before := i.Attributes()
	i.RegisterAPI(testutil.NewStubAPI("Plugin", testutil.Priority(99)))

	require.Equal(t, before, i.Attributes())
	require.Equal(t, []string{"Plugin", "Stub"}, launcherNames(i.Launchers()))
}

func TestAttributes_ReturnsCopy(t *testing.T) {
	stub := testutil.NewStubAPI("Stub", testutil.Active())
	i := New(WithLaunchers(stub), WithFilter(diag.NewFilter()))

	attrs := i.Attributes()
	attrs[0] = "clobbered"

	require.Equal(t, "rank", i.Attributes()[0])
}

func TestVersion_DefaultsToDev(t *testing.T) {
	stub := testutil.NewStubAPI("Stub", testutil.Active())
	i := New(WithLaunchers(stub), WithFilter(diag.NewFilter()))

	require.Equal(t, Version, i.Version())
	require.Equal(t, "dev", i.Version())
}

// === SUMMARY ===

func summaryStub() *testutil.StubAPI {
	return testutil.NewStubAPI("Stub",
		testutil.Active(),
		testutil.Rank(5),
		testutil.LocalRank(1),
		testutil.WorldSize(8),
		testutil.LocalWorldSize(2),
		testutil.CPUsPerTask(10),
		testutil.Nodelist("gpu001", "gpu002"),
		testutil.Hostname("gpu002"),
		testutil.MasterAddress("gpu001"),
		testutil.MasterPort(13456),
	)
}

func TestRenderSummary_AllValues(t *testing.T) {
	i := New(WithLaunchers(summaryStub()), WithFilter(diag.NewFilter()))

	got := i.RenderSummary(context.Background(), 4)

	want := "Stub(\n" +
		"    rank=5,\n" +
		"    local_rank=1,\n" +
		"    world_size=8,\n" +
		"    local_world_size=2,\n" +
		"    cpus_per_task=10,\n" +
		"    nodelist=[gpu001 gpu002],\n" +
		"    hostname=gpu002,\n" +
		"    master_address=gpu001,\n" +
		"    master_port=13456,\n" +
		")\n"
	require.Equal(t, want, got)
}

func TestRenderSummary_UnavailableValues(t *testing.T) {
	stub := testutil.NewStubAPI("Stub",
		testutil.Active(),
		testutil.Unavailable("cpus_per_task", "master_address"),
	)
	i := New(WithLaunchers(stub), WithFilter(diag.NewFilter()))

	got := i.RenderSummary(context.Background(), 4)

	require.Contains(t, got, "cpus_per_task=<unavailable>,\n")
	require.Contains(t, got, "master_address=<unavailable>,\n")
	require.Contains(t, got, "rank=0,\n")
}

func TestRenderSummary_NegativeIndentClamped(t *testing.T) {
	i := New(WithLaunchers(summaryStub()), WithFilter(diag.NewFilter()))

	got := i.RenderSummary(context.Background(), -3)

	require.Contains(t, got, "\nrank=5,\n")
}

func TestPrintSummary_WritesOutputAndMutesAdvisories(t *testing.T) {
	filter := diag.NewFilter()
	stub := testutil.NewStubAPI("Stub",
		testutil.Active(),
		testutil.WarnOn("rank", "assuming single-process execution"),
	)

	var out bytes.Buffer
	i := New(
		WithLaunchers(stub),
		WithFilter(filter),
		WithOutput(&out),
	)

	i.PrintSummary(context.Background())

	require.Contains(t, out.String(), "Stub(\n")
	require.Contains(t, out.String(), "rank=0,\n")
	require.Zero(t, filter.SeenCount())
}

// === TRACING ===

func stringAttr(t *testing.T, stub tracetest.SpanStub, key string) string {
	t.Helper()
	for _, kv := range stub.Attributes {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	t.Fatalf("span %s has no attribute %s", stub.Name, key)
	return ""
}

func intAttr(t *testing.T, stub tracetest.SpanStub, key string) int64 {
	t.Helper()
	for _, kv := range stub.Attributes {
		if string(kv.Key) == key {
			return kv.Value.AsInt64()
		}
	}
	t.Fatalf("span %s has no attribute %s", stub.Name, key)
	return 0
}

func boolAttr(t *testing.T, stub tracetest.SpanStub, key string) bool {
	t.Helper()
	for _, kv := range stub.Attributes {
		if string(kv.Key) == key {
			return kv.Value.AsBool()
		}
	}
	t.Fatalf("span %s has no attribute %s", stub.Name, key)
	return false
}

func findSpan(t *testing.T, spans tracetest.SpanStubs, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no span named %s", name)
	return tracetest.SpanStub{}
}

func TestInterface_TracesQueries(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	stub := testutil.NewStubAPI("Stub",
		testutil.Active(),
		testutil.WarnOn("nodelist", "node list approximated from hostname"),
		testutil.Unavailable("gpu_ids"),
	)
	i := New(
		WithLaunchers(stub),
		WithFilter(diag.NewFilter()),
		WithTracer(tp.Tracer("test")),
	)

	_, err := i.Nodelist(context.Background())
	require.NoError(t, err)
	_, err = i.GPUIDs(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)

	spans := exporter.GetSpans()

	selectSpan := findSpan(t, spans, "launcher.select")
	require.Equal(t, "Stub", stringAttr(t, selectSpan, "launcher.name"))

	findSpan(t, spans, "launcher.bootstrap")

	nodelist := findSpan(t, spans, "query.nodelist")
	require.Equal(t, "Stub", stringAttr(t, nodelist, "launcher.name"))
	require.Equal(t, "nodelist", stringAttr(t, nodelist, "query.name"))
	require.EqualValues(t, 1, intAttr(t, nodelist, "query.warning_count"))
	require.Len(t, nodelist.Events, 1)
	require.Equal(t, "warning.raised", nodelist.Events[0].Name)

	gpus := findSpan(t, spans, "query.gpu_ids")
	require.Equal(t, codes.Error, gpus.Status.Code)
	require.True(t, boolAttr(t, gpus, "error.unavailable"))
	require.EqualValues(t, 0, intAttr(t, gpus, "query.warning_count"))
}

// === PACKAGE DEFAULT ===

func TestDefault_SharedSingleton(t *testing.T) {
	t.Setenv(paths.EnvStateDir, t.TempDir())

	require.Same(t, Default(), Default())
}

func TestPackageWrappers_DelegateToDefault(t *testing.T) {
	t.Setenv(paths.EnvStateDir, t.TempDir())

	RegisterAPI(testutil.NewStubAPI("Plugin"))

	require.Contains(t, launcherNames(Launchers()), "Plugin")
	require.Contains(t, Attributes(), "rank")
	require.Contains(t, Attributes(), "init_method()")
	require.NotEmpty(t, CurrentLauncher())

	rank, err := Rank(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, rank, 0)
}
