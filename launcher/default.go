package launcher

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/zjrosen/cordee/diag"
	"github.com/zjrosen/cordee/internal/paths"
)

// Default is the fallback for a process no launcher claims: a manual
// invocation, a debugger, a unit test. It reports a single-process job
// (rank 0 of 1) and tags each assumed value with an advisory so callers
// can tell a real answer from a default. It is never registered; the
// registry constructs a fresh instance whenever selection falls through.
type Default struct {
	cfg Config
}

// NewDefault creates the fallback implementation.
func NewDefault(cfg Config) *Default {
	return &Default{cfg: cfg.withDefaults()}
}

func (d *Default) Name() string  { return "Default" }
func (d *Default) Priority() int { return PriorityDefault }

// IsActive is always false: Default never claims an environment, it is
// what selection returns when nothing else does.
func (d *Default) IsActive() bool { return false }

// Bootstrap creates the state directory used for logs and traces.
func (d *Default) Bootstrap() error {
	dir := paths.StateDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating state directory %s: %w", dir, err)
	}
	return nil
}

func (d *Default) single(ctx context.Context, query string, value int) (int, error) {
	diag.Warn(ctx, diag.Advisory(d.Name(), query,
		fmt.Sprintf("no launcher detected, assuming a single-process run (%s=%d)", query, value)))
	return value, nil
}

func (d *Default) Rank(ctx context.Context) (int, error) {
	return d.single(ctx, "rank", 0)
}

func (d *Default) LocalRank(ctx context.Context) (int, error) {
	return d.single(ctx, "local_rank", 0)
}

func (d *Default) WorldSize(ctx context.Context) (int, error) {
	return d.single(ctx, "world_size", 1)
}

func (d *Default) LocalWorldSize(ctx context.Context) (int, error) {
	return d.single(ctx, "local_world_size", 1)
}

func (d *Default) NumNodes(ctx context.Context) (int, error) {
	return d.single(ctx, "num_nodes", 1)
}

// CPUsPerTask approximates the allocation with every CPU the runtime
// sees, which is right for an uncontained manual run and generous
// everywhere else.
func (d *Default) CPUsPerTask(ctx context.Context) (int, error) {
	if d.cfg.Strict {
		return 0, Unavailable(d.Name(), "cpus_per_task")
	}
	diag.Warn(ctx, diag.Advisory(d.Name(), "cpus_per_task",
		"approximated from runtime.NumCPU()"))
	return runtime.NumCPU(), nil
}

func (d *Default) GPUIDs(ctx context.Context) ([]string, error) {
	return nil, Unavailable(d.Name(), "gpu_ids")
}

// Nodelist is exact for a single-process run: the job spans this host.
func (d *Default) Nodelist(ctx context.Context) ([]string, error) {
	host, err := d.Hostname(ctx)
	if err != nil {
		return nil, err
	}
	return []string{host}, nil
}

func (d *Default) Hostname(ctx context.Context) (string, error) {
	return localHostname(d.cfg.Env, d.Name())
}

// MasterAddress has no sensible default outside a real job.
func (d *Default) MasterAddress(ctx context.Context) (string, error) {
	return "", Unavailable(d.Name(), "master_address")
}

func (d *Default) MasterPort(ctx context.Context) (int, error) {
	return 0, Unavailable(d.Name(), "master_port")
}

func (d *Default) InitMethod(ctx context.Context) (string, error) {
	return "", Unavailable(d.Name(), "init_method")
}
