// Package launcher defines the contract a job-launch environment must
// satisfy and the priority-ordered registry that selects the one matching
// the current process. Implementations answer a fixed set of named queries
// (rank, world size, master address, ...) from environment variables left
// behind by the scheduler or process spawner that started the process.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrUnavailable signals that a query has no determinable value in the
// current environment. Callers match it with errors.Is.
var ErrUnavailable = errors.New("value not determinable in this environment")

// Unavailable wraps ErrUnavailable with the launcher and query that could
// not produce a value.
func Unavailable(launcherName, query string) error {
	return fmt.Errorf("%s: %s: %w", launcherName, query, ErrUnavailable)
}

// API is the contract a launcher implementation satisfies. Name and
// Priority identify and rank the implementation; IsActive reports whether
// the current environment was produced by this launcher. The remaining
// methods are the declared queries: each returns the value or an error
// wrapping ErrUnavailable when the environment does not determine one.
//
// Higher Priority value means higher precedence: when several launchers
// detect their environment simultaneously (torchrun inside an sbatch
// allocation, for example), the registry selects the one with the largest
// Priority first.
type API interface {
	Name() string
	Priority() int
	IsActive() bool

	Rank(ctx context.Context) (int, error)
	LocalRank(ctx context.Context) (int, error)
	WorldSize(ctx context.Context) (int, error)
	LocalWorldSize(ctx context.Context) (int, error)
	NumNodes(ctx context.Context) (int, error)
	CPUsPerTask(ctx context.Context) (int, error)
	GPUIDs(ctx context.Context) ([]string, error)
	Nodelist(ctx context.Context) ([]string, error)
	Hostname(ctx context.Context) (string, error)
	MasterAddress(ctx context.Context) (string, error)
	MasterPort(ctx context.Context) (int, error)
	InitMethod(ctx context.Context) (string, error)
}

// Bootstrapper is an optional interface for launchers that need one-time
// filesystem setup (state directories and the like). The facade runs it
// once at construction on whichever launcher is active at that point;
// failures degrade to a bootstrap warning, never an error.
type Bootstrapper interface {
	Bootstrap() error
}

// Hinter is an optional interface describing how a launcher detects its
// environment, for human-facing listings.
type Hinter interface {
	DetectionHint() string
}

// QuerySpec declares one named query of the launcher contract.
type QuerySpec struct {
	// Name is the external snake_case identifier of the query.
	Name string

	// Callable marks queries exposed as explicit calls rather than
	// attribute-like accessors. InitMethod composes a rendezvous URL
	// instead of reporting a raw environment value, so it stays a call.
	Callable bool
}

// Queries lists the declared queries in presentation order. The facade
// derives its forwarding surface and its advertised attribute names from
// this table.
var Queries = []QuerySpec{
	{Name: "rank"},
	{Name: "local_rank"},
	{Name: "world_size"},
	{Name: "local_world_size"},
	{Name: "num_nodes"},
	{Name: "cpus_per_task"},
	{Name: "gpu_ids"},
	{Name: "nodelist"},
	{Name: "hostname"},
	{Name: "master_address"},
	{Name: "master_port"},
	{Name: "init_method", Callable: true},
}

// Env looks up an environment variable, reporting whether it is set.
// Injecting it keeps detection and queries testable without mutating the
// process environment.
type Env func(key string) (string, bool)

// Relative precedence of the shipped implementations. TorchElastic
// outranks Slurm: when torchrun runs inside an sbatch allocation both
// detect, and torchrun is the launcher that actually spawned the process.
const (
	PriorityDefault      = 0
	PriorityOpenMPI      = 10
	PrioritySlurm        = 20
	PriorityTorchElastic = 30
)

// Master-port derivation bounds. When no MASTER_PORT is exported, Slurm
// derives a port as PortBase + jobID mod PortSpan, which is deterministic
// across all ranks of the same job.
const (
	DefaultPortBase = 10000
	DefaultPortSpan = 20000
)

// Config carries the shared knobs of the shipped implementations.
// The zero value is usable: Env defaults to os.LookupEnv and the port
// range to DefaultPortBase/DefaultPortSpan.
type Config struct {
	// Env is the environment source. Nil means os.LookupEnv.
	Env Env

	// PortBase and PortSpan bound derived master ports.
	PortBase int
	PortSpan int

	// Strict disables approximated values: queries that would guess
	// (nodelist from the local hostname, num_nodes by division,
	// cpus from runtime.NumCPU) return ErrUnavailable instead.
	Strict bool
}

func (c Config) withDefaults() Config {
	if c.Env == nil {
		c.Env = os.LookupEnv
	}
	if c.PortBase <= 0 {
		c.PortBase = DefaultPortBase
	}
	if c.PortSpan <= 0 {
		c.PortSpan = DefaultPortSpan
	}
	return c
}

// Builtin returns the shipped launcher implementations in registration
// order. Default is not among them: it is the fallback the registry
// constructs when nothing claims the environment, never a registered
// entry.
func Builtin(cfg Config) []API {
	return []API{
		NewSlurm(cfg),
		NewTorchElastic(cfg),
		NewOpenMPI(cfg),
	}
}

// intVar parses the first of keys that is set. Returns ErrUnavailable
// (wrapped with launcher and query) when none is, and a parse error when
// the value is malformed.
func intVar(env Env, launcherName, query string, keys ...string) (int, error) {
	for _, key := range keys {
		value, ok := env(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s: %s: parsing %s=%q: %w", launcherName, query, key, value, err)
		}
		return n, nil
	}
	return 0, Unavailable(launcherName, query)
}

// stringVar returns the first of keys that is set.
func stringVar(env Env, launcherName, query string, keys ...string) (string, error) {
	for _, key := range keys {
		if value, ok := env(key); ok {
			return value, nil
		}
	}
	return "", Unavailable(launcherName, query)
}

// localHostname resolves the machine hostname, preferring the given
// environment keys over os.Hostname.
func localHostname(env Env, launcherName string, keys ...string) (string, error) {
	for _, key := range keys {
		if value, ok := env(key); ok {
			return value, nil
		}
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("%s: hostname: %w", launcherName, err)
	}
	return host, nil
}

// tcpInitMethod composes the rendezvous URL used by tcp-based init.
func tcpInitMethod(addr string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", addr, port)
}
