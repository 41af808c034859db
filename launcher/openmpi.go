package launcher

import (
	"context"

	"github.com/zjrosen/cordee/diag"
)

// Environment variables exported by Open MPI's mpirun/prte to every
// process of the communicator.
const (
	ompiWorldSize      = "OMPI_COMM_WORLD_SIZE"
	ompiWorldRank      = "OMPI_COMM_WORLD_RANK"
	ompiLocalRank      = "OMPI_COMM_WORLD_LOCAL_RANK"
	ompiLocalWorldSize = "OMPI_COMM_WORLD_LOCAL_SIZE"
)

// OpenMPI reads the position of a process launched by mpirun. Open MPI
// publishes communicator geometry but no rendezvous endpoint, so the
// master address and port are only available when the user exported
// MASTER_ADDR/MASTER_PORT alongside the launch.
type OpenMPI struct {
	cfg Config
}

// NewOpenMPI creates the OpenMPI implementation.
func NewOpenMPI(cfg Config) *OpenMPI {
	return &OpenMPI{cfg: cfg.withDefaults()}
}

func (o *OpenMPI) Name() string  { return "OpenMPI" }
func (o *OpenMPI) Priority() int { return PriorityOpenMPI }

// IsActive reports whether mpirun launched this process.
func (o *OpenMPI) IsActive() bool {
	_, ok := o.cfg.Env(ompiWorldSize)
	return ok
}

// DetectionHint names the variable IsActive keys on.
func (o *OpenMPI) DetectionHint() string { return ompiWorldSize + " is set" }

func (o *OpenMPI) Rank(ctx context.Context) (int, error) {
	return intVar(o.cfg.Env, o.Name(), "rank", ompiWorldRank)
}

func (o *OpenMPI) LocalRank(ctx context.Context) (int, error) {
	return intVar(o.cfg.Env, o.Name(), "local_rank", ompiLocalRank)
}

func (o *OpenMPI) WorldSize(ctx context.Context) (int, error) {
	return intVar(o.cfg.Env, o.Name(), "world_size", ompiWorldSize)
}

func (o *OpenMPI) LocalWorldSize(ctx context.Context) (int, error) {
	return intVar(o.cfg.Env, o.Name(), "local_world_size", ompiLocalWorldSize)
}

// NumNodes is approximated by dividing world size by local world size;
// Open MPI exports no node count of its own.
func (o *OpenMPI) NumNodes(ctx context.Context) (int, error) {
	if o.cfg.Strict {
		return 0, Unavailable(o.Name(), "num_nodes")
	}

	world, err := o.WorldSize(ctx)
	if err != nil {
		return 0, err
	}
	local, err := o.LocalWorldSize(ctx)
	if err != nil {
		return 0, err
	}
	if local < 1 {
		return 0, Unavailable(o.Name(), "num_nodes")
	}
	diag.Warn(ctx, diag.Advisory(o.Name(), "num_nodes",
		"approximated as world_size/local_world_size"))
	return (world + local - 1) / local, nil
}

func (o *OpenMPI) CPUsPerTask(ctx context.Context) (int, error) {
	return 0, Unavailable(o.Name(), "cpus_per_task")
}

func (o *OpenMPI) GPUIDs(ctx context.Context) ([]string, error) {
	return nil, Unavailable(o.Name(), "gpu_ids")
}

// Nodelist is approximated by the local hostname; the full host list
// stays inside mpirun.
func (o *OpenMPI) Nodelist(ctx context.Context) ([]string, error) {
	if o.cfg.Strict {
		return nil, Unavailable(o.Name(), "nodelist")
	}
	host, err := o.Hostname(ctx)
	if err != nil {
		return nil, err
	}
	diag.Warn(ctx, diag.Advisory(o.Name(), "nodelist",
		"approximated from the local hostname; Open MPI does not expose the host list"))
	return []string{host}, nil
}

func (o *OpenMPI) Hostname(ctx context.Context) (string, error) {
	return localHostname(o.cfg.Env, o.Name())
}

func (o *OpenMPI) MasterAddress(ctx context.Context) (string, error) {
	return stringVar(o.cfg.Env, o.Name(), "master_address", masterAddrVar)
}

func (o *OpenMPI) MasterPort(ctx context.Context) (int, error) {
	return intVar(o.cfg.Env, o.Name(), "master_port", masterPortVar)
}

func (o *OpenMPI) InitMethod(ctx context.Context) (string, error) {
	addr, err := o.MasterAddress(ctx)
	if err != nil {
		return "", err
	}
	port, err := o.MasterPort(ctx)
	if err != nil {
		return "", err
	}
	return tcpInitMethod(addr, port), nil
}
