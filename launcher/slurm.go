package launcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zjrosen/cordee/diag"
	"github.com/zjrosen/cordee/nodeset"
)

// Environment variables consulted by the Slurm implementation. A process
// launched through srun carries the step-scoped variants; the job-scoped
// ones remain as fallbacks inside a bare sbatch allocation.
const (
	slurmStepID       = "SLURM_STEP_ID"
	slurmProcID       = "SLURM_PROCID"
	slurmLocalID      = "SLURM_LOCALID"
	slurmNodeID       = "SLURM_NODEID"
	slurmStepNumTasks = "SLURM_STEP_NUM_TASKS"
	slurmNTasks       = "SLURM_NTASKS"
	slurmNProcs       = "SLURM_NPROCS"
	slurmNTasksNode   = "SLURM_NTASKS_PER_NODE"
	slurmTasksNode    = "SLURM_TASKS_PER_NODE"
	slurmStepNumNodes = "SLURM_STEP_NUM_NODES"
	slurmJobNumNodes  = "SLURM_JOB_NUM_NODES"
	slurmNNodes       = "SLURM_NNODES"
	slurmCPUsPerTask  = "SLURM_CPUS_PER_TASK"
	slurmStepGPUs     = "SLURM_STEP_GPUS"
	slurmJobGPUs      = "SLURM_JOB_GPUS"
	slurmStepNodelist = "SLURM_STEP_NODELIST"
	slurmJobNodelist  = "SLURM_JOB_NODELIST"
	slurmNodelist     = "SLURM_NODELIST"
	slurmdNodename    = "SLURMD_NODENAME"
	slurmJobID        = "SLURM_JOB_ID"
	slurmJobIDLegacy  = "SLURM_JOBID"
	masterPortVar     = "MASTER_PORT"
	masterAddrVar     = "MASTER_ADDR"
)

// Slurm reads the position of a process launched through srun from the
// SLURM_* environment. Nodelist expressions are expanded in-process
// through the nodeset package rather than shelling out to scontrol.
type Slurm struct {
	cfg      Config
	expander *nodeset.Expander
}

// NewSlurm creates the Slurm implementation.
func NewSlurm(cfg Config) *Slurm {
	return &Slurm{cfg: cfg.withDefaults(), expander: nodeset.NewExpander()}
}

func (s *Slurm) Name() string  { return "Slurm" }
func (s *Slurm) Priority() int { return PrioritySlurm }

// IsActive reports whether srun launched this process. SLURM_STEP_ID is
// set for step tasks only, so a process merely running inside an sbatch
// allocation (without srun) does not count.
func (s *Slurm) IsActive() bool {
	_, ok := s.cfg.Env(slurmStepID)
	return ok
}

// DetectionHint names the variable IsActive keys on.
func (s *Slurm) DetectionHint() string { return slurmStepID + " is set" }

func (s *Slurm) Rank(ctx context.Context) (int, error) {
	return intVar(s.cfg.Env, s.Name(), "rank", slurmProcID)
}

func (s *Slurm) LocalRank(ctx context.Context) (int, error) {
	return intVar(s.cfg.Env, s.Name(), "local_rank", slurmLocalID)
}

func (s *Slurm) WorldSize(ctx context.Context) (int, error) {
	n, err := intVar(s.cfg.Env, s.Name(), "world_size", slurmStepNumTasks, slurmNTasks)
	if err == nil {
		return n, nil
	}

	// SLURM_NPROCS survives only for compatibility with pre-17.02 Slurm.
	if _, ok := s.cfg.Env(slurmNProcs); ok {
		diag.Warn(ctx, diag.Advisory(s.Name(), "world_size",
			slurmNProcs+" is deprecated, prefer "+slurmNTasks))
		return intVar(s.cfg.Env, s.Name(), "world_size", slurmNProcs)
	}
	return 0, err
}

func (s *Slurm) LocalWorldSize(ctx context.Context) (int, error) {
	if _, ok := s.cfg.Env(slurmNTasksNode); ok {
		return intVar(s.cfg.Env, s.Name(), "local_world_size", slurmNTasksNode)
	}

	// Without SLURM_NTASKS_PER_NODE the per-node counts live in the
	// SLURM_TASKS_PER_NODE expression ("2(x3),1"), indexed by node.
	expr, ok := s.cfg.Env(slurmTasksNode)
	if !ok {
		return 0, Unavailable(s.Name(), "local_world_size")
	}
	counts, err := parseTasksPerNode(expr)
	if err != nil {
		return 0, fmt.Errorf("%s: local_world_size: %w", s.Name(), err)
	}
	nodeID, err := intVar(s.cfg.Env, s.Name(), "local_world_size", slurmNodeID)
	if err != nil {
		return 0, err
	}
	if nodeID < 0 || nodeID >= len(counts) {
		return 0, fmt.Errorf("%s: local_world_size: node id %d outside %s=%q",
			s.Name(), nodeID, slurmTasksNode, expr)
	}
	return counts[nodeID], nil
}

func (s *Slurm) NumNodes(ctx context.Context) (int, error) {
	return intVar(s.cfg.Env, s.Name(), "num_nodes", slurmStepNumNodes, slurmJobNumNodes, slurmNNodes)
}

func (s *Slurm) CPUsPerTask(ctx context.Context) (int, error) {
	return intVar(s.cfg.Env, s.Name(), "cpus_per_task", slurmCPUsPerTask)
}

func (s *Slurm) GPUIDs(ctx context.Context) ([]string, error) {
	value, err := stringVar(s.cfg.Env, s.Name(), "gpu_ids", slurmStepGPUs, slurmJobGPUs)
	if err != nil {
		return nil, err
	}
	return strings.Split(value, ","), nil
}

func (s *Slurm) Nodelist(ctx context.Context) ([]string, error) {
	expr, err := stringVar(s.cfg.Env, s.Name(), "nodelist", slurmStepNodelist, slurmJobNodelist, slurmNodelist)
	if err != nil {
		return nil, err
	}
	hosts, err := s.expander.Expand(ctx, expr)
	if err != nil {
		return nil, fmt.Errorf("%s: nodelist: %w", s.Name(), err)
	}
	return hosts, nil
}

func (s *Slurm) Hostname(ctx context.Context) (string, error) {
	return localHostname(s.cfg.Env, s.Name(), slurmdNodename)
}

// MasterAddress is the first host of the nodelist, the convention every
// rank can compute without coordination.
func (s *Slurm) MasterAddress(ctx context.Context) (string, error) {
	hosts, err := s.Nodelist(ctx)
	if err != nil {
		return "", err
	}
	return hosts[0], nil
}

// MasterPort honors an exported MASTER_PORT, otherwise derives
// PortBase + jobID mod PortSpan so that every rank of a job agrees on the
// port without talking to each other.
func (s *Slurm) MasterPort(ctx context.Context) (int, error) {
	if value, ok := s.cfg.Env(masterPortVar); ok {
		port, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s: master_port: parsing %s=%q: %w", s.Name(), masterPortVar, value, err)
		}
		return port, nil
	}
	jobID, err := intVar(s.cfg.Env, s.Name(), "master_port", slurmJobID, slurmJobIDLegacy)
	if err != nil {
		return 0, err
	}
	return s.cfg.PortBase + jobID%s.cfg.PortSpan, nil
}

func (s *Slurm) InitMethod(ctx context.Context) (string, error) {
	addr, err := s.MasterAddress(ctx)
	if err != nil {
		return "", err
	}
	port, err := s.MasterPort(ctx)
	if err != nil {
		return "", err
	}
	return tcpInitMethod(addr, port), nil
}

// parseTasksPerNode expands a SLURM_TASKS_PER_NODE expression into the
// per-node task counts it names: "2(x3),1" yields [2 2 2 1].
func parseTasksPerNode(expr string) ([]int, error) {
	var counts []int
	for _, token := range strings.Split(expr, ",") {
		count := token
		repeat := 1

		if open := strings.Index(token, "(x"); open != -1 {
			if !strings.HasSuffix(token, ")") {
				return nil, fmt.Errorf("malformed tasks-per-node token %q", token)
			}
			count = token[:open]
			r, err := strconv.Atoi(token[open+2 : len(token)-1])
			if err != nil || r < 1 {
				return nil, fmt.Errorf("malformed tasks-per-node token %q", token)
			}
			repeat = r
		}

		n, err := strconv.Atoi(count)
		if err != nil {
			return nil, fmt.Errorf("malformed tasks-per-node token %q", token)
		}
		for i := 0; i < repeat; i++ {
			counts = append(counts, n)
		}
	}
	return counts, nil
}
