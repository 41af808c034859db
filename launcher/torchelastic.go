package launcher

import (
	"context"

	"github.com/zjrosen/cordee/diag"
)

// Environment variables populated by torchrun (the TorchElastic agent).
const (
	torchRunID          = "TORCHELASTIC_RUN_ID"
	torchRank           = "RANK"
	torchLocalRank      = "LOCAL_RANK"
	torchWorldSize      = "WORLD_SIZE"
	torchLocalWorldSize = "LOCAL_WORLD_SIZE"
	torchGroupWorldSize = "GROUP_WORLD_SIZE"
)

// TorchElastic reads the position of a process spawned by torchrun.
// torchrun exports the full rendezvous state, so most queries are direct
// reads; only the node-level views are approximated, because the agent
// never exposes the other nodes' names.
type TorchElastic struct {
	cfg Config
}

// NewTorchElastic creates the TorchElastic implementation.
func NewTorchElastic(cfg Config) *TorchElastic {
	return &TorchElastic{cfg: cfg.withDefaults()}
}

func (t *TorchElastic) Name() string  { return "TorchElastic" }
func (t *TorchElastic) Priority() int { return PriorityTorchElastic }

// IsActive reports whether torchrun spawned this process.
func (t *TorchElastic) IsActive() bool {
	_, ok := t.cfg.Env(torchRunID)
	return ok
}

// DetectionHint names the variable IsActive keys on.
func (t *TorchElastic) DetectionHint() string { return torchRunID + " is set" }

func (t *TorchElastic) Rank(ctx context.Context) (int, error) {
	return intVar(t.cfg.Env, t.Name(), "rank", torchRank)
}

func (t *TorchElastic) LocalRank(ctx context.Context) (int, error) {
	return intVar(t.cfg.Env, t.Name(), "local_rank", torchLocalRank)
}

func (t *TorchElastic) WorldSize(ctx context.Context) (int, error) {
	return intVar(t.cfg.Env, t.Name(), "world_size", torchWorldSize)
}

func (t *TorchElastic) LocalWorldSize(ctx context.Context) (int, error) {
	return intVar(t.cfg.Env, t.Name(), "local_world_size", torchLocalWorldSize)
}

// NumNodes prefers GROUP_WORLD_SIZE (the agent count). Older torchrun
// versions omit it, in which case the node count is approximated by
// dividing world size by local world size.
func (t *TorchElastic) NumNodes(ctx context.Context) (int, error) {
	if _, ok := t.cfg.Env(torchGroupWorldSize); ok {
		return intVar(t.cfg.Env, t.Name(), "num_nodes", torchGroupWorldSize)
	}
	if t.cfg.Strict {
		return 0, Unavailable(t.Name(), "num_nodes")
	}

	world, err := t.WorldSize(ctx)
	if err != nil {
		return 0, err
	}
	local, err := t.LocalWorldSize(ctx)
	if err != nil {
		return 0, err
	}
	if local < 1 {
		return 0, Unavailable(t.Name(), "num_nodes")
	}
	diag.Warn(ctx, diag.Advisory(t.Name(), "num_nodes",
		"approximated as world_size/local_world_size; torchrun did not export "+torchGroupWorldSize))
	return (world + local - 1) / local, nil
}

func (t *TorchElastic) CPUsPerTask(ctx context.Context) (int, error) {
	return 0, Unavailable(t.Name(), "cpus_per_task")
}

func (t *TorchElastic) GPUIDs(ctx context.Context) ([]string, error) {
	return nil, Unavailable(t.Name(), "gpu_ids")
}

// Nodelist is approximated by the local hostname: torchrun tells a worker
// nothing about its sibling nodes.
func (t *TorchElastic) Nodelist(ctx context.Context) ([]string, error) {
	if t.cfg.Strict {
		return nil, Unavailable(t.Name(), "nodelist")
	}
	host, err := t.Hostname(ctx)
	if err != nil {
		return nil, err
	}
	diag.Warn(ctx, diag.Advisory(t.Name(), "nodelist",
		"approximated from the local hostname; torchrun does not expose the full node list"))
	return []string{host}, nil
}

func (t *TorchElastic) Hostname(ctx context.Context) (string, error) {
	return localHostname(t.cfg.Env, t.Name())
}

func (t *TorchElastic) MasterAddress(ctx context.Context) (string, error) {
	return stringVar(t.cfg.Env, t.Name(), "master_address", masterAddrVar)
}

func (t *TorchElastic) MasterPort(ctx context.Context) (int, error) {
	return intVar(t.cfg.Env, t.Name(), "master_port", masterPortVar)
}

// InitMethod is env:// under torchrun: the agent has already exported
// MASTER_ADDR and MASTER_PORT for the rendezvous to read back.
func (t *TorchElastic) InitMethod(ctx context.Context) (string, error) {
	return "env://", nil
}
