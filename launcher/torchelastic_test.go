package launcher

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/cordee/diag"
)

// torchRunEnv is the environment torchrun exports to worker 3 of an
// 8-process, 2-per-node run.
func torchRunEnv() map[string]string {
	return map[string]string{
		"TORCHELASTIC_RUN_ID": "job-1234",
		"RANK":                "3",
		"LOCAL_RANK":          "1",
		"WORLD_SIZE":          "8",
		"LOCAL_WORLD_SIZE":    "2",
		"GROUP_WORLD_SIZE":    "4",
		"MASTER_ADDR":         "10.0.0.1",
		"MASTER_PORT":         "29400",
	}
}

func newTorchWith(vars map[string]string) *TorchElastic {
	return NewTorchElastic(Config{Env: mapEnv(vars)})
}

// === Identity and detection ===

func TestTorchElastic_Identity(t *testing.T) {
	te := newTorchWith(nil)

	require.Equal(t, "TorchElastic", te.Name())
	require.Equal(t, PriorityTorchElastic, te.Priority())
	require.Contains(t, te.DetectionHint(), "TORCHELASTIC_RUN_ID")
}

func TestTorchElastic_IsActive(t *testing.T) {
	require.True(t, newTorchWith(torchRunEnv()).IsActive())
	require.False(t, newTorchWith(map[string]string{"RANK": "0"}).IsActive(),
		"RANK alone is not proof of torchrun")
}

func TestTorchElastic_OutranksSlurm(t *testing.T) {
	require.Greater(t, PriorityTorchElastic, PrioritySlurm,
		"torchrun inside an sbatch allocation must win")
}

// === Queries ===

func TestTorchElastic_Queries(t *testing.T) {
	ctx := context.Background()
	te := newTorchWith(torchRunEnv())

	rank, err := te.Rank(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, rank)

	local, err := te.LocalRank(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, local)

	world, err := te.WorldSize(ctx)
	require.NoError(t, err)
	require.Equal(t, 8, world)

	localWorld, err := te.LocalWorldSize(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, localWorld)

	nodes, err := te.NumNodes(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, nodes)

	addr, err := te.MasterAddress(ctx)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", addr)

	port, err := te.MasterPort(ctx)
	require.NoError(t, err)
	require.Equal(t, 29400, port)
}

func TestTorchElastic_NumNodes_ApproximatedWithoutGroupWorldSize(t *testing.T) {
	vars := torchRunEnv()
	delete(vars, "GROUP_WORLD_SIZE")
	ctx, rec := diag.Capture(context.Background())

	nodes, err := newTorchWith(vars).NumNodes(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, nodes)

	warnings := rec.Drain()
	require.Len(t, warnings, 1)
	require.Equal(t, "num_nodes", warnings[0].Query)
	require.Contains(t, warnings[0].Message, "GROUP_WORLD_SIZE")
}

func TestTorchElastic_NumNodes_RoundsUp(t *testing.T) {
	vars := map[string]string{"WORLD_SIZE": "7", "LOCAL_WORLD_SIZE": "2"}
	ctx, _ := diag.Capture(context.Background())

	nodes, err := newTorchWith(vars).NumNodes(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, nodes)
}

func TestTorchElastic_NumNodes_StrictRefusesApproximation(t *testing.T) {
	vars := torchRunEnv()
	delete(vars, "GROUP_WORLD_SIZE")
	te := NewTorchElastic(Config{Env: mapEnv(vars), Strict: true})

	_, err := te.NumNodes(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestTorchElastic_Nodelist_ApproximatedFromHostname(t *testing.T) {
	ctx, rec := diag.Capture(context.Background())

	hosts, err := newTorchWith(torchRunEnv()).Nodelist(ctx)
	require.NoError(t, err)

	self, err := os.Hostname()
	require.NoError(t, err)
	require.Equal(t, []string{self}, hosts)

	warnings := rec.Drain()
	require.Len(t, warnings, 1)
	require.Equal(t, "nodelist", warnings[0].Query)
}

func TestTorchElastic_Nodelist_StrictRefusesApproximation(t *testing.T) {
	te := NewTorchElastic(Config{Env: mapEnv(torchRunEnv()), Strict: true})

	_, err := te.Nodelist(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestTorchElastic_UnexposedQueries(t *testing.T) {
	ctx := context.Background()
	te := newTorchWith(torchRunEnv())

	_, err := te.CPUsPerTask(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = te.GPUIDs(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestTorchElastic_InitMethod_IsEnvScheme(t *testing.T) {
	method, err := newTorchWith(nil).InitMethod(context.Background())

	require.NoError(t, err)
	require.Equal(t, "env://", method)
}

func TestTorchElastic_MasterEndpoint_Unset(t *testing.T) {
	ctx := context.Background()
	te := newTorchWith(map[string]string{"TORCHELASTIC_RUN_ID": "x"})

	_, err := te.MasterAddress(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = te.MasterPort(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
}
