// Package testutil provides configurable launcher stubs and environment
// presets for tests.
package testutil

import (
	"context"
	"sync"

	"github.com/zjrosen/cordee/diag"
	"github.com/zjrosen/cordee/launcher"
)

// StubAPI is a configurable launcher implementation. Every query answers
// from fixed data, raises configured advisories, and counts its calls.
type StubAPI struct {
	data stubData

	mu        sync.Mutex
	calls     map[string]int
	bootstrap int
}

var (
	_ launcher.API          = (*StubAPI)(nil)
	_ launcher.Hinter       = (*StubAPI)(nil)
	_ launcher.Bootstrapper = (*StubAPI)(nil)
)

// NewStubAPI creates a stub with single-node defaults, adjusted by opts.
func NewStubAPI(name string, opts ...StubOption) *StubAPI {
	data := defaultStub(name)
	for _, opt := range opts {
		opt(&data)
	}
	return &StubAPI{data: data, calls: map[string]int{}}
}

func (s *StubAPI) Name() string   { return s.data.name }
func (s *StubAPI) Priority() int  { return s.data.priority }
func (s *StubAPI) IsActive() bool { return s.data.active }

// DetectionHint returns the configured hint.
func (s *StubAPI) DetectionHint() string { return s.data.hint }

// Bootstrap counts invocations and returns the configured error.
func (s *StubAPI) Bootstrap() error {
	s.mu.Lock()
	s.bootstrap++
	s.mu.Unlock()
	return s.data.bootstrapErr
}

// BootstrapCalls returns how many times Bootstrap ran.
func (s *StubAPI) BootstrapCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootstrap
}

// Calls returns how many times the named query ran.
func (s *StubAPI) Calls(query string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[query]
}

// answer records the call, raises configured advisories, and reports
// whether the query is unavailable.
func (s *StubAPI) answer(ctx context.Context, query string) error {
	s.mu.Lock()
	s.calls[query]++
	s.mu.Unlock()

	for _, msg := range s.data.warnings[query] {
		diag.Warn(ctx, diag.Advisory(s.data.name, query, msg))
	}
	if s.data.unavailable[query] {
		return launcher.Unavailable(s.data.name, query)
	}
	return nil
}

func (s *StubAPI) Rank(ctx context.Context) (int, error) {
	return s.data.rank, s.answer(ctx, "rank")
}

func (s *StubAPI) LocalRank(ctx context.Context) (int, error) {
	return s.data.localRank, s.answer(ctx, "local_rank")
}

func (s *StubAPI) WorldSize(ctx context.Context) (int, error) {
	return s.data.worldSize, s.answer(ctx, "world_size")
}

func (s *StubAPI) LocalWorldSize(ctx context.Context) (int, error) {
	return s.data.localWorldSize, s.answer(ctx, "local_world_size")
}

func (s *StubAPI) NumNodes(ctx context.Context) (int, error) {
	return s.data.numNodes, s.answer(ctx, "num_nodes")
}

func (s *StubAPI) CPUsPerTask(ctx context.Context) (int, error) {
	return s.data.cpusPerTask, s.answer(ctx, "cpus_per_task")
}

func (s *StubAPI) GPUIDs(ctx context.Context) ([]string, error) {
	return s.data.gpuIDs, s.answer(ctx, "gpu_ids")
}

func (s *StubAPI) Nodelist(ctx context.Context) ([]string, error) {
	return s.data.nodelist, s.answer(ctx, "nodelist")
}

func (s *StubAPI) Hostname(ctx context.Context) (string, error) {
	return s.data.hostname, s.answer(ctx, "hostname")
}

func (s *StubAPI) MasterAddress(ctx context.Context) (string, error) {
	return s.data.masterAddress, s.answer(ctx, "master_address")
}

func (s *StubAPI) MasterPort(ctx context.Context) (int, error) {
	return s.data.masterPort, s.answer(ctx, "master_port")
}

func (s *StubAPI) InitMethod(ctx context.Context) (string, error) {
	return s.data.initMethod, s.answer(ctx, "init_method")
}

// Env builds a launcher.Env backed by a fixed map.
func Env(vars map[string]string) launcher.Env {
	return func(key string) (string, bool) {
		value, ok := vars[key]
		return value, ok
	}
}
