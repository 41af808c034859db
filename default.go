package cordee

import (
	"context"
	"sync"

	"github.com/zjrosen/cordee/launcher"
)

var (
	defaultInterface *Interface
	defaultOnce      sync.Once
)

// Default returns the package-level facade, constructing it on first use
// with the builtin launchers and the process environment.
func Default() *Interface {
	defaultOnce.Do(func() {
		defaultInterface = New()
	})
	return defaultInterface
}

// Rank reports this process's global rank in the job.
func Rank(ctx context.Context) (int, error) { return Default().Rank(ctx) }

// LocalRank reports this process's rank on its node.
func LocalRank(ctx context.Context) (int, error) { return Default().LocalRank(ctx) }

// WorldSize reports the total process count of the job.
func WorldSize(ctx context.Context) (int, error) { return Default().WorldSize(ctx) }

// LocalWorldSize reports the process count on this node.
func LocalWorldSize(ctx context.Context) (int, error) { return Default().LocalWorldSize(ctx) }

// NumNodes reports the node count of the job.
func NumNodes(ctx context.Context) (int, error) { return Default().NumNodes(ctx) }

// CPUsPerTask reports the CPU allocation of one task.
func CPUsPerTask(ctx context.Context) (int, error) { return Default().CPUsPerTask(ctx) }

// GPUIDs reports the GPU identifiers allocated to the job on this node.
func GPUIDs(ctx context.Context) ([]string, error) { return Default().GPUIDs(ctx) }

// Nodelist reports the hostnames of every node in the job.
func Nodelist(ctx context.Context) ([]string, error) { return Default().Nodelist(ctx) }

// Hostname reports the hostname of this node.
func Hostname(ctx context.Context) (string, error) { return Default().Hostname(ctx) }

// MasterAddress reports the rendezvous host of the job.
func MasterAddress(ctx context.Context) (string, error) { return Default().MasterAddress(ctx) }

// MasterPort reports the rendezvous port of the job.
func MasterPort(ctx context.Context) (int, error) { return Default().MasterPort(ctx) }

// InitMethod composes the process-group rendezvous URL.
func InitMethod(ctx context.Context) (string, error) { return Default().InitMethod(ctx) }

// CurrentLauncher names the launcher claiming the environment right now.
func CurrentLauncher() string { return Default().CurrentLauncher() }

// Launchers snapshots the registered APIs in precedence order.
func Launchers() []launcher.API { return Default().Launchers() }

// Attributes lists the advertised facade surface.
func Attributes() []string { return Default().Attributes() }

// RegisterAPI registers an additional launcher with the default facade.
// Plugin packages call this from init or early in main.
func RegisterAPI(api launcher.API) { Default().RegisterAPI(api) }

// RenderSummary renders the job-identity report of the default facade.
func RenderSummary(ctx context.Context, indentWidth int) string {
	return Default().RenderSummary(ctx, indentWidth)
}

// PrintSummary writes the default facade's summary to stdout.
func PrintSummary(ctx context.Context) { Default().PrintSummary(ctx) }
