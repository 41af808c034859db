// Package presentation converts query results into CLI-facing shapes and
// renders them as text, JSON, or YAML.
package presentation

import (
	"context"
	"sort"
	"strings"

	"github.com/zjrosen/cordee/launcher"
)

// QueryAPI is the query surface a summary is built from. Raw launcher
// implementations and the facade both satisfy it.
type QueryAPI interface {
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

// SummaryDTO carries one process's resolved job identity. Pointer fields
// are nil when the value is unavailable, which JSON and YAML render as
// null.
type SummaryDTO struct {
	Launcher       string   `json:"launcher" yaml:"launcher"`
	Rank           *int     `json:"rank" yaml:"rank"`
	LocalRank      *int     `json:"local_rank" yaml:"local_rank"`
	WorldSize      *int     `json:"world_size" yaml:"world_size"`
	LocalWorldSize *int     `json:"local_world_size" yaml:"local_world_size"`
	NumNodes       *int     `json:"num_nodes" yaml:"num_nodes"`
	CPUsPerTask    *int     `json:"cpus_per_task" yaml:"cpus_per_task"`
	GPUIDs         []string `json:"gpu_ids" yaml:"gpu_ids"`
	Nodelist       []string `json:"nodelist" yaml:"nodelist"`
	Hostname       *string  `json:"hostname" yaml:"hostname"`
	MasterAddress  *string  `json:"master_address" yaml:"master_address"`
	MasterPort     *int     `json:"master_port" yaml:"master_port"`
	InitMethod     *string  `json:"init_method" yaml:"init_method"`
}

// BuildSummary resolves every query against the API. Failed queries
// (unavailable or otherwise) become nil fields.
func BuildSummary(ctx context.Context, launcherName string, api QueryAPI) SummaryDTO {
	dto := SummaryDTO{Launcher: launcherName}

	dto.Rank = intField(api.Rank(ctx))
	dto.LocalRank = intField(api.LocalRank(ctx))
	dto.WorldSize = intField(api.WorldSize(ctx))
	dto.LocalWorldSize = intField(api.LocalWorldSize(ctx))
	dto.NumNodes = intField(api.NumNodes(ctx))
	dto.CPUsPerTask = intField(api.CPUsPerTask(ctx))
	dto.MasterPort = intField(api.MasterPort(ctx))

	dto.Hostname = stringField(api.Hostname(ctx))
	dto.MasterAddress = stringField(api.MasterAddress(ctx))
	dto.InitMethod = stringField(api.InitMethod(ctx))

	if gpus, err := api.GPUIDs(ctx); err == nil {
		dto.GPUIDs = gpus
	}
	if hosts, err := api.Nodelist(ctx); err == nil {
		dto.Nodelist = hosts
	}

	return dto
}

func intField(n int, err error) *int {
	if err != nil {
		return nil
	}
	return &n
}

func stringField(s string, err error) *string {
	if err != nil {
		return nil
	}
	return &s
}

// LauncherDTO describes one registered launcher for listings.
type LauncherDTO struct {
	Name      string `json:"name" yaml:"name"`
	Priority  int    `json:"priority" yaml:"priority"`
	Active    bool   `json:"active" yaml:"active"`
	Selected  bool   `json:"selected" yaml:"selected"`
	Detection string `json:"detection,omitempty" yaml:"detection,omitempty"`
}

// FromAPIs converts registered launchers to DTOs in registry order.
// The first active entry is marked selected, mirroring selection.
func FromAPIs(apis []launcher.API) []LauncherDTO {
	dtos := make([]LauncherDTO, len(apis))
	selected := false
	for i, api := range apis {
		dto := LauncherDTO{
			Name:     api.Name(),
			Priority: api.Priority(),
			Active:   api.IsActive(),
		}
		if dto.Active && !selected {
			dto.Selected = true
			selected = true
		}
		if h, ok := api.(launcher.Hinter); ok {
			dto.Detection = h.DetectionHint()
		}
		dtos[i] = dto
	}
	return dtos
}

// EnvVar is one environment variable for listings.
type EnvVar struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// FromEnviron filters "KEY=VALUE" entries through match and returns them
// sorted by key.
func FromEnviron(environ []string, match func(key string) bool) []EnvVar {
	var vars []EnvVar
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !match(key) {
			continue
		}
		vars = append(vars, EnvVar{Key: key, Value: value})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Key < vars[j].Key })
	return vars
}

// AttributeDTO describes one facade attribute for listings.
type AttributeDTO struct {
	Name     string `json:"name" yaml:"name"`
	Callable bool   `json:"callable" yaml:"callable"`
}

// FromAttributeNames converts advertised attribute names, where callables
// carry a "()" suffix, back to DTOs.
func FromAttributeNames(names []string) []AttributeDTO {
	dtos := make([]AttributeDTO, len(names))
	for i, name := range names {
		callable := strings.HasSuffix(name, "()")
		dtos[i] = AttributeDTO{
			Name:     strings.TrimSuffix(name, "()"),
			Callable: callable,
		}
	}
	return dtos
}
