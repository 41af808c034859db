package presentation

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{name: "", want: FormatText},
		{name: "text", want: FormatText},
		{name: "json", want: FormatJSON},
		{name: "yaml", want: FormatYAML},
		{name: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("format "+tt.name, func(t *testing.T) {
			format, err := ParseFormat(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, format)
		})
	}
}

func TestFormatSummary_Text(t *testing.T) {
	// Strip styling so the rendered text is byte-comparable.
	lipgloss.SetColorProfile(termenv.Ascii)

	dto := BuildSummary(context.Background(), "Slurm", stubQuery{missing: map[string]bool{
		"gpu_ids": true,
	}})

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatText, 4).FormatSummary(dto))

	want := `Slurm(
    rank=5,
    local_rank=1,
    world_size=8,
    local_world_size=2,
    num_nodes=3,
    cpus_per_task=10,
    gpu_ids=<unavailable>,
    nodelist=[gpu001 gpu002 gpu003],
    hostname=gpu002,
    master_address=gpu001,
    master_port=13456,
    init_method=tcp://gpu001:13456,
)
`
	require.Equal(t, want, buf.String())
}

func TestFormatSummary_JSON(t *testing.T) {
	dto := BuildSummary(context.Background(), "Slurm", stubQuery{missing: map[string]bool{
		"master_address": true,
	}})

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatJSON, 4).FormatSummary(dto))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	require.Equal(t, "Slurm", out["launcher"])
	require.EqualValues(t, 5, out["rank"])
	require.Nil(t, out["master_address"], "unavailable renders as null")
}

func TestFormatSummary_YAML(t *testing.T) {
	dto := BuildSummary(context.Background(), "OpenMPI", stubQuery{})

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatYAML, 4).FormatSummary(dto))

	var out map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))

	require.Equal(t, "OpenMPI", out["launcher"])
	require.Equal(t, 8, out["world_size"])
}

func TestFormatLaunchers_Text(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	dtos := []LauncherDTO{
		{Name: "TorchElastic", Priority: 30, Active: true, Selected: true, Detection: "TORCHELASTIC_RUN_ID is set"},
		{Name: "Slurm", Priority: 20, Active: true, Detection: "SLURM_STEP_ID is set"},
		{Name: "OpenMPI", Priority: 10, Detection: "OMPI_COMM_WORLD_SIZE is set"},
	}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatText, 0).FormatLaunchers(dtos))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4, "header plus one line per launcher")
	require.Contains(t, lines[0], "NAME")
	require.Contains(t, lines[0], "PRIORITY")
	require.Contains(t, lines[1], "TorchElastic")
	require.Contains(t, lines[1], "selected")
	require.Contains(t, lines[2], "active")
	require.Contains(t, lines[3], "-")
	require.Contains(t, lines[3], "OMPI_COMM_WORLD_SIZE")
}

func TestFormatLaunchers_JSON(t *testing.T) {
	dtos := []LauncherDTO{{Name: "Slurm", Priority: 20, Active: true, Selected: true}}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatJSON, 0).FormatLaunchers(dtos))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "Slurm", out[0]["name"])
	require.Equal(t, true, out[0]["selected"])
}

func TestFormatEnv_Text(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	vars := []EnvVar{
		{Key: "SLURM_JOB_ID", Value: "123"},
		{Key: "SLURM_PROCID", Value: "5"},
	}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatText, 0).FormatEnv(vars))

	require.Equal(t, "SLURM_JOB_ID=123\nSLURM_PROCID=5\n", buf.String())
}

func TestFormatEnv_YAML(t *testing.T) {
	vars := []EnvVar{{Key: "RANK", Value: "3"}}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatYAML, 0).FormatEnv(vars))

	var out []map[string]string
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, []map[string]string{{"key": "RANK", "value": "3"}}, out)
}

func TestFormatAttributes_Text(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	dtos := []AttributeDTO{
		{Name: "rank"},
		{Name: "init_method", Callable: true},
	}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatText, 0).FormatAttributes(dtos))

	require.Equal(t, "rank\ninit_method()\n", buf.String())
}

func TestNewFormatter_NegativeIndentClamped(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	dto := SummaryDTO{Launcher: "Default"}
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatText, -3).FormatSummary(dto))

	require.Contains(t, buf.String(), "rank=<unavailable>,\n")
}
