package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/indent"
	"gopkg.in/yaml.v3"
)

// Format selects the output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. Empty means text.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json, or yaml)", name)
	}
}

var (
	styleLauncher = lipgloss.NewStyle().Bold(true)
	styleKey      = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	styleMissing  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleActive   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

// Formatter renders DTOs to a writer in the selected format.
type Formatter struct {
	writer io.Writer
	format Format
	indent int
}

// NewFormatter creates a formatter. Indent applies to the text summary
// body; JSON always indents two spaces.
func NewFormatter(writer io.Writer, format Format, indentWidth int) *Formatter {
	if indentWidth < 0 {
		indentWidth = 0
	}
	return &Formatter{writer: writer, format: format, indent: indentWidth}
}

// FormatSummary renders a resolved job identity.
func (f *Formatter) FormatSummary(dto SummaryDTO) error {
	switch f.format {
	case FormatJSON:
		return f.encodeJSON(dto)
	case FormatYAML:
		return f.encodeYAML(dto)
	}

	var body strings.Builder
	for _, row := range summaryRows(dto) {
		body.WriteString(styleKey.Render(row.key))
		body.WriteString("=")
		if row.missing {
			body.WriteString(styleMissing.Render(row.value))
		} else {
			body.WriteString(row.value)
		}
		body.WriteString(",\n")
	}

	out := styleLauncher.Render(dto.Launcher) + "(\n" +
		indent.String(body.String(), uint(f.indent)) + ")\n"
	_, err := io.WriteString(f.writer, out)
	return err
}

type summaryRow struct {
	key     string
	value   string
	missing bool
}

func summaryRows(dto SummaryDTO) []summaryRow {
	rows := []summaryRow{
		intRow("rank", dto.Rank),
		intRow("local_rank", dto.LocalRank),
		intRow("world_size", dto.WorldSize),
		intRow("local_world_size", dto.LocalWorldSize),
		intRow("num_nodes", dto.NumNodes),
		intRow("cpus_per_task", dto.CPUsPerTask),
		listRow("gpu_ids", dto.GPUIDs),
		listRow("nodelist", dto.Nodelist),
		stringRow("hostname", dto.Hostname),
		stringRow("master_address", dto.MasterAddress),
		intRow("master_port", dto.MasterPort),
		stringRow("init_method", dto.InitMethod),
	}
	return rows
}

func intRow(key string, value *int) summaryRow {
	if value == nil {
		return summaryRow{key: key, value: "<unavailable>", missing: true}
	}
	return summaryRow{key: key, value: fmt.Sprintf("%d", *value)}
}

func stringRow(key string, value *string) summaryRow {
	if value == nil {
		return summaryRow{key: key, value: "<unavailable>", missing: true}
	}
	return summaryRow{key: key, value: *value}
}

func listRow(key string, values []string) summaryRow {
	if values == nil {
		return summaryRow{key: key, value: "<unavailable>", missing: true}
	}
	return summaryRow{key: key, value: "[" + strings.Join(values, " ") + "]"}
}

// FormatLaunchers renders the registry listing.
func (f *Formatter) FormatLaunchers(dtos []LauncherDTO) error {
	switch f.format {
	case FormatJSON:
		return f.encodeJSON(dtos)
	case FormatYAML:
		return f.encodeYAML(dtos)
	}

	nameWidth := runewidth.StringWidth("NAME")
	for _, dto := range dtos {
		if w := runewidth.StringWidth(dto.Name); w > nameWidth {
			nameWidth = w
		}
	}

	var out strings.Builder
	out.WriteString(styleKey.Render(runewidth.FillRight("NAME", nameWidth+2) + "PRIORITY  ACTIVE    DETECTION"))
	out.WriteString("\n")
	for _, dto := range dtos {
		line := runewidth.FillRight(dto.Name, nameWidth+2)
		line += runewidth.FillRight(fmt.Sprintf("%d", dto.Priority), len("PRIORITY")+2)

		state := "-"
		if dto.Selected {
			state = "selected"
		} else if dto.Active {
			state = "active"
		}
		line += runewidth.FillRight(state, len("ACTIVE")+4)
		line += dto.Detection

		if dto.Selected {
			line = styleActive.Render(line)
		}
		out.WriteString(line)
		out.WriteString("\n")
	}
	_, err := io.WriteString(f.writer, out.String())
	return err
}

// FormatEnv renders environment variables as KEY=value lines.
func (f *Formatter) FormatEnv(vars []EnvVar) error {
	switch f.format {
	case FormatJSON:
		return f.encodeJSON(vars)
	case FormatYAML:
		return f.encodeYAML(vars)
	}

	var out strings.Builder
	for _, v := range vars {
		out.WriteString(styleKey.Render(v.Key))
		out.WriteString("=")
		out.WriteString(v.Value)
		out.WriteString("\n")
	}
	_, err := io.WriteString(f.writer, out.String())
	return err
}

// FormatAttributes renders the declared query table.
func (f *Formatter) FormatAttributes(dtos []AttributeDTO) error {
	switch f.format {
	case FormatJSON:
		return f.encodeJSON(dtos)
	case FormatYAML:
		return f.encodeYAML(dtos)
	}

	var out strings.Builder
	for _, dto := range dtos {
		name := dto.Name
		if dto.Callable {
			name += "()"
		}
		out.WriteString(name)
		out.WriteString("\n")
	}
	_, err := io.WriteString(f.writer, out.String())
	return err
}

func (f *Formatter) encodeJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (f *Formatter) encodeYAML(v any) error {
	encoder := yaml.NewEncoder(f.writer)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(v)
}
