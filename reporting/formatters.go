package reporting

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	roletemplates "github.com/ethereum-optimism/infra/role-ci/templates"
	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

const htmlTemplateName = "report.html.tmpl"

// ReportFormatter renders a sealed run into one report format
type ReportFormatter interface {
	Format(run *types.PipelineRun) (string, error)
}

// JSONFormatter renders the run as indented JSON
type JSONFormatter struct{}

// Format encodes the run with two-space indentation
func (JSONFormatter) Format(run *types.PipelineRun) (string, error) {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run as JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// TableFormatter formats runs as text tables
type TableFormatter struct {
	showTasks bool
	colored   bool
}

// NewTableFormatter creates a new table formatter. Colored output is meant for
// terminals; persisted reports stay plain.
func NewTableFormatter(showTasks, colored bool) *TableFormatter {
	return &TableFormatter{
		showTasks: showTasks,
		colored:   colored,
	}
}

// Format renders one row per stage, optionally followed by its tasks
func (tf *TableFormatter) Format(run *types.PipelineRun) (string, error) {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	title := fmt.Sprintf("Pipeline run %s", run.RunID)
	if run.DryRun {
		title += " (dry-run)"
	}
	t.SetTitle(title)

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Tasks", "Passed", "Failed", "Skipped", "Status",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 120, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tasks", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
	})

	for i := range run.Stages {
		stage := &run.Stages[i]
		t.AppendRow(table.Row{
			"Stage",
			stage.Name,
			roletemplates.FormatDuration(stage.Duration()),
			stage.Stats.Total,
			stage.Stats.Passed,
			stage.Stats.Failed,
			stage.Stats.Skipped,
			strings.ToUpper(string(stage.Status)),
		})

		if tf.showTasks {
			for j, task := range stage.Tasks {
				prefix := "├──"
				if j == len(stage.Tasks)-1 {
					prefix = "└──"
				}
				t.AppendRow(table.Row{
					"Task",
					fmt.Sprintf("%s %s [%s]", prefix, task.Target, task.Scenario),
					roletemplates.FormatDuration(task.Duration()),
					1,
					boolToInt(task.Status == types.TaskStatusPassed),
					boolToInt(task.Status.IsFailure()),
					boolToInt(task.Status == types.TaskStatusSkipped),
					taskStatusText(task.Status),
				})
			}
		}
		t.AppendSeparator()
	}

	if tf.colored {
		switch run.Status {
		case types.RunStatusFailed:
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		case types.RunStatusUnknown:
			t.SetStyle(table.StyleColoredBlackOnYellowWhite)
		default:
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		}
	} else {
		t.SetStyle(table.StyleLight)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		roletemplates.FormatDuration(run.Duration()),
		run.Stats.Total,
		run.Stats.Passed,
		run.Stats.Failed,
		run.Stats.Skipped,
		strings.ToUpper(string(run.Status)),
	})

	t.Render()
	return buf.String(), nil
}

func taskStatusText(status types.TaskStatus) string {
	if status == types.TaskStatusTimedOut {
		return "TIMEOUT"
	}
	return strings.ToUpper(string(status))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// HTMLFormatter formats runs as a standalone HTML page
type HTMLFormatter struct {
	template *template.Template
}

// NewHTMLFormatter parses the embedded report template
func NewHTMLFormatter() (*HTMLFormatter, error) {
	tmpl, err := template.New(htmlTemplateName).
		Funcs(roletemplates.GetTemplateFunc()).
		ParseFS(templateFS, "templates/"+htmlTemplateName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template: %w", err)
	}
	return &HTMLFormatter{template: tmpl}, nil
}

// Format executes the template against the run
func (hf *HTMLFormatter) Format(run *types.PipelineRun) (string, error) {
	var buf bytes.Buffer
	if err := hf.template.Execute(&buf, run); err != nil {
		return "", fmt.Errorf("failed to execute HTML template: %w", err)
	}
	return buf.String(), nil
}
