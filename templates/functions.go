package templates

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/types"
)

// GetTemplateFunc returns the template functions shared by the HTML report and the CLI output
func GetTemplateFunc() template.FuncMap {
	return template.FuncMap{
		"formatDuration": FormatDuration,
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Format(time.RFC3339)
		},
		"getTaskStatusClass": func(status types.TaskStatus) string {
			return TaskStatusClass(status)
		},
		"getRunStatusClass": func(status types.RunStatus) string {
			return RunStatusClass(status)
		},
		"upper":    strings.ToUpper,
		"passRate": PassRate,
	}
}

// FormatDuration formats a duration for display
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// TaskStatusClass returns a consistent lowercase CSS class for a task status
func TaskStatusClass(status types.TaskStatus) string {
	switch status {
	case types.TaskStatusPassed:
		return "pass"
	case types.TaskStatusFailed:
		return "fail"
	case types.TaskStatusTimedOut:
		return "timeout"
	case types.TaskStatusSkipped:
		return "skip"
	default:
		return "unknown"
	}
}

// RunStatusClass returns a consistent lowercase CSS class for a run status
func RunStatusClass(status types.RunStatus) string {
	switch status {
	case types.RunStatusPassed:
		return "pass"
	case types.RunStatusFailed:
		return "fail"
	default:
		return "unknown"
	}
}

// PassRate returns the share of executed tasks that passed, formatted as a percentage
func PassRate(stats types.RunStats) string {
	if stats.Executed() == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(stats.Passed)*100/float64(stats.Executed()))
}
