package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum-optimism/infra/role-ci/types"
)

// SummaryPrinter writes the end-of-run summary shown on the console
type SummaryPrinter struct {
	w     io.Writer
	table *TableFormatter
}

// NewSummaryPrinter creates a printer writing to w
func NewSummaryPrinter(w io.Writer, colored bool) *SummaryPrinter {
	return &SummaryPrinter{
		w:     w,
		table: NewTableFormatter(false, colored),
	}
}

// Print writes the per-stage table followed by the failing targets and the written artifacts
func (p *SummaryPrinter) Print(run *types.PipelineRun, artifacts []string) error {
	content, err := p.table.Format(run)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(content)
	if failed := run.FailedTargets(); len(failed) > 0 {
		sb.WriteString("\nFailed targets:\n")
		for _, f := range failed {
			fmt.Fprintf(&sb, "  - %s\n", f)
		}
	}
	if run.Stats.TimedOut > 0 {
		fmt.Fprintf(&sb, "\n%d task(s) timed out\n", run.Stats.TimedOut)
	}
	if len(artifacts) > 0 {
		sb.WriteString("\nReports:\n")
		for _, a := range artifacts {
			fmt.Fprintf(&sb, "  %s\n", a)
		}
	}

	_, err = io.WriteString(p.w, sb.String())
	return err
}
