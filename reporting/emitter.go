package reporting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/ethereum/go-ethereum/log"
)

// TimestampLayout is the layout of the timestamp embedded in artifact names
const TimestampLayout = "20060102_150405.000000"

// Emitter persists sealed runs as report artifacts in a directory
type Emitter struct {
	dir        string
	log        log.Logger
	formatters map[Format]ReportFormatter
}

// NewEmitter creates an emitter writing into dir
func NewEmitter(dir string, logger log.Logger) (*Emitter, error) {
	if dir == "" {
		return nil, errors.New("reports directory is required")
	}
	if logger == nil {
		logger = log.Root()
	}
	html, err := NewHTMLFormatter()
	if err != nil {
		return nil, err
	}
	return &Emitter{
		dir: dir,
		log: logger.New("component", "emitter"),
		formatters: map[Format]ReportFormatter{
			FormatJSON:  JSONFormatter{},
			FormatTable: NewTableFormatter(true, false),
			FormatHTML:  html,
			FormatJUnit: JUnitFormatter{},
		},
	}, nil
}

// Dir returns the reports directory
func (e *Emitter) Dir() string {
	return e.dir
}

// ArtifactPath returns the path a run's artifact is written to for a format
func (e *Emitter) ArtifactPath(run *types.PipelineRun, format Format) string {
	name := fmt.Sprintf("%s_%s.%s", format.Prefix(), run.StartedAt.UTC().Format(TimestampLayout), format.Extension())
	return filepath.Join(e.dir, name)
}

// Emit renders the run in one format and writes it. Existing artifacts are
// never overwritten.
func (e *Emitter) Emit(run *types.PipelineRun, format Format) (string, error) {
	formatter, ok := e.formatters[format]
	if !ok {
		return "", fmt.Errorf("unknown report format %q", format)
	}
	if run == nil || !run.Sealed() {
		return "", errors.New("only sealed runs can be reported")
	}

	path := e.ArtifactPath(run, format)
	content, err := formatter.Format(run)
	if err != nil {
		return "", &types.ReportWriteError{Path: path, Err: err}
	}
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", &types.ReportWriteError{Path: path, Err: err}
	}
	if err := writeExclusive(path, []byte(content)); err != nil {
		return "", &types.ReportWriteError{Path: path, Err: err}
	}

	e.log.Debug("Wrote report", "format", format, "path", path)
	return path, nil
}

// EmitAll writes every requested format. All formats are attempted; the
// returned error joins every failure.
func (e *Emitter) EmitAll(run *types.PipelineRun, formats []Format) ([]string, error) {
	var paths []string
	var errs []error
	for _, format := range formats {
		path, err := e.Emit(run, format)
		if err != nil {
			e.log.Error("Failed to write report", "format", format, "err", err)
			errs = append(errs, err)
			continue
		}
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
