package reporting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/ethereum-optimism/infra/role-ci/types"
)

// ErrNoReports is returned by Latest when the directory holds no JSON report
var ErrNoReports = errors.New("no reports found")

// Latest returns the path of the most recent JSON report in dir. Artifact
// names embed a sortable timestamp, so the lexically greatest name wins.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, FormatJSON.Prefix()+"_*."+FormatJSON.Extension()))
	if err != nil {
		return "", fmt.Errorf("listing reports in %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoReports, dir)
	}
	return slices.Max(matches), nil
}

// ReadRun parses a JSON report back into a sealed run
func ReadRun(path string) (*types.PipelineRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	run, err := types.LoadRun(data)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", path, err)
	}
	return run, nil
}

// LatestRun reads the most recent JSON report in dir
func LatestRun(dir string) (*types.PipelineRun, string, error) {
	path, err := Latest(dir)
	if err != nil {
		return nil, "", err
	}
	run, err := ReadRun(path)
	if err != nil {
		return nil, path, err
	}
	return run, path, nil
}
