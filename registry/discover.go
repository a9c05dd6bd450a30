package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ethereum-optimism/infra/role-ci/types"
	"gopkg.in/yaml.v3"
)

const (
	// MinDepth and MaxDepth bound how many directory levels below the root a
	// unit may live
	MinDepth = 2
	MaxDepth = 3

	moleculeDir    = "molecule"
	moleculeConfig = "molecule.yml"
)

var errStopWalk = errors.New("stop walk")

// ErrInvalidRoot marks discovery errors caused by an unusable targets root
var ErrInvalidRoot = errors.New("invalid targets root")

func rootError(path string, err error) error {
	return &types.DiscoveryError{Path: path, Err: fmt.Errorf("%w: %w", ErrInvalidRoot, err)}
}

// moleculeFile is the subset of molecule.yml needed to classify a unit
type moleculeFile struct {
	Driver struct {
		Name string `yaml:"name"`
	} `yaml:"driver"`
	Platforms []struct {
		Name string `yaml:"name"`
	} `yaml:"platforms"`
}

// Discover walks root and yields every unit that carries a molecule/default
// scenario. The filesystem is walked again on every iteration. Malformed units
// are yielded as *types.DiscoveryError and discovery continues; a missing root
// yields a single error.
func Discover(root string) iter.Seq2[types.Target, error] {
	return func(yield func(types.Target, error) bool) {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			yield(types.Target{}, rootError(root, err))
			return
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			yield(types.Target{}, rootError(absRoot, err))
			return
		}
		if !info.IsDir() {
			yield(types.Target{}, rootError(absRoot, errors.New("not a directory")))
			return
		}

		_ = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				if path == absRoot {
					yield(types.Target{}, rootError(path, walkErr))
					return errStopWalk
				}
				if !yield(types.Target{}, &types.DiscoveryError{Path: path, Err: walkErr}) {
					return errStopWalk
				}
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.IsDir() || path == absRoot {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || d.Name() == moleculeDir {
				return fs.SkipDir
			}

			rel, err := filepath.Rel(absRoot, path)
			if err != nil {
				return fs.SkipDir
			}
			depth := len(strings.Split(rel, string(filepath.Separator)))
			if depth > MaxDepth {
				return fs.SkipDir
			}
			// Units live at category/name or category/group/name; a category
			// that happens to carry a molecule dir is walked like any other
			if depth < MinDepth || !isDir(filepath.Join(path, moleculeDir, types.DefaultScenario)) {
				return nil
			}

			target, err := loadTarget(filepath.ToSlash(rel), path)
			if !yield(target, err) {
				return errStopWalk
			}
			// Units do not nest
			return fs.SkipDir
		})
	}
}

func loadTarget(id, dir string) (types.Target, error) {
	platform, err := readPlatform(filepath.Join(dir, moleculeDir, types.DefaultScenario, moleculeConfig))
	if err != nil {
		return types.Target{}, &types.DiscoveryError{Path: dir, Err: err}
	}
	scenarios, err := readScenarios(filepath.Join(dir, moleculeDir))
	if err != nil {
		return types.Target{}, &types.DiscoveryError{Path: dir, Err: err}
	}
	return types.Target{
		ID:        id,
		Dir:       dir,
		Scenarios: scenarios,
		Platform:  platform,
	}, nil
}

func readPlatform(path string) (types.Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading default scenario: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return "", fmt.Errorf("%s is empty", path)
	}

	var cfg moleculeFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}

	if cfg.Driver.Name != "delegated" {
		return types.PlatformLinux, nil
	}
	for _, p := range cfg.Platforms {
		if strings.Contains(strings.ToLower(p.Name), "windows") {
			return types.PlatformWindowsDelegated, nil
		}
	}
	return types.PlatformLinuxDelegated, nil
}

func readScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing scenarios: %w", err)
	}
	var scenarios []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), moleculeConfig)); err == nil {
			scenarios = append(scenarios, e.Name())
		}
	}
	return types.SortScenarios(scenarios), nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Collect drains a discovery sequence. Targets are sorted by ID; errors are
// returned in the order they were found.
func Collect(seq iter.Seq2[types.Target, error]) ([]types.Target, []error) {
	var targets []types.Target
	var errs []error
	for target, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		targets = append(targets, target)
	}
	slices.SortFunc(targets, func(a, b types.Target) int {
		return strings.Compare(a.ID, b.ID)
	})
	return targets, errs
}

// Filter narrows targets to an exact ID or to every target below an ID
// prefix. An empty ID matches everything.
func Filter(targets []types.Target, id string) []types.Target {
	id = strings.Trim(filepath.ToSlash(id), "/")
	if id == "" {
		return targets
	}
	var out []types.Target
	for _, t := range targets {
		if t.ID == id || strings.HasPrefix(t.ID, id+"/") {
			out = append(out, t)
		}
	}
	return out
}
