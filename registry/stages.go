package registry

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/types"
	"gopkg.in/yaml.v3"
)

// AllStages selects every stage in declared order
const AllStages = "all"

// DefaultMoleculeTimeout bounds a full molecule test cycle
const DefaultMoleculeTimeout = 10 * time.Minute

// DefaultStageConfigs returns the built-in stage definitions
func DefaultStageConfigs() []types.StageConfig {
	moleculeTimeout := DefaultMoleculeTimeout
	return []types.StageConfig{
		{
			Name:        "lint",
			Description: "YAML and Ansible lint",
			// Both linters always run; either failing fails the task
			Command: "rc=0; yamllint . || rc=1; ansible-lint . || rc=1; exit $rc",
		},
		{
			Name:          "syntax",
			Description:   "Ansible syntax check of the converge playbook",
			Command:       "ansible-playbook --syntax-check molecule/{{ .Scenario }}/converge.yml",
			RequiresFiles: []string{"molecule/{{ .Scenario }}/converge.yml"},
		},
		{
			Name:          "molecule",
			Description:   "Molecule test cycle",
			Command:       "molecule test -s {{ .Scenario }}",
			Scenarios:     types.ScenarioModeAll,
			SkipPlatforms: []types.Platform{types.PlatformWindowsDelegated},
			Timeout:       &moleculeTimeout,
			Cleanup:       "molecule destroy -s {{ .Scenario }}",
			Parallel:      1,
		},
	}
}

// DefaultStages returns the compiled built-in stages
func DefaultStages() []types.Stage {
	stages, err := compileStages(DefaultStageConfigs())
	if err != nil {
		panic(fmt.Sprintf("built-in stages are invalid: %v", err))
	}
	return stages
}

// LoadStages reads stage definitions from a YAML file. Ordinals follow file order.
func LoadStages(path string) ([]types.Stage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stages file: %w", err)
	}

	var cfg types.StagesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing stages file: %w", err)
	}
	if len(cfg.Stages) == 0 {
		return nil, fmt.Errorf("stages file %s defines no stages", path)
	}

	return compileStages(cfg.Stages)
}

func compileStages(configs []types.StageConfig) ([]types.Stage, error) {
	seen := make(map[string]bool, len(configs))
	stages := make([]types.Stage, 0, len(configs))
	for i, cfg := range configs {
		if seen[cfg.Name] {
			return nil, fmt.Errorf("duplicate stage name %q", cfg.Name)
		}
		seen[cfg.Name] = true

		stage, err := types.NewStage(cfg, i)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// SelectStages returns the named stage, or every stage for "all" or an empty name
func SelectStages(stages []types.Stage, name string) ([]types.Stage, error) {
	if name == "" || name == AllStages {
		return stages, nil
	}
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		if s.Name == name {
			return []types.Stage{s}, nil
		}
		names = append(names, s.Name)
	}
	return nil, fmt.Errorf("unknown stage %q (available: %s, %s)", name, strings.Join(names, ", "), AllStages)
}
