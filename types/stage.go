package types

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// ScenarioMode controls which scenarios of a target a stage runs
type ScenarioMode string

const (
	// ScenarioModeDefault runs a single task per target against the default scenario
	ScenarioModeDefault ScenarioMode = "default"
	// ScenarioModeAll runs one task per declared scenario
	ScenarioModeAll ScenarioMode = "all"
)

// StagesConfig is the on-disk representation of the stage list
type StagesConfig struct {
	Stages []StageConfig `yaml:"stages"`
}

// StageConfig represents a stage definition as written in the stages file
type StageConfig struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description,omitempty"`
	Command       string         `yaml:"command"`
	Scenarios     ScenarioMode   `yaml:"scenarios,omitempty"`
	Platforms     []Platform     `yaml:"platforms,omitempty"`      // Only run on these platforms (empty = all)
	SkipPlatforms []Platform     `yaml:"skip_platforms,omitempty"` // Never run on these platforms
	RequiresFiles []string       `yaml:"requires_files,omitempty"` // Paths relative to the target dir, templated
	Timeout       *time.Duration `yaml:"timeout,omitempty"`
	Cleanup       string         `yaml:"cleanup,omitempty"`  // Command run after a task is killed
	Parallel      int            `yaml:"parallel,omitempty"` // Caps the pipeline parallelism for this stage (0 = no cap)
}

// CommandData is the data passed to stage command templates
type CommandData struct {
	Target   Target
	Scenario string
	Stage    string
}

// Stage is a compiled, ordered pipeline stage
type Stage struct {
	Name          string
	Description   string
	Ordinal       int
	Scenarios     ScenarioMode
	Platforms     []Platform
	SkipPlatforms []Platform
	Timeout       time.Duration // Zero means use the pipeline default
	Parallel      int           // Zero means the pipeline parallelism applies

	commandText   string
	command       *template.Template
	cleanup       *template.Template
	requiresFiles []*template.Template
}

// NewStage compiles a stage definition. The ordinal defines execution order.
func NewStage(cfg StageConfig, ordinal int) (Stage, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return Stage{}, errors.New("stage name is required")
	}
	if strings.EqualFold(cfg.Name, "all") {
		return Stage{}, fmt.Errorf("stage name %q is reserved", cfg.Name)
	}
	if strings.TrimSpace(cfg.Command) == "" {
		return Stage{}, fmt.Errorf("stage %s: command is required", cfg.Name)
	}

	mode := cfg.Scenarios
	if mode == "" {
		mode = ScenarioModeDefault
	}
	if mode != ScenarioModeDefault && mode != ScenarioModeAll {
		return Stage{}, fmt.Errorf("stage %s: invalid scenarios mode %q (must be %q or %q)",
			cfg.Name, mode, ScenarioModeDefault, ScenarioModeAll)
	}

	cmd, err := parseTemplate(cfg.Name+"/command", cfg.Command)
	if err != nil {
		return Stage{}, fmt.Errorf("stage %s: %w", cfg.Name, err)
	}

	stage := Stage{
		Name:          cfg.Name,
		Description:   cfg.Description,
		Ordinal:       ordinal,
		Scenarios:     mode,
		Platforms:     cfg.Platforms,
		SkipPlatforms: cfg.SkipPlatforms,
		commandText:   cfg.Command,
		command:       cmd,
	}
	if cfg.Timeout != nil {
		if *cfg.Timeout < 0 {
			return Stage{}, fmt.Errorf("stage %s: timeout cannot be negative", cfg.Name)
		}
		stage.Timeout = *cfg.Timeout
	}
	if cfg.Parallel < 0 {
		return Stage{}, fmt.Errorf("stage %s: parallel cannot be negative", cfg.Name)
	}
	stage.Parallel = cfg.Parallel
	if strings.TrimSpace(cfg.Cleanup) != "" {
		stage.cleanup, err = parseTemplate(cfg.Name+"/cleanup", cfg.Cleanup)
		if err != nil {
			return Stage{}, fmt.Errorf("stage %s: %w", cfg.Name, err)
		}
	}
	for i, f := range cfg.RequiresFiles {
		tmpl, err := parseTemplate(fmt.Sprintf("%s/requires_files[%d]", cfg.Name, i), f)
		if err != nil {
			return Stage{}, fmt.Errorf("stage %s: %w", cfg.Name, err)
		}
		stage.requiresFiles = append(stage.requiresFiles, tmpl)
	}

	return stage, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}
	return tmpl, nil
}

func render(tmpl *template.Template, data CommandData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// CommandTemplate returns the unrendered command template
func (s Stage) CommandTemplate() string {
	return s.commandText
}

// RenderCommand builds the concrete command line for a target and scenario
func (s Stage) RenderCommand(target Target, scenario string) (string, error) {
	if s.command == nil {
		return "", fmt.Errorf("stage %s has no command", s.Name)
	}
	return render(s.command, CommandData{Target: target, Scenario: scenario, Stage: s.Name})
}

// HasCleanup reports whether the stage declares a cleanup command
func (s Stage) HasCleanup() bool {
	return s.cleanup != nil
}

// RenderCleanup builds the cleanup command line for a target and scenario
func (s Stage) RenderCleanup(target Target, scenario string) (string, error) {
	if s.cleanup == nil {
		return "", nil
	}
	return render(s.cleanup, CommandData{Target: target, Scenario: scenario, Stage: s.Name})
}

// ScenariosFor returns the scenarios this stage runs for the target
func (s Stage) ScenariosFor(target Target) []string {
	if s.Scenarios == ScenarioModeAll && len(target.Scenarios) > 0 {
		return slices.Clone(target.Scenarios)
	}
	return []string{DefaultScenario}
}

// Applies evaluates the stage's applicability predicate. When the stage does
// not apply, the returned string says why.
func (s Stage) Applies(target Target, scenario string) (bool, string) {
	if len(s.Platforms) > 0 && !slices.Contains(s.Platforms, target.Platform) {
		return false, fmt.Sprintf("platform %s not in %v", target.Platform, s.Platforms)
	}
	if slices.Contains(s.SkipPlatforms, target.Platform) {
		return false, fmt.Sprintf("platform %s is skipped by stage %s", target.Platform, s.Name)
	}
	for _, tmpl := range s.requiresFiles {
		rel, err := render(tmpl, CommandData{Target: target, Scenario: scenario, Stage: s.Name})
		if err != nil {
			return false, err.Error()
		}
		path := rel
		if !filepath.IsAbs(path) {
			path = filepath.Join(target.Dir, rel)
		}
		if _, err := os.Stat(path); err != nil {
			return false, fmt.Sprintf("required file %s not found", rel)
		}
	}
	return true, ""
}
