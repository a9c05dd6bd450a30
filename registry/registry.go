// Package registry discovers role targets and loads the stage definitions
// the pipeline runs them through.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/ethereum/go-ethereum/log"
)

// Registry ties the targets directory to the configured stages
type Registry struct {
	config Config
	stages []types.Stage
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log        log.Logger
	TargetsDir string
	StagesFile string // Optional; built-in stages are used when empty
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.TargetsDir == "" {
		return nil, fmt.Errorf("targets directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config: cfg,
	}
	if err := r.loadStages(cfg.StagesFile); err != nil {
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "targetsDir", cfg.TargetsDir, "len(stages)", len(r.stages))

	return r, nil
}

func (r *Registry) loadStages(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if path == "" {
		r.stages = DefaultStages()
		return nil
	}

	r.config.Log.Debug("Reading stages file", "path", path)
	stages, err := LoadStages(path)
	if err != nil {
		return err
	}
	r.stages = stages
	return nil
}

// Stages returns every configured stage in declared order
func (r *Registry) Stages() []types.Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stages
}

// SelectStages returns the stages selected by a --stage value
func (r *Registry) SelectStages(name string) ([]types.Stage, error) {
	return SelectStages(r.Stages(), name)
}

// Targets discovers every target below the targets directory. Malformed units
// are logged and excluded; only an unusable root is returned as an error.
func (r *Registry) Targets() ([]types.Target, error) {
	targets, errs := Collect(Discover(r.config.TargetsDir))
	for _, err := range errs {
		if errors.Is(err, ErrInvalidRoot) {
			return nil, err
		}
		r.config.Log.Warn("Skipping malformed target", "err", err)
	}
	r.config.Log.Debug("Discovered targets", "count", len(targets), "malformed", len(errs))
	return targets, nil
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}
