package registry

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dockerMolecule = `
driver:
  name: docker
platforms:
  - name: instance
    image: debian:12
`

const windowsMolecule = `
driver:
  name: delegated
platforms:
  - name: win2022
  - name: windows-server
`

const delegatedMolecule = `
driver:
  name: delegated
platforms:
  - name: rhel9
`

// writeRole creates a role with the given scenarios. Each scenario gets the same molecule.yml.
func writeRole(t *testing.T, root, id, molecule string, scenarios ...string) string {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(id))
	for _, s := range scenarios {
		scenarioDir := filepath.Join(dir, "molecule", s)
		require.NoError(t, os.MkdirAll(scenarioDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(scenarioDir, "molecule.yml"), []byte(molecule), 0o644))
	}
	return dir
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeRole(t, root, "common/base", dockerMolecule, "default", "ha")
	writeRole(t, root, "windows/iis", windowsMolecule, "default")
	writeRole(t, root, "infra/db/postgres", delegatedMolecule, "default")
	writeRole(t, root, "too/deep/for/discovery", dockerMolecule, "default")
	writeRole(t, root, ".hidden/role", dockerMolecule, "default")
	// A category is never a unit, even with a molecule dir, and its roles are still found
	writeRole(t, root, "web", dockerMolecule, "default")
	writeRole(t, root, "web/nginx", dockerMolecule, "default")

	// Not a unit: no default scenario
	require.NoError(t, os.MkdirAll(filepath.Join(root, "misc", "notes", "molecule", "other"), 0o755))

	// Malformed: default scenario without molecule.yml
	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken", "role", "molecule", "default"), 0o755))

	targets, errs := Collect(Discover(root))
	require.Len(t, errs, 1)
	var discoveryErr *types.DiscoveryError
	require.True(t, errors.As(errs[0], &discoveryErr))
	assert.Equal(t, filepath.Join(root, "broken", "role"), discoveryErr.Path)
	assert.False(t, errors.Is(errs[0], ErrInvalidRoot))

	ids := make([]string, 0, len(targets))
	for _, target := range targets {
		ids = append(ids, target.ID)
	}
	assert.Equal(t, []string{"common/base", "infra/db/postgres", "web/nginx", "windows/iis"}, ids)

	assert.Equal(t, []string{"default", "ha"}, targets[0].Scenarios)
	assert.Equal(t, types.PlatformLinux, targets[0].Platform)
	assert.Equal(t, filepath.Join(root, "common", "base"), targets[0].Dir)
	assert.Equal(t, types.PlatformLinuxDelegated, targets[1].Platform)
	assert.Equal(t, types.PlatformWindowsDelegated, targets[3].Platform)
}

func TestDiscoverIsRestartable(t *testing.T) {
	root := t.TempDir()
	writeRole(t, root, "common/base", dockerMolecule, "default")
	seq := Discover(root)

	first, errs := Collect(seq)
	require.Empty(t, errs)
	require.Len(t, first, 1)

	// A new role appears between iterations and must be seen without caching
	writeRole(t, root, "common/extra", dockerMolecule, "default")
	second, errs := Collect(seq)
	require.Empty(t, errs)
	assert.Len(t, second, 2)
}

func TestDiscoverStopsEarly(t *testing.T) {
	root := t.TempDir()
	writeRole(t, root, "a/one", dockerMolecule, "default")
	writeRole(t, root, "a/two", dockerMolecule, "default")

	count := 0
	for _, err := range Discover(root) {
		require.NoError(t, err)
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestDiscoverInvalidRoot(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		targets, errs := Collect(Discover(filepath.Join(t.TempDir(), "nope")))
		assert.Empty(t, targets)
		require.Len(t, errs, 1)
		assert.True(t, errors.Is(errs[0], ErrInvalidRoot))
		var discoveryErr *types.DiscoveryError
		assert.True(t, errors.As(errs[0], &discoveryErr))
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		_, errs := Collect(Discover(path))
		require.Len(t, errs, 1)
		assert.True(t, errors.Is(errs[0], ErrInvalidRoot))
	})
}

func TestFilter(t *testing.T) {
	targets := []types.Target{
		{ID: "common/base"},
		{ID: "common/baseline"},
		{ID: "infra/db/postgres"},
		{ID: "infra/db/mysql"},
	}

	tests := []struct {
		name     string
		id       string
		expected []string
	}{
		{"empty matches all", "", []string{"common/base", "common/baseline", "infra/db/postgres", "infra/db/mysql"}},
		{"exact", "common/base", []string{"common/base"}},
		{"prefix at boundary", "infra/db", []string{"infra/db/postgres", "infra/db/mysql"}},
		{"trailing slash", "infra/", []string{"infra/db/postgres", "infra/db/mysql"}},
		{"no partial names", "common/bas", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, target := range Filter(targets, tt.id) {
				ids = append(ids, target.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestDefaultStages(t *testing.T) {
	stages := DefaultStages()
	require.Len(t, stages, 3)
	for i, name := range []string{"lint", "syntax", "molecule"} {
		assert.Equal(t, name, stages[i].Name)
		assert.Equal(t, i, stages[i].Ordinal)
	}
	molecule := stages[2]
	assert.Equal(t, types.ScenarioModeAll, molecule.Scenarios)
	assert.Equal(t, DefaultMoleculeTimeout, molecule.Timeout)
	assert.True(t, molecule.HasCleanup())
	assert.Equal(t, 1, molecule.Parallel, "molecule runs one target at a time")
	assert.Zero(t, stages[0].Parallel)

	cmd, err := molecule.RenderCommand(types.Target{ID: "common/base"}, "ha")
	require.NoError(t, err)
	assert.Equal(t, "molecule test -s ha", cmd)

	ok, _ := molecule.Applies(types.Target{Platform: types.PlatformWindowsDelegated}, "default")
	assert.False(t, ok)
}

func TestDefaultLintRunsBothLinters(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}
	lint := DefaultStages()[0]
	cmd, err := lint.RenderCommand(types.Target{ID: "common/base"}, "default")
	require.NoError(t, err)

	tests := []struct {
		name     string
		yamllint int
		ansible  int
		exitCode int
	}{
		{"both pass", 0, 0, 0},
		{"yamllint fails", 1, 0, 1},
		{"ansible-lint fails", 0, 2, 1},
		{"both fail", 1, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := t.TempDir()
			writeTool := func(name string, code int) {
				script := fmt.Sprintf("#!/bin/sh\necho %s ran\nexit %d\n", name, code)
				require.NoError(t, os.WriteFile(filepath.Join(bin, name), []byte(script), 0o755))
			}
			writeTool("yamllint", tt.yamllint)
			writeTool("ansible-lint", tt.ansible)

			sh := exec.Command("/bin/sh", "-c", cmd)
			sh.Dir = t.TempDir()
			sh.Env = []string{"PATH=" + bin + string(os.PathListSeparator) + os.Getenv("PATH")}
			out, err := sh.CombinedOutput()
			assert.Equal(t, tt.exitCode, sh.ProcessState.ExitCode(), "err: %v", err)
			assert.Contains(t, string(out), "yamllint ran")
			assert.Contains(t, string(out), "ansible-lint ran", "ansible-lint runs even when yamllint fails")
		})
	}
}

func TestLoadStages(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "stages.yaml")
		content := `
stages:
  - name: check
    command: "echo {{ .Target.ID }}"
  - name: verify
    command: "test -f molecule/{{ .Scenario }}/verify.yml"
    scenarios: all
    timeout: 30s
    skip_platforms: [windows-delegated]
    parallel: 2
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		stages, err := LoadStages(path)
		require.NoError(t, err)
		require.Len(t, stages, 2)
		assert.Equal(t, "check", stages[0].Name)
		assert.Equal(t, 1, stages[1].Ordinal)
		assert.Equal(t, 30*time.Second, stages[1].Timeout)
		assert.Equal(t, []types.Platform{types.PlatformWindowsDelegated}, stages[1].SkipPlatforms)
		assert.Equal(t, 2, stages[1].Parallel)
		assert.Zero(t, stages[0].Parallel)
	})

	tests := []struct {
		name    string
		content string
	}{
		{"duplicate names", "stages:\n  - {name: a, command: 'true'}\n  - {name: a, command: 'false'}\n"},
		{"empty", "stages: []\n"},
		{"bad yaml", "stages: [\n"},
		{"bad template", "stages:\n  - {name: a, command: '{{ .Target.ID'}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := LoadStages(path)
			require.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadStages(filepath.Join(dir, "missing.yaml"))
		require.Error(t, err)
	})
}

func TestSelectStages(t *testing.T) {
	stages := DefaultStages()

	all, err := SelectStages(stages, AllStages)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	all, err = SelectStages(stages, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	one, err := SelectStages(stages, "syntax")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "syntax", one[0].Name)

	_, err = SelectStages(stages, "deploy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lint, syntax, molecule")
}

func TestRegistry(t *testing.T) {
	root := t.TempDir()
	writeRole(t, root, "common/base", dockerMolecule, "default")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken", "role", "molecule", "default"), 0o755))

	t.Run("config validation", func(t *testing.T) {
		_, err := NewRegistry(Config{Log: log.New()})
		require.Error(t, err)

		_, err = NewRegistry(Config{Log: log.New(), TargetsDir: root, StagesFile: filepath.Join(root, "missing.yaml")})
		require.Error(t, err)
	})

	t.Run("targets skip malformed units", func(t *testing.T) {
		r, err := NewRegistry(Config{Log: log.New(), TargetsDir: root})
		require.NoError(t, err)
		assert.Len(t, r.Stages(), 3)
		assert.Equal(t, root, r.GetConfig().TargetsDir)
		assert.Empty(t, r.GetConfig().StagesFile)

		targets, err := r.Targets()
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, "common/base", targets[0].ID)

		stages, err := r.SelectStages("lint")
		require.NoError(t, err)
		assert.Len(t, stages, 1)
	})

	t.Run("missing root", func(t *testing.T) {
		r, err := NewRegistry(Config{Log: log.New(), TargetsDir: filepath.Join(root, "nope")})
		require.NoError(t, err)
		_, err = r.Targets()
		require.ErrorIs(t, err, ErrInvalidRoot)
	})
}
