// Package types contains shared types used across the role-ci pipeline
package types

import (
	"slices"
	"strings"
)

// DefaultScenario is the scenario every target is required to declare
const DefaultScenario = "default"

// Platform tags a target with the infrastructure it needs to be tested
type Platform string

const (
	PlatformLinux            Platform = "linux"
	PlatformLinuxDelegated   Platform = "linux-delegated"
	PlatformWindowsDelegated Platform = "windows-delegated"
)

// String implements the Stringer interface for Platform
func (p Platform) String() string {
	return string(p)
}

// Target identifies one testable unit (a role with molecule scenarios)
type Target struct {
	ID        string   // Path-derived identifier, e.g. "common/base"
	Dir       string   // Absolute path to the role directory
	Scenarios []string // Declared scenarios, "default" first
	Platform  Platform
}

// HasScenario reports whether the target declares the given scenario
func (t Target) HasScenario(name string) bool {
	return slices.Contains(t.Scenarios, name)
}

// Category returns the first path element of the target ID
func (t Target) Category() string {
	if idx := strings.Index(t.ID, "/"); idx != -1 {
		return t.ID[:idx]
	}
	return t.ID
}

// Name returns the last path element of the target ID
func (t Target) Name() string {
	if idx := strings.LastIndex(t.ID, "/"); idx != -1 {
		return t.ID[idx+1:]
	}
	return t.ID
}

// SortScenarios orders scenario names with "default" first and the rest alphabetically
func SortScenarios(scenarios []string) []string {
	sorted := slices.Clone(scenarios)
	slices.SortFunc(sorted, func(a, b string) int {
		switch {
		case a == b:
			return 0
		case a == DefaultScenario:
			return -1
		case b == DefaultScenario:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
	return slices.Compact(sorted)
}
