package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// PlanLimit holds the per-plan capacity limits used by signal detection.
// A zero value means "no limit known for this dimension".
type PlanLimit struct {
	Members  int `yaml:"members"`
	Projects int `yaml:"projects"`
}

// Tables is the operator-editable configuration: the plan-limit table
// consulted by signal detection. Values from the YAML overlay override the
// built-in defaults per key.
type Tables struct {
	PlanLimits map[string]PlanLimit `yaml:"plan_limits"`
}

// builtinTables returns the default tables compiled into the binary.
func builtinTables() *Tables {
	return &Tables{
		PlanLimits: map[string]PlanLimit{
			"PRO - Yearly":  {Members: 25, Projects: 250},
			"PRO - Monthly": {Members: 25, Projects: 250},
			"Team Yearly":   {Members: 10, Projects: 1000},
			"Team Monthly":  {Members: 10, Projects: 1000},
		},
	}
}

// LoadTables loads the overlay file (if path is non-empty), expands ${VAR}
// references against the environment, and merges it over the built-in
// defaults. A missing path returns the builtins unchanged.
func LoadTables(path string) (*Tables, error) {
	tables := builtinTables()
	if path == "" {
		return tables, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config overlay %s: %w", path, err)
	}

	var overlay Tables
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &overlay); err != nil {
		return nil, fmt.Errorf("parsing config overlay %s: %w", path, err)
	}

	if err := mergo.Merge(tables, &overlay, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging config overlay: %w", err)
	}
	return tables, nil
}

// PlanLimitFor returns the limits for a plan name, or a zero PlanLimit when
// the plan is unknown.
func (t *Tables) PlanLimitFor(plan string) PlanLimit {
	if t == nil {
		return PlanLimit{}
	}
	return t.PlanLimits[plan]
}
