package actions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadPlanFile reads a plan from a .yaml/.yml, .toml or .json file.
func LoadPlanFile(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("reading plan file: %w", err)
	}
	plan, err := ParsePlan(data, filepath.Ext(path))
	if err != nil {
		return Plan{}, fmt.Errorf("parsing plan file %s: %w", path, err)
	}
	return plan, nil
}

// ParsePlan decodes a plan in the format named by ext.
func ParsePlan(data []byte, ext string) (Plan, error) {
	var plan Plan
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &plan); err != nil {
			return Plan{}, err
		}
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&plan); err != nil {
			return Plan{}, err
		}
	case ".json":
		if err := json.Unmarshal(data, &plan); err != nil {
			return Plan{}, err
		}
	default:
		return Plan{}, fmt.Errorf("unsupported plan format %q", ext)
	}

	for i, step := range plan.Actions {
		if step.Tool == "" {
			return Plan{}, fmt.Errorf("step %d has no tool", i)
		}
		if step.Args == nil {
			plan.Actions[i].Args = Args{}
		}
	}
	plan.Source = SourceFile
	return plan, nil
}
