package spec

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TaskSpec is the externally produced task document. Only the goal matters
// here; everything else in the file belongs to the host.
type TaskSpec struct {
	Goal Goal `yaml:"goal"`
}

// Goal accepts both shapes the host emits: a plain string, or a mapping with
// a description field. Both normalize to one string.
type Goal string

func (g *Goal) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*g = Goal(value.Value)
		return nil
	case yaml.MappingNode:
		var obj struct {
			Description string `yaml:"description"`
		}
		if err := value.Decode(&obj); err != nil {
			return fmt.Errorf("goal object: %w", err)
		}
		*g = Goal(obj.Description)
		return nil
	default:
		return fmt.Errorf("goal must be a string or an object with a description")
	}
}

// CompiledPrompt is the pre-rendered instruction pair. The system half is
// session configuration; the user half is the sole user message. They are
// never concatenated.
type CompiledPrompt struct {
	System string
	User   string
}

// Parse loads and normalizes a task spec document.
func Parse(path string) (*TaskSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}

	var spec TaskSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse spec YAML: %w", err)
	}

	return &spec, nil
}

// LoadPrompt reads the two compiled instruction files. Both are required;
// the orchestrator treats a missing file as fatal before any session work.
func LoadPrompt(systemPath, userPath string) (*CompiledPrompt, error) {
	system, err := os.ReadFile(systemPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read system prompt: %w", err)
	}
	user, err := os.ReadFile(userPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read user prompt: %w", err)
	}

	p := &CompiledPrompt{
		System: strings.TrimSpace(string(system)),
		User:   strings.TrimSpace(string(user)),
	}
	if p.User == "" {
		return nil, fmt.Errorf("user prompt %s is empty", userPath)
	}
	return p, nil
}
