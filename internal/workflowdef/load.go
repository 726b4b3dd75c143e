package workflowdef

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses a declarative workflow definition file (§6 "Workflow
// definition format") and validates its structure. Registry checks are
// left to the caller, which knows the engine's closed mutation/predicate
// sets; pass nil/nil here to validate shape only.
func Load(path string, mutationExists MutationExists, predicateExists PredicateExists) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflowdef: read %s: %w", path, err)
	}
	return Parse(raw, mutationExists, predicateExists)
}

// Parse decodes YAML bytes into a Definition and validates it.
func Parse(raw []byte, mutationExists MutationExists, predicateExists PredicateExists) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("workflowdef: decode: %w", err)
	}
	if err := Validate(&def, mutationExists, predicateExists); err != nil {
		return nil, err
	}
	return &def, nil
}
