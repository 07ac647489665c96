// Package pattern holds declarative workflow definitions: ordered capability
// steps with templated args and the output aliases a run surfaces. Patterns
// are loaded once at startup, validated, and shared read-only across
// concurrent runs.
package pattern

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quantfolio/quantfolio/internal/template"
)

// reserved scope names a step alias may not shadow.
var reservedScopes = map[string]bool{
	"inputs": true,
	"ctx":    true,
	"state":  true,
}

// Step names a capability, the templated args to call it with, and the alias
// its result is stored under.
type Step struct {
	Capability string         `yaml:"capability" json:"capability"`
	Args       map[string]any `yaml:"args" json:"args"`
	As         string         `yaml:"as" json:"as"`
}

// Pattern is an immutable workflow definition.
type Pattern struct {
	ID          string   `yaml:"id" json:"id"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []Step   `yaml:"steps" json:"steps"`
	Outputs     []string `yaml:"outputs" json:"outputs"`
}

// Validate checks the structural invariants enforced at load time:
// non-empty ids and aliases, unique aliases, no forward references in args,
// and outputs that name declared step aliases.
func (p *Pattern) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("pattern: id must not be empty")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("pattern %q: must declare at least one step", p.ID)
	}

	declared := make(map[string]int, len(p.Steps))
	for i, step := range p.Steps {
		if step.Capability == "" {
			return fmt.Errorf("pattern %q: step %d has no capability", p.ID, i)
		}
		if step.As == "" {
			return fmt.Errorf("pattern %q: step %d (%s) has no output alias", p.ID, i, step.Capability)
		}
		if reservedScopes[step.As] {
			return fmt.Errorf("pattern %q: step %d alias %q shadows a reserved scope", p.ID, i, step.As)
		}
		if prev, dup := declared[step.As]; dup {
			return fmt.Errorf("pattern %q: alias %q declared by both step %d and step %d", p.ID, step.As, prev, i)
		}

		for _, ref := range template.Refs(step.Args) {
			alias, ok := referencedAlias(ref)
			if !ok {
				continue
			}
			if _, earlier := declared[alias]; !earlier {
				return fmt.Errorf("pattern %q: step %d (%s) references %q before it is produced", p.ID, i, step.Capability, alias)
			}
		}

		declared[step.As] = i
	}

	if len(p.Outputs) == 0 {
		return fmt.Errorf("pattern %q: must declare at least one output", p.ID)
	}
	for _, out := range p.Outputs {
		if _, ok := declared[out]; !ok {
			return fmt.Errorf("pattern %q: output %q does not match any step alias", p.ID, out)
		}
	}
	return nil
}

// Dependencies returns, for each step index, the indices of earlier steps
// whose alias the step's args reference. The orchestrator uses this to decide
// which steps may dispatch concurrently.
func (p *Pattern) Dependencies() [][]int {
	aliasIndex := make(map[string]int, len(p.Steps))
	deps := make([][]int, len(p.Steps))
	for i, step := range p.Steps {
		seen := make(map[int]bool)
		for _, ref := range template.Refs(step.Args) {
			alias, ok := referencedAlias(ref)
			if !ok {
				continue
			}
			if j, declared := aliasIndex[alias]; declared && !seen[j] {
				seen[j] = true
				deps[i] = append(deps[i], j)
			}
		}
		sort.Ints(deps[i])
		aliasIndex[step.As] = i
	}
	return deps
}

// referencedAlias extracts the step alias a dotted reference depends on.
// Both "{{alias.path}}" and "{{state.alias.path}}" forms count; references
// rooted at "inputs" or "ctx" are not step dependencies.
func referencedAlias(ref string) (string, bool) {
	segments := strings.SplitN(ref, ".", 3)
	switch segments[0] {
	case "inputs", "ctx":
		return "", false
	case "state":
		if len(segments) < 2 {
			return "", false
		}
		return segments[1], true
	default:
		return segments[0], true
	}
}
