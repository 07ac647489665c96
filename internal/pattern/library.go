package pattern

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Library is the set of pattern definitions loaded at startup. Read-only
// after construction; safe for concurrent use.
type Library struct {
	patterns map[string]*Pattern
}

// NewLibrary builds a library from already-parsed patterns, validating each.
func NewLibrary(patterns ...*Pattern) (*Library, error) {
	lib := &Library{patterns: make(map[string]*Pattern, len(patterns))}
	for _, p := range patterns {
		if err := lib.add(p); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

// LoadDir loads every *.yaml / *.yml file under dir as one pattern each.
func LoadDir(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pattern: reading directory %s: %w", dir, err)
	}

	lib := &Library{patterns: make(map[string]*Pattern)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := lib.add(p); err != nil {
			return nil, err
		}
		log.Debug().Str("pattern", p.ID).Int("steps", len(p.Steps)).Str("file", entry.Name()).Msg("pattern loaded")
	}

	if len(lib.patterns) == 0 {
		return nil, fmt.Errorf("pattern: no pattern definitions found in %s", dir)
	}
	return lib, nil
}

// LoadFile parses and validates a single pattern definition.
func LoadFile(path string) (*Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pattern: reading %s: %w", path, err)
	}
	var p Pattern
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("pattern: parsing %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("pattern: %s: %w", path, err)
	}
	return &p, nil
}

func (l *Library) add(p *Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, exists := l.patterns[p.ID]; exists {
		return fmt.Errorf("pattern: duplicate pattern id %q", p.ID)
	}
	l.patterns[p.ID] = p
	return nil
}

// Get returns a pattern by id.
func (l *Library) Get(id string) (*Pattern, error) {
	p, ok := l.patterns[id]
	if !ok {
		return nil, fmt.Errorf("pattern: unknown pattern %q", id)
	}
	return p, nil
}

// IDs lists the loaded pattern ids in sorted order.
func (l *Library) IDs() []string {
	ids := make([]string, 0, len(l.patterns))
	for id := range l.patterns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
