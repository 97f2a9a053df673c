// Package tileset loads per-language tile-letter inventories from a
// swappable YAML shape rather than hard-coding any language's letters into
// Go source.
package tileset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TileSpec is one letter and its count in a language's inventory.
type TileSpec struct {
	Letter string `yaml:"letter"`
	Count  int    `yaml:"count"`
}

// Set is the read-only letter inventory for one language code, e.g. "eo"
// for Esperanto or "en" for English.
type Set struct {
	Language string     `yaml:"language"`
	Tiles    []TileSpec `yaml:"tiles"`
}

// Total returns the number of physical tiles the set describes.
func (s *Set) Total() int {
	n := 0
	for _, t := range s.Tiles {
		n += t.Count
	}
	return n
}

// Letters expands the set into one entry per physical tile, in
// declaration order (shuffling is the conversation's job, not the tile
// set's).
func (s *Set) Letters() []string {
	out := make([]string, 0, s.Total())
	for _, t := range s.Tiles {
		for i := 0; i < t.Count; i++ {
			out = append(out, t.Letter)
		}
	}
	return out
}

// Registry is a read-only collection of tile sets keyed by language code.
type Registry struct {
	sets  map[string]*Set
	order []string
}

// NewRegistry builds a Registry from already-decoded sets.
func NewRegistry(sets []*Set) *Registry {
	r := &Registry{sets: make(map[string]*Set, len(sets))}
	for _, s := range sets {
		if _, exists := r.sets[s.Language]; !exists {
			r.order = append(r.order, s.Language)
		}
		r.sets[s.Language] = s
	}
	return r
}

// LoadDirectory reads every "*.yaml" file in dir as a Set.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("tileset: reading %s: %w", dir, err)
	}

	var sets []*Set
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := dir + "/" + e.Name()
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("tileset: reading %s: %w", path, err)
		}
		var s Set
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("tileset: parsing %s: %w", path, err)
		}
		sets = append(sets, &s)
	}

	return NewRegistry(sets), nil
}

// Get returns the set for language, and whether it exists.
func (r *Registry) Get(language string) (*Set, bool) {
	s, ok := r.sets[language]
	return s, ok
}

// Default returns the first set inserted, used when a conversation is
// created without an explicit language.
func (r *Registry) Default() *Set {
	if len(r.order) == 0 {
		return nil
	}
	return r.sets[r.order[0]]
}
