// Package catalog owns the list of careers the quiz form can offer. The
// built-in set matches the guidance domains the planner was trained on; an
// optional catalog file replaces it and can be hot-reloaded.
package catalog

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Career is a single selectable option on the quiz form.
type Career struct {
	Name     string `json:"name" koanf:"name"`
	Category string `json:"category" koanf:"category"`
	Icon     string `json:"icon" koanf:"icon"`
}

type catalogDocument struct {
	Careers []Career `koanf:"careers"`
}

// Catalog holds the active career set behind a read lock so request handlers
// can list it while the watcher swaps in reloaded files.
type Catalog struct {
	mu      sync.RWMutex
	careers []Career
}

// Builtin returns a catalog seeded with the default career set.
func Builtin() *Catalog {
	return &Catalog{careers: builtinCareers()}
}

func builtinCareers() []Career {
	return []Career{
		{Name: "Mechanical Engineer", Category: "Engineering", Icon: "⚙️"},
		{Name: "Electrical Engineer", Category: "Engineering", Icon: "⚡"},
		{Name: "Civil Engineer", Category: "Engineering", Icon: "🏗️"},
		{Name: "Software Developer", Category: "Technology", Icon: "💻"},
		{Name: "Data Scientist", Category: "Technology", Icon: "📊"},
		{Name: "Registered Nurse", Category: "Healthcare", Icon: "🏥"},
		{Name: "Architect", Category: "Design", Icon: "📐"},
		{Name: "Accountant", Category: "Business", Icon: "💼"},
	}
}

// List returns a copy of the active career set, sorted by category then name.
func (c *Catalog) List() []Career {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Career, len(c.careers))
	copy(out, c.careers)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Replace swaps the active career set.
func (c *Catalog) Replace(careers []Career) {
	next := make([]Career, len(careers))
	copy(next, careers)
	c.mu.Lock()
	c.careers = next
	c.mu.Unlock()
}

// LoadFile parses a catalog document and replaces the active set with its
// careers. The format follows the file extension.
func (c *Catalog) LoadFile(path string) error {
	careers, err := readCatalogFile(path)
	if err != nil {
		return err
	}
	c.Replace(careers)
	return nil
}

func readCatalogFile(path string) ([]Career, error) {
	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("catalog: load %s: %w", path, err)
	}
	var doc catalogDocument
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	if len(doc.Careers) == 0 {
		return nil, fmt.Errorf("catalog: %s declares no careers", path)
	}
	for i, career := range doc.Careers {
		if strings.TrimSpace(career.Name) == "" {
			return nil, fmt.Errorf("catalog: %s entry %d is missing a name", path, i)
		}
	}
	return doc.Careers, nil
}

func parserFor(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml", ".tml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("catalog: unsupported catalog file extension %s", ext)
	}
}
