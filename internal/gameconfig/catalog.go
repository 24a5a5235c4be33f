package gameconfig

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed maps.yaml
var embeddedMaps []byte

// ErrUnknownMap is returned when a map name is not in the catalog or the map
// does not support the requested mode.
var ErrUnknownMap = errors.New("unknown map")

// Map is a named ASCII map and the modes it can be played in.
type Map struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Modes       []Mode   `yaml:"modes" json:"modes"`
	ASCII       []string `yaml:"ascii" json:"ascii"`
}

// Supports reports whether the map can be played in mode.
func (m Map) Supports(mode Mode) bool {
	for _, s := range m.Modes {
		if s == mode {
			return true
		}
	}
	return false
}

func (m Map) validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("map without name")
	}
	if len(NormalizeRows(m.ASCII)) == 0 {
		return fmt.Errorf("map %q: empty grid", m.Name)
	}
	if len(m.Modes) == 0 {
		return fmt.Errorf("map %q: no modes", m.Name)
	}
	for _, mode := range m.Modes {
		if !mode.Valid() {
			return fmt.Errorf("map %q: %w: %q", m.Name, ErrUnknownMode, mode)
		}
	}
	return nil
}

type mapFile struct {
	Maps []Map `yaml:"maps"`
}

// Catalog is a set of maps keyed by name. Safe for concurrent use.
type Catalog struct {
	mu   sync.RWMutex
	maps []Map
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the built-in catalog. The embedded file is validated at
// first use; a broken file is a build defect and panics.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := ParseCatalog(embeddedMaps)
		if err != nil {
			panic(fmt.Sprintf("gameconfig: embedded maps: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// ParseCatalog reads a YAML document of the form `maps: [...]`.
func ParseCatalog(data []byte) (*Catalog, error) {
	c := &Catalog{}
	if err := c.merge(data); err != nil {
		return nil, err
	}
	return c, nil
}

// Clone returns an independent copy, so LoadDir on the copy leaves the
// original untouched.
func (c *Catalog) Clone() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := &Catalog{maps: make([]Map, len(c.maps))}
	copy(out.maps, c.maps)
	return out
}

func (c *Catalog) merge(data []byte) error {
	var file mapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decode maps: %w", err)
	}
	for _, m := range file.Maps {
		if err := m.validate(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range file.Maps {
		m.ASCII = NormalizeRows(m.ASCII)
		if i := c.indexLocked(m.Name); i >= 0 {
			c.maps[i] = m
			continue
		}
		c.maps = append(c.maps, m)
	}
	return nil
}

// LoadDir merges every *.yaml and *.yml file in dir. A map whose name is
// already known replaces the earlier one.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read maps dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if err := c.merge(data); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (c *Catalog) indexLocked(name string) int {
	for i, m := range c.maps {
		if m.Name == name {
			return i
		}
	}
	for i, m := range c.maps {
		if strings.EqualFold(m.Name, name) {
			return i
		}
	}
	return -1
}

// Lookup finds a map by name. Exact matches win over case-insensitive ones.
func (c *Catalog) Lookup(name string) (Map, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(name); i >= 0 {
		return c.maps[i], true
	}
	return Map{}, false
}

// All lists every map in catalog order.
func (c *Catalog) All() []Map {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Map, len(c.maps))
	copy(out, c.maps)
	return out
}

// ForMode lists the maps playable in mode, in catalog order.
func (c *Catalog) ForMode(mode Mode) []Map {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Map
	for _, m := range c.maps {
		if m.Supports(mode) {
			out = append(out, m)
		}
	}
	return out
}

// Pick chooses a map for mode from seed. The same seed always picks the
// same map for an unchanged catalog.
func (c *Catalog) Pick(mode Mode, seed int64) (Map, bool) {
	maps := c.ForMode(mode)
	if len(maps) == 0 {
		return Map{}, false
	}
	i := seed % int64(len(maps))
	if i < 0 {
		i = -i
	}
	return maps[i], true
}
