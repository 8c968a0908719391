package project

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Container is a name-to-project mapping persisted as a single store
// record. It serves two roles: the per-project record holds exactly one
// entry, the per-system aggregate record holds every current project of
// that system. Both serialize to the same wire shape, a plain JSON
// object keyed by project name.
type Container struct {
	projects map[string]Project
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{projects: make(map[string]Project)}
}

// Add inserts or replaces the entry for p.Name.
func (c *Container) Add(p Project) {
	c.projects[p.Name] = p
}

// Remove drops the entry for name. Removing an absent name is a no-op.
func (c *Container) Remove(name string) {
	delete(c.projects, name)
}

// Get returns the entry for name.
func (c *Container) Get(name string) (Project, bool) {
	p, ok := c.projects[name]
	return p, ok
}

// All returns every entry ordered by name.
func (c *Container) All() []Project {
	out := make([]Project, 0, len(c.projects))
	for _, p := range c.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of entries.
func (c *Container) Len() int {
	return len(c.projects)
}

// MarshalJSON encodes the container as a plain name-to-project object.
func (c *Container) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.projects)
}

// UnmarshalJSON decodes the plain name-to-project object.
func (c *Container) UnmarshalJSON(data []byte) error {
	var m map[string]Project
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		m = make(map[string]Project)
	}
	c.projects = m
	return nil
}

// DecodeContainer parses a persisted container document.
func DecodeContainer(data []byte) (*Container, error) {
	c := NewContainer()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode project container: %w", err)
	}
	return c, nil
}

// EncodeContainer serializes a container for persistence.
func EncodeContainer(c *Container) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode project container: %w", err)
	}
	return data, nil
}
