package persona

import (
	_ "embed"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

//go:embed personas.toml
var catalogTOML []byte

// Persona is one simulated expert bidder. Catalog entries are immutable at
// runtime; messages reference personas by id.
type Persona struct {
	ID          string `toml:"id" json:"id"`
	Name        string `toml:"name" json:"name"`
	Specialty   string `toml:"specialty" json:"specialty"`
	Catchphrase string `toml:"catchphrase" json:"catchphrase"`
	Backend     string `toml:"backend" json:"backend"`
}

type Catalog struct {
	list []Persona
	byID map[string]Persona
}

var knownBackends = map[string]bool{"openai": true, "kimi": true}

func Load() (*Catalog, error) {
	return parse(catalogTOML)
}

func parse(data []byte) (*Catalog, error) {
	var doc struct {
		Personas []Persona `toml:"personas"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse persona catalog: %w", err)
	}
	if len(doc.Personas) == 0 {
		return nil, fmt.Errorf("persona catalog is empty")
	}
	c := &Catalog{byID: make(map[string]Persona, len(doc.Personas))}
	for _, p := range doc.Personas {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("persona missing id or name: %+v", p)
		}
		if !knownBackends[p.Backend] {
			return nil, fmt.Errorf("persona %s: unknown backend %q", p.ID, p.Backend)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona id %q", p.ID)
		}
		c.byID[p.ID] = p
		c.list = append(c.list, p)
	}
	return c, nil
}

func (c *Catalog) Get(id string) (Persona, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *Catalog) GetByName(name string) (Persona, bool) {
	for _, p := range c.list {
		if p.Name == name {
			return p, true
		}
	}
	return Persona{}, false
}

// All returns personas in catalog file order, which drives the speaking
// rotation within a session.
func (c *Catalog) All() []Persona {
	out := make([]Persona, len(c.list))
	copy(out, c.list)
	return out
}

func (c *Catalog) Len() int {
	return len(c.list)
}
