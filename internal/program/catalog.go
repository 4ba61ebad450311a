// Package program defines the ITMO master-program record model, the catalog
// of known programs, JSON loading and the chunker that slices records into
// indexable text units.
package program

import (
	"slices"

	"github.com/garyellow/itmo-advisor-go/internal/sliceutil"
)

// BaseURL is the admissions site that hosts the program pages.
const BaseURL = "https://abit.itmo.ru/program/master/"

// Info identifies one master program.
type Info struct {
	ID   string // short id, also the page slug (e.g. "ai")
	Name string // display name used in chunk text and user replies
	URL  string
}

// Catalog is an ordered set of programs.
type Catalog struct {
	programs []Info
	byID     map[string]Info
}

// DefaultPrograms are the two programs the assistant is built around.
var DefaultPrograms = []Info{
	{ID: "ai", Name: "Искусственный интеллект", URL: BaseURL + "ai"},
	{ID: "ai_product", Name: "Управление ИИ-продуктами", URL: BaseURL + "ai_product"},
}

// NewCatalog builds a catalog. Later duplicates of an id are ignored.
func NewCatalog(programs ...Info) *Catalog {
	programs = slices.DeleteFunc(slices.Clone(programs), func(p Info) bool { return p.ID == "" })
	programs = sliceutil.Deduplicate(programs, func(p Info) string { return p.ID })

	c := &Catalog{byID: make(map[string]Info, len(programs))}
	for _, p := range programs {
		if p.URL == "" {
			p.URL = BaseURL + p.ID
		}
		c.byID[p.ID] = p
		c.programs = append(c.programs, p)
	}
	return c
}

// DefaultCatalog returns a catalog of DefaultPrograms.
func DefaultCatalog() *Catalog {
	return NewCatalog(DefaultPrograms...)
}

// Name returns the display name for id, or id itself when unknown.
func (c *Catalog) Name(id string) string {
	if p, ok := c.byID[id]; ok {
		return p.Name
	}
	return id
}

// Get returns the program with the given id.
func (c *Catalog) Get(id string) (Info, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// ByName finds a program by its display name.
func (c *Catalog) ByName(name string) (Info, bool) {
	for _, p := range c.programs {
		if p.Name == name {
			return p, true
		}
	}
	return Info{}, false
}

// All returns the programs in catalog order.
func (c *Catalog) All() []Info {
	out := make([]Info, len(c.programs))
	copy(out, c.programs)
	return out
}

// IDs returns program ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.programs))
	for i, p := range c.programs {
		ids[i] = p.ID
	}
	return ids
}

// Select builds a catalog of ids in the given order. Ids missing from
// DefaultPrograms get their id as display name.
func Select(ids []string) *Catalog {
	known := DefaultCatalog()
	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		if p, ok := known.Get(id); ok {
			infos = append(infos, p)
			continue
		}
		infos = append(infos, Info{ID: id, Name: id})
	}
	return NewCatalog(infos...)
}
