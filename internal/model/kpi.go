package model

import "time"

// Category is the ISSB disclosure pillar a KPI belongs to.
type Category string

const (
	CategoryEnvironmental Category = "environmental"
	CategorySocial        Category = "social"
	CategoryGovernance    Category = "governance"
)

// AllCategories returns every valid KPI category.
func AllCategories() []Category {
	return []Category{CategoryEnvironmental, CategorySocial, CategoryGovernance}
}

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool {
	for _, v := range AllCategories() {
		if c == v {
			return true
		}
	}
	return false
}

// KPI is a canonical disclosure metric. The mapping engine treats the
// catalog as read-only.
type KPI struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Unit        string    `json:"unit" yaml:"unit"`
	Category    Category  `json:"category" yaml:"category"`
	Required    bool      `json:"required" yaml:"required"`
	ISSBTag     string    `json:"issb_tag,omitempty" yaml:"issb_tag,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// EmbeddingText is the text embedded for similarity search against columns.
func (k KPI) EmbeddingText() string {
	return k.Name + ": " + k.Description + " (" + k.Unit + ")"
}

// Catalog indexes a KPI list by id while preserving catalog order.
type Catalog struct {
	kpis []KPI
	byID map[string]int
}

// NewCatalog builds a Catalog from the given KPIs.
func NewCatalog(kpis []KPI) *Catalog {
	c := &Catalog{
		kpis: kpis,
		byID: make(map[string]int, len(kpis)),
	}
	for i, k := range kpis {
		c.byID[k.ID] = i
	}
	return c
}

// Get returns the KPI with the given id.
func (c *Catalog) Get(id string) (KPI, bool) {
	if c == nil {
		return KPI{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return KPI{}, false
	}
	return c.kpis[i], true
}

// All returns the KPIs in catalog order.
func (c *Catalog) All() []KPI {
	if c == nil {
		return nil
	}
	return c.kpis
}

// Len returns the number of KPIs in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.kpis)
}
