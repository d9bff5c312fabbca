// Package catalog holds the static list of endpoints a run may extract.
// Catalogs are YAML documents; a default Ed-Fi catalog is embedded.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/models"
	"gopkg.in/yaml.v3"
)

// DeletesSuffix marks delete-variant endpoint paths.
const DeletesSuffix = "/deletes"

//go:embed default_catalog.yaml
var defaultCatalog []byte

// TableSpec is one catalog entry as written in YAML.
type TableSpec struct {
	Table     string   `yaml:"table"`
	Endpoints []string `yaml:"endpoints"`
}

type document struct {
	Tables []TableSpec `yaml:"tables"`
}

// Catalog is an ordered, validated list of endpoints.
type Catalog struct {
	endpoints []models.Endpoint
	byPath    map[string]models.Endpoint
}

// Default returns the embedded Ed-Fi catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog file. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read catalog").
			WithDetail("path", path)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse catalog")
	}

	var endpoints []models.Endpoint
	for _, table := range doc.Tables {
		for _, path := range table.Endpoints {
			endpoints = append(endpoints, models.Endpoint{
				Path:            path,
				Table:           table.Table,
				IsDeleteVariant: strings.HasSuffix(path, DeletesSuffix),
			})
		}
	}
	return New(endpoints)
}

// New validates endpoints and builds a catalog preserving their order.
// Paths must be unique. Several endpoints may share a table.
func New(endpoints []models.Endpoint) (*Catalog, error) {
	c := &Catalog{
		endpoints: make([]models.Endpoint, 0, len(endpoints)),
		byPath:    make(map[string]models.Endpoint, len(endpoints)),
	}

	for _, ep := range endpoints {
		if ep.Table == "" {
			return nil, errors.New(errors.ErrorTypeValidation, "endpoint has no table").
				WithDetail("path", ep.Path)
		}
		if !strings.HasPrefix(ep.Path, "/") {
			return nil, errors.New(errors.ErrorTypeValidation, "endpoint path must start with /").
				WithDetail("path", ep.Path)
		}
		if _, dup := c.byPath[ep.Path]; dup {
			return nil, errors.New(errors.ErrorTypeValidation, "duplicate endpoint path").
				WithDetail("path", ep.Path)
		}
		c.byPath[ep.Path] = ep
		c.endpoints = append(c.endpoints, ep)
	}
	return c, nil
}

// Endpoints returns the endpoints in catalog order.
func (c *Catalog) Endpoints() []models.Endpoint {
	out := make([]models.Endpoint, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}

// Lookup finds an endpoint by path.
func (c *Catalog) Lookup(path string) (models.Endpoint, bool) {
	ep, ok := c.byPath[path]
	return ep, ok
}

// Tables returns distinct table names in catalog order.
func (c *Catalog) Tables() []string {
	seen := make(map[string]bool)
	var tables []string
	for _, ep := range c.endpoints {
		if !seen[ep.Table] {
			seen[ep.Table] = true
			tables = append(tables, ep.Table)
		}
	}
	return tables
}

// Select returns a catalog restricted to the named tables. Unknown names
// are an error.
func (c *Catalog) Select(tables ...string) (*Catalog, error) {
	if len(tables) == 0 {
		return c, nil
	}
	want := make(map[string]bool, len(tables))
	for _, t := range tables {
		want[t] = true
	}
	var out []models.Endpoint
	seen := make(map[string]bool, len(tables))
	for _, ep := range c.endpoints {
		if want[ep.Table] {
			out = append(out, ep)
			seen[ep.Table] = true
		}
	}
	for _, t := range tables {
		if !seen[t] {
			return nil, errors.New(errors.ErrorTypeValidation, "unknown table").WithDetail("table", t)
		}
	}
	return New(out)
}

// Len returns the number of endpoints.
func (c *Catalog) Len() int {
	return len(c.endpoints)
}
