// Package catalog holds the fixed set of selectable allergen rasters.
package catalog

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"allergen-map/internal/common"
	"allergen-map/internal/utils/naming"
)

// None is the selection value meaning "nothing selected"
const None = ""

// IsNone reports whether input means "nothing selected": empty or "none" in any case
func IsNone(input string) bool {
	input = strings.TrimSpace(input)
	return input == None || strings.EqualFold(input, "none")
}

// Entry is one selectable dataset.
type Entry struct {
	Key            string `json:"key"`
	Label          string `json:"label"`
	SourcePath     string `json:"sourcePath"`
	ExportBaseName string `json:"exportBaseName"`
}

// RasterFileName is the name of the exported raster inside the archive
func (e Entry) RasterFileName() string {
	return naming.RasterFileName(e.ExportBaseName)
}

// ArchiveFileName is the outer name of the export archive
func (e Entry) ArchiveFileName() string {
	return naming.ArchiveFileName(e.ExportBaseName)
}

// Definition declares a dataset; the key and export name are derived from Label.
type Definition struct {
	Label      string
	SourcePath string
}

// Catalog is immutable after construction and safe for concurrent reads.
type Catalog struct {
	entries []Entry
	byKey   map[string]Entry
	byLabel map[string]string
}

// DefaultDefinitions lists the shipped allergen tree rasters
var DefaultDefinitions = []Definition{
	{Label: "Alnus spp.", SourcePath: "Alnus.tif"},
	{Label: "Betula spp.", SourcePath: "Betula.tif"},
	{Label: "Corylus avellana", SourcePath: "Corylus.tif"},
}

// Default returns the catalog of shipped datasets
func Default() *Catalog {
	c, err := New(DefaultDefinitions...)
	if err != nil {
		panic(err)
	}
	return c
}

// New builds a catalog. Keys must be unique and non-empty.
func New(defs ...Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("catalog: no datasets: %w", common.ErrConfig)
	}

	c := &Catalog{
		byKey:   make(map[string]Entry, len(defs)),
		byLabel: make(map[string]string, len(defs)),
	}
	for _, def := range defs {
		key := KeyFromLabel(def.Label)
		if key == "" {
			return nil, fmt.Errorf("catalog: label %q has no usable first token: %w", def.Label, common.ErrConfig)
		}
		if strings.TrimSpace(def.SourcePath) == "" {
			return nil, fmt.Errorf("catalog: %s has no source path: %w", key, common.ErrConfig)
		}
		if _, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate key %s: %w", key, common.ErrConfig)
		}

		e := Entry{
			Key:            key,
			Label:          strings.TrimSpace(def.Label),
			SourcePath:     def.SourcePath,
			ExportBaseName: key,
		}
		c.entries = append(c.entries, e)
		c.byKey[key] = e
		c.byLabel[e.Label] = key
	}
	return c, nil
}

// KeyFromLabel derives the selection key of a display label from its first token
func KeyFromLabel(label string) string {
	return naming.BaseNameFromLabel(label)
}

// Lookup returns the entry for a selection key, or common.ErrNotFound
func (c *Catalog) Lookup(key string) (Entry, error) {
	e, ok := c.byKey[key]
	if !ok {
		return Entry{}, fmt.Errorf("dataset %q: %w", key, common.ErrNotFound)
	}
	return e, nil
}

// Resolve maps user input (a display label or a selection key) to a key.
// It never guesses: anything unrecognised reports ok=false.
func (c *Catalog) Resolve(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if key, ok := c.byLabel[input]; ok {
		return key, true
	}
	if _, ok := c.byKey[input]; ok {
		return input, true
	}
	return "", false
}

// Entries returns the datasets in declaration order
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Keys returns the selection keys in declaration order
func (c *Catalog) Keys() []string {
	return lo.Map(c.entries, func(e Entry, _ int) string { return e.Key })
}

// Labels returns the display labels in declaration order
func (c *Catalog) Labels() []string {
	return lo.Map(c.entries, func(e Entry, _ int) string { return e.Label })
}
