package gate

import (
	"encoding/json"
	"fmt"
	"os"
)

// Disease is one catalog record.
type Disease struct {
	Name  string `json:"name"`
	Cause string `json:"cause"`
	Cure  string `json:"cure"`
}

// Catalog is positionally indexed by the image model's output class.
// It is read-only once loaded.
type Catalog struct {
	records []Disease
}

// NewCatalog copies records into a catalog.
func NewCatalog(records []Disease) Catalog {
	return Catalog{records: append([]Disease(nil), records...)}
}

// LoadCatalog reads a JSON array of {name, cause, cure} records.
func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to read catalog: %w", err)
	}
	var records []Disease
	if err := json.Unmarshal(raw, &records); err != nil {
		return Catalog{}, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	if len(records) == 0 {
		return Catalog{}, fmt.Errorf("catalog %s is empty", path)
	}
	return Catalog{records: records}, nil
}

// Len returns the number of records.
func (c Catalog) Len() int { return len(c.records) }

// Lookup returns the record at index when it exists.
func (c Catalog) Lookup(index int) (Disease, bool) {
	if index < 0 || index >= len(c.records) {
		return Disease{}, false
	}
	return c.records[index], true
}
