// Package catalog loads the declarative job-type catalog: the map of
// type_id to queue/image/threshold that the scaling controller iterates
// every tick.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// JobTypeSpec is immutable after Load: one declared category of work.
type JobTypeSpec struct {
	TypeID     string `json:"-"`
	Queue      string `json:"queue"`
	Image      string `json:"image"`
	Threshold  int    `json:"threshold"`
	PullSecret string `json:"pull_secret,omitempty"`
}

type document struct {
	Jobs map[string]JobTypeSpec `json:"jobs"`
}

// Catalog is the parsed, ordered set of job type specs. Iteration order is
// stable (alphabetical by type_id) so the controller's per-tick walk is
// deterministic across runs.
type Catalog struct {
	types map[string]JobTypeSpec
	order []string
}

// Load reads the catalog file at path, substituting ${VAR} occurrences with
// process environment values (unresolved variables resolve to empty) before
// parsing. A missing catalog file is not an error: it yields a quiescent
// controller with no job types to iterate, as does a document with no
// entries under "jobs". A file that is empty or fails to parse is an error.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{types: map[string]JobTypeSpec{}}, nil
		}
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	expanded := os.Expand(string(raw), os.Getenv)

	var doc document
	if err := json.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	c := &Catalog{types: make(map[string]JobTypeSpec, len(doc.Jobs))}
	for typeID, spec := range doc.Jobs {
		if spec.Threshold <= 0 {
			return nil, fmt.Errorf("catalog entry %q: threshold must be positive, got %d", typeID, spec.Threshold)
		}
		if spec.Queue == "" {
			return nil, fmt.Errorf("catalog entry %q: queue is required", typeID)
		}
		spec.TypeID = typeID
		c.types[typeID] = spec
		c.order = append(c.order, typeID)
	}
	sort.Strings(c.order)

	return c, nil
}

// Types returns job type specs in stable iteration order.
func (c *Catalog) Types() []JobTypeSpec {
	out := make([]JobTypeSpec, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.types[id])
	}
	return out
}

// Get returns the spec for a type_id, if declared.
func (c *Catalog) Get(typeID string) (JobTypeSpec, bool) {
	spec, ok := c.types[typeID]
	return spec, ok
}

// Len reports the number of declared job types.
func (c *Catalog) Len() int {
	return len(c.types)
}
