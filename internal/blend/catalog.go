package blend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Catalog resolves coal references (id or name) for blend rows.
type Catalog struct {
	byID   map[string]Coal
	byName map[string]Coal
	names  []string
}

// NewCatalog indexes coals by id and case-insensitive name.
func NewCatalog(coals []Coal) *Catalog {
	c := &Catalog{
		byID:   make(map[string]Coal, len(coals)),
		byName: make(map[string]Coal, len(coals)),
	}
	for _, coal := range coals {
		if coal.ID != "" {
			c.byID[coal.ID] = coal
		}
		key := normalizeName(coal.Name)
		if _, dup := c.byName[key]; !dup {
			c.names = append(c.names, coal.Name)
		}
		c.byName[key] = coal
	}
	sort.Strings(c.names)
	return c
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Len returns the number of coals in the catalog.
func (c *Catalog) Len() int {
	return len(c.byName)
}

// Lookup finds a coal by id, then by name.
func (c *Catalog) Lookup(ref string) (Coal, bool) {
	if coal, ok := c.byID[ref]; ok {
		return coal, true
	}
	coal, ok := c.byName[normalizeName(ref)]
	return coal, ok
}

// Suggest returns up to limit catalog names close to name, nearest first.
func (c *Catalog) Suggest(name string, limit int) []string {
	type candidate struct {
		name string
		dist int
	}
	needle := normalizeName(name)
	if needle == "" {
		return nil
	}
	maxDist := len(needle) / 3
	if maxDist < 2 {
		maxDist = 2
	}

	var candidates []candidate
	for _, n := range c.names {
		d := levenshtein.ComputeDistance(needle, normalizeName(n))
		if d <= maxDist {
			candidates = append(candidates, candidate{n, d})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})

	var out []string
	for _, cand := range candidates {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, cand.name)
	}
	return out
}

// Resolve attaches a coal snapshot to every row of in. Rows that already
// carry an inline coal and no id are left as they are.
func (c *Catalog) Resolve(in *Input) error {
	var problems []string
	for i := range in.Rows {
		r := &in.Rows[i]
		if r.CoalID == "" {
			if r.Coal == nil {
				problems = append(problems, fmt.Sprintf("row %d: coal is required", i+1))
			}
			continue
		}
		coal, ok := c.Lookup(r.CoalID)
		if !ok {
			msg := fmt.Sprintf("row %d: unknown coal %q", i+1, r.CoalID)
			if s := c.Suggest(r.CoalID, 3); len(s) > 0 {
				msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(quoteAll(s), ", "))
			}
			problems = append(problems, msg)
			continue
		}
		snapshot := coal
		r.Coal = &snapshot
		r.CoalID = coal.ID
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
