package insight

import (
	"sort"
	"strings"
)

// Canon maps alternate surface names for a topic onto its canonical name
// and back. A nil *Canon is the identity mapping.
type Canon struct {
	toCanonical map[string]string // lower-cased surface name -> canonical
	toSurface   map[string]string // canonical -> preferred alias
}

// NewCanon builds a Canon from canonical name -> aliases. The first alias
// listed for a name is the one Denormalize returns. An alias claimed by
// more than one canonical name, or equal to another canonical name, is
// ignored so that the two directions stay inverse.
func NewCanon(aliases map[string][]string) *Canon {
	c := &Canon{
		toCanonical: make(map[string]string),
		toSurface:   make(map[string]string),
	}

	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c.toCanonical[strings.ToLower(name)] = name
	}

	claimed := make(map[string]int)
	for _, name := range names {
		for _, a := range aliases[name] {
			claimed[strings.ToLower(strings.TrimSpace(a))]++
		}
	}

	for _, name := range names {
		for _, a := range aliases[name] {
			a = strings.TrimSpace(a)
			key := strings.ToLower(a)
			if a == "" || claimed[key] > 1 {
				continue
			}
			if _, isName := c.toCanonical[key]; isName {
				continue
			}
			c.toCanonical[key] = name
			if _, ok := c.toSurface[name]; !ok {
				c.toSurface[name] = a
			}
		}
	}
	return c
}

// Normalize returns the canonical name for a surface name, or the trimmed
// input when no mapping exists.
func (c *Canon) Normalize(name string) string {
	name = strings.TrimSpace(name)
	if c == nil {
		return name
	}
	if canonical, ok := c.toCanonical[strings.ToLower(name)]; ok {
		return canonical
	}
	return name
}

// Denormalize returns the preferred surface name for a canonical name, or
// the input unchanged when it has no alias.
func (c *Canon) Denormalize(canonical string) string {
	if c == nil {
		return canonical
	}
	if s, ok := c.toSurface[canonical]; ok {
		return s
	}
	return canonical
}

// NormalizeSet canonicalizes every member of names.
func (c *Canon) NormalizeSet(names []string) Set {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, c.Normalize(n))
	}
	return NewSet(out...)
}
