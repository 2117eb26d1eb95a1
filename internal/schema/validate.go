package schema

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// MaxScale is the largest datetime scale a model may declare.
const MaxScale = 9

// Validate checks cross-entity consistency and reports every problem found.
// The returned error is a *multierror.Error when non-nil.
func Validate(m *Model) error {
	var result *multierror.Error

	tables := map[string]string{}
	for _, e := range m.Entities() {
		if prev, ok := tables[e.Table]; ok {
			result = multierror.Append(result, fmt.Errorf("entity %s: table %q already used by %s", e.Name, e.Table, prev))
		}
		tables[e.Table] = e.Name

		seen := map[string]bool{"Id": true}
		member := func(name string) {
			if seen[name] {
				result = multierror.Append(result, fmt.Errorf("entity %s: duplicate member %q", e.Name, name))
			}
			seen[name] = true
		}

		for _, f := range e.Fields {
			member(f.Name)
			if f.Scale != NoScale && (f.Scale < 0 || f.Scale > MaxScale) {
				result = multierror.Append(result, fmt.Errorf("entity %s: field %s: scale %d out of range 0..%d", e.Name, f.Name, f.Scale, MaxScale))
			}
		}
		for _, r := range e.References {
			member(r.Name)
			if _, ok := m.Entity(r.Target); !ok {
				result = multierror.Append(result, fmt.Errorf("entity %s: reference %s targets unknown entity %q", e.Name, r.Name, r.Target))
			}
		}
		for _, c := range e.Collections {
			member(c.Name)
			result = validateCollection(m, e, c, result)
		}
	}

	for _, e := range m.Entities() {
		for _, c := range e.Collections {
			if c.Join == "" {
				continue
			}
			if owner, ok := tables[c.Join]; ok {
				result = multierror.Append(result, fmt.Errorf("entity %s: join table %q collides with entity %s", e.Name, c.Join, owner))
			}
		}
	}

	return result.ErrorOrNil()
}

func validateCollection(m *Model, owner *Entity, c Collection, result *multierror.Error) *multierror.Error {
	elem, ok := m.Entity(c.Of)
	if !ok {
		return multierror.Append(result, fmt.Errorf("entity %s: collection %s of unknown entity %q", owner.Name, c.Name, c.Of))
	}
	switch {
	case c.Join != "" && c.Inverse != "":
		return multierror.Append(result, fmt.Errorf("entity %s: collection %s sets both join and inverse", owner.Name, c.Name))
	case c.Join == "" && c.Inverse == "":
		return multierror.Append(result, fmt.Errorf("entity %s: collection %s needs join or inverse", owner.Name, c.Name))
	case c.Inverse != "":
		ref, ok := elem.Reference(c.Inverse)
		if !ok {
			return multierror.Append(result, fmt.Errorf("entity %s: collection %s: %s has no reference %q", owner.Name, c.Name, elem.Name, c.Inverse))
		}
		if ref.Target != owner.Name {
			return multierror.Append(result, fmt.Errorf("entity %s: collection %s: %s.%s targets %s", owner.Name, c.Name, elem.Name, c.Inverse, ref.Target))
		}
	}
	return result
}
