package unit

import (
	"fmt"
	"strings"
)

// Registry holds families in registration order.
type Registry struct {
	families []*Family
}

// NewRegistry creates a registry with the given families, in order.
func NewRegistry(families ...*Family) *Registry {
	r := &Registry{}
	for _, f := range families {
		r.Register(f)
	}
	return r
}

// Register appends a family. Registering a name twice panics.
func (r *Registry) Register(f *Family) {
	for _, existing := range r.families {
		if existing.Name == f.Name {
			panic(fmt.Sprintf("unit: family %q registered twice", f.Name))
		}
	}
	r.families = append(r.families, f)
}

// Families returns the registered families in order.
func (r *Registry) Families() []*Family {
	out := make([]*Family, len(r.families))
	copy(out, r.families)
	return out
}

// Select returns the first family containing target and checks that every
// source unit belongs to it as well.
func (r *Registry) Select(target string, sources []string) (*Family, error) {
	for _, f := range r.families {
		if !f.Has(target) {
			continue
		}
		var foreign []string
		for _, s := range sources {
			if !f.Has(s) {
				foreign = append(foreign, fmt.Sprintf("%q", s))
			}
		}
		if len(foreign) > 0 {
			return nil, fmt.Errorf("%w: %s family selected for target %q does not cover source units %s",
				ErrConfiguration, f.Name, target, strings.Join(foreign, ", "))
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: no converter family covers target unit %q", ErrConfiguration, target)
}
