package unit

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/vk/icupipe/internal/fhir"
)

var (
	// ErrConfiguration is returned when no family covers the declared units.
	ErrConfiguration = errors.New("unit configuration error")
	// ErrConversionNotImplemented is returned for units a family lists but
	// cannot convert.
	ErrConversionNotImplemented = errors.New("conversion not implemented")
	ErrInvalidRow               = errors.New("row holds no convertible quantity")
)

// Unit describes one unit of a family. ToSI and FromSI are nil for units the
// family accepts but cannot convert.
type Unit struct {
	Name   string
	ToSI   func(float64) float64
	FromSI func(float64) float64
}

// Scale declares a unit where one of it equals factor SI units.
func Scale(name string, factor float64) Unit {
	return Unit{
		Name:   name,
		ToSI:   func(v float64) float64 { return v * factor },
		FromSI: func(v float64) float64 { return v / factor },
	}
}

// Affine declares a unit with SI = v*scale + offset.
func Affine(name string, scale, offset float64) Unit {
	return Unit{
		Name:   name,
		ToSI:   func(v float64) float64 { return v*scale + offset },
		FromSI: func(v float64) float64 { return (v - offset) / scale },
	}
}

// Declared lists a unit without a conversion.
func Declared(name string) Unit { return Unit{Name: name} }

// Family is a set of mutually convertible units.
type Family struct {
	Name     string
	SIUnit   string
	Required []string

	order []string
	units map[string]Unit
}

// NewFamily builds a family; the SI unit is added as identity when missing
// from units.
func NewFamily(name, si string, units ...Unit) *Family {
	f := &Family{Name: name, SIUnit: normalize(si), units: make(map[string]Unit)}
	if !slices.ContainsFunc(units, func(u Unit) bool { return normalize(u.Name) == f.SIUnit }) {
		units = append([]Unit{Scale(si, 1)}, units...)
	}
	for _, u := range units {
		key := normalize(u.Name)
		if _, dup := f.units[key]; dup {
			panic(fmt.Sprintf("unit: family %q declares %q twice", name, u.Name))
		}
		f.units[key] = u
		f.order = append(f.order, key)
	}
	return f
}

// Requires sets the concepts the family's conversions depend on.
func (f *Family) Requires(concepts ...string) *Family {
	f.Required = append(f.Required, concepts...)
	return f
}

// Units returns the available units in declaration order.
func (f *Family) Units() []string { return slices.Clone(f.order) }

// Has reports whether unit belongs to the family.
func (f *Family) Has(unit string) bool {
	_, ok := f.units[normalize(unit)]
	return ok
}

// ToSI converts v from unit to the SI unit.
func (f *Family) ToSI(unit string, v float64) (float64, error) {
	u, err := f.lookup(unit)
	if err != nil {
		return 0, err
	}
	return u.ToSI(v), nil
}

// FromSI converts an SI value to unit.
func (f *Family) FromSI(unit string, v float64) (float64, error) {
	u, err := f.lookup(unit)
	if err != nil {
		return 0, err
	}
	return u.FromSI(v), nil
}

func (f *Family) lookup(unit string) (Unit, error) {
	u, ok := f.units[normalize(unit)]
	if !ok || u.ToSI == nil || u.FromSI == nil {
		return Unit{}, fmt.Errorf("%w: %s family cannot convert %q", ErrConversionNotImplemented, f.Name, unit)
	}
	return u, nil
}

// Convert expresses v, given in from, in to.
func (f *Family) Convert(v float64, from, to string) (float64, error) {
	if normalize(from) == normalize(to) {
		return v, nil
	}
	si, err := f.ToSI(from, v)
	if err != nil {
		return 0, err
	}
	return f.FromSI(to, si)
}

// ConvertFrame returns a copy of frame with every quantity converted from
// one unit to the other. Observations convert value_quantity, medication
// statements the dose of their dosage.
func (f *Family) ConvertFrame(frame *fhir.Frame, from, to string) (*fhir.Frame, error) {
	out := frame.Clone()
	for i, row := range out.Rows {
		switch frame.Resource {
		case fhir.MedicationStatement:
			d, ok := row[fhir.ColDosage].(fhir.Dosage)
			if !ok {
				return nil, fmt.Errorf("%w: row %d: %s is %T", ErrInvalidRow, i, fhir.ColDosage, row[fhir.ColDosage])
			}
			q, err := f.convertQuantity(d.DoseQuantity, from, to)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			d.DoseQuantity = q
			row[fhir.ColDosage] = d
		default:
			q, ok := row[fhir.ColValueQuantity].(fhir.Quantity)
			if !ok {
				return nil, fmt.Errorf("%w: row %d: %s is %T", ErrInvalidRow, i, fhir.ColValueQuantity, row[fhir.ColValueQuantity])
			}
			q, err := f.convertQuantity(q, from, to)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			row[fhir.ColValueQuantity] = q
		}
	}
	return out, nil
}

func (f *Family) convertQuantity(q fhir.Quantity, from, to string) (fhir.Quantity, error) {
	v, err := f.Convert(q.Value, from, to)
	if err != nil {
		return q, err
	}
	return fhir.Quantity{Value: v, Unit: to}, nil
}

func normalize(unit string) string { return norm.NFC.String(unit) }
