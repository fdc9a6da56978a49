package fhir

import "slices"

// Resource identifies the schema of a Frame.
type Resource string

const (
	Observation         Resource = "observation"
	MedicationStatement Resource = "medication_statement"
)

// Column names of the canonical resources.
const (
	ColSubject           = "subject"
	ColCode              = "code"
	ColEffectiveDateTime = "effective_date_time"
	ColValueQuantity     = "value_quantity"
	ColMedication        = "medication"
	ColDosage            = "dosage"
	ColEffectivePeriod   = "effective_period"
)

var columns = map[Resource][]string{
	Observation:         {ColSubject, ColCode, ColEffectiveDateTime, ColValueQuantity},
	MedicationStatement: {ColSubject, ColMedication, ColDosage, ColEffectivePeriod},
}

// Row is one canonical record keyed by column name.
type Row map[string]any

// Frame is an ordered set of rows sharing one resource schema.
type Frame struct {
	Resource Resource
	Rows     []Row
}

// NewFrame returns an empty frame with room for n rows.
func NewFrame(r Resource, n int) *Frame {
	return &Frame{Resource: r, Rows: make([]Row, 0, n)}
}

// Len returns the number of rows; a nil frame is empty.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Columns returns the column order of the frame's resource.
func (f *Frame) Columns() []string {
	return slices.Clone(columns[f.Resource])
}

// Append adds the rows of other. Both frames must share a resource.
func (f *Frame) Append(other *Frame) {
	if other == nil {
		return
	}
	f.Rows = append(f.Rows, other.Rows...)
}

// Clone copies the frame and every row map; values are shared.
func (f *Frame) Clone() *Frame {
	out := NewFrame(f.Resource, len(f.Rows))
	for _, r := range f.Rows {
		row := make(Row, len(r))
		for k, v := range r {
			row[k] = v
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
