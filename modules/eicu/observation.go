package eicu

import (
	"fmt"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/query"
	"github.com/vk/icupipe/internal/source"
)

const ObservationClass = "EICUObservationMapper"

var observationFields = map[string]string{
	"patient_id": StayID,
	"time":       "hospitaladmittime24",
	"year":       "hospitaldischargeyear",
	"offset":     "observationoffset",
}

// NewObservationMapper reads periodic or aperiodic vitals. The value field
// must be configured; rows where it is null are skipped in the query.
func NewObservationMapper(args source.MapperArgs) (source.Mapper, error) {
	var p source.TableParams
	if err := source.DecodeParams(args.Mapper.Params, &p); err != nil {
		return nil, fmt.Errorf("%s for concept %q: %w", ObservationClass, args.Concept.Name, err)
	}
	if args.Mapper.Unit == "" {
		return nil, fmt.Errorf("%s for concept %q: %w: unit is required", ObservationClass, args.Concept.Name, source.ErrInvalidParams)
	}
	value, ok := p.Fields["value"]
	if !ok {
		return nil, fmt.Errorf("%s for concept %q: %w: fields.value is required", ObservationClass, args.Concept.Name, source.ErrInvalidParams)
	}
	if p.Schema == "" {
		p.Schema = schema
	}
	spec, err := p.Spec(observationFields)
	if err != nil {
		return nil, fmt.Errorf("%s for concept %q: %w", ObservationClass, args.Concept.Name, err)
	}
	spec.Constraints[value] = query.NotNull
	spec.Joins = patientJoin(p)

	c := &observations{code: args.Code(), unit: args.Mapper.Unit}
	return source.NewDatabaseMapper(args, "patient_id", spec, c)
}

type observations struct {
	code fhir.CodeableConcept
	unit string
}

func (o *observations) ToCanonical(rows []database.Row) (*fhir.Frame, error) {
	frame := fhir.NewFrame(fhir.Observation, len(rows))
	for i, row := range rows {
		ts, err := offsetTime(row["time"], row["year"], row["offset"])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		value, err := source.Float(row["value"])
		if err != nil {
			return nil, fmt.Errorf("row %d: value: %w", i, err)
		}
		frame.Rows = append(frame.Rows, fhir.Row{
			fhir.ColSubject:           fhir.Reference{Reference: source.String(row["patient_id"]), Type: string(config.EICU)},
			fhir.ColCode:              o.code,
			fhir.ColEffectiveDateTime: ts,
			fhir.ColValueQuantity:     fhir.Quantity{Value: value, Unit: o.unit},
		})
	}
	return frame, nil
}
