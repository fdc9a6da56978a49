package mimiciv

import (
	"fmt"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/source"
)

const ObservationClass = "MimicObservationMapper"

// Gender codes stored as observation values.
const (
	GenderMale    = 0
	GenderFemale  = 1
	GenderDiverse = 2
)

// genderColumn holds the administrative sex in mimiciv_hosp.patients.
const genderColumn = "gender"

var observationFields = map[string]string{
	"patient_id": SubjectID,
	"timestamp":  "charttime",
	"value":      "valuenum",
}

// NewObservationMapper reads one value per row. Values taken from the gender
// column are mapped to the Gender* codes.
func NewObservationMapper(args source.MapperArgs) (source.Mapper, error) {
	var p source.TableParams
	if err := source.DecodeParams(args.Mapper.Params, &p); err != nil {
		return nil, fmt.Errorf("%s for concept %q: %w", ObservationClass, args.Concept.Name, err)
	}
	if args.Mapper.Unit == "" {
		return nil, fmt.Errorf("%s for concept %q: %w: unit is required", ObservationClass, args.Concept.Name, source.ErrInvalidParams)
	}
	spec, err := p.Spec(observationFields)
	if err != nil {
		return nil, fmt.Errorf("%s for concept %q: %w", ObservationClass, args.Concept.Name, err)
	}
	c := &observations{
		code:   args.Code(),
		unit:   args.Mapper.Unit,
		gender: spec.Fields["value"] == genderColumn,
	}
	return source.NewDatabaseMapper(args, "patient_id", spec, c)
}

type observations struct {
	code   fhir.CodeableConcept
	unit   string
	gender bool
}

func (o *observations) ToCanonical(rows []database.Row) (*fhir.Frame, error) {
	frame := fhir.NewFrame(fhir.Observation, len(rows))
	for i, row := range rows {
		ts, err := source.Time(row["timestamp"])
		if err != nil {
			return nil, fmt.Errorf("row %d: timestamp: %w", i, err)
		}
		value, err := o.value(row["value"])
		if err != nil {
			return nil, fmt.Errorf("row %d: value: %w", i, err)
		}
		frame.Rows = append(frame.Rows, fhir.Row{
			fhir.ColSubject:           fhir.Reference{Reference: source.String(row["patient_id"]), Type: string(config.MIMICIV)},
			fhir.ColCode:              o.code,
			fhir.ColEffectiveDateTime: ts.UTC(),
			fhir.ColValueQuantity:     fhir.Quantity{Value: value, Unit: o.unit},
		})
	}
	return frame, nil
}

func (o *observations) value(v any) (float64, error) {
	if !o.gender {
		return source.Float(v)
	}
	switch source.String(v) {
	case "M":
		return GenderMale, nil
	case "F":
		return GenderFemale, nil
	}
	return GenderDiverse, nil
}
