package mimiciv

import (
	"fmt"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/source"
)

const DosageClass = "MimicDosageMapper"

var dosageFields = map[string]string{
	"patient_id": SubjectID,
	"timestamp":  "starttime",
	"value":      "amount",
}

// NewDosageMapper maps discrete drug administrations. No rate is recorded
// for them, so every statement carries a unit rate.
func NewDosageMapper(args source.MapperArgs) (source.Mapper, error) {
	var p source.TableParams
	if err := source.DecodeParams(args.Mapper.Params, &p); err != nil {
		return nil, fmt.Errorf("%s for concept %q: %w", DosageClass, args.Concept.Name, err)
	}
	if args.Mapper.Unit == "" {
		return nil, fmt.Errorf("%s for concept %q: %w: unit is required", DosageClass, args.Concept.Name, source.ErrInvalidParams)
	}
	spec, err := p.Spec(dosageFields)
	if err != nil {
		return nil, fmt.Errorf("%s for concept %q: %w", DosageClass, args.Concept.Name, err)
	}
	c := &dosages{code: args.Code(), unit: args.Mapper.Unit}
	return source.NewDatabaseMapper(args, "patient_id", spec, c)
}

type dosages struct {
	code fhir.CodeableConcept
	unit string
}

func (d *dosages) ToCanonical(rows []database.Row) (*fhir.Frame, error) {
	frame := fhir.NewFrame(fhir.MedicationStatement, len(rows))
	for i, row := range rows {
		ts, err := source.Time(row["timestamp"])
		if err != nil {
			return nil, fmt.Errorf("row %d: timestamp: %w", i, err)
		}
		amount, err := source.Float(row["value"])
		if err != nil {
			return nil, fmt.Errorf("row %d: value: %w", i, err)
		}
		ts = ts.UTC()
		frame.Rows = append(frame.Rows, fhir.Row{
			fhir.ColSubject:         fhir.Reference{Reference: source.String(row["patient_id"]), Type: string(config.MIMICIV)},
			fhir.ColMedication:      fhir.CodeableReference{Concept: d.code},
			fhir.ColDosage:          fhir.Dosage{DoseQuantity: fhir.Quantity{Value: amount, Unit: d.unit}, RateQuantity: fhir.Quantity{Value: 1, Unit: "unit"}},
			fhir.ColEffectivePeriod: fhir.Period{Start: ts, End: ts},
		})
	}
	return frame, nil
}
