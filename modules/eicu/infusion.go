package eicu

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/query"
	"github.com/vk/icupipe/internal/source"
)

const InfusionClass = "EICUInfusionDosageMapper"

var infusionFields = map[string]string{
	"patient_id": StayID,
	"rate":       "drugrate",
	"time":       "hospitaladmittime24",
	"year":       "hospitaldischargeyear",
	"offset":     "infusionoffset",
}

// NewInfusionMapper turns infusion rate charting into dose intervals. Each
// charted rate holds until the next chart of the same stay; the dose of an
// interval is rate times its length in whole minutes.
func NewInfusionMapper(args source.MapperArgs) (source.Mapper, error) {
	var p source.TableParams
	if err := source.DecodeParams(args.Mapper.Params, &p); err != nil {
		return nil, fmt.Errorf("%s for concept %q: %w", InfusionClass, args.Concept.Name, err)
	}
	if args.Mapper.Unit == "" {
		return nil, fmt.Errorf("%s for concept %q: %w: unit is required", InfusionClass, args.Concept.Name, source.ErrInvalidParams)
	}
	if p.Schema == "" {
		p.Schema = schema
	}
	if p.Table == "" {
		p.Table = "infusiondrug"
	}
	spec, err := p.Spec(infusionFields)
	if err != nil {
		return nil, fmt.Errorf("%s for concept %q: %w", InfusionClass, args.Concept.Name, err)
	}
	spec.Constraints[spec.Fields["rate"]] = query.NotNull
	spec.Joins = patientJoin(p)
	if len(spec.OrderBy) == 0 {
		spec.OrderBy = []string{spec.Fields["offset"]}
	}

	c := &infusions{code: args.Code(), unit: args.Mapper.Unit}
	return source.NewDatabaseMapper(args, "patient_id", spec, c)
}

type infusions struct {
	code fhir.CodeableConcept
	unit string
}

type chart struct {
	offset int64
	start  time.Time
	rate   float64
}

func (in *infusions) ToCanonical(rows []database.Row) (*fhir.Frame, error) {
	var order []string
	stays := make(map[string][]chart)
	for i, row := range rows {
		id := source.String(row["patient_id"])
		offset, err := source.Int(row["offset"])
		if err != nil {
			return nil, fmt.Errorf("row %d: offset: %w", i, err)
		}
		// Charts before the unit admission count from the admission.
		offset = max(offset, 0)
		start, err := offsetTime(row["time"], row["year"], offset)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rate, err := source.Float(row["rate"])
		if err != nil {
			return nil, fmt.Errorf("row %d: rate: %w", i, err)
		}
		if _, seen := stays[id]; !seen {
			order = append(order, id)
		}
		stays[id] = append(stays[id], chart{offset: offset, start: start, rate: rate})
	}

	frame := fhir.NewFrame(fhir.MedicationStatement, len(rows))
	for _, id := range order {
		for _, iv := range intervals(stays[id]) {
			frame.Rows = append(frame.Rows, fhir.Row{
				fhir.ColSubject:    fhir.Reference{Reference: id, Type: string(config.EICU)},
				fhir.ColMedication: fhir.CodeableReference{Concept: in.code},
				fhir.ColDosage: fhir.Dosage{
					DoseQuantity: fhir.Quantity{Value: iv.rate * iv.minutes, Unit: in.unit},
					RateQuantity: fhir.Quantity{Value: iv.rate, Unit: in.unit + "/min"},
				},
				fhir.ColEffectivePeriod: fhir.Period{Start: iv.start, End: iv.end},
			})
		}
	}
	return frame, nil
}

type interval struct {
	start, end time.Time
	rate       float64
	minutes    float64
}

// intervals sorts one stay's charts by offset, keeps the last chart of each
// offset and pairs every chart with its successor. The last chart has no end
// and is dropped, as are intervals with a non positive rate.
func intervals(charts []chart) []interval {
	slices.SortStableFunc(charts, func(a, b chart) int { return cmp.Compare(a.offset, b.offset) })
	var dedup []chart
	for _, c := range charts {
		if n := len(dedup); n > 0 && dedup[n-1].offset == c.offset {
			dedup[n-1] = c
			continue
		}
		dedup = append(dedup, c)
	}

	var out []interval
	for i := 0; i+1 < len(dedup); i++ {
		c, next := dedup[i], dedup[i+1]
		if c.rate <= 0 {
			continue
		}
		out = append(out, interval{
			start:   c.start,
			end:     next.start,
			rate:    c.rate,
			minutes: float64(int64(next.start.Sub(c.start) / time.Minute)),
		})
	}
	return out
}
