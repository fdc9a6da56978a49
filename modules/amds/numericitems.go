package amds

import (
	"fmt"
	"time"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/query"
	"github.com/vk/icupipe/internal/source"
)

const NumericItemsClass = "AmdsNumericItemsMapper"

// Item ids of the vitals published in numericitems.
const (
	ItemHeartRate            = 6640
	ItemSystolicInvasive     = 6641
	ItemMeanArterialInvasive = 6642
	ItemDiastolicInvasive    = 6643
	ItemSystolicNonInvasive  = 6678
	ItemMeanNonInvasive      = 6679
	ItemDiastolicNonInvasive = 6680
)

const numericItemsTable = "numericitems"

// NumericItemsParams selects the item ids of a concept.
type NumericItemsParams struct {
	ItemIDs []int `mapstructure:"itemids"`
}

// NewNumericItemsMapper reads the values of the configured item ids. Rows
// keep the unit recorded in the database when the mapper declares none.
func NewNumericItemsMapper(args source.MapperArgs) (source.Mapper, error) {
	var p NumericItemsParams
	if err := source.DecodeParams(args.Mapper.Params, &p); err != nil {
		return nil, fmt.Errorf("%s for concept %q: %w", NumericItemsClass, args.Concept.Name, err)
	}
	if len(p.ItemIDs) == 0 {
		return nil, fmt.Errorf("%s for concept %q: %w: itemids is required", NumericItemsClass, args.Concept.Name, source.ErrInvalidParams)
	}

	items := schema + "." + numericItemsTable
	admissions := schema + "." + admissionsTable
	spec := query.Spec{
		Schema: schema,
		Table:  numericItemsTable,
		Fields: map[string]string{
			"patient_id":  admissions + "." + PatientID,
			"year_group":  admissions + ".admissionyeargroup",
			"measured_at": items + ".measuredat",
			"value":       items + ".value",
			"unit":        items + ".unit",
		},
		Constraints: map[string]any{
			items + ".itemid": p.ItemIDs,
			items + ".value":  query.NotNull,
		},
		Joins: map[string]map[string]string{
			admissions: {items + ".admissionid": admissions + ".admissionid"},
		},
		OrderBy: []string{items + ".measuredat"},
	}
	c := &numericItems{code: args.Code(), unit: args.Mapper.Unit}
	return source.NewDatabaseMapper(args, "patient_id", spec, c)
}

type numericItems struct {
	code fhir.CodeableConcept
	unit string
}

func (n *numericItems) ToCanonical(rows []database.Row) (*fhir.Frame, error) {
	frame := fhir.NewFrame(fhir.Observation, len(rows))
	for i, row := range rows {
		base, err := yearGroupStart(row["year_group"])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		ms, err := source.Int(row["measured_at"])
		if err != nil {
			return nil, fmt.Errorf("row %d: measured_at: %w", i, err)
		}
		value, err := source.Float(row["value"])
		if err != nil {
			return nil, fmt.Errorf("row %d: value: %w", i, err)
		}
		unit := n.unit
		if unit == "" {
			unit = source.String(row["unit"])
		}
		frame.Rows = append(frame.Rows, fhir.Row{
			fhir.ColSubject:           fhir.Reference{Reference: source.String(row["patient_id"]), Type: string(config.AMDS)},
			fhir.ColCode:              n.code,
			fhir.ColEffectiveDateTime: base.Add(time.Duration(ms) * time.Millisecond),
			fhir.ColValueQuantity:     fhir.Quantity{Value: value, Unit: unit},
		})
	}
	return frame, nil
}
