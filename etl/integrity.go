package etl

import (
	"context"
	"fmt"

	"clinicaldw/warehouse"
)

// factForeignKeys describes every dimension reference a fact row carries.
// The patient reference is mandatory; the rest are checked only when
// non-null, since a null key means "not applicable for this source".
var factForeignKeys = []struct {
	Name       string
	Column     string
	DimTable   string
	DimColumn  string
	Mandatory  bool
	Constraint string
}{
	{"patient", "subject_id", "dim_patients", "subject_id", true, "fk_fact_patient"},
	{"admission", "hadm_id", "dim_admissions", "hadm_id", false, "fk_fact_admission"},
	{"concept", "concept_id", "dim_concepts", "concept_id", false, "fk_fact_concept"},
	{"date", "event_date", "dim_dates", "event_date", false, "fk_fact_date"},
	{"junk", "junk_id", "dim_junk", "junk_id", false, "fk_fact_junk"},
	{"provider", "provider_id", "dim_providers", "provider_id", false, "fk_fact_provider"},
}

// enforce deletes (never repairs) every warehouse fact row whose non-null
// dimension reference cannot be resolved, then declares the foreign-key
// constraints so any later direct insert violating them fails closed.
func (r *Run) enforce(ctx context.Context) error {
	if err := r.requires(StagePromote); err != nil {
		return err
	}
	for _, fk := range factForeignKeys {
		nullGuard := ""
		if !fk.Mandatory {
			nullGuard = fmt.Sprintf("f.%s IS NOT NULL AND ", fk.Column)
		}
		tag, err := r.Pool.Exec(ctx, fmt.Sprintf(
			`DELETE FROM %[1]s.fact_disorder_events f
			  WHERE %[2]s NOT EXISTS (
			        SELECT 1 FROM %[1]s.%[3]s d WHERE d.%[4]s = f.%[5]s)`,
			warehouse.SchemaWarehouse, nullGuard, fk.DimTable, fk.DimColumn, fk.Column))
		if err != nil {
			return fmt.Errorf("delete %s orphans: %w", fk.Name, err)
		}
		if n := tag.RowsAffected(); n > 0 {
			r.Log.Warn().Str("reference", fk.Name).Int64("deleted", n).Msg("orphaned facts removed")
		}
	}

	for _, fk := range factForeignKeys {
		_, err := r.Pool.Exec(ctx, fmt.Sprintf(
			`ALTER TABLE %[1]s.fact_disorder_events
			   ADD CONSTRAINT %[2]s FOREIGN KEY (%[3]s) REFERENCES %[1]s.%[4]s (%[5]s)`,
			warehouse.SchemaWarehouse, fk.Constraint, fk.Column, fk.DimTable, fk.DimColumn))
		if err != nil {
			return fmt.Errorf("add constraint %s: %w", fk.Constraint, err)
		}
	}
	return nil
}
