package etl

import (
	"context"
	"fmt"

	"clinicaldw/warehouse"
)

// aggregate rebuilds the per-admission summary wholesale from the
// finalized fact table. There is no incremental maintenance; any later
// fact mutation requires a rerun to stay consistent.
func (r *Run) aggregate(ctx context.Context) error {
	if err := r.requires(StageEnforce); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, fmt.Sprintf(
		`TRUNCATE %s.agg_admission_summary`, warehouse.SchemaWarehouse)); err != nil {
		return fmt.Errorf("truncate aggregate: %w", err)
	}
	tag, err := r.Pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %[1]s.agg_admission_summary
		        (hadm_id, event_count, distinct_concepts, distinct_source_types)
		 SELECT hadm_id,
		        COUNT(*),
		        COUNT(DISTINCT concept_id),
		        COUNT(DISTINCT source_type)
		   FROM %[1]s.fact_disorder_events
		  WHERE hadm_id IS NOT NULL
		  GROUP BY hadm_id`,
		warehouse.SchemaWarehouse))
	if err != nil {
		return fmt.Errorf("rebuild aggregate: %w", err)
	}
	r.Log.Info().Int64("rows", tag.RowsAffected()).Msg("admission aggregate rebuilt")
	return nil
}
