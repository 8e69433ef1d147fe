package etl

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"clinicaldw/warehouse"
)

// numericPattern is the strict decimal shape a free-text measurement value
// must match to be parsed; anything else stays text-only.
var numericPattern = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

// parseNumeric returns the parsed value for strictly decimal text, nil
// otherwise. Non-numeric values are never an error.
func parseNumeric(s string) *float64 {
	if !numericPattern.MatchString(s) {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// factWriter accumulates fact rows and bulk-inserts them into the staging
// fact table in batches. Surrogate event ids are assigned in write order.
type factWriter struct {
	run     *Run
	pending []warehouse.Fact
	nextID  int64
	written int64
}

func newFactWriter(run *Run) *factWriter {
	return &factWriter{run: run, nextID: 1}
}

func (w *factWriter) add(ctx context.Context, f warehouse.Fact) error {
	f.EventID = w.nextID
	w.nextID++
	w.pending = append(w.pending, f)
	if len(w.pending) >= w.run.BatchSize {
		return w.flush(ctx)
	}
	return nil
}

func (w *factWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	n, err := w.run.Pool.CopyFrom(ctx,
		pgx.Identifier{warehouse.SchemaStaging, "fact_disorder_events"},
		[]string{"event_id", "subject_id", "hadm_id", "event_datetime", "event_date",
			"careunit", "concept_id", "value_text", "value_number", "valueuom",
			"source_type", "junk_id", "provider_id"},
		pgx.CopyFromSlice(len(w.pending), func(i int) ([]any, error) {
			f := w.pending[i]
			return []any{f.EventID, f.SubjectID, f.HadmID, f.EventDatetime, f.EventDate,
				f.CareUnit, f.ConceptID, f.ValueText, f.ValueNumber, f.ValueUOM,
				f.SourceType, f.JunkID, f.ProviderID}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy facts: %w", err)
	}
	w.written += n
	w.pending = w.pending[:0]
	return nil
}

// buildFacts runs the three extraction passes into the staging fact table,
// then the post-pass backfills in their required order: unknown-concept,
// care unit, provider stay. The junk backfill runs later, after the junk
// dimension exists.
func (r *Run) buildFacts(ctx context.Context) error {
	if err := r.requires(StageConcepts, StageDimensions); err != nil {
		return err
	}

	w := newFactWriter(r)
	for _, pass := range []struct {
		name string
		fn   func(context.Context, *factWriter) error
	}{
		{"lab", r.extractLabEvents},
		{"diagnosis", r.extractDiagnoses},
		{"omr", r.extractMeasurements},
	} {
		before := w.written + int64(len(w.pending))
		if err := pass.fn(ctx, w); err != nil {
			return fmt.Errorf("%s pass: %w", pass.name, err)
		}
		r.Log.Info().
			Str("pass", pass.name).
			Int64("rows", w.written+int64(len(w.pending))-before).
			Msg("extraction pass done")
	}
	if err := w.flush(ctx); err != nil {
		return err
	}

	if err := r.backfillUnknownConcepts(ctx); err != nil {
		return err
	}
	if err := r.backfillCareUnits(ctx); err != nil {
		return err
	}
	return r.backfillProviderStays(ctx)
}

// extractLabEvents emits one fact per lab event carrying patient,
// admission and chart time. Value and unit are copied verbatim; the
// concept resolves by exact itemid match against the lab concepts.
func (r *Run) extractLabEvents(ctx context.Context, w *factWriter) error {
	rows, err := r.Pool.Query(ctx, fmt.Sprintf(
		`SELECT subject_id, hadm_id, itemid, charttime, value, valueuom
		   FROM %s.labevents
		  WHERE subject_id IS NOT NULL AND hadm_id IS NOT NULL AND charttime IS NOT NULL
		  ORDER BY labevent_id`,
		warehouse.SchemaSource))
	if err != nil {
		return fmt.Errorf("query labevents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			subjectID, hadmID int64
			itemid            *int64
			charttime         time.Time
			value, valueuom   *string
		)
		if err := rows.Scan(&subjectID, &hadmID, &itemid, &charttime, &value, &valueuom); err != nil {
			return fmt.Errorf("scan labevent: %w", err)
		}
		eventDate := charttime
		f := warehouse.Fact{
			SubjectID:     subjectID,
			HadmID:        &hadmID,
			EventDatetime: charttime,
			EventDate:     &eventDate,
			ValueText:     value,
			ValueUOM:      valueuom,
			SourceType:    warehouse.SourceLab,
		}
		if itemid != nil {
			f.ConceptID = r.concepts.labConcept(*itemid)
		}
		if err := w.add(ctx, f); err != nil {
			return err
		}
	}
	return rows.Err()
}

// extractDiagnoses emits one fact per coded diagnosis. Diagnoses carry no
// chart time of their own: the event time falls back to the admission's
// admit time via left join, and to the far-past sentinel when the
// admission itself is unresolved. The date-dimension key stays null.
func (r *Run) extractDiagnoses(ctx context.Context, w *factWriter) error {
	rows, err := r.Pool.Query(ctx, fmt.Sprintf(
		`SELECT d.subject_id, d.hadm_id, d.icd_code, a.admittime
		   FROM %[1]s.diagnoses_icd d
		   LEFT JOIN %[1]s.admissions a ON a.hadm_id = d.hadm_id
		  WHERE d.subject_id IS NOT NULL AND d.hadm_id IS NOT NULL
		  ORDER BY d.subject_id, d.hadm_id, d.seq_num`,
		warehouse.SchemaSource))
	if err != nil {
		return fmt.Errorf("query diagnoses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			subjectID, hadmID int64
			code              *string
			admittime         *time.Time
		)
		if err := rows.Scan(&subjectID, &hadmID, &code, &admittime); err != nil {
			return fmt.Errorf("scan diagnosis: %w", err)
		}
		eventTime := warehouse.SentinelPast
		if admittime != nil {
			eventTime = *admittime
		}
		f := warehouse.Fact{
			SubjectID:     subjectID,
			HadmID:        &hadmID,
			EventDatetime: eventTime,
			SourceType:    warehouse.SourceDiagnosis,
		}
		if code != nil {
			f.ConceptID = r.concepts.diagnosisConcept(*code)
		}
		if err := w.add(ctx, f); err != nil {
			return err
		}
	}
	return rows.Err()
}

// extractMeasurements emits one fact per free-text bedside measurement.
// The value parses to a number only when strictly decimal; the concept
// resolves by normalized name against the lab concepts. No admission,
// unit or care unit is populated at this stage.
func (r *Run) extractMeasurements(ctx context.Context, w *factWriter) error {
	rows, err := r.Pool.Query(ctx, fmt.Sprintf(
		`SELECT subject_id, chartdate, result_name, result_value
		   FROM %s.omr
		  WHERE subject_id IS NOT NULL AND chartdate IS NOT NULL
		  ORDER BY subject_id, chartdate, seq_num`,
		warehouse.SchemaSource))
	if err != nil {
		return fmt.Errorf("query omr: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			subjectID   int64
			chartdate   time.Time
			name, value *string
		)
		if err := rows.Scan(&subjectID, &chartdate, &name, &value); err != nil {
			return fmt.Errorf("scan omr: %w", err)
		}
		eventDate := chartdate
		f := warehouse.Fact{
			SubjectID:     subjectID,
			EventDatetime: chartdate,
			EventDate:     &eventDate,
			ValueText:     value,
			SourceType:    warehouse.SourceOMR,
		}
		if name != nil {
			f.ConceptID = r.concepts.labConceptByName(*name)
		}
		if value != nil {
			f.ValueNumber = parseNumeric(*value)
		}
		if err := w.add(ctx, f); err != nil {
			return err
		}
	}
	return rows.Err()
}

// backfillUnknownConcepts assigns the unknown sentinel to every fact the
// passes left unresolved. This is a post-hoc sweep over all three sources,
// not a join-level default.
func (r *Run) backfillUnknownConcepts(ctx context.Context) error {
	tag, err := r.Pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s.fact_disorder_events SET concept_id = $1 WHERE concept_id IS NULL`,
		warehouse.SchemaStaging), r.concepts.unknownID)
	if err != nil {
		return fmt.Errorf("backfill unknown concepts: %w", err)
	}
	r.Log.Info().Int64("rows", tag.RowsAffected()).Msg("unknown concepts assigned")
	return nil
}

// backfillCareUnits resolves each fact's care unit from the transfer
// record of the same patient and admission whose stay interval contains
// the event timestamp, bounds inclusive. When several stays overlap the
// timestamp the surviving match is whichever the update applied last; the
// tie-break is not deterministic and downstream code must not rely on it.
func (r *Run) backfillCareUnits(ctx context.Context) error {
	tag, err := r.Pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s.fact_disorder_events f
		    SET careunit = t.careunit
		   FROM %s.transfers t
		  WHERE t.subject_id = f.subject_id
		    AND t.hadm_id = f.hadm_id
		    AND f.event_datetime BETWEEN COALESCE(t.intime, $1) AND COALESCE(t.outtime, $2)`,
		warehouse.SchemaStaging, warehouse.SchemaSource),
		warehouse.SentinelPast, warehouse.SentinelFuture)
	if err != nil {
		return fmt.Errorf("backfill care units: %w", err)
	}
	r.Log.Info().Int64("rows", tag.RowsAffected()).Msg("care units backfilled")
	return nil
}

// backfillProviderStays links each fact to a provider-stay row by the same
// patient+admission+time-containment join, against the already-built
// staging dimension (a stable snapshot; nothing inserts into it during
// this update).
func (r *Run) backfillProviderStays(ctx context.Context) error {
	tag, err := r.Pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %[1]s.fact_disorder_events f
		    SET provider_id = p.provider_id
		   FROM %[1]s.dim_providers p
		  WHERE p.subject_id = f.subject_id
		    AND p.hadm_id = f.hadm_id
		    AND f.event_datetime BETWEEN p.intime AND p.outtime`,
		warehouse.SchemaStaging))
	if err != nil {
		return fmt.Errorf("backfill provider stays: %w", err)
	}
	r.Log.Info().Int64("rows", tag.RowsAffected()).Msg("provider stays backfilled")
	return nil
}
