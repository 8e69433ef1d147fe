package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"clinicaldw/warehouse"
)

// buildDimensions builds the patient, admission and provider-stay
// dimensions in staging. The date and junk dimensions are separate later
// stages because they derive from the fact stream.
func (r *Run) buildDimensions(ctx context.Context) error {
	if err := r.requires(StageReset); err != nil {
		return err
	}
	if err := r.buildPatients(ctx); err != nil {
		return err
	}
	if err := r.buildAdmissions(ctx); err != nil {
		return err
	}
	return r.buildProviderStays(ctx)
}

// buildPatients is a straight projection of source patients, deduplicated
// by subject_id.
func (r *Run) buildPatients(ctx context.Context) error {
	rows, err := r.Pool.Query(ctx, fmt.Sprintf(
		`SELECT subject_id, gender, dod FROM %s.patients ORDER BY subject_id`,
		warehouse.SchemaSource))
	if err != nil {
		return fmt.Errorf("query patients: %w", err)
	}
	seen := make(map[int64]bool)
	var patients []warehouse.Patient
	for rows.Next() {
		var p warehouse.Patient
		if err := rows.Scan(&p.SubjectID, &p.Gender, &p.DOD); err != nil {
			rows.Close()
			return fmt.Errorf("scan patient: %w", err)
		}
		if seen[p.SubjectID] {
			continue
		}
		seen[p.SubjectID] = true
		patients = append(patients, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read patients: %w", err)
	}

	_, err = r.Pool.CopyFrom(ctx,
		pgx.Identifier{warehouse.SchemaStaging, "dim_patients"},
		[]string{"subject_id", "gender", "dod"},
		pgx.CopyFromSlice(len(patients), func(i int) ([]any, error) {
			p := patients[i]
			return []any{p.SubjectID, p.Gender, p.DOD}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy dim_patients: %w", err)
	}
	r.Log.Info().Int("rows", len(patients)).Msg("patient dimension built")
	return nil
}

// buildAdmissions projects source admissions with sentinel defaulting of
// missing admit/discharge times, deduplicated by hadm_id.
func (r *Run) buildAdmissions(ctx context.Context) error {
	rows, err := r.Pool.Query(ctx, fmt.Sprintf(
		`SELECT hadm_id, subject_id, admission_type, admittime, dischtime, insurance
		   FROM %s.admissions ORDER BY hadm_id`,
		warehouse.SchemaSource))
	if err != nil {
		return fmt.Errorf("query admissions: %w", err)
	}
	seen := make(map[int64]bool)
	var admissions []warehouse.Admission
	for rows.Next() {
		var (
			a            warehouse.Admission
			admit, disch *time.Time
		)
		if err := rows.Scan(&a.HadmID, &a.SubjectID, &a.AdmissionType, &admit, &disch, &a.Insurance); err != nil {
			rows.Close()
			return fmt.Errorf("scan admission: %w", err)
		}
		if seen[a.HadmID] {
			continue
		}
		seen[a.HadmID] = true
		a.Admit, a.Disch = warehouse.Interval{Start: admit, End: disch}.Bounds()
		admissions = append(admissions, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read admissions: %w", err)
	}

	_, err = r.Pool.CopyFrom(ctx,
		pgx.Identifier{warehouse.SchemaStaging, "dim_admissions"},
		[]string{"hadm_id", "subject_id", "admission_type", "admittime", "dischtime", "insurance"},
		pgx.CopyFromSlice(len(admissions), func(i int) ([]any, error) {
			a := admissions[i]
			return []any{a.HadmID, a.SubjectID, a.AdmissionType, a.Admit, a.Disch, a.Insurance}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy dim_admissions: %w", err)
	}
	r.Log.Info().Int("rows", len(admissions)).Msg("admission dimension built")
	return nil
}

// buildProviderStays emits one row per source transfer record, surrogate
// keyed in read order. Overlapping stays per patient occur in source data
// and are kept as-is.
func (r *Run) buildProviderStays(ctx context.Context) error {
	rows, err := r.Pool.Query(ctx, fmt.Sprintf(
		`SELECT subject_id, hadm_id, careunit, intime, outtime FROM %s.transfers ORDER BY transfer_id`,
		warehouse.SchemaSource))
	if err != nil {
		return fmt.Errorf("query transfers: %w", err)
	}
	var stays []warehouse.ProviderStay
	nextID := int64(1)
	for rows.Next() {
		var (
			s       warehouse.ProviderStay
			in, out *time.Time
		)
		if err := rows.Scan(&s.SubjectID, &s.HadmID, &s.CareUnit, &in, &out); err != nil {
			rows.Close()
			return fmt.Errorf("scan transfer: %w", err)
		}
		s.ProviderID = nextID
		s.In, s.Out = warehouse.Interval{Start: in, End: out}.Bounds()
		stays = append(stays, s)
		nextID++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read transfers: %w", err)
	}

	_, err = r.Pool.CopyFrom(ctx,
		pgx.Identifier{warehouse.SchemaStaging, "dim_providers"},
		[]string{"provider_id", "subject_id", "hadm_id", "careunit", "intime", "outtime"},
		pgx.CopyFromSlice(len(stays), func(i int) ([]any, error) {
			s := stays[i]
			return []any{s.ProviderID, s.SubjectID, s.HadmID, s.CareUnit, s.In, s.Out}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy dim_providers: %w", err)
	}
	r.Log.Info().Int("rows", len(stays)).Msg("provider-stay dimension built")
	return nil
}

// buildDates populates the date dimension from timestamps the fact stream
// actually produced. Only timestamps not already present are inserted, so
// a re-run against a populated warehouse adds nothing.
func (r *Run) buildDates(ctx context.Context) error {
	if err := r.requires(StageFacts); err != nil {
		return err
	}
	rows, err := r.Pool.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT f.event_date
		   FROM %[1]s.fact_disorder_events f
		  WHERE f.event_date IS NOT NULL
		    AND NOT EXISTS (SELECT 1 FROM %[1]s.dim_dates d WHERE d.event_date = f.event_date)
		  ORDER BY f.event_date`,
		warehouse.SchemaStaging))
	if err != nil {
		return fmt.Errorf("query new event dates: %w", err)
	}
	var dates []warehouse.DateRow
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return fmt.Errorf("scan event date: %w", err)
		}
		dates = append(dates, warehouse.CalendarFor(t))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read event dates: %w", err)
	}

	_, err = r.Pool.CopyFrom(ctx,
		pgx.Identifier{warehouse.SchemaStaging, "dim_dates"},
		[]string{"event_date", "month", "year", "weekday_number", "weekday_name", "month_name", "is_weekend"},
		pgx.CopyFromSlice(len(dates), func(i int) ([]any, error) {
			d := dates[i]
			return []any{d.EventDate, d.Month, d.Year, d.WeekdayNumber, d.WeekdayName, d.MonthName, d.IsWeekend}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy dim_dates: %w", err)
	}
	r.Log.Info().Int("rows", len(dates)).Msg("date dimension built")
	return nil
}

// buildJunk computes the junk dimension as the distinct (source type,
// unit, care unit) triples observed on fact rows, null-safe, insert-if-
// absent, then links every fact row back to its junk row.
func (r *Run) buildJunk(ctx context.Context) error {
	if err := r.requires(StageFacts, StageDates); err != nil {
		return err
	}

	var maxID int64
	if err := r.Pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT COALESCE(MAX(junk_id), 0) FROM %s.dim_junk`,
		warehouse.SchemaStaging)).Scan(&maxID); err != nil {
		return fmt.Errorf("max junk id: %w", err)
	}

	rows, err := r.Pool.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT f.source_type, f.valueuom, f.careunit
		   FROM %[1]s.fact_disorder_events f
		  WHERE NOT EXISTS (
		        SELECT 1 FROM %[1]s.dim_junk j
		         WHERE j.source_type = f.source_type
		           AND j.valueuom IS NOT DISTINCT FROM f.valueuom
		           AND j.careunit IS NOT DISTINCT FROM f.careunit)
		  ORDER BY f.source_type, f.valueuom, f.careunit`,
		warehouse.SchemaStaging))
	if err != nil {
		return fmt.Errorf("query junk triples: %w", err)
	}
	var junk []warehouse.JunkRow
	seen := make(map[string]bool)
	nextID := maxID + 1
	for rows.Next() {
		var key warehouse.JunkKey
		if err := rows.Scan(&key.SourceType, &key.ValueUOM, &key.CareUnit); err != nil {
			rows.Close()
			return fmt.Errorf("scan junk triple: %w", err)
		}
		if seen[key.CacheKey()] {
			continue
		}
		seen[key.CacheKey()] = true
		junk = append(junk, warehouse.JunkRow{JunkID: nextID, Key: key})
		nextID++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read junk triples: %w", err)
	}

	_, err = r.Pool.CopyFrom(ctx,
		pgx.Identifier{warehouse.SchemaStaging, "dim_junk"},
		[]string{"junk_id", "source_type", "valueuom", "careunit"},
		pgx.CopyFromSlice(len(junk), func(i int) ([]any, error) {
			j := junk[i]
			return []any{j.JunkID, j.Key.SourceType, j.Key.ValueUOM, j.Key.CareUnit}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy dim_junk: %w", err)
	}

	// Link facts back via the same null-safe triple match.
	tag, err := r.Pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %[1]s.fact_disorder_events f
		    SET junk_id = j.junk_id
		   FROM %[1]s.dim_junk j
		  WHERE j.source_type = f.source_type
		    AND j.valueuom IS NOT DISTINCT FROM f.valueuom
		    AND j.careunit IS NOT DISTINCT FROM f.careunit`,
		warehouse.SchemaStaging))
	if err != nil {
		return fmt.Errorf("backfill junk ids: %w", err)
	}
	r.Log.Info().
		Int("rows", len(junk)).
		Int64("facts_linked", tag.RowsAffected()).
		Msg("junk dimension built")
	return nil
}
