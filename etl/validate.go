package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"clinicaldw/warehouse"
)

// Check is one named quality-gate result. Every check is an advisory
// count against a zero (or equal) baseline; nothing here mutates data or
// aborts the pipeline.
type Check struct {
	Name     string `json:"name"`
	Actual   int64  `json:"actual"`
	Expected int64  `json:"expected"`
	Pass     bool   `json:"pass"`
}

// Report is the quality-gate output, consumed by an operator or a
// monitoring process.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Checks      []Check   `json:"checks"`
}

// Clean reports whether every check passed.
func (rep *Report) Clean() bool {
	for _, c := range rep.Checks {
		if !c.Pass {
			return false
		}
	}
	return true
}

// String renders the report as an operator-readable table.
func (rep *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "quality report (%s)\n", rep.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "%-42s %12s %12s %6s\n", "check", "actual", "expected", "pass")
	for _, c := range rep.Checks {
		status := "ok"
		if !c.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%-42s %12d %12d %6s\n", c.Name, c.Actual, c.Expected, status)
	}
	return b.String()
}

func (rep *Report) add(name string, actual, expected int64) {
	rep.Checks = append(rep.Checks, Check{
		Name:     name,
		Actual:   actual,
		Expected: expected,
		Pass:     actual == expected,
	})
}

// Validate runs the quality gate against the current staging and warehouse
// state. It is read-only and independently re-reads staging for the
// row-count reconciliation, so it works both directly after a run and as a
// standalone audit of an existing warehouse.
func Validate(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) (*Report, error) {
	rep := &Report{GeneratedAt: time.Now()}

	count := func(query string, args ...any) (int64, error) {
		var n int64
		err := pool.QueryRow(ctx, query, args...).Scan(&n)
		return n, err
	}

	// Row-count reconciliation: staging minus warehouse, per table. A
	// non-zero diff means promotion silently lost or duplicated rows.
	for _, table := range warehouse.StarTables() {
		stg, err := count(fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", warehouse.SchemaStaging, table))
		if err != nil {
			return nil, fmt.Errorf("count staging %s: %w", table, err)
		}
		dw, err := count(fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", warehouse.SchemaWarehouse, table))
		if err != nil {
			return nil, fmt.Errorf("count warehouse %s: %w", table, err)
		}
		rep.add("rowcount_diff:"+table, stg-dw, 0)
	}

	// Fact-vs-aggregate consistency. Sourceless events (null admission)
	// sit outside the aggregate, so both sides count admission-bound facts.
	factWithAdm, err := count(fmt.Sprintf(
		"SELECT COUNT(*) FROM %s.fact_disorder_events WHERE hadm_id IS NOT NULL",
		warehouse.SchemaWarehouse))
	if err != nil {
		return nil, fmt.Errorf("count admission facts: %w", err)
	}
	aggSum, err := count(fmt.Sprintf(
		"SELECT COALESCE(SUM(event_count), 0)::bigint FROM %s.agg_admission_summary",
		warehouse.SchemaWarehouse))
	if err != nil {
		return nil, fmt.Errorf("sum aggregate counts: %w", err)
	}
	rep.add("fact_vs_aggregate", factWithAdm, aggSum)

	// Orphan detection per foreign key. Non-zero after enforcement means
	// either an enforcer defect or a run that failed before enforcement.
	for _, fk := range factForeignKeys {
		nullGuard := ""
		if !fk.Mandatory {
			nullGuard = fmt.Sprintf("f.%s IS NOT NULL AND ", fk.Column)
		}
		orphans, err := count(fmt.Sprintf(
			`SELECT COUNT(*) FROM %[1]s.fact_disorder_events f
			  WHERE %[2]s NOT EXISTS (
			        SELECT 1 FROM %[1]s.%[3]s d WHERE d.%[4]s = f.%[5]s)`,
			warehouse.SchemaWarehouse, nullGuard, fk.DimTable, fk.DimColumn, fk.Column))
		if err != nil {
			return nil, fmt.Errorf("count %s orphans: %w", fk.Name, err)
		}
		rep.add("orphans:"+fk.Name, orphans, 0)
	}

	// Duplicate detection on natural keys that insert-if-absent steps
	// could double-populate against a non-pristine warehouse.
	dupChecks := []struct {
		name  string
		query string
	}{
		{"duplicates:dim_dates", fmt.Sprintf(
			`SELECT COUNT(*) FROM (SELECT event_date FROM %s.dim_dates
			  GROUP BY event_date HAVING COUNT(*) > 1) d`, warehouse.SchemaWarehouse)},
		{"duplicates:dim_junk", fmt.Sprintf(
			`SELECT COUNT(*) FROM (SELECT source_type, valueuom, careunit FROM %s.dim_junk
			  GROUP BY source_type, valueuom, careunit HAVING COUNT(*) > 1) d`, warehouse.SchemaWarehouse)},
		{"duplicates:dim_patients", fmt.Sprintf(
			`SELECT COUNT(*) FROM (SELECT subject_id FROM %s.dim_patients
			  GROUP BY subject_id HAVING COUNT(*) > 1) d`, warehouse.SchemaWarehouse)},
		{"duplicates:dim_admissions", fmt.Sprintf(
			`SELECT COUNT(*) FROM (SELECT hadm_id FROM %s.dim_admissions
			  GROUP BY hadm_id HAVING COUNT(*) > 1) d`, warehouse.SchemaWarehouse)},
	}
	for _, dc := range dupChecks {
		n, err := count(dc.query)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dc.name, err)
		}
		rep.add(dc.name, n, 0)
	}

	for _, c := range rep.Checks {
		ev := log.Info()
		if !c.Pass {
			ev = log.Warn()
		}
		ev.Str("check", c.Name).Int64("actual", c.Actual).Int64("expected", c.Expected).Msg("quality check")
	}
	return rep, nil
}
