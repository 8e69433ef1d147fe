package warehouse

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// SchemaStaging and SchemaWarehouse name the two star-schema copies. The
// pipeline builds staging, promotes it into the warehouse, and the quality
// gate reads both.
const (
	SchemaStaging   = "staging"
	SchemaWarehouse = "dw"
	SchemaSource    = "source"
)

// Execer is the subset of pgx connection behaviour the DDL helpers need.
// *pgxpool.Pool, pgx.Tx and *pgx.Conn all satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// starTables lists every star-schema table present in both staging and dw,
// in dependency-safe creation order. The quality gate reconciles row counts
// over exactly this list.
var starTables = []string{
	"dim_patients",
	"dim_admissions",
	"dim_providers",
	"dim_concepts",
	"dim_dates",
	"dim_junk",
	"fact_disorder_events",
}

// StarTables returns the star-schema table names common to staging and dw.
func StarTables() []string {
	out := make([]string, len(starTables))
	copy(out, starTables)
	return out
}

func starDDL(schema string) string {
	return fmt.Sprintf(`
CREATE TABLE %[1]s.dim_patients (
    subject_id  BIGINT PRIMARY KEY,
    gender      TEXT,
    dod         TIMESTAMP
);
CREATE TABLE %[1]s.dim_admissions (
    hadm_id         BIGINT PRIMARY KEY,
    subject_id      BIGINT NOT NULL,
    admission_type  TEXT,
    admittime       TIMESTAMP NOT NULL,
    dischtime       TIMESTAMP NOT NULL,
    insurance       TEXT
);
CREATE TABLE %[1]s.dim_providers (
    provider_id  BIGINT PRIMARY KEY,
    subject_id   BIGINT NOT NULL,
    hadm_id      BIGINT,
    careunit     TEXT,
    intime       TIMESTAMP NOT NULL,
    outtime      TIMESTAMP NOT NULL
);
CREATE TABLE %[1]s.dim_concepts (
    concept_id    BIGINT PRIMARY KEY,
    concept_type  TEXT NOT NULL,
    concept_name  TEXT NOT NULL,
    source_code   TEXT,
    description   TEXT
);
CREATE TABLE %[1]s.dim_dates (
    event_date      TIMESTAMP PRIMARY KEY,
    month           INT NOT NULL,
    year            INT NOT NULL,
    weekday_number  INT NOT NULL,
    weekday_name    TEXT NOT NULL,
    month_name      TEXT NOT NULL,
    is_weekend      BOOLEAN NOT NULL
);
CREATE TABLE %[1]s.dim_junk (
    junk_id      BIGINT PRIMARY KEY,
    source_type  TEXT NOT NULL,
    valueuom     TEXT,
    careunit     TEXT
);
CREATE TABLE %[1]s.fact_disorder_events (
    event_id        BIGINT PRIMARY KEY,
    subject_id      BIGINT NOT NULL,
    hadm_id         BIGINT,
    event_datetime  TIMESTAMP NOT NULL,
    event_date      TIMESTAMP,
    careunit        TEXT,
    concept_id      BIGINT,
    value_text      TEXT,
    value_number    DOUBLE PRECISION,
    valueuom        TEXT,
    source_type     TEXT NOT NULL,
    junk_id         BIGINT,
    provider_id     BIGINT
);`, schema)
}

const aggDDL = `
CREATE TABLE ` + SchemaWarehouse + `.agg_admission_summary (
    hadm_id               BIGINT PRIMARY KEY,
    event_count           BIGINT NOT NULL,
    distinct_concepts     BIGINT NOT NULL,
    distinct_source_types BIGINT NOT NULL
);`

// Reset drops and recreates the staging and warehouse schemas. Every
// pipeline run is a full rebuild; there is no update-in-place.
func Reset(ctx context.Context, db Execer) error {
	for _, schema := range []string{SchemaStaging, SchemaWarehouse} {
		if _, err := db.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
			return fmt.Errorf("drop schema %s: %w", schema, err)
		}
		if _, err := db.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema)); err != nil {
			return fmt.Errorf("create schema %s: %w", schema, err)
		}
		if _, err := db.Exec(ctx, starDDL(schema)); err != nil {
			return fmt.Errorf("create star tables in %s: %w", schema, err)
		}
	}
	if _, err := db.Exec(ctx, aggDDL); err != nil {
		return fmt.Errorf("create aggregate table: %w", err)
	}
	return nil
}

// CreateSourceSchema creates the raw source tables. Production runs point
// at a pre-existing hospital database; this exists for the seeder and for
// tests.
func CreateSourceSchema(ctx context.Context, db Execer) error {
	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %[1]s;
CREATE TABLE IF NOT EXISTS %[1]s.patients (
    subject_id  BIGINT PRIMARY KEY,
    gender      TEXT,
    dod         TIMESTAMP
);
CREATE TABLE IF NOT EXISTS %[1]s.admissions (
    subject_id      BIGINT NOT NULL,
    hadm_id         BIGINT PRIMARY KEY,
    admission_type  TEXT,
    admittime       TIMESTAMP,
    dischtime       TIMESTAMP,
    insurance       TEXT
);
CREATE TABLE IF NOT EXISTS %[1]s.transfers (
    transfer_id  BIGINT PRIMARY KEY,
    subject_id   BIGINT NOT NULL,
    hadm_id      BIGINT,
    careunit     TEXT,
    intime       TIMESTAMP,
    outtime      TIMESTAMP
);
CREATE TABLE IF NOT EXISTS %[1]s.d_labitems (
    itemid    BIGINT PRIMARY KEY,
    label     TEXT,
    fluid     TEXT,
    category  TEXT
);
CREATE TABLE IF NOT EXISTS %[1]s.labevents (
    labevent_id  BIGINT PRIMARY KEY,
    subject_id   BIGINT,
    hadm_id      BIGINT,
    itemid       BIGINT,
    charttime    TIMESTAMP,
    value        TEXT,
    valueuom     TEXT
);
CREATE TABLE IF NOT EXISTS %[1]s.d_icd_diagnoses (
    icd_code     TEXT NOT NULL,
    icd_version  INT NOT NULL,
    long_title   TEXT,
    PRIMARY KEY (icd_code, icd_version)
);
CREATE TABLE IF NOT EXISTS %[1]s.diagnoses_icd (
    subject_id   BIGINT,
    hadm_id      BIGINT,
    seq_num      INT,
    icd_code     TEXT,
    icd_version  INT
);
CREATE TABLE IF NOT EXISTS %[1]s.omr (
    subject_id    BIGINT,
    chartdate     TIMESTAMP,
    seq_num       INT,
    result_name   TEXT,
    result_value  TEXT
);`, SchemaSource)
	if _, err := db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create source schema: %w", err)
	}
	return nil
}
