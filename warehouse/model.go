// Package warehouse defines the star-schema row types shared by the ETL
// stages, the sentinel-date policy, and the DDL for the staging and
// warehouse schemas.
package warehouse

import "time"

// Sentinel bounds used when a source timestamp is missing. A null admit or
// interval start becomes SentinelPast, a null discharge or interval end
// becomes SentinelFuture, so every event stays joinable against the
// interval instead of falling out on a null boundary.
var (
	SentinelPast   = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	SentinelFuture = time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC)
)

// Source types carried on fact rows.
const (
	SourceLab       = "lab"
	SourceDiagnosis = "diagnosis"
	SourceOMR       = "omr"
)

// Concept types.
const (
	ConceptLab       = "lab"
	ConceptDiagnosis = "diagnosis"
	ConceptUnknown   = "unknown"
)

// Patient is one row of dim_patients. Immutable once loaded.
type Patient struct {
	SubjectID int64
	Gender    *string
	DOD       *time.Time
}

// Admission is one row of dim_admissions. Admit and Disch are always
// populated; missing source timestamps have already been defaulted to the
// sentinels, so Admit <= Disch holds by construction.
type Admission struct {
	HadmID        int64
	SubjectID     int64
	AdmissionType *string
	Admit         time.Time
	Disch         time.Time
	Insurance     *string
}

// ProviderStay is one care-unit stay interval, one row per source transfer
// record. Overlapping stays for the same patient are legitimate and kept.
type ProviderStay struct {
	ProviderID int64
	SubjectID  int64
	HadmID     *int64
	CareUnit   *string
	In         time.Time
	Out        time.Time
}

// Stay returns the occupancy interval with the stored (already sentinel
// defaulted) bounds.
func (p ProviderStay) Stay() Interval {
	return Interval{Start: &p.In, End: &p.Out}
}

// Concept is one row of dim_concepts.
type Concept struct {
	ConceptID   int64
	ConceptType string
	Name        string
	SourceCode  *string
	Description *string
}

// DateRow is one row of dim_dates, keyed by the exact event timestamp.
type DateRow struct {
	EventDate     time.Time
	Month         int
	Year          int
	WeekdayNumber int
	WeekdayName   string
	MonthName     string
	IsWeekend     bool
}

// JunkRow is one row of dim_junk: a surrogate id over one distinct
// (source type, unit, care unit) combination.
type JunkRow struct {
	JunkID int64
	Key    JunkKey
}

// Fact is one row of fact_disorder_events.
//
// EventDatetime is always set (sentinel defaulted for diagnoses with an
// unresolvable admission). EventDate is the nullable date-dimension key and
// carries only genuinely observed timestamps, never sentinels.
type Fact struct {
	EventID       int64
	SubjectID     int64
	HadmID        *int64
	EventDatetime time.Time
	EventDate     *time.Time
	CareUnit      *string
	ConceptID     *int64
	ValueText     *string
	ValueNumber   *float64
	ValueUOM      *string
	SourceType    string
	JunkID        *int64
	ProviderID    *int64
}

// AdmissionSummary is one row of agg_admission_summary, recomputed
// wholesale from the finalized fact table.
type AdmissionSummary struct {
	HadmID              int64
	EventCount          int64
	DistinctConcepts    int64
	DistinctSourceTypes int64
}
