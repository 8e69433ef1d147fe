package etl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"clinicaldw/warehouse"
)

// Source-extract row shapes, one per source table. Extract files are
// Parquet with these columns; optional (*T) fields use the native null
// bitmap.

type PatientExtract struct {
	SubjectID int64      `parquet:"subject_id"`
	Gender    *string    `parquet:"gender,optional"`
	DOD       *time.Time `parquet:"dod,optional,timestamp"`
}

type AdmissionExtract struct {
	SubjectID     int64      `parquet:"subject_id"`
	HadmID        int64      `parquet:"hadm_id"`
	AdmissionType *string    `parquet:"admission_type,optional"`
	AdmitTime     *time.Time `parquet:"admittime,optional,timestamp"`
	DischTime     *time.Time `parquet:"dischtime,optional,timestamp"`
	Insurance     *string    `parquet:"insurance,optional"`
}

type TransferExtract struct {
	TransferID int64      `parquet:"transfer_id"`
	SubjectID  int64      `parquet:"subject_id"`
	HadmID     *int64     `parquet:"hadm_id,optional"`
	CareUnit   *string    `parquet:"careunit,optional"`
	InTime     *time.Time `parquet:"intime,optional,timestamp"`
	OutTime    *time.Time `parquet:"outtime,optional,timestamp"`
}

type LabItemExtract struct {
	ItemID   int64   `parquet:"itemid"`
	Label    *string `parquet:"label,optional"`
	Fluid    *string `parquet:"fluid,optional"`
	Category *string `parquet:"category,optional"`
}

type LabEventExtract struct {
	LabEventID int64      `parquet:"labevent_id"`
	SubjectID  *int64     `parquet:"subject_id,optional"`
	HadmID     *int64     `parquet:"hadm_id,optional"`
	ItemID     *int64     `parquet:"itemid,optional"`
	ChartTime  *time.Time `parquet:"charttime,optional,timestamp"`
	Value      *string    `parquet:"value,optional"`
	ValueUOM   *string    `parquet:"valueuom,optional"`
}

type DiagnosisCodeExtract struct {
	ICDCode    string  `parquet:"icd_code"`
	ICDVersion int32   `parquet:"icd_version"`
	LongTitle  *string `parquet:"long_title,optional"`
}

type DiagnosisExtract struct {
	SubjectID  *int64  `parquet:"subject_id,optional"`
	HadmID     *int64  `parquet:"hadm_id,optional"`
	SeqNum     *int32  `parquet:"seq_num,optional"`
	ICDCode    *string `parquet:"icd_code,optional"`
	ICDVersion *int32  `parquet:"icd_version,optional"`
}

type MeasurementExtract struct {
	SubjectID   *int64     `parquet:"subject_id,optional"`
	ChartDate   *time.Time `parquet:"chartdate,optional,timestamp"`
	SeqNum      *int32     `parquet:"seq_num,optional"`
	ResultName  *string    `parquet:"result_name,optional"`
	ResultValue *string    `parquet:"result_value,optional"`
}

// Seed loads per-table Parquet extracts from dir into the source schema.
// Files are named <table>.parquet; missing files are skipped so partial
// extracts can be loaded incrementally.
func Seed(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, dir string, batchSize int) error {
	if err := warehouse.CreateSourceSchema(ctx, pool); err != nil {
		return err
	}

	loaders := []struct {
		table string
		load  func(context.Context, *pgxpool.Pool, string, int) (int64, error)
	}{
		{"patients", loadExtract[PatientExtract](
			[]string{"subject_id", "gender", "dod"},
			func(r *PatientExtract) []any { return []any{r.SubjectID, r.Gender, r.DOD} })},
		{"admissions", loadExtract[AdmissionExtract](
			[]string{"subject_id", "hadm_id", "admission_type", "admittime", "dischtime", "insurance"},
			func(r *AdmissionExtract) []any {
				return []any{r.SubjectID, r.HadmID, r.AdmissionType, r.AdmitTime, r.DischTime, r.Insurance}
			})},
		{"transfers", loadExtract[TransferExtract](
			[]string{"transfer_id", "subject_id", "hadm_id", "careunit", "intime", "outtime"},
			func(r *TransferExtract) []any {
				return []any{r.TransferID, r.SubjectID, r.HadmID, r.CareUnit, r.InTime, r.OutTime}
			})},
		{"d_labitems", loadExtract[LabItemExtract](
			[]string{"itemid", "label", "fluid", "category"},
			func(r *LabItemExtract) []any { return []any{r.ItemID, r.Label, r.Fluid, r.Category} })},
		{"labevents", loadExtract[LabEventExtract](
			[]string{"labevent_id", "subject_id", "hadm_id", "itemid", "charttime", "value", "valueuom"},
			func(r *LabEventExtract) []any {
				return []any{r.LabEventID, r.SubjectID, r.HadmID, r.ItemID, r.ChartTime, r.Value, r.ValueUOM}
			})},
		{"d_icd_diagnoses", loadExtract[DiagnosisCodeExtract](
			[]string{"icd_code", "icd_version", "long_title"},
			func(r *DiagnosisCodeExtract) []any { return []any{r.ICDCode, r.ICDVersion, r.LongTitle} })},
		{"diagnoses_icd", loadExtract[DiagnosisExtract](
			[]string{"subject_id", "hadm_id", "seq_num", "icd_code", "icd_version"},
			func(r *DiagnosisExtract) []any {
				return []any{r.SubjectID, r.HadmID, r.SeqNum, r.ICDCode, r.ICDVersion}
			})},
		{"omr", loadExtract[MeasurementExtract](
			[]string{"subject_id", "chartdate", "seq_num", "result_name", "result_value"},
			func(r *MeasurementExtract) []any {
				return []any{r.SubjectID, r.ChartDate, r.SeqNum, r.ResultName, r.ResultValue}
			})},
	}

	for _, l := range loaders {
		path := filepath.Join(dir, l.table+".parquet")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Debug().Str("table", l.table).Msg("no extract file, skipping")
			continue
		}
		start := time.Now()
		n, err := l.load(ctx, pool, path, batchSize)
		if err != nil {
			return fmt.Errorf("seed %s: %w", l.table, err)
		}
		log.Info().
			Str("table", l.table).
			Int64("rows", n).
			Dur("elapsed", time.Since(start)).
			Msg("source table seeded")
	}
	return nil
}

// loadExtract returns a loader that streams one Parquet extract into one
// source table via COPY, in read batches.
func loadExtract[T any](columns []string, values func(*T) []any) func(context.Context, *pgxpool.Pool, string, int) (int64, error) {
	return func(ctx context.Context, pool *pgxpool.Pool, path string, batchSize int) (int64, error) {
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("open parquet: %w", err)
		}
		defer f.Close()

		reader := parquet.NewGenericReader[T](f)
		defer reader.Close()

		base := filepath.Base(path)
		table := pgx.Identifier{warehouse.SchemaSource,
			strings.TrimSuffix(base, filepath.Ext(base))}

		buf := make([]T, batchSize)
		var total int64
		for {
			n, readErr := reader.Read(buf)
			if n > 0 {
				rows := buf[:n]
				copied, err := pool.CopyFrom(ctx, table, columns,
					pgx.CopyFromSlice(n, func(i int) ([]any, error) {
						return values(&rows[i]), nil
					}))
				if err != nil {
					return total, fmt.Errorf("copy batch: %w", err)
				}
				total += copied
			}
			if readErr != nil {
				if readErr == io.EOF {
					break
				}
				return total, fmt.Errorf("read parquet: %w", readErr)
			}
		}
		return total, nil
	}
}
