package etl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
)

func writeParquet[T any](t *testing.T, path string, rows []T) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	w := parquet.NewGenericWriter[T](f)
	if _, err := w.Write(rows); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func TestSeedLoadsParquetExtracts(t *testing.T) {
	if testing.Short() {
		t.Skip("embedded postgres test")
	}
	tdb := setupTestDB(t)
	defer tdb.teardown()

	dir := t.TempDir()
	gender := "F"
	label := "Sodium"
	charttime := time.Date(2180, 5, 2, 6, 0, 0, 0, time.UTC)
	subject := int64(101)
	hadm := int64(1001)
	item := int64(50983)
	value := "140"
	uom := "mEq/L"

	writeParquet(t, filepath.Join(dir, "patients.parquet"), []PatientExtract{
		{SubjectID: 101, Gender: &gender},
		{SubjectID: 102},
	})
	writeParquet(t, filepath.Join(dir, "d_labitems.parquet"), []LabItemExtract{
		{ItemID: 50983, Label: &label},
	})
	writeParquet(t, filepath.Join(dir, "labevents.parquet"), []LabEventExtract{
		{LabEventID: 1, SubjectID: &subject, HadmID: &hadm, ItemID: &item, ChartTime: &charttime, Value: &value, ValueUOM: &uom},
	})

	ctx := context.Background()
	if err := Seed(ctx, tdb.pool, zerolog.Nop(), dir, 500); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if n := countRows(t, tdb.pool, `SELECT COUNT(*) FROM source.patients`); n != 2 {
		t.Errorf("patients = %d, want 2", n)
	}
	if n := countRows(t, tdb.pool, `SELECT COUNT(*) FROM source.d_labitems`); n != 1 {
		t.Errorf("d_labitems = %d, want 1", n)
	}

	var (
		gotValue string
		gotChart time.Time
	)
	if err := tdb.pool.QueryRow(ctx,
		`SELECT value, charttime FROM source.labevents WHERE labevent_id = 1`).
		Scan(&gotValue, &gotChart); err != nil {
		t.Fatalf("labevent: %v", err)
	}
	if gotValue != "140" || !gotChart.Equal(charttime) {
		t.Errorf("labevent round-trip: value %q charttime %v", gotValue, gotChart)
	}

	// Tables without extract files stay untouched.
	if n := countRows(t, tdb.pool, `SELECT COUNT(*) FROM source.omr`); n != 0 {
		t.Errorf("omr = %d, want 0", n)
	}
}
