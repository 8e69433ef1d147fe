package etl

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"clinicaldw/warehouse"
)

// Keyword allow-lists selecting the electrolyte / acid-base rows of the two
// source vocabularies. Matching is a case-insensitive substring test; the
// lab and diagnosis lists are scoped to their own catalog, so overlapping
// keywords across lists cannot collide.
var (
	labConceptKeywords = []string{
		"sodium",
		"potassium",
		"chloride",
		"bicarbonate",
		"calcium",
		"magnesium",
		"phosphate",
		"lactate",
		"anion gap",
		"osmolality",
		"base excess",
		"pco2",
		"ph",
	}

	diagnosisConceptKeywords = []string{
		"hyponatremia",
		"hypernatremia",
		"hypo-osmolality",
		"hyperosmolality",
		"hypokalemia",
		"hyperkalemia",
		"hypocalcemia",
		"hypercalcemia",
		"hypomagnesemia",
		"hypermagnesemia",
		"acidosis",
		"alkalosis",
		"dehydration",
		"hypovolemia",
		"fluid overload",
		"electrolyte",
	}
)

// matchesAny reports whether name contains any keyword, case-insensitively.
func matchesAny(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// normalizeName canonicalizes a free-text measurement name for matching:
// trimmed and case-folded.
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// conceptIndex resolves source events to concept surrogate ids. Lab events
// match by exact itemid, diagnoses by exact ICD code, free-text
// measurements by normalized name against the lab concepts. Anything else
// falls back to the unknown sentinel after the extraction passes.
type conceptIndex struct {
	labByCode  map[int64]int64
	diagByCode map[string]int64
	labByName  map[string]int64
	unknownID  int64
}

func (ix *conceptIndex) labConcept(itemid int64) *int64 {
	if id, ok := ix.labByCode[itemid]; ok {
		return &id
	}
	return nil
}

func (ix *conceptIndex) diagnosisConcept(code string) *int64 {
	if id, ok := ix.diagByCode[code]; ok {
		return &id
	}
	return nil
}

func (ix *conceptIndex) labConceptByName(name string) *int64 {
	if id, ok := ix.labByName[normalizeName(name)]; ok {
		return &id
	}
	return nil
}

// buildConcepts populates staging.dim_concepts from the lab and diagnosis
// catalogs plus exactly one unknown sentinel row, and keeps the in-memory
// resolution index for the extraction passes.
func (r *Run) buildConcepts(ctx context.Context) error {
	if err := r.requires(StageReset); err != nil {
		return err
	}

	ix := &conceptIndex{
		labByCode:  make(map[int64]int64),
		diagByCode: make(map[string]int64),
		labByName:  make(map[string]int64),
	}
	var concepts []warehouse.Concept
	nextID := int64(1)

	rows, err := r.Pool.Query(ctx, fmt.Sprintf(
		`SELECT itemid, label, fluid, category FROM %s.d_labitems WHERE label IS NOT NULL ORDER BY itemid`,
		warehouse.SchemaSource))
	if err != nil {
		return fmt.Errorf("query lab catalog: %w", err)
	}
	for rows.Next() {
		var (
			itemid          int64
			label           string
			fluid, category *string
		)
		if err := rows.Scan(&itemid, &label, &fluid, &category); err != nil {
			rows.Close()
			return fmt.Errorf("scan lab catalog: %w", err)
		}
		if !matchesAny(label, labConceptKeywords) {
			continue
		}
		code := strconv.FormatInt(itemid, 10)
		c := warehouse.Concept{
			ConceptID:   nextID,
			ConceptType: warehouse.ConceptLab,
			Name:        label,
			SourceCode:  &code,
			Description: describeLabItem(fluid, category),
		}
		concepts = append(concepts, c)
		ix.labByCode[itemid] = c.ConceptID
		if key := normalizeName(label); key != "" {
			if _, exists := ix.labByName[key]; !exists {
				ix.labByName[key] = c.ConceptID
			}
		}
		nextID++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read lab catalog: %w", err)
	}

	rows, err = r.Pool.Query(ctx, fmt.Sprintf(
		`SELECT icd_code, long_title FROM %s.d_icd_diagnoses WHERE long_title IS NOT NULL ORDER BY icd_code, icd_version`,
		warehouse.SchemaSource))
	if err != nil {
		return fmt.Errorf("query diagnosis catalog: %w", err)
	}
	for rows.Next() {
		var code, title string
		if err := rows.Scan(&code, &title); err != nil {
			rows.Close()
			return fmt.Errorf("scan diagnosis catalog: %w", err)
		}
		if !matchesAny(title, diagnosisConceptKeywords) {
			continue
		}
		// The same code can appear under several ICD versions; the first
		// matching title wins for resolution, every row becomes a concept.
		c := warehouse.Concept{
			ConceptID:   nextID,
			ConceptType: warehouse.ConceptDiagnosis,
			Name:        title,
			SourceCode:  &code,
			Description: &title,
		}
		concepts = append(concepts, c)
		if _, exists := ix.diagByCode[code]; !exists {
			ix.diagByCode[code] = c.ConceptID
		}
		nextID++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read diagnosis catalog: %w", err)
	}

	// Exactly one unknown sentinel; the fallback target for any event that
	// cannot be matched by code or name.
	unknownDesc := "fallback concept for unmatched events"
	concepts = append(concepts, warehouse.Concept{
		ConceptID:   nextID,
		ConceptType: warehouse.ConceptUnknown,
		Name:        "Unknown",
		Description: &unknownDesc,
	})
	ix.unknownID = nextID

	_, err = r.Pool.CopyFrom(ctx,
		pgx.Identifier{warehouse.SchemaStaging, "dim_concepts"},
		[]string{"concept_id", "concept_type", "concept_name", "source_code", "description"},
		pgx.CopyFromSlice(len(concepts), func(i int) ([]any, error) {
			c := concepts[i]
			return []any{c.ConceptID, c.ConceptType, c.Name, c.SourceCode, c.Description}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy dim_concepts: %w", err)
	}

	r.concepts = ix
	r.Log.Info().
		Int("lab", len(ix.labByCode)).
		Int("diagnosis", len(ix.diagByCode)).
		Msg("concept dimension built")
	return nil
}

func describeLabItem(fluid, category *string) *string {
	var parts []string
	if fluid != nil && *fluid != "" {
		parts = append(parts, *fluid)
	}
	if category != nil && *category != "" {
		parts = append(parts, *category)
	}
	if len(parts) == 0 {
		return nil
	}
	desc := strings.Join(parts, " / ")
	return &desc
}
