// Package etl implements the warehouse build pipeline: concept resolution,
// dimension builds, event unification into the fact table, promotion,
// referential-integrity enforcement, aggregation and the quality gate.
package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"clinicaldw/warehouse"
)

// Stage identifies one pipeline stage. Stages run strictly in order; each
// one reads completed outputs of its predecessors.
type Stage string

const (
	StageReset      Stage = "reset"
	StageConcepts   Stage = "concepts"
	StageDimensions Stage = "dimensions"
	StageFacts      Stage = "facts"
	StageDates      Stage = "dates"
	StageJunk       Stage = "junk"
	StagePromote    Stage = "promote"
	StageEnforce    Stage = "enforce"
	StageAggregate  Stage = "aggregate"
)

// stageOrder is the canonical execution order. The junk build must follow
// the care-unit backfill inside the facts stage: junk triples include the
// backfilled care unit.
var stageOrder = []Stage{
	StageReset,
	StageConcepts,
	StageDimensions,
	StageFacts,
	StageDates,
	StageJunk,
	StagePromote,
	StageEnforce,
	StageAggregate,
}

// Run is one pipeline execution: a run id, the connection pool, and the
// set of completed stages. The pipeline is a single-writer batch job; a
// Run must not be shared across goroutines.
type Run struct {
	ID        uuid.UUID
	Started   time.Time
	Pool      *pgxpool.Pool
	Log       zerolog.Logger
	BatchSize int

	done     map[Stage]bool
	concepts *conceptIndex
}

func NewRun(pool *pgxpool.Pool, log zerolog.Logger, batchSize int) *Run {
	id := uuid.New()
	return &Run{
		ID:        id,
		Started:   time.Now(),
		Pool:      pool,
		Log:       log.With().Str("run_id", id.String()).Logger(),
		BatchSize: batchSize,
		done:      make(map[Stage]bool),
	}
}

// Completed reports whether the given stage has finished in this run.
func (r *Run) Completed(s Stage) bool { return r.done[s] }

// requires returns an error unless every listed stage already completed.
func (r *Run) requires(stages ...Stage) error {
	for _, s := range stages {
		if !r.done[s] {
			return fmt.Errorf("stage %q has not completed", s)
		}
	}
	return nil
}

// stage runs fn with start/finish logging and marks s complete on success.
func (r *Run) stage(ctx context.Context, s Stage, fn func(context.Context) error) error {
	log := r.Log.With().Str("stage", string(s)).Logger()
	log.Info().Msg("stage starting")
	start := time.Now()
	if err := fn(ctx); err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("stage failed")
		return fmt.Errorf("stage %s: %w", s, err)
	}
	r.done[s] = true
	log.Info().Dur("elapsed", time.Since(start)).Msg("stage done")
	return nil
}

// Execute runs the full pipeline. A failure leaves the warehouse partially
// populated; the quality gate detects that on a later validate.
func (r *Run) Execute(ctx context.Context) error {
	for _, s := range stageOrder {
		var fn func(context.Context) error
		switch s {
		case StageReset:
			fn = r.reset
		case StageConcepts:
			fn = r.buildConcepts
		case StageDimensions:
			fn = r.buildDimensions
		case StageFacts:
			fn = r.buildFacts
		case StageDates:
			fn = r.buildDates
		case StageJunk:
			fn = r.buildJunk
		case StagePromote:
			fn = r.promote
		case StageEnforce:
			fn = r.enforce
		case StageAggregate:
			fn = r.aggregate
		}
		if err := r.stage(ctx, s, fn); err != nil {
			return err
		}
	}
	r.Log.Info().Dur("elapsed", time.Since(r.Started)).Msg("pipeline complete")
	return nil
}

func (r *Run) reset(ctx context.Context) error {
	return warehouse.Reset(ctx, r.Pool)
}

// promote copies every staging star table into the warehouse schema.
// Identifiers are generated in staging and carried over unchanged, so both
// copies stay comparable for the quality gate's row-count reconciliation.
func (r *Run) promote(ctx context.Context) error {
	if err := r.requires(StageJunk); err != nil {
		return err
	}
	for _, table := range warehouse.StarTables() {
		tag, err := r.Pool.Exec(ctx, fmt.Sprintf(
			"INSERT INTO %s.%s SELECT * FROM %s.%s",
			warehouse.SchemaWarehouse, table, warehouse.SchemaStaging, table))
		if err != nil {
			return fmt.Errorf("promote %s: %w", table, err)
		}
		r.Log.Debug().Str("table", table).Int64("rows", tag.RowsAffected()).Msg("promoted")
	}
	return nil
}
