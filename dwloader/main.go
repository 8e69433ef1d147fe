// Command dwloader builds and validates the clinical disorder data
// warehouse from a raw hospital source database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"clinicaldw/config"
	"clinicaldw/etl"
)

func main() {
	root := &cobra.Command{
		Use:           "dwloader",
		Short:         "Clinical disorder data warehouse ETL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var seedDir string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load source-extract Parquet files into the source schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, pool, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			return etl.Seed(cmd.Context(), pool, log, seedDir, cfg.BatchSize)
		},
	}
	seedCmd.Flags().StringVar(&seedDir, "dir", "extracts", "directory holding <table>.parquet extract files")

	var skipValidate bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the full pipeline: build, promote, enforce, aggregate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, pool, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			run := etl.NewRun(pool, log, cfg.BatchSize)
			if err := run.Execute(cmd.Context()); err != nil {
				return err
			}
			if skipValidate {
				return nil
			}
			report, err := etl.Validate(cmd.Context(), pool, log)
			if err != nil {
				return err
			}
			fmt.Print(report.String())
			if !report.Clean() {
				log.Warn().Msg("quality gate reported non-zero counts; warehouse needs review")
			}
			return nil
		},
	}
	runCmd.Flags().BoolVar(&skipValidate, "skip-validate", false, "skip the quality gate after the pipeline")

	var asJSON bool
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the quality gate against the existing warehouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, pool, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			report, err := etl.Validate(cmd.Context(), pool, log)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Print(report.String())
			return nil
		},
	}
	validateCmd.Flags().BoolVar(&asJSON, "json", false, "emit the report as JSON")

	root.AddCommand(seedCmd, runCmd, validateCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads config, builds the logger and connects the pool.
func setup(ctx context.Context) (*config.Config, zerolog.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.LogJSON {
		log = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).With().Timestamp().Logger()
	}

	pool, err := newPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, log, nil, err
	}
	return cfg, log, pool, nil
}

func newPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
