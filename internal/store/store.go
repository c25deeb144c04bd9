// Package store persists trend runs and their annual series to SQLite, and
// exposes a live SQL debug console over the results database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

// DB wraps the results database.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the results database at path. Run
// MigrateUp before first use.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	return &DB{DB: db, path: path}, nil
}

// Run is one persisted trend run.
type Run struct {
	RunID           string
	StartedAt       time.Time
	DurationSeconds float64
	ParamsJSON      string
	RegionMeanSlope sql.NullFloat64 // degrees per year; NULL when undefined
	TotalChange     sql.NullFloat64 // degrees over the study span
}

// AnnualRow is one persisted (year, imageCount, meanLST) series entry.
// MeanLST is NULL for years that stayed missing after gap-filling.
type AnnualRow struct {
	Year       int
	ImageCount int
	MeanLST    sql.NullFloat64
}

// InsertRun records a completed run and its annual series in one
// transaction.
func (db *DB) InsertRun(ctx context.Context, run Run, series []AnnualRow) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trend_runs (run_id, started_unix_nanos, duration_seconds,
			params_json, region_mean_slope, total_change)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt.UnixNano(), run.DurationSeconds,
		run.ParamsJSON, run.RegionMeanSlope, run.TotalChange)
	if err != nil {
		return fmt.Errorf("insert trend run: %w", err)
	}
	for _, row := range series {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO annual_series (run_id, year, image_count, mean_lst)
			VALUES (?, ?, ?, ?)`,
			run.RunID, row.Year, row.ImageCount, row.MeanLST)
		if err != nil {
			return fmt.Errorf("insert annual row %d: %w", row.Year, err)
		}
	}
	return tx.Commit()
}

// AnnualSeries returns the persisted series of a run, ordered by year.
func (db *DB) AnnualSeries(ctx context.Context, runID string) ([]AnnualRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT year, image_count, mean_lst
		FROM annual_series WHERE run_id = ? ORDER BY year ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query annual series: %w", err)
	}
	defer rows.Close()

	var series []AnnualRow
	for rows.Next() {
		var row AnnualRow
		if err := rows.Scan(&row.Year, &row.ImageCount, &row.MeanLST); err != nil {
			return nil, fmt.Errorf("scan annual row: %w", err)
		}
		series = append(series, row)
	}
	return series, rows.Err()
}

// GetRun returns one persisted run by id.
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	var started int64
	err := db.QueryRowContext(ctx, `
		SELECT run_id, started_unix_nanos, duration_seconds, params_json,
			region_mean_slope, total_change
		FROM trend_runs WHERE run_id = ?`, runID).
		Scan(&run.RunID, &started, &run.DurationSeconds, &run.ParamsJSON,
			&run.RegionMeanSlope, &run.TotalChange)
	if err != nil {
		return nil, fmt.Errorf("query trend run: %w", err)
	}
	run.StartedAt = time.Unix(0, started).UTC()
	return &run, nil
}

// AttachAdminRoutes mounts a tailSQL console and debug handlers on mux so
// the results tables can be inspected live while long runs execute.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "LST trend results",
	})
	debug.Handle("tailsql/", "SQL console over trend results", tsql.NewMux())
}
