package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/beaverzip/appraise/internal/pipeline"
	"github.com/beaverzip/appraise/internal/report"
)

// createSchema creates the tables this tool needs if missing. The
// survey application's own tables (users, scores, responses, questions)
// start with their meta columns only; per-competency and per-question
// columns are added by the survey side as ALTER TABLE statements.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			unit TEXT,
			rank TEXT,
			role TEXT NOT NULL,
			email TEXT
		);

		CREATE TABLE IF NOT EXISTS scores (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			to_username TEXT NOT NULL,
			grade TEXT,
			total REAL,
			created_at TEXT
		);

		CREATE TABLE IF NOT EXISTS responses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			to_username TEXT NOT NULL,
			created_at TEXT
		);

		CREATE TABLE IF NOT EXISTS questions (
			key TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			text TEXT NOT NULL
		);

		-- Run history written by this tool
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS artifacts (
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			employee_id TEXT NOT NULL,
			path TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			PRIMARY KEY (run_id, employee_id)
		);
	`

	_, err := db.Exec(schema)
	return err
}

// RecordRun persists a batch summary and its artifacts.
func (s *Store) RecordRun(ctx context.Context, summary pipeline.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting run transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, total, succeeded, failed, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		summary.RunID,
		time.Now().Add(-summary.Elapsed).UTC().Format(time.RFC3339),
		summary.Total, summary.Succeeded, summary.Failed,
		summary.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", summary.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO artifacts (run_id, employee_id, path, generated_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing artifact insert: %w", err)
	}
	defer stmt.Close()

	for _, art := range summary.Artifacts {
		if _, err := stmt.ExecContext(ctx, summary.RunID, art.EmployeeID,
			art.Path, art.GeneratedAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("inserting artifact for %s: %w", art.EmployeeID, err)
		}
	}

	return tx.Commit()
}

// RunHistory is one recorded batch run.
type RunHistory struct {
	RunID     string
	StartedAt string
	Total     int
	Succeeded int
	Failed    int
	ElapsedMS int64
	Artifacts int
}

// LatestRunID returns the most recent recorded run, or "" when none
// exists.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("finding latest run: %w", err)
	}
	return runID, nil
}

// Artifacts returns the artifacts recorded for one run, employee-sorted.
func (s *Store) Artifacts(ctx context.Context, runID string) ([]report.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, path, generated_at
		FROM artifacts WHERE run_id = ? ORDER BY employee_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts for %s: %w", runID, err)
	}
	defer rows.Close()

	var artifacts []report.Artifact
	for rows.Next() {
		var art report.Artifact
		var generated string
		if err := rows.Scan(&art.EmployeeID, &art.Path, &generated); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, generated); err == nil {
			art.GeneratedAt = ts
		}
		artifacts = append(artifacts, art)
	}
	return artifacts, rows.Err()
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.started_at, r.total, r.succeeded, r.failed, r.elapsed_ms,
		       COUNT(a.employee_id)
		FROM runs r
		LEFT JOIN artifacts a ON a.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunHistory
	for rows.Next() {
		var r RunHistory
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.Total, &r.Succeeded,
			&r.Failed, &r.ElapsedMS, &r.Artifacts); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
