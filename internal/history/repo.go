package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/vbsb/internal/apperr"
	"github.com/starford/vbsb/internal/models"
)

// Build is a row in the builds table.
type Build struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Units      int       `json:"units"`
	Failures   int       `json:"failures"`
	Bundled    bool      `json:"bundled"`
	Skipped    string    `json:"skipped,omitempty"`
	Output     string    `json:"output,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	Bytes      int64     `json:"bytes"`
	WriteError string    `json:"write_error,omitempty"`
}

// Failure is a row in the build_failures table.
type Failure struct {
	BuildID      int64  `json:"build_id"`
	Path         string `json:"path"`
	RelativePath string `json:"relative_path"`
	Kind         string `json:"kind"`
	Line         int    `json:"line"`
	Column       int    `json:"column"`
	Message      string `json:"message"`
	Snippet      string `json:"snippet,omitempty"`
}

const buildColumns = `id, started_at, duration_ms, units, failures, bundled, skipped, output, checksum, bytes, write_error`

// Record stores a cycle result and its failures in one transaction and
// returns the new build id.
func (db *DB) Record(ctx context.Context, res *models.CycleResult) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	r, err := tx.ExecContext(ctx, `
		INSERT INTO builds (started_at, duration_ms, units, failures, bundled, skipped, output, checksum, bytes, write_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.StartedAt.UTC(), res.Duration.Milliseconds(), res.Units, res.Failures, res.Bundled,
		res.Skipped, res.Output, res.Checksum, res.Bytes, res.WriteErr)
	if err != nil {
		return 0, fmt.Errorf("history: insert build: %w", err)
	}
	id, err := r.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: build id: %w", err)
	}

	if failed := res.Failed(); len(failed) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO build_failures (build_id, path, relative_path, kind, line, col, message, snippet)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("history: prepare failure insert: %w", err)
		}
		defer stmt.Close()
		for _, f := range failed {
			if _, err := stmt.ExecContext(ctx, id, f.Path, f.RelativePath, f.Kind.String(),
				f.Line, f.Column, f.Message, f.Snippet); err != nil {
				return 0, fmt.Errorf("history: insert failure: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("history: commit: %w", err)
	}
	return id, nil
}

// Recent returns up to limit builds, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Build, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+buildColumns+` FROM builds ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	out := []Build{}
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("history: recent: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Get returns one build.
func (db *DB) Get(ctx context.Context, id int64) (*Build, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history: build %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("history: get: %w", err)
	}
	return &b, nil
}

// Last returns the most recent build.
func (db *DB) Last(ctx context.Context) (*Build, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds ORDER BY id DESC LIMIT 1`)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history: no builds: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("history: last: %w", err)
	}
	return &b, nil
}

// Failures returns the failures of a build in the order they were reported.
func (db *DB) Failures(ctx context.Context, buildID int64) ([]Failure, error) {
	if _, err := db.Get(ctx, buildID); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT build_id, path, relative_path, kind, line, col, message, snippet
		FROM build_failures WHERE build_id = ? ORDER BY rowid
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("history: failures: %w", err)
	}
	defer rows.Close()

	out := []Failure{}
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.BuildID, &f.Path, &f.RelativePath, &f.Kind,
			&f.Line, &f.Column, &f.Message, &f.Snippet); err != nil {
			return nil, fmt.Errorf("history: failures: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(s scanner) (Build, error) {
	var b Build
	err := s.Scan(&b.ID, &b.StartedAt, &b.DurationMS, &b.Units, &b.Failures, &b.Bundled,
		&b.Skipped, &b.Output, &b.Checksum, &b.Bytes, &b.WriteError)
	return b, err
}
