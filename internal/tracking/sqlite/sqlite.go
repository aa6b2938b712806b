// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite provides a SQLite tracking backend, the default store of
// the runchain CLI.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tombee/runchain/internal/tracking"
	_ "modernc.org/sqlite"
)

var _ tracking.Backend = (*Backend)(nil)

// Backend is a SQLite tracking backend.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path. Parent directories are created.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens (creating if needed) a SQLite backend.
func New(cfg Config) (*Backend, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return b, nil
}

func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			entity TEXT NOT NULL,
			project TEXT NOT NULL,
			status TEXT NOT NULL,
			config TEXT,
			summary TEXT,
			history_len INTEGER DEFAULT 0,
			parent_run_id TEXT,
			parent_artifact TEXT,
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_namespace ON runs(entity, project)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_parent_run_id ON runs(parent_run_id)`,
		`CREATE TABLE IF NOT EXISTS history (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			metrics TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (run_id, step),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity TEXT NOT NULL,
			project TEXT NOT NULL,
			name TEXT NOT NULL,
			version INTEGER NOT NULL,
			type TEXT NOT NULL,
			run_id TEXT NOT NULL,
			metadata TEXT,
			created_at TEXT NOT NULL,
			UNIQUE (entity, project, name, version),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_run_id ON artifacts(run_id)`,
		`CREATE TABLE IF NOT EXISTS artifact_files (
			artifact_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			content BLOB NOT NULL,
			PRIMARY KEY (artifact_id, name),
			FOREIGN KEY (artifact_id) REFERENCES artifacts(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS artifact_uses (
			run_id TEXT NOT NULL,
			artifact_id INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
			FOREIGN KEY (artifact_id) REFERENCES artifacts(id) ON DELETE CASCADE
		)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateRun creates a new run.
func (b *Backend) CreateRun(ctx context.Context, run *tracking.Run) error {
	configJSON, summaryJSON, err := marshalRunMaps(run)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO runs (id, entity, project, status, config, summary, history_len,
			parent_run_id, parent_artifact, error, started_at, finished_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Entity, run.Project, string(run.Status), configJSON, summaryJSON, run.HistoryLen,
		nullString(run.ParentRunID), nullString(run.ParentArtifact), nullString(run.Error),
		formatTime(run.StartedAt), formatTimePtr(run.FinishedAt), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	run.CreatedAt = now
	run.UpdatedAt = now
	return nil
}

const runColumns = `id, entity, project, status, config, summary, history_len,
	parent_run_id, parent_artifact, error, started_at, finished_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*tracking.Run, error) {
	var run tracking.Run
	var status string
	var configJSON, summaryJSON, parentRunID, parentArtifact, errorStr, finishedAt sql.NullString
	var startedAt, createdAt, updatedAt string

	if err := row.Scan(
		&run.ID, &run.Entity, &run.Project, &status, &configJSON, &summaryJSON, &run.HistoryLen,
		&parentRunID, &parentArtifact, &errorStr, &startedAt, &finishedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	run.Status = tracking.RunStatus(status)
	run.ParentRunID = parentRunID.String
	run.ParentArtifact = parentArtifact.String
	run.Error = errorStr.String

	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &run.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		if err := json.Unmarshal([]byte(summaryJSON.String), &run.Summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
	}

	run.StartedAt = parseTime(startedAt)
	run.CreatedAt = parseTime(createdAt)
	run.UpdatedAt = parseTime(updatedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}

	return &run, nil
}

// GetRun retrieves a run by ID.
func (b *Backend) GetRun(ctx context.Context, id string) (*tracking.Run, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracking.NotFound("run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// UpdateRun updates an existing run.
func (b *Backend) UpdateRun(ctx context.Context, run *tracking.Run) error {
	configJSON, summaryJSON, err := marshalRunMaps(run)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := b.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?, config = ?, summary = ?, history_len = ?,
			parent_run_id = ?, parent_artifact = ?, error = ?,
			finished_at = ?, updated_at = ?
		WHERE id = ?`,
		string(run.Status), configJSON, summaryJSON, run.HistoryLen,
		nullString(run.ParentRunID), nullString(run.ParentArtifact), nullString(run.Error),
		formatTimePtr(run.FinishedAt), formatTime(now),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return tracking.NotFound("run", run.ID)
	}

	run.UpdatedAt = now
	return nil
}

// ListRuns lists runs in creation order.
func (b *Backend) ListRuns(ctx context.Context, filter tracking.RunFilter) ([]*tracking.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Entity != "" {
		query += ` AND entity = ?`
		args = append(args, filter.Entity)
	}
	if filter.Project != "" {
		query += ` AND project = ?`
		args = append(args, filter.Project)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY rowid`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*tracking.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AppendHistory stores one history row.
func (b *Backend) AppendHistory(ctx context.Context, row *tracking.HistoryRow) error {
	metricsJSON, err := json.Marshal(row.Values)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT INTO history (run_id, step, metrics, created_at) VALUES (?, ?, ?, ?)`,
		row.RunID, row.Step, string(metricsJSON), formatTime(row.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// ListHistory returns a run's history rows in step order.
func (b *Backend) ListHistory(ctx context.Context, runID string) ([]*tracking.HistoryRow, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT step, metrics, created_at FROM history WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var result []*tracking.HistoryRow
	for rows.Next() {
		row := &tracking.HistoryRow{RunID: runID}
		var metricsJSON, createdAt string
		if err := rows.Scan(&row.Step, &metricsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &row.Values); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		row.CreatedAt = parseTime(createdAt)
		result = append(result, row)
	}
	return result, rows.Err()
}

// SaveArtifact stores the next version of an artifact with its files.
func (b *Backend) SaveArtifact(ctx context.Context, art *tracking.Artifact) error {
	metadataJSON, err := json.Marshal(art.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version) + 1, 0) FROM artifacts WHERE entity = ? AND project = ? AND name = ?`,
		art.Entity, art.Project, art.Name,
	).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to compute artifact version: %w", err)
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO artifacts (entity, project, name, version, type, run_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		art.Entity, art.Project, art.Name, version, art.Type, art.RunID, string(metadataJSON), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read artifact id: %w", err)
	}

	for name, content := range art.Files {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artifact_files (artifact_id, name, content) VALUES (?, ?, ?)`,
			id, name, content,
		); err != nil {
			return fmt.Errorf("failed to insert artifact file %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit artifact: %w", err)
	}

	art.Version = version
	art.CreatedAt = now
	return nil
}

const artifactColumns = `id, entity, project, name, version, type, run_id, metadata, created_at`

func scanArtifact(row rowScanner) (int64, *tracking.Artifact, error) {
	var id int64
	var art tracking.Artifact
	var metadataJSON sql.NullString
	var createdAt string

	if err := row.Scan(&id, &art.Entity, &art.Project, &art.Name, &art.Version, &art.Type,
		&art.RunID, &metadataJSON, &createdAt); err != nil {
		return 0, nil, err
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &art.Metadata); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	art.CreatedAt = parseTime(createdAt)
	return id, &art, nil
}

func (b *Backend) loadFiles(ctx context.Context, id int64, art *tracking.Artifact) error {
	rows, err := b.db.QueryContext(ctx, `SELECT name, content FROM artifact_files WHERE artifact_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to load artifact files: %w", err)
	}
	defer rows.Close()

	art.Files = make(map[string][]byte)
	for rows.Next() {
		var name string
		var content []byte
		if err := rows.Scan(&name, &content); err != nil {
			return fmt.Errorf("failed to scan artifact file: %w", err)
		}
		art.Files[name] = content
	}
	return rows.Err()
}

// GetArtifact resolves a reference to a stored artifact version.
func (b *Backend) GetArtifact(ctx context.Context, ref tracking.ArtifactRef) (*tracking.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE entity = ? AND project = ? AND name = ?`
	args := []any{ref.Entity, ref.Project, ref.Name}
	if ref.Latest {
		query += ` ORDER BY version DESC LIMIT 1`
	} else {
		query += ` AND version = ?`
		args = append(args, ref.Version)
	}

	id, art, err := scanArtifact(b.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracking.NotFound("artifact", ref.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	if err := b.loadFiles(ctx, id, art); err != nil {
		return nil, err
	}
	return art, nil
}

// ListArtifacts returns the artifacts produced by a run, without files.
func (b *Backend) ListArtifacts(ctx context.Context, runID string) ([]*tracking.Artifact, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var result []*tracking.Artifact
	for rows.Next() {
		_, art, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		result = append(result, art)
	}
	return result, rows.Err()
}

// RecordArtifactUse records that runID used art.
func (b *Backend) RecordArtifactUse(ctx context.Context, runID string, art *tracking.Artifact) error {
	result, err := b.db.ExecContext(ctx, `
		INSERT INTO artifact_uses (run_id, artifact_id, created_at)
		SELECT ?, id, ? FROM artifacts WHERE entity = ? AND project = ? AND name = ? AND version = ?`,
		runID, formatTime(time.Now().UTC()), art.Entity, art.Project, art.Name, art.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to record artifact use: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return tracking.NotFound("artifact", art.Ref().String())
	}
	return nil
}

// ListArtifactUses returns the artifacts runID used.
func (b *Backend) ListArtifactUses(ctx context.Context, runID string) ([]tracking.ArtifactRef, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT a.entity, a.project, a.name, a.version
		FROM artifact_uses u JOIN artifacts a ON a.id = u.artifact_id
		WHERE u.run_id = ? ORDER BY u.rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifact uses: %w", err)
	}
	defer rows.Close()

	var refs []tracking.ArtifactRef
	for rows.Next() {
		var ref tracking.ArtifactRef
		if err := rows.Scan(&ref.Entity, &ref.Project, &ref.Name, &ref.Version); err != nil {
			return nil, fmt.Errorf("failed to scan artifact use: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

func marshalRunMaps(run *tracking.Run) (string, string, error) {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal config: %w", err)
	}
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	return string(configJSON), string(summaryJSON), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
