// Package sqlite persists guest-mode tasks in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
	"taskline/backend"
)

// savedKey marks that a task set has been written at least once, so an
// emptied list is not mistaken for a first run.
const savedKey = "tasks_saved_at"

// Store implements backend.LocalStore using SQLite
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and initializes the schema.
// Use ":memory:" for a throwaway database.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates the database tables if they don't exist
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			modified TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			priority TEXT NOT NULL DEFAULT 'MEDIUM',
			status TEXT NOT NULL DEFAULT 'TODO',
			start_date TEXT DEFAULT '',
			due_date TEXT DEFAULT '',
			duration_type TEXT DEFAULT '',
			tags TEXT DEFAULT '[]',
			created TEXT NOT NULL,
			modified TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sub_tasks (
			task_id TEXT NOT NULL,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			title TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			start_time TEXT DEFAULT '',
			end_time TEXT DEFAULT '',
			PRIMARY KEY (task_id, id),
			FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_sub_tasks_task_id ON sub_tasks(task_id);
	`

	// Enable foreign keys
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Key-Value Operations
// =============================================================================

// Get returns the value stored under key; found is false when absent
func (s *Store) Get(ctx context.Context, key string) (value string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value
func (s *Store) Set(ctx context.Context, key, value string) error {
	return setKV(ctx, s.db, key, value)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setKV(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO kv (key, value, modified) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, modified = excluded.modified`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// =============================================================================
// Task Operations
// =============================================================================

// LoadTasks returns the saved task set in its saved order.
// found is false when no task set has ever been saved.
func (s *Store) LoadTasks(ctx context.Context) ([]backend.Task, bool, error) {
	if _, found, err := s.Get(ctx, savedKey); err != nil || !found {
		return nil, false, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, priority, status, start_date, due_date, duration_type, tags, created, modified
		 FROM tasks ORDER BY position`)
	if err != nil {
		return nil, true, err
	}
	defer func() { _ = rows.Close() }()

	tasks := []backend.Task{}
	index := make(map[string]int)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, true, err
		}
		index[t.ID] = len(tasks)
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, true, err
	}

	if err := s.loadSubTasks(ctx, tasks, index); err != nil {
		return nil, true, err
	}
	return tasks, true, nil
}

func (s *Store) loadSubTasks(ctx context.Context, tasks []backend.Task, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, id, title, completed, start_time, end_time
		 FROM sub_tasks ORDER BY task_id, position`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var taskID string
		var st backend.SubTask
		if err := rows.Scan(&taskID, &st.ID, &st.Title, &st.Completed, &st.StartTime, &st.EndTime); err != nil {
			return err
		}
		if i, ok := index[taskID]; ok {
			tasks[i].SubTasks = append(tasks[i].SubTasks, st)
		}
	}
	return rows.Err()
}

// scanner is an interface satisfied by both *sql.Rows and *sql.Row
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*backend.Task, error) {
	var t backend.Task
	var tagsJSON, createdStr, modifiedStr string

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.Priority, &t.Status,
		&t.StartDate, &t.DueDate, &t.DurationType, &tagsJSON, &createdStr, &modifiedStr,
	)
	if err != nil {
		return nil, err
	}

	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &t.Tags)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, modifiedStr)
	return &t, nil
}

// SaveTasks replaces the saved task set in one transaction
func (s *Store) SaveTasks(ctx context.Context, tasks []backend.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sub_tasks"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return err
	}

	for pos, t := range tasks {
		tags, err := json.Marshal(t.Tags)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tasks (id, position, title, description, priority, status, start_date, due_date, duration_type, tags, created, modified)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, pos, t.Title, t.Description, string(t.Priority), string(t.Status),
			t.StartDate, t.DueDate, string(t.DurationType), string(tags),
			formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to save task %s: %w", t.ID, err)
		}

		for subPos, st := range t.SubTasks {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO sub_tasks (task_id, id, position, title, completed, start_time, end_time)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				t.ID, st.ID, subPos, st.Title, st.Completed, st.StartTime, st.EndTime,
			)
			if err != nil {
				return fmt.Errorf("failed to save sub-task %s of %s: %w", st.ID, t.ID, err)
			}
		}
	}

	if err := setKV(ctx, tx, savedKey, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Verify interface compliance at compile time
var _ backend.LocalStore = (*Store)(nil)
