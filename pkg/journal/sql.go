// Copyright 2025 Kadir Pekel
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

package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	createJournalTableSQL = `
CREATE TABLE IF NOT EXISTS usage_journal (
    id VARCHAR(36) NOT NULL,
    key_name VARCHAR(255) NOT NULL,
    decision VARCHAR(16) NOT NULL,
    remaining INTEGER NOT NULL,
    reset_at BIGINT NOT NULL,
    request_id VARCHAR(64) NOT NULL,
    recorded_at BIGINT NOT NULL,
    PRIMARY KEY (id)
)`

	createJournalIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_usage_journal_key ON usage_journal(key_name, recorded_at)`

	// MySQL has no IF NOT EXISTS for indexes; duplicate creation is
	// detected by error instead.
	createJournalIndexMySQL = `
CREATE INDEX idx_usage_journal_key ON usage_journal(key_name, recorded_at)`
)

// SQL persists journal entries in a relational database.
// Supports Postgres, MySQL, and SQLite.
type SQL struct {
	db      *sql.DB
	dialect string
}

var _ Journal = (*SQL)(nil)

// NewSQL creates a SQL-backed journal over an open database handle.
// Supported dialects: "postgres", "mysql", "sqlite".
func NewSQL(db *sql.DB, dialect string) (*SQL, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQL{
		db:      db,
		dialect: dialect,
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQL) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createJournalTableSQL); err != nil {
		return fmt.Errorf("failed to create usage_journal table: %w", err)
	}

	indexSQL := createJournalIndexSQL
	if s.dialect == "mysql" {
		indexSQL = createJournalIndexMySQL
	}
	if _, err := s.db.ExecContext(ctx, indexSQL); err != nil {
		if s.dialect == "mysql" && strings.Contains(err.Error(), "Duplicate key name") {
			return nil
		}
		return fmt.Errorf("failed to create usage_journal index: %w", err)
	}

	return nil
}

// Record stores one entry.
func (s *SQL) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query := `INSERT INTO usage_journal (id, key_name, decision, remaining, reset_at, request_id, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if s.dialect == "postgres" {
		query = `INSERT INTO usage_journal (id, key_name, decision, remaining, reset_at, request_id, recorded_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	}

	if _, err := s.db.ExecContext(ctx, query, e.ID, e.Key, e.Decision, e.Remaining, e.Reset, e.RequestID, e.At); err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQL) Recent(ctx context.Context, key string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	var (
		query string
		args  []any
	)
	switch {
	case key != "" && s.dialect == "postgres":
		query = `SELECT id, key_name, decision, remaining, reset_at, request_id, recorded_at FROM usage_journal WHERE key_name = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2`
		args = []any{key, limit}
	case key != "":
		query = `SELECT id, key_name, decision, remaining, reset_at, request_id, recorded_at FROM usage_journal WHERE key_name = ? ORDER BY recorded_at DESC, id DESC LIMIT ?`
		args = []any{key, limit}
	case s.dialect == "postgres":
		query = `SELECT id, key_name, decision, remaining, reset_at, request_id, recorded_at FROM usage_journal ORDER BY recorded_at DESC, id DESC LIMIT $1`
		args = []any{limit}
	default:
		query = `SELECT id, key_name, decision, remaining, reset_at, request_id, recorded_at FROM usage_journal ORDER BY recorded_at DESC, id DESC LIMIT ?`
		args = []any{limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Key, &e.Decision, &e.Remaining, &e.Reset, &e.RequestID, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return out, nil
}

// Prune deletes entries recorded before the cutoff.
func (s *SQL) Prune(ctx context.Context, before int64) (int64, error) {
	query := `DELETE FROM usage_journal WHERE recorded_at < ?`
	if s.dialect == "postgres" {
		query = `DELETE FROM usage_journal WHERE recorded_at < $1`
	}

	res, err := s.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune entries: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned entries: %w", err)
	}
	return removed, nil
}

// Close is a no-op. The shared pool owns the database handle.
func (s *SQL) Close() error {
	return nil
}
