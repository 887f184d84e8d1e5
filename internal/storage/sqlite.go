package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"castmon/internal/model"
	"castmon/migrations"
)

const snippetLimit = 200

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// AddViolation inserts the violation unless the (post_id, rule) pair already
// exists. The insert-if-absent is a single atomic statement; the uniqueness
// constraint is what makes repeated scans of the same posts idempotent.
func (s *SQLite) AddViolation(ctx context.Context, v model.Violation) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO violations (post_id, author_id, rule_violated, timestamp, content_snippet)
		 VALUES (?, ?, ?, ?, ?)`,
		v.PostID, v.AuthorID, v.Rule, v.Timestamp, snippet(v.ContentSnippet),
	)
	if err != nil {
		return false, fmt.Errorf("insert violation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ViolationsByAuthor returns the author's violations, newest first.
func (s *SQLite) ViolationsByAuthor(ctx context.Context, authorID string) ([]model.Violation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, author_id, rule_violated, timestamp, content_snippet
		 FROM violations WHERE author_id = ? ORDER BY timestamp DESC, id`, authorID,
	)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanViolations(rows)
}

// Violations returns every recorded violation, newest first.
func (s *SQLite) Violations(ctx context.Context) ([]model.Violation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, author_id, rule_violated, timestamp, content_snippet
		 FROM violations ORDER BY timestamp DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanViolations(rows)
}

// snippet truncates content to the stored limit. Truncation is rune-based so
// a multi-byte character is never split.
func snippet(content string) string {
	r := []rune(content)
	if len(r) <= snippetLimit {
		return content
	}
	return string(r[:snippetLimit])
}

func scanViolations(rows *sql.Rows) ([]model.Violation, error) {
	var out []model.Violation
	for rows.Next() {
		var v model.Violation
		var snip sql.NullString
		if err := rows.Scan(&v.ID, &v.PostID, &v.AuthorID, &v.Rule, &v.Timestamp, &snip); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.ContentSnippet = snip.String
		out = append(out, v)
	}
	return out, rows.Err()
}
