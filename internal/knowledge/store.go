// Package knowledge persists lessons learned across deployment runs.
// When a step resolves an error, the issue and its fix are stored; a
// later run hitting a similar error gets the prior fixes injected into
// its oracle prompt instead of rediscovering them.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Lesson is one recorded issue/resolution pair.
type Lesson struct {
	ID         int64
	ErrorType  string
	Issue      string
	Resolution string
	Project    string
	CreatedAt  time.Time
}

// Store manages the lessons database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewStore creates or opens a lessons store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resolved_issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		error_type TEXT NOT NULL,
		issue TEXT NOT NULL,
		resolution TEXT NOT NULL,
		project TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_resolved_error_type ON resolved_issues(error_type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AddLesson records a resolved issue.
func (s *Store) AddLesson(ctx context.Context, lesson Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resolved_issues (error_type, issue, resolution, project, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		lesson.ErrorType, lesson.Issue, lesson.Resolution, lesson.Project, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert lesson: %w", err)
	}
	return nil
}

// Lookup returns the most recent lessons for an error type, newest
// first, capped at limit.
func (s *Store) Lookup(ctx context.Context, errorType string, limit int) ([]Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, error_type, issue, resolution, project, created_at
		FROM resolved_issues
		WHERE error_type = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		errorType, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()

	var lessons []Lesson
	for rows.Next() {
		var l Lesson
		var project sql.NullString
		if err := rows.Scan(&l.ID, &l.ErrorType, &l.Issue, &l.Resolution, &project, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		l.Project = project.String
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}
