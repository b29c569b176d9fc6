package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"

	loreerr "github.com/hyperjump/lore/pkg/errors"
	"github.com/hyperjump/lore/pkg/models"
)

// SQLiteStore persists lessons in a single SQLite file. Each row holds the
// lesson and its vector, so both are written and deleted by one statement.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to create database directory")
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to open database")
	}
	// One writer at a time; the read-then-insert in Put would otherwise hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to enable WAL")
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to set busy timeout")
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to initialize schema")
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS lessons (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		problem TEXT NOT NULL,
		resolution TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		confidence REAL NOT NULL,
		created_at TEXT NOT NULL,
		embedding BLOB NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Put inserts the lesson row. The vector length must match rows already stored.
func (s *SQLiteStore) Put(ctx context.Context, lesson *models.Lesson, vector []float32) error {
	if err := validatePut(lesson, vector); err != nil {
		return err
	}
	if s.closed.Load() {
		return closedErr()
	}
	tags := lesson.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to marshal tags", loreerr.FieldLessonID(lesson.ID))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var blobLen sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT length(embedding) FROM lessons ORDER BY seq LIMIT 1`).Scan(&blobLen)
	if err != nil && !stderrors.Is(err, sql.ErrNoRows) {
		return loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to read vector dimension")
	}
	if blobLen.Valid {
		if want := int(blobLen.Int64) / float32Size; want != len(vector) {
			return dimensionMismatch(lesson.ID, len(vector), want)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO lessons (id, problem, resolution, context, tags, confidence, created_at, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lesson.ID, lesson.Problem, lesson.Resolution, lesson.Context, string(tagsJSON),
		lesson.Confidence, lesson.CreatedAt.UTC().Format(time.RFC3339Nano), encodeVector(vector),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if stderrors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return conflict(lesson.ID)
		}
		return loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to insert lesson", loreerr.FieldLessonID(lesson.ID))
	}
	if err := tx.Commit(); err != nil {
		return loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to commit lesson", loreerr.FieldLessonID(lesson.ID))
	}
	return nil
}

const lessonColumns = `id, problem, resolution, context, tags, confidence, created_at`

// Get returns a lesson by ID, or nil when it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Lesson, error) {
	if s.closed.Load() {
		return nil, closedErr()
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = ?`, id)
	lesson, err := scanLesson(row.Scan)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to read lesson", loreerr.FieldLessonID(id))
	}
	return lesson, nil
}

// Delete removes a lesson row by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	if s.closed.Load() {
		return false, closedErr()
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = ?`, id)
	if err != nil {
		return false, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to delete lesson", loreerr.FieldLessonID(id))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to delete lesson", loreerr.FieldLessonID(id))
	}
	return n > 0, nil
}

// List returns all lessons in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]*models.Lesson, error) {
	if s.closed.Load() {
		return nil, closedErr()
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+lessonColumns+` FROM lessons ORDER BY seq`)
	if err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to list lessons")
	}
	defer rows.Close()

	lessons := make([]*models.Lesson, 0)
	for rows.Next() {
		lesson, err := scanLesson(rows.Scan)
		if err != nil {
			return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to scan lesson")
		}
		lessons = append(lessons, lesson)
	}
	if err := rows.Err(); err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to list lessons")
	}
	return lessons, nil
}

// AllWithVectors returns all lessons and their vectors in insertion order.
func (s *SQLiteStore) AllWithVectors(ctx context.Context) ([]models.LessonVector, error) {
	if s.closed.Load() {
		return nil, closedErr()
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+lessonColumns+`, embedding FROM lessons ORDER BY seq`)
	if err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to load vectors")
	}
	defer rows.Close()

	out := make([]models.LessonVector, 0)
	for rows.Next() {
		var blob []byte
		lesson, err := scanLesson(func(dest ...any) error {
			return rows.Scan(append(dest, &blob)...)
		})
		if err != nil {
			return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to scan lesson")
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "corrupt vector", loreerr.FieldLessonID(lesson.ID))
		}
		out = append(out, models.LessonVector{Lesson: lesson, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to load vectors")
	}
	return out, nil
}

// Dimensions returns the stored vector dimension, or 0 when empty.
func (s *SQLiteStore) Dimensions(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, closedErr()
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT length(embedding) FROM lessons ORDER BY seq LIMIT 1`).Scan(&n)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to read vector dimension")
	}
	return n / float32Size, nil
}

// Count returns the number of stored lessons.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, closedErr()
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lessons`).Scan(&n)
	if err != nil {
		return 0, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to count lessons")
	}
	return n, nil
}

// Close closes the database connection. Closing twice is a no-op.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func scanLesson(scan func(dest ...any) error) (*models.Lesson, error) {
	var (
		lesson    models.Lesson
		tagsJSON  string
		createdAt string
	)
	if err := scan(&lesson.ID, &lesson.Problem, &lesson.Resolution, &lesson.Context,
		&tagsJSON, &lesson.Confidence, &createdAt); err != nil {
		return nil, err
	}
	lesson.Tags = []string{}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &lesson.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	lesson.CreatedAt = t
	return &lesson, nil
}
