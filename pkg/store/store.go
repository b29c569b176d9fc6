// Package store defines lesson persistence and its backends.
package store

import (
	"context"
	"fmt"
	"strings"

	loreerr "github.com/hyperjump/lore/pkg/errors"
	"github.com/hyperjump/lore/pkg/models"
)

// Store persists lessons together with their embedding vectors. A lesson and
// its vector are written and removed as one unit. Implementations must be
// safe for concurrent use and return copies that callers may mutate.
type Store interface {
	// Put stores a new lesson. An existing id fails with a conflict error.
	Put(ctx context.Context, lesson *models.Lesson, vector []float32) error
	// Get returns the lesson, or nil with no error when it does not exist.
	Get(ctx context.Context, id string) (*models.Lesson, error)
	// Delete removes the lesson and its vector and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns every lesson in insertion order.
	List(ctx context.Context) ([]*models.Lesson, error)
	// AllWithVectors returns every (lesson, vector) pair in insertion order.
	AllWithVectors(ctx context.Context) ([]models.LessonVector, error)
	Close() error
}

// Dimensioner is implemented by stores that can report the dimension of the
// vectors they hold. It returns 0 for an empty store.
type Dimensioner interface {
	Dimensions(ctx context.Context) (int, error)
}

// Counter is implemented by stores that can count lessons without loading them.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// Kind names a backend.
type Kind string

const (
	KindMemory Kind = "memory"
	KindSQLite Kind = "sqlite"
)

// Open creates a backend by kind. path is ignored for the memory backend.
func Open(kind Kind, path string) (Store, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if path == "" {
			return nil, loreerr.New(loreerr.CodeValidationInvalidInput, "sqlite store requires a database path")
		}
		return NewSQLiteStore(path)
	default:
		return nil, loreerr.New(loreerr.CodeValidationInvalidInput,
			fmt.Sprintf("unknown store backend %q", kind), loreerr.Field("backend", string(kind)))
	}
}

func validatePut(lesson *models.Lesson, vector []float32) error {
	if lesson == nil {
		return loreerr.New(loreerr.CodeValidationInvalidInput, "lesson is required")
	}
	if lesson.ID == "" {
		return loreerr.New(loreerr.CodeValidationInvalidInput, "lesson id is required")
	}
	if len(vector) == 0 {
		return loreerr.New(loreerr.CodeValidationInvalidInput, "vector is required", loreerr.FieldLessonID(lesson.ID))
	}
	return nil
}

func dimensionMismatch(id string, got, want int) error {
	return loreerr.New(loreerr.CodeEmbeddingDimensionInvalid,
		fmt.Sprintf("vector dimension mismatch: got %d, expected %d", got, want),
		loreerr.FieldLessonID(id), loreerr.Field("got", got), loreerr.Field("expected", want))
}

func conflict(id string) error {
	return loreerr.New(loreerr.CodeStoreConflict,
		fmt.Sprintf("lesson %s already exists", id), loreerr.FieldLessonID(id))
}

func closedErr() error {
	return loreerr.New(loreerr.CodeStoreClosed, "store is closed")
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
