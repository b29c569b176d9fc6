package store

import (
	"context"
	"sync"

	"github.com/hyperjump/lore/pkg/models"
)

type memoryEntry struct {
	lesson *models.Lesson
	vector []float32
}

// MemoryStore keeps lessons in process memory. Contents are lost on Close.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	order   []string
	dims    int
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

// Put stores a copy of lesson and vector.
func (m *MemoryStore) Put(ctx context.Context, lesson *models.Lesson, vector []float32) error {
	if err := validatePut(lesson, vector); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return closedErr()
	}
	if _, ok := m.entries[lesson.ID]; ok {
		return conflict(lesson.ID)
	}
	if m.dims != 0 && len(vector) != m.dims {
		return dimensionMismatch(lesson.ID, len(vector), m.dims)
	}
	m.entries[lesson.ID] = &memoryEntry{lesson: lesson.Clone(), vector: cloneVector(vector)}
	m.order = append(m.order, lesson.ID)
	m.dims = len(vector)
	return nil
}

// Get returns a copy of the lesson, or nil when absent.
func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, closedErr()
	}
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return e.lesson.Clone(), nil
}

// Delete removes the lesson and its vector.
func (m *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, closedErr()
	}
	if _, ok := m.entries[id]; !ok {
		return false, nil
	}
	delete(m.entries, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if len(m.order) == 0 {
		m.dims = 0
	}
	return true, nil
}

// List returns copies of all lessons in insertion order.
func (m *MemoryStore) List(ctx context.Context) ([]*models.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, closedErr()
	}
	out := make([]*models.Lesson, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id].lesson.Clone())
	}
	return out, nil
}

// AllWithVectors returns copies of all lessons and vectors in insertion order.
func (m *MemoryStore) AllWithVectors(ctx context.Context) ([]models.LessonVector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, closedErr()
	}
	out := make([]models.LessonVector, 0, len(m.order))
	for _, id := range m.order {
		e := m.entries[id]
		out = append(out, models.LessonVector{Lesson: e.lesson.Clone(), Vector: cloneVector(e.vector)})
	}
	return out, nil
}

// Dimensions returns the vector dimension, or 0 when empty.
func (m *MemoryStore) Dimensions(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, closedErr()
	}
	return m.dims, nil
}

// Count returns the number of stored lessons.
func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, closedErr()
	}
	return int64(len(m.order)), nil
}

// Close drops all contents. Closing twice is a no-op.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	m.order = nil
	return nil
}
