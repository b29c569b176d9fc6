// Package models defines the lesson records stored and returned by lore.
package models

import "time"

// DefaultConfidence is used when a lesson is published without a confidence.
const DefaultConfidence = 0.5

// Lesson is a stored problem/resolution record with metadata.
type Lesson struct {
	ID         string    `json:"id"`
	Problem    string    `json:"problem"`
	Resolution string    `json:"resolution"`
	Context    string    `json:"context,omitempty"`
	Tags       []string  `json:"tags"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Clone returns a deep copy of l so callers can't mutate stored state.
func (l *Lesson) Clone() *Lesson {
	if l == nil {
		return nil
	}
	c := *l
	c.Tags = append(make([]string, 0, len(l.Tags)), l.Tags...)
	return &c
}

// HasTags reports whether every tag in want is present on the lesson.
func (l *Lesson) HasTags(want []string) bool {
	for _, w := range want {
		found := false
		for _, t := range l.Tags {
			if t == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// LessonInput is the input for publishing a lesson.
type LessonInput struct {
	Problem    string   `json:"problem"`
	Resolution string   `json:"resolution"`
	Context    string   `json:"context,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	// Confidence is optional; nil means DefaultConfidence.
	Confidence *float64 `json:"confidence,omitempty"`
}

// LessonVector pairs a stored lesson with its embedding vector.
type LessonVector struct {
	Lesson *Lesson
	Vector []float32
}
