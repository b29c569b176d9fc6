package models

// LessonQuery is a similarity query with optional filters.
type LessonQuery struct {
	Text string `json:"text"`
	// K is the maximum number of results; <= 0 means the engine default.
	K             int      `json:"k,omitempty"`
	Tags          []string `json:"tags,omitempty"`           // every tag must be present
	MinConfidence float64  `json:"min_confidence,omitempty"` // lessons below are skipped
	MinScore      float64  `json:"min_score,omitempty"`      // results below are dropped
}

// QueryResult is a single ranked hit. It is never persisted.
type QueryResult struct {
	Lesson *Lesson `json:"lesson"`
	Score  float64 `json:"score"`
}

// TextHit is a keyword index match.
type TextHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
