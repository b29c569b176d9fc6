// Package cli provides output helpers for the lore command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	loreerr "github.com/hyperjump/lore/pkg/errors"
	"github.com/hyperjump/lore/pkg/models"
	"github.com/hyperjump/lore/pkg/utils"
)

// OutputFormat selects how command results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const separator = "─────────────────────────────────────────────────────────"

// ParseOutputFormat validates an --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return f, nil
	default:
		return "", loreerr.Errorf(loreerr.CodeValidationInvalidInput, "unknown output format %q (want text or json)", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteResults writes ranked query results.
func WriteResults(w io.Writer, results []*models.QueryResult, format OutputFormat) error {
	if format == OutputJSON {
		if results == nil {
			results = []*models.QueryResult{}
		}
		return WriteJSON(w, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching lessons.")
		return nil
	}
	fmt.Fprintf(w, "\nFound %d lessons\n\n", len(results))
	for i, r := range results {
		fmt.Fprintln(w, separator)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | Confidence: %s\n", i+1, r.Score, formatFloat(r.Lesson.Confidence))
		writeLessonBody(w, r.Lesson)
		fmt.Fprintln(w)
	}
	return nil
}

// WriteLesson writes a single lesson in full.
func WriteLesson(w io.Writer, l *models.Lesson, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, l)
	}
	fmt.Fprintf(w, "Confidence: %s\n", formatFloat(l.Confidence))
	writeLessonBody(w, l)
	return nil
}

func writeLessonBody(w io.Writer, l *models.Lesson) {
	fmt.Fprintf(w, "ID: %s\n", l.ID)
	fmt.Fprintf(w, "Created: %s\n", l.CreatedAt.Format(time.RFC3339))
	if len(l.Tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(l.Tags, ", "))
	}
	fmt.Fprintf(w, "\nProblem: %s\n", l.Problem)
	fmt.Fprintf(w, "Resolution: %s\n", l.Resolution)
	if l.Context != "" {
		fmt.Fprintf(w, "Context: %s\n", l.Context)
	}
}

// WriteLessons writes a one-line summary per lesson.
func WriteLessons(w io.Writer, lessons []*models.Lesson, format OutputFormat) error {
	if format == OutputJSON {
		if lessons == nil {
			lessons = []*models.Lesson{}
		}
		return WriteJSON(w, lessons)
	}
	if len(lessons) == 0 {
		fmt.Fprintln(w, "No lessons stored.")
		return nil
	}
	for _, l := range lessons {
		fmt.Fprintf(w, "%s  %s  %s\n", l.ID, formatFloat(l.Confidence), utils.Truncate(utils.OneLine(l.Problem), 80))
	}
	fmt.Fprintf(w, "\n%d lessons\n", len(lessons))
	return nil
}

// WriteMessage writes a status line in text mode or {key: value} in JSON mode.
func WriteMessage(w io.Writer, format OutputFormat, text string, fields map[string]any) error {
	if format == OutputJSON {
		return WriteJSON(w, fields)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
