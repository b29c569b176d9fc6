package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/lore/pkg/models"
)

func sampleLesson() *models.Lesson {
	return &models.Lesson{
		ID:         "lesson-1",
		Problem:    "Stripe API returns 429\nunder load",
		Resolution: "Use exponential backoff",
		Context:    "billing",
		Tags:       []string{"stripe", "rate-limit"},
		Confidence: 0.9,
		CreatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteResults_JSON(t *testing.T) {
	results := []*models.QueryResult{{Lesson: sampleLesson(), Score: 0.8}}
	var buf bytes.Buffer
	if err := WriteResults(&buf, results, OutputJSON); err != nil {
		t.Fatalf("WriteResults(json): %v", err)
	}
	var decoded []models.QueryResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if len(decoded) != 1 || decoded[0].Lesson.ID != "lesson-1" || decoded[0].Score != 0.8 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteResults_JSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResults(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("got %q, want []", buf.String())
	}
}

func TestWriteResults_Text(t *testing.T) {
	results := []*models.QueryResult{{Lesson: sampleLesson(), Score: 0.8}}
	var buf bytes.Buffer
	if err := WriteResults(&buf, results, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Found 1 lessons",
		"Rank: 1 | Score: 0.8000 | Confidence: 0.9",
		"ID: lesson-1",
		"Tags: stripe, rate-limit",
		"Resolution: Use exponential backoff",
		"Context: billing",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	_ = WriteResults(&buf, nil, OutputText)
	if !strings.Contains(buf.String(), "No matching lessons") {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestWriteLessons_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLessons(&buf, []*models.Lesson{sampleLesson()}, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "lesson-1  0.9  Stripe API returns 429 under load") {
		t.Errorf("summary line missing:\n%s", out)
	}
	if !strings.Contains(out, "1 lessons") {
		t.Errorf("count missing:\n%s", out)
	}
}

func TestWriteLesson(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLesson(&buf, sampleLesson(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.Lesson
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Problem != sampleLesson().Problem {
		t.Errorf("problem = %q", decoded.Problem)
	}

	buf.Reset()
	if err := WriteLesson(&buf, sampleLesson(), OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Created: 2024-01-02T03:04:05Z") {
		t.Errorf("text output:\n%s", buf.String())
	}
}

func TestWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteMessage(&buf, OutputText, "Deleted lesson-1", map[string]any{"deleted": true})
	if buf.String() != "Deleted lesson-1\n" {
		t.Errorf("text = %q", buf.String())
	}
	buf.Reset()
	_ = WriteMessage(&buf, OutputJSON, "Deleted lesson-1", map[string]any{"deleted": true})
	if !strings.Contains(buf.String(), `"deleted": true`) {
		t.Errorf("json = %q", buf.String())
	}
}
