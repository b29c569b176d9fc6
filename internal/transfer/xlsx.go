package transfer

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	loreerr "github.com/hyperjump/lore/pkg/errors"
	"github.com/hyperjump/lore/pkg/models"
)

// SheetName is the worksheet lessons are written to.
const SheetName = "Lessons"


var columns = []string{"id", "problem", "resolution", "context", "tags", "confidence", "created_at"}

func encodeXLSX(w io.Writer, lessons []models.Lesson) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, l := range lessons {
		tags, err := formatTags(l.Tags)
		if err != nil {
			return fmt.Errorf("encode tags of %s: %w", l.ID, err)
		}
		row := []any{
			l.ID,
			l.Problem,
			l.Resolution,
			l.Context,
			tags,
			l.Confidence,
			formatTime(l.CreatedAt),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// decodeXLSX reads the first sheet. Columns are located by header name so
// hand-edited workbooks may reorder or omit optional columns.
func decodeXLSX(r io.Reader) ([]models.Lesson, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeTransferFormatInvalid, "open Excel")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []models.Lesson{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, loreerr.Wrapf(err, loreerr.CodeTransferFormatInvalid, "get rows for sheet %q", sheets[0])
	}
	if len(rows) == 0 {
		return []models.Lesson{}, nil
	}

	index := make(map[string]int)
	for i, name := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"problem", "resolution"} {
		if _, ok := index[required]; !ok {
			return nil, loreerr.Errorf(loreerr.CodeTransferFormatInvalid, "missing %q column", required)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	lessons := make([]models.Lesson, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		if isBlank(row) {
			continue
		}
		tags, err := parseTags(cell(row, "tags"))
		if err != nil {
			return nil, loreerr.Wrapf(err, loreerr.CodeTransferFormatInvalid, "row %d: invalid tags", line)
		}
		l := models.Lesson{
			ID:         strings.TrimSpace(cell(row, "id")),
			Problem:    cell(row, "problem"),
			Resolution: cell(row, "resolution"),
			Context:    cell(row, "context"),
			Tags:       tags,
			Confidence: models.DefaultConfidence,
		}
		if s := strings.TrimSpace(cell(row, "confidence")); s != "" {
			c, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, loreerr.Wrapf(err, loreerr.CodeTransferFormatInvalid, "row %d: invalid confidence %q", line, s)
			}
			l.Confidence = c
		}
		if s := strings.TrimSpace(cell(row, "created_at")); s != "" {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, loreerr.Wrapf(err, loreerr.CodeTransferFormatInvalid, "row %d: invalid created_at %q", line, s)
			}
			l.CreatedAt = t
		}
		lessons = append(lessons, l)
	}
	return lessons, nil
}

// formatTags writes tags as a JSON array so separators and surrounding
// spaces inside a tag survive a round trip. No tags is an empty cell.
func formatTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// parseTags reads a JSON array cell exactly. Any other text is treated as a
// hand-typed comma separated list and trimmed.
func parseTags(s string) ([]string, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "[") {
		var tags []string
		if err := json.Unmarshal([]byte(s), &tags); err != nil {
			return nil, err
		}
		if tags == nil {
			tags = []string{}
		}
		return tags, nil
	}
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
