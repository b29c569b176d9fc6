// Package transfer encodes and decodes lesson exports as JSON or Excel workbooks.
package transfer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	loreerr "github.com/hyperjump/lore/pkg/errors"
	"github.com/hyperjump/lore/pkg/models"
)

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// exportVersion is written into JSON exports.
const exportVersion = 1

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatXLSX:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", loreerr.Errorf(loreerr.CodeTransferFormatInvalid, "unsupported format %q", s)
	}
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "", loreerr.Errorf(loreerr.CodeTransferFormatInvalid, "no file extension on %s", path)
	}
	return ParseFormat(ext)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

// Document is the JSON export envelope.
type Document struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Lessons    []models.Lesson `json:"lessons"`
}

// Encode writes lessons to w in format f.
func Encode(w io.Writer, f Format, lessons []models.Lesson) error {
	switch f {
	case FormatJSON:
		return encodeJSON(w, lessons)
	case FormatXLSX:
		return encodeXLSX(w, lessons)
	default:
		return loreerr.Errorf(loreerr.CodeTransferFormatInvalid, "unsupported format %q", f)
	}
}

// Decode reads lessons in format f from r.
func Decode(r io.Reader, f Format) ([]models.Lesson, error) {
	switch f {
	case FormatJSON:
		return decodeJSON(r)
	case FormatXLSX:
		return decodeXLSX(r)
	default:
		return nil, loreerr.Errorf(loreerr.CodeTransferFormatInvalid, "unsupported format %q", f)
	}
}

// DecodeFile reads the lessons in path, choosing the format by extension.
func DecodeFile(path string) ([]models.Lesson, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return Decode(file, f)
}

// EncodeFile writes lessons to path, choosing the format by extension.
func EncodeFile(path string, lessons []models.Lesson) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Encode(file, f, lessons); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func encodeJSON(w io.Writer, lessons []models.Lesson) error {
	if lessons == nil {
		lessons = []models.Lesson{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Document{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Lessons:    lessons,
	})
}

// decodeJSON accepts an export envelope or a bare array of lessons.
func decodeJSON(r io.Reader) ([]models.Lesson, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeTransferFormatInvalid, "read export")
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var lessons []models.Lesson
		if err := json.Unmarshal(data, &lessons); err != nil {
			return nil, loreerr.Wrap(err, loreerr.CodeTransferFormatInvalid, "invalid lesson array")
		}
		return lessons, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeTransferFormatInvalid, "invalid export document")
	}
	if doc.Version > exportVersion {
		return nil, loreerr.Errorf(loreerr.CodeTransferFormatInvalid, "unsupported export version %d", doc.Version)
	}
	if doc.Lessons == nil {
		doc.Lessons = []models.Lesson{}
	}
	return doc.Lessons, nil
}
