// Package keyword provides a Bleve keyword index over lesson text.
package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/lore/pkg/models"
)

// Problem matches count more than resolution or context matches.
const problemBoost = 2.0

// lessonDoc is the indexed shape of a lesson.
type lessonDoc struct {
	Problem    string   `json:"problem"`
	Resolution string   `json:"resolution"`
	Context    string   `json:"context"`
	Tags       []string `json:"tags"`
}

// BleveIndex is a keyword index of lessons backed by Bleve.
type BleveIndex struct {
	index     bleve.Index
	fuzziness int
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithFuzziness enables typo-tolerant matching within the given edit distance (1 or 2).
func WithFuzziness(n int) Option {
	return func(b *BleveIndex) {
		if n >= 0 && n <= 2 {
			b.fuzziness = n
		}
	}
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer lowercases and tokenizes without stemming so exact words match.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("problem", textFieldMapping)
	docMapping.AddFieldMappingsAt("resolution", textFieldMapping)
	docMapping.AddFieldMappingsAt("context", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("tags", keywordFieldMapping)
	im.AddDocumentMapping("lesson", docMapping)
	im.DefaultType = "lesson"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path
// builds an in-memory index that the caller fills with Engine.RebuildTextIndex.
func NewBleveIndex(path string, opts ...Option) (*BleveIndex, error) {
	var (
		index bleve.Index
		err   error
	)
	switch {
	case path == "":
		index, err = bleve.NewMemOnly(newMapping())
	default:
		if _, statErr := os.Stat(path); statErr == nil {
			index, err = bleve.Open(path)
		} else {
			index, err = bleve.New(path, newMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b := &BleveIndex{index: index}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Index adds or replaces the lesson's text.
func (b *BleveIndex) Index(ctx context.Context, lesson *models.Lesson) error {
	return b.index.Index(lesson.ID, lessonDoc{
		Problem:    lesson.Problem,
		Resolution: lesson.Resolution,
		Context:    lesson.Context,
		Tags:       lesson.Tags,
	})
}

// Delete removes a lesson from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Search matches text against problem, resolution, context and tags and
// returns up to limit hits, best first.
func (b *BleveIndex) Search(ctx context.Context, text string, limit int) ([]models.TextHit, error) {
	if strings.TrimSpace(text) == "" || limit <= 0 {
		return []models.TextHit{}, nil
	}
	req := bleve.NewSearchRequest(b.buildQuery(text))
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]models.TextHit, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = models.TextHit{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// buildQuery ORs a per-field query for each text field plus exact tag terms.
func (b *BleveIndex) buildQuery(text string) blevequery.Query {
	fields := []struct {
		name  string
		boost float64
	}{
		{"problem", problemBoost},
		{"resolution", 1},
		{"context", 1},
	}
	queries := make([]blevequery.Query, 0, len(fields)+1)
	if len(tokenizeQuery(text)) > 0 {
		for _, f := range fields {
			queries = append(queries, b.fieldQuery(text, f.name, f.boost))
		}
	}
	// Tags are keywords, so whole words keep separators like "c++" or "rate-limit".
	for _, term := range strings.Fields(strings.ToLower(text)) {
		tq := bleve.NewTermQuery(term)
		tq.SetField("tags")
		queries = append(queries, tq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

func (b *BleveIndex) fieldQuery(text, field string, boost float64) blevequery.Query {
	if b.fuzziness == 0 {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	terms := tokenizeQuery(text)
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(b.fuzziness)
		fq.SetField(field)
		fq.SetBoost(boost)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenizeQuery splits query into lowercase letter and digit runs.
func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// DocCount returns the number of indexed lessons.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
