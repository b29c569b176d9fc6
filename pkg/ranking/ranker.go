// Package ranking scores stored lessons against a query vector by cosine
// similarity and returns an ordered top-k.
package ranking

import (
	"sort"

	"github.com/hyperjump/lore/pkg/models"
)

// Filter decides whether a candidate lesson takes part in ranking.
type Filter func(l *models.Lesson) bool

// Options narrows a ranking pass.
type Options struct {
	// MinScore drops results scoring below it. Zero keeps everything,
	// including negative similarities.
	MinScore float64
	Filter   Filter
}

// Rank scores every candidate against query and returns at most k results,
// highest score first. Equal scores keep the candidates' original order.
// k <= 0 or no candidates yields an empty, non-nil slice.
func Rank(query []float32, candidates []models.LessonVector, k int) []*models.QueryResult {
	return RankFiltered(query, candidates, k, Options{})
}

// RankFiltered is Rank with a candidate filter and a minimum score.
func RankFiltered(query []float32, candidates []models.LessonVector, k int, opts Options) []*models.QueryResult {
	if k <= 0 || len(candidates) == 0 {
		return []*models.QueryResult{}
	}
	results := make([]*models.QueryResult, 0, len(candidates))
	for _, c := range candidates {
		if c.Lesson == nil {
			continue
		}
		if opts.Filter != nil && !opts.Filter(c.Lesson) {
			continue
		}
		score := CosineSimilarity(query, c.Vector)
		if opts.MinScore != 0 && score < opts.MinScore {
			continue
		}
		results = append(results, &models.QueryResult{Lesson: c.Lesson, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k < len(results) {
		results = results[:k]
	}
	return results
}
