package lore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	loreerr "github.com/hyperjump/lore/pkg/errors"
	"github.com/hyperjump/lore/pkg/models"
)

// Export returns a copy of every lesson in insertion order.
func (e *Engine) Export(ctx context.Context) (lessons []models.Lesson, err error) {
	defer e.observe("export", time.Now(), &err)
	list, err := e.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Lesson, 0, len(list))
	for _, l := range list {
		out = append(out, *l)
	}
	return out, nil
}

// Import stores lessons produced by Export, keeping their ids and timestamps.
// Lessons whose id already exists are skipped. Each lesson is validated,
// redacted when redaction is on, and re-embedded. It returns how many were
// stored; on error, lessons before the failing one remain stored.
func (e *Engine) Import(ctx context.Context, lessons []models.Lesson) (n int, err error) {
	defer e.observe("import", time.Now(), &err)
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	for i := range lessons {
		in := lessons[i]
		if err := validateConfidence(in.Confidence); err != nil {
			return n, loreerr.Wrap(err, loreerr.CodeValidationInvalidInput, "invalid lesson in import",
				loreerr.Field("index", i))
		}
		if in.ID == "" {
			in.ID = uuid.NewString()
		} else {
			existing, err := e.store.Get(ctx, in.ID)
			if err != nil {
				return n, err
			}
			if existing != nil {
				e.logger.Debug("Skipping existing lesson", zap.String("id", in.ID))
				continue
			}
		}
		if in.CreatedAt.IsZero() {
			in.CreatedAt = e.now()
		}
		lesson := &models.Lesson{
			ID:         in.ID,
			Problem:    e.scrub(in.Problem),
			Resolution: e.scrub(in.Resolution),
			Context:    e.scrub(in.Context),
			Tags:       append(make([]string, 0, len(in.Tags)), in.Tags...),
			Confidence: in.Confidence,
			CreatedAt:  in.CreatedAt.UTC(),
		}
		if err := e.put(ctx, lesson); err != nil {
			if loreerr.IsConflict(err) {
				continue
			}
			return n, err
		}
		n++
	}
	e.logger.Debug("Imported lessons", zap.Int("count", n), zap.Int("total", len(lessons)))
	return n, nil
}
