package lore

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/lore/pkg/embedding"
	"github.com/hyperjump/lore/pkg/models"
	"github.com/hyperjump/lore/pkg/ranking"
)

func BenchmarkRank(b *testing.B) {
	e := embedding.NewHashingEmbedder(DefaultDimensions)
	ctx := context.Background()
	candidates := make([]models.LessonVector, 1000)
	for i := range candidates {
		text := fmt.Sprintf("lesson %d about error %d in service %d", i, i%37, i%11)
		vec, _ := e.Embed(ctx, text)
		candidates[i] = models.LessonVector{Lesson: &models.Lesson{ID: fmt.Sprint(i), Problem: text}, Vector: vec}
	}
	query, _ := e.Embed(ctx, "error in service")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ranking.Rank(query, candidates, 10)
	}
}

func BenchmarkHashingEmbedder_Embed(b *testing.B) {
	e := embedding.NewHashingEmbedder(DefaultDimensions)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}

func BenchmarkQuery(b *testing.B) {
	e, err := New()
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	ctx := context.Background()
	for i := 0; i < 500; i++ {
		_, err := e.Publish(ctx, models.LessonInput{
			Problem:    fmt.Sprintf("service %d fails with error %d", i%13, i),
			Resolution: "restart it",
		})
		if err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Query(ctx, "service fails", 5)
	}
}
