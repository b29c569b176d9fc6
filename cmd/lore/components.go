package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/lore/internal/config"
	"github.com/hyperjump/lore/internal/keyword"
	"github.com/hyperjump/lore/pkg/embedding"
	"github.com/hyperjump/lore/pkg/lore"
	"github.com/hyperjump/lore/pkg/store"
)

// newEmbedder builds the configured embedder. An ONNX model that cannot be
// loaded falls back to the hashing embedder so the CLI stays usable.
func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) embedding.Embedder {
	if cfg.Provider == "onnx" {
		e, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:  cfg.ModelPath,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
		})
		if err == nil {
			return e
		}
		logger.Warn("failed to load ONNX model, falling back to hashing embedder",
			zap.String("model_path", cfg.ModelPath), zap.Error(err))
	}
	return embedding.NewHashingEmbedder(cfg.Dimensions)
}

// buildEngine wires the store, embedder, redaction and keyword index from cfg.
func buildEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger, extra ...lore.Option) (*lore.Engine, error) {
	st, err := store.Open(store.Kind(cfg.Storage.Backend), cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	embedder := newEmbedder(cfg.Embedding, logger)
	opts := []lore.Option{
		lore.WithStore(st),
		lore.WithOwnedEmbedder(embedder),
		lore.WithEmbedderIdentity(fmt.Sprintf("%s:%d", cfg.Embedding.Provider, cfg.Embedding.Dimensions)),
		lore.WithCacheSize(cfg.Embedding.CacheSize),
		lore.WithRedaction(cfg.Lore.Redact),
		lore.WithDefaultK(cfg.Lore.DefaultK),
		lore.WithEmbedResolution(cfg.Lore.EmbedResolution),
		lore.WithLogger(logger),
	}
	if cfg.Lore.Redact && len(cfg.Lore.RedactPatterns) > 0 {
		opts = append(opts, lore.WithRedactPatterns(cfg.Lore.RedactPatterns...))
	}

	var idx *keyword.BleveIndex
	if cfg.Storage.TextIndexOrDefault() {
		idx, err = keyword.NewBleveIndex("", keyword.WithFuzziness(cfg.Storage.TextFuzzinessOrDefault()))
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		opts = append(opts, lore.WithTextIndex(idx))
	}
	opts = append(opts, extra...)

	engine, err := lore.New(opts...)
	if err != nil {
		_ = st.Close()
		if idx != nil {
			_ = idx.Close()
		}
		return nil, err
	}
	if idx != nil {
		n, err := engine.RebuildTextIndex(ctx)
		if err != nil {
			_ = engine.Close()
			return nil, err
		}
		logger.Debug("keyword index built", zap.Int("lessons", n))
	}
	return engine, nil
}
