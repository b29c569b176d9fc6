package ratelimit

import (
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/lore/internal/config"
	loreerr "github.com/hyperjump/lore/pkg/errors"
)

// FromConfig builds the backend named by cfg.Backend.
func FromConfig(cfg config.RateLimitConfig, logger *zap.Logger) (Backend, error) {
	window := time.Duration(cfg.WindowSeconds) * time.Second
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBackend(cfg.MaxRequests, window), nil
	case "redis":
		b, err := NewRedisBackend(cfg.RedisURL, cfg.MaxRequests, window, logger)
		if err != nil {
			return nil, loreerr.Wrap(err, loreerr.CodeConfigValidateInvalidValue, "invalid rate_limit.redis_url")
		}
		return b, nil
	default:
		return nil, loreerr.Errorf(loreerr.CodeConfigValidateInvalidValue, "unknown rate limit backend %q", cfg.Backend)
	}
}
