// Package config provides configuration loading and structs for the lore server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	loreerr "github.com/hyperjump/lore/pkg/errors"
	"github.com/hyperjump/lore/pkg/redact"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Lore      LoreConfig      `yaml:"lore"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Watch     WatchConfig     `yaml:"watch"`
}

// WatchConfig holds import inbox settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the lesson store.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend      string `yaml:"backend"`
	DatabasePath string `yaml:"database_path"`
	// TextIndex enables the in-memory keyword index.
	TextIndex *bool `yaml:"text_index"`
	// TextFuzziness is the edit distance keyword search tolerates (0 to 2).
	TextFuzziness *int `yaml:"text_fuzziness"`
}

// TextIndexOrDefault returns whether to build the keyword index; defaults to true.
func (s *StorageConfig) TextIndexOrDefault() bool {
	if s.TextIndex != nil {
		return *s.TextIndex
	}
	return true
}

// TextFuzzinessOrDefault returns the keyword search edit distance; defaults to 1.
func (s *StorageConfig) TextFuzzinessOrDefault() int {
	if s.TextFuzziness != nil {
		return *s.TextFuzziness
	}
	return 1
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	// Provider is "hashing" or "onnx".
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// LoreConfig holds engine behaviour.
type LoreConfig struct {
	Redact          bool             `yaml:"redact"`
	RedactPatterns  []redact.Pattern `yaml:"redact_patterns"`
	DefaultK        int              `yaml:"default_k"`
	EmbedResolution bool             `yaml:"embed_resolution"`
	PromptMaxTokens int              `yaml:"prompt_max_tokens"`
}

// RateLimitConfig holds HTTP rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Backend       string `yaml:"backend"`
	MaxRequests   int    `yaml:"max_requests"`
	WindowSeconds int    `yaml:"window_seconds"`
	RedisURL      string `yaml:"redis_url"`
}

// Load reads and parses the config file at path, applies environment
// overrides and defaults, and expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, loreerr.Wrapf(err, loreerr.CodeConfigLoadReadFailure, "failed to read config %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, loreerr.Wrapf(err, loreerr.CodeConfigParseInvalidFormat, "failed to parse config %s", path)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values that defaults cannot repair.
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "sqlite", "memory":
	default:
		return invalid("storage.backend", cfg.Storage.Backend)
	}
	switch strings.ToLower(cfg.Embedding.Provider) {
	case "hashing", "onnx":
	default:
		return invalid("embedding.provider", cfg.Embedding.Provider)
	}
	switch strings.ToLower(cfg.RateLimit.Backend) {
	case "memory", "redis":
	default:
		return invalid("rate_limit.backend", cfg.RateLimit.Backend)
	}
	if f := cfg.Storage.TextFuzziness; f != nil && (*f < 0 || *f > 2) {
		return invalid("storage.text_fuzziness", *f)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return invalid("server.port", cfg.Server.Port)
	}
	if cfg.Lore.DefaultK < 0 {
		return invalid("lore.default_k", cfg.Lore.DefaultK)
	}
	for _, p := range cfg.Lore.RedactPatterns {
		if p.Name == "" || p.Expr == "" {
			return invalid("lore.redact_patterns", p)
		}
	}
	return nil
}

func invalid(key string, value any) error {
	return loreerr.New(loreerr.CodeConfigValidateInvalidValue,
		fmt.Sprintf("invalid value for %s: %v", key, value), loreerr.Field("key", key))
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SaveWatchDirectories replaces watch.directories in the config file at path.
// The rest of the file is rewritten as it was read, so environment overrides
// and _FILE secrets resolved by Load never reach disk. A missing file is
// created holding only the watch section.
func SaveWatchDirectories(path string, dirs []string) error {
	var raw Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return loreerr.Wrapf(err, loreerr.CodeConfigParseInvalidFormat, "failed to parse config %s", path)
		}
	case os.IsNotExist(err):
	default:
		return loreerr.Wrapf(err, loreerr.CodeConfigLoadReadFailure, "failed to read config %s", path)
	}
	raw.Watch.Directories = append([]string(nil), dirs...)
	return Save(path, &raw)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
