package config

import (
	"os"
	"strings"

	loreerr "github.com/hyperjump/lore/pkg/errors"
)

// Environment variables that override the file. Each also accepts a
// <NAME>_FILE variant naming a file that holds the value (Docker secrets);
// the _FILE form wins when both are set.
const (
	EnvDatabasePath = "LORE_DATABASE_PATH"
	EnvRedisURL     = "LORE_REDIS_URL"
)

// ResolveEnv returns the value of name, reading <name>_FILE first.
// ok is false when neither is set.
func ResolveEnv(name string) (value string, ok bool, err error) {
	if path := os.Getenv(name + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false, loreerr.Wrapf(err, loreerr.CodeConfigLoadReadFailure, "failed to read %s_FILE", name)
		}
		return strings.TrimSpace(string(data)), true, nil
	}
	v, ok := os.LookupEnv(name)
	return v, ok, nil
}

// ApplyEnv copies environment overrides into cfg.
func ApplyEnv(cfg *Config) error {
	overrides := []struct {
		name string
		dst  *string
	}{
		{EnvDatabasePath, &cfg.Storage.DatabasePath},
		{EnvRedisURL, &cfg.RateLimit.RedisURL},
	}
	for _, o := range overrides {
		v, ok, err := ResolveEnv(o.name)
		if err != nil {
			return err
		}
		if ok && v != "" {
			*o.dst = v
		}
	}
	return nil
}
