package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveEnv_FileWins(t *testing.T) {
	secret := filepath.Join(t.TempDir(), "redis_url")
	if err := os.WriteFile(secret, []byte("redis://secret:6379/1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvRedisURL, "redis://plain:6379/0")
	t.Setenv(EnvRedisURL+"_FILE", secret)

	v, ok, err := ResolveEnv(EnvRedisURL)
	if err != nil || !ok {
		t.Fatalf("ResolveEnv: %v %v", ok, err)
	}
	if v != "redis://secret:6379/1" {
		t.Errorf("got %q", v)
	}
}

func TestResolveEnv_Plain(t *testing.T) {
	t.Setenv(EnvDatabasePath, "/data/lore.db")
	v, ok, err := ResolveEnv(EnvDatabasePath)
	if err != nil || !ok || v != "/data/lore.db" {
		t.Errorf("got %q %v %v", v, ok, err)
	}
}

func TestResolveEnv_Unset(t *testing.T) {
	_, ok, err := ResolveEnv("LORE_TEST_DEFINITELY_UNSET")
	if ok || err != nil {
		t.Errorf("got %v %v", ok, err)
	}
}

func TestResolveEnv_MissingFile(t *testing.T) {
	t.Setenv(EnvRedisURL+"_FILE", filepath.Join(t.TempDir(), "nope"))
	if _, _, err := ResolveEnv(EnvRedisURL); err == nil {
		t.Error("expected error for unreadable _FILE")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDatabasePath, "/override/lore.db")
	cfg, err := Load(writeConfig(t, "storage:\n  database_path: ./ignored.db\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DatabasePath != "/override/lore.db" {
		t.Errorf("database_path = %s", cfg.Storage.DatabasePath)
	}
}
