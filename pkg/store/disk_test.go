package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()

	// Single file
	f1 := filepath.Join(dir, "f1.txt")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := DiskUsageBytes(f1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("single file: got %d bytes, want 5", got)
	}

	// Directory
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = DiskUsageBytes(f1, sub, filepath.Join(dir, "nonexistent"), "")
	if err != nil {
		t.Fatal(err)
	}
	if got != 7 {
		t.Errorf("file+dir: got %d bytes, want 7", got)
	}
}

func TestUsageBytes_Memory(t *testing.T) {
	n, err := UsageBytes(NewMemoryStore())
	if err != nil || n != 0 {
		t.Errorf("memory store usage = %d, %v", n, err)
	}
}
