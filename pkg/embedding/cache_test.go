package embedding

import (
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c, err := NewEmbeddingCache(16)
	if err != nil {
		t.Fatalf("NewEmbeddingCache: %v", err)
	}
	defer c.Close()

	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
}

func TestEmbeddingCache_Copies(t *testing.T) {
	c, err := NewEmbeddingCache(16)
	if err != nil {
		t.Fatalf("NewEmbeddingCache: %v", err)
	}
	defer c.Close()

	in := []float32{1, 2}
	c.Set("k", in)
	in[0] = 99
	out, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if out[0] != 1 {
		t.Errorf("cache kept caller's slice: %v", out)
	}
	out[1] = 42
	again, _ := c.Get("k")
	if again[1] != 2 {
		t.Errorf("Get returned shared slice: %v", again)
	}
}

func TestEmbeddingCache_Clear(t *testing.T) {
	c, err := NewEmbeddingCache(0)
	if err != nil {
		t.Fatalf("NewEmbeddingCache: %v", err)
	}
	defer c.Close()
	c.Set("a", []float32{1})
	c.Clear()
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Clear")
	}
}
