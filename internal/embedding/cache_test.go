package embedding

import "testing"

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("alpha", []float32{1})
	c.Set("beta", []float32{2})

	// Touch alpha so beta becomes the eviction candidate.
	if _, ok := c.Get("alpha"); !ok {
		t.Fatal("alpha missing before eviction")
	}
	c.Set("gamma", []float32{3})

	if _, ok := c.Get("beta"); ok {
		t.Error("beta should have been evicted")
	}
	if _, ok := c.Get("alpha"); !ok {
		t.Error("alpha evicted despite recent use")
	}
	if _, ok := c.Get("gamma"); !ok {
		t.Error("gamma missing")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestCacheMissAndOverwrite(t *testing.T) {
	c := NewEmbeddingCache(4)
	if v, ok := c.Get("nothing"); ok || v != nil {
		t.Fatal("expected a miss on an empty cache")
	}

	c.Set("note", []float32{1, 2})
	c.Set("note", []float32{9, 9})
	v, ok := c.Get("note")
	if !ok || len(v) != 2 || v[0] != 9 {
		t.Errorf("overwrite not visible: %v, %v", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1 after overwrite", c.Len())
	}
}
