package embedding

import (
	"context"
	"sync"
	"testing"
)

func TestProviderLazyMock(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(ProviderConfig{UseMock: true, Dimensions: 8}, nil)

	v1, err := p.Embed(ctx, "hello world")
	if err != nil {
		t.Fatal(err)
	}
	if len(v1) != 8 {
		t.Fatalf("dimensions = %d, want 8", len(v1))
	}

	// Same text, same vector.
	v2, err := p.Embed(ctx, "hello world")
	if err != nil {
		t.Fatal(err)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatal("mock embedder not deterministic")
		}
	}
}

func TestProviderConcurrentInit(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(ProviderConfig{UseMock: true, Dimensions: 16}, nil)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Embed(ctx, "concurrent")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestProviderBatch(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(ProviderConfig{UseMock: true, Dimensions: 4}, nil)

	vecs, err := p.EmbedBatch(ctx, []string{"a", "b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("batch = %d, want 3", len(vecs))
	}
	for i := range vecs[0] {
		if vecs[0][i] != vecs[2][i] {
			t.Fatal("identical texts embedded differently")
		}
	}
}
