package embedding

import (
	"context"
	"math"
	"testing"
	"time"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestProviders_DeterministicAndNormalized(t *testing.T) {
	ctx := context.Background()
	providers := []Provider{NewHashProvider(0), NewCharGramProvider(0)}

	for _, p := range providers {
		a, err := p.Embed(ctx, "the deployment failed on staging")
		if err != nil {
			t.Fatalf("%s embed: %v", p.Model(), err)
		}
		b, err := p.Embed(ctx, "the deployment failed on staging")
		if err != nil {
			t.Fatalf("%s embed: %v", p.Model(), err)
		}
		if len(a) != p.Dimensions() {
			t.Fatalf("%s: got %d dims, want %d", p.Model(), len(a), p.Dimensions())
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("%s: embedding not deterministic at %d", p.Model(), i)
			}
		}
		if norm := cosine(a, a); math.Abs(norm-1.0) > 1e-5 {
			t.Fatalf("%s: vector not unit-normalized, |v|^2 = %f", p.Model(), norm)
		}
	}
}

func TestProviders_SimilarTextScoresHigher(t *testing.T) {
	ctx := context.Background()
	for _, p := range []Provider{NewHashProvider(0), NewCharGramProvider(0)} {
		query, _ := p.Embed(ctx, "what coffee does the user like")
		near, _ := p.Embed(ctx, "the user likes dark roast coffee")
		far, _ := p.Embed(ctx, "kubernetes ingress controller timeout")
		if cosine(query, near) <= cosine(query, far) {
			t.Fatalf("%s: related text did not score higher", p.Model())
		}
	}
}

func TestProviders_EmptyInput(t *testing.T) {
	ctx := context.Background()
	for _, p := range []Provider{NewHashProvider(0), NewCharGramProvider(0)} {
		if _, err := p.Embed(ctx, "   "); err == nil {
			t.Fatalf("%s: expected error for blank input", p.Model())
		}
	}
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	p := NewCharGramProvider(0)
	texts := []string{"first entry", "second entry", "third entry"}
	vecs, err := p.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, text := range texts {
		single, _ := p.Embed(ctx, text)
		if cosine(vecs[i], single) < 0.999 {
			t.Fatalf("batch item %d does not match single embed", i)
		}
	}
}

type countingProvider struct {
	Provider
	calls int
}

func (c *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.Provider.Embed(ctx, text)
}

func TestCachingProvider_MemoizesByText(t *testing.T) {
	ctx := context.Background()
	counted := &countingProvider{Provider: NewHashProvider(0)}
	cached := NewCachingProvider(counted, 16, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := cached.Embed(ctx, "repeated content"); err != nil {
			t.Fatalf("embed: %v", err)
		}
	}
	if counted.calls != 1 {
		t.Fatalf("expected 1 inner call, got %d", counted.calls)
	}

	cached.Purge()
	if _, err := cached.Embed(ctx, "repeated content"); err != nil {
		t.Fatalf("embed after purge: %v", err)
	}
	if counted.calls != 2 {
		t.Fatalf("expected purge to force re-embed, got %d calls", counted.calls)
	}
}
