package embedding

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachingProvider memoizes another provider's embeddings in an expirable
// LRU keyed by model and text. Useful in front of a slow or billed
// provider when the same content is embedded repeatedly (consolidation
// then retrieval of the same items).
type CachingProvider struct {
	inner Provider
	cache *expirable.LRU[string, []float32]
}

var _ Provider = (*CachingProvider)(nil)

// NewCachingProvider wraps inner with an LRU of the given size and entry
// TTL. size <= 0 falls back to 4096; ttl <= 0 means entries never expire.
func NewCachingProvider(inner Provider, size int, ttl time.Duration) *CachingProvider {
	if size <= 0 {
		size = 4096
	}
	return &CachingProvider{
		inner: inner,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (p *CachingProvider) Dimensions() int { return p.inner.Dimensions() }
func (p *CachingProvider) Model() string   { return p.inner.Model() }

func (p *CachingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := p.inner.Model() + "\x00" + text
	if vec, ok := p.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Add(key, vec)
	return vec, nil
}

func (p *CachingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return batchEmbed(ctx, p, texts)
}

// Purge drops every cached embedding.
func (p *CachingProvider) Purge() {
	p.cache.Purge()
}
