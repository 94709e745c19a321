package embedding

import (
	"context"
	"hash/fnv"
	"strings"
)

const (
	// HashModel names the token-hashing provider.
	HashModel = "mnemo-hash-256-v1"
	// CharGramModel names the character-trigram provider.
	CharGramModel = "mnemo-chargram-384-v1"
)

// HashProvider embeds by hashing tokens into a fixed number of signed
// buckets. Cheap and deterministic; similar token sets land close.
type HashProvider struct {
	dims int
}

// NewHashProvider creates a hash provider. dims <= 0 falls back to 256.
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = 256
	}
	return &HashProvider{dims: dims}
}

var _ Provider = (*HashProvider)(nil)

func (p *HashProvider) Dimensions() int { return p.dims }
func (p *HashProvider) Model() string   { return HashModel }

func (p *HashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	vec := make([]float32, p.dims)
	for _, token := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dims))
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		weight := float32(1 + (len(token) / 8))
		vec[idx] += sign * weight
	}
	normalizeVector(vec)
	return vec, nil
}

func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return batchEmbed(ctx, p, texts)
}

// CharGramProvider embeds character trigrams plus whole tokens. More
// robust to typos and inflection than plain token hashing.
type CharGramProvider struct {
	dims int
}

// NewCharGramProvider creates a trigram provider. dims <= 0 falls back
// to 384.
func NewCharGramProvider(dims int) *CharGramProvider {
	if dims <= 0 {
		dims = 384
	}
	return &CharGramProvider{dims: dims}
}

var _ Provider = (*CharGramProvider)(nil)

func (p *CharGramProvider) Dimensions() int { return p.dims }
func (p *CharGramProvider) Model() string   { return CharGramModel }

func (p *CharGramProvider) Embed(_ context.Context, text string) ([]float32, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil, ErrEmptyInput
	}
	vec := make([]float32, p.dims)
	window := "#" + normalized + "#"
	for i := 0; i+3 <= len(window); i++ {
		gram := window[i : i+3]
		h := fnv.New64a()
		_, _ = h.Write([]byte(gram))
		idx := int(h.Sum64() % uint64(p.dims))
		vec[idx]++
	}
	for _, token := range tokenize(normalized) {
		h := fnv.New64a()
		_, _ = h.Write([]byte("tok:" + token))
		idx := int(h.Sum64() % uint64(p.dims))
		vec[idx] += 1.25
	}
	normalizeVector(vec)
	return vec, nil
}

func (p *CharGramProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return batchEmbed(ctx, p, texts)
}
