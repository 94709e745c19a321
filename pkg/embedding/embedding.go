// Package embedding defines the provider contract the memory engine uses
// to turn text into vectors, plus deterministic local providers suitable
// for development and tests. Production deployments plug in a real model
// behind the same interface.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ErrEmptyInput indicates an embed call with no text.
var ErrEmptyInput = errors.New("embedding: empty input")

// Provider converts text to fixed-length vectors.
type Provider interface {
	// Embed converts a single text to a vector of Dimensions() length.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts several texts in one call, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length this provider produces.
	Dimensions() int

	// Model identifies the embedding model, for cache keying and storage.
	Model() string
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_\-]+`)

func tokenize(text string) []string {
	text = strings.ToLower(text)
	matches := tokenPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	return matches
}

func normalizeVector(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	inv := float32(1 / norm)
	for i := range vec {
		vec[i] *= inv
	}
}

// batchEmbed implements EmbedBatch for providers that embed one text at a
// time, honoring ctx between items.
func batchEmbed(ctx context.Context, p Provider, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed batch item %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}
