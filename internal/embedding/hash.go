package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/nidhogg/hearsay/internal/memory"
)

// DefaultHashDimension is used when no dimension is configured.
const DefaultHashDimension = 256

// HashProvider embeds text offline by hashing its tokens into a fixed
// number of buckets. Texts sharing words land close under cosine distance.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a HashProvider. Non-positive dimensions fall back
// to DefaultHashDimension.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &HashProvider{dimension: dimension}
}

// Embed returns one unit-length vector per text. Texts without tokens map
// to the zero vector.
func (p *HashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embed(text)
	}
	return out, nil
}

func (p *HashProvider) embed(text string) []float32 {
	vec := make([]float32, p.dimension)
	for _, tok := range memory.Tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[sum%uint64(p.dimension)] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// Dimension returns the vector size.
func (p *HashProvider) Dimension() int { return p.dimension }
