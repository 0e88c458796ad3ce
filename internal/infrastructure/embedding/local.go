package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	DefaultLocalDimension = 384

	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// hashEmbedder is a deterministic feature-hashing embedder: word tokens and
// character trigrams are hashed into buckets, then the vector is L2-normalised.
type hashEmbedder struct {
	dim int
}

func newHashEmbedder(dim int) *hashEmbedder {
	if dim <= 0 {
		dim = DefaultLocalDimension
	}
	return &hashEmbedder{dim: dim}
}

func (h *hashEmbedder) embed(ctx context.Context, texts []string, _ Task) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dim)
	lower := strings.ToLower(text)

	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		v[h.bucket(tok)] += tokenWeight
	}

	var letters []rune
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			letters = append(letters, r)
		}
	}
	for i := 0; i+ngramSize <= len(letters); i++ {
		v[h.bucket(string(letters[i:i+ngramSize]))] += ngramWeight
	}

	if allZero(v) {
		// punctuation or whitespace only
		v[h.bucket(text)] = 1
		return v
	}
	normalize(v)
	return v
}

func (h *hashEmbedder) bucket(s string) int {
	f := fnv.New32a()
	_, _ = f.Write([]byte(s))
	return int(f.Sum32() % uint32(h.dim))
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}
