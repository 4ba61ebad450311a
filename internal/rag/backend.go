package rag

import (
	"context"
	"sort"
)

// BackendKind names an exact nearest-neighbor implementation.
type BackendKind string

// Backend kinds. BackendAuto prefers chromem and falls back to dense.
const (
	BackendAuto    BackendKind = "auto"
	BackendChromem BackendKind = "chromem"
	BackendDense   BackendKind = "dense"
)

// Backend performs exact inner-product search over unit vectors. Every
// implementation must return the same hits for the same query.
type Backend interface {
	Kind() BackendKind
	Search(ctx context.Context, query []float32, k int, minScore float64) ([]Hit, error)
}

// rankHits keeps positive scores at or above minScore, orders them by score
// descending then chunk index ascending, and truncates to k.
func rankHits(hits []Hit, k int, minScore float64) []Hit {
	kept := hits[:0]
	for _, h := range hits {
		if h.Score > 0 && h.Score >= minScore {
			kept = append(kept, h)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Index < kept[j].Index
	})
	if len(kept) > k {
		kept = kept[:k]
	}
	return kept
}

// dot is a sequential float32 inner product. The chromem backend computes
// similarity the same way, which keeps scores identical across backends.
func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// denseBackend scans the full vector matrix.
type denseBackend struct {
	vectors [][]float32
}

func newDenseBackend(vectors [][]float32) *denseBackend {
	return &denseBackend{vectors: vectors}
}

func (b *denseBackend) Kind() BackendKind { return BackendDense }

func (b *denseBackend) Search(ctx context.Context, query []float32, k int, minScore float64) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(b.vectors))
	for i, v := range b.vectors {
		hits = append(hits, Hit{Index: i, Score: float64(dot(v, query))})
	}
	return rankHits(hits, k, minScore), nil
}
