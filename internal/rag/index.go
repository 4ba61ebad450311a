package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/program"
)

// DefaultMinScore is the lowest cosine similarity a search result may have.
const DefaultMinScore = 0.1

// Hit is a scored chunk position.
type Hit struct {
	Index int
	Score float64
}

// Index is one immutable TF-IDF generation: the chunks, a sorted vocabulary
// with IDF weights, one unit (or zero) vector per chunk, and the search
// backend chosen at build time.
type Index struct {
	chunks  []program.Chunk
	terms   []string
	dims    map[string]int
	idf     []float64
	vectors [][]float32
	backend Backend
	dense   *denseBackend
	builtAt time.Time
	log     *logger.Logger
}

// BuildIndex vectorizes chunks and loads them into the requested backend.
// When the accelerated backend cannot be built the dense scan is used.
func BuildIndex(ctx context.Context, chunks []program.Chunk, kind BackendKind, log *logger.Logger) (*Index, error) {
	if log == nil {
		log = logger.New("info")
	}
	switch kind {
	case "":
		kind = BackendAuto
	case BackendAuto, BackendChromem, BackendDense:
	default:
		return nil, fmt.Errorf("unknown index backend %q", kind)
	}

	docs := make([][]string, len(chunks))
	df := make(map[string]int)
	for i, c := range chunks {
		docs[i] = Tokenize(c.Text)
		seen := make(map[string]struct{}, len(docs[i]))
		for _, tok := range docs[i] {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	dims := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(chunks))
	for i, term := range terms {
		dims[term] = i
		idf[i] = math.Log(n / float64(df[term]))
	}

	ix := &Index{
		chunks:  chunks,
		terms:   terms,
		dims:    dims,
		idf:     idf,
		vectors: make([][]float32, len(chunks)),
		builtAt: time.Now(),
		log:     log,
	}
	for i, tokens := range docs {
		ix.vectors[i] = ix.weigh(tokens)
	}

	ix.dense = newDenseBackend(ix.vectors)
	ix.backend = ix.dense

	if kind != BackendDense && len(chunks) > 0 {
		b, err := newChromemBackend(ctx, ix.vectors)
		switch {
		case err != nil && kind == BackendChromem:
			log.WithError(err).Warn("Chromem backend unavailable, using dense scan")
		case err != nil:
			log.WithError(err).Debug("Chromem backend unavailable, using dense scan")
		default:
			ix.backend = b
		}
	}

	log.WithFields(map[string]any{
		"chunks":     len(chunks),
		"vocabulary": len(terms),
		"backend":    string(ix.backend.Kind()),
	}).Info("TF-IDF index built")

	return ix, nil
}

// weigh builds the L2-normalized TF-IDF vector for a token list. Terms
// outside the vocabulary are ignored; the result is all zero when no known
// term remains.
func (ix *Index) weigh(tokens []string) []float32 {
	vec := make([]float32, len(ix.terms))
	if len(tokens) == 0 {
		return vec
	}

	counts := make(map[int]int, len(tokens))
	for _, tok := range tokens {
		if d, ok := ix.dims[tok]; ok {
			counts[d]++
		}
	}

	// Accumulate in dimension order so rebuilds are bit-for-bit identical.
	present := make([]int, 0, len(counts))
	for d := range counts {
		present = append(present, d)
	}
	sort.Ints(present)

	weights := make([]float64, len(present))
	var sum float64
	length := float64(len(tokens))
	for i, d := range present {
		w := float64(counts[d]) / length * ix.idf[d]
		weights[i] = w
		sum += w * w
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i, d := range present {
		vec[d] = float32(weights[i] / norm)
	}
	return vec
}

// QueryVector tokenizes and weighs a query. It returns nil when no query
// term is in the vocabulary.
func (ix *Index) QueryVector(query string) []float32 {
	vec := ix.weigh(Tokenize(query))
	if isZero(vec) {
		return nil
	}
	return vec
}

// Search scores every chunk against the query and returns at most k hits
// with score >= minScore, best first, ties in chunk order. Backend errors
// fall back to the dense scan.
func (ix *Index) Search(ctx context.Context, query string, k int, minScore float64) []Hit {
	if ix == nil || len(ix.chunks) == 0 || k <= 0 {
		return nil
	}
	q := ix.QueryVector(query)
	if q == nil {
		return nil
	}

	hits, err := ix.backend.Search(ctx, q, k, minScore)
	if err != nil && ix.backend.Kind() != BackendDense {
		ix.log.WithError(err).WithField("backend", string(ix.backend.Kind())).
			Warn("Backend search failed, falling back to dense scan")
		hits, err = ix.dense.Search(ctx, q, k, minScore)
	}
	if err != nil {
		ix.log.WithError(err).Warn("Dense search failed")
		return nil
	}
	return hits
}

// Chunk returns the chunk at position i.
func (ix *Index) Chunk(i int) program.Chunk {
	return ix.chunks[i]
}

// Chunks returns the indexed chunks in insertion order.
func (ix *Index) Chunks() []program.Chunk {
	return ix.chunks
}

// Vector returns the stored vector of chunk i.
func (ix *Index) Vector(i int) []float32 {
	return ix.vectors[i]
}

// Vocabulary returns the sorted term list.
func (ix *Index) Vocabulary() []string {
	return ix.terms
}

// IDF returns the weight of term and whether it is in the vocabulary.
func (ix *Index) IDF(term string) (float64, bool) {
	d, ok := ix.dims[term]
	if !ok {
		return 0, false
	}
	return ix.idf[d], true
}

// Len returns the number of chunks.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.chunks)
}

// BackendKind reports which backend answers queries.
func (ix *Index) BackendKind() BackendKind {
	return ix.backend.Kind()
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
