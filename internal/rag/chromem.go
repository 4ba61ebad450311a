package rag

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
)

const chromemCollection = "program_chunks"

var errNoTextEmbedding = errors.New("chunks carry precomputed TF-IDF vectors")

// chromemBackend holds the unit vectors in an in-memory chromem-go
// collection and queries it by embedding. Zero vectors are left out since
// they can never score above zero.
type chromemBackend struct {
	collection *chromem.Collection
}

func newChromemBackend(ctx context.Context, vectors [][]float32) (*chromemBackend, error) {
	db := chromem.NewDB()
	collection, err := db.CreateCollection(chromemCollection, nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoTextEmbedding
	})
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	docs := make([]chromem.Document, 0, len(vectors))
	for i, v := range vectors {
		if isZero(v) {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        strconv.Itoa(i),
			Embedding: v,
		})
	}
	if len(docs) > 0 {
		if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("add documents: %w", err)
		}
	}
	return &chromemBackend{collection: collection}, nil
}

func (b *chromemBackend) Kind() BackendKind { return BackendChromem }

// Search asks chromem for every stored document and ranks them with the
// shared ranking so ties resolve by chunk order.
func (b *chromemBackend) Search(ctx context.Context, query []float32, k int, minScore float64) ([]Hit, error) {
	n := b.collection.Count()
	if n == 0 {
		return nil, nil
	}
	results, err := b.collection.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		idx, err := strconv.Atoi(r.ID)
		if err != nil {
			return nil, fmt.Errorf("chromem document id %q: %w", r.ID, err)
		}
		hits = append(hits, Hit{Index: idx, Score: float64(r.Similarity)})
	}
	return rankHits(hits, k, minScore), nil
}
