package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/metrics"
	"github.com/garyellow/itmo-advisor-go/internal/program"
)

// Substring fallback constants.
const (
	FallbackScore      = 0.5
	fallbackMaxResults = 5
	fallbackMaxRunes   = 500
)

// Status values reported by Stats.
const (
	StatusNotInitialized = "not_initialized"
	StatusReady          = "ready"
)

// Chunk is the indexed unit; the type lives in program to keep the chunker
// free of retrieval dependencies.
type Chunk = program.Chunk

// Result is one retrieved snippet.
type Result struct {
	Text  string            `json:"text"`
	Score float64           `json:"score"`
	Meta  program.ChunkMeta `json:"metadata"`
}

// Stats is an introspection snapshot of the live generation.
type Stats struct {
	Status         string         `json:"status"`
	ChunkCount     int            `json:"chunk_count"`
	VocabularySize int            `json:"vocabulary_size"`
	Backend        BackendKind    `json:"backend,omitempty"`
	ProgramChunks  map[string]int `json:"program_chunks"`
	BuiltAt        time.Time      `json:"built_at,omitzero"`
}

// Config configures a Retriever. Zero values select defaults.
type Config struct {
	Backend  BackendKind
	// MinScore is the cosine threshold; nil selects DefaultMinScore.
	MinScore *float64
	Catalog  *program.Catalog
}

// generation is one immutable index together with the records it was built
// from. Readers load it once per call.
type generation struct {
	index   *Index
	records map[string]program.Record
	order   []string
}

// Retriever owns the live index generation. Searches are lock-free; rebuilds
// are serialized and published with an atomic swap.
type Retriever struct {
	backend  BackendKind
	minScore float64
	catalog  *program.Catalog
	chunker  *program.Chunker
	log      *logger.Logger
	metrics  *metrics.Metrics

	mu  sync.Mutex
	gen atomic.Pointer[generation]
}

// NewRetriever creates a Retriever with no generation. m may be nil.
func NewRetriever(cfg Config, log *logger.Logger, m *metrics.Metrics) *Retriever {
	if cfg.Catalog == nil {
		cfg.Catalog = program.DefaultCatalog()
	}
	minScore := DefaultMinScore
	if cfg.MinScore != nil {
		minScore = max(*cfg.MinScore, 0)
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendAuto
	}
	if log == nil {
		log = logger.New("info")
	}
	return &Retriever{
		backend:  cfg.Backend,
		minScore: minScore,
		catalog:  cfg.Catalog,
		chunker:  program.NewChunker(cfg.Catalog),
		log:      log.WithModule("rag"),
		metrics:  m,
	}
}

// Index rebuilds the index from scratch and swaps it in. On failure the
// previous generation stays live and the error is returned.
func (r *Retriever) Index(ctx context.Context, programs map[string]program.Record) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("index build panicked: %v", p)
		}
		if err != nil {
			r.metrics.RecordIndexBuild("error", 0)
			r.log.WithError(err).Error("Index rebuild failed, keeping previous generation")
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	records := make(map[string]program.Record, len(programs))
	for id, rec := range programs {
		records[id] = rec
	}
	order := r.programOrder(records)

	ix, err := BuildIndex(ctx, r.chunker.ChunkAll(order, records), r.backend, r.log)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	r.gen.Store(&generation{index: ix, records: records, order: order})
	r.metrics.RecordIndexBuild("success", ix.Len())
	r.log.WithFields(map[string]any{
		"programs":    len(records),
		"chunks":      ix.Len(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Index generation swapped in")
	return nil
}

// programOrder lists catalog programs first, then unknown ids sorted.
func (r *Retriever) programOrder(records map[string]program.Record) []string {
	order := make([]string, 0, len(records))
	known := make(map[string]struct{}, len(records))
	for _, id := range r.catalog.IDs() {
		if _, ok := records[id]; ok {
			order = append(order, id)
			known[id] = struct{}{}
		}
	}
	var extra []string
	for id := range records {
		if _, ok := known[id]; !ok {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

// Search returns up to topK chunks ranked by cosine similarity. Without a
// usable index it scans the raw records for the query instead.
func (r *Retriever) Search(ctx context.Context, query string, topK int) []Result {
	g := r.gen.Load()
	if g == nil || g.index.Len() == 0 {
		return r.fallback(g, query, topK)
	}
	return r.vectorSearch(ctx, g, query, topK)
}

// SearchWithFallback runs the vector search and, when it finds nothing,
// the substring scan.
func (r *Retriever) SearchWithFallback(ctx context.Context, query string, topK int) []Result {
	g := r.gen.Load()
	if g == nil || g.index.Len() == 0 {
		return r.fallback(g, query, topK)
	}
	if results := r.vectorSearch(ctx, g, query, topK); len(results) > 0 {
		return results
	}
	return r.fallback(g, query, topK)
}

func (r *Retriever) vectorSearch(ctx context.Context, g *generation, query string, topK int) []Result {
	start := time.Now()
	hits := g.index.Search(ctx, query, topK, r.minScore)

	outcome := "hit"
	if len(hits) == 0 {
		outcome = "empty"
	}
	r.metrics.RecordSearch(string(g.index.BackendKind()), outcome, time.Since(start).Seconds())

	results := make([]Result, len(hits))
	for i, h := range hits {
		c := g.index.Chunk(h.Index)
		results[i] = Result{Text: c.Text, Score: h.Score, Meta: c.Meta}
	}
	return results
}

// fallback is a case-insensitive containment scan over raw records. String
// sections match as a whole; nested maps match per string value.
func (r *Retriever) fallback(g *generation, query string, topK int) []Result {
	if g == nil || topK <= 0 {
		return nil
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}
	limit := min(topK, fallbackMaxResults)

	var results []Result
	for _, id := range g.order {
		rec := g.records[id]
		name := r.chunker.DisplayName(id, rec)
		for _, section := range rec.SortedKeys() {
			switch v := rec[section].(type) {
			case string:
				if strings.Contains(strings.ToLower(v), needle) {
					results = append(results, fallbackResult(id, name, section, v))
				}
			case map[string]any:
				keys := make([]string, 0, len(v))
				for k := range v {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					s, ok := v[k].(string)
					if ok && strings.Contains(strings.ToLower(s), needle) {
						results = append(results, fallbackResult(id, name, section+" - "+k, s))
					}
				}
			}
			if len(results) >= limit {
				r.metrics.RecordSearch("substring", "fallback", 0)
				return results[:limit]
			}
		}
	}
	if len(results) > 0 {
		r.metrics.RecordSearch("substring", "fallback", 0)
	}
	return results
}

func fallbackResult(id, name, section, content string) Result {
	if runes := []rune(content); len(runes) > fallbackMaxRunes {
		content = string(runes[:fallbackMaxRunes])
	}
	return Result{
		Text:  "Программа: " + name + "\nРаздел: " + section + "\n" + content + "...",
		Score: FallbackScore,
		Meta:  program.ChunkMeta{ProgramID: id, Program: name, Section: section, Kind: program.KindSearch},
	}
}

// ProgramContext returns every chunk of the named program in insertion
// order with score 1.0.
func (r *Retriever) ProgramContext(_ context.Context, programName string) []Result {
	g := r.gen.Load()
	if g == nil {
		return nil
	}
	var results []Result
	for _, c := range g.index.Chunks() {
		if c.Meta.Program == programName {
			results = append(results, Result{Text: c.Text, Score: 1.0, Meta: c.Meta})
		}
	}
	return results
}

// Records returns the raw records of the live generation. Callers must not
// mutate them.
func (r *Retriever) Records() map[string]program.Record {
	g := r.gen.Load()
	if g == nil {
		return nil
	}
	return g.records
}

// Ready reports whether a generation has been built.
func (r *Retriever) Ready() bool {
	return r.gen.Load() != nil
}

// Stats reports the size and shape of the live generation.
func (r *Retriever) Stats() Stats {
	g := r.gen.Load()
	if g == nil {
		return Stats{Status: StatusNotInitialized, ProgramChunks: map[string]int{}}
	}
	perProgram := make(map[string]int)
	for _, c := range g.index.Chunks() {
		perProgram[c.Meta.Program]++
	}
	return Stats{
		Status:         StatusReady,
		ChunkCount:     g.index.Len(),
		VocabularySize: len(g.index.Vocabulary()),
		Backend:        g.index.BackendKind(),
		ProgramChunks:  perProgram,
		BuiltAt:        g.index.builtAt,
	}
}
