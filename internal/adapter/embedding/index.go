package embedding

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"concierge/internal/domain"
)

// indexEntry is one embedded pattern text owned by an agent.
type indexEntry struct {
	id  string // agent ID
	vec []float32
}

// Index is an in-memory cosine-similarity index over agent pattern
// embeddings. Built once per catalog generation and read-only afterwards,
// so lookups need no locking; Build swaps the entry slice atomically.
type Index struct {
	mu      sync.RWMutex
	entries []indexEntry
}

// NewIndex returns an empty index.
func NewIndex() *Index { return &Index{} }

// Build embeds every agent's semantic-pattern corpus and replaces the
// index contents. Corpora are embedded concurrently, one errgroup task
// per agent.
func (ix *Index) Build(ctx context.Context, embedder domain.EmbeddingProvider, corpora map[string][]string) error {
	var (
		emu     sync.Mutex
		entries []indexEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for id, texts := range corpora {
		if len(texts) == 0 {
			continue
		}
		g.Go(func() error {
			vecs, err := embedder.Embed(gctx, texts)
			if err != nil {
				return domain.WrapOp("index build: "+id, err)
			}
			emu.Lock()
			for _, v := range vecs {
				entries = append(entries, indexEntry{id: id, vec: v})
			}
			emu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.mu.Unlock()
	return nil
}

// Similar implements domain.EmbeddingIndex. Returns the best hit per
// agent, sorted by descending score.
func (ix *Index) Similar(_ context.Context, vector []float32, topK int) ([]domain.SimilarityHit, error) {
	ix.mu.RLock()
	entries := ix.entries
	ix.mu.RUnlock()

	best := make(map[string]float64)
	for _, e := range entries {
		score := cosine(vector, e.vec)
		if cur, ok := best[e.id]; !ok || score > cur {
			best[e.id] = score
		}
	}

	hits := make([]domain.SimilarityHit, 0, len(best))
	for id, score := range best {
		hits = append(hits, domain.SimilarityHit{ID: id, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// cosine computes cosine similarity between two vectors.
// Returns 0 for mismatched or zero-magnitude vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Compile-time interface check.
var _ domain.EmbeddingIndex = (*Index)(nil)
