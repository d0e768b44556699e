package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/gridwise/diagmesh/core"
)

type vectorDoc struct {
	id     string
	text   string
	vector []float32
}

// MemoryVectorIndex is an in-memory dense index implementing core.VectorIndex.
// Documents are embedded at Add time with the configured embedder; queries are
// scored by cosine similarity.
type MemoryVectorIndex struct {
	mu       sync.RWMutex
	embedder core.Embedder
	docs     []vectorDoc
}

// NewMemoryVectorIndex creates an empty index using the given embedder.
func NewMemoryVectorIndex(embedder core.Embedder) *MemoryVectorIndex {
	return &MemoryVectorIndex{embedder: embedder}
}

// Add embeds and indexes documents.
func (i *MemoryVectorIndex) Add(ctx context.Context, docs ...core.Document) error {
	for _, doc := range docs {
		vec, err := i.embedder.Embed(ctx, doc.Text)
		if err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
		i.mu.Lock()
		i.docs = append(i.docs, vectorDoc{id: doc.ID, text: doc.Text, vector: vec})
		i.mu.Unlock()
	}
	return nil
}

// Len returns the number of indexed documents.
func (i *MemoryVectorIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// Search implements core.VectorIndex.
func (i *MemoryVectorIndex) Search(ctx context.Context, query string, limit int) ([]core.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	qv, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	candidates := make([]core.Candidate, 0, len(i.docs))
	for _, doc := range i.docs {
		score := cosine(qv, doc.vector)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, core.Candidate{
			DocumentID: doc.id,
			Text:       doc.text,
			Score:      score,
		})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score > candidates[b].Score
		}
		return candidates[a].DocumentID < candidates[b].DocumentID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
