package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/gridwise/diagmesh/core"
)

// BM25 parameter defaults. k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

type bm25Doc struct {
	id     string
	text   string
	freq   map[string]int
	length int
}

// BM25Index is an in-memory lexical index implementing core.LexicalIndex.
//
// score(D,Q) = sum over query terms q of
//
//	IDF(q) * f(q,D) * (k1+1) / (f(q,D) + k1 * (1 - b + b*|D|/avgdl))
//
// with IDF(q) = ln((N - df + 0.5) / (df + 0.5) + 1).
type BM25Index struct {
	mu    sync.RWMutex
	k1    float64
	b     float64
	docs  []bm25Doc
	df    map[string]int
	total int
}

// BM25Option customizes index parameters.
type BM25Option func(*BM25Index)

// WithK1 overrides the term-frequency saturation parameter.
func WithK1(k1 float64) BM25Option { return func(i *BM25Index) { i.k1 = k1 } }

// WithB overrides the length normalization parameter.
func WithB(b float64) BM25Option { return func(i *BM25Index) { i.b = b } }

// NewBM25Index creates an empty BM25 index.
func NewBM25Index(opts ...BM25Option) *BM25Index {
	idx := &BM25Index{
		k1: DefaultK1,
		b:  DefaultB,
		df: make(map[string]int),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Add indexes documents. Safe for concurrent use with Search.
func (i *BM25Index) Add(docs ...core.Document) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, doc := range docs {
		tokens := Tokenize(doc.Text)
		freq := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freq[tok]++
		}
		for tok := range freq {
			i.df[tok]++
		}
		i.docs = append(i.docs, bm25Doc{
			id:     doc.ID,
			text:   doc.Text,
			freq:   freq,
			length: len(tokens),
		})
		i.total += len(tokens)
	}
}

// Len returns the number of indexed documents.
func (i *BM25Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// Search implements core.LexicalIndex. Zero-score documents are excluded.
func (i *BM25Index) Search(ctx context.Context, query string, limit int) ([]core.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.docs) == 0 || limit <= 0 {
		return nil, nil
	}
	avgdl := float64(i.total) / float64(len(i.docs))
	n := float64(len(i.docs))

	terms := Tokenize(query)
	candidates := make([]core.Candidate, 0, limit)
	for _, doc := range i.docs {
		var score float64
		for _, term := range terms {
			f := float64(doc.freq[term])
			if f == 0 {
				continue
			}
			df := float64(i.df[term])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			denom := f + i.k1*(1-i.b+i.b*float64(doc.length)/avgdl)
			score += idf * f * (i.k1 + 1) / denom
		}
		if score > 0 {
			candidates = append(candidates, core.Candidate{
				DocumentID: doc.id,
				Text:       doc.text,
				Score:      score,
			})
		}
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
