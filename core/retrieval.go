package core

import "context"

// RetrievedChunk is a scored candidate produced by one retrieval call. It is
// created fresh per call and never persisted. FusedScore is a pure function of
// SparseScore, DenseScore and the configured fusion weights; recomputing it
// for the same chunk and weights is bit-reproducible.
type RetrievedChunk struct {
	DocumentID  string   `json:"document_id"`
	Text        string   `json:"text"`
	SparseScore float64  `json:"sparse_score"`
	DenseScore  float64  `json:"dense_score"`
	FusedScore  float64  `json:"fused_score"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// FinalScore returns the score governing the chunk's position in the result:
// the rerank score when the reranker produced one, the fused score otherwise.
func (c RetrievedChunk) FinalScore() float64 {
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	return c.FusedScore
}

// RetrievalResult is the outcome of one HybridRetriever call. Chunks are
// ordered descending by FinalScore. ExpandedFrom holds the original query text
// when expansion rewrote it; QueryUsed is always the string that was searched.
// Degraded lists the non-fatal fallbacks taken during the call (for example
// "rerank", "expansion", "lexical") so callers can observe partial operation.
type RetrievalResult struct {
	Chunks       []RetrievedChunk `json:"chunks"`
	QueryUsed    string           `json:"query_used"`
	ExpandedFrom string           `json:"expanded_from,omitempty"`
	CacheHit     bool             `json:"cache_hit"`
	Degraded     []string         `json:"degraded,omitempty"`
}

// Candidate is a raw scored hit returned by a single index before fusion.
type Candidate struct {
	DocumentID string
	Text       string
	Score      float64
}

// LexicalIndex performs sparse keyword search over the tokenized corpus.
// Implementations are read-only after construction and safe for concurrent
// searches.
type LexicalIndex interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// VectorIndex performs dense nearest-neighbor search over document embeddings.
// Implementations are read-only after construction and safe for concurrent
// searches.
type VectorIndex interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Retriever is the contract the pipelines depend on. The concrete hybrid
// implementation lives in the retrieval package.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (*RetrievalResult, error)
}
