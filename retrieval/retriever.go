package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gridwise/diagmesh/core"
	"github.com/gridwise/diagmesh/logging"
)

// Options configure a HybridRetriever.
type Options struct {
	// SparseWeight and DenseWeight are the fusion weights, summing to 1.
	SparseWeight float64
	DenseWeight  float64
	// CandidatePool is the per-index candidate count fetched before fusion.
	CandidatePool int
	// Expander, when set, rewrites the query before index lookup. The
	// original query is always kept for reranking.
	Expander *QueryExpander
	// MultiQueryCount > 1 additionally retrieves with generated variants.
	MultiQueryCount int
	// Reranker, when set, rescores the top RerankPool fused candidates.
	Reranker   Reranker
	RerankPool int
	// CacheTTL bounds how long results are served from cache.
	CacheTTL time.Duration
	// CacheMaxEntries bounds cache size; when full, the entry closest to
	// expiry is evicted before the new one is stored. Zero means unbounded.
	CacheMaxEntries int
	// SearchTimeout bounds each index lookup. Zero means no bound beyond
	// the caller's context.
	SearchTimeout time.Duration
	Logger        *logging.EngineLogger
}

// HybridRetriever fuses lexical and dense search results. It implements
// core.Retriever.
//
// Failure of one index degrades to single-source results; only when neither
// index produces a candidate does Retrieve fail, with core.ErrNoResults
// wrapped in a *core.RetrievalError.
type HybridRetriever struct {
	lexical core.LexicalIndex
	vector  core.VectorIndex
	opts    Options
	cache   *gocache.Cache
	group   singleflight.Group
	logger  *logging.EngineLogger
}

// NewHybridRetriever creates a retriever over the two indexes.
func NewHybridRetriever(lexical core.LexicalIndex, vector core.VectorIndex, opts Options) (*HybridRetriever, error) {
	if lexical == nil || vector == nil {
		return nil, &core.ConfigError{Field: "indexes", Message: "both lexical and vector indexes are required"}
	}
	if opts.SparseWeight == 0 && opts.DenseWeight == 0 {
		opts.SparseWeight = 0.4
		opts.DenseWeight = 0.6
	}
	if opts.SparseWeight < 0 || opts.DenseWeight < 0 || abs(opts.SparseWeight+opts.DenseWeight-1) > 1e-9 {
		return nil, &core.ConfigError{Field: "weights", Message: "fusion weights must be non-negative and sum to 1"}
	}
	if opts.CandidatePool <= 0 {
		opts.CandidatePool = 20
	}
	if opts.RerankPool <= 0 {
		opts.RerankPool = 10
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewEngineLogger(nil)
	}
	return &HybridRetriever{
		lexical: lexical,
		vector:  vector,
		opts:    opts,
		cache:   gocache.New(opts.CacheTTL, 2*opts.CacheTTL),
		logger:  logger.WithComponent("retriever"),
	}, nil
}

// Retrieve implements core.Retriever. Concurrent calls for the same query and
// k share one computation; later callers observe a cache hit.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, k int) (*core.RetrievalResult, error) {
	if k <= 0 {
		return nil, &core.ConfigError{Field: "k", Message: "must be > 0"}
	}
	key := fmt.Sprintf("%d|%s", k, normalizeQuery(query))
	if cached, ok := r.cache.Get(key); ok {
		return cloneResult(cached.(*core.RetrievalResult), true), nil
	}

	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		result, err := r.retrieve(ctx, query, k)
		if err != nil {
			return nil, err
		}
		if r.opts.CacheMaxEntries > 0 && r.cache.ItemCount() >= r.opts.CacheMaxEntries {
			r.evictOldest()
		}
		r.cache.Set(key, result, gocache.DefaultExpiration)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneResult(v.(*core.RetrievalResult), shared), nil
}

// normalizeQuery collapses whitespace so trivially different phrasings of
// the same query share one cache entry and one in-flight computation.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// evictOldest drops the entry closest to expiry, which under a fixed TTL is
// the least recently written one.
func (r *HybridRetriever) evictOldest() {
	var victim string
	var oldest int64
	for key, item := range r.cache.Items() {
		if victim == "" || item.Expiration < oldest {
			victim = key
			oldest = item.Expiration
		}
	}
	if victim != "" {
		r.cache.Delete(victim)
	}
}

func (r *HybridRetriever) retrieve(ctx context.Context, query string, k int) (*core.RetrievalResult, error) {
	start := time.Now()
	result := &core.RetrievalResult{QueryUsed: query}

	queries := []string{query}
	if r.opts.Expander != nil {
		rewritten := r.opts.Expander.Rewrite(ctx, query)
		if rewritten != query {
			result.ExpandedFrom = query
			result.QueryUsed = rewritten
		}
		if r.opts.MultiQueryCount > 1 {
			queries = r.opts.Expander.MultiQuery(ctx, rewritten, r.opts.MultiQueryCount)
		} else {
			queries = []string{rewritten}
		}
	}

	sparse, dense, degraded, err := r.fetchCandidates(ctx, queries)
	if err != nil {
		return nil, err
	}
	result.Degraded = degraded

	chunks := fuse(sparse, dense, r.opts.SparseWeight, r.opts.DenseWeight)
	if len(chunks) == 0 {
		return nil, &core.RetrievalError{Source: "hybrid", Err: core.ErrNoResults}
	}

	if r.opts.Reranker != nil {
		// Rerank against the user's original query, not the expanded one.
		if err := r.rerank(ctx, query, chunks); err != nil {
			r.logger.Warn("rerank unavailable, keeping fused order: %v", err)
			result.Degraded = append(result.Degraded, "rerank")
		}
	}

	sortChunks(chunks)
	if len(chunks) > k {
		chunks = chunks[:k]
	}
	result.Chunks = chunks

	r.logger.LogRetrieval(result.QueryUsed, len(chunks), false, result.Degraded, time.Since(start))
	return result, nil
}

// fetchCandidates queries both indexes in parallel, merging multi-query
// candidates by maximum score per document.
func (r *HybridRetriever) fetchCandidates(ctx context.Context, queries []string) (map[string]core.Candidate, map[string]core.Candidate, []string, error) {
	sparse := map[string]core.Candidate{}
	dense := map[string]core.Candidate{}
	var sparseErr, denseErr error

	if r.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.SearchTimeout)
		defer cancel()
	}

	var g errgroup.Group
	g.Go(func() error {
		for _, q := range queries {
			candidates, err := r.lexical.Search(ctx, q, r.opts.CandidatePool)
			if err != nil {
				sparseErr = err
				return nil
			}
			mergeMax(sparse, candidates)
		}
		return nil
	})
	g.Go(func() error {
		for _, q := range queries {
			candidates, err := r.vector.Search(ctx, q, r.opts.CandidatePool)
			if err != nil {
				denseErr = err
				return nil
			}
			mergeMax(dense, candidates)
		}
		return nil
	})
	_ = g.Wait()

	if sparseErr != nil && denseErr != nil {
		return nil, nil, nil, &core.RetrievalError{
			Source: "hybrid",
			Err:    fmt.Errorf("sparse: %v; dense: %w", sparseErr, denseErr),
		}
	}

	var degraded []string
	if sparseErr != nil {
		r.logger.Warn("lexical index unavailable: %v", sparseErr)
		degraded = append(degraded, "sparse")
	}
	if denseErr != nil {
		r.logger.Warn("vector index unavailable: %v", denseErr)
		degraded = append(degraded, "dense")
	}
	return sparse, dense, degraded, nil
}

func (r *HybridRetriever) rerank(ctx context.Context, query string, chunks []core.RetrievedChunk) error {
	sortChunks(chunks)
	pool := len(chunks)
	if pool > r.opts.RerankPool {
		pool = r.opts.RerankPool
	}
	documents := make([]string, pool)
	for i := 0; i < pool; i++ {
		documents[i] = chunks[i].Text
	}
	scores, err := r.opts.Reranker.Rerank(ctx, query, documents)
	if err != nil {
		return err
	}
	for i := 0; i < pool; i++ {
		score := scores[i]
		chunks[i].RerankScore = &score
	}
	return nil
}

// mergeMax keeps the highest score seen per document.
func mergeMax(dst map[string]core.Candidate, candidates []core.Candidate) {
	for _, c := range candidates {
		if existing, ok := dst[c.DocumentID]; !ok || c.Score > existing.Score {
			dst[c.DocumentID] = c
		}
	}
}

// fuse normalizes each source's scores to [0,1] with min-max scaling and
// combines them as a weighted sum. The output order does not depend on map
// iteration; ties sort by document id.
func fuse(sparse, dense map[string]core.Candidate, wSparse, wDense float64) []core.RetrievedChunk {
	sparseNorm := normalize(sparse)
	denseNorm := normalize(dense)

	texts := map[string]string{}
	for id, c := range sparse {
		texts[id] = c.Text
	}
	for id, c := range dense {
		if _, ok := texts[id]; !ok {
			texts[id] = c.Text
		}
	}

	chunks := make([]core.RetrievedChunk, 0, len(texts))
	for id, text := range texts {
		s := sparseNorm[id]
		d := denseNorm[id]
		chunks = append(chunks, core.RetrievedChunk{
			DocumentID:  id,
			Text:        text,
			SparseScore: s,
			DenseScore:  d,
			FusedScore:  wSparse*s + wDense*d,
		})
	}
	sortChunks(chunks)
	return chunks
}

// normalize min-max scales scores into [0,1]. A single candidate, or all
// candidates sharing one score, map to 1.
func normalize(candidates map[string]core.Candidate) map[string]float64 {
	out := make(map[string]float64, len(candidates))
	if len(candidates) == 0 {
		return out
	}
	first := true
	var min, max float64
	for _, c := range candidates {
		if first {
			min, max = c.Score, c.Score
			first = false
			continue
		}
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}
	for id, c := range candidates {
		if max == min {
			out[id] = 1
			continue
		}
		out[id] = (c.Score - min) / (max - min)
	}
	return out
}

func sortChunks(chunks []core.RetrievedChunk) {
	sort.SliceStable(chunks, func(a, b int) bool {
		sa, sb := chunks[a].FinalScore(), chunks[b].FinalScore()
		if sa != sb {
			return sa > sb
		}
		return chunks[a].DocumentID < chunks[b].DocumentID
	})
}

func cloneResult(r *core.RetrievalResult, cacheHit bool) *core.RetrievalResult {
	clone := *r
	clone.CacheHit = cacheHit
	clone.Chunks = make([]core.RetrievedChunk, len(r.Chunks))
	copy(clone.Chunks, r.Chunks)
	clone.Degraded = append([]string(nil), r.Degraded...)
	return &clone
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
