package retrieval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwise/diagmesh/core"
)

type stubIndex struct {
	mu         sync.Mutex
	candidates []core.Candidate
	err        error
	calls      int32
	delay      time.Duration
	lastQuery  string
}

func (s *stubIndex) Search(ctx context.Context, query string, limit int) ([]core.Candidate, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	s.lastQuery = query
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.candidates) > limit {
		return s.candidates[:limit], nil
	}
	return s.candidates, nil
}

func (s *stubIndex) callCount() int { return int(atomic.LoadInt32(&s.calls)) }

type stubReranker struct {
	scores []float64
	err    error
	query  string
}

func (s *stubReranker) Rerank(_ context.Context, query string, documents []string) ([]float64, error) {
	s.query = query
	if s.err != nil {
		return nil, s.err
	}
	return s.scores[:len(documents)], nil
}

func newRetriever(t *testing.T, lexical, vector *stubIndex, opts Options) *HybridRetriever {
	t.Helper()
	r, err := NewHybridRetriever(lexical, vector, opts)
	require.NoError(t, err)
	return r
}

func TestHybridFusionWeightsAndNormalization(t *testing.T) {
	lexical := &stubIndex{candidates: []core.Candidate{
		{DocumentID: "a", Text: "A", Score: 10},
		{DocumentID: "b", Text: "B", Score: 5},
	}}
	vector := &stubIndex{candidates: []core.Candidate{
		{DocumentID: "b", Text: "B", Score: 0.9},
		{DocumentID: "c", Text: "C", Score: 0.1},
	}}
	r := newRetriever(t, lexical, vector, Options{SparseWeight: 0.4, DenseWeight: 0.6})

	result, err := r.Retrieve(context.Background(), "query", 3)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)

	// a: sparse 1.0 * 0.4 = 0.4; b: sparse 0 + dense 1.0*0.6 = 0.6; c: 0.
	assert.Equal(t, "b", result.Chunks[0].DocumentID)
	assert.Equal(t, "a", result.Chunks[1].DocumentID)
	assert.Equal(t, "c", result.Chunks[2].DocumentID)
	assert.InDelta(t, 0.6, result.Chunks[0].FusedScore, 1e-9)
	assert.InDelta(t, 0.4, result.Chunks[1].FusedScore, 1e-9)
}

func TestFuseDeterministicTieBreak(t *testing.T) {
	sparse := map[string]core.Candidate{
		"z": {DocumentID: "z", Score: 1},
		"a": {DocumentID: "a", Score: 1},
	}
	dense := map[string]core.Candidate{}

	for i := 0; i < 10; i++ {
		chunks := fuse(sparse, dense, 0.4, 0.6)
		require.Len(t, chunks, 2)
		assert.Equal(t, "a", chunks[0].DocumentID)
		assert.Equal(t, "z", chunks[1].DocumentID)
	}
}

func TestHybridDegradesWhenOneIndexFails(t *testing.T) {
	lexical := &stubIndex{err: errors.New("index offline")}
	vector := &stubIndex{candidates: []core.Candidate{
		{DocumentID: "a", Text: "A", Score: 0.8},
	}}
	r := newRetriever(t, lexical, vector, Options{})

	result, err := r.Retrieve(context.Background(), "query", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"sparse"}, result.Degraded)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "a", result.Chunks[0].DocumentID)
}

func TestHybridFailsWhenBothIndexesFail(t *testing.T) {
	lexical := &stubIndex{err: errors.New("offline")}
	vector := &stubIndex{err: errors.New("offline")}
	r := newRetriever(t, lexical, vector, Options{})

	_, err := r.Retrieve(context.Background(), "query", 5)
	var rerr *core.RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "hybrid", rerr.Source)
}

func TestHybridNoResults(t *testing.T) {
	r := newRetriever(t, &stubIndex{}, &stubIndex{}, Options{})

	_, err := r.Retrieve(context.Background(), "query", 5)
	assert.ErrorIs(t, err, core.ErrNoResults)
}

func TestHybridCacheHit(t *testing.T) {
	lexical := &stubIndex{candidates: []core.Candidate{{DocumentID: "a", Text: "A", Score: 1}}}
	vector := &stubIndex{candidates: []core.Candidate{{DocumentID: "a", Text: "A", Score: 1}}}
	r := newRetriever(t, lexical, vector, Options{CacheTTL: time.Minute})

	first, err := r.Retrieve(context.Background(), "query", 5)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := r.Retrieve(context.Background(), "query", 5)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, lexical.callCount())
	assert.Equal(t, 1, vector.callCount())
}

func TestHybridCacheKeyCollapsesWhitespace(t *testing.T) {
	lexical := &stubIndex{candidates: []core.Candidate{{DocumentID: "a", Text: "A", Score: 1}}}
	vector := &stubIndex{candidates: []core.Candidate{{DocumentID: "a", Text: "A", Score: 1}}}
	r := newRetriever(t, lexical, vector, Options{CacheTTL: time.Minute})

	_, err := r.Retrieve(context.Background(), "变压器  温度", 5)
	require.NoError(t, err)

	second, err := r.Retrieve(context.Background(), " 变压器 温度 ", 5)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, lexical.callCount())
	assert.Equal(t, 1, vector.callCount())
}

func TestHybridCacheEvictsOldestWhenFull(t *testing.T) {
	lexical := &stubIndex{candidates: []core.Candidate{{DocumentID: "a", Text: "A", Score: 1}}}
	vector := &stubIndex{candidates: []core.Candidate{{DocumentID: "a", Text: "A", Score: 1}}}
	r := newRetriever(t, lexical, vector, Options{CacheTTL: time.Minute, CacheMaxEntries: 2})

	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := r.Retrieve(context.Background(), q, 5)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, r.cache.ItemCount())

	// q2 survived the eviction; q1 was the oldest entry and is gone.
	hit, err := r.Retrieve(context.Background(), "q2", 5)
	require.NoError(t, err)
	assert.True(t, hit.CacheHit)

	miss, err := r.Retrieve(context.Background(), "q1", 5)
	require.NoError(t, err)
	assert.False(t, miss.CacheHit)
}

func TestHybridSingleFlight(t *testing.T) {
	lexical := &stubIndex{
		candidates: []core.Candidate{{DocumentID: "a", Text: "A", Score: 1}},
		delay:      50 * time.Millisecond,
	}
	vector := &stubIndex{candidates: []core.Candidate{{DocumentID: "a", Text: "A", Score: 1}}}
	r := newRetriever(t, lexical, vector, Options{CacheTTL: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := r.Retrieve(context.Background(), "query", 5)
			assert.NoError(t, err)
			assert.NotEmpty(t, result.Chunks)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, lexical.callCount())
}

func TestHybridRerankUsesOriginalQueryAndOverridesOrder(t *testing.T) {
	lexical := &stubIndex{candidates: []core.Candidate{
		{DocumentID: "a", Text: "A", Score: 10},
		{DocumentID: "b", Text: "B", Score: 1},
	}}
	vector := &stubIndex{}
	reranker := &stubReranker{scores: []float64{0.1, 0.9}}
	r := newRetriever(t, lexical, vector, Options{
		Reranker:   reranker,
		RerankPool: 10,
	})

	result, err := r.Retrieve(context.Background(), "原始查询", 2)
	require.NoError(t, err)
	assert.Equal(t, "原始查询", reranker.query)
	// Rerank flipped the fused order.
	assert.Equal(t, "b", result.Chunks[0].DocumentID)
	assert.Equal(t, "a", result.Chunks[1].DocumentID)
	require.NotNil(t, result.Chunks[0].RerankScore)
	assert.InDelta(t, 0.9, *result.Chunks[0].RerankScore, 1e-9)
}

func TestHybridKeepsFusedOrderWhenRerankerFails(t *testing.T) {
	lexical := &stubIndex{candidates: []core.Candidate{
		{DocumentID: "a", Text: "A", Score: 10},
		{DocumentID: "b", Text: "B", Score: 1},
	}}
	vector := &stubIndex{}
	r := newRetriever(t, lexical, vector, Options{
		Reranker: &stubReranker{err: errors.New("service down")},
	})

	result, err := r.Retrieve(context.Background(), "query", 2)
	require.NoError(t, err)
	assert.Contains(t, result.Degraded, "rerank")
	assert.Equal(t, "a", result.Chunks[0].DocumentID)
	assert.Nil(t, result.Chunks[0].RerankScore)
}

func TestNormalizeSingleCandidate(t *testing.T) {
	out := normalize(map[string]core.Candidate{"a": {DocumentID: "a", Score: 3.2}})
	assert.Equal(t, 1.0, out["a"])
}

func TestNewHybridRetrieverRejectsBadWeights(t *testing.T) {
	_, err := NewHybridRetriever(&stubIndex{}, &stubIndex{}, Options{SparseWeight: 0.7, DenseWeight: 0.7})
	var cerr *core.ConfigError
	assert.ErrorAs(t, err, &cerr)
}
