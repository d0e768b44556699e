package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwise/diagmesh/core"
)

func corpusDocs() []core.Document {
	return []core.Document{
		{ID: "doc1", Text: "变压器是电力系统中的重要设备，主要用于电压变换。"},
		{ID: "doc2", Text: "变压器的正常运行温度一般在60-85摄氏度之间。"},
		{ID: "doc3", Text: "当变压器温度超过90度时，需要立即检查冷却系统。"},
		{ID: "doc4", Text: "电力电容器用于无功补偿，提高功率因数。"},
		{ID: "doc5", Text: "断路器是电力系统中的重要保护设备。"},
	}
}

func TestTokenizeDropsSingleCharacters(t *testing.T) {
	tokens := Tokenize("a transformer 短路 test")
	assert.Contains(t, tokens, "transformer")
	assert.Contains(t, tokens, "短路")
	assert.NotContains(t, tokens, "a")
}

func TestTokenizeHanBigrams(t *testing.T) {
	tokens := Tokenize("变压器")
	assert.Equal(t, []string{"变压", "压器"}, tokens)
}

func TestBM25RanksKeywordMatchFirst(t *testing.T) {
	idx := NewBM25Index()
	idx.Add(corpusDocs()...)

	results, err := idx.Search(context.Background(), "变压器温度", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Both temperature docs should outrank the capacitor doc.
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.DocumentID
	}
	assert.Contains(t, ids, "doc2")
	assert.Contains(t, ids, "doc3")
	assert.NotContains(t, ids, "doc4")
}

func TestBM25ExcludesZeroScores(t *testing.T) {
	idx := NewBM25Index()
	idx.Add(corpusDocs()...)

	results, err := idx.Search(context.Background(), "completely unrelated english words", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBM25EmptyIndex(t *testing.T) {
	idx := NewBM25Index()

	results, err := idx.Search(context.Background(), "变压器", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBM25ScoresDescendWithTieBreak(t *testing.T) {
	idx := NewBM25Index()
	idx.Add(corpusDocs()...)

	results, err := idx.Search(context.Background(), "电力系统", 5)
	require.NoError(t, err)
	require.True(t, len(results) >= 2)
	for i := 1; i < len(results); i++ {
		if results[i-1].Score == results[i].Score {
			assert.Less(t, results[i-1].DocumentID, results[i].DocumentID)
		} else {
			assert.Greater(t, results[i-1].Score, results[i].Score)
		}
	}
}

func TestBM25HonorsCanceledContext(t *testing.T) {
	idx := NewBM25Index()
	idx.Add(corpusDocs()...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Search(ctx, "变压器", 5)
	assert.Error(t, err)
}
