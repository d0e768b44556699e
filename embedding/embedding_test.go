package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	emb := NewHashEmbedder(64)

	a, err := emb.Embed(context.Background(), "变压器短路试验")
	require.NoError(t, err)
	b, err := emb.Embed(context.Background(), "变压器短路试验")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashEmbedderUnitNorm(t *testing.T) {
	emb := NewHashEmbedder(32)

	vec, err := emb.Embed(context.Background(), "transformer winding insulation test")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestHashEmbedderOverlapBeatsDisjoint(t *testing.T) {
	emb := NewHashEmbedder(128)
	ctx := context.Background()

	query, err := emb.Embed(ctx, "变压器短路试验的目的")
	require.NoError(t, err)
	related, err := emb.Embed(ctx, "变压器短路试验方法")
	require.NoError(t, err)
	unrelated, err := emb.Embed(ctx, "relay protection basics")
	require.NoError(t, err)

	assert.Greater(t, dot(query, related), dot(query, unrelated))
}

func TestNewEmbedderRejectsUnknownProvider(t *testing.T) {
	_, err := NewEmbedder(Options{Provider: "cohere"})
	assert.Error(t, err)
}

func TestNewEmbedderRequiresOpenAIKey(t *testing.T) {
	_, err := NewEmbedder(Options{Provider: ProviderOpenAI, Model: "text-embedding-3-small"})
	assert.Error(t, err)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
