package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwise/diagmesh/core"
	"github.com/gridwise/diagmesh/embedding"
)

func turn(role core.Role, content string) core.ConversationTurn {
	return core.ConversationTurn{Role: role, Content: content}
}

func TestRecentTurnsChronologicalOrder(t *testing.T) {
	store := NewInMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", turn(core.RoleUser, "first")))
	require.NoError(t, store.AppendTurn(ctx, "s1", turn(core.RoleAssistant, "second")))
	require.NoError(t, store.AppendTurn(ctx, "s1", turn(core.RoleUser, "third")))

	turns := store.RecentTurns("s1", 2)
	require.Len(t, turns, 2)
	assert.Equal(t, "second", turns[0].Content)
	assert.Equal(t, "third", turns[1].Content)
}

func TestFIFOEvictionBeyondWindow(t *testing.T) {
	store := NewInMemoryStore(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.AppendTurn(ctx, "s1", turn(core.RoleUser, fmt.Sprintf("turn-%d", i))))
	}

	turns := store.RecentTurns("s1", 10)
	require.Len(t, turns, 3)
	assert.Equal(t, "turn-3", turns[0].Content)
	assert.Equal(t, "turn-5", turns[2].Content)
}

func TestSessionsAreIsolated(t *testing.T) {
	store := NewInMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", turn(core.RoleUser, "session one")))
	require.NoError(t, store.AppendTurn(ctx, "s2", turn(core.RoleUser, "session two")))

	assert.Len(t, store.RecentTurns("s1", 10), 1)
	assert.Len(t, store.RecentTurns("s2", 10), 1)
	assert.Empty(t, store.RecentTurns("s3", 10))
}

func TestSimilarTurnsWithoutEmbedderReturnsEmpty(t *testing.T) {
	store := NewInMemoryStore(10)
	ctx := context.Background()
	require.NoError(t, store.AppendTurn(ctx, "s1", turn(core.RoleUser, "变压器温度")))

	turns, err := store.SimilarTurns(ctx, "s1", "变压器", 3)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestSimilarTurnsRanksByRelevance(t *testing.T) {
	store := NewInMemoryStore(10, WithEmbedder(embedding.NewHashEmbedder(128)))
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", turn(core.RoleUser, "变压器短路试验的步骤")))
	require.NoError(t, store.AppendTurn(ctx, "s1", turn(core.RoleUser, "relay protection settings")))

	turns, err := store.SimilarTurns(ctx, "s1", "变压器短路试验", 1)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "变压器短路试验的步骤", turns[0].Content)
}

func TestLongTermSurvivesShortTermEviction(t *testing.T) {
	store := NewInMemoryStore(1, WithEmbedder(embedding.NewHashEmbedder(64)))
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", turn(core.RoleUser, "oldest entry about 断路器")))
	require.NoError(t, store.AppendTurn(ctx, "s1", turn(core.RoleUser, "newer entry")))

	assert.Len(t, store.RecentTurns("s1", 10), 1)

	turns, err := store.SimilarTurns(ctx, "s1", "断路器", 5)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestEndSessionClearsMemory(t *testing.T) {
	store := NewInMemoryStore(10)
	ctx := context.Background()
	require.NoError(t, store.AppendTurn(ctx, "s1", turn(core.RoleUser, "hello")))

	store.EndSession("s1")
	assert.Empty(t, store.RecentTurns("s1", 10))
}

type brokenEmbedder struct{}

func (brokenEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding backend down")
}

func TestAppendTurnKeepsShortTermWhenEmbeddingFails(t *testing.T) {
	store := NewInMemoryStore(10, WithEmbedder(brokenEmbedder{}))
	ctx := context.Background()

	err := store.AppendTurn(ctx, "s1", turn(core.RoleUser, "变压器油温偏高"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "long-term entry skipped")

	turns := store.RecentTurns("s1", 10)
	require.Len(t, turns, 1)
	assert.Equal(t, "变压器油温偏高", turns[0].Content)
}

type fakeTurnStore struct {
	appendErr error
	appended  []core.ConversationTurn
	found     []core.ConversationTurn
	deleted   []string
}

func (f *fakeTurnStore) Append(_ context.Context, sessionID string, turn core.ConversationTurn, vector []float32) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, turn)
	return nil
}

func (f *fakeTurnStore) Search(_ context.Context, sessionID string, vector []float32, k int) ([]core.ConversationTurn, error) {
	return f.found, nil
}

func (f *fakeTurnStore) DeleteSession(_ context.Context, sessionID string) error {
	f.deleted = append(f.deleted, sessionID)
	return nil
}

func TestLongTermBackendReceivesTurnsAndServesSearch(t *testing.T) {
	backend := &fakeTurnStore{found: []core.ConversationTurn{turn(core.RoleUser, "历史提问")}}
	store := NewInMemoryStore(10, WithEmbedder(embedding.NewHashEmbedder(64)), WithLongTerm(backend))
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", turn(core.RoleUser, "变压器油温偏高")))
	require.Len(t, backend.appended, 1)
	assert.Equal(t, "变压器油温偏高", backend.appended[0].Content)

	turns, err := store.SimilarTurns(ctx, "s1", "变压器", 3)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "历史提问", turns[0].Content)

	store.EndSession("s1")
	assert.Equal(t, []string{"s1"}, backend.deleted)
	assert.Empty(t, store.RecentTurns("s1", 10))
}

func TestLongTermBackendFailureKeepsShortTerm(t *testing.T) {
	backend := &fakeTurnStore{appendErr: fmt.Errorf("qdrant unavailable")}
	store := NewInMemoryStore(10, WithEmbedder(embedding.NewHashEmbedder(64)), WithLongTerm(backend))
	ctx := context.Background()

	err := store.AppendTurn(ctx, "s1", turn(core.RoleUser, "断路器拒动"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "long-term entry skipped")
	require.Len(t, store.RecentTurns("s1", 10), 1)
}
