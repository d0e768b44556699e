// Package memory provides the conversation memory behind multi-turn sessions:
// a bounded FIFO of recent turns per session, plus an append-only vector
// memory searched by similarity. The short-term FIFO lives in process memory;
// the long-term side persists to a TurnVectorStore when one is configured and
// falls back to process memory otherwise.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gridwise/diagmesh/core"
)

// TurnVectorStore is the durable backend for long-term memory.
// Implementations persist turn embeddings per session and search them by
// vector similarity.
type TurnVectorStore interface {
	Append(ctx context.Context, sessionID string, turn core.ConversationTurn, vector []float32) error
	Search(ctx context.Context, sessionID string, vector []float32, k int) ([]core.ConversationTurn, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type vectorTurn struct {
	turn   core.ConversationTurn
	vector []float32
}

type sessionMemory struct {
	turns    []core.ConversationTurn
	longTerm []vectorTurn
}

// InMemoryStore implements core.MemoryStore. When constructed without an
// embedder the long-term side is disabled and SimilarTurns returns empty
// results, never an error.
type InMemoryStore struct {
	mu        sync.RWMutex
	window    int
	embedder  core.Embedder
	longStore TurnVectorStore
	sessions  map[string]*sessionMemory
}

// Option customizes an InMemoryStore.
type Option func(*InMemoryStore)

// WithEmbedder enables long-term similarity search over past turns.
func WithEmbedder(embedder core.Embedder) Option {
	return func(s *InMemoryStore) { s.embedder = embedder }
}

// WithLongTerm backs the long-term side with a durable store instead of a
// process-local slice. Requires WithEmbedder to have any effect.
func WithLongTerm(store TurnVectorStore) Option {
	return func(s *InMemoryStore) { s.longStore = store }
}

// NewInMemoryStore creates a store keeping at most window turns per session.
func NewInMemoryStore(window int, opts ...Option) *InMemoryStore {
	if window <= 0 {
		window = 20
	}
	s := &InMemoryStore{
		window:   window,
		sessions: make(map[string]*sessionMemory),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendTurn records a turn. The oldest turn is evicted once the session
// exceeds the window; the long-term side is append-only. An embedding
// failure never loses the turn: the short-term append still happens and the
// returned error marks the skipped long-term entry.
func (s *InMemoryStore) AppendTurn(ctx context.Context, sessionID string, turn core.ConversationTurn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	var vec []float32
	var embedErr error
	if s.embedder != nil {
		v, err := s.embedder.Embed(ctx, turn.Content)
		if err != nil {
			embedErr = fmt.Errorf("long-term entry skipped: %w", err)
		} else {
			vec = v
		}
	}
	if vec != nil && s.longStore != nil {
		if err := s.longStore.Append(ctx, sessionID, turn, vec); err != nil {
			embedErr = fmt.Errorf("long-term entry skipped: %w", err)
		}
		vec = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &sessionMemory{}
		s.sessions[sessionID] = sess
	}
	sess.turns = append(sess.turns, turn)
	if len(sess.turns) > s.window {
		sess.turns = sess.turns[len(sess.turns)-s.window:]
	}
	if vec != nil {
		sess.longTerm = append(sess.longTerm, vectorTurn{turn: turn, vector: vec})
	}
	return embedErr
}

// RecentTurns returns up to n most recent turns in chronological order.
func (s *InMemoryStore) RecentTurns(sessionID string, n int) []core.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok || n <= 0 {
		return nil
	}
	turns := sess.turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]core.ConversationTurn, len(turns))
	copy(out, turns)
	return out
}

// SimilarTurns returns up to k past turns ranked by similarity to the query.
// Without an embedder, or before any turn was stored, it returns an empty
// slice.
func (s *InMemoryStore) SimilarTurns(ctx context.Context, sessionID, query string, k int) ([]core.ConversationTurn, error) {
	if s.embedder == nil || k <= 0 {
		return nil, nil
	}

	if s.longStore != nil {
		qv, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		return s.longStore.Search(ctx, sessionID, qv, k)
	}

	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	var entries []vectorTurn
	if ok {
		entries = make([]vectorTurn, len(sess.longTerm))
		copy(entries, sess.longTerm)
	}
	s.mu.RUnlock()

	if len(entries) == 0 {
		return nil, nil
	}

	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	type scored struct {
		turn  core.ConversationTurn
		score float64
	}
	ranked := make([]scored, 0, len(entries))
	for _, e := range entries {
		ranked = append(ranked, scored{turn: e.turn, score: cosine(qv, e.vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]core.ConversationTurn, len(ranked))
	for i, r := range ranked {
		out[i] = r.turn
	}
	return out, nil
}

// EndSession discards all memory for a session. EndSession has no error
// path; a failed remote delete leaves orphaned vectors in the durable store
// until the collection is rebuilt.
func (s *InMemoryStore) EndSession(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if s.longStore != nil {
		_ = s.longStore.DeleteSession(context.Background(), sessionID)
	}
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
