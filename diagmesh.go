// Package diagmesh provides a high-level façade over the retrieval, routing
// and pipeline packages enabling rapid construction of a grid-equipment
// question answering and diagnosis service. Most applications interact with
// this package by:
//  1. Creating a DiagMesh via New() (optionally overriding the default
//     in-memory indexes, stores and the mock generator)
//  2. Loading corpus documents with AddDocuments
//  3. Submitting queries with Run
//
// The façade delegates execution to workflow.Orchestrator while keeping setup
// ergonomics concise. All defaults are safe for local development and testing;
// production deployments typically supply a real model backend, a Qdrant
// vector index and an externally built corpus.
package diagmesh

import (
	"context"

	"github.com/gridwise/diagmesh/artifact"
	"github.com/gridwise/diagmesh/config"
	"github.com/gridwise/diagmesh/core"
	"github.com/gridwise/diagmesh/embedding"
	"github.com/gridwise/diagmesh/index"
	"github.com/gridwise/diagmesh/logging"
	"github.com/gridwise/diagmesh/memory"
	"github.com/gridwise/diagmesh/model"
	"github.com/gridwise/diagmesh/report"
	"github.com/gridwise/diagmesh/retrieval"
	"github.com/gridwise/diagmesh/router"
	"github.com/gridwise/diagmesh/workflow"
)

// DefaultHashDimension is the vector size of the fallback hash embedder used
// when no embedder is supplied.
const DefaultHashDimension = 256

// Options configures the DiagMesh instance.
type Options struct {
	// Config holds the engine tunables. Defaults to config.Default(); use
	// config.Load() to pick up DIAGMESH_* environment overrides.
	Config config.Config

	// Generator backs classification, analysis and synthesis. Defaults to a
	// mock generator suitable for tests and wiring checks only.
	Generator core.Generator

	// Embedder produces dense vectors for the default vector index and the
	// long-term session memory. Defaults to a hash embedder.
	Embedder core.Embedder

	// LexicalIndex and VectorIndex override the default in-memory indexes.
	// When overridden, AddDocuments no longer reaches the replaced index.
	LexicalIndex core.LexicalIndex
	VectorIndex  core.VectorIndex

	// Reranker rescores fused candidates. Nil with Config.RerankEnabled set
	// falls back to a generator-backed reranker.
	Reranker retrieval.Reranker

	// ArtifactStore receives rendered diagnosis reports.
	ArtifactStore *artifact.InMemoryStore

	// Memory stores per-session conversation history.
	Memory core.MemoryStore

	// Logger (defaults to a slog-backed engine logger if nil).
	Logger *logging.EngineLogger
}

// DiagMesh is the high-level façade aggregating the orchestrator and the
// stores it runs against.
type DiagMesh struct {
	opts         Options
	orchestrator *workflow.Orchestrator
	memory       core.MemoryStore
	artifacts    *artifact.InMemoryStore

	// Owned default indexes; nil when the caller supplied its own.
	bm25    *index.BM25Index
	vectors *index.MemoryVectorIndex
}

// New creates a DiagMesh instance with optional overrides. Any unset
// dependency is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) (*DiagMesh, error) {
	opts := Options{Config: config.Default()}
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewEngineLogger(nil)
	}

	generator := opts.Generator
	if generator == nil {
		generator = model.NewMockGenerator("dev", "mock")
	}
	generator = model.WithTimeout(generator, cfg.GenerateTimeout)

	embedder := opts.Embedder
	if embedder == nil {
		embedder = embedding.NewHashEmbedder(DefaultHashDimension)
	}

	m := &DiagMesh{opts: opts}

	lexical := opts.LexicalIndex
	if lexical == nil {
		m.bm25 = index.NewBM25Index()
		lexical = m.bm25
	}
	vector := opts.VectorIndex
	if vector == nil {
		m.vectors = index.NewMemoryVectorIndex(embedder)
		vector = m.vectors
	}

	var expander *retrieval.QueryExpander
	if cfg.ExpansionEnabled {
		expander = retrieval.NewQueryExpander(generator, logger)
	}
	reranker := opts.Reranker
	if reranker == nil && cfg.RerankEnabled {
		reranker = retrieval.NewGeneratorReranker(generator)
	}

	retriever, err := retrieval.NewHybridRetriever(lexical, vector, retrieval.Options{
		SparseWeight:    cfg.SparseWeight,
		DenseWeight:     cfg.DenseWeight,
		CandidatePool:   cfg.CandidatePool,
		Expander:        expander,
		Reranker:        reranker,
		RerankPool:      cfg.RerankPool,
		CacheTTL:        cfg.CacheTTL,
		CacheMaxEntries: cfg.CacheMaxEntries,
		SearchTimeout:   cfg.SearchTimeout,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	m.artifacts = opts.ArtifactStore
	if m.artifacts == nil {
		m.artifacts = artifact.NewInMemoryStore()
	}
	m.memory = opts.Memory
	if m.memory == nil {
		m.memory = memory.NewInMemoryStore(cfg.MemoryWindow, memory.WithEmbedder(embedder))
	}

	orchestrator, err := workflow.New(workflow.Options{
		Router: router.New(router.Options{
			Generator:           generator,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			Logger:              logger,
		}),
		Retriever: retriever,
		Generator: generator,
		Renderer:  report.NewMarkdownRenderer(m.artifacts),
		Memory:    m.memory,
		Config: workflow.Config{
			RetrievalK:        cfg.RetrievalK,
			MaxConcurrentRuns: cfg.MaxConcurrentRuns,
			RenderTimeout:     cfg.RenderTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	m.orchestrator = orchestrator

	return m, nil
}

// AddDocuments loads corpus documents into the owned in-memory indexes. It
// fails when both indexes were supplied externally; external indexes are
// populated by the corpus build step, not through the façade.
func (m *DiagMesh) AddDocuments(ctx context.Context, docs ...core.Document) error {
	if m.bm25 == nil && m.vectors == nil {
		return &core.ConfigError{Field: "LexicalIndex", Message: "externally managed indexes cannot be loaded through AddDocuments"}
	}
	if m.bm25 != nil {
		m.bm25.Add(docs...)
	}
	if m.vectors != nil {
		return m.vectors.Add(ctx, docs...)
	}
	return nil
}

// Run executes one query through routing and the selected pipeline and blocks
// until the terminal result.
func (m *DiagMesh) Run(ctx context.Context, query core.Query) (*workflow.Result, error) {
	return m.orchestrator.Run(ctx, query)
}

// Stop cancels an in-flight run by its run ID.
func (m *DiagMesh) Stop(runID string) error { return m.orchestrator.Stop(runID) }

// ActiveRuns reports the number of in-flight runs.
func (m *DiagMesh) ActiveRuns() int { return m.orchestrator.ActiveRuns() }

// EndSession discards all conversation memory for the session.
func (m *DiagMesh) EndSession(sessionID string) { m.memory.EndSession(sessionID) }

// Artifacts exposes the store holding rendered diagnosis reports.
func (m *DiagMesh) Artifacts() *artifact.InMemoryStore { return m.artifacts }
