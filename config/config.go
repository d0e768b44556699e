// Package config holds the startup configuration surface of DiagMesh. All
// values are validated once at construction; invalid values fail fast with a
// descriptive *core.ConfigError instead of being silently clamped.
package config

import (
	"math"
	"os"
	"strconv"
	"time"

	"github.com/gridwise/diagmesh/core"
)

// Config is the validated engine configuration.
type Config struct {
	// RetrievalK bounds the number of chunks returned per retrieval call.
	RetrievalK int
	// CandidatePool is the per-index candidate count fetched before fusion.
	// Must be >= RetrievalK.
	CandidatePool int
	// SparseWeight and DenseWeight are the fusion weights. They must each be
	// in [0,1] and sum to 1.
	SparseWeight float64
	DenseWeight  float64
	// RerankEnabled toggles second-pass reranking of the top RerankPool
	// fused candidates.
	RerankEnabled bool
	RerankPool    int
	// ExpansionEnabled toggles model-backed query expansion before retrieval.
	ExpansionEnabled bool
	// ConfidenceThreshold is the router cutoff below which an Intent carries
	// the low-confidence flag.
	ConfidenceThreshold float64
	// MemoryWindow caps the short-term per-session turn history.
	MemoryWindow int
	// CacheTTL and CacheMaxEntries bound the retrieval result cache.
	CacheTTL        time.Duration
	CacheMaxEntries int
	// Per-capability timeouts.
	GenerateTimeout time.Duration
	SearchTimeout   time.Duration
	RenderTimeout   time.Duration
	// MaxConcurrentRuns bounds simultaneous pipeline runs. 0 means unlimited.
	MaxConcurrentRuns int
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		RetrievalK:          5,
		CandidatePool:       20,
		SparseWeight:        0.4,
		DenseWeight:         0.6,
		RerankEnabled:       false,
		RerankPool:          10,
		ExpansionEnabled:    false,
		ConfidenceThreshold: 0.5,
		MemoryWindow:        20,
		CacheTTL:            5 * time.Minute,
		CacheMaxEntries:     1024,
		GenerateTimeout:     60 * time.Second,
		SearchTimeout:       5 * time.Second,
		RenderTimeout:       30 * time.Second,
		MaxConcurrentRuns:   10,
	}
}

// Load reads configuration from environment variables on top of Default and
// validates the result.
func Load() (Config, error) {
	cfg := Default()
	var err error
	if cfg.RetrievalK, err = intEnv("DIAGMESH_RETRIEVAL_K", cfg.RetrievalK); err != nil {
		return cfg, err
	}
	if cfg.CandidatePool, err = intEnv("DIAGMESH_CANDIDATE_POOL", cfg.CandidatePool); err != nil {
		return cfg, err
	}
	if cfg.SparseWeight, err = floatEnv("DIAGMESH_SPARSE_WEIGHT", cfg.SparseWeight); err != nil {
		return cfg, err
	}
	if cfg.DenseWeight, err = floatEnv("DIAGMESH_DENSE_WEIGHT", cfg.DenseWeight); err != nil {
		return cfg, err
	}
	if cfg.ConfidenceThreshold, err = floatEnv("DIAGMESH_CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold); err != nil {
		return cfg, err
	}
	if cfg.MemoryWindow, err = intEnv("DIAGMESH_MEMORY_WINDOW", cfg.MemoryWindow); err != nil {
		return cfg, err
	}
	cfg.RerankEnabled = boolEnv("DIAGMESH_RERANK", cfg.RerankEnabled)
	cfg.ExpansionEnabled = boolEnv("DIAGMESH_QUERY_EXPANSION", cfg.ExpansionEnabled)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every invariant of the configuration surface.
func (c Config) Validate() error {
	if c.RetrievalK <= 0 {
		return &core.ConfigError{Field: "RetrievalK", Message: "must be > 0"}
	}
	if c.CandidatePool < c.RetrievalK {
		return &core.ConfigError{Field: "CandidatePool", Message: "must be >= RetrievalK"}
	}
	if c.SparseWeight < 0 || c.SparseWeight > 1 {
		return &core.ConfigError{Field: "SparseWeight", Message: "must be in [0,1]"}
	}
	if c.DenseWeight < 0 || c.DenseWeight > 1 {
		return &core.ConfigError{Field: "DenseWeight", Message: "must be in [0,1]"}
	}
	if math.Abs(c.SparseWeight+c.DenseWeight-1.0) > 1e-9 {
		return &core.ConfigError{Field: "SparseWeight", Message: "fusion weights must sum to 1"}
	}
	if c.RerankEnabled && c.RerankPool < c.RetrievalK {
		return &core.ConfigError{Field: "RerankPool", Message: "must be >= RetrievalK"}
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return &core.ConfigError{Field: "ConfidenceThreshold", Message: "must be in [0,1]"}
	}
	if c.MemoryWindow <= 0 {
		return &core.ConfigError{Field: "MemoryWindow", Message: "must be > 0"}
	}
	if c.CacheTTL <= 0 {
		return &core.ConfigError{Field: "CacheTTL", Message: "must be > 0"}
	}
	if c.CacheMaxEntries <= 0 {
		return &core.ConfigError{Field: "CacheMaxEntries", Message: "must be > 0"}
	}
	if c.GenerateTimeout <= 0 || c.SearchTimeout <= 0 || c.RenderTimeout <= 0 {
		return &core.ConfigError{Field: "timeouts", Message: "must be > 0"}
	}
	if c.MaxConcurrentRuns < 0 {
		return &core.ConfigError{Field: "MaxConcurrentRuns", Message: "must be >= 0"}
	}
	return nil
}

func intEnv(key string, def int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def, &core.ConfigError{Field: key, Message: "not an integer: " + val}
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return def, &core.ConfigError{Field: key, Message: "not a number: " + val}
	}
	return f, nil
}

func boolEnv(key string, def bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}
