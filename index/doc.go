// Package index provides the two retrieval indexes behind hybrid search: a
// BM25 lexical index and a dense vector index. The vector index has an
// in-memory implementation for small corpora and tests, and a Qdrant-backed
// implementation for production deployments.
package index
