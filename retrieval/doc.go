// Package retrieval implements hybrid search over the document corpus: the
// two indexes are queried in parallel, their scores are min-max normalized
// and fused with configurable weights, and the fused head may be reranked by
// a second-pass scorer. Results are cached with a TTL and concurrent lookups
// of the same query are collapsed into a single computation.
package retrieval
