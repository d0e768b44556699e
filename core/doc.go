// Package core holds the shared domain contracts of DiagMesh: the query and
// retrieval data model, the pipeline state threaded between workflow nodes,
// the error taxonomy, and the capability interfaces (generation, embedding,
// rendering, indexes, memory) that concrete packages implement.
//
// Rationale: keeping all contracts centralized lets pluggable backends
// (vector databases, model providers, report renderers) be added without
// introducing dependency cycles between the retrieval, router and workflow
// packages.
package core
