// Package model provides core.Generator implementations and decorators.
// Provider adapters live in the openai and anthropic subpackages; this
// package holds the provider-independent pieces: a deterministic mock for
// tests and examples, and a timeout decorator applied by the engine.
package model
