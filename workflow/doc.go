// Package workflow executes the two fixed pipelines (diagnosis, qa) as
// explicit state machines over a shared AgentState. The orchestrator owns the
// state for the duration of a run, merges node deltas, bounds concurrent
// runs, and guarantees that every run terminates with a user-facing result.
package workflow
