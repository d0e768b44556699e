// Package logging defines the Logger abstraction used across DiagMesh plus
// slog-backed and no-op implementations. See logger.go for the EngineLogger
// used by the workflow orchestrator.
package logging
