package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoResults signals that both indexes legitimately returned zero
// candidates. It distinguishes "nothing relevant in the corpus" from a failed
// search; callers must not treat it as a fault.
var ErrNoResults = errors.New("retrieval: no candidates in either index")

// GenerationError reports a failure of the language-generation capability.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed: %s", e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ClassificationError reports an unrecoverable router failure. The router
// normally absorbs model failures via its rule-based fallback, so this only
// surfaces when the fallback itself cannot run.
type ClassificationError struct {
	Query string
	Err   error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify %q: %v", e.Query, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// RetrievalError reports an index-level failure. A failure of one index
// degrades retrieval to the other; only when both fail, or neither returns a
// candidate, does retrieval error out. An empty result set wraps ErrNoResults
// so callers can tell "nothing relevant" from a broken search.
type RetrievalError struct {
	Source string // "lexical", "vector" or "hybrid"
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval (%s): %v", e.Source, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// RenderError reports a failure of the external report renderer. The pipeline
// result still carries the structured fields when rendering fails.
type RenderError struct {
	TemplateID string
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render template %q: %v", e.TemplateID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ConfigError reports invalid startup configuration. It is the only error
// class that is fatal to the process.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ErrorRecord is a non-fatal failure captured in AgentState during a run.
type ErrorRecord struct {
	Node      string    `json:"node"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorRecord captures err under the given node name with the current time.
func NewErrorRecord(node string, err error) ErrorRecord {
	return ErrorRecord{Node: node, Message: err.Error(), Timestamp: time.Now().UTC()}
}
