package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn authored by the system.
	RoleAssistant Role = "assistant"
)

// ConversationTurn is a single completed exchange entry. Turns are appended to
// short-term memory after every finished pipeline run and are never mutated
// afterwards.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Query is the immutable input to a pipeline run.
type Query struct {
	Text      string             `json:"text"`
	SessionID string             `json:"session_id"`
	History   []ConversationTurn `json:"history,omitempty"`
}

// Document is a read-only reference into the corpus built by the external
// index-build step. IDs are unique within the corpus.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewID generates a new unique identifier for runs and artifacts.
func NewID() string { return uuid.NewString() }
