// Package session stores per-session conversation history.
//
// Every session is an append-only sequence of turns keyed by a session
// ID. The store keeps the working set in memory and persists it as a
// single JSON file guarded by an advisory file lock, so the CLI and a
// local server can share one history file without corruption.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single utterance in a conversation. Assistant turns carry
// the titles of the sources they cited, which later become topic hints
// for follow-up rewriting.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []string  `json:"sources,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Exchange is a user turn paired with the assistant turn that answered
// it. Rewrite prompts are built from exchanges, not raw turns, so a
// dangling user turn (answer still in flight) never leaks into a prompt.
type Exchange struct {
	User      string   `json:"user"`
	Assistant string   `json:"assistant"`
	Topics    []string `json:"topics,omitempty"`
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id is usable as a session key. Any non-blank
// string is accepted; callers may bring their own identifiers.
func ValidID(id string) bool {
	return strings.TrimSpace(id) != ""
}
