package snapshot

import (
	"fmt"
	"time"
)

// ActionType classifies what kind of work produced a snapshot.
type ActionType string

const (
	ActionConversation ActionType = "conversation"
	ActionDecision     ActionType = "decision"
	ActionFileEdit     ActionType = "file_edit"
	ActionToolUse      ActionType = "tool_use"
	ActionResearch     ActionType = "research"
)

// knownActionTypes is the set of valid action type tokens.
var knownActionTypes = map[ActionType]bool{
	ActionConversation: true,
	ActionDecision:     true,
	ActionFileEdit:     true,
	ActionToolUse:      true,
	ActionResearch:     true,
}

// ParseActionType validates an externally supplied action type token.
// An empty string is valid and means "no action type recorded".
func ParseActionType(s string) (ActionType, error) {
	if s == "" {
		return "", nil
	}
	at := ActionType(s)
	if !knownActionTypes[at] {
		return "", fmt.Errorf("unknown action_type %q (valid: conversation, decision, file_edit, tool_use, research)", s)
	}
	return at, nil
}

// Snapshot represents one preserved unit of context.
//
// Content fields (Summary, Tags, CreatedAt, ActionType, Rationale,
// CausedBy) are write-once: corrections are modeled as new snapshots
// causally linked to the original. Only the access-tracking and
// prediction facets mutate after creation.
type Snapshot struct {
	// ID is a ULID that uniquely identifies this snapshot
	ID string `json:"id"`

	// Project is the grouping key (required, non-empty)
	Project string `json:"project"`

	// Summary is a short derived description of the preserved context
	Summary string `json:"summary"`

	// Tags is a list of short categorization strings (stored as JSON in DB)
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is the creation instant
	CreatedAt time.Time `json:"created_at"`

	// ActionType classifies the originating action (empty = absent)
	ActionType ActionType `json:"action_type,omitempty"`

	// Rationale is free-text reasoning behind the action (empty = absent)
	Rationale string `json:"rationale,omitempty"`

	// CausedBy references the snapshot that caused this one.
	// Empty marks a root cause.
	CausedBy string `json:"caused_by,omitempty"`

	// Tier is the cached relevance classification. It is always
	// recomputable from LastAccessed; the persisted copy is refreshed
	// by the memory engine, never hand-set.
	Tier Tier `json:"tier"`

	// LastAccessed is the instant of the last tracked access (nil = never)
	LastAccessed *time.Time `json:"last_accessed"`

	// AccessCount is the number of tracked accesses. Only increases.
	AccessCount int `json:"access_count"`

	// PredictionScore is the last computed propagation score in [0,1]
	// (nil = never scored)
	PredictionScore *float64 `json:"prediction_score"`

	// LastPredicted is when PredictionScore was last computed (nil = never)
	LastPredicted *time.Time `json:"last_predicted"`

	// Reasons holds the propagation reason tokens from the last scoring
	Reasons []string `json:"reasons,omitempty"`
}

// IsRoot reports whether the snapshot is a root cause (no parent).
func (s *Snapshot) IsRoot() bool {
	return s.CausedBy == ""
}

// HasCausalMetadata reports whether any causality facet field is set.
func (s *Snapshot) HasCausalMetadata() bool {
	return s.ActionType != "" || s.Rationale != "" || s.CausedBy != ""
}

// CurrentTier classifies the snapshot as of now, ignoring the cached
// Tier field.
func (s *Snapshot) CurrentTier(now time.Time) Tier {
	return TierFor(s.LastAccessed, now)
}
