package temporal

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/tempo/internal/errors"
	"github.com/hpungsan/tempo/internal/snapshot"
)

// SaveInput contains parameters for creating a snapshot.
type SaveInput struct {
	ID         string // optional; generated when empty
	Project    string // required
	Summary    string
	Tags       []string
	ActionType string // optional; validated token
	Rationale  string
	CausedBy   string // optional; existence is checked at traversal time, not here
}

// SaveOutput contains the result of a save.
type SaveOutput struct {
	ID   string        `json:"id"`
	Tier snapshot.Tier `json:"tier"`
}

// SaveContext creates a snapshot. Content fields are write-once: saving
// an existing id replaces the record wholesale (upsert), which callers
// use for imports, not for edits — corrections are new snapshots linked
// via caused_by.
func (o *Orchestrator) SaveContext(ctx context.Context, input SaveInput) (*SaveOutput, error) {
	if strings.TrimSpace(input.Project) == "" {
		return nil, errors.NewInvalidRequest("project is required")
	}
	actionType, err := snapshot.ParseActionType(strings.TrimSpace(input.ActionType))
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id, err = generateULID()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	s := &snapshot.Snapshot{
		ID:         id,
		Project:    strings.TrimSpace(input.Project),
		Summary:    input.Summary,
		Tags:       input.Tags,
		CreatedAt:  time.Now().UTC(),
		ActionType: actionType,
		Rationale:  input.Rationale,
		CausedBy:   strings.TrimSpace(input.CausedBy),
		Tier:       snapshot.TierArchived, // never accessed yet
	}
	if err := o.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return &SaveOutput{ID: s.ID, Tier: s.Tier}, nil
}

// GetContext fetches a snapshot without tracking the access. Use
// LoadContext for reads that should count toward recency signals.
func (o *Orchestrator) GetContext(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return o.store.GetByID(ctx, id)
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
