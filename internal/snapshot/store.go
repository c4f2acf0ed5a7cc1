package snapshot

import (
	"context"
	"time"
)

// Store is the persistence boundary shared by the causality, memory,
// and propagation engines. Engines hold no state of their own: every
// operation reads through the store and writes derived values back
// through it.
//
// Implementations arbitrate concurrent batch runs themselves (the
// engines assume only last-write-wins per row).
type Store interface {
	// GetByID returns the snapshot with the given id, or a NOT_FOUND
	// error if it does not exist.
	GetByID(ctx context.Context, id string) (*Snapshot, error)

	// FindByProject returns snapshots in a project, most recent first.
	// A limit of 0 means no limit. An empty project means all projects
	// (used by unscoped maintenance runs).
	FindByProject(ctx context.Context, project string, limit int) ([]Snapshot, error)

	// Save upserts a snapshot.
	Save(ctx context.Context, s *Snapshot) error

	// UpdateAccessTracking sets last_accessed, increments access_count
	// by one, and refreshes the cached tier.
	UpdateAccessTracking(ctx context.Context, id string, now time.Time) error

	// UpdateTier refreshes the cached tier column.
	UpdateTier(ctx context.Context, id string, tier Tier) error

	// UpdatePrediction persists a freshly computed score, its reason
	// tokens, and the prediction instant.
	UpdatePrediction(ctx context.Context, id string, score float64, reasons []string, at time.Time) error

	// DeleteByID removes one snapshot.
	DeleteByID(ctx context.Context, id string) error

	// DeleteIfInTier removes one snapshot only if its recency still
	// classifies it into the given tier as of now. Reports whether a
	// row was deleted. Used by capped pruning so a record accessed
	// after candidate selection survives.
	DeleteIfInTier(ctx context.Context, id string, tier Tier, now time.Time) (bool, error)

	// DeleteWhere bulk-deletes snapshots whose recency classifies them
	// into the given tier as of now (classification by TierWindow, not
	// by the cached tier column). An empty project means all projects.
	// Returns the number deleted.
	DeleteWhere(ctx context.Context, project string, tier Tier, now time.Time) (int, error)

	// CountChildren returns how many snapshots name the given id as
	// their cause.
	CountChildren(ctx context.Context, id string) (int, error)

	// LeastRecentlyUsed returns snapshots classified into the given
	// tier as of now, oldest access first (never-accessed first for
	// tiers that admit them), capped at limit. An empty project means
	// all projects.
	LeastRecentlyUsed(ctx context.Context, project string, tier Tier, limit int, now time.Time) ([]Snapshot, error)
}
