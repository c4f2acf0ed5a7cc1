package memory

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/tempo/internal/errors"
	"github.com/hpungsan/tempo/internal/snapshot"
)

// Manager classifies snapshot relevance into tiers and manages the
// access-driven lifecycle, including pruning.
type Manager struct {
	store snapshot.Store
	log   zerolog.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewManager creates a memory tier manager backed by the given store.
func NewManager(store snapshot.Store, log zerolog.Logger) *Manager {
	return &Manager{
		store: store,
		log:   log.With().Str("engine", "memory").Logger(),
		now:   time.Now,
	}
}

// TrackAccess records a logical read: sets last_accessed to now and
// increments access_count. Callers (the orchestrator) invoke this on
// every read that should count toward recency and frequency signals;
// tier classification never tracks implicitly.
func (m *Manager) TrackAccess(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.NewInvalidRequest("id is required")
	}
	return m.store.UpdateAccessTracking(ctx, id, m.now())
}

// Stats is a tier histogram for a project.
type Stats struct {
	Project string         `json:"project"`
	Total   int            `json:"total"`
	Tiers   map[string]int `json:"tiers"`
}

// GetStats counts snapshots per tier, recomputing every classification
// from last_accessed. The cached tier column is never trusted for this
// report.
func (m *Manager) GetStats(ctx context.Context, project string) (*Stats, error) {
	if strings.TrimSpace(project) == "" {
		return nil, errors.NewInvalidRequest("project is required")
	}

	snaps, err := m.store.FindByProject(ctx, project, 0)
	if err != nil {
		return nil, err
	}

	now := m.now()
	stats := &Stats{
		Project: project,
		Total:   len(snaps),
		Tiers: map[string]int{
			string(snapshot.TierActive):   0,
			string(snapshot.TierRecent):   0,
			string(snapshot.TierArchived): 0,
			string(snapshot.TierExpired):  0,
		},
	}
	for i := range snaps {
		stats.Tiers[string(snaps[i].CurrentTier(now))]++
	}
	return stats, nil
}

// RecalculateAllTiers recomputes and persists the cached tier for every
// snapshot, optionally scoped to one project (empty = all). Returns the
// number whose persisted tier changed; running twice with no access
// activity in between updates zero the second time.
//
// Each snapshot is an independent unit: cancellation between units
// returns the progress so far, and a record that fails to update is
// skipped with a warning rather than aborting the run.
func (m *Manager) RecalculateAllTiers(ctx context.Context, project string) (int, error) {
	snaps, err := m.store.FindByProject(ctx, project, 0)
	if err != nil {
		return 0, err
	}

	now := m.now()
	updated := 0
	for i := range snaps {
		if ctx.Err() != nil {
			m.log.Info().Int("updated", updated).Msg("tier recalculation cancelled")
			return updated, nil
		}

		s := &snaps[i]
		tier := s.CurrentTier(now)
		if tier == s.Tier {
			continue
		}
		if err := m.store.UpdateTier(ctx, s.ID, tier); err != nil {
			m.log.Warn().Str("id", s.ID).Err(err).Msg("skipping tier update")
			continue
		}
		updated++
	}

	m.log.Debug().Str("project", project).Int("updated", updated).Msg("tiers recalculated")
	return updated, nil
}

// PruneExpired deletes snapshots currently classified EXPIRED, oldest
// last_accessed first, capped at limit (0 = no cap). Classification is
// derived from recency at delete time, so no snapshot in any other tier
// can be deleted even through a stale cache. Idempotent: a second run
// with no new expirations deletes zero.
func (m *Manager) PruneExpired(ctx context.Context, project string, limit int) (int, error) {
	if limit < 0 {
		return 0, errors.NewInvalidRequest("limit must not be negative")
	}

	now := m.now()
	if limit == 0 {
		deleted, err := m.store.DeleteWhere(ctx, project, snapshot.TierExpired, now)
		if err != nil {
			return 0, err
		}
		m.log.Info().Str("project", project).Int("deleted", deleted).Msg("pruned expired snapshots")
		return deleted, nil
	}

	candidates, err := m.store.LeastRecentlyUsed(ctx, project, snapshot.TierExpired, limit, now)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for i := range candidates {
		if ctx.Err() != nil {
			m.log.Info().Int("deleted", deleted).Msg("prune cancelled")
			return deleted, nil
		}
		// Re-classified inside the delete: an access landing after
		// candidate selection pulls the snapshot out of EXPIRED and the
		// delete becomes a no-op.
		ok, err := m.store.DeleteIfInTier(ctx, candidates[i].ID, snapshot.TierExpired, now)
		if err != nil {
			m.log.Warn().Str("id", candidates[i].ID).Err(err).Msg("skipping prune delete")
			continue
		}
		if !ok {
			m.log.Debug().Str("id", candidates[i].ID).Msg("candidate no longer expired")
			continue
		}
		deleted++
	}

	m.log.Info().Str("project", project).Int("deleted", deleted).Msg("pruned expired snapshots")
	return deleted, nil
}

// FindLeastRecentlyUsed returns snapshots currently classified into the
// given tier, oldest access first, capped at limit. Used to pick
// pruning or demotion candidates without committing to deletion.
func (m *Manager) FindLeastRecentlyUsed(ctx context.Context, project string, tier snapshot.Tier, limit int) ([]snapshot.Snapshot, error) {
	if _, err := snapshot.ParseTier(string(tier)); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	if limit < 0 {
		return nil, errors.NewInvalidRequest("limit must not be negative")
	}
	return m.store.LeastRecentlyUsed(ctx, project, tier, limit, m.now())
}
