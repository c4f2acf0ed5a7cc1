package memory

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/tempo/internal/db"
	"github.com/hpungsan/tempo/internal/errors"
	"github.com/hpungsan/tempo/internal/snapshot"
)

func newTestManager(t *testing.T) (*Manager, snapshot.Store) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewManager(database, zerolog.Nop()), database
}

func saveWithAccess(t *testing.T, store snapshot.Store, id, project string, elapsed time.Duration, now time.Time) {
	t.Helper()
	s := &snapshot.Snapshot{
		ID:        id,
		Project:   project,
		Summary:   "snapshot " + id,
		CreatedAt: now.Add(-elapsed),
	}
	la := now.Add(-elapsed)
	s.LastAccessed = &la
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatalf("Save %s failed: %v", id, err)
	}
}

func TestTrackAccess(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	s := &snapshot.Snapshot{ID: "01T", Project: "proj", CreatedAt: time.Now().UTC()}
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := mgr.TrackAccess(ctx, "01T"); err != nil {
		t.Fatalf("TrackAccess failed: %v", err)
	}

	got, err := store.GetByID(ctx, "01T")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", got.AccessCount)
	}
	if got.LastAccessed == nil {
		t.Fatal("LastAccessed not set")
	}

	if err := mgr.TrackAccess(ctx, "01MISSING"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing id: err = %v, want NOT_FOUND", err)
	}
	if err := mgr.TrackAccess(ctx, ""); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("empty id: err = %v, want INVALID_REQUEST", err)
	}
}

func TestGetStats_RecomputesTiers(t *testing.T) {
	mgr, store := newTestManager(t)
	now := time.Now().UTC()
	mgr.now = func() time.Time { return now }

	saveWithAccess(t, store, "01ACT", "proj", 30*time.Minute, now)
	saveWithAccess(t, store, "01REC", "proj", 5*time.Hour, now)
	saveWithAccess(t, store, "01ARC", "proj", 100*time.Hour, now)
	saveWithAccess(t, store, "01EXP", "proj", 1000*time.Hour, now)

	// Stale cache must not leak into the histogram
	if err := store.UpdateTier(context.Background(), "01EXP", snapshot.TierActive); err != nil {
		t.Fatalf("UpdateTier failed: %v", err)
	}

	stats, err := mgr.GetStats(context.Background(), "proj")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	want := map[string]int{"ACTIVE": 1, "RECENT": 1, "ARCHIVED": 1, "EXPIRED": 1}
	for tier, n := range want {
		if stats.Tiers[tier] != n {
			t.Errorf("Tiers[%s] = %d, want %d", tier, stats.Tiers[tier], n)
		}
	}
}

func TestGetStats_EmptyProject(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, err := mgr.GetStats(context.Background(), " "); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestRecalculateAllTiers_Idempotent(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mgr.now = func() time.Time { return now }

	// Saved as ACTIVE-recency but with the default ARCHIVED-ish cache:
	// Save derives the tier, so force stale caches explicitly.
	saveWithAccess(t, store, "01X", "proj", 30*time.Minute, now)
	saveWithAccess(t, store, "01Y", "proj", 5*time.Hour, now)
	if err := store.UpdateTier(ctx, "01X", snapshot.TierExpired); err != nil {
		t.Fatalf("UpdateTier failed: %v", err)
	}
	if err := store.UpdateTier(ctx, "01Y", snapshot.TierExpired); err != nil {
		t.Fatalf("UpdateTier failed: %v", err)
	}

	updated, err := mgr.RecalculateAllTiers(ctx, "proj")
	if err != nil {
		t.Fatalf("RecalculateAllTiers failed: %v", err)
	}
	if updated != 2 {
		t.Errorf("first run updated = %d, want 2", updated)
	}

	got, err := store.GetByID(ctx, "01X")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Tier != snapshot.TierActive {
		t.Errorf("Tier = %s, want ACTIVE", got.Tier)
	}

	// Second run with no intervening accesses touches nothing
	updated, err = mgr.RecalculateAllTiers(ctx, "proj")
	if err != nil {
		t.Fatalf("second RecalculateAllTiers failed: %v", err)
	}
	if updated != 0 {
		t.Errorf("second run updated = %d, want 0", updated)
	}
}

func TestRecalculateAllTiers_UnscopedCoversAllProjects(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mgr.now = func() time.Time { return now }

	saveWithAccess(t, store, "01P1", "alpha", 10*time.Minute, now)
	saveWithAccess(t, store, "01P2", "beta", 10*time.Minute, now)
	for _, id := range []string{"01P1", "01P2"} {
		if err := store.UpdateTier(ctx, id, snapshot.TierExpired); err != nil {
			t.Fatalf("UpdateTier failed: %v", err)
		}
	}

	updated, err := mgr.RecalculateAllTiers(ctx, "")
	if err != nil {
		t.Fatalf("RecalculateAllTiers failed: %v", err)
	}
	if updated != 2 {
		t.Errorf("updated = %d, want 2", updated)
	}
}

func TestPruneExpired(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mgr.now = func() time.Time { return now }

	saveWithAccess(t, store, "01LIVE", "proj", 2*time.Hour, now)
	saveWithAccess(t, store, "01EXP1", "proj", 800*time.Hour, now)
	saveWithAccess(t, store, "01EXP2", "proj", 900*time.Hour, now)

	// Never-accessed is ARCHIVED and must survive
	nv := &snapshot.Snapshot{ID: "01NVR", Project: "proj", CreatedAt: now}
	if err := store.Save(ctx, nv); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	deleted, err := mgr.PruneExpired(ctx, "proj", 0)
	if err != nil {
		t.Fatalf("PruneExpired failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	for _, id := range []string{"01LIVE", "01NVR"} {
		if _, err := store.GetByID(ctx, id); err != nil {
			t.Errorf("%s should survive pruning: %v", id, err)
		}
	}

	// Idempotent: nothing left to prune
	deleted, err = mgr.PruneExpired(ctx, "proj", 0)
	if err != nil {
		t.Fatalf("second PruneExpired failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("second run deleted = %d, want 0", deleted)
	}
}

func TestPruneExpired_LimitDeletesOldestFirst(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()
	mgr.now = func() time.Time { return now }

	saveWithAccess(t, store, "01OLDEST", "proj", 2000*time.Hour, now)
	saveWithAccess(t, store, "01OLDER", "proj", 1500*time.Hour, now)
	saveWithAccess(t, store, "01OLD", "proj", 800*time.Hour, now)

	deleted, err := mgr.PruneExpired(ctx, "proj", 2)
	if err != nil {
		t.Fatalf("PruneExpired failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	// The youngest of the expired set is the survivor
	if _, err := store.GetByID(ctx, "01OLD"); err != nil {
		t.Errorf("01OLD should survive a capped prune: %v", err)
	}
	if _, err := store.GetByID(ctx, "01OLDEST"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("01OLDEST should be pruned, got %v", err)
	}
}

func TestPruneExpired_NegativeLimit(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, err := mgr.PruneExpired(context.Background(), "proj", -1); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestFindLeastRecentlyUsed(t *testing.T) {
	mgr, store := newTestManager(t)
	now := time.Now().UTC()
	mgr.now = func() time.Time { return now }

	saveWithAccess(t, store, "01LRU1", "proj", 3*time.Hour, now)
	saveWithAccess(t, store, "01LRU2", "proj", 20*time.Hour, now)
	saveWithAccess(t, store, "01LRU3", "proj", 40*time.Hour, now) // ARCHIVED

	got, err := mgr.FindLeastRecentlyUsed(context.Background(), "proj", snapshot.TierRecent, 10)
	if err != nil {
		t.Fatalf("FindLeastRecentlyUsed failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "01LRU2" || got[1].ID != "01LRU1" {
		t.Errorf("order = [%s %s], want oldest access first", got[0].ID, got[1].ID)
	}
}

func TestFindLeastRecentlyUsed_InvalidTier(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, err := mgr.FindLeastRecentlyUsed(context.Background(), "proj", "warm", 5); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

// accessRaceStore simulates a reader whose access lands between capped
// prune candidate selection and the delete.
type accessRaceStore struct {
	snapshot.Store
	accessAt time.Time
}

func (s *accessRaceStore) DeleteIfInTier(ctx context.Context, id string, tier snapshot.Tier, now time.Time) (bool, error) {
	if err := s.Store.UpdateAccessTracking(ctx, id, s.accessAt); err != nil {
		return false, err
	}
	return s.Store.DeleteIfInTier(ctx, id, tier, now)
}

func TestPruneExpired_CandidateAccessedBeforeDeleteSurvives(t *testing.T) {
	_, store := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	saveWithAccess(t, store, "01RACE", "proj", 800*time.Hour, now)

	raced := &accessRaceStore{Store: store, accessAt: now}
	mgr := NewManager(raced, zerolog.Nop())
	mgr.now = func() time.Time { return now }

	deleted, err := mgr.PruneExpired(ctx, "proj", 1)
	if err != nil {
		t.Fatalf("PruneExpired failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0: candidate left EXPIRED before the delete", deleted)
	}

	got, err := store.GetByID(ctx, "01RACE")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.CurrentTier(now) != snapshot.TierActive {
		t.Errorf("tier = %s, want ACTIVE after the racing access", got.CurrentTier(now))
	}
}

// cancelAfterDeleteStore cancels the run after the first committed delete.
type cancelAfterDeleteStore struct {
	snapshot.Store
	cancel context.CancelFunc
}

func (s *cancelAfterDeleteStore) DeleteIfInTier(ctx context.Context, id string, tier snapshot.Tier, now time.Time) (bool, error) {
	ok, err := s.Store.DeleteIfInTier(ctx, id, tier, now)
	s.cancel()
	return ok, err
}

func TestPruneExpired_CancelledMidRunReturnsProgress(t *testing.T) {
	_, store := newTestManager(t)
	now := time.Now().UTC()

	saveWithAccess(t, store, "01OLD", "proj", 900*time.Hour, now)
	saveWithAccess(t, store, "01OLDER", "proj", 1000*time.Hour, now)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr := NewManager(&cancelAfterDeleteStore{Store: store, cancel: cancel}, zerolog.Nop())
	mgr.now = func() time.Time { return now }

	deleted, err := mgr.PruneExpired(ctx, "proj", 2)
	if err != nil {
		t.Fatalf("cancelled prune must not return an error, got: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1 (progress before cancellation)", deleted)
	}

	remaining, err := store.FindByProject(context.Background(), "proj", 0)
	if err != nil {
		t.Fatalf("FindByProject failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("remaining = %d, want 1: the committed delete must stick", len(remaining))
	}
}

// cancelAfterTierUpdateStore cancels the run after the first committed
// tier write.
type cancelAfterTierUpdateStore struct {
	snapshot.Store
	cancel context.CancelFunc
}

func (s *cancelAfterTierUpdateStore) UpdateTier(ctx context.Context, id string, tier snapshot.Tier) error {
	err := s.Store.UpdateTier(ctx, id, tier)
	s.cancel()
	return err
}

func TestRecalculateAllTiers_CancelledMidRunReturnsProgress(t *testing.T) {
	_, store := newTestManager(t)
	now := time.Now().UTC()

	saveWithAccess(t, store, "01A", "proj", 30*time.Minute, now)
	saveWithAccess(t, store, "01B", "proj", 40*time.Minute, now)
	for _, id := range []string{"01A", "01B"} {
		if err := store.UpdateTier(context.Background(), id, snapshot.TierExpired); err != nil {
			t.Fatalf("UpdateTier failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr := NewManager(&cancelAfterTierUpdateStore{Store: store, cancel: cancel}, zerolog.Nop())
	mgr.now = func() time.Time { return now }

	updated, err := mgr.RecalculateAllTiers(ctx, "proj")
	if err != nil {
		t.Fatalf("cancelled recalculation must not return an error, got: %v", err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1 (progress before cancellation)", updated)
	}
}

// failTierUpdateStore rejects tier writes for one id.
type failTierUpdateStore struct {
	snapshot.Store
	failID string
}

func (s *failTierUpdateStore) UpdateTier(ctx context.Context, id string, tier snapshot.Tier) error {
	if id == s.failID {
		return errors.NewInternal(nil)
	}
	return s.Store.UpdateTier(ctx, id, tier)
}

func TestRecalculateAllTiers_SkipsFailedUpdates(t *testing.T) {
	_, store := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	saveWithAccess(t, store, "01OK", "proj", 30*time.Minute, now)
	saveWithAccess(t, store, "01BAD", "proj", 40*time.Minute, now)
	for _, id := range []string{"01OK", "01BAD"} {
		if err := store.UpdateTier(ctx, id, snapshot.TierExpired); err != nil {
			t.Fatalf("UpdateTier failed: %v", err)
		}
	}

	mgr := NewManager(&failTierUpdateStore{Store: store, failID: "01BAD"}, zerolog.Nop())
	mgr.now = func() time.Time { return now }

	updated, err := mgr.RecalculateAllTiers(ctx, "proj")
	if err != nil {
		t.Fatalf("a failing record must not abort the run, got: %v", err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1 (failing record skipped)", updated)
	}

	got, err := store.GetByID(ctx, "01BAD")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Tier != snapshot.TierExpired {
		t.Errorf("skipped record tier = %s, want the stale EXPIRED cache left as-is", got.Tier)
	}
}
