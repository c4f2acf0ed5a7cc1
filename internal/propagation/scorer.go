package propagation

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/tempo/internal/errors"
	"github.com/hpungsan/tempo/internal/snapshot"
)

// Sub-score weights. They sum to 1.0, so the weighted sum of bounded
// sub-scores is bounded; the final clamp is safety only.
const (
	WeightTemporal  = 0.4
	WeightCausal    = 0.3
	WeightFrequency = 0.3
)

// temporalBreaks maps hours-since-last-access to a temporal sub-score.
// Evaluated first match wins; never-accessed falls through to the floor.
var temporalBreaks = []struct {
	Within time.Duration
	Score  float64
}{
	{1 * time.Hour, 1.0},
	{6 * time.Hour, 0.8},
	{24 * time.Hour, 0.5},
	{168 * time.Hour, 0.3},
}

// temporalFloor is the temporal sub-score past the last breakpoint.
const temporalFloor = 0.1

// Causal sub-scores, in priority order: root-cause status dominates
// decision status, which dominates branch-point status.
const (
	causalRoot     = 1.0 // no parent
	causalDecision = 0.9 // actionType = decision
	causalBranch   = 0.8 // multiple children (branch point)
	causalLeaf     = 0.3 // parent, no children, no special marker
	causalDefault  = 0.5
)

// Access-count thresholds, shared by the frequency sub-score and the
// frequency reason tokens so the two can never drift apart.
const (
	frequencyHighCount     = 10
	frequencyModerateCount = 5
	frequencyLowCount      = 2
)

// frequencyBreaks maps access counts to a frequency sub-score.
var frequencyBreaks = []struct {
	MinCount int
	Score    float64
}{
	{frequencyHighCount, 1.0},
	{frequencyModerateCount, 0.7},
	{frequencyLowCount, 0.4},
}

// frequencyFloor is the frequency sub-score below every breakpoint.
const frequencyFloor = 0.2

// Propagation reason tokens.
const (
	ReasonRecentlyAccessed  = "recently_accessed"
	ReasonChainRoot         = "causal_chain_root"
	ReasonHighFrequency     = "high_access_frequency"
	ReasonModerateFrequency = "moderate_access_frequency"
	ReasonActiveTier        = "active_memory_tier"
	ReasonDecisionNode      = "decision_node"
)

// recentAccessWindow is the recency window for the recently_accessed reason.
const recentAccessWindow = 24 * time.Hour

// Scorer predicts the future relevance of snapshots.
type Scorer struct {
	store snapshot.Store
	log   zerolog.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewScorer creates a propagation scorer backed by the given store.
func NewScorer(store snapshot.Store, log zerolog.Logger) *Scorer {
	return &Scorer{
		store: store,
		log:   log.With().Str("engine", "propagation").Logger(),
		now:   time.Now,
	}
}

// CalculateScore computes the weighted propagation score for a
// snapshot, always in [0, 1]. The causal sub-score consults the store
// for branch-point detection (children count).
func (sc *Scorer) CalculateScore(ctx context.Context, s *snapshot.Snapshot) (float64, error) {
	causal, err := sc.causalScore(ctx, s)
	if err != nil {
		return 0, err
	}

	now := sc.now()
	score := WeightTemporal*temporalScore(s.LastAccessed, now) +
		WeightCausal*causal +
		WeightFrequency*frequencyScore(s.AccessCount)
	return clamp01(score), nil
}

func temporalScore(lastAccessed *time.Time, now time.Time) float64 {
	if lastAccessed == nil {
		return temporalFloor
	}
	elapsed := now.Sub(*lastAccessed)
	for _, brk := range temporalBreaks {
		if elapsed < brk.Within {
			return brk.Score
		}
	}
	return temporalFloor
}

func (sc *Scorer) causalScore(ctx context.Context, s *snapshot.Snapshot) (float64, error) {
	if s.IsRoot() {
		return causalRoot, nil
	}
	if s.ActionType == snapshot.ActionDecision {
		return causalDecision, nil
	}

	children, err := sc.store.CountChildren(ctx, s.ID)
	if err != nil {
		return 0, err
	}
	if children >= 2 {
		return causalBranch, nil
	}
	if children == 0 {
		return causalLeaf, nil
	}
	return causalDefault, nil
}

func frequencyScore(accessCount int) float64 {
	for _, brk := range frequencyBreaks {
		if accessCount >= brk.MinCount {
			return brk.Score
		}
	}
	return frequencyFloor
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// CalculatePropagationReasons derives the explainability tokens for a
// snapshot from the same inputs CalculateScore uses. Checks are
// independent, not mutually exclusive, and emitted in a fixed order.
func (sc *Scorer) CalculatePropagationReasons(s *snapshot.Snapshot) []string {
	now := sc.now()
	reasons := []string{}

	if s.LastAccessed != nil && now.Sub(*s.LastAccessed) < recentAccessWindow {
		reasons = append(reasons, ReasonRecentlyAccessed)
	}
	if s.IsRoot() {
		reasons = append(reasons, ReasonChainRoot)
	}
	if s.AccessCount >= frequencyHighCount {
		reasons = append(reasons, ReasonHighFrequency)
	} else if s.AccessCount >= frequencyModerateCount {
		reasons = append(reasons, ReasonModerateFrequency)
	}
	if s.CurrentTier(now) == snapshot.TierActive {
		reasons = append(reasons, ReasonActiveTier)
	}
	if s.ActionType == snapshot.ActionDecision {
		reasons = append(reasons, ReasonDecisionNode)
	}
	return reasons
}

// IsStale reports whether a prediction needs recomputation: never
// predicted, or predicted at least thresholdHours ago.
func (sc *Scorer) IsStale(lastPredicted *time.Time, thresholdHours float64) bool {
	if lastPredicted == nil {
		return true
	}
	elapsed := sc.now().Sub(*lastPredicted).Hours()
	return elapsed >= thresholdHours
}

// UpdateProjectPredictions recomputes score, reasons, and the
// prediction timestamp for every snapshot in the project whose
// prediction is stale, and returns the count touched. Fresh snapshots
// are skipped; that skip is the scorer's only guard against repeated
// full recomputation.
//
// Units are independent: cancellation between snapshots returns
// progress so far, and a snapshot that fails to score or persist is
// skipped with a warning.
func (sc *Scorer) UpdateProjectPredictions(ctx context.Context, project string, staleThresholdHours float64) (int, error) {
	if strings.TrimSpace(project) == "" {
		return 0, errors.NewInvalidRequest("project is required")
	}
	if staleThresholdHours < 0 || math.IsNaN(staleThresholdHours) || math.IsInf(staleThresholdHours, 0) {
		return 0, errors.NewInvalidRequest("stale_threshold_hours must be a non-negative finite number")
	}

	snaps, err := sc.store.FindByProject(ctx, project, 0)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range snaps {
		if ctx.Err() != nil {
			sc.log.Info().Int("updated", updated).Msg("prediction refresh cancelled")
			return updated, nil
		}

		s := &snaps[i]
		if !sc.IsStale(s.LastPredicted, staleThresholdHours) {
			continue
		}

		score, err := sc.CalculateScore(ctx, s)
		if err != nil {
			sc.log.Warn().Str("id", s.ID).Err(err).Msg("skipping unscorable snapshot")
			continue
		}
		reasons := sc.CalculatePropagationReasons(s)

		if err := sc.store.UpdatePrediction(ctx, s.ID, score, reasons, sc.now()); err != nil {
			sc.log.Warn().Str("id", s.ID).Err(err).Msg("skipping prediction write")
			continue
		}
		updated++
	}

	sc.log.Debug().Str("project", project).Int("updated", updated).Msg("predictions refreshed")
	return updated, nil
}

// GetHighValueContexts returns snapshots in the project whose persisted
// prediction score is at least minScore, highest first, capped at
// limit. Freshness is the caller's concern: run a prediction refresh
// first if it matters.
func (sc *Scorer) GetHighValueContexts(ctx context.Context, project string, minScore float64, limit int) ([]snapshot.Snapshot, error) {
	if strings.TrimSpace(project) == "" {
		return nil, errors.NewInvalidRequest("project is required")
	}
	if minScore < 0 || minScore > 1 || math.IsNaN(minScore) {
		return nil, errors.NewInvalidRequest("min_score must be in [0, 1]")
	}
	if limit < 0 {
		return nil, errors.NewInvalidRequest("limit must not be negative")
	}

	snaps, err := sc.store.FindByProject(ctx, project, 0)
	if err != nil {
		return nil, err
	}

	var hits []snapshot.Snapshot
	for i := range snaps {
		if snaps[i].PredictionScore != nil && *snaps[i].PredictionScore >= minScore {
			hits = append(hits, snaps[i])
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return *hits[i].PredictionScore > *hits[j].PredictionScore
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Stats aggregates prediction state over a project.
type Stats struct {
	Project      string         `json:"project"`
	Total        int            `json:"total"`
	Scored       int            `json:"scored"`
	MeanScore    float64        `json:"mean_score"`
	ReasonCounts map[string]int `json:"reason_counts"`
}

// GetPropagationStats reports how much of a project is scored, the mean
// score among scored snapshots, and a histogram of reason tokens.
func (sc *Scorer) GetPropagationStats(ctx context.Context, project string) (*Stats, error) {
	if strings.TrimSpace(project) == "" {
		return nil, errors.NewInvalidRequest("project is required")
	}

	snaps, err := sc.store.FindByProject(ctx, project, 0)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Project:      project,
		Total:        len(snaps),
		ReasonCounts: make(map[string]int),
	}

	var sum float64
	for i := range snaps {
		s := &snaps[i]
		if s.PredictionScore == nil {
			continue
		}
		stats.Scored++
		sum += *s.PredictionScore
		for _, r := range s.Reasons {
			stats.ReasonCounts[r]++
		}
	}
	if stats.Scored > 0 {
		stats.MeanScore = sum / float64(stats.Scored)
	}
	return stats, nil
}
