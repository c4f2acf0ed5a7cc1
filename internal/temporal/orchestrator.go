// Package temporal composes the causality, memory, and propagation
// engines for cross-cutting operations. Engines never call each other;
// all cross-engine reads happen here.
package temporal

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/tempo/internal/causality"
	"github.com/hpungsan/tempo/internal/errors"
	"github.com/hpungsan/tempo/internal/memory"
	"github.com/hpungsan/tempo/internal/propagation"
	"github.com/hpungsan/tempo/internal/snapshot"
)

// Orchestrator wires the three engines over one shared store.
type Orchestrator struct {
	store     snapshot.Store
	Causality *causality.Engine
	Memory    *memory.Manager
	Scorer    *propagation.Scorer
}

// New creates an orchestrator and its engines over the given store.
func New(store snapshot.Store, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		Causality: causality.NewEngine(store, log),
		Memory:    memory.NewManager(store, log),
		Scorer:    propagation.NewScorer(store, log),
	}
}

// LoadedContext is a snapshot annotated with everything the engines
// currently know about it.
type LoadedContext struct {
	Snapshot snapshot.Snapshot `json:"snapshot"`
	Tier     snapshot.Tier     `json:"tier"`
	Score    float64           `json:"score"`
	Reasons  []string          `json:"reasons"`
	Chain    *causality.Chain  `json:"chain"`
}

// LoadContext fetches a snapshot as one logical read: the access is
// tracked, then the snapshot is annotated with its live tier, a fresh
// propagation score, and its causal chain. Tracking and annotation are
// separate store round-trips, not a transaction; the returned snapshot
// reflects the post-tracking state.
func (o *Orchestrator) LoadContext(ctx context.Context, id string) (*LoadedContext, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	if err := o.Memory.TrackAccess(ctx, id); err != nil {
		return nil, err
	}

	s, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	score, err := o.Scorer.CalculateScore(ctx, s)
	if err != nil {
		return nil, err
	}

	chain, err := o.Causality.BuildCausalChain(ctx, id)
	if err != nil {
		return nil, err
	}

	return &LoadedContext{
		Snapshot: *s,
		Tier:     s.CurrentTier(time.Now()),
		Score:    score,
		Reasons:  o.Scorer.CalculatePropagationReasons(s),
		Chain:    chain,
	}, nil
}

// Brief is a one-call summary of a project across all three engines.
type Brief struct {
	Project     string              `json:"project"`
	Causality   *causality.Stats    `json:"causality"`
	Memory      *memory.Stats       `json:"memory"`
	Propagation *propagation.Stats  `json:"propagation"`
	HighValue   []snapshot.Snapshot `json:"high_value"`
}

// ProjectBrief aggregates the three engines' stats plus the current
// high-value snapshots. Reads are independent round-trips; the brief is
// a point-in-time composite, not a consistent snapshot of the store.
func (o *Orchestrator) ProjectBrief(ctx context.Context, project string, minScore float64, limit int) (*Brief, error) {
	causalStats, err := o.Causality.GetStats(ctx, project)
	if err != nil {
		return nil, err
	}
	memStats, err := o.Memory.GetStats(ctx, project)
	if err != nil {
		return nil, err
	}
	propStats, err := o.Scorer.GetPropagationStats(ctx, project)
	if err != nil {
		return nil, err
	}
	highValue, err := o.Scorer.GetHighValueContexts(ctx, project, minScore, limit)
	if err != nil {
		return nil, err
	}

	return &Brief{
		Project:     project,
		Causality:   causalStats,
		Memory:      memStats,
		Propagation: propStats,
		HighValue:   highValue,
	}, nil
}
