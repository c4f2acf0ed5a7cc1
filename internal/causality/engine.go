package causality

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hpungsan/tempo/internal/errors"
	"github.com/hpungsan/tempo/internal/snapshot"
)

// ChainSample caps how many chains the stats aggregate walks when
// computing average chain length. The average is a bounded-sample
// approximation over the most recent causal snapshots, not an exact
// figure; exhaustive computation would make stats O(n·chain) on large
// projects.
const ChainSample = 10

// Engine reconstructs and explains causal history.
type Engine struct {
	store snapshot.Store
	log   zerolog.Logger
}

// NewEngine creates a causality engine backed by the given store.
func NewEngine(store snapshot.Store, log zerolog.Logger) *Engine {
	return &Engine{store: store, log: log.With().Str("engine", "causality").Logger()}
}

// ChainEntry is one link in a causal chain.
type ChainEntry struct {
	Snapshot snapshot.Snapshot `json:"snapshot"`
	// Depth is the 0-based distance from the root cause
	Depth int `json:"depth"`
}

// Chain is an ordered causal chain: root cause first, queried snapshot last.
type Chain struct {
	Entries []ChainEntry `json:"entries"`

	// Truncated is true when an ancestor reference pointed at a record
	// the store could no longer return. The partial chain is still valid.
	Truncated bool `json:"truncated,omitempty"`

	// CycleAt names the id whose revisit ended traversal, if any.
	// A cycle defuses traversal; it is never an error.
	CycleAt string `json:"cycle_at,omitempty"`
}

// BuildCausalChain walks caused_by references backward from id and
// returns the chain root-first. A visited set bounds the walk: revisiting
// an id stops traversal (cycle defused), and a reference to a missing
// record stops it (history trail ran out). Only the starting id itself
// raises NOT_FOUND.
func (e *Engine) BuildCausalChain(ctx context.Context, id string) (*Chain, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	start, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Walk backward, newest first
	visited := map[string]bool{start.ID: true}
	backward := []snapshot.Snapshot{*start}
	chain := &Chain{}

	current := start
	for current.CausedBy != "" {
		parentID := current.CausedBy
		if visited[parentID] {
			chain.CycleAt = parentID
			e.log.Warn().Str("id", id).Str("cycle_at", parentID).Msg("causal cycle defused")
			break
		}

		parent, err := e.store.GetByID(ctx, parentID)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				// History trail ran out; the partial chain is the answer.
				chain.Truncated = true
				break
			}
			return nil, err
		}

		visited[parentID] = true
		backward = append(backward, *parent)
		current = parent
	}

	// Reverse to root-first and assign depths from the root
	chain.Entries = make([]ChainEntry, len(backward))
	for i := range backward {
		chain.Entries[i] = ChainEntry{
			Snapshot: backward[len(backward)-1-i],
			Depth:    i,
		}
	}
	return chain, nil
}

// ReconstructReasoning loads a snapshot and formats an explanation of
// why it exists from its causality facet. Pure formatting, no traversal.
func (e *Engine) ReconstructReasoning(ctx context.Context, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", errors.NewInvalidRequest("id is required")
	}

	s, err := e.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return FormatReasoning(s), nil
}

// FormatReasoning renders the causality facet of a snapshot as text.
func FormatReasoning(s *snapshot.Snapshot) string {
	action := "unspecified"
	if s.ActionType != "" {
		action = string(s.ActionType)
	}
	rationale := s.Rationale
	if rationale == "" {
		rationale = "no rationale provided"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\n", action)
	fmt.Fprintf(&b, "Rationale: %s\n", rationale)
	fmt.Fprintf(&b, "Context: %s", s.Summary)
	if s.CausedBy != "" {
		fmt.Fprintf(&b, "\nCaused by: %s", s.CausedBy)
	}
	return b.String()
}

// Stats aggregates causal metadata over a project.
type Stats struct {
	Project            string         `json:"project"`
	Total              int            `json:"total"`
	WithCausalMetadata int            `json:"with_causal_metadata"`
	RootCauses         int            `json:"root_causes"`
	ActionTypeCounts   map[string]int `json:"action_type_counts"`
	AvgChainLength     float64        `json:"avg_chain_length"`
	SampledChains      int            `json:"sampled_chains"`
}

// GetStats computes causality statistics for a project. Average chain
// length is sampled over up to ChainSample of the most recent snapshots
// carrying causal metadata; chains are walked against the in-memory
// project set, so links pointing outside the project truncate the same
// way missing records do.
func (e *Engine) GetStats(ctx context.Context, project string) (*Stats, error) {
	if strings.TrimSpace(project) == "" {
		return nil, errors.NewInvalidRequest("project is required")
	}

	snaps, err := e.store.FindByProject(ctx, project, 0)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Project:          project,
		Total:            len(snaps),
		ActionTypeCounts: make(map[string]int),
	}

	byID := make(map[string]*snapshot.Snapshot, len(snaps))
	for i := range snaps {
		byID[snaps[i].ID] = &snaps[i]
	}

	var lengthSum int
	for i := range snaps {
		s := &snaps[i]
		if s.HasCausalMetadata() {
			stats.WithCausalMetadata++
		}
		if s.IsRoot() {
			stats.RootCauses++
		}
		if s.ActionType != "" {
			stats.ActionTypeCounts[string(s.ActionType)]++
		}

		// FindByProject is most-recent-first, so the sample covers the
		// newest causal snapshots.
		if stats.SampledChains < ChainSample && s.HasCausalMetadata() {
			lengthSum += localChainLength(s, byID)
			stats.SampledChains++
		}
	}

	if stats.SampledChains > 0 {
		stats.AvgChainLength = float64(lengthSum) / float64(stats.SampledChains)
	}
	return stats, nil
}

// localChainLength walks caused_by within an id-indexed set, with the
// same visited-set guard as BuildCausalChain.
func localChainLength(start *snapshot.Snapshot, byID map[string]*snapshot.Snapshot) int {
	visited := map[string]bool{start.ID: true}
	length := 1
	current := start
	for current.CausedBy != "" {
		parent, ok := byID[current.CausedBy]
		if !ok || visited[parent.ID] {
			break
		}
		visited[parent.ID] = true
		length++
		current = parent
	}
	return length
}
