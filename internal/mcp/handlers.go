package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/tempo/internal/config"
	"github.com/hpungsan/tempo/internal/errors"
	"github.com/hpungsan/tempo/internal/snapshot"
	"github.com/hpungsan/tempo/internal/temporal"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	orch *temporal.Orchestrator
	cfg  *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(orch *temporal.Orchestrator, cfg *config.Config) *Handlers {
	return &Handlers{orch: orch, cfg: cfg}
}

// Request types for each tool

// SaveRequest represents the arguments for context_save.
type SaveRequest struct {
	ID         string   `json:"id,omitempty"`
	Project    string   `json:"project"`
	Summary    string   `json:"summary,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	ActionType string   `json:"action_type,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
	CausedBy   string   `json:"caused_by,omitempty"`
}

// IDRequest represents the arguments for tools addressing one snapshot.
type IDRequest struct {
	ID string `json:"id"`
}

// ProjectRequest represents the arguments for project-scoped stats tools.
type ProjectRequest struct {
	Project string `json:"project"`
}

// RecalculateRequest represents the arguments for context_recalculate_tiers.
type RecalculateRequest struct {
	Project string `json:"project,omitempty"`
}

// PruneRequest represents the arguments for context_prune.
type PruneRequest struct {
	Project string `json:"project,omitempty"`
	Limit   *int   `json:"limit,omitempty"`
}

// LRURequest represents the arguments for context_lru.
type LRURequest struct {
	Project string `json:"project,omitempty"`
	Tier    string `json:"tier"`
	Limit   int    `json:"limit,omitempty"`
}

// PredictRequest represents the arguments for context_predict.
type PredictRequest struct {
	Project             string   `json:"project"`
	StaleThresholdHours *float64 `json:"stale_threshold_hours,omitempty"`
}

// HighValueRequest represents the arguments for context_high_value.
type HighValueRequest struct {
	Project  string   `json:"project"`
	MinScore *float64 `json:"min_score,omitempty"`
	Limit    *int     `json:"limit,omitempty"`
}

// BriefRequest represents the arguments for context_brief.
type BriefRequest struct {
	Project  string   `json:"project"`
	MinScore *float64 `json:"min_score,omitempty"`
	Limit    *int     `json:"limit,omitempty"`
}

// Handler implementations

// HandleSave handles the context_save tool call.
func (h *Handlers) HandleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.orch.SaveContext(ctx, temporal.SaveInput{
		ID:         input.ID,
		Project:    input.Project,
		Summary:    input.Summary,
		Tags:       input.Tags,
		ActionType: input.ActionType,
		Rationale:  input.Rationale,
		CausedBy:   input.CausedBy,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGet handles the context_get tool call. The read is untracked;
// use context_load or context_track_access when the access should count.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.orch.GetContext(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleLoad handles the context_load tool call.
func (h *Handlers) HandleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.orch.LoadContext(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleChain handles the context_chain tool call.
func (h *Handlers) HandleChain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.orch.Causality.BuildCausalChain(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWhy handles the context_why tool call.
func (h *Handlers) HandleWhy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	reasoning, err := h.orch.Causality.ReconstructReasoning(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"id":        input.ID,
		"reasoning": reasoning,
	})
}

// HandleCausalityStats handles the context_causality_stats tool call.
func (h *Handlers) HandleCausalityStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.orch.Causality.GetStats(ctx, input.Project)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTrackAccess handles the context_track_access tool call.
func (h *Handlers) HandleTrackAccess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := h.orch.Memory.TrackAccess(ctx, input.ID); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"id":      input.ID,
		"tracked": true,
	})
}

// HandleMemoryStats handles the context_memory_stats tool call.
func (h *Handlers) HandleMemoryStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.orch.Memory.GetStats(ctx, input.Project)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRecalculateTiers handles the context_recalculate_tiers tool call.
func (h *Handlers) HandleRecalculateTiers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RecalculateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	updated, err := h.orch.Memory.RecalculateAllTiers(ctx, input.Project)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"project": input.Project,
		"updated": updated,
	})
}

// HandlePrune handles the context_prune tool call.
func (h *Handlers) HandlePrune(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PruneRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	limit := h.cfg.PruneLimit
	if input.Limit != nil {
		limit = *input.Limit
	}

	deleted, err := h.orch.Memory.PruneExpired(ctx, input.Project, limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"project": input.Project,
		"deleted": deleted,
	})
}

// HandleLRU handles the context_lru tool call.
func (h *Handlers) HandleLRU(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LRURequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.orch.Memory.FindLeastRecentlyUsed(ctx, input.Project, snapshot.Tier(input.Tier), input.Limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"snapshots": result,
	})
}

// HandleScore handles the context_score tool call. The score is
// computed on demand and not persisted; use context_predict to refresh
// stored predictions.
func (h *Handlers) HandleScore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	snap, err := h.orch.GetContext(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	score, err := h.orch.Scorer.CalculateScore(ctx, snap)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"id":      snap.ID,
		"score":   score,
		"reasons": h.orch.Scorer.CalculatePropagationReasons(snap),
	})
}

// HandlePredict handles the context_predict tool call.
func (h *Handlers) HandlePredict(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PredictRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	threshold := h.cfg.StaleThresholdHours
	if input.StaleThresholdHours != nil {
		threshold = *input.StaleThresholdHours
	}

	updated, err := h.orch.Scorer.UpdateProjectPredictions(ctx, input.Project, threshold)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"project": input.Project,
		"updated": updated,
	})
}

// HandleHighValue handles the context_high_value tool call.
func (h *Handlers) HandleHighValue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HighValueRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	minScore := h.cfg.HighValueMinScore
	if input.MinScore != nil {
		minScore = *input.MinScore
	}
	limit := h.cfg.HighValueLimit
	if input.Limit != nil {
		limit = *input.Limit
	}

	result, err := h.orch.Scorer.GetHighValueContexts(ctx, input.Project, minScore, limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"snapshots": result,
	})
}

// HandlePropagationStats handles the context_propagation_stats tool call.
func (h *Handlers) HandlePropagationStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.orch.Scorer.GetPropagationStats(ctx, input.Project)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBrief handles the context_brief tool call.
func (h *Handlers) HandleBrief(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BriefRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	minScore := h.cfg.HighValueMinScore
	if input.MinScore != nil {
		minScore = *input.MinScore
	}
	limit := h.cfg.HighValueLimit
	if input.Limit != nil {
		limit = *input.Limit
	}

	result, err := h.orch.ProjectBrief(ctx, input.Project, minScore, limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if tempoErr, ok := err.(*errors.TempoError); ok {
		errorObj := map[string]any{
			"code":    tempoErr.Code,
			"message": tempoErr.Message,
			"status":  tempoErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if tempoErr.Code != errors.ErrInternal && tempoErr.Details != nil {
			errorObj["details"] = tempoErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
