package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool definitions. Descriptions are what MCP clients show to models,
// so they spell out defaults and side effects.

var saveToolDef = mcp.NewTool("context_save",
	mcp.WithDescription("Save a context snapshot. Generates a ULID when id is omitted; saving an existing id replaces the record."),
	mcp.WithString("id", mcp.Description("Snapshot ID (ULID). Generated when omitted.")),
	mcp.WithString("project", mcp.Required(), mcp.Description("Project the snapshot belongs to.")),
	mcp.WithString("summary", mcp.Description("Short summary of the captured context.")),
	mcp.WithArray("tags", mcp.Description("Free-form tags."), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithString("action_type", mcp.Description("One of: conversation, decision, file_edit, tool_use, research.")),
	mcp.WithString("rationale", mcp.Description("Why this action was taken.")),
	mcp.WithString("caused_by", mcp.Description("ID of the snapshot that caused this one.")),
)

var getToolDef = mcp.NewTool("context_get",
	mcp.WithDescription("Fetch a snapshot by ID without counting the read as an access."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Snapshot ID.")),
)

var loadToolDef = mcp.NewTool("context_load",
	mcp.WithDescription("Fetch a snapshot with access tracking, live tier, a fresh propagation score, and its causal chain."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Snapshot ID.")),
)

var chainToolDef = mcp.NewTool("context_chain",
	mcp.WithDescription("Walk caused_by links from a snapshot back to its root cause. Reports truncation and cycles."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Snapshot ID to start from.")),
)

var whyToolDef = mcp.NewTool("context_why",
	mcp.WithDescription("Reconstruct the reasoning behind a snapshot: action, rationale, summary, and cause."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Snapshot ID.")),
)

var causalityStatsToolDef = mcp.NewTool("context_causality_stats",
	mcp.WithDescription("Causality statistics for a project: totals, root causes, action type counts, sampled average chain length."),
	mcp.WithString("project", mcp.Required(), mcp.Description("Project to report on.")),
)

var trackAccessToolDef = mcp.NewTool("context_track_access",
	mcp.WithDescription("Record an access: bumps access_count, sets last_accessed, and refreshes the cached tier."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Snapshot ID.")),
)

var memoryStatsToolDef = mcp.NewTool("context_memory_stats",
	mcp.WithDescription("Memory tier distribution for a project, classified by current recency rather than cached tiers."),
	mcp.WithString("project", mcp.Required(), mcp.Description("Project to report on.")),
)

var recalculateTiersToolDef = mcp.NewTool("context_recalculate_tiers",
	mcp.WithDescription("Recompute cached tiers from access recency. Returns how many snapshots changed tier."),
	mcp.WithString("project", mcp.Description("Project to recalculate. All projects when omitted.")),
)

var pruneToolDef = mcp.NewTool("context_prune",
	mcp.WithDescription("Delete snapshots whose last access is older than the expiry cutoff. Never-accessed snapshots are kept."),
	mcp.WithString("project", mcp.Description("Project to prune. All projects when omitted.")),
	mcp.WithNumber("limit", mcp.Description("Maximum deletions this run, oldest first. 0 or omitted means no cap.")),
)

var lruToolDef = mcp.NewTool("context_lru",
	mcp.WithDescription("List least recently used snapshots currently classified into a tier, oldest access first."),
	mcp.WithString("project", mcp.Description("Project to search. All projects when omitted.")),
	mcp.WithString("tier", mcp.Required(), mcp.Description("One of: ACTIVE, RECENT, ARCHIVED, EXPIRED.")),
	mcp.WithNumber("limit", mcp.Description("Maximum results. 0 or omitted means no cap.")),
)

var scoreToolDef = mcp.NewTool("context_score",
	mcp.WithDescription("Compute a propagation score and reasons for one snapshot on demand. Nothing is persisted."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Snapshot ID.")),
)

var predictToolDef = mcp.NewTool("context_predict",
	mcp.WithDescription("Refresh stored prediction scores for a project's snapshots whose predictions are stale."),
	mcp.WithString("project", mcp.Required(), mcp.Description("Project to refresh.")),
	mcp.WithNumber("stale_threshold_hours", mcp.Description("Staleness threshold in hours. Defaults to the configured threshold (24).")),
)

var highValueToolDef = mcp.NewTool("context_high_value",
	mcp.WithDescription("List snapshots whose stored prediction score meets a minimum, highest first."),
	mcp.WithString("project", mcp.Required(), mcp.Description("Project to search.")),
	mcp.WithNumber("min_score", mcp.Description("Minimum stored score. Defaults to the configured minimum (0.6).")),
	mcp.WithNumber("limit", mcp.Description("Maximum results. Defaults to the configured limit (5).")),
)

var propagationStatsToolDef = mcp.NewTool("context_propagation_stats",
	mcp.WithDescription("Prediction coverage for a project: scored count, mean score, and reason token counts."),
	mcp.WithString("project", mcp.Required(), mcp.Description("Project to report on.")),
)

var briefToolDef = mcp.NewTool("context_brief",
	mcp.WithDescription("Combined project brief: causality, memory, and propagation stats plus the current high-value snapshots."),
	mcp.WithString("project", mcp.Required(), mcp.Description("Project to report on.")),
	mcp.WithNumber("min_score", mcp.Description("Minimum stored score for the high-value section.")),
	mcp.WithNumber("limit", mcp.Description("Maximum high-value results.")),
)
