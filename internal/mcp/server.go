package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/tempo/internal/config"
	"github.com/hpungsan/tempo/internal/temporal"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"context_save": {
		def:     saveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSave },
	},
	"context_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"context_load": {
		def:     loadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLoad },
	},
	"context_chain": {
		def:     chainToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChain },
	},
	"context_why": {
		def:     whyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWhy },
	},
	"context_causality_stats": {
		def:     causalityStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCausalityStats },
	},
	"context_track_access": {
		def:     trackAccessToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTrackAccess },
	},
	"context_memory_stats": {
		def:     memoryStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMemoryStats },
	},
	"context_recalculate_tiers": {
		def:     recalculateTiersToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRecalculateTiers },
	},
	"context_prune": {
		def:     pruneToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePrune },
	},
	"context_lru": {
		def:     lruToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLRU },
	},
	"context_score": {
		def:     scoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleScore },
	},
	"context_predict": {
		def:     predictToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePredict },
	},
	"context_high_value": {
		def:     highValueToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHighValue },
	},
	"context_propagation_stats": {
		def:     propagationStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePropagationStats },
	},
	"context_brief": {
		def:     briefToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBrief },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with Tempo tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(orch *temporal.Orchestrator, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"tempo",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(orch, cfg)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(orch *temporal.Orchestrator, cfg *config.Config, version string) error {
	s := NewServer(orch, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
