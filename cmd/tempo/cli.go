package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/tempo/internal/causality"
	"github.com/hpungsan/tempo/internal/config"
	"github.com/hpungsan/tempo/internal/errors"
	"github.com/hpungsan/tempo/internal/snapshot"
	"github.com/hpungsan/tempo/internal/temporal"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(orch *temporal.Orchestrator, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "tempo",
		Usage:   "Temporal context intelligence store",
		Version: Version,
		Commands: []*cli.Command{
			saveCmd(orch),
			getCmd(orch),
			chainCmd(orch),
			whyCmd(orch),
			statsCmd(orch),
			trackCmd(orch),
			recalcCmd(orch),
			pruneCmd(orch, cfg),
			lruCmd(orch),
			predictCmd(orch, cfg),
			highValueCmd(orch, cfg),
			reportCmd(orch),
			briefCmd(orch, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// saveCmd creates the save command.
func saveCmd(orch *temporal.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:  "save",
		Usage: "Save a context snapshot (summary via --summary or piped stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project name", Required: true},
			&cli.StringFlag{Name: "summary", Aliases: []string{"s"}, Usage: "Short summary of the context (read from stdin when omitted)"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
			&cli.StringFlag{Name: "action", Aliases: []string{"a"}, Usage: "Action type: conversation|decision|file_edit|tool_use|research"},
			&cli.StringFlag{Name: "rationale", Aliases: []string{"r"}, Usage: "Why this action was taken"},
			&cli.StringFlag{Name: "caused-by", Usage: "ID of the causing snapshot"},
		},
		Action: func(c *cli.Context) error {
			summary := c.String("summary")
			if summary == "" && stdinHasData() {
				text, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				summary = text
			}
			output, err := orch.SaveContext(c.Context, temporal.SaveInput{
				Project:    c.String("project"),
				Summary:    summary,
				Tags:       parseTags(c.String("tags")),
				ActionType: c.String("action"),
				Rationale:  c.String("rationale"),
				CausedBy:   c.String("caused-by"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// getCmd creates the get command.
func getCmd(orch *temporal.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch a snapshot by ID",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "track", Usage: "Count the read as an access and include score and chain"},
		},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if c.Bool("track") {
				output, err := orch.LoadContext(c.Context, id)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}
			output, err := orch.GetContext(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// chainCmd creates the chain command.
func chainCmd(orch *temporal.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:      "chain",
		Usage:     "Walk caused_by links from a snapshot back to its root",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := orch.Causality.BuildCausalChain(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// whyCmd creates the why command.
func whyCmd(orch *temporal.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:      "why",
		Usage:     "Reconstruct the reasoning behind a snapshot",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			reasoning, err := orch.Causality.ReconstructReasoning(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			fmt.Println(reasoning)
			return nil
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(orch *temporal.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Project statistics from one engine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project name", Required: true},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Value: "memory", Usage: "Engine: causality|memory|propagation"},
		},
		Action: func(c *cli.Context) error {
			project := c.String("project")
			var (
				output any
				err    error
			)
			switch kind := c.String("kind"); kind {
			case "causality":
				output, err = orch.Causality.GetStats(c.Context, project)
			case "memory":
				output, err = orch.Memory.GetStats(c.Context, project)
			case "propagation":
				output, err = orch.Scorer.GetPropagationStats(c.Context, project)
			default:
				err = errors.NewInvalidRequest(fmt.Sprintf("unknown stats kind %q (valid: causality, memory, propagation)", kind))
			}
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// trackCmd creates the track command.
func trackCmd(orch *temporal.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:      "track",
		Usage:     "Record an access against a snapshot",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if err := orch.Memory.TrackAccess(c.Context, id); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"id": id, "tracked": true})
		},
	}
}

// recalcCmd creates the recalc command.
func recalcCmd(orch *temporal.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:  "recalc",
		Usage: "Recompute cached memory tiers from access recency",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project name (all projects when omitted)"},
		},
		Action: func(c *cli.Context) error {
			updated, err := orch.Memory.RecalculateAllTiers(c.Context, c.String("project"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"updated": updated})
		},
	}
}

// pruneCmd creates the prune command.
func pruneCmd(orch *temporal.Orchestrator, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete snapshots whose last access is past the expiry cutoff",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project name (all projects when omitted)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: -1, Usage: "Maximum deletions, oldest first (0 = no cap)"},
		},
		Action: func(c *cli.Context) error {
			limit := c.Int("limit")
			if limit < 0 {
				limit = cfg.PruneLimit
			}
			deleted, err := orch.Memory.PruneExpired(c.Context, c.String("project"), limit)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"deleted": deleted})
		},
	}
}

// lruCmd creates the lru command.
func lruCmd(orch *temporal.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:  "lru",
		Usage: "List least recently used snapshots in a tier",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project name (all projects when omitted)"},
			&cli.StringFlag{Name: "tier", Aliases: []string{"t"}, Value: "ARCHIVED", Usage: "Tier: ACTIVE|RECENT|ARCHIVED|EXPIRED"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 10, Usage: "Maximum results"},
		},
		Action: func(c *cli.Context) error {
			output, err := orch.Memory.FindLeastRecentlyUsed(c.Context,
				c.String("project"), snapshot.Tier(c.String("tier")), c.Int("limit"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// predictCmd creates the predict command.
func predictCmd(orch *temporal.Orchestrator, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "Refresh stale prediction scores for a project",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project name", Required: true},
			&cli.Float64Flag{Name: "stale-hours", Value: -1, Usage: "Staleness threshold in hours (default from config)"},
		},
		Action: func(c *cli.Context) error {
			threshold := c.Float64("stale-hours")
			if threshold < 0 {
				threshold = cfg.StaleThresholdHours
			}
			updated, err := orch.Scorer.UpdateProjectPredictions(c.Context, c.String("project"), threshold)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"updated": updated})
		},
	}
}

// highValueCmd creates the high-value command.
func highValueCmd(orch *temporal.Orchestrator, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "high-value",
		Usage: "List snapshots whose stored score meets a minimum, highest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project name", Required: true},
			&cli.Float64Flag{Name: "min-score", Value: -1, Usage: "Minimum stored score (default from config)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: -1, Usage: "Maximum results (default from config)"},
		},
		Action: func(c *cli.Context) error {
			minScore := c.Float64("min-score")
			if minScore < 0 {
				minScore = cfg.HighValueMinScore
			}
			limit := c.Int("limit")
			if limit < 0 {
				limit = cfg.HighValueLimit
			}
			output, err := orch.Scorer.GetHighValueContexts(c.Context, c.String("project"), minScore, limit)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// reportCmd creates the report command.
func reportCmd(orch *temporal.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Render a causal chain report for a snapshot",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "html", Usage: "Render the report as HTML instead of Markdown"},
		},
		Action: func(c *cli.Context) error {
			md, err := orch.Causality.BuildReport(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			if c.Bool("html") {
				html, err := causality.RenderHTML(md)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				fmt.Println(html)
				return nil
			}
			fmt.Println(md)
			return nil
		},
	}
}

// briefCmd creates the brief command.
func briefCmd(orch *temporal.Orchestrator, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "brief",
		Usage: "Combined project brief across all engines",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project name", Required: true},
		},
		Action: func(c *cli.Context) error {
			output, err := orch.ProjectBrief(c.Context, c.String("project"), cfg.HighValueMinScore, cfg.HighValueLimit)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if tempoErr, ok := err.(*errors.TempoError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", tempoErr.Code, tempoErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseTags splits a comma-separated string into a slice of tags.
func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
