package causality

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/tempo/internal/errors"
)

// BuildReport produces a markdown causal-history report for a snapshot:
// the full chain root-first, each entry with its reasoning block.
func (e *Engine) BuildReport(ctx context.Context, id string) (string, error) {
	chain, err := e.BuildCausalChain(ctx, id)
	if err != nil {
		return "", err
	}

	last := chain.Entries[len(chain.Entries)-1].Snapshot

	var b strings.Builder
	fmt.Fprintf(&b, "# Causal history: %s\n\n", last.ID)
	fmt.Fprintf(&b, "Project: `%s` · Chain length: %d\n\n", last.Project, len(chain.Entries))

	if chain.Truncated {
		b.WriteString("> History truncated: an ancestor record is no longer available.\n\n")
	}
	if chain.CycleAt != "" {
		fmt.Fprintf(&b, "> Causal cycle defused at `%s`; chain shown up to the revisit.\n\n", chain.CycleAt)
	}

	for _, entry := range chain.Entries {
		s := entry.Snapshot
		fmt.Fprintf(&b, "## %d. %s\n\n", entry.Depth, s.ID)
		fmt.Fprintf(&b, "_%s_\n\n", s.CreatedAt.UTC().Format("2006-01-02 15:04"))
		for _, line := range strings.Split(FormatReasoning(&s), "\n") {
			fmt.Fprintf(&b, "- %s\n", line)
		}
		if len(s.Tags) > 0 {
			fmt.Fprintf(&b, "- Tags: %s\n", strings.Join(s.Tags, ", "))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\nGenerated %s\n", time.Now().UTC().Format(time.RFC3339))
	return b.String(), nil
}

// RenderHTML converts a markdown report to HTML.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", errors.NewInternal(err)
	}
	return buf.String(), nil
}
