package temporal

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/tempo/internal/db"
	tempoerrors "github.com/hpungsan/tempo/internal/errors"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database, zerolog.Nop())
}

func TestSaveContext_GeneratesULID(t *testing.T) {
	orch := newTestOrchestrator(t)
	ctx := context.Background()

	out, err := orch.SaveContext(ctx, SaveInput{
		Project:    "proj",
		Summary:    "initial design discussion",
		ActionType: "conversation",
		Tags:       []string{"design"},
	})
	require.NoError(t, err)
	require.Len(t, out.ID, 26) // ULID length
	require.Equal(t, "ARCHIVED", string(out.Tier))

	got, err := orch.GetContext(ctx, out.ID)
	require.NoError(t, err)
	require.Equal(t, "proj", got.Project)
	require.Equal(t, 0, got.AccessCount)
}

func TestSaveContext_Validation(t *testing.T) {
	orch := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := orch.SaveContext(ctx, SaveInput{Summary: "no project"})
	require.True(t, tempoerrors.Is(err, tempoerrors.ErrInvalidRequest))

	_, err = orch.SaveContext(ctx, SaveInput{Project: "proj", ActionType: "guessing"})
	require.True(t, tempoerrors.Is(err, tempoerrors.ErrInvalidRequest))
}

func TestSaveContext_DanglingCauseAccepted(t *testing.T) {
	orch := newTestOrchestrator(t)
	ctx := context.Background()

	// caused_by existence is enforced at traversal time, not at write time
	out, err := orch.SaveContext(ctx, SaveInput{Project: "proj", CausedBy: "01NOTYET"})
	require.NoError(t, err)

	chain, err := orch.Causality.BuildCausalChain(ctx, out.ID)
	require.NoError(t, err)
	require.True(t, chain.Truncated)
	require.Len(t, chain.Entries, 1)
}
