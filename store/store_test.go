package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lanenet "github.com/yulon/go-lanenet"
	"github.com/yulon/go-lanenet/sim"
)

func openTest(t *testing.T, path string) *Store {
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func result(outcome sim.Outcome, endedAt time.Time) lanenet.MatchResult {
	return lanenet.MatchResult{
		SessionID: uuid.New(),
		Outcome:   outcome,
		Duration:  95 * time.Second,
		LeftHP:    0,
		RightHP:   420,
		Peer:      "192.168.1.20:5555",
		EndedAt:   endedAt,
	}
}

func TestSaveAndRecent(t *testing.T) {
	s := openTest(t, "")
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var _ lanenet.ResultSink = s
	first := result(sim.OutcomeRightWins, base)
	second := result(sim.OutcomeDraw, base.Add(time.Minute))
	require.NoError(t, s.SaveResult(ctx, first))
	require.NoError(t, s.SaveResult(ctx, second))

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, sim.OutcomeDraw, got[0].Outcome)
	assert.Equal(t, second.SessionID, got[0].SessionID)
	assert.True(t, second.EndedAt.Equal(got[0].EndedAt))

	assert.Equal(t, first.SessionID, got[1].SessionID)
	assert.Equal(t, 95*time.Second, got[1].Duration)
	assert.Equal(t, 420.0, got[1].RightHP)
	assert.Equal(t, "192.168.1.20:5555", got[1].Peer)

	got, err = s.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryStoresAreSeparate(t *testing.T) {
	a, b := openTest(t, ""), openTest(t, "")
	require.NoError(t, a.SaveResult(context.Background(), result(sim.OutcomeLeftWins, time.Now())))

	got, err := b.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SaveResult(context.Background(), result(sim.OutcomeLeftWins, time.Now())))
	require.NoError(t, s.Close())

	s = openTest(t, path)
	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sim.OutcomeLeftWins, got[0].Outcome)
}
