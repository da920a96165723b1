package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/adgen/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now()
	rs := domain.RunSummary{
		RunID:      "run_1",
		StartedAt:  now,
		EndedAt:    now.Add(time.Minute),
		TargetImgs: 10,
		Accepted:   9,
		CostTotal:  1.23,
		Outcome:    domain.RunOutcomeFinished,
	}
	require.NoError(t, s.Insert(ctx, rs))

	got, err := s.List(ctx, 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "run_1", got[0].RunID)
	require.Equal(t, 9, got[0].Accepted)
	require.Equal(t, domain.RunOutcomeFinished, got[0].Outcome)
	require.Empty(t, got[0].Error)
}

func TestListOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now()
	require.NoError(t, s.Insert(ctx, domain.RunSummary{
		RunID: "older", StartedAt: base, EndedAt: base.Add(time.Minute), Outcome: domain.RunOutcomeFinished,
	}))
	require.NoError(t, s.Insert(ctx, domain.RunSummary{
		RunID: "newer", StartedAt: base, EndedAt: base.Add(2 * time.Minute), Outcome: domain.RunOutcomeFailed, Error: "stalled",
	}))

	got, err := s.List(ctx, 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "newer", got[0].RunID)
	require.Equal(t, "stalled", got[0].Error)
	require.Equal(t, "older", got[1].RunID)
}
