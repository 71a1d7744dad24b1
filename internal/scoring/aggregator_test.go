package scoring

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/storage/memory"
)

func newVote(sig, submissionID, sender string, amount float64, confirmedAt int64) *domain.VoteRecord {
	return &domain.VoteRecord{
		Signature:    sig,
		SubmissionID: submissionID,
		Sender:       sender,
		Mint:         "mint",
		RawAmount:    uint64(math.Round(amount * 1e6)),
		Decimals:     6,
		Memo:         submissionID,
		ConfirmedAt:  confirmedAt,
	}
}

func newTestAggregator(t *testing.T, cfg Config, onUpdate func(*domain.CommunityScore)) (*Aggregator, *memory.VoteStore, *memory.ScoreStore, *memory.ScoreHistoryStore) {
	t.Helper()
	votes := memory.NewVoteStore()
	scores := memory.NewScoreStore()
	history := memory.NewScoreHistoryStore()
	return NewAggregator(cfg, votes, scores, history, onUpdate), votes, scores, history
}

func TestAggregator_WeightsCumulativeTotals(t *testing.T) {
	ctx := context.Background()
	agg, votes, _, _ := newTestAggregator(t, DefaultConfig(), nil)

	// alice sends 50 twice: weighted as one 100 total, not two 50s.
	require.NoError(t, votes.Insert(ctx, newVote("s1", "team-alpha", "alice", 50, 1000)))
	require.NoError(t, votes.Insert(ctx, newVote("s2", "team-alpha", "alice", 50, 2000)))
	require.NoError(t, votes.Insert(ctx, newVote("s3", "team-alpha", "bob", 100, 3000)))

	score, changed, err := agg.Recompute(ctx, "team-alpha")
	require.NoError(t, err)
	require.True(t, changed)

	perWallet := math.Log10(101) * 3.0
	require.InDelta(t, 2*perWallet, score.Score, 1e-9)
	require.Equal(t, 2, score.UniqueVoters)
	require.Equal(t, int64(3000), score.LastVoteTime)
	require.True(t, score.Scored())
}

func TestAggregator_RecomputeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	agg, votes, _, history := newTestAggregator(t, DefaultConfig(), nil)

	require.NoError(t, votes.Insert(ctx, newVote("s1", "team-alpha", "alice", 10, 1000)))
	require.NoError(t, votes.Insert(ctx, newVote("s2", "team-alpha", "bob", 10, 2000)))

	first, changed, err := agg.Recompute(ctx, "team-alpha")
	require.NoError(t, err)
	require.True(t, changed)

	second, changed, err := agg.Recompute(ctx, "team-alpha")
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, first.Score, second.Score)

	// Only the changed recompute appended a history point.
	points, err := history.GetBySubmission(ctx, "team-alpha")
	require.NoError(t, err)
	require.Len(t, points, 1)
}

func TestAggregator_OrderIndependence(t *testing.T) {
	ctx := context.Background()

	forward, fwdVotes, _, _ := newTestAggregator(t, DefaultConfig(), nil)
	reverse, revVotes, _, _ := newTestAggregator(t, DefaultConfig(), nil)

	records := []*domain.VoteRecord{
		newVote("s1", "team-alpha", "alice", 0.6, 1000),
		newVote("s2", "team-alpha", "alice", 0.6, 2000),
		newVote("s3", "team-alpha", "bob", 250, 3000),
		newVote("s4", "team-alpha", "carol", 3, 4000),
	}
	for _, r := range records {
		require.NoError(t, fwdVotes.Insert(ctx, r))
	}
	for i := len(records) - 1; i >= 0; i-- {
		r := *records[i]
		require.NoError(t, revVotes.Insert(ctx, &r))
	}

	a, _, err := forward.Recompute(ctx, "team-alpha")
	require.NoError(t, err)
	b, _, err := reverse.Recompute(ctx, "team-alpha")
	require.NoError(t, err)

	require.Equal(t, a.Score, b.Score)
	require.Equal(t, a.UniqueVoters, b.UniqueVoters)
	require.Equal(t, a.LastVoteTime, b.LastVoteTime)
}

func TestAggregator_DustBelowFloorDoesNotScore(t *testing.T) {
	ctx := context.Background()
	agg, votes, _, _ := newTestAggregator(t, DefaultConfig(), nil)

	require.NoError(t, votes.Insert(ctx, newVote("s1", "team-alpha", "alice", 0.5, 1000)))
	require.NoError(t, votes.Insert(ctx, newVote("s2", "team-alpha", "bob", 10, 2000)))

	score, _, err := agg.Recompute(ctx, "team-alpha")
	require.NoError(t, err)
	require.Equal(t, 1, score.UniqueVoters)
	require.False(t, score.Scored())
	// Dust neither scores nor counts toward the voter threshold, but its
	// ledger rows remain untouched.
	all, err := votes.GetBySubmission(ctx, "team-alpha")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestAggregator_DustAccumulatesAcrossRecords(t *testing.T) {
	ctx := context.Background()
	agg, votes, _, _ := newTestAggregator(t, DefaultConfig(), nil)

	// Two sub-floor sends from one wallet cross the floor together.
	require.NoError(t, votes.Insert(ctx, newVote("s1", "team-alpha", "alice", 0.6, 1000)))
	require.NoError(t, votes.Insert(ctx, newVote("s2", "team-alpha", "alice", 0.6, 2000)))

	score, _, err := agg.Recompute(ctx, "team-alpha")
	require.NoError(t, err)
	require.Equal(t, 1, score.UniqueVoters)
	require.InDelta(t, math.Log10(2.2)*3.0, score.Score, 1e-9)
}

func TestAggregator_SingleVoterHasNoPublishableScore(t *testing.T) {
	ctx := context.Background()
	agg, votes, scores, _ := newTestAggregator(t, DefaultConfig(), nil)

	require.NoError(t, votes.Insert(ctx, newVote("s1", "team-alpha", "alice", 1000, 1000)))

	score, _, err := agg.Recompute(ctx, "team-alpha")
	require.NoError(t, err)
	require.Equal(t, 1, score.UniqueVoters)
	require.False(t, score.Scored())

	cached, err := scores.Get(ctx, "team-alpha")
	require.NoError(t, err)
	require.Equal(t, score.Score, cached.Score)
}

func TestAggregator_VotingWindowExcludesButKeepsLedger(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.OpenTime = 1000
	cfg.CloseTime = 5000
	agg, votes, _, _ := newTestAggregator(t, cfg, nil)

	require.NoError(t, votes.Insert(ctx, newVote("s1", "team-alpha", "early", 100, 500)))
	require.NoError(t, votes.Insert(ctx, newVote("s2", "team-alpha", "alice", 100, 2000)))
	require.NoError(t, votes.Insert(ctx, newVote("s3", "team-alpha", "bob", 100, 3000)))
	require.NoError(t, votes.Insert(ctx, newVote("s4", "team-alpha", "late", 100, 9000)))

	score, _, err := agg.Recompute(ctx, "team-alpha")
	require.NoError(t, err)
	require.Equal(t, 2, score.UniqueVoters)
	require.Equal(t, int64(3000), score.LastVoteTime)

	all, err := votes.GetBySubmission(ctx, "team-alpha")
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestAggregator_WeightCapBoundsWhales(t *testing.T) {
	ctx := context.Background()
	agg, votes, _, _ := newTestAggregator(t, DefaultConfig(), nil)

	require.NoError(t, votes.Insert(ctx, newVote("s1", "team-alpha", "whale", 10_000_000, 1000)))
	require.NoError(t, votes.Insert(ctx, newVote("s2", "team-alpha", "alice", 10, 2000)))

	score, _, err := agg.Recompute(ctx, "team-alpha")
	require.NoError(t, err)
	require.InDelta(t, 10.0+math.Log10(11)*3.0, score.Score, 1e-9)
}

func TestAggregator_FlushCoalescesDirtySubmissions(t *testing.T) {
	ctx := context.Background()
	var updates []string
	agg, votes, _, _ := newTestAggregator(t, DefaultConfig(), func(s *domain.CommunityScore) {
		updates = append(updates, s.SubmissionID)
	})

	require.NoError(t, votes.Insert(ctx, newVote("s1", "team-alpha", "alice", 10, 1000)))
	require.NoError(t, votes.Insert(ctx, newVote("s2", "team-alpha", "bob", 10, 2000)))

	// A burst of notifications for one submission costs one recompute.
	agg.Enqueue("team-alpha")
	agg.Enqueue("team-alpha")
	agg.Enqueue("team-alpha")
	agg.flush(ctx)

	require.Equal(t, []string{"team-alpha"}, updates)

	// Nothing dirty: flush is a no-op.
	agg.flush(ctx)
	require.Len(t, updates, 1)
}

func TestAggregator_ReconcileRepairsDrift(t *testing.T) {
	ctx := context.Background()
	agg, votes, scores, _ := newTestAggregator(t, DefaultConfig(), nil)

	for i := 0; i < 3; i++ {
		sub := fmt.Sprintf("team-%d", i)
		require.NoError(t, votes.Insert(ctx, newVote(sub+"-a", sub, "alice", 10, 1000)))
		require.NoError(t, votes.Insert(ctx, newVote(sub+"-b", sub, "bob", 10, 2000)))
	}
	require.NoError(t, agg.Reconcile(ctx))

	want, err := scores.Get(ctx, "team-1")
	require.NoError(t, err)

	// Corrupt one cached row: the ledger remains authoritative.
	require.NoError(t, scores.Upsert(ctx, &domain.CommunityScore{
		SubmissionID: "team-1",
		Score:        999,
		UniqueVoters: 42,
	}))

	require.NoError(t, agg.Reconcile(ctx))

	got, err := scores.Get(ctx, "team-1")
	require.NoError(t, err)
	require.Equal(t, want.Score, got.Score)
	require.Equal(t, 2, got.UniqueVoters)
}

func TestAggregator_UnknownSubmissionYieldsZeroRow(t *testing.T) {
	ctx := context.Background()
	agg, _, _, _ := newTestAggregator(t, DefaultConfig(), nil)

	score, changed, err := agg.Recompute(ctx, "team-ghost")
	require.NoError(t, err)
	require.True(t, changed)
	require.Zero(t, score.Score)
	require.Zero(t, score.UniqueVoters)
	require.False(t, score.Scored())
}
