package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/observability"
	"solana-vote-tracker/internal/storage"
)

// insertVoteMetrics reads the observation count and error count recorded
// for postgres insert_vote queries.
func insertVoteMetrics(t *testing.T) (uint64, float64) {
	t.Helper()
	var m dto.Metric
	obs := observability.DefaultMetrics.DBQueryDuration.WithLabelValues("postgres", "insert_vote")
	require.NoError(t, obs.(prometheus.Metric).Write(&m))
	errs := testutil.ToFloat64(observability.DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "insert_vote"))
	return m.GetHistogram().GetSampleCount(), errs
}

func TestVoteStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVoteStore(pool)
	ctx := context.Background()

	vote := &domain.VoteRecord{
		Signature:    "5VERYLONGBASE58SIGNATURE1",
		SubmissionID: "ai-trading-bot",
		Sender:       "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		Mint:         "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		RawAmount:    250_000_000,
		Decimals:     6,
		Memo:         "ai-trading-bot",
		ConfirmedAt:  1704067200000,
	}

	require.NoError(t, store.Insert(ctx, vote))

	got, err := store.GetBySignature(ctx, vote.Signature)
	require.NoError(t, err)
	require.Equal(t, vote.Sender, got.Sender)
	require.Equal(t, vote.RawAmount, got.RawAmount)
	require.Equal(t, vote.SubmissionID, got.SubmissionID)
	require.NotZero(t, got.CreatedAt)
}

func TestVoteStore_DuplicateSignature(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVoteStore(pool)
	ctx := context.Background()

	vote := &domain.VoteRecord{
		Signature:   "dup-sig",
		Sender:      "walletA",
		Mint:        "mint1",
		RawAmount:   100,
		ConfirmedAt: 1000,
	}

	require.NoError(t, store.Insert(ctx, vote))

	samplesBefore, errsBefore := insertVoteMetrics(t)

	// Replayed delivery with identical payload
	err := store.Insert(ctx, vote)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	samplesAfter, errsAfter := insertVoteMetrics(t)
	require.Equal(t, samplesBefore+1, samplesAfter, "duplicate insert must still be timed")
	require.Equal(t, errsBefore, errsAfter, "duplicate insert is an expected outcome, not a query error")

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "replay must not create a second ledger row")
}

func TestVoteStore_ConcurrentDuplicateInserts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVoteStore(pool)
	ctx := context.Background()

	// Redundant receivers racing on the same delivery: the unique
	// constraint must let exactly one insert win.
	const goroutines = 8
	var wg sync.WaitGroup
	results := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Insert(ctx, &domain.VoteRecord{
				Signature:   "race-sig",
				Sender:      "walletA",
				Mint:        "mint1",
				RawAmount:   100,
				ConfirmedAt: 1000,
			})
		}()
	}
	wg.Wait()
	close(results)

	var wins, dups int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case err == storage.ErrDuplicateKey:
			dups++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, goroutines-1, dups)
}

func TestVoteStore_QueriesAndListSubmissions(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVoteStore(pool)
	ctx := context.Background()

	votes := []*domain.VoteRecord{
		{Signature: "s1", SubmissionID: "proj-a", Sender: "w1", Mint: "m", RawAmount: 1, ConfirmedAt: 3000},
		{Signature: "s2", SubmissionID: "proj-a", Sender: "w2", Mint: "m", RawAmount: 2, ConfirmedAt: 1000},
		{Signature: "s3", SubmissionID: "proj-b", Sender: "w1", Mint: "m", RawAmount: 3, ConfirmedAt: 2000},
		{Signature: "s4", SubmissionID: "", Sender: "w3", Mint: "m", RawAmount: 4, ConfirmedAt: 4000},
	}
	for _, v := range votes {
		require.NoError(t, store.Insert(ctx, v))
	}

	bySub, err := store.GetBySubmission(ctx, "proj-a")
	require.NoError(t, err)
	require.Len(t, bySub, 2)
	require.Equal(t, "s2", bySub[0].Signature, "ordered by confirmed_at ASC")

	bySender, err := store.GetBySender(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, bySender, 2)

	ids, err := store.ListSubmissions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"proj-a", "proj-b"}, ids, "unresolved memos excluded")
}

func TestVoteStore_GetBySignatureNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVoteStore(pool)

	_, err := store.GetBySignature(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVoteStore_LargeLedgerScan(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVoteStore(pool)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, store.Insert(ctx, &domain.VoteRecord{
			Signature:    fmt.Sprintf("bulk-sig-%03d", i),
			SubmissionID: fmt.Sprintf("proj-%d", i%5),
			Sender:       fmt.Sprintf("wallet-%d", i%10),
			Mint:         "m",
			RawAmount:    uint64(i + 1),
			ConfirmedAt:  int64(1000 + i),
		}))
	}

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 100)

	ids, err := store.ListSubmissions(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 5)
}
