package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/storage"
)

func TestVoteStore_InsertAndGet(t *testing.T) {
	store := NewVoteStore()
	ctx := context.Background()

	vote := &domain.VoteRecord{
		Signature:    "sig1",
		SubmissionID: "cool-project",
		Sender:       "walletA",
		Mint:         "mint1",
		RawAmount:    100_000_000,
		Decimals:     6,
		Memo:         "cool-project",
		ConfirmedAt:  1704067200000,
	}

	if err := store.Insert(ctx, vote); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetBySignature(ctx, "sig1")
	if err != nil {
		t.Fatalf("GetBySignature failed: %v", err)
	}
	if got.Sender != "walletA" {
		t.Errorf("Sender mismatch: got %s, want walletA", got.Sender)
	}
	if got.UIAmount() != 100.0 {
		t.Errorf("UIAmount mismatch: got %f, want 100.0", got.UIAmount())
	}
}

func TestVoteStore_DuplicateSignature(t *testing.T) {
	store := NewVoteStore()
	ctx := context.Background()

	vote := &domain.VoteRecord{
		Signature:   "sig1",
		Sender:      "walletA",
		RawAmount:   1,
		ConfirmedAt: 1000,
	}

	if err := store.Insert(ctx, vote); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, vote)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	all, _ := store.GetAll(ctx)
	if len(all) != 1 {
		t.Errorf("Expected 1 record after replay, got %d", len(all))
	}
}

func TestVoteStore_ConcurrentDuplicateInserts(t *testing.T) {
	store := NewVoteStore()
	ctx := context.Background()

	const goroutines = 16
	var wg sync.WaitGroup
	inserted := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Insert(ctx, &domain.VoteRecord{
				Signature:   "same-sig",
				Sender:      "walletA",
				ConfirmedAt: 1000,
			})
			if err == nil {
				inserted <- struct{}{}
			} else if !errors.Is(err, storage.ErrDuplicateKey) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(inserted)

	if n := len(inserted); n != 1 {
		t.Errorf("Expected exactly 1 winning insert, got %d", n)
	}
}

func TestVoteStore_GetBySubmissionOrdering(t *testing.T) {
	store := NewVoteStore()
	ctx := context.Background()

	for i, ts := range []int64{3000, 1000, 2000} {
		err := store.Insert(ctx, &domain.VoteRecord{
			Signature:    fmt.Sprintf("sig%d", i),
			SubmissionID: "proj-x",
			Sender:       "walletA",
			ConfirmedAt:  ts,
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	votes, err := store.GetBySubmission(ctx, "proj-x")
	if err != nil {
		t.Fatalf("GetBySubmission failed: %v", err)
	}
	if len(votes) != 3 {
		t.Fatalf("Expected 3 votes, got %d", len(votes))
	}
	for i := 1; i < len(votes); i++ {
		if votes[i].ConfirmedAt < votes[i-1].ConfirmedAt {
			t.Errorf("votes not ordered by confirmed_at: %v then %v", votes[i-1].ConfirmedAt, votes[i].ConfirmedAt)
		}
	}
}

func TestVoteStore_ListSubmissionsSkipsUnresolved(t *testing.T) {
	store := NewVoteStore()
	ctx := context.Background()

	store.Insert(ctx, &domain.VoteRecord{Signature: "s1", SubmissionID: "proj-a", Sender: "w1", ConfirmedAt: 1})
	store.Insert(ctx, &domain.VoteRecord{Signature: "s2", SubmissionID: "", Sender: "w2", ConfirmedAt: 2})
	store.Insert(ctx, &domain.VoteRecord{Signature: "s3", SubmissionID: "proj-b", Sender: "w3", ConfirmedAt: 3})

	ids, err := store.ListSubmissions(ctx)
	if err != nil {
		t.Fatalf("ListSubmissions failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Expected 2 submission ids, got %d: %v", len(ids), ids)
	}
	if ids[0] != "proj-a" || ids[1] != "proj-b" {
		t.Errorf("Unexpected ids: %v", ids)
	}
}

func TestVoteStore_InvalidInput(t *testing.T) {
	store := NewVoteStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(ctx, &domain.VoteRecord{Sender: "w"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty signature, got %v", err)
	}
}
