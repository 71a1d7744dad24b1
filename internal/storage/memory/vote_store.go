package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/storage"
)

// VoteStore is an in-memory implementation of storage.VoteStore.
// Used for dev mode and tests; the map key is the transaction signature,
// so dedup semantics match the postgres unique constraint.
type VoteStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.VoteRecord // keyed by signature
	nextID int64
}

// NewVoteStore creates a new in-memory vote store.
func NewVoteStore() *VoteStore {
	return &VoteStore{
		data:   make(map[string]*domain.VoteRecord),
		nextID: 1,
	}
}

var _ storage.VoteStore = (*VoteStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if the signature exists.
func (s *VoteStore) Insert(_ context.Context, v *domain.VoteRecord) error {
	if v == nil || v.Signature == "" || v.Sender == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[v.Signature]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *v
	cp.ID = s.nextID
	s.nextID++
	if cp.CreatedAt == 0 {
		cp.CreatedAt = time.Now().UnixMilli()
	}
	s.data[v.Signature] = &cp
	return nil
}

// GetBySignature retrieves a record by signature.
func (s *VoteStore) GetBySignature(_ context.Context, signature string) (*domain.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.data[signature]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

// GetBySubmission retrieves all records for a submission, ordered by confirmation time ASC.
func (s *VoteStore) GetBySubmission(_ context.Context, submissionID string) ([]*domain.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VoteRecord
	for _, v := range s.data {
		if v.SubmissionID == submissionID {
			cp := *v
			result = append(result, &cp)
		}
	}

	sortVotes(result)
	return result, nil
}

// GetBySender retrieves all records from a sender, ordered by confirmation time ASC.
func (s *VoteStore) GetBySender(_ context.Context, sender string) ([]*domain.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VoteRecord
	for _, v := range s.data {
		if v.Sender == sender {
			cp := *v
			result = append(result, &cp)
		}
	}

	sortVotes(result)
	return result, nil
}

// GetAll retrieves the full ledger ordered by confirmation time ASC.
func (s *VoteStore) GetAll(_ context.Context) ([]*domain.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.VoteRecord, 0, len(s.data))
	for _, v := range s.data {
		cp := *v
		result = append(result, &cp)
	}

	sortVotes(result)
	return result, nil
}

// ListSubmissions returns distinct resolved submission ids.
func (s *VoteStore) ListSubmissions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, v := range s.data {
		if v.SubmissionID != "" {
			seen[v.SubmissionID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func sortVotes(votes []*domain.VoteRecord) {
	sort.Slice(votes, func(i, j int) bool {
		if votes[i].ConfirmedAt != votes[j].ConfirmedAt {
			return votes[i].ConfirmedAt < votes[j].ConfirmedAt
		}
		return votes[i].ID < votes[j].ID
	})
}
