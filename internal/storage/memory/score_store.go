package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/storage"
)

// ScoreStore is an in-memory implementation of storage.ScoreStore.
type ScoreStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CommunityScore // keyed by submission id
}

// NewScoreStore creates a new in-memory score store.
func NewScoreStore() *ScoreStore {
	return &ScoreStore{
		data: make(map[string]*domain.CommunityScore),
	}
}

var _ storage.ScoreStore = (*ScoreStore)(nil)

// Upsert writes the aggregate for a submission, replacing any previous row.
func (s *ScoreStore) Upsert(_ context.Context, score *domain.CommunityScore) error {
	if score == nil || score.SubmissionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *score
	if cp.UpdatedAt == 0 {
		cp.UpdatedAt = time.Now().UnixMilli()
	}
	s.data[score.SubmissionID] = &cp
	return nil
}

// Get retrieves the cached aggregate.
func (s *ScoreStore) Get(_ context.Context, submissionID string) (*domain.CommunityScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, exists := s.data[submissionID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

// GetAll retrieves all cached aggregates ordered by submission id.
func (s *ScoreStore) GetAll(_ context.Context) ([]*domain.CommunityScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.CommunityScore, 0, len(s.data))
	for _, sc := range s.data {
		cp := *sc
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SubmissionID < result[j].SubmissionID
	})
	return result, nil
}
