package memory

import (
	"context"
	"sort"
	"sync"

	"solana-vote-tracker/internal/domain"
	"solana-vote-tracker/internal/storage"
)

// ScoreHistoryStore is an in-memory implementation of storage.ScoreHistoryStore.
type ScoreHistoryStore struct {
	mu   sync.RWMutex
	data []*domain.ScorePoint
}

// NewScoreHistoryStore creates a new in-memory score history store.
func NewScoreHistoryStore() *ScoreHistoryStore {
	return &ScoreHistoryStore{}
}

var _ storage.ScoreHistoryStore = (*ScoreHistoryStore)(nil)

// InsertBulk adds history points.
func (s *ScoreHistoryStore) InsertBulk(_ context.Context, points []*domain.ScorePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		if p == nil || p.SubmissionID == "" {
			return storage.ErrInvalidInput
		}
		cp := *p
		s.data = append(s.data, &cp)
	}
	return nil
}

// GetBySubmission retrieves all points for a submission, ordered by timestamp ASC.
func (s *ScoreHistoryStore) GetBySubmission(_ context.Context, submissionID string) ([]*domain.ScorePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScorePoint
	for _, p := range s.data {
		if p.SubmissionID == submissionID {
			cp := *p
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result, nil
}
